package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"
)

func testHub() *Hub {
	return NewHub(slog.Default())
}

// ---------------------------------------------------------------------------
// shouldSend tests
// ---------------------------------------------------------------------------

func TestShouldSend_AllEvents(t *testing.T) {
	h := testHub()
	client := &Client{sub: Subscription{AllEvents: true}}

	event := &Event{Type: EventDecision, Timestamp: time.Now()}
	if !h.shouldSend(client, event) {
		t.Error("AllEvents client should receive all events")
	}
}

func TestShouldSend_EventTypeFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		EventTypes: []EventType{EventDecision, EventFreeze},
	}}

	if !h.shouldSend(client, &Event{Type: EventDecision}) {
		t.Error("Should receive decision events")
	}
	if !h.shouldSend(client, &Event{Type: EventFreeze}) {
		t.Error("Should receive account_frozen events")
	}
	if h.shouldSend(client, &Event{Type: EventAlert}) {
		t.Error("Should NOT receive alert events")
	}
}

func TestShouldSend_AccountFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		AccountIDs: []string{"MULE_RINGLEADER_01"},
	}}

	if !h.shouldSend(client, &Event{Type: EventDecision, AccountID: "MULE_RINGLEADER_01"}) {
		t.Error("Should match the watched account")
	}
	if h.shouldSend(client, &Event{Type: EventDecision, AccountID: "MULE_RANDOM_42"}) {
		t.Error("Should NOT match other accounts")
	}
	if h.shouldSend(client, &Event{Type: EventIngest}) {
		t.Error("Should NOT match events without an account")
	}
}

func TestShouldSend_MinAmountFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{MinAmount: 50000}}

	if !h.shouldSend(client, &Event{Type: EventDecision, Amount: 80000}) {
		t.Error("Should receive events above the minimum")
	}
	if !h.shouldSend(client, &Event{Type: EventDecision, Amount: 50000}) {
		t.Error("Should receive events at the minimum")
	}
	if h.shouldSend(client, &Event{Type: EventDecision, Amount: 1000}) {
		t.Error("Should NOT receive events below the minimum")
	}
}

func TestShouldSend_CombinedFilters(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		EventTypes: []EventType{EventFreeze},
		AccountIDs: []string{"MULE_RINGLEADER_01"},
	}}

	if !h.shouldSend(client, &Event{Type: EventFreeze, AccountID: "MULE_RINGLEADER_01"}) {
		t.Error("Should receive matching freeze")
	}
	if h.shouldSend(client, &Event{Type: EventDecision, AccountID: "MULE_RINGLEADER_01"}) {
		t.Error("Should NOT receive a decision for the watched account")
	}
}

func TestShouldSend_EmptySubscription(t *testing.T) {
	h := testHub()
	client := &Client{sub: Subscription{}}

	// An empty subscription has no filters, so everything passes.
	if !h.shouldSend(client, &Event{Type: EventAlert}) {
		t.Error("Empty subscription should pass all events")
	}
}

// ---------------------------------------------------------------------------
// Hub lifecycle tests
// ---------------------------------------------------------------------------

func TestHub_Stats_Initial(t *testing.T) {
	h := testHub()

	stats := h.Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("Expected 0 connected clients, got %v", stats["connectedClients"])
	}
	if stats["totalEvents"].(int64) != 0 {
		t.Errorf("Expected 0 total events, got %v", stats["totalEvents"])
	}
}

func TestHub_BroadcastAndStats(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	// Broadcast an event
	h.Broadcast(&Event{Type: EventDecision, Timestamp: time.Now()})
	time.Sleep(50 * time.Millisecond)

	stats := h.Stats()
	if stats["totalEvents"].(int64) != 1 {
		t.Errorf("Expected 1 total event, got %v", stats["totalEvents"])
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{AllEvents: true},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	stats := h.Stats()
	if stats["connectedClients"].(int) != 1 {
		t.Errorf("Expected 1 connected client, got %v", stats["connectedClients"])
	}
	if stats["peakClients"].(int64) != 1 {
		t.Errorf("Expected peak 1, got %v", stats["peakClients"])
	}

	h.unregister <- client
	time.Sleep(50 * time.Millisecond)

	stats = h.Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("Expected 0 connected clients after unregister, got %v", stats["connectedClients"])
	}
	// Peak should still be 1
	if stats["peakClients"].(int64) != 1 {
		t.Errorf("Expected peak still 1, got %v", stats["peakClients"])
	}
}

func TestHub_BroadcastToClient(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{AllEvents: true},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	h.Broadcast(&Event{
		Type:      EventDecision,
		Timestamp: time.Now(),
		AccountID: "MULE_RINGLEADER_01",
		Amount:    80000,
	})

	select {
	case msg := <-client.send:
		if len(msg) == 0 {
			t.Error("Expected non-empty message")
		}
	case <-time.After(time.Second):
		t.Error("Timeout waiting for broadcast")
	}
}

func TestHub_Publish(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{AccountIDs: []string{"MULE_RINGLEADER_01"}},
	}
	h.register <- client
	time.Sleep(50 * time.Millisecond)

	h.Publish(EventFreeze, "MULE_RINGLEADER_01", 80000, map[string]any{"rows": 3})

	select {
	case msg := <-client.send:
		var ev Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		if ev.Type != EventFreeze || ev.AccountID != "MULE_RINGLEADER_01" || ev.Amount != 80000 {
			t.Errorf("Unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Error("Timeout waiting for published event")
	}
}

func TestHub_ContextCancellation(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
		// Hub stopped
	case <-time.After(2 * time.Second):
		t.Error("Hub did not stop after context cancellation")
	}
}

func TestHub_FilteredBroadcast(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	// Client only wants freezes
	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{EventTypes: []EventType{EventFreeze}},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	// Send a decision event (should be filtered out)
	h.Broadcast(&Event{Type: EventDecision, Timestamp: time.Now()})
	time.Sleep(100 * time.Millisecond)

	select {
	case <-client.send:
		t.Error("Client should NOT receive decision event")
	default:
		// Good - filtered out
	}

	// Send a freeze event (should be received)
	h.Broadcast(&Event{Type: EventFreeze, Timestamp: time.Now()})

	select {
	case msg := <-client.send:
		if len(msg) == 0 {
			t.Error("Expected non-empty message")
		}
	case <-time.After(time.Second):
		t.Error("Client should receive freeze event")
	}
}
