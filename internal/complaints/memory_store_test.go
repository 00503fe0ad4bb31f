package complaints

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func at(day, hour, minute int) time.Time {
	return time.Date(2024, time.March, day, hour, minute, 0, 0, time.UTC)
}

func event(account string, ts time.Time, lat, long float64, amount int64) *Event {
	return &Event{
		ComplaintID:  "CMP" + ts.Format("150405"),
		FraudType:    "Investment Scam",
		Amount:       amount,
		AccountID:    account,
		ATMID:        "ATM_DEL_01",
		Lat:          lat,
		Long:         long,
		LocationName: "Connaught Place Block A",
		Timestamp:    ts,
	}
}

func seeded(t *testing.T) *MemoryStore {
	t.Helper()
	s := NewMemoryStore()
	_, err := s.InsertBatch(context.Background(), []*Event{
		event("MULE_RINGLEADER_01", at(4, 11, 0), 28.6290, 77.2190, 120000),
		event("MULE_BLR_101", at(2, 9, 0), 12.9716, 77.5946, 5000),
		event("MULE_RINGLEADER_01", at(1, 10, 0), 28.6315, 77.2167, 90000),
		event("MULE_RINGLEADER_01", at(3, 15, 30), 28.6320, 77.2200, 60000),
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return s
}

func TestMemoryStore_InsertAssignsIDsAndOpenStatus(t *testing.T) {
	s := NewMemoryStore()
	e := event("MULE_RAND_1001", at(1, 8, 0), 19.07, 72.87, 1500)
	if err := s.Insert(context.Background(), e); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if e.ID != 1 {
		t.Errorf("expected id 1, got %d", e.ID)
	}
	if e.Status != StatusOpen {
		t.Errorf("expected Open, got %s", e.Status)
	}
}

func TestMemoryStore_InsertRejectsInvalid(t *testing.T) {
	s := NewMemoryStore()
	cases := map[string]*Event{
		"no account":   event("", at(1, 8, 0), 10, 10, 1),
		"no timestamp": event("A", time.Time{}, 10, 10, 1),
		"bad lat":      event("A", at(1, 8, 0), 91, 10, 1),
		"negative":     event("A", at(1, 8, 0), 10, 10, -1),
	}
	for name, e := range cases {
		if err := s.Insert(context.Background(), e); !errors.Is(err, ErrInvalidEvent) {
			t.Errorf("%s: expected ErrInvalidEvent, got %v", name, err)
		}
	}
}

func TestMemoryStore_InsertBatchIsAllOrNothing(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.InsertBatch(context.Background(), []*Event{
		event("A", at(1, 8, 0), 10, 10, 1),
		event("", at(1, 9, 0), 10, 10, 1),
	})
	if err == nil {
		t.Fatal("expected error for invalid batch")
	}
	all, _ := s.List(context.Background(), "")
	if len(all) != 0 {
		t.Fatalf("expected nothing stored, got %d", len(all))
	}
}

func TestMemoryStore_ListAscendingByTimestamp(t *testing.T) {
	s := seeded(t)
	got, err := s.List(context.Background(), "MULE_RINGLEADER_01")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Timestamp.Before(got[i-1].Timestamp) {
			t.Fatalf("events out of order at %d", i)
		}
	}
	if got[0].Lat != 28.6315 {
		t.Errorf("expected earliest event first, got lat %v", got[0].Lat)
	}
}

func TestMemoryStore_ListTiesKeepInsertionOrder(t *testing.T) {
	s := NewMemoryStore()
	ts := at(1, 10, 0)
	for _, lat := range []float64{1, 2, 3} {
		if err := s.Insert(context.Background(), event("A", ts, lat, 0, 1)); err != nil {
			t.Fatal(err)
		}
	}
	got, _ := s.List(context.Background(), "A")
	for i, want := range []float64{1, 2, 3} {
		if got[i].Lat != want {
			t.Fatalf("position %d: lat %v, want %v", i, got[i].Lat, want)
		}
	}
}

func TestMemoryStore_Latest(t *testing.T) {
	s := seeded(t)
	got, err := s.Latest(context.Background(), 2)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2, got %d", len(got))
	}
	if !got[0].Timestamp.Equal(at(4, 11, 0)) || !got[1].Timestamp.Equal(at(3, 15, 30)) {
		t.Errorf("expected newest first, got %v then %v", got[0].Timestamp, got[1].Timestamp)
	}

	if got, _ := s.Latest(context.Background(), 0); got != nil {
		t.Errorf("expected nil for n=0, got %v", got)
	}
}

func TestMemoryStore_FreezeIsCompareAndSet(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	res, err := s.Freeze(ctx, "MULE_RINGLEADER_01")
	if err != nil {
		t.Fatalf("Freeze: %v", err)
	}
	if res.Outcome != FreezeApplied || res.Rows != 3 {
		t.Fatalf("expected applied on 3 rows, got %+v", res)
	}
	if st, _ := s.Status(ctx, "MULE_RINGLEADER_01"); st != StatusFrozen {
		t.Fatalf("expected Frozen, got %s", st)
	}
	if st, _ := s.Status(ctx, "MULE_BLR_101"); st != StatusOpen {
		t.Fatalf("other accounts stay Open, got %s", st)
	}

	res, _ = s.Freeze(ctx, "MULE_RINGLEADER_01")
	if res.Outcome != FreezeAlreadyFrozen {
		t.Fatalf("second freeze should report already frozen, got %v", res.Outcome)
	}

	if st, _ := s.Status(ctx, "MULE_NOBODY"); st != StatusOpen {
		t.Fatalf("unknown accounts read as Open, got %s", st)
	}
	res, _ = s.Freeze(ctx, "MULE_NOBODY")
	if res.Outcome != FreezeNoRecords || res.Rows != 0 {
		t.Fatalf("expected no records, got %+v", res)
	}
	if st, _ := s.Status(ctx, "MULE_NOBODY"); st != StatusFrozen {
		t.Fatalf("account frozen without rows should read Frozen, got %s", st)
	}
	res, _ = s.Freeze(ctx, "MULE_NOBODY")
	if res.Outcome != FreezeAlreadyFrozen {
		t.Fatalf("second freeze without rows should report already frozen, got %v", res.Outcome)
	}
}

func TestMemoryStore_FreezeWithoutRowsSurvivesIngestUntilReset(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := s.Freeze(ctx, "MULE_GHOST"); err != nil {
		t.Fatalf("Freeze: %v", err)
	}
	if err := s.Insert(ctx, event("MULE_GHOST", at(1, 10, 0), 28.6, 77.2, 1000)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if st, _ := s.Status(ctx, "MULE_GHOST"); st != StatusFrozen {
		t.Fatalf("expected Frozen after ingest, got %s", st)
	}

	if _, err := s.ResetAll(ctx); err != nil {
		t.Fatalf("ResetAll: %v", err)
	}
	if st, _ := s.Status(ctx, "MULE_GHOST"); st != StatusOpen {
		t.Fatalf("expected Open after reset, got %s", st)
	}
}

func TestMemoryStore_ConcurrentFreezeHasOneWinner(t *testing.T) {
	s := seeded(t)
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.Freeze(context.Background(), "MULE_RINGLEADER_01")
			if err != nil {
				t.Error(err)
				return
			}
			if res.Outcome == FreezeApplied {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if applied != 1 {
		t.Fatalf("expected exactly one winner, got %d", applied)
	}
}

func TestMemoryStore_ResetAll(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	_, _ = s.Freeze(ctx, "MULE_RINGLEADER_01")

	n, err := s.ResetAll(ctx)
	if err != nil {
		t.Fatalf("ResetAll: %v", err)
	}
	if n != 4 {
		t.Errorf("expected 4 rows reset, got %d", n)
	}
	if st, _ := s.Status(ctx, "MULE_RINGLEADER_01"); st != StatusOpen {
		t.Errorf("expected Open after reset, got %s", st)
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := seeded(t)
	got, _ := s.List(context.Background(), "MULE_BLR_101")
	got[0].Status = StatusFrozen
	if st, _ := s.Status(context.Background(), "MULE_BLR_101"); st != StatusOpen {
		t.Fatal("mutating a listed event must not touch the store")
	}
}
