package complaints

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps events in process, for development and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	events []*Event
	nextID int64
	marked map[string]struct{} // frozen with no rows
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1, marked: make(map[string]struct{})}
}

func (m *MemoryStore) Insert(_ context.Context, e *Event) error {
	if err := prepare(e); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.append(e)
	return nil
}

// InsertBatch validates every event before storing any of them.
func (m *MemoryStore) InsertBatch(_ context.Context, events []*Event) (int, error) {
	for _, e := range events {
		if err := prepare(e); err != nil {
			return 0, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range events {
		m.append(e)
	}
	return len(events), nil
}

// caller holds m.mu
func (m *MemoryStore) append(e *Event) {
	e.ID = m.nextID
	m.nextID++
	cp := *e
	m.events = append(m.events, &cp)
}

func (m *MemoryStore) List(_ context.Context, accountID string) ([]Event, error) {
	m.mu.RLock()
	var out []Event
	for _, e := range m.events {
		if accountID == "" || e.AccountID == accountID {
			out = append(out, *e)
		}
	}
	m.mu.RUnlock()

	// events are held in id order, so a stable sort keeps ties by insertion
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

func (m *MemoryStore) Latest(_ context.Context, n int) ([]Event, error) {
	if n <= 0 {
		return nil, nil
	}
	m.mu.RLock()
	out := make([]Event, len(m.events))
	for i, e := range m.events {
		out[i] = *e
	}
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (m *MemoryStore) Status(_ context.Context, accountID string) (Status, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.frozen(accountID) {
		return StatusFrozen, nil
	}
	return StatusOpen, nil
}

// caller holds m.mu
func (m *MemoryStore) frozen(accountID string) bool {
	if _, ok := m.marked[accountID]; ok {
		return true
	}
	for _, e := range m.events {
		if e.AccountID == accountID && e.Status == StatusFrozen {
			return true
		}
	}
	return false
}

func (m *MemoryStore) Freeze(_ context.Context, accountID string) (FreezeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.frozen(accountID) {
		return FreezeResult{Outcome: FreezeAlreadyFrozen}, nil
	}
	var open []*Event
	for _, e := range m.events {
		if e.AccountID == accountID {
			open = append(open, e)
		}
	}
	if len(open) == 0 {
		m.marked[accountID] = struct{}{}
		return FreezeResult{Outcome: FreezeNoRecords}, nil
	}
	for _, e := range open {
		e.Status = StatusFrozen
	}
	return FreezeResult{Outcome: FreezeApplied, Rows: int64(len(open))}, nil
}

func (m *MemoryStore) ResetAll(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.events {
		e.Status = StatusOpen
	}
	clear(m.marked)
	return int64(len(m.events)), nil
}
