package alerts

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryOutbox keeps alerts in process, for development and tests.
type MemoryOutbox struct {
	mu     sync.Mutex
	alerts map[string]*Alert
	now    func() time.Time
}

// NewMemoryOutbox creates an empty outbox.
func NewMemoryOutbox() *MemoryOutbox {
	return &MemoryOutbox{alerts: make(map[string]*Alert), now: time.Now}
}

func (m *MemoryOutbox) Enqueue(_ context.Context, a *Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.alerts[a.Reference]; ok {
		return nil
	}
	now := m.now()
	cp := *a
	if cp.Status == "" {
		cp.Status = StatusPending
	}
	cp.CreatedAt, cp.UpdatedAt = now, now
	m.alerts[a.Reference] = &cp
	a.Status, a.CreatedAt, a.UpdatedAt = cp.Status, now, now
	return nil
}

func (m *MemoryOutbox) Get(_ context.Context, reference string) (*Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.alerts[reference]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MemoryOutbox) ListPending(_ context.Context, updatedBefore time.Time, limit int) ([]*Alert, error) {
	m.mu.Lock()
	var out []*Alert
	for _, a := range m.alerts {
		if a.Status == StatusPending && !a.UpdatedAt.After(updatedBefore) {
			cp := *a
			out = append(out, &cp)
		}
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Reference < out[j].Reference
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryOutbox) MarkDelivered(_ context.Context, reference, providerRef string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.alerts[reference]
	if !ok {
		return ErrNotFound
	}
	if a.Status == StatusDelivered {
		return nil
	}
	a.Status = StatusDelivered
	a.Attempts++
	a.ProviderRef = providerRef
	a.LastError = ""
	a.UpdatedAt = m.now()
	a.DeliveredAt = &at
	return nil
}

func (m *MemoryOutbox) MarkAttempt(_ context.Context, reference, lastError string, maxAttempts int) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.alerts[reference]
	if !ok {
		return "", ErrNotFound
	}
	if a.Status != StatusPending {
		return a.Status, nil
	}
	a.Attempts++
	a.LastError = lastError
	a.UpdatedAt = m.now()
	if maxAttempts > 0 && a.Attempts >= maxAttempts {
		a.Status = StatusFailed
	}
	return a.Status, nil
}

func (m *MemoryOutbox) CountPending(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, a := range m.alerts {
		if a.Status == StatusPending {
			n++
		}
	}
	return n, nil
}
