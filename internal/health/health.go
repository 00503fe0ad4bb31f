// Package health runs named subsystem checks for the /health endpoints.
package health

import (
	"context"
	"sync"
	"time"
)

// Status is the outcome of one check.
type Status struct {
	Name     string `json:"name"`
	Healthy  bool   `json:"healthy"`
	Optional bool   `json:"optional,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// Checker checks one subsystem.
type Checker func(ctx context.Context) Status

// Pinger is satisfied by *sql.DB and small adapters around redis clients.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Report aggregates every check. Overall is "ok", "degraded" when only
// optional checks fail, or "unhealthy".
type Report struct {
	Overall string   `json:"status"`
	Checks  []Status `json:"checks"`
}

// Healthy reports whether every required check passed.
func (r Report) Healthy() bool { return r.Overall != "unhealthy" }

// Registry holds named checkers and runs them on demand.
type Registry struct {
	mu       sync.RWMutex
	checkers []entry
}

type entry struct {
	name     string
	optional bool
	check    Checker
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a check whose failure makes the service unhealthy.
func (r *Registry) Register(name string, check Checker) {
	r.add(entry{name: name, check: check})
}

// RegisterOptional adds a check whose failure only degrades the service,
// e.g. a missing model disables prediction but not interception.
func (r *Registry) RegisterOptional(name string, check Checker) {
	r.add(entry{name: name, optional: true, check: check})
}

func (r *Registry) add(e entry) {
	r.mu.Lock()
	r.checkers = append(r.checkers, e)
	r.mu.Unlock()
}

// CheckAll runs every check in registration order.
func (r *Registry) CheckAll(ctx context.Context) Report {
	r.mu.RLock()
	checkers := make([]entry, len(r.checkers))
	copy(checkers, r.checkers)
	r.mu.RUnlock()

	rep := Report{Overall: "ok", Checks: make([]Status, len(checkers))}
	for i, e := range checkers {
		st := e.check(ctx)
		st.Name = e.name
		st.Optional = e.optional
		rep.Checks[i] = st
		if st.Healthy {
			continue
		}
		if e.optional {
			if rep.Overall == "ok" {
				rep.Overall = "degraded"
			}
		} else {
			rep.Overall = "unhealthy"
		}
	}
	return rep
}

// PingCheck adapts a Pinger into a Checker bounded by timeout.
func PingCheck(p Pinger, timeout time.Duration) Checker {
	return func(ctx context.Context) Status {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := p.PingContext(ctx); err != nil {
			return Status{Healthy: false, Detail: err.Error()}
		}
		return Status{Healthy: true}
	}
}
