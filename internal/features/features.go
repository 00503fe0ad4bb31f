// Package features turns time-ordered complaint events into supervised
// training rows: where an account withdrew, and where it withdrew next.
package features

import (
	"sort"
	"time"

	"github.com/mbd888/muletrace/internal/complaints"
)

// Record is the model input for one withdrawal, before account encoding.
type Record struct {
	AccountID string
	Lat       float64
	Long      float64
	Hour      int // 0-23
	DayOfWeek int // 0-6, Monday = 0
}

// Label is the location of the same account's following withdrawal.
type Label struct {
	NextLat  float64
	NextLong float64
}

// Sample pairs a record with its label.
type Sample struct {
	Record
	Label
}

// Weekday returns the day of week with Monday = 0 and Sunday = 6.
func Weekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// RecordOf derives the model inputs from one event. The timestamp is read
// as wall-clock time; no zone conversion happens.
func RecordOf(e complaints.Event) Record {
	return Record{
		AccountID: e.AccountID,
		Lat:       e.Lat,
		Long:      e.Long,
		Hour:      e.Timestamp.Hour(),
		DayOfWeek: Weekday(e.Timestamp),
	}
}

// SortEvents orders events by (account, timestamp) ascending in place.
// Equal keys keep their input order.
func SortEvents(events []complaints.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if a.AccountID != b.AccountID {
			return a.AccountID < b.AccountID
		}
		return a.Timestamp.Before(b.Timestamp)
	})
}

// Build emits one sample per event that has a later event for the same
// account. events must already be sorted with SortEvents; an account's
// final event, and any single-event account, yields nothing.
func Build(events []complaints.Event) []Sample {
	var out []Sample
	for i := 0; i+1 < len(events); i++ {
		cur, next := events[i], events[i+1]
		if cur.AccountID != next.AccountID {
			continue
		}
		out = append(out, Sample{
			Record: RecordOf(cur),
			Label:  Label{NextLat: next.Lat, NextLong: next.Long},
		})
	}
	return out
}

// Samples sorts a copy of events and builds from it.
func Samples(events []complaints.Event) []Sample {
	sorted := make([]complaints.Event, len(events))
	copy(sorted, events)
	SortEvents(sorted)
	return Build(sorted)
}

// AccountIDs returns every account id appearing in events, in first-seen order.
func AccountIDs(events []complaints.Event) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, e := range events {
		if !seen[e.AccountID] {
			seen[e.AccountID] = true
			ids = append(ids, e.AccountID)
		}
	}
	return ids
}
