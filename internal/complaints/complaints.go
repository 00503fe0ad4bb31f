// Package complaints stores fraud complaint events and answers the read
// queries the investigators and the interception engine need.
//
// Each event is one cash withdrawal by a mule account. The account's status
// (Open or Frozen) lives on every event row of that account; freezing an
// account rewrites all of its rows.
package complaints

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrStoreUnavailable wraps every storage I/O failure.
	ErrStoreUnavailable = errors.New("complaints: store unavailable")
	ErrInvalidEvent     = errors.New("complaints: invalid event")
)

// Status of a mule account.
type Status string

const (
	StatusOpen   Status = "Open"
	StatusFrozen Status = "Frozen"
)

// TimeLayout is how timestamps are rendered in API responses and CSV exports.
// Timestamps are naive: no zone conversion is ever applied.
const TimeLayout = "2006-01-02 15:04:05"

var parseLayouts = []string{
	TimeLayout,
	"2006-01-02 15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999",
	time.RFC3339Nano,
}

// ParseTimestamp accepts the formats the complaint exports use.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range parseLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unrecognised timestamp %q", ErrInvalidEvent, s)
}

// Event is one complaint record.
type Event struct {
	ID           int64     `json:"id"`
	ComplaintID  string    `json:"complaint_id"`
	FraudType    string    `json:"fraud_type"`
	Amount       int64     `json:"amount"`
	AccountID    string    `json:"mule_account_id"`
	ATMID        string    `json:"withdrawal_atm_id"`
	Lat          float64   `json:"withdrawal_lat"`
	Long         float64   `json:"withdrawal_long"`
	LocationName string    `json:"location_name"`
	Timestamp    time.Time `json:"timestamp"`
	Status       Status    `json:"status"`
}

// Validate checks the fields every downstream consumer relies on.
func (e *Event) Validate() error {
	switch {
	case strings.TrimSpace(e.AccountID) == "":
		return fmt.Errorf("%w: mule_account_id is required", ErrInvalidEvent)
	case e.Timestamp.IsZero():
		return fmt.Errorf("%w: timestamp is required", ErrInvalidEvent)
	case e.Lat < -90 || e.Lat > 90 || e.Long < -180 || e.Long > 180:
		return fmt.Errorf("%w: coordinates out of range", ErrInvalidEvent)
	case e.Amount < 0:
		return fmt.Errorf("%w: negative amount", ErrInvalidEvent)
	}
	return nil
}

// Hotspot is one weighted heatmap point.
type Hotspot struct {
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
	Weight float64 `json:"weight"`
}

// HotspotOf converts an event into a heatmap point weighted by amount/1000.
func HotspotOf(e Event) Hotspot {
	return Hotspot{Lat: e.Lat, Lng: e.Long, Weight: float64(e.Amount) / 1000}
}

// HistoryPoint is one step of an account's movement trail.
type HistoryPoint struct {
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
	Time   string  `json:"time"`
	Amount int64   `json:"amount"`
	ATM    string  `json:"atm"`
}

// HistoryPointOf converts an event into a trail point.
func HistoryPointOf(e Event) HistoryPoint {
	return HistoryPoint{
		Lat:    e.Lat,
		Lng:    e.Long,
		Time:   e.Timestamp.Format(TimeLayout),
		Amount: e.Amount,
		ATM:    e.ATMID,
	}
}

// FreezeOutcome says what a Freeze call did.
type FreezeOutcome int

const (
	// FreezeApplied means this call moved the account from Open to Frozen.
	FreezeApplied FreezeOutcome = iota
	// FreezeAlreadyFrozen means another caller froze the account first.
	FreezeAlreadyFrozen
	// FreezeNoRecords means the account has no complaint rows; this call
	// recorded it as frozen so later rows and proposals stay blocked.
	FreezeNoRecords
)

func (o FreezeOutcome) String() string {
	switch o {
	case FreezeApplied:
		return "applied"
	case FreezeAlreadyFrozen:
		return "already_frozen"
	case FreezeNoRecords:
		return "no_records"
	default:
		return "unknown"
	}
}

// FreezeResult reports the outcome and how many rows changed.
type FreezeResult struct {
	Outcome FreezeOutcome
	Rows    int64
}

// Store persists complaint events.
//
// List returns events ordered by timestamp ascending, ties by insertion
// order; an empty accountID lists every account. Latest returns the n most
// recent events, newest first. Status is Frozen when any row of the account
// is Frozen or the account was frozen while it had no rows, and Open
// otherwise. ResetAll reopens both.
//
// Freeze is a compare-and-set: only one concurrent caller can observe
// FreezeApplied for a given account.
type Store interface {
	Insert(ctx context.Context, e *Event) error
	InsertBatch(ctx context.Context, events []*Event) (int, error)
	List(ctx context.Context, accountID string) ([]Event, error)
	Latest(ctx context.Context, n int) ([]Event, error)
	Status(ctx context.Context, accountID string) (Status, error)
	Freeze(ctx context.Context, accountID string) (FreezeResult, error)
	ResetAll(ctx context.Context) (int64, error)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}

// prepare fills defaults on a new event and validates it.
func prepare(e *Event) error {
	if e.Status == "" {
		e.Status = StatusOpen
	}
	if e.Status != StatusOpen && e.Status != StatusFrozen {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidEvent, e.Status)
	}
	return e.Validate()
}
