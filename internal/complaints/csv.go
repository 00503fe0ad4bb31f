package complaints

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// csvColumns are the columns of the complaints export. id and status are optional.
var csvColumns = []string{
	"complaint_id", "fraud_type", "amount", "mule_account_id", "withdrawal_atm_id",
	"withdrawal_lat", "withdrawal_long", "location_name", "timestamp",
}

// ReadCSV parses a complaints export with a header row. Columns are matched
// by name, so extra or reordered columns are fine.
func ReadCSV(r io.Reader) ([]*Event, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, col := range csvColumns {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("%w: csv missing column %q", ErrInvalidEvent, col)
		}
	}

	var events []*Event
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return events, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}
		e, err := parseRecord(rec, idx)
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		events = append(events, e)
	}
}

func parseRecord(rec []string, idx map[string]int) (*Event, error) {
	get := func(col string) string {
		if i, ok := idx[col]; ok && i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}

	amount, err := ParseAmount(get("amount"))
	if err != nil {
		return nil, err
	}
	lat, err := strconv.ParseFloat(get("withdrawal_lat"), 64)
	if err != nil {
		return nil, fmt.Errorf("%w: withdrawal_lat: %v", ErrInvalidEvent, err)
	}
	long, err := strconv.ParseFloat(get("withdrawal_long"), 64)
	if err != nil {
		return nil, fmt.Errorf("%w: withdrawal_long: %v", ErrInvalidEvent, err)
	}
	ts, err := ParseTimestamp(get("timestamp"))
	if err != nil {
		return nil, err
	}

	e := &Event{
		ComplaintID:  get("complaint_id"),
		FraudType:    get("fraud_type"),
		Amount:       amount,
		AccountID:    get("mule_account_id"),
		ATMID:        get("withdrawal_atm_id"),
		Lat:          lat,
		Long:         long,
		LocationName: get("location_name"),
		Timestamp:    ts,
		Status:       Status(get("status")),
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

// ParseAmount accepts whole rupee amounts written as integers or as
// integral floats such as "50000.0". Fractions and values outside int64
// are rejected rather than rounded. An empty string is zero.
func ParseAmount(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, fmt.Errorf("%w: amount %q is not a whole number", ErrInvalidEvent, s)
	}
	return int64(f), nil
}
