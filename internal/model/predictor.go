// Package model trains and serves the next-location regressor: given where a
// mule account just withdrew and when, predict where it withdraws next.
package model

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mbd888/muletrace/internal/encoder"
	"github.com/mbd888/muletrace/internal/metrics"
	"github.com/mbd888/muletrace/internal/traces"
)

var (
	// ErrModelUnavailable means no artifact is loaded; only prediction is affected.
	ErrModelUnavailable = errors.New("model: no model loaded")
	ErrInvalidInput     = errors.New("model: invalid input")
)

// Regressor maps a five-value input row to (lat, long).
type Regressor interface {
	Predict(x []float64) []float64
}

// Input builds the model row in its fixed order.
func Input(code int, lat, long float64, hour, day int) []float64 {
	return []float64{float64(code), lat, long, float64(hour), float64(day)}
}

// Prediction is the regressor output plus how the account was encoded.
type Prediction struct {
	Lat          float64
	Long         float64
	Code         int
	KnownAccount bool
}

// Handle is the read-only serving pair of regressor and encoder table. A nil
// Handle, or one missing either half, answers every call with ErrModelUnavailable.
type Handle struct {
	regressor Regressor
	table     *encoder.Table
}

// NewHandle pairs a trained regressor with the table it was trained against.
func NewHandle(r Regressor, table *encoder.Table) *Handle {
	return &Handle{regressor: r, table: table}
}

// Load reads both artifacts. Callers treat an error as "prediction disabled".
func Load(modelPath, encoderPath string) (*Handle, error) {
	art, err := LoadArtifact(modelPath)
	if err != nil {
		return nil, err
	}
	table, err := encoder.Load(encoderPath)
	if err != nil {
		return nil, err
	}
	return NewHandle(art.Forest, table), nil
}

// Available reports whether predictions can be served.
func (h *Handle) Available() bool {
	return h != nil && h.regressor != nil && h.table != nil
}

// Table returns the encoder table, or nil.
func (h *Handle) Table() *encoder.Table {
	if h == nil {
		return nil
	}
	return h.table
}

// Regressor returns the loaded regressor, or nil.
func (h *Handle) Regressor() Regressor {
	if h == nil {
		return nil
	}
	return h.regressor
}

// Predict estimates the next withdrawal location. hour is 0-23 and day is
// 0-6 with Monday = 0. Unknown accounts are encoded with the sentinel and
// still get a prediction.
func (h *Handle) Predict(ctx context.Context, accountID string, lat, long float64, hour, day int) (Prediction, error) {
	if !h.Available() {
		metrics.PredictionsTotal.WithLabelValues("unavailable").Inc()
		return Prediction{}, ErrModelUnavailable
	}
	if hour < 0 || hour > 23 || day < 0 || day > 6 {
		metrics.PredictionsTotal.WithLabelValues("invalid").Inc()
		return Prediction{}, fmt.Errorf("%w: hour=%d day=%d", ErrInvalidInput, hour, day)
	}

	_, span := traces.StartSpan(ctx, "model.Predict", traces.Account(accountID))
	defer span.End()

	code, known := h.table.Lookup(accountID)
	if !known {
		code = encoder.Unknown
	}

	start := time.Now()
	out := h.regressor.Predict(Input(code, lat, long, hour, day))
	metrics.PredictionDuration.Observe(time.Since(start).Seconds())

	result := "ok"
	if !known {
		result = "unknown_account"
	}
	metrics.PredictionsTotal.WithLabelValues(result).Inc()

	return Prediction{Lat: out[0], Long: out[1], Code: code, KnownAccount: known}, nil
}
