// Package evaluation measures how far the regressor's predicted next
// locations land from the actual ones.
package evaluation

import (
	"errors"
	"math"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/mbd888/muletrace/internal/encoder"
	"github.com/mbd888/muletrace/internal/features"
	"github.com/mbd888/muletrace/internal/model"
)

// EarthRadiusMeters is the mean Earth radius used for distances.
const EarthRadiusMeters = 6371 * 1000.0

var ErrNoSamples = errors.New("evaluation: no samples")

// Band is a descriptive label for a mean error. It gates nothing.
type Band string

const (
	BandExcellent        Band = "excellent"
	BandGood             Band = "good"
	BandNeedsImprovement Band = "needs improvement"
)

// BandFor classifies a mean error in meters.
func BandFor(meanMeters float64) Band {
	switch {
	case meanMeters < 500:
		return BandExcellent
	case meanMeters < 2000:
		return BandGood
	default:
		return BandNeedsImprovement
	}
}

// Haversine returns the great-circle distance in meters between two points
// given in decimal degrees.
func Haversine(lat1, long1, lat2, long2 float64) float64 {
	phi1, phi2 := lat1*math.Pi/180, lat2*math.Pi/180
	dPhi := phi2 - phi1
	dLambda := (long2 - long1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) + math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return 2 * math.Asin(math.Sqrt(math.Min(1, a))) * EarthRadiusMeters
}

// Result is one evaluated sample.
type Result struct {
	Sample        features.Sample
	PredictedLat  float64
	PredictedLong float64
	ErrorMeters   float64
}

// Report summarises an evaluation run.
type Report struct {
	Total           int
	MeanErrorMeters float64
	MedianMeters    float64
	P90Meters       float64
	MaxMeters       float64
	Band            Band
	Results         []Result
}

// PerSampleErrors returns the error of each sample in evaluation order.
func (r *Report) PerSampleErrors() []float64 {
	out := make([]float64, len(r.Results))
	for i, res := range r.Results {
		out[i] = res.ErrorMeters
	}
	return out
}

// Evaluate predicts every sample through reg, encoding accounts with table
// exactly as serving does, and reports the distance to each actual next
// location.
func Evaluate(reg model.Regressor, table *encoder.Table, samples []features.Sample) (*Report, error) {
	if len(samples) == 0 {
		return nil, ErrNoSamples
	}

	results := make([]Result, len(samples))
	errs := make([]float64, len(samples))
	for i, s := range samples {
		out := reg.Predict(model.Input(table.Encode(s.AccountID), s.Lat, s.Long, s.Hour, s.DayOfWeek))
		d := Haversine(s.NextLat, s.NextLong, out[0], out[1])
		results[i] = Result{Sample: s, PredictedLat: out[0], PredictedLong: out[1], ErrorMeters: d}
		errs[i] = d
	}

	mean := stat.Mean(errs, nil)
	sorted := slices.Clone(errs)
	slices.Sort(sorted)

	return &Report{
		Total:           len(samples),
		MeanErrorMeters: mean,
		MedianMeters:    stat.Quantile(0.5, stat.Empirical, sorted, nil),
		P90Meters:       stat.Quantile(0.9, stat.Empirical, sorted, nil),
		MaxMeters:       floats.Max(errs),
		Band:            BandFor(mean),
		Results:         results,
	}, nil
}

// Spot picks n distinct results for manual inspection. The choice depends
// only on seed, so reruns show the same rows.
func (r *Report) Spot(n int, seed uint64) []Result {
	n = min(n, len(r.Results))
	rng := rand.New(rand.NewPCG(seed, seed^0x5851f42d4c957f2d)) //nolint:gosec // reproducible sampling
	perm := rng.Perm(len(r.Results))[:n]
	out := make([]Result, n)
	for i, idx := range perm {
		out[i] = r.Results[idx]
	}
	return out
}
