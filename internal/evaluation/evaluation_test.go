package evaluation

import (
	"errors"
	"math"
	"testing"

	"github.com/mbd888/muletrace/internal/encoder"
	"github.com/mbd888/muletrace/internal/features"
)

func TestHaversine_Identical(t *testing.T) {
	if d := Haversine(28.6315, 77.2167, 28.6315, 77.2167); d != 0 {
		t.Errorf("Expected 0 meters for identical points, got %f", d)
	}
}

func TestHaversine_DelhiPair(t *testing.T) {
	// Connaught Place to a nearby ATM; reference from the spherical law of cosines.
	const want = 357.3056
	got := Haversine(28.6315, 77.2167, 28.6290, 77.2190)
	if math.Abs(got-want) > 1 {
		t.Errorf("Haversine = %.4f, want %.4f +/- 1m", got, want)
	}
	if back := Haversine(28.6290, 77.2190, 28.6315, 77.2167); math.Abs(back-got) > 1e-9 {
		t.Errorf("Expected symmetric distance, got %f and %f", got, back)
	}
}

func TestBandFor(t *testing.T) {
	tests := []struct {
		meters float64
		want   Band
	}{
		{0, BandExcellent},
		{499.9, BandExcellent},
		{500, BandGood},
		{1999, BandGood},
		{2000, BandNeedsImprovement},
		{25000, BandNeedsImprovement},
	}
	for _, tt := range tests {
		if got := BandFor(tt.meters); got != tt.want {
			t.Errorf("BandFor(%v) = %q, want %q", tt.meters, got, tt.want)
		}
	}
}

// fixedRegressor returns the same point for every input.
type fixedRegressor struct{ lat, long float64 }

func (f fixedRegressor) Predict([]float64) []float64 { return []float64{f.lat, f.long} }

// echoRegressor predicts "stays where it is".
type echoRegressor struct{}

func (echoRegressor) Predict(x []float64) []float64 { return []float64{x[1], x[2]} }

func sample(id string, lat, long, nextLat, nextLong float64) features.Sample {
	return features.Sample{
		Record: features.Record{AccountID: id, Lat: lat, Long: long, Hour: 10, DayOfWeek: 0},
		Label:  features.Label{NextLat: nextLat, NextLong: nextLong},
	}
}

func TestEvaluate_PerfectPrediction(t *testing.T) {
	samples := []features.Sample{
		sample("MULE_A", 28.6315, 77.2167, 28.6290, 77.2190),
		sample("MULE_A", 28.6290, 77.2190, 28.6290, 77.2190),
	}
	rep, err := Evaluate(fixedRegressor{28.6290, 77.2190}, encoder.Fit([]string{"MULE_A"}), samples)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if rep.Total != 2 || rep.MeanErrorMeters != 0 || rep.Band != BandExcellent {
		t.Errorf("Expected zero error over 2 samples, got %+v", rep)
	}
}

func TestEvaluate_MeanIsArithmetic(t *testing.T) {
	samples := []features.Sample{
		sample("MULE_A", 28.6315, 77.2167, 28.6290, 77.2190),
		sample("MULE_A", 28.6290, 77.2190, 28.6290, 77.2190),
	}
	rep, err := Evaluate(echoRegressor{}, encoder.Fit([]string{"MULE_A"}), samples)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	errs := rep.PerSampleErrors()
	if errs[1] != 0 {
		t.Errorf("Expected second sample to be exact, got %f", errs[1])
	}
	if math.Abs(rep.MeanErrorMeters-errs[0]/2) > 1e-9 {
		t.Errorf("Mean = %f, want %f", rep.MeanErrorMeters, errs[0]/2)
	}
	if rep.MaxMeters != errs[0] {
		t.Errorf("Max = %f, want %f", rep.MaxMeters, errs[0])
	}
}

func TestEvaluate_Quantiles(t *testing.T) {
	// Each sample predicts its own start; the error is the distance to the
	// label, stepped in longitude along the equator.
	var samples []features.Sample
	for _, step := range []float64{1, 2, 3, 4, 10} {
		samples = append(samples, sample("MULE_A", 0, 0, 0, step*0.001))
	}
	rep, err := Evaluate(echoRegressor{}, encoder.Fit([]string{"MULE_A"}), samples)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	errs := rep.PerSampleErrors()
	if rep.MedianMeters != errs[2] {
		t.Errorf("Median = %f, want %f", rep.MedianMeters, errs[2])
	}
	if rep.P90Meters != errs[4] {
		t.Errorf("P90 = %f, want %f", rep.P90Meters, errs[4])
	}
}

func TestEvaluate_NoSamples(t *testing.T) {
	if _, err := Evaluate(echoRegressor{}, encoder.Fit(nil), nil); !errors.Is(err, ErrNoSamples) {
		t.Errorf("Expected ErrNoSamples, got %v", err)
	}
}

func TestReport_SpotIsSeeded(t *testing.T) {
	var samples []features.Sample
	for i := 0; i < 20; i++ {
		samples = append(samples, sample("MULE_A", float64(i)*0.01, 77, float64(i)*0.01+0.001, 77))
	}
	rep, err := Evaluate(echoRegressor{}, encoder.Fit([]string{"MULE_A"}), samples)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	a, b := rep.Spot(3, 42), rep.Spot(3, 42)
	if len(a) != 3 {
		t.Fatalf("Expected 3 spot checks, got %d", len(a))
	}
	seen := map[float64]bool{}
	for i := range a {
		if a[i].Sample.Lat != b[i].Sample.Lat {
			t.Error("Expected the same seed to pick the same rows")
		}
		if seen[a[i].Sample.Lat] {
			t.Error("Expected distinct spot checks")
		}
		seen[a[i].Sample.Lat] = true
	}

	if got := rep.Spot(50, 1); len(got) != 20 {
		t.Errorf("Expected Spot to cap at the result count, got %d", len(got))
	}
}
