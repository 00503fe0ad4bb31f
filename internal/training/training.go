// Package training runs the offline jobs around the next-location model:
// fitting the forest and encoder from the complaint store, and scoring a
// saved model against the same data.
package training

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/mbd888/muletrace/internal/complaints"
	"github.com/mbd888/muletrace/internal/encoder"
	"github.com/mbd888/muletrace/internal/evaluation"
	"github.com/mbd888/muletrace/internal/features"
	"github.com/mbd888/muletrace/internal/model"
)

// ErrNoTrainingData means the store held no account with two or more events.
var ErrNoTrainingData = errors.New("training: no account has a next withdrawal")

// SpotSeed fixes which rows the verification report shows.
const SpotSeed = 42

// Paths locates the two artifacts.
type Paths struct {
	Model   string
	Encoder string
}

// Run is what Train produced.
type Run struct {
	Events   int
	Accounts int
	Table    *encoder.Table
	Samples  []features.Sample
	Artifact *model.Artifact
	Report   *evaluation.Report
}

// Example is the first sample pushed through the freshly trained model.
func (r *Run) Example() (features.Sample, []float64) {
	s := r.Samples[0]
	x := model.Input(r.Table.Encode(s.AccountID), s.Lat, s.Long, s.Hour, s.DayOfWeek)
	return s, r.Artifact.Forest.Predict(x)
}

// Train loads every complaint, fits the encoder over every account seen
// (including single-event accounts that produce no sample), fits the forest
// and writes both artifacts. The returned report scores the model on its
// own training samples.
func Train(ctx context.Context, store complaints.Store, paths Paths, cfg model.Config, logger *slog.Logger) (*Run, error) {
	if logger == nil {
		logger = slog.Default()
	}

	events, err := store.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("load complaints: %w", err)
	}
	features.SortEvents(events)
	table := encoder.Fit(features.AccountIDs(events))
	samples := features.Build(events)
	if len(samples) == 0 {
		return nil, ErrNoTrainingData
	}
	logger.Info("training set built", "events", len(events), "accounts", table.Len(), "samples", len(samples))

	X, Y := Matrix(table, samples)
	start := time.Now()
	forest, err := model.Fit(X, Y, cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("forest trained", "trees", len(forest.Trees), "duration", time.Since(start).Round(time.Millisecond))

	art := model.NewArtifact(forest, cfg, len(samples), time.Now())
	if err := model.SaveArtifact(paths.Model, art); err != nil {
		return nil, err
	}
	if err := table.Save(paths.Encoder); err != nil {
		return nil, err
	}
	logger.Info("artifacts written", "model", paths.Model, "encoder", paths.Encoder)

	report, err := evaluation.Evaluate(forest, table, samples)
	if err != nil {
		return nil, err
	}
	return &Run{
		Events:   len(events),
		Accounts: table.Len(),
		Table:    table,
		Samples:  samples,
		Artifact: art,
		Report:   report,
	}, nil
}

// Verify loads saved artifacts, rebuilds samples from the store and encodes
// them with the saved table, then evaluates every sample.
func Verify(ctx context.Context, store complaints.Store, paths Paths) (*evaluation.Report, error) {
	handle, err := model.Load(paths.Model, paths.Encoder)
	if err != nil {
		return nil, fmt.Errorf("load artifacts (run the train command first): %w", err)
	}
	events, err := store.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("load complaints: %w", err)
	}
	samples := features.Samples(events)
	if len(samples) == 0 {
		return nil, ErrNoTrainingData
	}
	return evaluation.Evaluate(handle.Regressor(), handle.Table(), samples)
}

// Matrix lays samples out as model inputs and targets.
func Matrix(table *encoder.Table, samples []features.Sample) (X, Y [][]float64) {
	X = make([][]float64, len(samples))
	Y = make([][]float64, len(samples))
	for i, s := range samples {
		X[i] = model.Input(table.Encode(s.AccountID), s.Lat, s.Long, s.Hour, s.DayOfWeek)
		Y[i] = []float64{s.NextLat, s.NextLong}
	}
	return X, Y
}

// PrintExample writes the first-sample sanity check.
func PrintExample(w io.Writer, r *Run) {
	s, out := r.Example()
	fmt.Fprintf(w, "Test prediction for %s\n", s.AccountID)
	fmt.Fprintf(w, "  input:     lat=%.4f long=%.4f hour=%d day=%d\n", s.Lat, s.Long, s.Hour, s.DayOfWeek)
	fmt.Fprintf(w, "  predicted: lat=%.4f long=%.4f\n", out[0], out[1])
	fmt.Fprintf(w, "  actual:    lat=%.4f long=%.4f\n", s.NextLat, s.NextLong)
}

// PrintReport writes the accuracy summary followed by spots spot checks.
func PrintReport(w io.Writer, rep *evaluation.Report, spots int) {
	fmt.Fprintf(w, "Evaluated samples: %d\n", rep.Total)
	fmt.Fprintf(w, "Mean error:        %.1f m\n", rep.MeanErrorMeters)
	fmt.Fprintf(w, "Median error:      %.1f m\n", rep.MedianMeters)
	fmt.Fprintf(w, "90th percentile:   %.1f m\n", rep.P90Meters)
	fmt.Fprintf(w, "Worst error:       %.1f m\n", rep.MaxMeters)
	fmt.Fprintf(w, "Rating:            %s\n", rep.Band)
	for i, res := range rep.Spot(spots, SpotSeed) {
		fmt.Fprintf(w, "Spot check %d (%s): actual (%.4f, %.4f) predicted (%.4f, %.4f) off by %.1f m\n",
			i+1, res.Sample.AccountID,
			res.Sample.NextLat, res.Sample.NextLong,
			res.PredictedLat, res.PredictedLong, res.ErrorMeters)
	}
}
