package model

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"time"
)

const artifactFormat = "muletrace.forest/v1"

// InputNames fixes the order of the five model inputs.
var InputNames = []string{"mule_id_encoded", "withdrawal_lat", "withdrawal_long", "hour", "day_of_week"}

// OutputNames fixes the order of the two model outputs.
var OutputNames = []string{"next_lat", "next_long"}

// Artifact is the on-disk form of a trained forest.
type Artifact struct {
	Format    string    `json:"format"`
	Inputs    []string  `json:"inputs"`
	Outputs   []string  `json:"outputs"`
	Config    Config    `json:"config"`
	Samples   int       `json:"samples"`
	TrainedAt time.Time `json:"trained_at"`
	Forest    *Forest   `json:"forest"`
}

// NewArtifact wraps a forest trained on the next-location contract.
func NewArtifact(f *Forest, cfg Config, samples int, trainedAt time.Time) *Artifact {
	return &Artifact{
		Format:    artifactFormat,
		Inputs:    InputNames,
		Outputs:   OutputNames,
		Config:    cfg,
		Samples:   samples,
		TrainedAt: trainedAt.UTC(),
		Forest:    f,
	}
}

// Validate rejects artifacts that do not follow the 5-in / 2-out contract.
func (a *Artifact) Validate() error {
	if a.Format != artifactFormat {
		return fmt.Errorf("model: unsupported artifact format %q", a.Format)
	}
	if !slices.Equal(a.Inputs, InputNames) || !slices.Equal(a.Outputs, OutputNames) {
		return fmt.Errorf("model: artifact inputs %v / outputs %v do not match %v / %v",
			a.Inputs, a.Outputs, InputNames, OutputNames)
	}
	if a.Forest == nil {
		return fmt.Errorf("model: artifact has no forest")
	}
	if err := a.Forest.Validate(); err != nil {
		return err
	}
	if a.Forest.Inputs != len(InputNames) || a.Forest.Outputs != len(OutputNames) {
		return fmt.Errorf("model: forest shape %dx%d does not match contract", a.Forest.Inputs, a.Forest.Outputs)
	}
	return nil
}

// SaveArtifact writes a as JSON.
func SaveArtifact(path string, a *Artifact) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode model artifact: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { // #nosec G306 -- artifact is not secret
		return fmt.Errorf("write model artifact: %w", err)
	}
	return nil
}

// LoadArtifact reads and validates an artifact written by SaveArtifact.
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-configured artifact path
	if err != nil {
		return nil, fmt.Errorf("read model artifact: %w", err)
	}
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode model artifact: %w", err)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}
