package types

import (
	"errors"

	"github.com/google/uuid"
)

// ResultState is the terminal state of a verification run.
type ResultState string

const (
	// ResultSuccess indicates every producer closed and record counts reconciled.
	ResultSuccess ResultState = "success"
	// ResultTriggered indicates the early-stop trigger ended the run.
	ResultTriggered ResultState = "triggered"
	// ResultFailure indicates a fatal error ended the run.
	ResultFailure ResultState = "failure"
	// ResultInterrupted indicates the channel was forcibly closed before
	// the run could reach any other terminal state.
	ResultInterrupted ResultState = "interrupted"
)

// IsPassing returns true for states that count as a passed verification.
func (s ResultState) IsPassing() bool {
	return s == ResultSuccess || s == ResultTriggered
}

// Outcome describes how a verification run ended.
type Outcome struct {
	// State is the terminal state.
	State ResultState `json:"state" yaml:"state"`
	// Message is a human-readable description.
	Message string `json:"message" yaml:"message"`
	// ErrorKind classifies the captured error for failure and interrupted states.
	ErrorKind *string `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
}

// RunMeta identifies a verification run.
type RunMeta struct {
	// RunID is the run identifier. Must be non-empty.
	RunID string
	// Suite is a caller-defined label grouping related runs.
	Suite string
}

// NewRunMeta creates run metadata with a random run ID.
func NewRunMeta(suite string) *RunMeta {
	return &RunMeta{RunID: uuid.NewString(), Suite: suite}
}

// Validate checks that the run metadata is usable.
func (r *RunMeta) Validate() error {
	if r == nil {
		return errors.New("run metadata is required")
	}
	if r.RunID == "" {
		return errors.New("run_id must be non-empty")
	}
	return nil
}
