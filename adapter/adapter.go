// Package adapter defines the notification boundary for finished
// verification runs.
//
// Adapters publish a completion event to a downstream system (a Redis
// channel, an HTTP endpoint). The CLI owns adapter lifecycle; users provide
// configuration only.
package adapter

import (
	"context"
	"time"

	"github.com/pithecene-io/tally/runtime"
	"github.com/pithecene-io/tally/types"
)

// EventTypeVerificationCompleted is the event_type of every completion event.
const EventTypeVerificationCompleted = "verification_completed"

// VerificationCompletedEvent is the payload published when a run finishes.
type VerificationCompletedEvent struct {
	Version         string `json:"version"`
	EventType       string `json:"event_type"` // always "verification_completed"
	RunID           string `json:"run_id"`
	Suite           string `json:"suite,omitempty"`
	State           string `json:"state"` // success, triggered, failure, interrupted
	Message         string `json:"message"`
	ErrorKind       string `json:"error_kind,omitempty"`
	Parallelism     int    `json:"parallelism"`
	RecordsReceived int    `json:"records_received"`
	RecordsExpected int    `json:"records_expected"`
	ReportPath      string `json:"report_path,omitempty"`
	Timestamp       string `json:"timestamp"` // RFC 3339
	DurationMs      int64  `json:"duration_ms"`
}

// NewEvent builds the completion event for result. reportPath is the
// archive location of the report, empty when no archive is configured.
func NewEvent(result *runtime.Result, reportPath string, now time.Time) *VerificationCompletedEvent {
	event := &VerificationCompletedEvent{
		Version:         types.Version,
		EventType:       EventTypeVerificationCompleted,
		Parallelism:     result.Stats.Parallelism,
		RecordsReceived: result.Stats.RecordsReceived,
		RecordsExpected: result.Stats.RecordsExpected,
		ReportPath:      reportPath,
		Timestamp:       now.UTC().Format(time.RFC3339),
		DurationMs:      result.Duration.Milliseconds(),
	}
	if result.RunMeta != nil {
		event.RunID = result.RunMeta.RunID
		event.Suite = result.RunMeta.Suite
	}
	if result.Outcome != nil {
		event.State = string(result.Outcome.State)
		event.Message = result.Outcome.Message
		if result.Outcome.ErrorKind != nil {
			event.ErrorKind = *result.Outcome.ErrorKind
		}
	}
	return event
}

// Adapter publishes completion events to a downstream system.
// Implementations must be safe for single-use per run.
type Adapter interface {
	// Publish sends a completion event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *VerificationCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}
