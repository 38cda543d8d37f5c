package adapter

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/pithecene-io/tally/runtime"
	"github.com/pithecene-io/tally/types"
)

func TestNewEvent(t *testing.T) {
	kind := "consistency_error"
	result := &runtime.Result{
		RunMeta: &types.RunMeta{RunID: "run-001", Suite: "wordcount"},
		Outcome: &types.Outcome{
			State:     types.ResultFailure,
			Message:   "only 1 of 2 producers opened",
			ErrorKind: &kind,
		},
		Stats:    runtime.Stats{Parallelism: 2, RecordsReceived: 3, RecordsExpected: 3},
		Duration: 1500 * time.Millisecond,
	}
	now := time.Date(2026, 2, 7, 12, 0, 0, 0, time.FixedZone("X", 3600))

	got := NewEvent(result, "file:///reports/run-001", now)
	want := &VerificationCompletedEvent{
		Version:         types.Version,
		EventType:       "verification_completed",
		RunID:           "run-001",
		Suite:           "wordcount",
		State:           "failure",
		Message:         "only 1 of 2 producers opened",
		ErrorKind:       "consistency_error",
		Parallelism:     2,
		RecordsReceived: 3,
		RecordsExpected: 3,
		ReportPath:      "file:///reports/run-001",
		Timestamp:       "2026-02-07T11:00:00Z",
		DurationMs:      1500,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("event mismatch (-want +got):\n%s", diff)
	}
}

func TestNewEvent_Success(t *testing.T) {
	result := &runtime.Result{
		RunMeta: &types.RunMeta{RunID: "run-002"},
		Outcome: &types.Outcome{State: types.ResultSuccess, Message: "ok"},
	}
	got := NewEvent(result, "", time.Now())
	if got.ErrorKind != "" || got.ReportPath != "" || got.Suite != "" {
		t.Errorf("optional fields should be empty: %+v", got)
	}
	if got.State != "success" {
		t.Errorf("State = %q", got.State)
	}
}
