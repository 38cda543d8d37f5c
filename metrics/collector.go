// Package metrics provides per-run metrics collection.
//
// The Collector accumulates counters during a single verification run. It is
// a leaf package with no internal dependencies.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all counters.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Run lifecycle
	RunsStarted     int64
	RunsSucceeded   int64
	RunsTriggered   int64
	RunsFailed      int64
	RunsInterrupted int64

	// Consumption
	MessagesReceived int64
	OpensReceived    int64
	RecordsReceived  int64
	ClosesReceived   int64

	// Errors
	ProtocolErrors       int64
	DecodeErrors         int64
	ConsistencyErrors    int64
	VerificationFailures int64

	// Archive
	ArchiveWriteSuccess int64
	ArchiveWriteFailure int64

	// Notifications
	NotifySuccess int64
	NotifyFailure int64

	// Dimensions (informational, set at construction)
	Transport      string
	ArchiveBackend string
	RunID          string
	Suite          string
}

// Collector accumulates metrics during a single run.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	// counters and dimensions share the snapshot layout
	s Snapshot
}

// NewCollector creates a Collector with dimension labels.
// archiveBackend may be empty when no archive is configured.
func NewCollector(transport, archiveBackend, runID, suite string) *Collector {
	return &Collector{s: Snapshot{
		Transport:      transport,
		ArchiveBackend: archiveBackend,
		RunID:          runID,
		Suite:          suite,
	}}
}

// --- Run lifecycle ---

// IncRunStarted records a run start.
func (c *Collector) IncRunStarted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.s.RunsStarted++
	c.mu.Unlock()
}

// IncRunSucceeded records a run that reconciled every producer.
func (c *Collector) IncRunSucceeded() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.s.RunsSucceeded++
	c.mu.Unlock()
}

// IncRunTriggered records a run ended by the early-stop trigger.
func (c *Collector) IncRunTriggered() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.s.RunsTriggered++
	c.mu.Unlock()
}

// IncRunFailed records a failed run.
func (c *Collector) IncRunFailed() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.s.RunsFailed++
	c.mu.Unlock()
}

// IncRunInterrupted records a run whose channel was forcibly closed.
func (c *Collector) IncRunInterrupted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.s.RunsInterrupted++
	c.mu.Unlock()
}

// --- Consumption ---

// IncMessage records one message taken off the channel, decodable or not.
func (c *Collector) IncMessage() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.s.MessagesReceived++
	c.mu.Unlock()
}

// IncOpen records a processed OPEN message.
func (c *Collector) IncOpen() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.s.OpensReceived++
	c.mu.Unlock()
}

// IncRecord records a decoded record.
func (c *Collector) IncRecord() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.s.RecordsReceived++
	c.mu.Unlock()
}

// IncClose records a processed CLOSE message.
func (c *Collector) IncClose() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.s.ClosesReceived++
	c.mu.Unlock()
}

// --- Errors ---

// IncProtocolError records a malformed or out-of-order message.
func (c *Collector) IncProtocolError() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.s.ProtocolErrors++
	c.mu.Unlock()
}

// IncDecodeError records a record that could not be decoded.
func (c *Collector) IncDecodeError() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.s.DecodeErrors++
	c.mu.Unlock()
}

// IncConsistencyError records a reconciliation mismatch.
func (c *Collector) IncConsistencyError() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.s.ConsistencyErrors++
	c.mu.Unlock()
}

// IncVerificationFailure records a failure reported by the verifier.
func (c *Collector) IncVerificationFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.s.VerificationFailures++
	c.mu.Unlock()
}

// --- Archive ---

// IncArchiveWriteSuccess records a successful report write.
func (c *Collector) IncArchiveWriteSuccess() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.s.ArchiveWriteSuccess++
	c.mu.Unlock()
}

// IncArchiveWriteFailure records a failed report write.
func (c *Collector) IncArchiveWriteFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.s.ArchiveWriteFailure++
	c.mu.Unlock()
}

// --- Notifications ---

// IncNotifySuccess records a delivered completion notification.
func (c *Collector) IncNotifySuccess() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.s.NotifySuccess++
	c.mu.Unlock()
}

// IncNotifyFailure records a failed completion notification.
func (c *Collector) IncNotifyFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.s.NotifyFailure++
	c.mu.Unlock()
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
// The Collector can continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.s
}
