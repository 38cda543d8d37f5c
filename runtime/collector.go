// Package runtime drives a verification run: it consumes OPEN/REC/CLOSE
// messages from a channel, feeds decoded records to a verifier, consults an
// early-stop trigger and decides when and how the run ends.
//
// Terminal states:
//   - success: every announced producer opened and closed, and the records
//     received equal the sum of the counts the producers reported
//   - triggered: the trigger fired after a verified record
//   - failure: a protocol, decode, consistency, transport or verification error
//   - interrupted: the channel was forcibly closed first
//
// On every terminal path the subscriber is closed exactly once and
// Verifier.Finish is called exactly once. A Finish error takes precedence
// over whatever ended the run.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/pithecene-io/tally/channel"
	"github.com/pithecene-io/tally/log"
	"github.com/pithecene-io/tally/metrics"
	"github.com/pithecene-io/tally/serde"
	"github.com/pithecene-io/tally/types"
	"github.com/pithecene-io/tally/verify"
	"github.com/pithecene-io/tally/wire"
)

// Config configures a verification run.
type Config struct {
	// Subscriber is the consuming end of the channel (required).
	// The collector owns it and closes it when the run ends.
	Subscriber channel.Subscriber
	// Verifier asserts properties of the received records (required).
	Verifier verify.Verifier
	// Trigger may end the run early. If nil, the run never stops early.
	Trigger verify.Trigger
	// RunMeta identifies the run. If nil, a random run ID is generated.
	RunMeta *types.RunMeta
	// Logger receives lifecycle logs. If nil, logs go to stderr.
	Logger *log.Logger
	// Metrics is the per-run metrics collector.
	// If nil, no metrics are recorded (all Collector methods are nil-safe).
	Metrics *metrics.Collector
	// ParallelismPolicy handles mismatched parallelism announcements.
	ParallelismPolicy ParallelismPolicy
	// InterruptPolicy decides whether a forced channel closure is an error.
	InterruptPolicy InterruptPolicy
}

// Stats is the final aggregation state of a run.
type Stats struct {
	// Participating is the number of producers that sent OPEN.
	Participating int `json:"participating" yaml:"participating"`
	// Closed is the number of producers that sent CLOSE.
	Closed int `json:"closed" yaml:"closed"`
	// Parallelism is the announced producer count (0 if no OPEN arrived).
	Parallelism int `json:"parallelism" yaml:"parallelism"`
	// RecordsReceived is the number of decoded records.
	RecordsReceived int `json:"records_received" yaml:"records_received"`
	// RecordsExpected is the sum of the counts reported in CLOSE messages.
	RecordsExpected int `json:"records_expected" yaml:"records_expected"`
	// Messages is the number of messages taken off the channel.
	Messages int `json:"messages" yaml:"messages"`
}

// Result is the outcome of a verification run.
type Result struct {
	// RunMeta is the run identity.
	RunMeta *types.RunMeta
	// Outcome is the terminal state and its description.
	Outcome *types.Outcome
	// Stats is the final aggregation state.
	Stats Stats
	// Duration is the total run duration.
	Duration time.Duration
	// Err is the error that ended the run, if any. It is set for failure
	// and interrupted states regardless of the interrupt policy.
	Err error
}

// Collector runs one verification.
type Collector struct {
	config  *Config
	logger  *log.Logger
	trigger verify.Trigger
	started atomic.Bool
}

// NewCollector validates the config and creates a collector.
func NewCollector(config *Config) (*Collector, error) {
	if config == nil {
		return nil, errors.New("collector config is required")
	}
	if config.Subscriber == nil {
		return nil, errors.New("collector requires a subscriber")
	}
	if config.Verifier == nil {
		return nil, errors.New("collector requires a verifier")
	}
	switch config.ParallelismPolicy {
	case ParallelismStrict, ParallelismLastWins:
	default:
		return nil, fmt.Errorf("invalid parallelism policy: %s", config.ParallelismPolicy)
	}
	switch config.InterruptPolicy {
	case InterruptFail, InterruptInconclusive:
	default:
		return nil, fmt.Errorf("invalid interrupt policy: %s", config.InterruptPolicy)
	}

	if config.RunMeta == nil {
		config.RunMeta = types.NewRunMeta("")
	}
	if err := config.RunMeta.Validate(); err != nil {
		return nil, fmt.Errorf("invalid run metadata: %w", err)
	}

	logger := config.Logger
	if logger == nil {
		logger = log.NewLogger(config.RunMeta)
	}
	trigger := config.Trigger
	if trigger == nil {
		trigger = verify.Never()
	}

	return &Collector{
		config:  config,
		logger:  logger,
		trigger: trigger,
	}, nil
}

// terminal is the state the consume loop ended in.
type terminal int

const (
	terminalFinished terminal = iota
	terminalStopped
	terminalFailed
	terminalInterrupted
)

// state is the aggregation state of one run. Only the consume loop
// touches it.
type state struct {
	participating map[int]struct{}
	closed        map[int]struct{}
	parallelism   int
	received      int
	expected      int
	messages      int
	decoder       serde.Decoder
	initialized   bool
}

func newState() *state {
	return &state{
		participating: make(map[int]struct{}),
		closed:        make(map[int]struct{}),
	}
}

func (s *state) stats() Stats {
	return Stats{
		Participating:   len(s.participating),
		Closed:          len(s.closed),
		Parallelism:     s.parallelism,
		RecordsReceived: s.received,
		RecordsExpected: s.expected,
		Messages:        s.messages,
	}
}

// Run consumes the channel until the run reaches a terminal state.
//
// The returned result is non-nil whenever the run started. The error is
// the captured fatal error for failure, and for interrupted when the
// interrupt policy is InterruptFail.
func (c *Collector) Run(ctx context.Context) (*Result, error) {
	if !c.started.CompareAndSwap(false, true) {
		return nil, errors.New("collector already ran")
	}

	start := time.Now()
	c.config.Metrics.IncRunStarted()
	c.logger.Info("verification started", map[string]any{
		"parallelism_policy": c.config.ParallelismPolicy.String(),
		"interrupt_policy":   c.config.InterruptPolicy.String(),
	})

	st := newState()
	term, runErr := c.consume(ctx, st)

	if err := c.config.Subscriber.Close(); err != nil {
		c.logger.Warn("subscriber close failed", map[string]any{
			"error": err.Error(),
		})
	}

	if err := c.config.Verifier.Finish(); err != nil {
		c.config.Metrics.IncVerificationFailure()
		if runErr != nil {
			c.logger.Warn("finish failure supersedes earlier error", map[string]any{
				"superseded": runErr.Error(),
			})
		}
		term = terminalFailed
		runErr = &Error{Kind: ErrorVerification, Err: fmt.Errorf("finish: %w", err)}
	}

	result := &Result{
		RunMeta:  c.config.RunMeta,
		Outcome:  c.outcome(term, runErr, st),
		Stats:    st.stats(),
		Duration: time.Since(start),
		Err:      runErr,
	}
	c.record(result)

	switch term {
	case terminalFailed:
		return result, runErr
	case terminalInterrupted:
		if c.config.InterruptPolicy == InterruptFail {
			return result, runErr
		}
	}
	return result, nil
}

// consume is the single-threaded consume loop. Receive is its only
// suspension point.
func (c *Collector) consume(ctx context.Context, st *state) (terminal, error) {
	for {
		payload, err := c.config.Subscriber.Receive(ctx)
		if err != nil {
			return c.receiveFailed(st, err)
		}
		st.messages++
		c.config.Metrics.IncMessage()

		msg, err := wire.Decode(payload)
		if err != nil {
			c.config.Metrics.IncProtocolError()
			c.logger.Error("message decode error", map[string]any{
				"error":   err.Error(),
				"message": st.messages,
			})
			return terminalFailed, &Error{Kind: ErrorProtocol, Err: fmt.Errorf("message %d: %w", st.messages, err)}
		}

		stopped, err := c.process(st, msg)
		if err != nil {
			return terminalFailed, err
		}
		if stopped {
			return terminalStopped, nil
		}

		done, err := c.reconciled(st)
		if err != nil {
			return terminalFailed, err
		}
		if done {
			return terminalFinished, nil
		}
	}
}

func (c *Collector) receiveFailed(st *state, err error) (terminal, error) {
	switch {
	case channel.IsInterrupted(err):
		c.logger.Warn("channel interrupted", map[string]any{
			"error":            err.Error(),
			"records_received": st.received,
			"records_expected": st.expected,
			"closed":           len(st.closed),
			"parallelism":      st.parallelism,
		})
		return terminalInterrupted, &Error{Kind: ErrorInterrupted, Err: err}

	case channel.IsClosed(err):
		c.config.Metrics.IncProtocolError()
		return terminalFailed, newError(ErrorProtocol,
			"channel closed before all producers reported: %d/%d closed, %d/%d records",
			len(st.closed), st.parallelism, st.received, st.expected)

	case wire.IsFrameError(err):
		c.config.Metrics.IncProtocolError()
		c.logger.Error("frame error", map[string]any{
			"error": err.Error(),
		})
		return terminalFailed, &Error{Kind: ErrorProtocol, Err: fmt.Errorf("frame error: %w", err)}

	default:
		c.logger.Error("channel receive failed", map[string]any{
			"error": err.Error(),
		})
		return terminalFailed, &Error{Kind: ErrorTransport, Err: fmt.Errorf("receive: %w", err)}
	}
}

// process applies one message. It reports whether the trigger fired.
func (c *Collector) process(st *state, msg types.Message) (bool, error) {
	switch msg.Kind {
	case types.KindOpen:
		return false, c.handleOpen(st, msg.Open)
	case types.KindRecord:
		return c.handleRecord(st, msg.Record)
	case types.KindClose:
		return false, c.handleClose(st, msg.Close)
	default:
		c.config.Metrics.IncProtocolError()
		return false, newError(ErrorProtocol, "unexpected message kind %q", msg.Kind)
	}
}

func (c *Collector) handleOpen(st *state, open *types.Open) error {
	idx := open.ProducerIndex
	if _, again := st.participating[idx]; again {
		// A restarted producer opens again; participation is a set.
		c.logger.Warn("repeated OPEN from producer", map[string]any{
			"producer_index": idx,
		})
	}

	if st.parallelism != 0 && open.Parallelism != st.parallelism {
		if c.config.ParallelismPolicy == ParallelismStrict {
			c.config.Metrics.IncProtocolError()
			return newError(ErrorProtocol, "producer %d announced parallelism %d, expected %d",
				idx, open.Parallelism, st.parallelism)
		}
		c.logger.Warn("parallelism changed", map[string]any{
			"producer_index": idx,
			"previous":       st.parallelism,
			"announced":      open.Parallelism,
		})
	}
	st.parallelism = open.Parallelism

	for closedIdx := range st.closed {
		if closedIdx >= st.parallelism {
			c.config.Metrics.IncProtocolError()
			return newError(ErrorProtocol, "producer %d closed but parallelism is %d", closedIdx, st.parallelism)
		}
	}

	if !st.initialized {
		st.initialized = true
		if err := c.config.Verifier.Init(); err != nil {
			c.config.Metrics.IncVerificationFailure()
			return &Error{Kind: ErrorVerification, Err: fmt.Errorf("init: %w", err)}
		}
	}

	st.participating[idx] = struct{}{}
	c.config.Metrics.IncOpen()

	if len(open.Descriptor) > 0 {
		if st.decoder == nil {
			dec, err := serde.NewDecoder(open.Descriptor)
			if err != nil {
				c.config.Metrics.IncDecodeError()
				return &Error{Kind: ErrorDecode, Err: fmt.Errorf("producer %d descriptor: %w", idx, err)}
			}
			st.decoder = dec
		} else {
			c.logger.Debug("ignoring descriptor, decoder already established", map[string]any{
				"producer_index": idx,
			})
		}
	}

	c.logger.Info("producer opened", map[string]any{
		"producer_index": idx,
		"parallelism":    st.parallelism,
		"participating":  len(st.participating),
	})
	return nil
}

func (c *Collector) handleRecord(st *state, rec *types.Record) (bool, error) {
	if st.decoder == nil {
		c.config.Metrics.IncDecodeError()
		return false, newError(ErrorDecode, "record received before any decoder was established")
	}

	elem, err := st.decoder.Decode(rec.Payload)
	if err != nil {
		c.config.Metrics.IncDecodeError()
		return false, &Error{Kind: ErrorDecode, Err: fmt.Errorf("record %d: %w", st.received+1, err)}
	}
	st.received++
	c.config.Metrics.IncRecord()

	if err := c.config.Verifier.Receive(elem); err != nil {
		c.config.Metrics.IncVerificationFailure()
		c.logger.Error("verification failed", map[string]any{
			"record": st.received,
			"error":  err.Error(),
		})
		return false, &Error{Kind: ErrorVerification, Err: fmt.Errorf("record %d: %w", st.received, err)}
	}

	if c.trigger.OnRecord(elem) || c.trigger.OnRecordCount(st.received) {
		c.logger.Info("trigger fired", map[string]any{
			"records_received": st.received,
		})
		return true, nil
	}
	return false, nil
}

func (c *Collector) handleClose(st *state, cl *types.Close) error {
	idx := cl.ProducerIndex
	if _, again := st.closed[idx]; again {
		// Its count still adds to the expected total: a restarted producer
		// resends its records too.
		c.logger.Warn("repeated CLOSE from producer", map[string]any{
			"producer_index": idx,
			"record_count":   cl.RecordCount,
		})
	}
	if st.parallelism != 0 && idx >= st.parallelism {
		c.config.Metrics.IncProtocolError()
		return newError(ErrorProtocol, "producer %d closed but parallelism is %d", idx, st.parallelism)
	}
	if _, opened := st.participating[idx]; !opened {
		c.logger.Warn("close from producer that never opened", map[string]any{
			"producer_index": idx,
		})
	}

	if cl.RecordCount > math.MaxInt-st.expected {
		c.config.Metrics.IncProtocolError()
		return newError(ErrorProtocol, "producer %d record count %d overflows the expected total %d",
			idx, cl.RecordCount, st.expected)
	}
	st.expected += cl.RecordCount
	st.closed[idx] = struct{}{}
	c.config.Metrics.IncClose()

	c.logger.Info("producer closed", map[string]any{
		"producer_index":   idx,
		"record_count":     cl.RecordCount,
		"closed":           len(st.closed),
		"records_expected": st.expected,
	})
	return nil
}

// reconciled checks the termination condition: every announced producer
// closed and the received record count matches the reported total.
func (c *Collector) reconciled(st *state) (bool, error) {
	if st.parallelism == 0 || len(st.closed) != st.parallelism || st.received != st.expected {
		return false, nil
	}
	if len(st.participating) < st.parallelism {
		c.config.Metrics.IncConsistencyError()
		return false, newError(ErrorConsistency,
			"%d producers closed and %d records reconciled, but only %d of %d producers opened",
			len(st.closed), st.received, len(st.participating), st.parallelism)
	}
	return true, nil
}

func (c *Collector) outcome(term terminal, err error, st *state) *types.Outcome {
	switch term {
	case terminalFinished:
		return &types.Outcome{
			State:   types.ResultSuccess,
			Message: fmt.Sprintf("all %d producers closed, %d records verified", st.parallelism, st.received),
		}
	case terminalStopped:
		return &types.Outcome{
			State:   types.ResultTriggered,
			Message: fmt.Sprintf("trigger fired after %d records", st.received),
		}
	case terminalInterrupted:
		return &types.Outcome{
			State: types.ResultInterrupted,
			Message: fmt.Sprintf("channel interrupted after %d records (%d/%d producers closed)",
				st.received, len(st.closed), st.parallelism),
			ErrorKind: errorKind(err),
		}
	default:
		msg := "verification failed"
		if err != nil {
			msg = err.Error()
		}
		return &types.Outcome{
			State:     types.ResultFailure,
			Message:   msg,
			ErrorKind: errorKind(err),
		}
	}
}

func errorKind(err error) *string {
	kind, ok := kindOf(err)
	if !ok {
		return nil
	}
	s := kind.String()
	return &s
}

func (c *Collector) record(result *Result) {
	fields := map[string]any{
		"state":            string(result.Outcome.State),
		"message":          result.Outcome.Message,
		"records_received": result.Stats.RecordsReceived,
		"records_expected": result.Stats.RecordsExpected,
		"duration_ms":      result.Duration.Milliseconds(),
	}

	switch result.Outcome.State {
	case types.ResultSuccess:
		c.config.Metrics.IncRunSucceeded()
		c.logger.Info("verification finished", fields)
	case types.ResultTriggered:
		c.config.Metrics.IncRunTriggered()
		c.logger.Info("verification finished", fields)
	case types.ResultInterrupted:
		c.config.Metrics.IncRunInterrupted()
		c.logger.Warn("verification finished", fields)
	default:
		c.config.Metrics.IncRunFailed()
		c.logger.Error("verification finished", fields)
	}
}
