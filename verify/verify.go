// Package verify defines the verification capability and early-stop trigger
// consumed by the collector, plus a few ready-made implementations.
//
// The collector calls Verifier.Init once when the first producer opens,
// Receive once per decoded record, and Finish exactly once on every terminal
// path. Records from one producer arrive in order; records from different
// producers interleave arbitrarily, so implementations must not rely on a
// global order unless the pipeline runs a single producer.
package verify

import (
	"errors"
	"fmt"
	"sync"
)

// Verifier asserts properties of the elements a pipeline produced.
type Verifier interface {
	// Init is called once, when the first producer opens.
	Init() error
	// Receive is called once per decoded record. A non-nil error ends the run.
	Receive(elem any) error
	// Finish is called exactly once, last. A non-nil error fails the run
	// even if it otherwise succeeded.
	Finish() error
}

// Predicate matches a single element.
type Predicate func(elem any) bool

// Failure is an assertion-style verification failure.
type Failure struct {
	Msg string
}

func (f *Failure) Error() string {
	return "verification failed: " + f.Msg
}

// Failf returns a *Failure with a formatted message.
func Failf(format string, args ...any) *Failure {
	return &Failure{Msg: fmt.Sprintf(format, args...)}
}

// IsFailure returns true if err is or wraps a *Failure.
func IsFailure(err error) bool {
	var f *Failure
	return errors.As(err, &f)
}

// Funcs adapts closures to a Verifier. Nil funcs are no-ops.
type Funcs struct {
	InitFn    func() error
	ReceiveFn func(elem any) error
	FinishFn  func() error
}

// Init implements Verifier.
func (f Funcs) Init() error {
	if f.InitFn == nil {
		return nil
	}
	return f.InitFn()
}

// Receive implements Verifier.
func (f Funcs) Receive(elem any) error {
	if f.ReceiveFn == nil {
		return nil
	}
	return f.ReceiveFn(elem)
}

// Finish implements Verifier.
func (f Funcs) Finish() error {
	if f.FinishFn == nil {
		return nil
	}
	return f.FinishFn()
}

// Collector keeps every received element and optionally checks the full
// list in Finish.
type Collector struct {
	mu    sync.Mutex
	elems []any
	check func(elems []any) error
}

// Collect returns a Collector. check may be nil.
func Collect(check func(elems []any) error) *Collector {
	return &Collector{check: check}
}

// Init implements Verifier.
func (c *Collector) Init() error { return nil }

// Receive implements Verifier.
func (c *Collector) Receive(elem any) error {
	c.mu.Lock()
	c.elems = append(c.elems, elem)
	c.mu.Unlock()
	return nil
}

// Finish implements Verifier.
func (c *Collector) Finish() error {
	if c.check == nil {
		return nil
	}
	return c.check(c.Elements())
}

// Elements returns a copy of the received elements in arrival order.
func (c *Collector) Elements() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]any, len(c.elems))
	copy(out, c.elems)
	return out
}

// CountVerifier asserts an exact number of records.
type CountVerifier struct {
	want int
	got  int
}

// Count returns a verifier expecting exactly n records.
func Count(n int) *CountVerifier {
	return &CountVerifier{want: n}
}

// Init implements Verifier.
func (c *CountVerifier) Init() error { return nil }

// Receive implements Verifier. It fails as soon as the count is exceeded.
func (c *CountVerifier) Receive(any) error {
	c.got++
	if c.got > c.want {
		return Failf("expected %d records, received at least %d", c.want, c.got)
	}
	return nil
}

// Finish implements Verifier.
func (c *CountVerifier) Finish() error {
	if c.got != c.want {
		return Failf("expected %d records, received %d", c.want, c.got)
	}
	return nil
}

// Received returns the number of records seen so far.
func (c *CountVerifier) Received() int {
	return c.got
}

var (
	_ Verifier = Funcs{}
	_ Verifier = (*Collector)(nil)
	_ Verifier = (*CountVerifier)(nil)
)
