// Package channel provides the transport between producer instances and the
// collector: any number of publishers, exactly one subscriber.
//
// Receive distinguishes three outcomes: a message, ErrClosed (the transport
// ended normally) and ErrInterrupted (the transport was forcibly closed, for
// example by a deadline). Per-publisher send order is preserved; no order is
// promised across publishers.
package channel

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by Receive when the transport ended normally.
	ErrClosed = errors.New("channel closed")
	// ErrInterrupted is returned by Receive when the transport was forcibly
	// closed while the subscriber was still reading.
	ErrInterrupted = errors.New("channel interrupted")
	// ErrPublisherClosed is returned by Publish after the publisher was closed.
	ErrPublisherClosed = errors.New("publisher closed")
)

// Subscriber is the single consumer endpoint.
type Subscriber interface {
	// Receive blocks until a message is available or the transport ends.
	// Context cancellation counts as an interruption.
	Receive(ctx context.Context) ([]byte, error)
	// Close releases the subscriber. The collector calls it exactly once.
	Close() error
}

// Publisher is one producer endpoint.
type Publisher interface {
	Publish(ctx context.Context, msg []byte) error
	Close() error
}

// Interrupter is implemented by subscribers that support forced closure
// from another goroutine.
type Interrupter interface {
	Interrupt()
}

// IsClosed returns true if err reports a normal end of the transport.
func IsClosed(err error) bool {
	return errors.Is(err, ErrClosed)
}

// IsInterrupted returns true if err reports a forced closure.
func IsInterrupted(err error) bool {
	return errors.Is(err, ErrInterrupted)
}

// Interrupted wraps cause as an interruption. Transports use it to map
// context cancellation and deadlines.
func Interrupted(cause error) error {
	if cause == nil {
		return ErrInterrupted
	}
	return fmt.Errorf("%w: %w", ErrInterrupted, cause)
}
