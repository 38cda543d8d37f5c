// Package producer implements the sending side of the collection protocol:
// each producer (sink instance) sends OPEN once, REC per element and CLOSE
// with the number of records it sent.
package producer

import (
	"context"
	"errors"
	"fmt"

	"github.com/pithecene-io/tally/channel"
	"github.com/pithecene-io/tally/serde"
	"github.com/pithecene-io/tally/types"
	"github.com/pithecene-io/tally/wire"
)

var (
	// ErrNotOpen is returned by Emit before Open.
	ErrNotOpen = errors.New("producer not open")
	// ErrAlreadyOpen is returned by a second Open.
	ErrAlreadyOpen = errors.New("producer already open")
	// ErrClosed is returned by any call after Close or Abort.
	ErrClosed = errors.New("producer closed")
)

// Option configures an Emitter.
type Option func(*options)

type options struct {
	codec          string
	typeName       string
	descriptorOnce bool
}

// WithCodec selects the element codec (default msgpack) and the type name
// recorded in the descriptor.
func WithCodec(codec, typeName string) Option {
	return func(o *options) {
		o.codec = codec
		o.typeName = typeName
	}
}

// WithDescriptorFromFirst sends the serializer descriptor only from
// producer 0. Records from other producers that reach the collector before
// producer 0's OPEN then fail to decode, so this only suits transports
// where producer 0 is known to open first.
func WithDescriptorFromFirst() Option {
	return func(o *options) { o.descriptorOnce = true }
}

// Emitter is one producer endpoint. It is not safe for concurrent use.
type Emitter struct {
	pub         channel.Publisher
	index       int
	parallelism int
	descriptor  []byte
	enc         serde.Encoder

	count  int
	opened bool
	closed bool
}

// NewEmitter creates an emitter for producer index out of parallelism,
// sending through pub. The emitter owns pub and closes it.
func NewEmitter(pub channel.Publisher, index, parallelism int, opts ...Option) (*Emitter, error) {
	if pub == nil {
		return nil, errors.New("emitter requires a publisher")
	}
	if parallelism < 1 {
		return nil, fmt.Errorf("parallelism must be >= 1, got %d", parallelism)
	}
	if index < 0 || index >= parallelism {
		return nil, fmt.Errorf("producer index %d out of range [0, %d)", index, parallelism)
	}

	o := options{codec: serde.CodecMsgpack}
	for _, opt := range opts {
		opt(&o)
	}

	enc, err := serde.NewEncoder(o.codec)
	if err != nil {
		return nil, err
	}

	var descriptor []byte
	if !o.descriptorOnce || index == 0 {
		descriptor, err = serde.Describe(o.codec, o.typeName)
		if err != nil {
			return nil, err
		}
	}

	return &Emitter{
		pub:         pub,
		index:       index,
		parallelism: parallelism,
		descriptor:  descriptor,
		enc:         enc,
	}, nil
}

// Index returns the producer index.
func (e *Emitter) Index() int { return e.index }

// Count returns the number of records sent so far.
func (e *Emitter) Count() int { return e.count }

// Open announces the producer.
func (e *Emitter) Open(ctx context.Context) error {
	switch {
	case e.closed:
		return ErrClosed
	case e.opened:
		return ErrAlreadyOpen
	}
	if err := e.send(ctx, types.NewOpen(e.index, e.parallelism, e.descriptor)); err != nil {
		return fmt.Errorf("open: %w", err)
	}
	e.opened = true
	return nil
}

// Emit encodes elem and sends it as a record.
func (e *Emitter) Emit(ctx context.Context, elem any) error {
	payload, err := e.enc.Encode(elem)
	if err != nil {
		return fmt.Errorf("encode record %d: %w", e.count+1, err)
	}
	return e.EmitRaw(ctx, payload)
}

// EmitRaw sends an already encoded record.
func (e *Emitter) EmitRaw(ctx context.Context, payload []byte) error {
	switch {
	case e.closed:
		return ErrClosed
	case !e.opened:
		return ErrNotOpen
	}
	if err := e.send(ctx, types.NewRecord(payload)); err != nil {
		return fmt.Errorf("record %d: %w", e.count+1, err)
	}
	e.count++
	return nil
}

// Close reports the record count and releases the publisher. Closing a
// producer that never opened still sends CLOSE, which the collector
// detects as a consistency problem.
func (e *Emitter) Close(ctx context.Context) error {
	if e.closed {
		return ErrClosed
	}
	e.closed = true
	sendErr := e.send(ctx, types.NewClose(e.index, e.count))
	if sendErr != nil {
		sendErr = fmt.Errorf("close: %w", sendErr)
	}
	return errors.Join(sendErr, e.pub.Close())
}

// Abort releases the publisher without sending CLOSE, as a crashed
// producer would.
func (e *Emitter) Abort() error {
	if e.closed {
		return nil
	}
	e.closed = true
	return e.pub.Close()
}

func (e *Emitter) send(ctx context.Context, msg types.Message) error {
	b, err := wire.Encode(msg)
	if err != nil {
		return err
	}
	return e.pub.Publish(ctx, b)
}
