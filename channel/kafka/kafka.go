// Package kafka implements the collector channel over a Kafka topic.
//
// Publishers key every message with their producer index and write through
// a hash balancer, so all messages of one producer land on one partition
// and keep their order. The subscriber reads the topic from the first
// offset; a topic should be dedicated to a single verification run.
//
// Like any broker-backed transport the subscriber never reports a normal
// close. Interrupt, Close, a canceled context, and a closed reader all
// surface as interruptions.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/pithecene-io/tally/channel"
)

// Defaults applied by Config.withDefaults.
const (
	DefaultGroupPrefix  = "tally-"
	DefaultMinBytes     = 1
	DefaultMaxBytes     = 10e6
	DefaultBatchTimeout = 10 * time.Millisecond
)

// Config configures a Kafka channel endpoint.
type Config struct {
	// Brokers is the bootstrap broker list (required).
	Brokers []string
	// Topic carries the messages of one verification run (required).
	Topic string
	// GroupID is the consumer group (default: "tally-" + Topic).
	GroupID string
	// MinBytes and MaxBytes bound reader fetches.
	MinBytes int
	MaxBytes int
	// BatchTimeout bounds how long the writer waits to fill a batch.
	BatchTimeout time.Duration
}

// Validate reports missing required fields.
func (c Config) Validate() error {
	if len(c.Brokers) == 0 {
		return errors.New("kafka channel requires at least one broker")
	}
	for _, b := range c.Brokers {
		if b == "" {
			return errors.New("kafka channel: empty broker address")
		}
	}
	if c.Topic == "" {
		return errors.New("kafka channel requires a topic")
	}
	if c.MinBytes < 0 || c.MaxBytes < 0 {
		return fmt.Errorf("kafka channel: fetch bounds must be >= 0, got min=%d max=%d", c.MinBytes, c.MaxBytes)
	}
	if c.MaxBytes > 0 && c.MinBytes > c.MaxBytes {
		return fmt.Errorf("kafka channel: min bytes %d exceeds max bytes %d", c.MinBytes, c.MaxBytes)
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.GroupID == "" {
		c.GroupID = DefaultGroupPrefix + c.Topic
	}
	if c.MinBytes == 0 {
		c.MinBytes = DefaultMinBytes
	}
	if c.MaxBytes == 0 {
		c.MaxBytes = DefaultMaxBytes
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = DefaultBatchTimeout
	}
	return c
}

// Subscriber consumes collector messages from a Kafka topic.
type Subscriber struct {
	reader *kafkago.Reader

	base      context.Context
	interrupt context.CancelFunc
	closeOnce sync.Once
	closeErr  error
}

// NewSubscriber creates a group reader on the configured topic.
func NewSubscriber(cfg Config) (*Subscriber, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	base, cancel := context.WithCancel(context.Background())
	return &Subscriber{
		reader: kafkago.NewReader(kafkago.ReaderConfig{
			Brokers:     cfg.Brokers,
			Topic:       cfg.Topic,
			GroupID:     cfg.GroupID,
			StartOffset: kafkago.FirstOffset,
			MinBytes:    cfg.MinBytes,
			MaxBytes:    cfg.MaxBytes,
		}),
		base:      base,
		interrupt: cancel,
	}, nil
}

// Receive implements channel.Subscriber.
func (s *Subscriber) Receive(ctx context.Context) ([]byte, error) {
	if s.base.Err() != nil {
		return nil, channel.ErrInterrupted
	}

	readCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.base, cancel)
	defer stop()

	m, err := s.reader.ReadMessage(readCtx)
	if err != nil {
		return nil, s.mapErr(ctx, err)
	}
	return m.Value, nil
}

func (s *Subscriber) mapErr(ctx context.Context, err error) error {
	switch {
	case s.base.Err() != nil:
		return channel.ErrInterrupted
	case ctx.Err() != nil:
		return channel.Interrupted(ctx.Err())
	case errors.Is(err, io.EOF):
		return channel.Interrupted(err)
	}
	return fmt.Errorf("kafka channel: read: %w", err)
}

// Interrupt implements channel.Interrupter.
func (s *Subscriber) Interrupt() {
	s.interrupt()
}

// Close implements channel.Subscriber.
func (s *Subscriber) Close() error {
	s.closeOnce.Do(func() {
		s.interrupt()
		s.closeErr = s.reader.Close()
	})
	return s.closeErr
}

// Publisher writes one producer's messages to the topic.
type Publisher struct {
	writer *kafkago.Writer
	key    []byte

	mu     sync.Mutex
	closed bool
}

// NewPublisher creates a publisher whose messages are keyed by
// producerIndex.
func NewPublisher(cfg Config, producerIndex int) (*Publisher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if producerIndex < 0 {
		return nil, fmt.Errorf("kafka channel: producer index must be >= 0, got %d", producerIndex)
	}
	cfg = cfg.withDefaults()

	return &Publisher{
		writer: &kafkago.Writer{
			Addr:         kafkago.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafkago.Hash{},
			BatchTimeout: cfg.BatchTimeout,
			RequiredAcks: kafkago.RequireAll,
		},
		key: []byte(strconv.Itoa(producerIndex)),
	}, nil
}

// Publish implements channel.Publisher. Writes are synchronous so a
// returned nil means the broker acknowledged the message.
func (p *Publisher) Publish(ctx context.Context, msg []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return channel.ErrPublisherClosed
	}
	if err := p.writer.WriteMessages(ctx, kafkago.Message{Key: p.key, Value: msg}); err != nil {
		return fmt.Errorf("kafka channel: write: %w", err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.writer.Close()
}

var (
	_ channel.Subscriber  = (*Subscriber)(nil)
	_ channel.Interrupter = (*Subscriber)(nil)
	_ channel.Publisher   = (*Publisher)(nil)
)
