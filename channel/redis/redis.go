// Package redis implements the collector channel over Redis pub/sub.
//
// Each publisher owns its own client connection and issues PUBLISH commands
// in order, so per-producer order is preserved. Redis does not buffer
// messages for absent subscribers: the subscriber must be created before
// producers start publishing.
//
// A pub/sub subscription has no notion of "all publishers done". The
// subscriber therefore never reports a normal close; a lost connection,
// Interrupt, or Close while a Receive is pending are interruptions.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pithecene-io/tally/channel"
)

// DefaultChannel is the default pub/sub channel name.
const DefaultChannel = "tally:messages"

// DefaultBuffer is the default size of the subscriber's delivery buffer.
const DefaultBuffer = 1024

// Config configures a Redis channel endpoint.
type Config struct {
	// URL is the Redis connection URL (required).
	// Format: redis://[:password@]host:port[/db]
	URL string
	// Channel is the pub/sub channel name (default: tally:messages).
	Channel string
	// Buffer is the subscriber delivery buffer (default 1024).
	Buffer int
}

func (c Config) withDefaults() (Config, *goredis.Options, error) {
	if c.URL == "" {
		return c, nil, errors.New("redis channel requires a URL")
	}
	opts, err := goredis.ParseURL(c.URL)
	if err != nil {
		return c, nil, fmt.Errorf("redis channel: invalid URL: %w", err)
	}
	if c.Channel == "" {
		c.Channel = DefaultChannel
	}
	if c.Buffer < 0 {
		return c, nil, fmt.Errorf("buffer must be >= 0, got %d", c.Buffer)
	}
	if c.Buffer == 0 {
		c.Buffer = DefaultBuffer
	}
	return c, opts, nil
}

// Subscriber receives collector messages from a Redis channel.
type Subscriber struct {
	client *goredis.Client
	pubsub *goredis.PubSub
	msgs   <-chan *goredis.Message

	interruptCh chan struct{}
	interrupt   sync.Once
	closeOnce   sync.Once
	closeErr    error
}

// NewSubscriber subscribes to the configured channel and waits for the
// subscription to be confirmed, so publishes issued after it returns are
// delivered.
func NewSubscriber(ctx context.Context, cfg Config) (*Subscriber, error) {
	cfg, opts, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}

	client := goredis.NewClient(opts)
	pubsub := client.Subscribe(ctx, cfg.Channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		_ = client.Close()
		return nil, fmt.Errorf("redis channel: subscribe %s: %w", cfg.Channel, err)
	}

	return &Subscriber{
		client:      client,
		pubsub:      pubsub,
		msgs:        pubsub.Channel(goredis.WithChannelSize(cfg.Buffer)),
		interruptCh: make(chan struct{}),
	}, nil
}

// Receive implements channel.Subscriber.
func (s *Subscriber) Receive(ctx context.Context) ([]byte, error) {
	select {
	case <-s.interruptCh:
		return nil, channel.ErrInterrupted
	default:
	}

	select {
	case msg, ok := <-s.msgs:
		if !ok {
			return nil, channel.Interrupted(errors.New("redis subscription closed"))
		}
		return []byte(msg.Payload), nil
	case <-s.interruptCh:
		return nil, channel.ErrInterrupted
	case <-ctx.Done():
		return nil, channel.Interrupted(ctx.Err())
	}
}

// Interrupt implements channel.Interrupter.
func (s *Subscriber) Interrupt() {
	s.interrupt.Do(func() { close(s.interruptCh) })
}

// Close unsubscribes and releases the connection.
func (s *Subscriber) Close() error {
	s.closeOnce.Do(func() {
		s.Interrupt()
		s.closeErr = errors.Join(s.pubsub.Close(), s.client.Close())
	})
	return s.closeErr
}

// Publisher publishes collector messages to a Redis channel.
type Publisher struct {
	channel string
	client  *goredis.Client

	mu     sync.Mutex
	closed bool
}

// NewPublisher creates a publisher for the configured channel.
func NewPublisher(cfg Config) (*Publisher, error) {
	cfg, opts, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	return &Publisher{
		channel: cfg.Channel,
		client:  goredis.NewClient(opts),
	}, nil
}

// Publish implements channel.Publisher.
func (p *Publisher) Publish(ctx context.Context, msg []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return channel.ErrPublisherClosed
	}
	if err := p.client.Publish(ctx, p.channel, msg).Err(); err != nil {
		return fmt.Errorf("redis channel: publish: %w", err)
	}
	return nil
}

// Close implements channel.Publisher.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.client.Close()
}

var (
	_ channel.Subscriber  = (*Subscriber)(nil)
	_ channel.Interrupter = (*Subscriber)(nil)
	_ channel.Publisher   = (*Publisher)(nil)
)
