// Package redis implements a Redis adapter for completion notifications.
//
// Each event is PUBLISHed as JSON to a channel and, when a result key prefix
// is configured, also stored under <prefix><run_id> with a TTL so late
// readers can fetch the outcome of a run. Both commands go out in one
// pipeline; a failed pipeline is retried with exponential backoff.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pithecene-io/tally/adapter"
)

// DefaultChannel is the default pub/sub channel name.
const DefaultChannel = "tally:verification_completed"

// DefaultTimeout is the default per-attempt timeout.
const DefaultTimeout = 5 * time.Second

// DefaultRetries is the default number of retry attempts.
const DefaultRetries = 3

// DefaultResultTTL is how long stored results live when ResultKeyPrefix is set.
const DefaultResultTTL = 24 * time.Hour

// Config configures the Redis adapter.
type Config struct {
	// URL is the Redis connection URL (required).
	// Format: redis://[:password@]host:port[/db]
	URL string
	// Channel is the pub/sub channel name (default: tally:verification_completed).
	Channel string
	// ResultKeyPrefix enables storing each event under prefix+run_id.
	// Empty disables storage.
	ResultKeyPrefix string
	// ResultTTL is the stored result's expiry (default 24h).
	ResultTTL time.Duration
	// Timeout is the per-attempt timeout (default 5s).
	Timeout time.Duration
	// Retries is the number of retry attempts on failure (default 3).
	Retries int
	// Backoff is the delay before the first retry (default 500ms).
	Backoff time.Duration
}

// Adapter publishes completion events to Redis.
type Adapter struct {
	config Config
	client *goredis.Client
}

// New creates a Redis adapter from the given config.
// Returns an error if the URL is empty or invalid.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis adapter requires a URL")
	}

	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis adapter: invalid URL: %w", err)
	}

	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = DefaultResultTTL
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}

	return &Adapter{
		config: cfg,
		client: goredis.NewClient(opts),
	}, nil
}

// ResultKey returns the key a run's event is stored under, or "" when
// storage is disabled.
func (a *Adapter) ResultKey(runID string) string {
	if a.config.ResultKeyPrefix == "" {
		return ""
	}
	return a.config.ResultKeyPrefix + runID
}

// Publish sends the event to the configured channel and stores it when
// storage is enabled.
func (a *Adapter) Publish(ctx context.Context, event *adapter.VerificationCompletedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}
	key := a.ResultKey(event.RunID)

	return adapter.Retry(ctx, "redis", a.config.Retries, a.config.Backoff, nil, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()

		_, err := a.client.Pipelined(attemptCtx, func(p goredis.Pipeliner) error {
			if key != "" {
				p.Set(attemptCtx, key, body, a.config.ResultTTL)
			}
			p.Publish(attemptCtx, a.config.Channel, body)
			return nil
		})
		return err
	})
}

// Close releases adapter resources.
func (a *Adapter) Close() error {
	return a.client.Close()
}

var _ adapter.Adapter = (*Adapter)(nil)
