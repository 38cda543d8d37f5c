package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/tally/channel"
	"github.com/pithecene-io/tally/channel/kafka"
	"github.com/pithecene-io/tally/channel/redis"
	"github.com/pithecene-io/tally/cli/config"
	"github.com/pithecene-io/tally/iox"
)

// transportChoice holds the resolved channel configuration.
type transportChoice struct {
	kind string
	// path is the stream file; empty or "-" selects stdin/stdout.
	path string

	redisURL     string
	redisChannel string
	redisBuffer  int

	brokers []string
	topic   string
	groupID string
}

func resolveTransport(c *cli.Context, cfg *config.Config, pathFlag string) transportChoice {
	tc := configVal(cfg, func(c *config.Config) config.TransportConfig { return c.Transport })
	return transportChoice{
		kind:         resolveString(c, "transport", tc.Type),
		path:         resolveString(c, pathFlag, tc.Path),
		redisURL:     resolveString(c, "redis-url", tc.URL),
		redisChannel: resolveString(c, "redis-channel", tc.Channel),
		redisBuffer:  tc.Buffer,
		brokers:      resolveStrings(c, "kafka-broker", tc.Brokers),
		topic:        resolveString(c, "kafka-topic", tc.Topic),
		groupID:      tc.GroupID,
	}
}

func (t transportChoice) validate() error {
	switch t.kind {
	case config.TransportStream:
		return nil
	case config.TransportRedis:
		if t.redisURL == "" {
			return errors.New("--redis-url is required for the redis transport")
		}
		return nil
	case config.TransportKafka:
		return t.kafkaConfig().Validate()
	default:
		return fmt.Errorf("invalid --transport %q (must be stream, redis, or kafka)", t.kind)
	}
}

func (t transportChoice) stdio() bool {
	return t.path == "" || t.path == "-"
}

func (t transportChoice) redisConfig() redis.Config {
	return redis.Config{URL: t.redisURL, Channel: t.redisChannel, Buffer: t.redisBuffer}
}

func (t transportChoice) kafkaConfig() kafka.Config {
	return kafka.Config{Brokers: t.brokers, Topic: t.topic, GroupID: t.groupID}
}

// openSubscriber connects the consuming end of the channel. stdin is used
// by the stream transport when no path is given.
func openSubscriber(ctx context.Context, t transportChoice, stdin io.Reader) (channel.Subscriber, error) {
	switch t.kind {
	case config.TransportStream:
		if t.stdio() {
			return channel.NewStream(io.NopCloser(stdin)), nil
		}
		f, err := os.Open(t.path)
		if err != nil {
			return nil, fmt.Errorf("cannot open stream: %w", err)
		}
		return channel.NewStream(f), nil
	case config.TransportRedis:
		return redis.NewSubscriber(ctx, t.redisConfig())
	case config.TransportKafka:
		return kafka.NewSubscriber(t.kafkaConfig())
	default:
		return nil, fmt.Errorf("unknown transport %q", t.kind)
	}
}

// openPublisher connects a producing end of the channel for producer
// index. stdout is used by the stream transport when no path is given;
// a file path is appended to so producers can share one capture.
func openPublisher(t transportChoice, index int, stdout io.Writer) (channel.Publisher, error) {
	switch t.kind {
	case config.TransportStream:
		if t.stdio() {
			return channel.NewStreamWriter(iox.NopWriteCloser(stdout)), nil
		}
		f, err := os.OpenFile(t.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("cannot open stream: %w", err)
		}
		return channel.NewStreamWriter(f), nil
	case config.TransportRedis:
		return redis.NewPublisher(t.redisConfig())
	case config.TransportKafka:
		return kafka.NewPublisher(t.kafkaConfig(), index)
	default:
		return nil, fmt.Errorf("unknown transport %q", t.kind)
	}
}
