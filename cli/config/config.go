package config

import (
	"errors"
	"fmt"
	"time"
)

// Config represents a tally.yaml configuration file.
// All values are optional and act as defaults for command flags.
// CLI flags always override config values.
type Config struct {
	Suite     string          `yaml:"suite"`
	Transport TransportConfig `yaml:"transport"`
	Run       RunConfig       `yaml:"run"`
	Verify    VerifyConfig    `yaml:"verify"`
	Trigger   TriggerConfig   `yaml:"trigger"`
	Emit      EmitConfig      `yaml:"emit"`
	Adapter   AdapterConfig   `yaml:"adapter"`
	Archive   ArchiveConfig   `yaml:"archive"`
}

// Transport types.
const (
	TransportStream = "stream"
	TransportRedis  = "redis"
	TransportKafka  = "kafka"
)

// TransportConfig selects and configures the message channel.
type TransportConfig struct {
	// Type is stream, redis or kafka (default stream).
	Type string `yaml:"type"`
	// Path is the stream file. Empty or "-" means stdin for verify and
	// stdout for emit.
	Path string `yaml:"path"`

	URL     string `yaml:"url"`
	Channel string `yaml:"channel,omitempty"`
	Buffer  int    `yaml:"buffer,omitempty"`

	Brokers []string `yaml:"brokers,omitempty"`
	Topic   string   `yaml:"topic,omitempty"`
	GroupID string   `yaml:"group_id,omitempty"`
}

// RunConfig holds collector defaults.
type RunConfig struct {
	Timeout           Duration `yaml:"timeout"`
	ParallelismPolicy string   `yaml:"parallelism_policy"`
	InterruptPolicy   string   `yaml:"interrupt_policy"`
}

// VerifyConfig selects the built-in verifier. At most one of the record
// bounds may be exact; nil leaves a bound unchecked.
type VerifyConfig struct {
	ExpectedRecords *int `yaml:"expected_records,omitempty"`
	MinRecords      *int `yaml:"min_records,omitempty"`
	MaxRecords      *int `yaml:"max_records,omitempty"`
}

// TriggerConfig configures early stopping.
type TriggerConfig struct {
	// MaxRecords stops the run once that many records were received.
	// Zero disables the trigger.
	MaxRecords int `yaml:"max_records"`
}

// EmitConfig holds producer defaults for tally emit.
type EmitConfig struct {
	Codec    string `yaml:"codec"`
	TypeName string `yaml:"type_name"`
}

// AdapterConfig holds completion notification defaults.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Secret  string            `yaml:"secret,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`

	ResultKeyPrefix string   `yaml:"result_key_prefix,omitempty"`
	ResultTTL       Duration `yaml:"result_ttl,omitempty"`
}

// ArchiveConfig holds report archive defaults.
type ArchiveConfig struct {
	Dataset     string `yaml:"dataset"`
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// Validate checks enumerations and cross-field constraints. Values that
// depend on flags (such as a stream path) are checked by the commands.
func (c *Config) Validate() error {
	var errs []error

	switch c.Transport.Type {
	case "", TransportStream, TransportRedis, TransportKafka:
	default:
		errs = append(errs, fmt.Errorf("transport.type: unknown transport %q", c.Transport.Type))
	}
	if c.Transport.Buffer < 0 {
		errs = append(errs, errors.New("transport.buffer must be >= 0"))
	}

	switch c.Run.ParallelismPolicy {
	case "", "strict", "last_wins":
	default:
		errs = append(errs, fmt.Errorf("run.parallelism_policy: unknown policy %q", c.Run.ParallelismPolicy))
	}
	switch c.Run.InterruptPolicy {
	case "", "fail", "inconclusive":
	default:
		errs = append(errs, fmt.Errorf("run.interrupt_policy: unknown policy %q", c.Run.InterruptPolicy))
	}
	if c.Run.Timeout.Duration < 0 {
		errs = append(errs, errors.New("run.timeout must be >= 0"))
	}

	v := c.Verify
	for name, n := range map[string]*int{
		"expected_records": v.ExpectedRecords,
		"min_records":      v.MinRecords,
		"max_records":      v.MaxRecords,
	} {
		if n != nil && *n < 0 {
			errs = append(errs, fmt.Errorf("verify.%s must be >= 0", name))
		}
	}
	if v.ExpectedRecords != nil && (v.MinRecords != nil || v.MaxRecords != nil) {
		errs = append(errs, errors.New("verify.expected_records cannot be combined with min_records or max_records"))
	}
	if v.MinRecords != nil && v.MaxRecords != nil && *v.MinRecords > *v.MaxRecords {
		errs = append(errs, errors.New("verify.min_records exceeds verify.max_records"))
	}
	if c.Trigger.MaxRecords < 0 {
		errs = append(errs, errors.New("trigger.max_records must be >= 0"))
	}

	switch c.Adapter.Type {
	case "", "redis", "webhook":
	default:
		errs = append(errs, fmt.Errorf("adapter.type: unknown adapter %q", c.Adapter.Type))
	}
	if c.Adapter.Retries != nil && *c.Adapter.Retries < 0 {
		errs = append(errs, errors.New("adapter.retries must be >= 0"))
	}

	switch c.Archive.Backend {
	case "", "fs", "s3":
	default:
		errs = append(errs, fmt.Errorf("archive.backend: unknown backend %q", c.Archive.Backend))
	}

	return errors.Join(errs...)
}
