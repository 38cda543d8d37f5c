package cmd

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/tally/cli/config"
)

// loadConfig loads the file named by --config, or returns nil when the
// flag is unset.
func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String("config")
	if path == "" {
		return nil, nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// configVal reads a value from cfg, returning the zero value for a nil cfg.
func configVal[T any](cfg *config.Config, get func(*config.Config) T) T {
	if cfg == nil {
		var zero T
		return zero
	}
	return get(cfg)
}

// resolveString returns the flag when set explicitly, then the config
// value, then the flag default.
func resolveString(c *cli.Context, name, cfgVal string) string {
	if c.IsSet(name) {
		return c.String(name)
	}
	if cfgVal != "" {
		return cfgVal
	}
	return c.String(name)
}

func resolveInt(c *cli.Context, name string, cfgVal int) int {
	if c.IsSet(name) {
		return c.Int(name)
	}
	if cfgVal != 0 {
		return cfgVal
	}
	return c.Int(name)
}

// resolveOptionalInt is resolveInt for values where zero is meaningful.
func resolveOptionalInt(c *cli.Context, name string, cfgVal *int) *int {
	if c.IsSet(name) {
		v := c.Int(name)
		return &v
	}
	return cfgVal
}

func resolveDuration(c *cli.Context, name string, cfgVal time.Duration) time.Duration {
	if c.IsSet(name) {
		return c.Duration(name)
	}
	if cfgVal != 0 {
		return cfgVal
	}
	return c.Duration(name)
}

func resolveStrings(c *cli.Context, name string, cfgVal []string) []string {
	if c.IsSet(name) {
		return c.StringSlice(name)
	}
	if len(cfgVal) > 0 {
		return cfgVal
	}
	return c.StringSlice(name)
}
