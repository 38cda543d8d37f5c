// Package cmd provides CLI commands for the tally binary.
package cmd

import "github.com/urfave/cli/v2"

// Exit codes.
const (
	exitSuccess       = 0
	exitFailure       = 1
	exitInterrupted   = 2
	exitInvalidConfig = 3
)

// Shared flags.
var (
	// ConfigFlag points at a tally.yaml file. CLI flags override its values.
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to tally.yaml config file",
		EnvVars: []string{"TALLY_CONFIG"},
	}

	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}
)

// OutputFlags returns the flags shared by commands that render a report.
func OutputFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
	}
}

// transportFlags returns the channel selection flags shared by verify
// and emit.
func transportFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "transport",
			Usage: "Channel transport: stream, redis or kafka",
			Value: "stream",
		},
		&cli.StringFlag{
			Name:  "redis-url",
			Usage: "Redis URL (redis transport)",
		},
		&cli.StringFlag{
			Name:  "redis-channel",
			Usage: "Redis pub/sub channel (redis transport)",
		},
		&cli.StringSliceFlag{
			Name:  "kafka-broker",
			Usage: "Kafka broker address, repeatable (kafka transport)",
		},
		&cli.StringFlag{
			Name:  "kafka-topic",
			Usage: "Kafka topic dedicated to the run (kafka transport)",
		},
	}
}
