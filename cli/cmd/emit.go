package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/tally/cli/config"
	"github.com/pithecene-io/tally/log"
	"github.com/pithecene-io/tally/producer"
	"github.com/pithecene-io/tally/serde"
)

// maxLineBytes bounds one input line.
const maxLineBytes = 4 << 20

// EmitCommand returns the emit command.
// It acts as one producer: every input line becomes one record.
func EmitCommand() *cli.Command {
	flags := []cli.Flag{
		ConfigFlag,
		&cli.IntFlag{
			Name:     "index",
			Usage:    "Producer index in [0, parallelism)",
			Required: true,
		},
		&cli.IntFlag{
			Name:     "parallelism",
			Usage:    "Total number of producers in the run",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "input",
			Usage: "File of records, one per line (default stdin)",
		},
		&cli.StringFlag{
			Name:  "output",
			Usage: "Stream file to append to (stream transport, default stdout)",
		},
		&cli.StringFlag{
			Name:  "codec",
			Usage: "Record codec: msgpack, json, string or bytes",
			Value: serde.CodecString,
		},
		&cli.StringFlag{
			Name:  "type-name",
			Usage: "Element type name recorded in the descriptor",
		},
	}
	flags = append(flags, transportFlags()...)

	return &cli.Command{
		Name:   "emit",
		Usage:  "Send records as one producer of a run",
		Flags:  flags,
		Action: emitAction,
	}
}

// emitChoice holds the resolved emit options.
type emitChoice struct {
	index       int
	parallelism int
	input       string
	codec       string
	typeName    string
	transport   transportChoice
}

func resolveEmit(c *cli.Context, cfg *config.Config) (emitChoice, error) {
	ec := configVal(cfg, func(c *config.Config) config.EmitConfig { return c.Emit })
	choice := emitChoice{
		index:       c.Int("index"),
		parallelism: c.Int("parallelism"),
		input:       c.String("input"),
		codec:       resolveString(c, "codec", ec.Codec),
		typeName:    resolveString(c, "type-name", ec.TypeName),
		transport:   resolveTransport(c, cfg, "output"),
	}

	if choice.parallelism < 1 {
		return choice, errors.New("--parallelism must be >= 1")
	}
	if choice.index < 0 || choice.index >= choice.parallelism {
		return choice, fmt.Errorf("--index must be in [0, %d)", choice.parallelism)
	}
	if _, err := serde.NewEncoder(choice.codec); err != nil {
		return choice, fmt.Errorf("invalid --codec: %w", err)
	}
	return choice, choice.transport.validate()
}

func emitAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidConfig)
	}
	choice, err := resolveEmit(c, cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidConfig)
	}

	in := io.Reader(os.Stdin)
	if choice.input != "" && choice.input != "-" {
		f, err := os.Open(choice.input)
		if err != nil {
			return cli.Exit(fmt.Sprintf("cannot open input: %v", err), exitInvalidConfig)
		}
		defer func() { _ = f.Close() }()
		in = f
	}

	logger := log.NewLogger(nil)
	defer func() { _ = logger.Sync() }()

	count, err := emit(c.Context, choice, in, os.Stdout)
	if err != nil {
		logger.Error("emit failed", map[string]any{
			"index":   choice.index,
			"records": count,
			"error":   err.Error(),
		})
		return cli.Exit(fmt.Sprintf("emit failed: %v", err), exitFailure)
	}
	logger.Info("emit completed", map[string]any{
		"index":       choice.index,
		"parallelism": choice.parallelism,
		"records":     count,
	})
	return nil
}

// emit runs one producer over in. A failure after OPEN aborts the
// producer without CLOSE so the collector cannot reconcile the run.
func emit(ctx context.Context, choice emitChoice, in io.Reader, stdout io.Writer) (int, error) {
	pub, err := openPublisher(choice.transport, choice.index, stdout)
	if err != nil {
		return 0, err
	}
	e, err := producer.NewEmitter(pub, choice.index, choice.parallelism, producer.WithCodec(choice.codec, choice.typeName))
	if err != nil {
		_ = pub.Close()
		return 0, err
	}

	if err := e.Open(ctx); err != nil {
		_ = e.Abort()
		return 0, err
	}

	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for sc.Scan() {
		elem, err := parseLine(choice.codec, sc.Text())
		if err != nil {
			_ = e.Abort()
			return e.Count(), fmt.Errorf("line %d: %w", e.Count()+1, err)
		}
		if err := e.Emit(ctx, elem); err != nil {
			_ = e.Abort()
			return e.Count(), err
		}
	}
	if err := sc.Err(); err != nil {
		_ = e.Abort()
		return e.Count(), fmt.Errorf("read input: %w", err)
	}

	return e.Count(), e.Close(ctx)
}

// parseLine turns one input line into an element for codec. Structured
// codecs read the line as a JSON value.
func parseLine(codec, line string) (any, error) {
	switch codec {
	case serde.CodecString:
		return line, nil
	case serde.CodecBytes:
		return []byte(line), nil
	default:
		var v any
		if err := json.Unmarshal([]byte(line), &v); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
		return v, nil
	}
}
