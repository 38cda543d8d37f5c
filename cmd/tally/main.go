// Package main provides the tally CLI entrypoint.
//
// Usage:
//
//	tally <command> [options]
//
// Exit codes for `verify`:
//   - 0: success or triggered (and interrupted under the inconclusive policy)
//   - 1: failure
//   - 2: interrupted under the fail policy
//   - 3: invalid configuration
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/tally/cli/cmd"
	"github.com/pithecene-io/tally/types"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	app := &cli.App{
		Name:           "tally",
		Usage:          "Collect and verify multi-producer run output",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			cmd.VerifyCommand(),
			cmd.EmitCommand(),
			cmd.VersionCommand(commit),
		},
	}

	if err := app.Run(os.Args); err != nil {
		// ExitErrHandler already exited for cli.ExitCoder errors.
		os.Exit(1)
	}
}

// exitErrHandler exits with the code carried by err, printing its message.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}
	os.Exit(exitStatus(os.Stderr, err))
}

// exitStatus writes err's message to w and returns the process exit code.
// cli.Exit codes pass through; any other error exits 1.
func exitStatus(w io.Writer, err error) int {
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()

		// cli.Exit("", N).Error() is "exit status N"; skip those.
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(w, msg)
		}
		return code
	}

	fmt.Fprintf(w, "Error: %v\n", err)
	return 1
}
