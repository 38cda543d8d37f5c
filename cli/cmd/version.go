package cmd

import (
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/tally/cli/render"
	"github.com/pithecene-io/tally/serde"
	"github.com/pithecene-io/tally/types"
)

// VersionResponse is the response for the version command.
type VersionResponse struct {
	Version string   `json:"version" yaml:"version"`
	Commit  string   `json:"commit" yaml:"commit"`
	Codecs  []string `json:"codecs" yaml:"codecs"`
}

// VersionCommand returns the version command.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:   "version",
		Usage:  "Show version information",
		Flags:  OutputFlags(),
		Action: versionAction(commit),
	}
}

func versionAction(commit string) cli.ActionFunc {
	return func(c *cli.Context) error {
		r, err := render.NewRenderer(c, os.Stdout)
		if err != nil {
			return cli.Exit(err.Error(), exitInvalidConfig)
		}
		return r.Render(VersionResponse{
			Version: types.Version,
			Commit:  commit,
			Codecs:  serde.Codecs(),
		})
	}
}
