package main

import (
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kong"
	"github.com/fatih/color"
	"github.com/shibukawa/snapodata"
	"github.com/shibukawa/snapodata/edm"
)

const version = "0.1.0"

// Context represents the global context for commands
type Context struct {
	Config  string
	Verbose bool
	Quiet   bool
	Stdout  io.Writer
}

// CLI represents the command-line interface
var CLI struct {
	Config   string      `help:"Configuration file path" default:"snapodata.yaml"`
	Verbose  bool        `help:"Enable verbose output" short:"v"`
	Quiet    bool        `help:"Suppress output" short:"q"`
	Query    QueryCmd    `cmd:"" help:"Translate or execute a query file"`
	Batch    BatchCmd    `cmd:"" help:"Inspect a multipart batch payload"`
	Metadata MetadataCmd `cmd:"" help:"List resources of a CSDL metadata document"`
	Version  VersionCmd  `cmd:"" help:"Show version information"`
}

// VersionCmd represents the version command
type VersionCmd struct{}

// Run executes the version command
func (cmd *VersionCmd) Run(ctx *Context) error {
	fmt.Fprintf(ctx.Stdout, "SnapOData v%s (OData %s)\n", version, snapodata.LatestVersion)
	return nil
}

// loadModel reads the CSDL document at path, or the configured one.
func loadModel(config *snapodata.Config, path string) (*edm.Schema, error) {
	if path == "" {
		path = config.Metadata.Path
	}

	if path == "" {
		return nil, ErrMetadataRequired
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata: %w", err)
	}
	defer f.Close()

	return edm.LoadCSDL(f)
}

func main() {
	ctx := kong.Parse(&CLI)

	appCtx := &Context{
		Config:  CLI.Config,
		Verbose: CLI.Verbose,
		Quiet:   CLI.Quiet,
		Stdout:  color.Output,
	}

	err := ctx.Run(appCtx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
