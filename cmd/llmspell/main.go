// Command llmspell is the operational CLI for the runtime: start the
// long-running process, validate a configuration file, or drive a state
// migration. Grounded on the teacher's cmd/hector/main.go (kong-based CLI,
// a Serve/Info/Validate command set, slog initialized from CLI flags
// before config loading), with the subcommands serve, validate, migrate and
// version.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"github.com/lexlapax/llmspell/pkg/logger"
)

// CLI is the root kong command set.
type CLI struct {
	Config   string `short:"c" help:"Path to the runtime config file." type:"path" default:"llmspell.yaml"`
	LogLevel string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFile  string `help:"Log file path (empty = stderr)."`

	Serve    ServeCmd    `cmd:"" help:"Start the runtime: health/metrics endpoints, config hot-reload, scheduled backup sweeps."`
	Validate ValidateCmd `cmd:"" help:"Load and validate a configuration file."`
	Migrate  MigrateCmd  `cmd:"" help:"Migrate persisted state from one schema version to another."`
	Version  VersionCmd  `cmd:"" help:"Show version information."`
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("llmspell"),
		kong.Description("llmspell runtime - embeddable scripted-agent orchestration core"),
		kong.UsageOnError(),
	)

	var cleanup func()
	if cli.LogFile != "" {
		f, c, err := logger.OpenLogFile(cli.LogFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open log file: %v\n", err)
			os.Exit(1)
		}
		logger.Init(logger.ParseLevel(cli.LogLevel), f, "simple")
		cleanup = c
	} else {
		logger.Init(logger.ParseLevel(cli.LogLevel), os.Stderr, "simple")
	}
	if cleanup != nil {
		defer cleanup()
	}

	if err := ctx.Run(&cli); err != nil {
		slog.Error("command failed", "error", err)
		ctx.FatalIfErrorf(err)
	}
}
