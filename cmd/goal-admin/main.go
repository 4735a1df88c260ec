// ABOUTME: Entry point for goal-admin, the operator CLI for the goal-tracker ledger
// ABOUTME: Parses commands with kong and runs them against the configured database

package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"github.com/2389/goal-tracker/internal/clock"
	"github.com/2389/goal-tracker/internal/config"
	"github.com/2389/goal-tracker/internal/logging"
	"github.com/2389/goal-tracker/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

var CLI struct {
	Version kong.VersionFlag
	Config  string `help:"Config file path." type:"path" env:"GOAL_TRACKER_CONFIG"`
	Verbose bool   `help:"Log at debug level." short:"v"`

	Backup struct {
		Create BackupCreateCmd `cmd:"" default:"1" help:"Write a snapshot and rotate old ones."`
		List   BackupListCmd   `cmd:"" help:"List snapshots, newest first."`
	} `cmd:"" help:"Manage database snapshots."`
	Prune PruneCmd `cmd:"" help:"Delete check-ins older than the retention window."`
	Stats StatsCmd `cmd:"" help:"Show a user's goals and streaks."`
	Admin struct {
		Show AdminShowCmd `cmd:"" help:"Show the registered administrator."`
	} `cmd:"" help:"Inspect the administrator record."`
	Audit   AuditCmd `cmd:"" help:"List privileged actions, newest first."`
	Migrate struct {
		Status MigrateStatusCmd `cmd:"" help:"Show the ledger schema version."`
	} `cmd:"" help:"Inspect schema migrations."`
}

// appContext is passed to every command's Run method.
type appContext struct {
	cfg    *config.Config
	clock  clock.Clock
	logger *slog.Logger
	out    io.Writer
}

// cliActor identifies goal-admin in the audit log.
const cliActor = "goal-admin"

// openStore opens the configured ledger, applying pending migrations.
func (a *appContext) openStore() (*store.SQLiteStore, error) {
	s, err := store.NewSQLiteStore(a.cfg.Database.Path, a.clock)
	if err != nil {
		return nil, fmt.Errorf("opening ledger %s: %w", a.cfg.Database.Path, err)
	}
	return s, nil
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("goal-admin"),
		kong.Description("Operator tools for the goal-tracker check-in ledger"),
		kong.UsageOnError(),
		kong.Vars{"version": version},
	)

	configPath := CLI.Config
	if configPath == "" {
		configPath = config.DefaultPath()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: loading config from %s: %v\n", configPath, err)
		os.Exit(1)
	}

	logCfg := cfg.Logging
	logCfg.File = ""
	if CLI.Verbose {
		logCfg.Level = "debug"
	} else {
		logCfg.Level = "warn"
	}
	logger, _, err := logging.New(logCfg, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	err = ctx.Run(&appContext{
		cfg:    cfg,
		clock:  clock.Real(),
		logger: logger,
		out:    os.Stdout,
	})
	ctx.FatalIfErrorf(err)
}
