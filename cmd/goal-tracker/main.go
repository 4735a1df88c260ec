// ABOUTME: Entry point for the goal-tracker service
// ABOUTME: Wires the ledger, admin, report and backup services behind the Matrix bridge

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/goal-tracker/internal/admin"
	"github.com/2389/goal-tracker/internal/backup"
	"github.com/2389/goal-tracker/internal/checkin"
	"github.com/2389/goal-tracker/internal/clock"
	"github.com/2389/goal-tracker/internal/commands"
	"github.com/2389/goal-tracker/internal/config"
	"github.com/2389/goal-tracker/internal/logging"
	"github.com/2389/goal-tracker/internal/matrix"
	"github.com/2389/goal-tracker/internal/report"
	"github.com/2389/goal-tracker/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                   _       _                  _
  __ _  ___   __ _| |     | |_ _ __ __ _  ___| | _____ _ __
 / _' |/ _ \ / _' | |_____| __| '__/ _' |/ __| |/ / _ \ '__|
| (_| | (_) | (_| | |_____| |_| | | (_| | (__|   <  __/ |
 \__, |\___/ \__,_|_|      \__|_|  \__,_|\___|_|\_\___|_|
 |___/
`

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "version" || os.Args[1] == "--version") {
		fmt.Printf("goal-tracker %s\n", version)
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	configPath := config.DefaultPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config from %s: %w", configPath, err)
	}

	logger, logCloser, err := logging.New(cfg.Logging, os.Stderr)
	if err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	printStartupInfo(configPath, cfg)

	clk := clock.Real()

	db, err := store.NewSQLiteStore(cfg.Database.Path, clk)
	if err != nil {
		return fmt.Errorf("opening ledger: %w", err)
	}
	defer db.Close()

	checkins := checkin.NewService(db, clk, logger)

	authority, err := admin.NewAuthority(admin.NewRecordFile(cfg.Admin.RecordPath), db, clk,
		admin.WithConfirmTimeout(cfg.Admin.ConfirmTimeout),
		admin.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("loading admin record: %w", err)
	}

	var reports *report.Service
	if cfg.Report.Enabled() {
		client := report.NewChatClient(cfg.Report.Endpoint, cfg.Report.APIKey, cfg.Report.Model, cfg.Report.Timeout)
		reports = report.NewService(
			report.NewFileCache(cfg.Report.CachePath, cfg.Report.TTL, clk),
			db, client, clk,
			report.WithWindowDays(cfg.Report.WindowDays),
			report.WithRetry(cfg.Report.MaxAttempts, cfg.Report.RetryDelay),
			report.WithLogger(logger))
	} else {
		logger.Warn("report.endpoint not set, analyze command disabled")
	}

	backups := backup.NewRotator(db.Path(), cfg.Backup.Dir, cfg.Backup.MaxBackups, db, clk, logger)

	dispatcher := commands.NewDispatcher(commands.Deps{
		Checkins:      checkins,
		Authority:     authority,
		Reports:       reports,
		Backups:       backups,
		Audit:         db,
		Clock:         clk,
		Logger:        logger,
		RetentionDays: cfg.Ledger.RetentionDays,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go pruneLoop(ctx, checkins, cfg.Ledger.RetentionDays, cfg.Ledger.PruneInterval, logger)

	if !cfg.Matrix.Enabled {
		logger.Warn("matrix bridge disabled, only retention pruning will run")
		<-ctx.Done()
		logger.Info("shutting down")
		return nil
	}

	bridge, err := matrix.NewBridge(cfg.Matrix, dispatcher, clk, logger)
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}
	return bridge.Run(ctx)
}

func printStartupInfo(configPath string, cfg *config.Config) {
	green := color.New(color.FgGreen)
	line := func(label, value string) {
		green.Print("    ▶ ")
		fmt.Printf("%-11s %s\n", label+":", value)
	}

	line("Config", configPath)
	line("Database", cfg.Database.Path)
	line("Backups", cfg.Backup.Dir)
	line("Retention", fmt.Sprintf("%d days", cfg.Ledger.RetentionDays))
	if cfg.Matrix.Enabled {
		line("Homeserver", cfg.Matrix.Homeserver)
		line("User", cfg.Matrix.UserID)
	}
	if cfg.Report.Enabled() {
		line("Reports", cfg.Report.Endpoint)
	}
	fmt.Println()
}

// pruneLoop applies the retention window at startup and then every interval.
func pruneLoop(ctx context.Context, svc *checkin.Service, days int, interval time.Duration, logger *slog.Logger) {
	prune := func() {
		res, err := svc.Prune(ctx, days)
		if err != nil {
			logger.Error("retention prune failed", "error", err)
			return
		}
		if res.Checkins > 0 || res.Goals > 0 {
			logger.Info("retention prune", "checkins", res.Checkins, "goals", res.Goals, "days", days)
		}
	}

	prune()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}
