// ABOUTME: goal-admin subcommands for snapshots, pruning, and inspection
// ABOUTME: Each command opens the ledger itself and prints a short report

package main

import (
	"context"
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/2389/goal-tracker/internal/admin"
	"github.com/2389/goal-tracker/internal/backup"
	"github.com/2389/goal-tracker/internal/checkin"
	"github.com/2389/goal-tracker/internal/clock"
	"github.com/2389/goal-tracker/internal/store"
)

type BackupCreateCmd struct{}

func (c *BackupCreateCmd) Run(app *appContext) error {
	s, err := app.openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	r := backup.NewRotator(s.Path(), app.cfg.Backup.Dir, app.cfg.Backup.MaxBackups, s, app.clock, app.logger)
	path, err := r.Backup(context.Background())
	if err != nil {
		return fmt.Errorf("backup failed: %w", err)
	}

	if err := s.AppendAuditLog(context.Background(), &store.AuditEntry{
		ActorID: cliActor,
		Action:  store.AuditBackup,
		Detail:  map[string]any{"path": path},
	}); err != nil {
		app.logger.Warn("audit log append failed", "error", err)
	}

	color.New(color.FgGreen).Fprint(app.out, "✓ ")
	fmt.Fprintf(app.out, "Backup written: %s\n", path)
	return nil
}

type BackupListCmd struct{}

func (c *BackupListCmd) Run(app *appContext) error {
	r := backup.NewRotator(app.cfg.Database.Path, app.cfg.Backup.Dir, app.cfg.Backup.MaxBackups, nil, app.clock, app.logger)
	infos, err := r.List()
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Fprintf(app.out, "No backups in %s\n", r.Dir())
		return nil
	}

	w := tabwriter.NewWriter(app.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSIZE\tCREATED")
	for _, info := range infos {
		fmt.Fprintf(w, "%s\t%d\t%s\n",
			filepath.Base(info.Path), info.Size, clock.Local(info.ModTime).Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

type PruneCmd struct {
	Days int `help:"Retention window in days (defaults to ledger.retention_days)." default:"0"`
}

func (c *PruneCmd) Run(app *appContext) error {
	days := c.Days
	if days <= 0 {
		days = app.cfg.Ledger.RetentionDays
	}

	s, err := app.openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := context.Background()
	res, err := checkin.NewService(s, app.clock, app.logger).Prune(ctx, days)
	if err != nil {
		return err
	}
	if err := s.AppendAuditLog(ctx, &store.AuditEntry{
		ActorID: cliActor,
		Action:  store.AuditPrune,
		Detail:  map[string]any{"days": days, "checkins": res.Checkins, "goals": res.Goals},
	}); err != nil {
		app.logger.Warn("audit log append failed", "error", err)
	}
	fmt.Fprintf(app.out, "Pruned %d check-ins and %d goals older than %d days\n", res.Checkins, res.Goals, days)
	return nil
}

type StatsCmd struct {
	User string `arg:"" help:"User ID, e.g. @alice:example.org."`
}

func (c *StatsCmd) Run(app *appContext) error {
	s, err := app.openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	svc := checkin.NewService(s, app.clock, app.logger)
	summaries, err := svc.Record(context.Background(), c.User)
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		fmt.Fprintf(app.out, "No check-ins for %s\n", c.User)
		return nil
	}

	w := tabwriter.NewWriter(app.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "GOAL\tTOTAL\tSTREAK\tBEST")
	for _, sum := range summaries {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", sum.Goal, sum.Total, sum.Streak, sum.Longest)
	}
	return w.Flush()
}

type AdminShowCmd struct{}

func (c *AdminShowCmd) Run(app *appContext) error {
	rec, err := admin.NewRecordFile(app.cfg.Admin.RecordPath).Load()
	if err != nil {
		return err
	}
	if rec == nil {
		fmt.Fprintln(app.out, "No administrator registered")
		return nil
	}
	fmt.Fprintf(app.out, "Administrator: %s (since %s)\n",
		rec.AdminID, clock.Local(rec.RegisteredAt).Format("2006-01-02 15:04:05"))
	return nil
}

type AuditCmd struct {
	Actor  string `help:"Only show actions by this caller."`
	Action string `help:"Only show this action (register_admin, clear_all, backup, prune, manage_others)."`
	Limit  int    `help:"Maximum entries to show." default:"50"`
}

func (c *AuditCmd) Run(app *appContext) error {
	s, err := app.openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	entries, err := s.ListAuditLog(context.Background(), store.AuditFilter{
		ActorID: c.Actor,
		Action:  store.AuditAction(c.Action),
		Limit:   c.Limit,
	})
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(app.out, "No audit entries")
		return nil
	}

	w := tabwriter.NewWriter(app.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tACTOR\tACTION\tTARGET")
	for _, e := range entries {
		target := e.Target
		if target == "" {
			target = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			clock.Local(e.Timestamp).Format("2006-01-02 15:04:05"), e.ActorID, e.Action, target)
	}
	return w.Flush()
}

type MigrateStatusCmd struct{}

func (c *MigrateStatusCmd) Run(app *appContext) error {
	s, err := app.openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	v, err := s.SchemaVersion()
	if err != nil {
		return err
	}
	fmt.Fprintf(app.out, "Database:       %s\nSchema version: %d\n", s.Path(), v)
	return nil
}
