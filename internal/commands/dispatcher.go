// ABOUTME: Command dispatcher that turns chat commands into ledger operations
// ABOUTME: Enforces admin gating and maps error kinds onto user-facing replies

package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/2389/goal-tracker/internal/admin"
	"github.com/2389/goal-tracker/internal/apperror"
	"github.com/2389/goal-tracker/internal/backup"
	"github.com/2389/goal-tracker/internal/checkin"
	"github.com/2389/goal-tracker/internal/clock"
	"github.com/2389/goal-tracker/internal/dateparse"
	"github.com/2389/goal-tracker/internal/report"
	"github.com/2389/goal-tracker/internal/store"
)

// DefaultRetentionDays is used by the admin prune command when none is configured.
const DefaultRetentionDays = 30

// Request is one command from a chat user.
type Request struct {
	// Verb is the command word as typed, with or without a leading slash.
	Verb     string
	CallerID string
	Args     []string

	// Notify delivers replies that arrive after Handle returns, such as an
	// expired clear-all confirmation. It may be nil.
	Notify func(Reply)
}

// Reply is the text sent back to the user.
type Reply struct {
	Text     string
	Markdown bool
}

// Deps are the services a Dispatcher routes to. Reports and Backups may be
// nil, which disables the analyze and admin backup commands. Audit may be
// nil, in which case privileged actions are only logged.
type Deps struct {
	Checkins      *checkin.Service
	Authority     *admin.Authority
	Reports       *report.Service
	Backups       *backup.Rotator
	Audit         store.AuditLog
	Clock         clock.Clock
	Logger        *slog.Logger
	RetentionDays int
}

// Dispatcher routes requests to the check-in, admin, report and backup services.
type Dispatcher struct {
	checkins      *checkin.Service
	authority     *admin.Authority
	reports       *report.Service
	backups       *backup.Rotator
	audit         store.AuditLog
	clock         clock.Clock
	logger        *slog.Logger
	retentionDays int
}

// NewDispatcher creates a dispatcher from deps.
func NewDispatcher(deps Deps) *Dispatcher {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.Real()
	}
	retention := deps.RetentionDays
	if retention <= 0 {
		retention = DefaultRetentionDays
	}
	return &Dispatcher{
		checkins:      deps.Checkins,
		authority:     deps.Authority,
		reports:       deps.Reports,
		backups:       deps.Backups,
		audit:         deps.Audit,
		clock:         clk,
		logger:        logger.With("component", "commands"),
		retentionDays: retention,
	}
}

// Handle runs req and returns the reply. The bool is false when the verb is
// not a known command, in which case the message should be ignored.
func (d *Dispatcher) Handle(ctx context.Context, req Request) (Reply, bool) {
	verb, implied, ok := Resolve(req.Verb)
	if !ok {
		return Reply{}, false
	}
	args := append(append([]string{}, implied...), req.Args...)

	d.logger.Debug("handling command", "verb", string(verb), "caller_id", req.CallerID, "args", len(args))

	var (
		reply Reply
		err   error
	)
	switch verb {
	case VerbCheckin:
		reply, err = d.handleCheckin(ctx, req.CallerID, args)
	case VerbDelete:
		reply, err = d.handleDelete(ctx, req.CallerID, args)
	case VerbRecord:
		reply, err = d.handleRecord(ctx, req.CallerID, args)
	case VerbAnalyze:
		reply, err = d.handleAnalyze(ctx, req.CallerID)
	case VerbBackfill:
		reply, err = d.handleBackfill(ctx, req.CallerID, args)
	case VerbAdmin:
		reply, err = d.handleAdmin(ctx, req, args)
	case VerbConfirm:
		reply, err = d.handleConfirm(ctx, req.CallerID)
	case VerbHelp:
		reply = Reply{Text: helpText, Markdown: true}
	}
	if err != nil {
		return d.errorReply(verb, req.CallerID, err), true
	}
	return reply, true
}

func (d *Dispatcher) handleCheckin(ctx context.Context, callerID string, args []string) (Reply, error) {
	var goals []string
	if len(args) > 0 {
		goals = checkin.SplitGoals(strings.Join(args, ","))
		if len(goals) == 0 {
			return Reply{}, apperror.Validation("checkin", "goal list is empty")
		}
	}

	res, err := d.checkins.Checkin(ctx, callerID, goals)
	if err != nil {
		return Reply{}, err
	}

	var b strings.Builder
	if res.Repeated {
		b.WriteString("Repeating your last check-in.\n")
	}
	if len(res.Accepted) > 0 {
		parts := make([]string, 0, len(res.Accepted))
		for _, g := range res.Accepted {
			parts = append(parts, fmt.Sprintf("**%s** (%s)", g.Goal, streakLabel(g.Streak)))
		}
		fmt.Fprintf(&b, "Checked in: %s\n", strings.Join(parts, ", "))
	}
	if len(res.Duplicates) > 0 {
		fmt.Fprintf(&b, "Already checked in today: %s\n", strings.Join(res.Duplicates, ", "))
	}
	return Reply{Text: strings.TrimRight(b.String(), "\n"), Markdown: true}, nil
}

func (d *Dispatcher) handleDelete(ctx context.Context, callerID string, args []string) (Reply, error) {
	const op = "delete"

	if len(args) == 0 {
		return Reply{}, apperror.Validation(op, "usage: delete <goal|all> [user]")
	}
	target, err := d.resolveTarget(callerID, args[1:])
	if err != nil {
		return Reply{}, err
	}

	if allWords[strings.ToLower(args[0])] {
		n, err := d.checkins.DeleteAll(ctx, target)
		if err != nil {
			return Reply{}, err
		}
		d.auditOthers(ctx, callerID, target, map[string]any{"op": "delete_all", "checkins": n})
		return Reply{Text: fmt.Sprintf("Deleted %d check-ins for %s.", n, target)}, nil
	}

	goal := args[0]
	n, err := d.checkins.DeleteGoal(ctx, target, goal)
	if err != nil {
		return Reply{}, err
	}
	d.auditOthers(ctx, callerID, target, map[string]any{"op": "delete_goal", "goal": goal, "checkins": n})
	if n == 0 {
		return Reply{Text: fmt.Sprintf("No check-ins found for %s.", goal)}, nil
	}
	return Reply{Text: fmt.Sprintf("Deleted %s and its %d check-ins.", goal, n)}, nil
}

func (d *Dispatcher) handleRecord(ctx context.Context, callerID string, args []string) (Reply, error) {
	target, err := d.resolveTarget(callerID, args)
	if err != nil {
		return Reply{}, err
	}

	summaries, err := d.checkins.Record(ctx, target)
	if err != nil {
		return Reply{}, err
	}
	if len(summaries) == 0 {
		return Reply{Text: "No check-ins yet."}, nil
	}

	overall, err := d.checkins.ConsecutiveDays(ctx, target, "")
	if err != nil {
		return Reply{}, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**Check-in record for %s**\n", target)
	for _, s := range summaries {
		fmt.Fprintf(&b, "- %s: %d total, %s, best %d\n", s.Goal, s.Total, streakLabel(s.Streak), s.Longest)
	}
	fmt.Fprintf(&b, "\nOverall: %s", streakLabel(overall))
	return Reply{Text: b.String(), Markdown: true}, nil
}

func (d *Dispatcher) handleAnalyze(ctx context.Context, callerID string) (Reply, error) {
	if d.reports == nil {
		return Reply{Text: "Reports are not configured on this server."}, nil
	}

	rep, err := d.reports.GetOrGenerate(ctx, callerID)
	if err != nil {
		return Reply{}, err
	}

	text := rep.Text
	if rep.FromCache {
		text += fmt.Sprintf("\n\n_Generated %s_", clock.Local(rep.GeneratedAt).Format("2006-01-02 15:04"))
	}
	return Reply{Text: text, Markdown: true}, nil
}

// handleBackfill accepts "<goal> <date...>" or "<user> <goal> <date...>".
// The first form is tried first; the second is only considered when the
// first does not yield a readable date.
func (d *Dispatcher) handleBackfill(ctx context.Context, callerID string, args []string) (Reply, error) {
	const op = "backfill"

	if len(args) < 2 {
		return Reply{}, apperror.Validation(op, "usage: backfill [user] <goal> <date>, e.g. backfill run "+dateparse.Examples[0])
	}

	target, goal, when := callerID, args[0], strings.Join(args[1:], " ")
	if _, err := dateparse.Parse(when); err != nil && len(args) >= 3 {
		alt := strings.Join(args[2:], " ")
		if _, altErr := dateparse.Parse(alt); altErr == nil {
			target, goal, when = args[0], args[1], alt
		}
	}

	if target != callerID {
		if err := d.authority.Authorize(callerID, admin.ActionManageOthers); err != nil {
			return Reply{}, err
		}
	}

	ev, err := d.checkins.Supplement(ctx, target, goal, when)
	if err != nil {
		return Reply{}, err
	}
	d.auditOthers(ctx, callerID, target, map[string]any{"op": "backfill", "goal": ev.GoalName, "date": ev.LocalDate})
	return Reply{Text: fmt.Sprintf("Back-filled %s on %s.", ev.GoalName, ev.LocalDate)}, nil
}

func (d *Dispatcher) handleAdmin(ctx context.Context, req Request, args []string) (Reply, error) {
	if len(args) == 0 {
		return Reply{Text: adminHelpText, Markdown: true}, nil
	}

	sub, ok := adminSubcommands[strings.ToLower(args[0])]
	if !ok {
		return Reply{}, apperror.Validation("admin", fmt.Sprintf("unknown admin command %q", args[0]))
	}

	switch sub {
	case subCreate:
		existed, adminID, err := d.authority.Register(req.CallerID)
		if err != nil {
			return Reply{}, err
		}
		if existed {
			return Reply{Text: fmt.Sprintf("An administrator already exists: %s", adminID)}, nil
		}
		d.record(ctx, &store.AuditEntry{ActorID: req.CallerID, Action: store.AuditRegisterAdmin})
		return Reply{Text: "You are now the administrator."}, nil

	case subShow:
		adminID, ok := d.authority.AdminID()
		if !ok {
			return Reply{Text: "No administrator is registered."}, nil
		}
		return Reply{Text: fmt.Sprintf("Administrator: %s", adminID)}, nil

	case subClear:
		notify := req.Notify
		conf, err := d.authority.RequestConfirmation(req.CallerID, func(admin.Confirmation) {
			if notify != nil {
				notify(Reply{Text: "Clear-all request expired. Nothing was deleted."})
			}
		})
		if err != nil {
			return Reply{}, err
		}
		secs := int(math.Ceil(conf.Deadline.Sub(d.clock.Now()).Seconds()))
		return Reply{
			Text:     fmt.Sprintf("This deletes **every check-in of every user**. Send `confirm` within %d seconds to proceed.", secs),
			Markdown: true,
		}, nil

	case subBackup:
		if err := d.authority.Authorize(req.CallerID, admin.ActionBackup); err != nil {
			return Reply{}, err
		}
		if d.backups == nil {
			return Reply{Text: "Backups are not configured on this server."}, nil
		}
		path, err := d.backups.Backup(ctx)
		if err != nil {
			d.logger.Error("backup failed", "caller_id", req.CallerID, "error", err)
			return Reply{Text: fmt.Sprintf("Backup failed: %v", err)}, nil
		}
		d.record(ctx, &store.AuditEntry{
			ActorID: req.CallerID,
			Action:  store.AuditBackup,
			Detail:  map[string]any{"path": path},
		})
		return Reply{Text: fmt.Sprintf("Backup written: %s", filepath.Base(path))}, nil

	case subPrune:
		if err := d.authority.Authorize(req.CallerID, admin.ActionClearAll); err != nil {
			return Reply{}, err
		}
		res, err := d.checkins.Prune(ctx, d.retentionDays)
		if err != nil {
			return Reply{}, err
		}
		d.record(ctx, &store.AuditEntry{
			ActorID: req.CallerID,
			Action:  store.AuditPrune,
			Detail:  map[string]any{"days": d.retentionDays, "checkins": res.Checkins, "goals": res.Goals},
		})
		return Reply{Text: fmt.Sprintf("Pruned %d check-ins and %d goals older than %d days.",
			res.Checkins, res.Goals, d.retentionDays)}, nil
	}
	return Reply{}, nil
}

func (d *Dispatcher) handleConfirm(ctx context.Context, callerID string) (Reply, error) {
	res, err := d.authority.Confirm(ctx, callerID)
	if err != nil {
		return Reply{}, err
	}
	d.record(ctx, &store.AuditEntry{
		ActorID: callerID,
		Action:  store.AuditClearAll,
		Detail:  map[string]any{"checkins": res.Checkins, "goals": res.Goals},
	})
	return Reply{Text: fmt.Sprintf("Ledger cleared: %d check-ins and %d goals deleted.", res.Checkins, res.Goals)}, nil
}

// resolveTarget returns the user a command acts on. Acting on anyone other
// than the caller requires the administrator.
func (d *Dispatcher) resolveTarget(callerID string, args []string) (string, error) {
	if len(args) == 0 || args[0] == "" || args[0] == callerID {
		return callerID, nil
	}
	if err := d.authority.Authorize(callerID, admin.ActionManageOthers); err != nil {
		return "", err
	}
	return args[0], nil
}

// auditOthers records a change the caller made to another user's records.
func (d *Dispatcher) auditOthers(ctx context.Context, callerID, target string, detail map[string]any) {
	if target == callerID {
		return
	}
	d.record(ctx, &store.AuditEntry{
		ActorID: callerID,
		Action:  store.AuditManageOthers,
		Target:  target,
		Detail:  detail,
	})
}

// record appends e to the audit log. Failures are logged and never fail the command.
func (d *Dispatcher) record(ctx context.Context, e *store.AuditEntry) {
	if d.audit == nil {
		return
	}
	if err := d.audit.AppendAuditLog(ctx, e); err != nil {
		d.logger.Warn("audit log append failed", "action", string(e.Action), "actor_id", e.ActorID, "error", err)
	}
}

func (d *Dispatcher) errorReply(verb Verb, callerID string, err error) Reply {
	switch apperror.KindOf(err) {
	case apperror.KindValidation, apperror.KindConflict, apperror.KindNoHistory, apperror.KindNoData:
		return Reply{Text: capitalize(strings.TrimSuffix(apperror.MessageOf(err), ".")) + "."}

	case apperror.KindPermission:
		if errors.Is(err, admin.ErrUnregistered) {
			return Reply{Text: "No administrator is registered yet. Use `admin create` first.", Markdown: true}
		}
		var appErr *apperror.Error
		if errors.As(err, &appErr) && appErr.Required != "" {
			return Reply{Text: fmt.Sprintf("Only the administrator (%s) can do that.", appErr.Required)}
		}
		return Reply{Text: "You are not allowed to do that."}

	case apperror.KindStorage:
		d.logger.Error("storage failure", "verb", string(verb), "caller_id", callerID, "error", err)
		return Reply{Text: "Could not reach the check-in database. Please try again."}

	case apperror.KindExternal:
		d.logger.Error("report generation failed", "verb", string(verb), "caller_id", callerID, "error", err)
		return Reply{Text: "The report service is unavailable right now. Please try again later."}

	default:
		d.logger.Error("command failed", "verb", string(verb), "caller_id", callerID, "error", err)
		return Reply{Text: "Something went wrong."}
	}
}

func streakLabel(n int) string {
	if n == 1 {
		return "1-day streak"
	}
	return fmt.Sprintf("%d-day streak", n)
}

// capitalize upper-cases a leading ASCII letter. Anything else, including
// goal names in other scripts, is returned as is.
func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r < 'a' || r > 'z' {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

const helpText = `**Goal tracker commands**
- ` + "`checkin [goal, goal...]`" + ` check in today, or repeat your last check-in
- ` + "`record [user]`" + ` totals and streaks per goal
- ` + "`analyze`" + ` a coaching report on the last 30 days
- ` + "`backfill [user] <goal> <date>`" + ` record a missed day
- ` + "`delete <goal|all> [user]`" + ` remove history
- ` + "`admin`" + ` administrator commands`

const adminHelpText = `**Administrator commands**
- ` + "`admin create`" + ` become the administrator if there is none
- ` + "`admin show`" + ` show the administrator
- ` + "`admin backup`" + ` snapshot the database
- ` + "`admin prune`" + ` apply the retention window now
- ` + "`admin delete`" + ` clear the whole ledger, then ` + "`confirm`"
