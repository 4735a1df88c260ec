// ABOUTME: Tests for the command dispatcher
// ABOUTME: Wires real services over a temporary SQLite ledger and a manual clock

package commands

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/goal-tracker/internal/admin"
	"github.com/2389/goal-tracker/internal/backup"
	"github.com/2389/goal-tracker/internal/checkin"
	"github.com/2389/goal-tracker/internal/clock"
	"github.com/2389/goal-tracker/internal/report"
	"github.com/2389/goal-tracker/internal/store"
)

type testEnv struct {
	d      *Dispatcher
	ledger *store.SQLiteStore
	clock  *clock.Manual
	gen    *fakeGenerator
}

type fakeGenerator struct {
	text  string
	err   error
	calls int
}

func (g *fakeGenerator) Generate(context.Context, string) (string, error) {
	g.calls++
	return g.text, g.err
}

func setupDispatcher(t *testing.T) *testEnv {
	t.Helper()

	dir := t.TempDir()
	clk := clock.NewManual(time.Date(2025, 3, 17, 9, 0, 0, 0, clock.Zone))

	s, err := store.NewSQLiteStore(filepath.Join(dir, "checkins.db"), clk)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	authority, err := admin.NewAuthority(admin.NewRecordFile(filepath.Join(dir, "admin.json")), s, clk)
	require.NoError(t, err)

	gen := &fakeGenerator{text: "Great week."}
	reports := report.NewService(
		report.NewFileCache(filepath.Join(dir, "reports.json"), report.DefaultTTL, clk),
		s, gen, clk,
		report.WithRetry(1, time.Millisecond))

	d := NewDispatcher(Deps{
		Checkins:  checkin.NewService(s, clk, nil),
		Authority: authority,
		Reports:   reports,
		Backups:   backup.NewRotator(s.Path(), filepath.Join(dir, "backups"), 3, s, clk, nil),
		Audit:     s,
		Clock:     clk,
	})
	return &testEnv{d: d, ledger: s, clock: clk, gen: gen}
}

func (e *testEnv) send(t *testing.T, caller, verb string, args ...string) Reply {
	t.Helper()
	reply, ok := e.d.Handle(context.Background(), Request{Verb: verb, CallerID: caller, Args: args})
	require.True(t, ok, "verb %q not handled", verb)
	return reply
}

func TestResolve(t *testing.T) {
	verb, args, ok := Resolve("/打卡")
	assert.True(t, ok)
	assert.Equal(t, VerbCheckin, verb)
	assert.Empty(t, args)

	verb, args, ok = Resolve("创建打卡管理员")
	assert.True(t, ok)
	assert.Equal(t, VerbAdmin, verb)
	assert.Equal(t, []string{"create"}, args)

	verb, _, ok = Resolve("CheckIn")
	assert.True(t, ok)
	assert.Equal(t, VerbCheckin, verb)

	_, _, ok = Resolve("hello")
	assert.False(t, ok)
}

func TestHandle_UnknownVerb(t *testing.T) {
	env := setupDispatcher(t)

	_, ok := env.d.Handle(context.Background(), Request{Verb: "weather", CallerID: "alice"})
	assert.False(t, ok)
}

func TestCheckinAndRepeat(t *testing.T) {
	env := setupDispatcher(t)

	reply := env.send(t, "alice", "打卡", "run，read")
	assert.True(t, reply.Markdown)
	assert.Contains(t, reply.Text, "**run** (1-day streak)")
	assert.Contains(t, reply.Text, "**read** (1-day streak)")

	reply = env.send(t, "alice", "checkin", "run")
	assert.Equal(t, "Already checked in today: run", reply.Text)

	env.clock.Advance(24 * time.Hour)
	reply = env.send(t, "alice", "/checkin")
	assert.Contains(t, reply.Text, "Repeating your last check-in.")
	assert.Contains(t, reply.Text, "**run** (2-day streak)")
}

func TestCheckin_Errors(t *testing.T) {
	env := setupDispatcher(t)

	assert.Equal(t, "No previous check-in to repeat.", env.send(t, "alice", "checkin").Text)
	assert.Equal(t, "Goal list is empty.", env.send(t, "alice", "checkin", "，", ",").Text)
}

func TestRecord(t *testing.T) {
	env := setupDispatcher(t)

	assert.Equal(t, "No check-ins yet.", env.send(t, "alice", "record").Text)

	env.send(t, "alice", "checkin", "run")
	env.clock.Advance(24 * time.Hour)
	env.send(t, "alice", "checkin", "run", "read")

	reply := env.send(t, "alice", "打卡记录")
	assert.Contains(t, reply.Text, "- run: 2 total, 2-day streak, best 2")
	assert.Contains(t, reply.Text, "- read: 1 total, 1-day streak, best 1")
	assert.Contains(t, reply.Text, "Overall: 2-day streak")
}

func TestAdminRegistration(t *testing.T) {
	env := setupDispatcher(t)

	assert.Equal(t, "No administrator is registered.", env.send(t, "alice", "admin", "show").Text)
	assert.Contains(t, env.send(t, "bob", "admin", "backup").Text, "No administrator is registered yet")

	assert.Equal(t, "You are now the administrator.", env.send(t, "alice", "创建打卡管理员").Text)
	assert.Equal(t, "An administrator already exists: alice", env.send(t, "bob", "admin", "create").Text)
	assert.Equal(t, "Administrator: alice", env.send(t, "bob", "打卡管理", "查看").Text)
}

func TestActingOnOthersRequiresAdmin(t *testing.T) {
	env := setupDispatcher(t)

	env.send(t, "alice", "admin", "create")
	env.send(t, "bob", "checkin", "swim")

	assert.Equal(t, "Only the administrator (alice) can do that.", env.send(t, "bob", "record", "carol").Text)
	assert.Equal(t, "Only the administrator (alice) can do that.", env.send(t, "bob", "delete", "all", "carol").Text)

	assert.Contains(t, env.send(t, "alice", "record", "bob").Text, "- swim: 1 total")
	assert.Equal(t, "Deleted 1 check-ins for bob.", env.send(t, "alice", "delete", "所有", "bob").Text)
}

func TestDelete(t *testing.T) {
	env := setupDispatcher(t)

	env.send(t, "alice", "checkin", "run, read")

	assert.Equal(t, "Deleted run and its 1 check-ins.", env.send(t, "alice", "打卡删除", "run").Text)
	assert.Equal(t, "No check-ins found for run.", env.send(t, "alice", "delete", "run").Text)
	assert.Equal(t, "Deleted 1 check-ins for alice.", env.send(t, "alice", "delete", "all").Text)
	assert.Contains(t, env.send(t, "alice", "delete").Text, "Usage: delete")
}

func TestBackfill_ChineseGoalConflict(t *testing.T) {
	env := setupDispatcher(t)

	assert.Equal(t, "Back-filled 跑步 on 2025-03-16.", env.send(t, "alice", "补打卡", "跑步", "2025-03-16").Text)

	reply := env.send(t, "alice", "补打卡", "跑步", "2025-03-16")
	assert.True(t, utf8.ValidString(reply.Text))
	assert.Equal(t, "Already checked in 跑步 on 2025-03-16.", reply.Text)
}

func TestCapitalize(t *testing.T) {
	assert.Equal(t, "Goal list is empty", capitalize("goal list is empty"))
	assert.Equal(t, "跑步 x", capitalize("跑步 x"))
	assert.Equal(t, "Run", capitalize("Run"))
	assert.Equal(t, "", capitalize(""))
}

func TestBackfill(t *testing.T) {
	env := setupDispatcher(t)

	assert.Equal(t, "Back-filled run on 2025-03-16.", env.send(t, "alice", "补打卡", "run", "2025-03-16").Text)
	assert.Equal(t, "Already checked in run on 2025-03-16.", env.send(t, "alice", "backfill", "run", "20250316").Text)
	assert.Contains(t, env.send(t, "alice", "backfill", "run", "someday").Text, `Cannot read "someday" as a date`)
	assert.Equal(t, "Cannot back-fill a check-in in the future.", env.send(t, "alice", "backfill", "run", "2025-03-20").Text)

	env.send(t, "alice", "admin", "create")
	assert.Equal(t, "Only the administrator (alice) can do that.",
		env.send(t, "bob", "backfill", "alice", "run", "2025-03-15").Text)
	assert.Equal(t, "Back-filled swim on 2025-03-15.",
		env.send(t, "alice", "backfill", "bob", "swim", "2025-03-15", "08:00").Text)
}

func TestClearAllConfirmation(t *testing.T) {
	env := setupDispatcher(t)

	env.send(t, "alice", "admin", "create")
	env.send(t, "alice", "checkin", "run")
	env.send(t, "bob", "checkin", "read")

	assert.Equal(t, "Only the administrator (alice) can do that.", env.send(t, "bob", "admin", "delete").Text)

	reply := env.send(t, "alice", "打卡管理", "删除")
	assert.Contains(t, reply.Text, "within 7 seconds")

	assert.Equal(t, "Only the administrator (alice) can do that.", env.send(t, "bob", "confirm").Text)

	env.clock.Advance(5 * time.Second)
	assert.Equal(t, "Ledger cleared: 2 check-ins and 2 goals deleted.", env.send(t, "alice", "确认清空").Text)
	assert.Equal(t, "No check-ins yet.", env.send(t, "bob", "record").Text)
}

func TestClearAllExpires(t *testing.T) {
	env := setupDispatcher(t)
	env.send(t, "alice", "admin", "create")
	env.send(t, "alice", "checkin", "run")

	var notices []Reply
	_, ok := env.d.Handle(context.Background(), Request{
		Verb:     "admin",
		CallerID: "alice",
		Args:     []string{"clear"},
		Notify:   func(r Reply) { notices = append(notices, r) },
	})
	require.True(t, ok)

	env.clock.Advance(8 * time.Second)
	require.Len(t, notices, 1)
	assert.Equal(t, "Clear-all request expired. Nothing was deleted.", notices[0].Text)

	assert.Equal(t, "Nothing to confirm, the request may have expired.", env.send(t, "alice", "confirm").Text)
	assert.Contains(t, env.send(t, "alice", "record").Text, "- run: 1 total")
}

func TestAnalyze(t *testing.T) {
	env := setupDispatcher(t)

	assert.Equal(t, "No check-ins in the last 30 days.", env.send(t, "alice", "analyze").Text)
	assert.Equal(t, 0, env.gen.calls)

	env.send(t, "alice", "checkin", "run")

	reply := env.send(t, "alice", "打卡分析")
	assert.True(t, reply.Markdown)
	assert.Equal(t, "Great week.", reply.Text)

	reply = env.send(t, "alice", "analyze")
	assert.Contains(t, reply.Text, "_Generated 2025-03-17 09:00_")
	assert.Equal(t, 1, env.gen.calls)
}

func TestAnalyze_GeneratorFailure(t *testing.T) {
	env := setupDispatcher(t)
	env.gen.err = errors.New("upstream 503")

	env.send(t, "alice", "checkin", "run")
	assert.Equal(t, "The report service is unavailable right now. Please try again later.",
		env.send(t, "alice", "analyze").Text)
}

func TestAdminBackupAndPrune(t *testing.T) {
	env := setupDispatcher(t)
	env.send(t, "alice", "admin", "create")
	env.send(t, "alice", "checkin", "run")

	assert.Contains(t, env.send(t, "alice", "admin", "备份").Text, "Backup written: checkin_backup_")

	env.clock.Advance(31 * 24 * time.Hour)
	assert.Equal(t, "Pruned 1 check-ins and 1 goals older than 30 days.", env.send(t, "alice", "admin", "prune").Text)
}

func TestHelp(t *testing.T) {
	env := setupDispatcher(t)

	reply := env.send(t, "alice", "help")
	assert.True(t, reply.Markdown)
	assert.Contains(t, reply.Text, "backfill")

	assert.Contains(t, env.send(t, "alice", "admin").Text, "Administrator commands")
	assert.Equal(t, `Unknown admin command "launch".`, env.send(t, "alice", "admin", "launch").Text)
}

func TestPrivilegedActionsAreAudited(t *testing.T) {
	env := setupDispatcher(t)
	ctx := context.Background()

	env.send(t, "alice", "admin", "create")
	env.send(t, "bob", "admin", "create")
	env.send(t, "alice", "checkin", "run")
	env.send(t, "alice", "backfill", "bob", "swim", "2025-03-16")
	env.send(t, "alice", "record", "bob")
	env.send(t, "alice", "admin", "delete")
	env.send(t, "alice", "confirm")

	entries, err := env.ledger.ListAuditLog(ctx, store.AuditFilter{})
	require.NoError(t, err)

	var actions []store.AuditAction
	for _, e := range entries {
		assert.Equal(t, "alice", e.ActorID)
		actions = append(actions, e.Action)
	}
	assert.Equal(t, []store.AuditAction{store.AuditClearAll, store.AuditManageOthers, store.AuditRegisterAdmin}, actions)
	assert.Equal(t, "bob", entries[1].Target)
	assert.Equal(t, "backfill", entries[1].Detail["op"])
}
