package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"taskboard/internal/config"
	"taskboard/internal/db"
	"taskboard/internal/domain"
	"taskboard/internal/engine"
	"taskboard/internal/migrate"
	"taskboard/internal/notify"
	"taskboard/internal/recurrence"
	"taskboard/internal/reindex"
	"taskboard/internal/repo"
)

type fakeNotifier struct {
	mu    sync.Mutex
	calls []notify.Assignment
	err   error
}

func (f *fakeNotifier) NotifyAssignment(_ context.Context, a notify.Assignment) (notify.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, a)
	if f.err != nil {
		return notify.Result{}, f.err
	}
	return notify.Result{Status: notify.StatusSent}, nil
}

type testEnv struct {
	Engine   engine.Engine
	Ctx      context.Context
	Notifier *fakeNotifier
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("test")
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC) }
	n := &fakeNotifier{}
	eng.Notifier = n
	ctx := engine.WithActor(context.Background(), "tester")
	if err := eng.Repo.UpsertBoardConfig(ctx, cfg); err != nil {
		t.Fatalf("seed config: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx, Notifier: n}
}

func (env testEnv) create(t *testing.T, title, assignee, date string) domain.Task {
	t.Helper()
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: title, Assignee: assignee, WorkDate: date})
	if err != nil {
		t.Fatalf("create %s: %v", title, err)
	}
	return task
}

// ranks returns title -> priority for one bucket, failing unless ranks are exactly 1..n.
func (env testEnv) ranks(t *testing.T, assignee, date string) map[string]int {
	t.Helper()
	tasks, err := env.Engine.ListDay(env.Ctx, date)
	if err != nil {
		t.Fatalf("list %s: %v", date, err)
	}
	out := map[string]int{}
	seen := map[int]bool{}
	for _, task := range tasks {
		if task.Assignee != assignee {
			continue
		}
		if task.Priority == nil {
			t.Fatalf("task %s has no priority", task.Title)
		}
		out[task.Title] = *task.Priority
		seen[*task.Priority] = true
	}
	for i := 1; i <= len(out); i++ {
		if !seen[i] {
			t.Fatalf("bucket %s/%s ranks not contiguous: %v", assignee, date, out)
		}
	}
	return out
}

func (env testEnv) auditActions() []string {
	var out []string
	for _, e := range env.Engine.Audit.Entries(0) {
		out = append(out, e.Action)
	}
	return out
}

func TestCreateAppendsToBucket(t *testing.T) {
	env := newTestEnv(t)
	a := env.create(t, "A", "", "2024-01-02")
	env.create(t, "B", "", "2024-01-02")
	env.create(t, "C", "", "2024-01-02")
	if a.Assignee != domain.Unassigned || a.Completed || a.Notes != "" {
		t.Fatalf("unexpected defaults %+v", a)
	}
	got := env.ranks(t, domain.Unassigned, "2024-01-02")
	if got["A"] != 1 || got["B"] != 2 || got["C"] != 3 {
		t.Fatalf("unexpected ranks %v", got)
	}
	if actions := env.auditActions(); len(actions) != 3 || actions[0] != "create" {
		t.Fatalf("unexpected audit %v", actions)
	}
	if len(env.Notifier.calls) != 0 {
		t.Fatalf("unassigned create should not notify")
	}

	// explicit position on create
	env.create(t, "D", "", "2024-01-02")
	d, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "E", WorkDate: "2024-01-02", Priority: 1})
	if err != nil || d.Priority == nil || *d.Priority != 1 {
		t.Fatalf("create at 1: %+v %v", d, err)
	}
	if got := env.ranks(t, domain.Unassigned, "2024-01-02"); got["A"] != 2 || got["D"] != 5 {
		t.Fatalf("unexpected ranks after insert at 1: %v", got)
	}
}

func TestCreateValidation(t *testing.T) {
	env := newTestEnv(t)
	cases := []engine.TaskCreateOptions{
		{Title: "  "},
		{Title: "x", Assignee: "NOBODY"},
		{Title: "x", WorkDate: "2024-13-01"},
		{Title: "x", DueDate: "tomorrow"},
	}
	for _, c := range cases {
		_, err := env.Engine.CreateTask(env.Ctx, c)
		var verr domain.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("%+v: expected validation error, got %v", c, err)
		}
	}
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "today", Assignee: "bryce"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if task.WorkDate != "2024-01-01" || task.Assignee != "BRYCE" {
		t.Fatalf("expected today and normalized assignee, got %+v", task)
	}
}

func TestShiftUp(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, "B", "BRYCE", "2024-01-02")
	a := env.create(t, "A", "BRYCE", "2024-01-02")
	if _, err := env.Engine.ShiftTask(env.Ctx, a.ID, reindex.Up); err != nil {
		t.Fatalf("shift: %v", err)
	}
	got := env.ranks(t, "BRYCE", "2024-01-02")
	if got["A"] != 1 || got["B"] != 2 {
		t.Fatalf("expected A=1 B=2, got %v", got)
	}
	// boundary is a no-op
	if _, err := env.Engine.ShiftTask(env.Ctx, a.ID, reindex.Up); err != nil {
		t.Fatalf("shift at top: %v", err)
	}
	if got := env.ranks(t, "BRYCE", "2024-01-02"); got["A"] != 1 {
		t.Fatalf("top shift changed order: %v", got)
	}
	if _, err := env.Engine.ShiftTask(env.Ctx, a.ID, "sideways"); err == nil {
		t.Fatalf("expected invalid direction error")
	}
	if actions := env.auditActions(); actions[0] != "reorder" {
		t.Fatalf("expected reorder audit, got %v", actions)
	}
}

func TestAssignMovesBetweenBuckets(t *testing.T) {
	env := newTestEnv(t)
	x1 := env.create(t, "x1", "BRYCE", "2024-01-02")
	env.create(t, "x2", "BRYCE", "2024-01-02")
	env.create(t, "x3", "BRYCE", "2024-01-02")
	env.create(t, "y1", "JUSTIN", "2024-01-02")
	env.create(t, "y2", "JUSTIN", "2024-01-02")
	env.Notifier.calls = nil

	moved, err := env.Engine.AssignTask(env.Ctx, x1.ID, "JUSTIN")
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if moved.Assignee != "JUSTIN" || moved.Priority == nil || *moved.Priority != 3 {
		t.Fatalf("moved task should be last in JUSTIN, got %+v", moved)
	}
	x := env.ranks(t, "BRYCE", "2024-01-02")
	if len(x) != 2 || x["x2"] != 1 || x["x3"] != 2 {
		t.Fatalf("origin not closed: %v", x)
	}
	y := env.ranks(t, "JUSTIN", "2024-01-02")
	if len(y) != 3 || y["y1"] != 1 || y["y2"] != 2 || y["x1"] != 3 {
		t.Fatalf("destination wrong: %v", y)
	}
	if len(env.Notifier.calls) != 1 || env.Notifier.calls[0].Assignee != "JUSTIN" || env.Notifier.calls[0].Date != "2024-01-02" {
		t.Fatalf("expected one notice to JUSTIN, got %+v", env.Notifier.calls)
	}

	before := len(env.Engine.Audit.Entries(0))
	if _, err := env.Engine.AssignTask(env.Ctx, x1.ID, "JUSTIN"); err != nil {
		t.Fatalf("same assignee: %v", err)
	}
	if len(env.Engine.Audit.Entries(0)) != before {
		t.Fatalf("same-assignee assign should be a no-op")
	}
	if _, err := env.Engine.AssignTask(env.Ctx, "missing", "JUSTIN"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMoveDateRenumbersBothDays(t *testing.T) {
	env := newTestEnv(t)
	a := env.create(t, "a", "COLE", "2024-01-02")
	env.create(t, "b", "COLE", "2024-01-02")
	env.create(t, "c", "COLE", "2024-01-03")
	moved, err := env.Engine.MoveDate(env.Ctx, a.ID, "2024-01-03")
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if moved.WorkDate != "2024-01-03" {
		t.Fatalf("unexpected date %s", moved.WorkDate)
	}
	if got := env.ranks(t, "COLE", "2024-01-02"); got["b"] != 1 {
		t.Fatalf("old day not closed: %v", got)
	}
	if got := env.ranks(t, "COLE", "2024-01-03"); got["c"] != 1 || got["a"] != 2 {
		t.Fatalf("new day wrong: %v", got)
	}
	if _, err := env.Engine.MoveDate(env.Ctx, a.ID, "03/01/2024"); err == nil {
		t.Fatalf("expected bad date error")
	}
	entries := env.Engine.Audit.Entries(1)
	if entries[0].Action != "move_date" || entries[0].Details["to"] != "2024-01-03" {
		t.Fatalf("unexpected audit %+v", entries[0])
	}
}

func TestSetPriority(t *testing.T) {
	env := newTestEnv(t)
	for _, title := range []string{"a", "b", "c"} {
		env.create(t, title, "", "2024-01-02")
	}
	d := env.create(t, "d", "", "2024-01-02")
	if _, err := env.Engine.SetPriority(env.Ctx, d.ID, 1); err != nil {
		t.Fatalf("set priority: %v", err)
	}
	got := env.ranks(t, domain.Unassigned, "2024-01-02")
	if got["d"] != 1 || got["a"] != 2 || got["c"] != 4 {
		t.Fatalf("unexpected ranks %v", got)
	}
	if _, err := env.Engine.SetPriority(env.Ctx, d.ID, 100); err != nil {
		t.Fatalf("set priority: %v", err)
	}
	if got := env.ranks(t, domain.Unassigned, "2024-01-02"); got["d"] != 4 {
		t.Fatalf("out of range should clamp to last: %v", got)
	}
	if _, err := env.Engine.SetPriority(env.Ctx, d.ID, 2); err != nil {
		t.Fatalf("set priority: %v", err)
	}
	if _, err := env.Engine.SetPriority(env.Ctx, d.ID, 0); err != nil {
		t.Fatalf("set priority: %v", err)
	}
	if got := env.ranks(t, domain.Unassigned, "2024-01-02"); got["d"] != 4 {
		t.Fatalf("unset should place last: %v", got)
	}
	if e := env.Engine.Audit.Entries(1)[0]; e.Action != "reorder_set" || e.Details["to"] != reindex.Sentinel {
		t.Fatalf("unexpected audit %+v", e)
	}
	if _, err := env.Engine.SetPriority(env.Ctx, d.ID, -3); err != nil {
		t.Fatalf("set priority: %v", err)
	}
	if got := env.ranks(t, domain.Unassigned, "2024-01-02"); got["d"] != 1 || got["a"] != 2 {
		t.Fatalf("negative should clamp to first: %v", got)
	}
	if e := env.Engine.Audit.Entries(1)[0]; e.Details["to"] != 1 {
		t.Fatalf("audit should record the clamped position: %+v", e)
	}
}

func TestDeleteClosesGap(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, "a", "", "2024-01-02")
	b := env.create(t, "b", "", "2024-01-02")
	env.create(t, "c", "", "2024-01-02")
	if err := env.Engine.DeleteTask(env.Ctx, b.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := env.ranks(t, domain.Unassigned, "2024-01-02"); got["a"] != 1 || got["c"] != 2 {
		t.Fatalf("gap not closed: %v", got)
	}
	if err := env.Engine.DeleteTask(env.Ctx, b.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestToggleAndSaveFields(t *testing.T) {
	env := newTestEnv(t)
	task := env.create(t, "a", "", "2024-01-02")
	toggled, err := env.Engine.ToggleCompleted(env.Ctx, task.ID)
	if err != nil || !toggled.Completed {
		t.Fatalf("toggle: %+v %v", toggled, err)
	}
	title, notes, due := "renamed", "bring tools", "2024-01-05"
	saved, err := env.Engine.SaveTask(env.Ctx, task.ID, engine.TaskPatch{Title: &title, Notes: &notes, DueDate: &due})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.Title != title || saved.Notes != notes || saved.DueDate == nil || *saved.DueDate != due || !saved.Completed {
		t.Fatalf("unexpected saved task %+v", saved)
	}
	empty := ""
	saved, err = env.Engine.SaveTask(env.Ctx, task.ID, engine.TaskPatch{DueDate: &empty})
	if err != nil || saved.DueDate != nil {
		t.Fatalf("clear due date: %+v %v", saved, err)
	}
}

func TestSaveTaskReassignsAndNotifies(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, "keep", "COLE", "2024-01-02")
	task := env.create(t, "a", "", "2024-01-02")
	env.create(t, "b", "", "2024-01-02")
	env.Notifier.calls = nil
	who, day := "COLE", "2024-01-03"
	saved, err := env.Engine.SaveTask(env.Ctx, task.ID, engine.TaskPatch{Assignee: &who, WorkDate: &day})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.Priority == nil || *saved.Priority != 1 {
		t.Fatalf("expected rank 1 in empty bucket, got %+v", saved.Priority)
	}
	if got := env.ranks(t, domain.Unassigned, "2024-01-02"); got["b"] != 1 {
		t.Fatalf("origin not closed: %v", got)
	}
	if len(env.Notifier.calls) != 1 || env.Notifier.calls[0].Date != "2024-01-03" {
		t.Fatalf("expected notice, got %+v", env.Notifier.calls)
	}
}

func TestNotifyFailureKeepsMutation(t *testing.T) {
	env := newTestEnv(t)
	env.Notifier.err = domain.UpstreamError{Service: "Email", StatusCode: 500, Body: "down"}
	task := env.create(t, "a", "", "2024-01-02")
	moved, err := env.Engine.AssignTask(env.Ctx, task.ID, "BRYCE")
	if err != nil {
		t.Fatalf("assign should succeed despite notice failure: %v", err)
	}
	stored, err := env.Engine.GetTask(env.Ctx, moved.ID)
	if err != nil || stored.Assignee != "BRYCE" {
		t.Fatalf("assignment not committed: %+v %v", stored, err)
	}
	actions := env.auditActions()
	if actions[0] != "notify_failed" || actions[1] != "assign" {
		t.Fatalf("unexpected audit %v", actions)
	}
}

func makeRecurring(t *testing.T, env testEnv, task domain.Task, rule recurrence.Rule) domain.Task {
	t.Helper()
	on := true
	saved, err := env.Engine.SaveTask(env.Ctx, task.ID, engine.TaskPatch{Recurring: &on, RecurRule: &rule})
	if err != nil {
		t.Fatalf("make recurring: %v", err)
	}
	if saved.RecurTemplateID == nil {
		t.Fatalf("task not linked to template")
	}
	return saved
}

func TestSaveTemplateStartFrom(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Now = func() time.Time { return time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC) }
	past := makeRecurring(t, env, env.create(t, "past", "BRYCE", "2024-01-05"), recurrence.Rule{Type: recurrence.Daily})
	future := makeRecurring(t, env, env.create(t, "future", "BRYCE", "2024-01-20"), recurrence.Rule{Type: recurrence.Daily})

	tpl, err := env.Engine.GetTemplate(env.Ctx, *past.RecurTemplateID)
	if err != nil || tpl.StartFrom != "2024-01-10" {
		t.Fatalf("expected start_from today, got %+v %v", tpl, err)
	}
	tpl, err = env.Engine.GetTemplate(env.Ctx, *future.RecurTemplateID)
	if err != nil || tpl.StartFrom != "2024-01-20" {
		t.Fatalf("expected start_from task date, got %+v %v", tpl, err)
	}

	// editing updates the same template in place
	title := "future renamed"
	end := "2024-02-01"
	if _, err := env.Engine.SaveTask(env.Ctx, future.ID, engine.TaskPatch{Title: &title, RecurEnd: &end}); err != nil {
		t.Fatalf("save: %v", err)
	}
	templates, err := env.Engine.ListTemplates(env.Ctx)
	if err != nil || len(templates) != 2 {
		t.Fatalf("expected 2 templates, got %d %v", len(templates), err)
	}
	tpl, _ = env.Engine.GetTemplate(env.Ctx, *future.RecurTemplateID)
	if tpl.Title != title || tpl.RecurEnd == nil || *tpl.RecurEnd != end {
		t.Fatalf("template not updated: %+v", tpl)
	}

	bad := recurrence.Rule{Type: "hourly"}
	on := true
	if _, err := env.Engine.SaveTask(env.Ctx, past.ID, engine.TaskPatch{Recurring: &on, RecurRule: &bad}); err == nil {
		t.Fatalf("expected invalid rule error")
	}
}

func TestInstanceEditsLeaveTemplate(t *testing.T) {
	env := newTestEnv(t)
	src := makeRecurring(t, env, env.create(t, "standup", "BRYCE", "2024-01-01"), recurrence.Rule{Type: recurrence.Daily})
	res, err := env.Engine.Materialize(env.Ctx, "2024-01-05")
	if err != nil || len(res.Created) != 1 {
		t.Fatalf("materialize: %d %v", len(res.Created), err)
	}
	inst := res.Created[0]

	notes := "bring coffee"
	if _, err := env.Engine.SaveTask(env.Ctx, inst.ID, engine.TaskPatch{Notes: &notes}); err != nil {
		t.Fatalf("save notes: %v", err)
	}
	title := "standup (moved to 10am)"
	edited, err := env.Engine.SaveTask(env.Ctx, inst.ID, engine.TaskPatch{Title: &title})
	if err != nil {
		t.Fatalf("save title: %v", err)
	}
	if edited.Title != title || edited.RecurTemplateID == nil || *edited.RecurTemplateID != *src.RecurTemplateID {
		t.Fatalf("unexpected instance %+v", edited)
	}

	tpl, err := env.Engine.GetTemplate(env.Ctx, *src.RecurTemplateID)
	if err != nil {
		t.Fatalf("get template: %v", err)
	}
	if tpl.Title != "standup" || tpl.Assignee != "BRYCE" || tpl.StartFrom != "2024-01-01" {
		t.Fatalf("instance edit leaked into template: %+v", tpl)
	}
	earlier, err := env.Engine.Materialize(env.Ctx, "2024-01-03")
	if err != nil || len(earlier.Created) != 1 || earlier.Created[0].Title != "standup" {
		t.Fatalf("earlier date should still materialize: %+v %v", earlier.Created, err)
	}
}

func TestRecurringOffDeletesTemplate(t *testing.T) {
	env := newTestEnv(t)
	task := makeRecurring(t, env, env.create(t, "standup", "BRYCE", "2024-01-02"), recurrence.Rule{Type: recurrence.Daily})
	off := false
	saved, err := env.Engine.SaveTask(env.Ctx, task.ID, engine.TaskPatch{Recurring: &off})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.RecurTemplateID != nil {
		t.Fatalf("link should be cleared, got %v", *saved.RecurTemplateID)
	}
	if _, err := env.Engine.GetTemplate(env.Ctx, *task.RecurTemplateID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("template should be gone, got %v", err)
	}
}

func TestMaterializeIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, "other", "BRYCE", "2024-01-03")
	tpl := makeRecurring(t, env, env.create(t, "standup", "BRYCE", "2024-01-02"), recurrence.Rule{Type: recurrence.Weekdays})

	res, err := env.Engine.Materialize(env.Ctx, "2024-01-03")
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if len(res.Created) != 1 {
		t.Fatalf("expected one instance, got %d", len(res.Created))
	}
	inst := res.Created[0]
	if inst.Title != "standup" || inst.Completed || inst.Notes != "" || *inst.Priority != 2 || *inst.RecurTemplateID != *tpl.RecurTemplateID {
		t.Fatalf("unexpected instance %+v", inst)
	}
	again, err := env.Engine.Materialize(env.Ctx, "2024-01-03")
	if err != nil || len(again.Created) != 0 {
		t.Fatalf("second run should be a no-op: %d %v", len(again.Created), err)
	}
	// the template's own day already has its task
	if res, _ := env.Engine.Materialize(env.Ctx, "2024-01-02"); len(res.Created) != 0 {
		t.Fatalf("source day should not get a second instance")
	}
	// 2024-01-06 is a Saturday
	if res, _ := env.Engine.Materialize(env.Ctx, "2024-01-06"); len(res.Created) != 0 {
		t.Fatalf("weekday rule fired on a weekend")
	}
	// before start_from
	if res, _ := env.Engine.Materialize(env.Ctx, "2023-12-29"); len(res.Created) != 0 {
		t.Fatalf("template fired before start_from")
	}
	entries := env.Engine.Audit.Entries(0)
	found := 0
	for _, e := range entries {
		if e.Action == "recurrence_instance" {
			found++
		}
	}
	if found != 1 {
		t.Fatalf("expected one recurrence_instance audit entry, got %d", found)
	}
}

func TestMaterializeKeysOnTemplate(t *testing.T) {
	env := newTestEnv(t)
	makeRecurring(t, env, env.create(t, "check van", "COLE", "2024-01-02"), recurrence.Rule{Type: recurrence.Daily})
	makeRecurring(t, env, env.create(t, "check van", "COLE", "2024-01-02"), recurrence.Rule{Type: recurrence.Daily})
	res, err := env.Engine.Materialize(env.Ctx, "2024-01-04")
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if len(res.Created) != 2 {
		t.Fatalf("two templates with one title should both materialize, got %d", len(res.Created))
	}
	tasks, err := env.Engine.ListDay(env.Ctx, "2024-01-04")
	if err != nil || len(tasks) != 2 || *tasks[0].Priority != 1 || *tasks[1].Priority != 2 {
		t.Fatalf("expected 2 ranked instances, got %d %v", len(tasks), err)
	}

	// title_assignee compatibility mode suppresses the second one
	env2 := newTestEnv(t)
	env2.Engine.Config.Recurrence.MatchKey = config.MatchTitleAssignee
	makeRecurring(t, env2, env2.create(t, "check van", "COLE", "2024-01-02"), recurrence.Rule{Type: recurrence.Daily})
	env2.create(t, "check van", "COLE", "2024-01-04")
	res, err = env2.Engine.Materialize(env2.Ctx, "2024-01-04")
	if err != nil || len(res.Created) != 0 {
		t.Fatalf("compat mode should match by title: %d %v", len(res.Created), err)
	}
}

func TestEndRecurringNow(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Now = func() time.Time { return time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC) }
	first := makeRecurring(t, env, env.create(t, "inspect", "JUSTIN", "2024-01-01"), recurrence.Rule{Type: recurrence.FirstOfMonth})
	for _, day := range []string{"2024-02-01", "2024-03-01"} {
		if res, err := env.Engine.Materialize(env.Ctx, day); err != nil || len(res.Created) != 1 {
			t.Fatalf("materialize %s: %v", day, err)
		}
	}
	feb, err := env.Engine.ListDay(env.Ctx, "2024-02-01")
	if err != nil || len(feb) != 1 {
		t.Fatalf("list feb: %v", err)
	}

	res, err := env.Engine.EndRecurringNow(env.Ctx, feb[0].ID)
	if err != nil {
		t.Fatalf("end recurring: %v", err)
	}
	if res.Cutoff != "2024-02-01" || len(res.DeletedTasks) != 2 || len(res.DeletedTemplates) != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	kept, err := env.Engine.GetTask(env.Ctx, first.ID)
	if err != nil {
		t.Fatalf("past instance should be kept: %v", err)
	}
	if kept.RecurTemplateID != nil {
		t.Fatalf("past instance should lose its template link")
	}
	if mar, _ := env.Engine.ListDay(env.Ctx, "2024-03-01"); len(mar) != 0 {
		t.Fatalf("future instance should be deleted")
	}
	if tpls, _ := env.Engine.ListTemplates(env.Ctx); len(tpls) != 0 {
		t.Fatalf("template should be deleted")
	}
	if res, _ := env.Engine.Materialize(env.Ctx, "2024-04-01"); len(res.Created) != 0 {
		t.Fatalf("ended template still materializes")
	}
}

func TestEndRecurringNowByTitleWithoutTemplate(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, "sweep", "BRYCE", "2024-01-01")
	mid := env.create(t, "sweep", "BRYCE", "2024-02-01")
	env.create(t, "other", "BRYCE", "2024-03-01")
	late := env.create(t, "sweep", "BRYCE", "2024-03-01")

	res, err := env.Engine.EndRecurringNow(env.Ctx, mid.ID)
	if err != nil {
		t.Fatalf("end recurring: %v", err)
	}
	if len(res.DeletedTasks) != 2 || len(res.DeletedTemplates) != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if _, err := env.Engine.GetTask(env.Ctx, late.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("future match should be deleted")
	}
	if got := env.ranks(t, "BRYCE", "2024-03-01"); got["other"] != 1 {
		t.Fatalf("bucket not renumbered: %v", got)
	}
	if got := env.ranks(t, "BRYCE", "2024-01-01"); got["sweep"] != 1 {
		t.Fatalf("past match should be kept: %v", got)
	}
}

func TestBoardColumns(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, "u1", "", "2024-01-02")
	done := env.create(t, "b1", "BRYCE", "2024-01-02")
	env.create(t, "b2", "BRYCE", "2024-01-02")
	if _, err := env.Engine.ToggleCompleted(env.Ctx, done.ID); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	b, err := env.Engine.Board(env.Ctx, "2024-01-02", engine.BoardOptions{HideCompleted: map[string]bool{"BRYCE": true}})
	if err != nil {
		t.Fatalf("board: %v", err)
	}
	if b.Weekday != "Tuesday" || len(b.Columns) != 4 {
		t.Fatalf("unexpected board %+v", b)
	}
	want := []string{"UNASSIGNED", "BRYCE", "JUSTIN", "COLE"}
	for i, col := range b.Columns {
		if col.Assignee != want[i] {
			t.Fatalf("column %d is %s, want %s", i, col.Assignee, want[i])
		}
	}
	bryce := b.Columns[1]
	if bryce.Title != "Bryce" || len(bryce.Tasks) != 1 || bryce.Tasks[0].Title != "b2" || bryce.Hidden != 1 {
		t.Fatalf("unexpected BRYCE column %+v", bryce)
	}

	view, err := env.Engine.ViewDay(env.Ctx, "", engine.BoardOptions{})
	if err != nil || view.Date != "2024-01-01" {
		t.Fatalf("view today: %+v %v", view.Date, err)
	}
}

func TestChangesAreRecorded(t *testing.T) {
	env := newTestEnv(t)
	task := env.create(t, "a", "", "2024-01-02")
	if _, err := env.Engine.AssignTask(env.Ctx, task.ID, "COLE"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	changes, err := env.Engine.Repo.EventsAfter(env.Ctx, 10, 0, "task")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(changes) != 2 || changes[0].Type != "task.created" || changes[1].Type != "task.updated" {
		t.Fatalf("unexpected changes %+v", changes)
	}
	if changes[1].ActorID != "tester" || changes[1].EntityID != task.ID {
		t.Fatalf("unexpected change row %+v", changes[1])
	}
}
