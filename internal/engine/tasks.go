package engine

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"

	"taskboard/internal/domain"
	"taskboard/internal/events"
	"taskboard/internal/recurrence"
	"taskboard/internal/reindex"
)

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	Title    string
	Assignee string
	WorkDate string
	DueDate  string
	Notes    string
	// Priority places the task at a 1-based position; zero appends.
	Priority int
}

func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	title := strings.TrimSpace(opts.Title)
	if title == "" {
		return domain.Task{}, domain.Invalid("title", "title is required")
	}
	assignee, err := e.checkAssignee(opts.Assignee)
	if err != nil {
		return domain.Task{}, err
	}
	workDate := opts.WorkDate
	if workDate == "" {
		workDate = e.Today()
	}
	if err := checkDate("work_date", workDate); err != nil {
		return domain.Task{}, err
	}
	var due *string
	if opts.DueDate != "" {
		if err := checkDate("due_date", opts.DueDate); err != nil {
			return domain.Task{}, err
		}
		d := opts.DueDate
		due = &d
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	bucket, err := e.Repo.ListBucketTx(ctx, tx, assignee, workDate)
	if err != nil {
		return domain.Task{}, err
	}
	priority := reindex.Append(items(bucket))
	now := e.stamp()
	t := domain.Task{
		ID:        uuid.NewString(),
		Title:     title,
		Assignee:  assignee,
		WorkDate:  workDate,
		DueDate:   due,
		Priority:  &priority,
		Notes:     opts.Notes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.Repo.InsertTaskTx(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if opts.Priority > 0 {
		changes, err := reindex.MoveTo(append(items(bucket), reindex.Item{ID: t.ID, Priority: t.Priority, CreatedAt: t.CreatedAt}), t.ID, opts.Priority)
		if err != nil {
			return domain.Task{}, err
		}
		if err := e.applyRanksTx(ctx, tx, changes); err != nil {
			return domain.Task{}, err
		}
	}
	if t, err = e.Repo.GetTaskTx(ctx, tx, t.ID); err != nil {
		return domain.Task{}, err
	}
	if err := e.changeWriter().Append(ctx, tx, events.TaskCreated, "task", t.ID, t.WorkDate, actorFrom(ctx), events.EventPayload{
		"title": t.Title, "assignee": t.Assignee, "priority": t.Priority,
	}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	e.Audit.Record("create", map[string]any{"id": t.ID, "title": t.Title})
	e.notifyAssigned(ctx, t)
	return t, nil
}

func (e Engine) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return retryRead(ctx, func() (domain.Task, error) { return e.Repo.GetTask(ctx, id) })
}

// TaskPatch is a modal save. Nil fields are left unchanged; an empty
// DueDate or RecurEnd clears the value.
type TaskPatch struct {
	Title     *string
	Assignee  *string
	WorkDate  *string
	DueDate   *string
	Notes     *string
	Completed *bool
	// Priority moves the task to a 1-based position after any bucket change.
	Priority  *int
	Recurring *bool
	RecurRule *recurrence.Rule
	RecurEnd  *string
}

// SaveTask applies a patch, moves the task between buckets when its
// assignee or date changed, and keeps the linked template in step.
func (e Engine) SaveTask(ctx context.Context, id string, p TaskPatch) (domain.Task, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	before, err := e.Repo.GetTaskTx(ctx, tx, id)
	if err != nil {
		return domain.Task{}, err
	}
	t := before
	if p.Title != nil {
		t.Title = strings.TrimSpace(*p.Title)
		if t.Title == "" {
			return domain.Task{}, domain.Invalid("title", "title is required")
		}
	}
	if p.Assignee != nil {
		if t.Assignee, err = e.checkAssignee(*p.Assignee); err != nil {
			return domain.Task{}, err
		}
	}
	if p.WorkDate != nil {
		if err := checkDate("work_date", *p.WorkDate); err != nil {
			return domain.Task{}, err
		}
		t.WorkDate = *p.WorkDate
	}
	if p.DueDate != nil {
		if *p.DueDate == "" {
			t.DueDate = nil
		} else {
			if err := checkDate("due_date", *p.DueDate); err != nil {
				return domain.Task{}, err
			}
			d := *p.DueDate
			t.DueDate = &d
		}
	}
	if p.Notes != nil {
		t.Notes = *p.Notes
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
	if p.RecurEnd != nil && *p.RecurEnd != "" {
		if err := checkDate("recur_end", *p.RecurEnd); err != nil {
			return domain.Task{}, err
		}
	}
	t.UpdatedAt = e.stamp()

	moved := t.Assignee != before.Assignee || t.WorkDate != before.WorkDate
	if moved {
		sentinel := reindex.Sentinel
		t.Priority = &sentinel
	}
	if err := e.Repo.UpdateTaskTx(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if moved {
		if err := e.rebucketTx(ctx, tx, before, t); err != nil {
			return domain.Task{}, err
		}
	}
	if p.Priority != nil {
		if _, err := e.moveToTx(ctx, tx, t, *p.Priority); err != nil {
			return domain.Task{}, err
		}
	}
	tplEvent, err := e.syncTemplateTx(ctx, tx, &t, p)
	if err != nil {
		return domain.Task{}, err
	}
	if t, err = e.Repo.GetTaskTx(ctx, tx, id); err != nil {
		return domain.Task{}, err
	}
	payload := events.EventPayload{"assignee": t.Assignee, "work_date": t.WorkDate, "completed": t.Completed}
	if tplEvent != "" {
		payload["template"] = tplEvent
	}
	if err := e.changeWriter().Append(ctx, tx, events.TaskUpdated, "task", t.ID, t.WorkDate, actorFrom(ctx), payload); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	e.Audit.Record("update", map[string]any{"id": t.ID})
	if t.Assignee != before.Assignee {
		e.notifyAssigned(ctx, t)
	}
	return t, nil
}

// rebucketTx closes the gap in the origin bucket and settles the task,
// already written with the sentinel rank, at the end of its new bucket.
func (e Engine) rebucketTx(ctx context.Context, tx *sql.Tx, from, to domain.Task) error {
	if _, err := e.normalizeBucketTx(ctx, tx, to.Assignee, to.WorkDate); err != nil {
		return err
	}
	_, err := e.normalizeBucketTx(ctx, tx, from.Assignee, from.WorkDate)
	return err
}

func (e Engine) ToggleCompleted(ctx context.Context, id string) (domain.Task, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetTaskTx(ctx, tx, id)
	if err != nil {
		return domain.Task{}, err
	}
	t.Completed = !t.Completed
	t.UpdatedAt = e.stamp()
	if err := e.Repo.UpdateTaskTx(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if err := e.changeWriter().Append(ctx, tx, events.TaskUpdated, "task", t.ID, t.WorkDate, actorFrom(ctx), events.EventPayload{"completed": t.Completed}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	e.Audit.Record("toggle", map[string]any{"id": t.ID, "completed": t.Completed})
	return t, nil
}

// AssignTask moves a task to another assignee's bucket on the same date.
// Assigning to the current assignee changes nothing.
func (e Engine) AssignTask(ctx context.Context, id, who string) (domain.Task, error) {
	assignee, err := e.checkAssignee(who)
	if err != nil {
		return domain.Task{}, err
	}
	return e.changeBucket(ctx, id, assignee, "", "assign")
}

// MoveDate moves a task to another date, keeping its assignee.
func (e Engine) MoveDate(ctx context.Context, id, newDate string) (domain.Task, error) {
	if err := checkDate("work_date", newDate); err != nil {
		return domain.Task{}, err
	}
	return e.changeBucket(ctx, id, "", newDate, "move_date")
}

func (e Engine) changeBucket(ctx context.Context, id, assignee, workDate, action string) (domain.Task, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	before, err := e.Repo.GetTaskTx(ctx, tx, id)
	if err != nil {
		return domain.Task{}, err
	}
	t := before
	if assignee != "" {
		t.Assignee = assignee
	}
	if workDate != "" {
		t.WorkDate = workDate
	}
	if t.Assignee == before.Assignee && t.WorkDate == before.WorkDate {
		return before, nil
	}
	sentinel := reindex.Sentinel
	t.Priority = &sentinel
	t.UpdatedAt = e.stamp()
	if err := e.Repo.UpdateTaskTx(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if err := e.rebucketTx(ctx, tx, before, t); err != nil {
		return domain.Task{}, err
	}
	if t, err = e.Repo.GetTaskTx(ctx, tx, id); err != nil {
		return domain.Task{}, err
	}
	if err := e.changeWriter().Append(ctx, tx, events.TaskUpdated, "task", t.ID, t.WorkDate, actorFrom(ctx), events.EventPayload{
		"action": action, "from_assignee": before.Assignee, "from_date": before.WorkDate, "assignee": t.Assignee, "priority": t.Priority,
	}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	to := t.Assignee
	if action == "move_date" {
		to = t.WorkDate
	}
	e.Audit.Record(action, map[string]any{"id": t.ID, "to": to})
	if t.Assignee != before.Assignee {
		e.notifyAssigned(ctx, t)
	}
	return t, nil
}

// DeleteTask removes a task and closes the gap it leaves in its bucket.
func (e Engine) DeleteTask(ctx context.Context, id string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetTaskTx(ctx, tx, id)
	if err != nil {
		return err
	}
	if err := e.Repo.DeleteTaskTx(ctx, tx, id); err != nil {
		return err
	}
	if _, err := e.normalizeBucketTx(ctx, tx, t.Assignee, t.WorkDate); err != nil {
		return err
	}
	if err := e.changeWriter().Append(ctx, tx, events.TaskDeleted, "task", t.ID, t.WorkDate, actorFrom(ctx), events.EventPayload{"assignee": t.Assignee}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.Audit.Record("delete", map[string]any{"id": t.ID})
	return nil
}
