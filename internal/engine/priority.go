package engine

import (
	"context"
	"database/sql"

	"taskboard/internal/domain"
	"taskboard/internal/events"
	"taskboard/internal/reindex"
)

// ShiftTask swaps a task with its neighbour in bucket order and renumbers
// the whole bucket. At either end the order stays but gaps are closed.
func (e Engine) ShiftTask(ctx context.Context, id string, dir reindex.Direction) (domain.Task, error) {
	if dir != reindex.Up && dir != reindex.Down {
		return domain.Task{}, domain.Invalid("direction", "must be up or down")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetTaskTx(ctx, tx, id)
	if err != nil {
		return domain.Task{}, err
	}
	bucket, err := e.Repo.ListBucketTx(ctx, tx, t.Assignee, t.WorkDate)
	if err != nil {
		return domain.Task{}, err
	}
	changes, err := reindex.Shift(items(bucket), id, dir)
	if err != nil {
		return domain.Task{}, err
	}
	if err := e.applyRanksTx(ctx, tx, changes); err != nil {
		return domain.Task{}, err
	}
	if t, err = e.Repo.GetTaskTx(ctx, tx, id); err != nil {
		return domain.Task{}, err
	}
	if err := e.changeWriter().Append(ctx, tx, events.TaskUpdated, "task", t.ID, t.WorkDate, actorFrom(ctx), events.EventPayload{
		"action": "reorder", "dir": string(dir), "priority": t.Priority, "changed": len(changes),
	}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	e.Audit.Record("reorder", map[string]any{"id": t.ID, "dir": string(dir)})
	return t, nil
}

// SetPriority moves a task to a 1-based position in its bucket. Positions
// past the end place it last and negative ones place it first; n == 0 is
// treated as unset and places it last.
func (e Engine) SetPriority(ctx context.Context, id string, n int) (domain.Task, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetTaskTx(ctx, tx, id)
	if err != nil {
		return domain.Task{}, err
	}
	changed, err := e.moveToTx(ctx, tx, t, n)
	if err != nil {
		return domain.Task{}, err
	}
	if t, err = e.Repo.GetTaskTx(ctx, tx, id); err != nil {
		return domain.Task{}, err
	}
	if err := e.changeWriter().Append(ctx, tx, events.TaskUpdated, "task", t.ID, t.WorkDate, actorFrom(ctx), events.EventPayload{
		"action": "reorder_set", "priority": t.Priority, "changed": changed,
	}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	desired := n
	switch {
	case n == 0:
		desired = reindex.Sentinel
	case n < 0:
		desired = 1
	}
	e.Audit.Record("reorder_set", map[string]any{"id": t.ID, "to": desired})
	return t, nil
}

func (e Engine) moveToTx(ctx context.Context, tx *sql.Tx, t domain.Task, n int) (int, error) {
	bucket, err := e.Repo.ListBucketTx(ctx, tx, t.Assignee, t.WorkDate)
	if err != nil {
		return 0, err
	}
	changes, err := reindex.MoveTo(items(bucket), t.ID, n)
	if err != nil {
		return 0, err
	}
	return len(changes), e.applyRanksTx(ctx, tx, changes)
}
