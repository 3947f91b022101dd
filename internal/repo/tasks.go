package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"taskboard/internal/domain"
)

const taskColumns = `id,title,assignee,work_date,due_date,priority,completed,notes,recur_template_id,created_at,updated_at`

// taskOrder puts unranked rows after ranked ones, then oldest first.
const taskOrder = `COALESCE(priority, 2147483647) ASC, created_at ASC, id ASC`

func scanTask(s scanner) (domain.Task, error) {
	var (
		t        domain.Task
		due      sql.NullString
		priority sql.NullInt64
		tpl      sql.NullString
		done     int
	)
	err := s.Scan(&t.ID, &t.Title, &t.Assignee, &t.WorkDate, &due, &priority, &done, &t.Notes, &tpl, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	t.DueDate = strPtr(due)
	t.RecurTemplateID = strPtr(tpl)
	if priority.Valid {
		p := int(priority.Int64)
		t.Priority = &p
	}
	t.Completed = done != 0
	return t, nil
}

func collectTasks(rows *sql.Rows) ([]domain.Task, error) {
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (r Repo) InsertTaskTx(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO tasks(`+taskColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Title, t.Assignee, t.WorkDate, nullableStr(t.DueDate), nullableInt(t.Priority), boolInt(t.Completed),
		t.Notes, nullableStr(t.RecurTemplateID), t.CreatedAt, t.UpdatedAt)
	return err
}

// UpdateTaskTx writes every mutable column of t.
func (r Repo) UpdateTaskTx(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET title=?, assignee=?, work_date=?, due_date=?, priority=?, completed=?, notes=?, recur_template_id=?, updated_at=? WHERE id=?`,
		t.Title, t.Assignee, t.WorkDate, nullableStr(t.DueDate), nullableInt(t.Priority), boolInt(t.Completed),
		t.Notes, nullableStr(t.RecurTemplateID), t.UpdatedAt, t.ID)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

func (r Repo) UpdatePriorityTx(ctx context.Context, tx *sql.Tx, id string, priority int, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET priority=?, updated_at=? WHERE id=?`, priority, updatedAt, id)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

func (r Repo) DeleteTaskTx(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return scanTask(r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id))
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, id string) (domain.Task, error) {
	return scanTask(tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id))
}

// ListTasksByDate returns a day's tasks grouped by assignee in bucket order.
func (r Repo) ListTasksByDate(ctx context.Context, date string) ([]domain.Task, error) {
	return listTasksByDate(ctx, r.DB, date)
}

func (r Repo) ListTasksByDateTx(ctx context.Context, tx *sql.Tx, date string) ([]domain.Task, error) {
	return listTasksByDate(ctx, tx, date)
}

func listTasksByDate(ctx context.Context, q queryer, date string) ([]domain.Task, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE work_date=? ORDER BY assignee ASC, `+taskOrder, date)
	if err != nil {
		return nil, err
	}
	return collectTasks(rows)
}

// ListBucketTx returns one (assignee, date) bucket in bucket order.
func (r Repo) ListBucketTx(ctx context.Context, tx *sql.Tx, assignee, date string) ([]domain.Task, error) {
	rows, err := tx.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE assignee=? AND work_date=? ORDER BY `+taskOrder, assignee, date)
	if err != nil {
		return nil, err
	}
	return collectTasks(rows)
}

// ListTemplateTasksTx returns instances of a template dated on or after cutoff.
func (r Repo) ListTemplateTasksTx(ctx context.Context, tx *sql.Tx, templateID, cutoff string) ([]domain.Task, error) {
	rows, err := tx.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE recur_template_id=? AND work_date>=? ORDER BY work_date ASC, id ASC`, templateID, cutoff)
	if err != nil {
		return nil, err
	}
	return collectTasks(rows)
}

// ListMatchingTasksTx returns tasks with the same title and assignee dated on or after cutoff.
func (r Repo) ListMatchingTasksTx(ctx context.Context, tx *sql.Tx, title, assignee, cutoff string) ([]domain.Task, error) {
	rows, err := tx.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE title=? AND assignee=? AND work_date>=? ORDER BY work_date ASC, id ASC`, title, assignee, cutoff)
	if err != nil {
		return nil, err
	}
	return collectTasks(rows)
}

type TaskFilters struct {
	From      string
	To        string
	Assignee  string
	Completed *bool
	Limit     int
}

// ListTasks returns tasks across dates, oldest date first.
func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.From != "" {
		clauses = append(clauses, "work_date>=?")
		args = append(args, f.From)
	}
	if f.To != "" {
		clauses = append(clauses, "work_date<=?")
		args = append(args, f.To)
	}
	if f.Assignee != "" {
		clauses = append(clauses, "assignee=?")
		args = append(args, f.Assignee)
	}
	if f.Completed != nil {
		clauses = append(clauses, "completed=?")
		args = append(args, boolInt(*f.Completed))
	}
	query := fmt.Sprintf(`SELECT %s FROM tasks WHERE %s ORDER BY work_date ASC, assignee ASC, %s`, taskColumns, strings.Join(clauses, " AND "), taskOrder)
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectTasks(rows)
}

// CountTasksByDate returns bucket sizes for a day keyed by assignee.
func (r Repo) CountTasksByDate(ctx context.Context, date string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT assignee, COUNT(*) FROM tasks WHERE work_date=? GROUP BY assignee`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var (
			assignee string
			n        int
		)
		if err := rows.Scan(&assignee, &n); err != nil {
			return nil, err
		}
		res[assignee] = n
	}
	return res, rows.Err()
}

// LinkTemplateTx sets or clears a task's template back-reference without touching its rank.
func (r Repo) LinkTemplateTx(ctx context.Context, tx *sql.Tx, taskID string, templateID *string, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET recur_template_id=?, updated_at=? WHERE id=?`, nullableStr(templateID), updatedAt, taskID)
	if err != nil {
		return err
	}
	return checkAffected(res)
}
