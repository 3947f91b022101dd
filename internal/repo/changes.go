package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"taskboard/internal/domain"
)

const changeColumns = `id,ts,type,entity_kind,COALESCE(entity_id,''),COALESCE(work_date,''),actor_id,payload_json`

func collectChanges(rows *sql.Rows) ([]domain.Change, error) {
	defer rows.Close()
	var res []domain.Change
	for rows.Next() {
		var c domain.Change
		if err := rows.Scan(&c.ID, &c.TS, &c.Type, &c.EntityKind, &c.EntityID, &c.WorkDate, &c.ActorID, &c.Payload); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// EventsAfter returns change rows with IDs greater than the cursor in ascending order.
// An empty kind matches every entity kind.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64, kind string) ([]domain.Change, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{"id>?"}
	args := []any{cursor}
	if kind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, kind)
	}
	query := fmt.Sprintf(`SELECT %s FROM events WHERE %s ORDER BY id ASC LIMIT ?`, changeColumns, strings.Join(clauses, " AND "))
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectChanges(rows)
}

// LatestEvents returns the newest change rows first.
func (r Repo) LatestEvents(ctx context.Context, limit int, kind string) ([]domain.Change, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + changeColumns + ` FROM events`
	var args []any
	if kind != "" {
		query += ` WHERE entity_kind=?`
		args = append(args, kind)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectChanges(rows)
}

func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	if err := r.DB.QueryRowContext(ctx, `SELECT MAX(id) FROM events`).Scan(&id); err != nil {
		return 0, err
	}
	if !id.Valid {
		return 0, nil
	}
	return id.Int64, nil
}

// PruneEventsBefore deletes change rows older than ts and reports how many went.
func (r Repo) PruneEventsBefore(ctx context.Context, ts string) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM events WHERE ts<?`, ts)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
