package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"taskboard/internal/domain"
	"taskboard/internal/recurrence"
)

const templateColumns = `id,title,assignee,recur_rule,start_from,recur_end,created_at,updated_at`

func scanTemplate(s scanner) (domain.Template, error) {
	var (
		t    domain.Template
		rule string
		end  sql.NullString
	)
	err := s.Scan(&t.ID, &t.Title, &t.Assignee, &rule, &t.StartFrom, &end, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	// A malformed rule is kept as the zero rule, which never applies.
	if rule != "" {
		if err := json.Unmarshal([]byte(rule), &t.Rule); err != nil {
			t.Rule = recurrence.Rule{}
		}
	}
	t.RecurEnd = strPtr(end)
	return t, nil
}

func collectTemplates(rows *sql.Rows) ([]domain.Template, error) {
	defer rows.Close()
	var res []domain.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func encodeRule(t domain.Template) (string, error) {
	data, err := json.Marshal(t.Rule)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (r Repo) InsertTemplateTx(ctx context.Context, tx *sql.Tx, t domain.Template) error {
	rule, err := encodeRule(t)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO recurring(`+templateColumns+`) VALUES (?,?,?,?,?,?,?,?)`,
		t.ID, t.Title, t.Assignee, rule, t.StartFrom, nullableStr(t.RecurEnd), t.CreatedAt, t.UpdatedAt)
	return err
}

func (r Repo) UpdateTemplateTx(ctx context.Context, tx *sql.Tx, t domain.Template) error {
	rule, err := encodeRule(t)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE recurring SET title=?, assignee=?, recur_rule=?, start_from=?, recur_end=?, updated_at=? WHERE id=?`,
		t.Title, t.Assignee, rule, t.StartFrom, nullableStr(t.RecurEnd), t.UpdatedAt, t.ID)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

func (r Repo) DeleteTemplateTx(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM recurring WHERE id=?`, id)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

func (r Repo) GetTemplate(ctx context.Context, id string) (domain.Template, error) {
	return scanTemplate(r.DB.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM recurring WHERE id=?`, id))
}

func (r Repo) GetTemplateTx(ctx context.Context, tx *sql.Tx, id string) (domain.Template, error) {
	return scanTemplate(tx.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM recurring WHERE id=?`, id))
}

func (r Repo) ListTemplates(ctx context.Context) ([]domain.Template, error) {
	return listTemplates(ctx, r.DB)
}

func (r Repo) ListTemplatesTx(ctx context.Context, tx *sql.Tx) ([]domain.Template, error) {
	return listTemplates(ctx, tx)
}

func listTemplates(ctx context.Context, q queryer) ([]domain.Template, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+templateColumns+` FROM recurring ORDER BY title ASC, created_at ASC`)
	if err != nil {
		return nil, err
	}
	return collectTemplates(rows)
}

// ListTemplatesByKeyTx returns templates sharing a (title, assignee) pair.
func (r Repo) ListTemplatesByKeyTx(ctx context.Context, tx *sql.Tx, title, assignee string) ([]domain.Template, error) {
	rows, err := tx.QueryContext(ctx, `SELECT `+templateColumns+` FROM recurring WHERE title=? AND assignee=? ORDER BY created_at ASC`, title, assignee)
	if err != nil {
		return nil, err
	}
	return collectTemplates(rows)
}
