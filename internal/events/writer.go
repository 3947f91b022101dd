package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"taskboard/internal/domain"
)

const (
	TaskCreated     = "task.created"
	TaskUpdated     = "task.updated"
	TaskDeleted     = "task.deleted"
	TemplateSaved   = "template.saved"
	TemplateDeleted = "template.deleted"
)

// Writer appends change-feed rows inside the caller's transaction.
type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, entityKind, entityID, workDate, actorID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := domain.Timestamp(w.Now())
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	if actorID == "" {
		actorID = "system"
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,entity_kind,entity_id,work_date,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		ts, evtType, entityKind, nullable(entityID), nullable(workDate), actorID, string(data))
	if err != nil {
		return fmt.Errorf("append %s: %w", evtType, err)
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
