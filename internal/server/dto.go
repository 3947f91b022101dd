package server

import (
	"taskboard/internal/audit"
	"taskboard/internal/config"
	"taskboard/internal/domain"
	"taskboard/internal/engine"
	"taskboard/internal/recurrence"
)

// Request payloads

type UnlockRequest struct {
	Passphrase string `json:"passphrase"`
}

type CreateTaskRequest struct {
	Title    string  `json:"title"`
	Assignee string  `json:"assignee,omitempty"`
	WorkDate string  `json:"work_date" format:"date"`
	DueDate  *string `json:"due_date,omitempty" format:"date"`
	Notes    string  `json:"notes,omitempty"`
	Priority int     `json:"priority,omitempty"`
}

// SaveTaskRequest mirrors the task modal: absent fields stay unchanged.
type SaveTaskRequest struct {
	Title     *string          `json:"title,omitempty"`
	Assignee  *string          `json:"assignee,omitempty"`
	WorkDate  *string          `json:"work_date,omitempty" format:"date"`
	DueDate   *string          `json:"due_date,omitempty"`
	Notes     *string          `json:"notes,omitempty"`
	Completed *bool            `json:"completed,omitempty"`
	Priority  *int             `json:"priority,omitempty"`
	Recurring *bool            `json:"recurring,omitempty"`
	RecurRule *recurrence.Rule `json:"recur_rule,omitempty"`
	RecurEnd  *string          `json:"recur_end,omitempty"`
}

type AssignRequest struct {
	Assignee string `json:"assignee"`
}

type MoveRequest struct {
	WorkDate string `json:"work_date" format:"date"`
}

type ShiftRequest struct {
	Direction string `json:"direction" enum:"up,down"`
}

type PriorityRequest struct {
	Priority int `json:"priority"`
}

type MaterializeRequest struct {
	From string `json:"from,omitempty" format:"date"`
	Days int    `json:"days,omitempty"`
}

// Response payloads

type WorkerResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

type TaskListResponse struct {
	Items []domain.Task `json:"items"`
}

type ChangesResponse struct {
	Items      []domain.Change `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type AuditResponse struct {
	Items []audit.Entry `json:"items"`
}

type MaterializeResponse struct {
	Days    []engine.MaterializeResult `json:"days"`
	Created int                        `json:"created"`
}

type GateStatusResponse struct {
	Enabled bool   `json:"enabled"`
	Board   string `json:"board"`
}

func (r SaveTaskRequest) patch() engine.TaskPatch {
	return engine.TaskPatch{
		Title:     r.Title,
		Assignee:  r.Assignee,
		WorkDate:  r.WorkDate,
		DueDate:   r.DueDate,
		Notes:     r.Notes,
		Completed: r.Completed,
		Priority:  r.Priority,
		Recurring: r.Recurring,
		RecurRule: r.RecurRule,
		RecurEnd:  r.RecurEnd,
	}
}

func workerResponses(cfg *config.Config) []WorkerResponse {
	out := []WorkerResponse{}
	if cfg == nil {
		return out
	}
	for _, w := range cfg.Workers {
		out = append(out, WorkerResponse{ID: w.ID, Name: w.Name, Email: w.Email})
	}
	return out
}

func nonNilTasks(items []domain.Task) []domain.Task {
	if items == nil {
		return []domain.Task{}
	}
	return items
}
