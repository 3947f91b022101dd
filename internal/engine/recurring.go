package engine

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"taskboard/internal/config"
	"taskboard/internal/dates"
	"taskboard/internal/domain"
	"taskboard/internal/events"
	"taskboard/internal/recurrence"
	"taskboard/internal/repo"
)

type MaterializeResult struct {
	Date    string        `json:"date" format:"date"`
	Created []domain.Task `json:"created"`
}

// Materialize ensures one instance per applicable template exists on date.
// Calling it again for the same date creates nothing.
func (e Engine) Materialize(ctx context.Context, date string) (MaterializeResult, error) {
	if err := checkDate("date", date); err != nil {
		return MaterializeResult{}, err
	}
	res := MaterializeResult{Date: date, Created: []domain.Task{}}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return res, err
	}
	defer tx.Rollback()

	templates, err := e.Repo.ListTemplatesTx(ctx, tx)
	if err != nil {
		return res, err
	}
	day, err := e.Repo.ListTasksByDateTx(ctx, tx, date)
	if err != nil {
		return res, err
	}
	byTitle := e.Config != nil && e.Config.Recurrence.MatchKey == config.MatchTitleAssignee
	for _, tpl := range templates {
		if !tpl.ActiveOn(date) || !recurrence.Applies(&tpl.Rule, date) {
			continue
		}
		if hasInstance(day, tpl, byTitle) {
			continue
		}
		count := 0
		for _, t := range day {
			if t.Assignee == tpl.Assignee {
				count++
			}
		}
		priority := count + 1
		id := tpl.ID
		now := e.stamp()
		t := domain.Task{
			ID:              uuid.NewString(),
			Title:           tpl.Title,
			Assignee:        tpl.Assignee,
			WorkDate:        date,
			Priority:        &priority,
			RecurTemplateID: &id,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := e.Repo.InsertTaskTx(ctx, tx, t); err != nil {
			return res, err
		}
		if err := e.changeWriter().Append(ctx, tx, events.TaskCreated, "task", t.ID, date, actorFrom(ctx), events.EventPayload{
			"template": tpl.ID, "assignee": t.Assignee, "priority": priority,
		}); err != nil {
			return res, err
		}
		day = append(day, t)
		res.Created = append(res.Created, t)
	}
	if err := tx.Commit(); err != nil {
		return MaterializeResult{Date: date, Created: []domain.Task{}}, err
	}
	for _, t := range res.Created {
		e.Audit.Record("recurrence_instance", map[string]any{"day": date, "template": *t.RecurTemplateID})
	}
	return res, nil
}

func hasInstance(day []domain.Task, tpl domain.Template, byTitle bool) bool {
	for _, t := range day {
		if byTitle {
			if t.Title == tpl.Title && t.Assignee == tpl.Assignee {
				return true
			}
			continue
		}
		if t.RecurTemplateID != nil && *t.RecurTemplateID == tpl.ID {
			return true
		}
	}
	return false
}

// MaterializeRange materializes from through from+days inclusive.
func (e Engine) MaterializeRange(ctx context.Context, from string, days int) ([]MaterializeResult, error) {
	if err := checkDate("from", from); err != nil {
		return nil, err
	}
	var out []MaterializeResult
	for i := 0; i <= days; i++ {
		res, err := e.Materialize(ctx, dates.AddDays(from, i))
		if err != nil {
			return out, err
		}
		out = append(out, res)
	}
	return out, nil
}

func (e Engine) ListTemplates(ctx context.Context) ([]domain.Template, error) {
	return retryRead(ctx, func() ([]domain.Template, error) { return e.Repo.ListTemplates(ctx) })
}

func (e Engine) GetTemplate(ctx context.Context, id string) (domain.Template, error) {
	return retryRead(ctx, func() (domain.Template, error) { return e.Repo.GetTemplate(ctx, id) })
}

// syncTemplateTx applies the recurrence part of a save. Only a patch that
// names Recurring, RecurRule or RecurEnd touches the template; other edits
// leave it alone, so instances can drift from it. It reports "saved",
// "deleted" or "" for the change row.
func (e Engine) syncTemplateTx(ctx context.Context, tx *sql.Tx, t *domain.Task, p TaskPatch) (string, error) {
	if p.Recurring == nil && p.RecurRule == nil && p.RecurEnd == nil {
		return "", nil
	}
	var existing *domain.Template
	if t.RecurTemplateID != nil {
		tpl, err := e.Repo.GetTemplateTx(ctx, tx, *t.RecurTemplateID)
		switch {
		case err == nil:
			existing = &tpl
		case !errors.Is(err, repo.ErrNotFound):
			return "", err
		}
	}
	recurring := existing != nil || p.RecurRule != nil
	if p.Recurring != nil {
		recurring = *p.Recurring
	}

	if !recurring {
		if existing == nil {
			return "", nil
		}
		if err := e.Repo.DeleteTemplateTx(ctx, tx, existing.ID); err != nil {
			return "", err
		}
		t.RecurTemplateID = nil
		if err := e.changeWriter().Append(ctx, tx, events.TemplateDeleted, "template", existing.ID, "", actorFrom(ctx), events.EventPayload{"task": t.ID}); err != nil {
			return "", err
		}
		return "deleted", nil
	}

	var rule recurrence.Rule
	switch {
	case p.RecurRule != nil:
		rule = *p.RecurRule
	case existing != nil:
		rule = existing.Rule
	default:
		return "", domain.Invalid("recur_rule", "a rule is required to make a task recurring")
	}
	if err := rule.Validate(); err != nil {
		return "", domain.Invalid("recur_rule", err.Error())
	}
	rule = rule.Normalize()

	var end *string
	if existing != nil {
		end = existing.RecurEnd
	}
	if p.RecurEnd != nil {
		end = nil
		if *p.RecurEnd != "" {
			v := *p.RecurEnd
			end = &v
		}
	}
	now := e.stamp()
	tpl := domain.Template{
		Title:     t.Title,
		Assignee:  t.Assignee,
		Rule:      rule,
		StartFrom: dates.Max(t.WorkDate, e.Today()),
		RecurEnd:  end,
		UpdatedAt: now,
	}
	if existing != nil {
		tpl.ID = existing.ID
		tpl.CreatedAt = existing.CreatedAt
		if err := e.Repo.UpdateTemplateTx(ctx, tx, tpl); err != nil {
			return "", err
		}
	} else {
		tpl.ID = uuid.NewString()
		tpl.CreatedAt = now
		if err := e.Repo.InsertTemplateTx(ctx, tx, tpl); err != nil {
			return "", err
		}
		if err := e.Repo.LinkTemplateTx(ctx, tx, t.ID, &tpl.ID, now); err != nil {
			return "", err
		}
		t.RecurTemplateID = &tpl.ID
	}
	if err := e.changeWriter().Append(ctx, tx, events.TemplateSaved, "template", tpl.ID, tpl.StartFrom, actorFrom(ctx), events.EventPayload{
		"task": t.ID, "rule": tpl.Rule, "start_from": tpl.StartFrom,
	}); err != nil {
		return "", err
	}
	return "saved", nil
}

type EndRecurringResult struct {
	Cutoff           string   `json:"cutoff" format:"date"`
	DeletedTasks     []string `json:"deleted_tasks"`
	DeletedTemplates []string `json:"deleted_templates"`
}

// EndRecurringNow deletes the task's template and every matching instance
// dated on or after the task's own date. Earlier instances are kept.
// Instances are matched by template id when the task has one, otherwise
// by title and assignee.
func (e Engine) EndRecurringNow(ctx context.Context, taskID string) (EndRecurringResult, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return EndRecurringResult{}, err
	}
	defer tx.Rollback()

	task, err := e.Repo.GetTaskTx(ctx, tx, taskID)
	if err != nil {
		return EndRecurringResult{}, err
	}
	res := EndRecurringResult{Cutoff: task.WorkDate, DeletedTasks: []string{}, DeletedTemplates: []string{}}
	if res.Cutoff == "" {
		res.Cutoff = e.Today()
	}

	var (
		victims   []domain.Task
		templates []string
	)
	if task.RecurTemplateID != nil {
		if victims, err = e.Repo.ListTemplateTasksTx(ctx, tx, *task.RecurTemplateID, res.Cutoff); err != nil {
			return EndRecurringResult{}, err
		}
		templates = []string{*task.RecurTemplateID}
	} else {
		if victims, err = e.Repo.ListMatchingTasksTx(ctx, tx, task.Title, task.Assignee, res.Cutoff); err != nil {
			return EndRecurringResult{}, err
		}
		tpls, err := e.Repo.ListTemplatesByKeyTx(ctx, tx, task.Title, task.Assignee)
		if err != nil {
			return EndRecurringResult{}, err
		}
		for _, tpl := range tpls {
			templates = append(templates, tpl.ID)
		}
	}

	type bucketKey struct{ assignee, date string }
	touched := map[bucketKey]bool{}
	var order []bucketKey
	for _, v := range victims {
		if err := e.Repo.DeleteTaskTx(ctx, tx, v.ID); err != nil {
			return EndRecurringResult{}, err
		}
		if err := e.changeWriter().Append(ctx, tx, events.TaskDeleted, "task", v.ID, v.WorkDate, actorFrom(ctx), events.EventPayload{"assignee": v.Assignee, "reason": "end_recurring"}); err != nil {
			return EndRecurringResult{}, err
		}
		res.DeletedTasks = append(res.DeletedTasks, v.ID)
		k := bucketKey{v.Assignee, v.WorkDate}
		if !touched[k] {
			touched[k] = true
			order = append(order, k)
		}
	}
	// Tasks go first: deleting a template nulls the link on its instances.
	for _, id := range templates {
		err := e.Repo.DeleteTemplateTx(ctx, tx, id)
		if errors.Is(err, repo.ErrNotFound) {
			continue
		}
		if err != nil {
			return EndRecurringResult{}, err
		}
		if err := e.changeWriter().Append(ctx, tx, events.TemplateDeleted, "template", id, res.Cutoff, actorFrom(ctx), events.EventPayload{"task": taskID}); err != nil {
			return EndRecurringResult{}, err
		}
		res.DeletedTemplates = append(res.DeletedTemplates, id)
	}
	for _, k := range order {
		if _, err := e.normalizeBucketTx(ctx, tx, k.assignee, k.date); err != nil {
			return EndRecurringResult{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return EndRecurringResult{}, err
	}
	e.Audit.Record("end_recurring", map[string]any{
		"id": taskID, "cutoff": res.Cutoff, "tasks": len(res.DeletedTasks), "templates": len(res.DeletedTemplates),
	})
	return res, nil
}
