package engine

import (
	"context"
	"sort"
	"time"

	"taskboard/internal/dates"
	"taskboard/internal/domain"
	"taskboard/internal/reindex"
)

type BoardOptions struct {
	// HideCompleted lists assignees whose finished tasks are left out.
	HideCompleted map[string]bool
}

// ListDay returns a date's tasks grouped by assignee in bucket order.
func (e Engine) ListDay(ctx context.Context, date string) ([]domain.Task, error) {
	if err := checkDate("date", date); err != nil {
		return nil, err
	}
	return retryRead(ctx, func() ([]domain.Task, error) { return e.Repo.ListTasksByDate(ctx, date) })
}

// Board groups a date's tasks into columns: UNASSIGNED, then workers in
// configuration order, then any assignee no longer configured.
func (e Engine) Board(ctx context.Context, date string, opts BoardOptions) (domain.Board, error) {
	tasks, err := e.ListDay(ctx, date)
	if err != nil {
		return domain.Board{}, err
	}
	byAssignee := map[string][]domain.Task{}
	for _, t := range tasks {
		byAssignee[t.Assignee] = append(byAssignee[t.Assignee], t)
	}
	order := e.Config.Assignees()
	known := map[string]bool{}
	for _, a := range order {
		known[a] = true
	}
	var extra []string
	for a := range byAssignee {
		if !known[a] {
			extra = append(extra, a)
		}
	}
	sort.Strings(extra)
	order = append(order, extra...)

	b := domain.Board{Date: date, Weekday: time.Weekday(dates.Weekday(date)).String(), Columns: make([]domain.Column, 0, len(order))}
	for _, a := range order {
		col := domain.Column{Assignee: a, Title: e.Config.ColumnTitle(a), Tasks: []domain.Task{}}
		bucket := byAssignee[a]
		sort.SliceStable(bucket, func(i, j int) bool {
			return reindex.Less(
				reindex.Item{ID: bucket[i].ID, Priority: bucket[i].Priority, CreatedAt: bucket[i].CreatedAt},
				reindex.Item{ID: bucket[j].ID, Priority: bucket[j].Priority, CreatedAt: bucket[j].CreatedAt},
			)
		})
		for _, t := range bucket {
			if t.Completed && opts.HideCompleted[a] {
				col.Hidden++
				continue
			}
			col.Tasks = append(col.Tasks, t)
		}
		b.Columns = append(b.Columns, col)
	}
	return b, nil
}

// ViewDay is what opening a date does: materialize recurring work, then read the board.
func (e Engine) ViewDay(ctx context.Context, date string, opts BoardOptions) (domain.Board, error) {
	if date == "" {
		date = e.Today()
	}
	if _, err := e.Materialize(ctx, date); err != nil {
		return domain.Board{}, err
	}
	return e.Board(ctx, date, opts)
}
