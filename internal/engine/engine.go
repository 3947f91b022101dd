package engine

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"strings"
	"time"

	"taskboard/internal/audit"
	"taskboard/internal/config"
	"taskboard/internal/dates"
	"taskboard/internal/domain"
	"taskboard/internal/events"
	"taskboard/internal/notify"
	"taskboard/internal/reindex"
	"taskboard/internal/repo"
)

// Notifier delivers assignment notices after a mutation commits.
type Notifier interface {
	NotifyAssignment(ctx context.Context, a notify.Assignment) (notify.Result, error)
}

// Engine is the board controller. It is built once at startup and passed
// to every surface; it holds no package-level state.
type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Events   events.Writer
	Config   *config.Config
	Audit    *audit.Log
	Notifier Notifier
	Logger   *log.Logger
	Now      func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Audit:  audit.New(audit.DefaultCapacity),
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return domain.Timestamp(e.now())
}

// Today is the current date in the board timezone.
func (e Engine) Today() string {
	return dates.Today(e.now(), e.Config.Location())
}

func (e Engine) logger() *log.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return log.Default()
}

func (e Engine) changeWriter() events.Writer {
	w := e.Events
	if w.Now == nil {
		w.Now = e.now
	}
	return w
}

type actorKey struct{}

// WithActor tags ctx with the actor recorded on change rows.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func actorFrom(ctx context.Context) string {
	if v, ok := ctx.Value(actorKey{}).(string); ok && v != "" {
		return v
	}
	return "anonymous"
}

const readAttempts = 3

// isTransient reports SQLite lock contention, the only failure worth retrying.
func isTransient(err error) bool {
	if err == nil || errors.Is(err, repo.ErrNotFound) {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// retryRead retries an idempotent read on transient store errors. Writes never go through here.
func retryRead[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var (
		v   T
		err error
	)
	for attempt := 1; attempt <= readAttempts; attempt++ {
		v, err = fn()
		if !isTransient(err) {
			return v, err
		}
		select {
		case <-ctx.Done():
			return v, ctx.Err()
		case <-time.After(time.Duration(attempt) * 50 * time.Millisecond):
		}
	}
	return v, err
}

func items(tasks []domain.Task) []reindex.Item {
	out := make([]reindex.Item, len(tasks))
	for i, t := range tasks {
		out[i] = reindex.Item{ID: t.ID, Priority: t.Priority, CreatedAt: t.CreatedAt}
	}
	return out
}

func (e Engine) applyRanksTx(ctx context.Context, tx *sql.Tx, changes []reindex.Change) error {
	stamp := e.stamp()
	for _, c := range changes {
		if err := e.Repo.UpdatePriorityTx(ctx, tx, c.ID, c.Priority, stamp); err != nil {
			return err
		}
	}
	return nil
}

// normalizeBucketTx renumbers one bucket to 1..count.
func (e Engine) normalizeBucketTx(ctx context.Context, tx *sql.Tx, assignee, date string) (int, error) {
	bucket, err := e.Repo.ListBucketTx(ctx, tx, assignee, date)
	if err != nil {
		return 0, err
	}
	changes := reindex.Normalize(items(bucket))
	return len(changes), e.applyRanksTx(ctx, tx, changes)
}

// notifyAssigned runs after commit. A failed notice never undoes the mutation.
func (e Engine) notifyAssigned(ctx context.Context, t domain.Task) {
	if e.Notifier == nil || t.Assignee == domain.Unassigned {
		return
	}
	res, err := e.Notifier.NotifyAssignment(ctx, notify.Assignment{Version: notify.Version, Assignee: t.Assignee, Title: t.Title, Date: t.WorkDate})
	if err != nil {
		e.logger().Printf("notify: task %s to %s: %v", t.ID, t.Assignee, err)
		e.Audit.Record("notify_failed", map[string]any{"id": t.ID, "to": t.Assignee, "error": err.Error()})
		return
	}
	if res.Status == notify.StatusSkipped {
		e.logger().Printf("notify: task %s to %s skipped: %s", t.ID, t.Assignee, res.Reason)
	}
}

func (e Engine) checkAssignee(who string) (string, error) {
	who = strings.ToUpper(strings.TrimSpace(who))
	if who == "" {
		return domain.Unassigned, nil
	}
	if !e.Config.IsAssignee(who) {
		return "", domain.Invalid("assignee", "unknown assignee "+who)
	}
	return who, nil
}

func checkDate(field, v string) error {
	if !dates.Valid(v) {
		return domain.Invalid(field, "expected YYYY-MM-DD, got "+v)
	}
	return nil
}
