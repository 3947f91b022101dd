package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"taskboard/internal/audit"
	"taskboard/internal/dates"
	"taskboard/internal/domain"
	"taskboard/internal/engine"
	"taskboard/internal/engine/auth"
	"taskboard/internal/notify"
	"taskboard/internal/ratelimit"
	"taskboard/internal/realtime"
	"taskboard/internal/reindex"
	"taskboard/internal/repo"
)

// Relay is the assignment notification contract served at
// /notifications/assignment.
type Relay interface {
	NotifyAssignment(ctx context.Context, a notify.Assignment) (notify.Result, error)
}

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	Gate     auth.Gate
	Relay    Relay
	Hub      *realtime.Hub
	Limiter  ratelimit.Limiter
	BasePath string
	Logger   *log.Logger
}

func (c Config) logger() *log.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return log.Default()
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"bad_request"`
	Message string         `json:"message" example:"Missing assignee/title/date"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the board API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	if cfg.Engine.Config == nil {
		return nil, errors.New("server: engine config is required")
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors are plain 400s.
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondStatusError(w, newAPIError(http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed", nil))
	})
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	if cfg.Limiter != nil {
		router.Use(newRateLimitMiddleware(cfg.Limiter, map[string]string{
			path.Join(basePath, "gate/unlock"):              "unlock",
			path.Join(basePath, "notifications/assignment"): "relay",
		}, cfg.logger()))
	}
	router.Use(newGateMiddleware(basePath, cfg.Gate))

	hcfg := huma.DefaultConfig("Taskboard API", "1.0.0")
	hcfg.Info.Description = apiDescription
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "/docs"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerGate(group, cfg.Gate, cfg.Engine.Audit)
	registerWorkers(group, cfg.Engine)
	registerBoard(group, cfg.Engine)
	registerTasks(group, cfg.Engine)
	registerTaskActions(group, cfg.Engine)
	registerTemplates(group, cfg.Engine)
	registerChanges(group, cfg.Engine)
	registerAudit(group, cfg.Engine)
	registerRelay(group, cfg.Relay)
	registerStream(router, basePath, cfg.Hub)

	documentAPI(api.OpenAPI(), basePath)
	if err := serveOpenAPI(router, api.OpenAPI(), basePath); err != nil {
		return nil, err
	}
	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var ve domain.ValidationError
	if errors.As(err, &ve) {
		var details map[string]any
		if ve.Field != "" {
			details = map[string]any{"field": ve.Field}
		}
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), details)
	}
	var ce domain.ConfigurationError
	if errors.As(err, &ce) {
		return newAPIError(http.StatusInternalServerError, "configuration_error", err.Error(), map[string]any{"setting": ce.Setting})
	}
	var ue domain.UpstreamError
	if errors.As(err, &ue) {
		details := map[string]any{"service": ue.Service}
		if ue.StatusCode != 0 {
			details["status"] = ue.StatusCode
		}
		return newAPIError(http.StatusBadGateway, "upstream_error", err.Error(), details)
	}
	var pe auth.IncorrectPassphraseError
	if errors.As(err, &pe) {
		return newAPIError(http.StatusUnauthorized, "incorrect_passphrase", err.Error(), nil)
	}
	if errors.Is(err, auth.ErrInvalidToken) {
		return newAPIError(http.StatusUnauthorized, "invalid_credentials", err.Error(), nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	if errors.Is(err, reindex.ErrNotInBucket) {
		return newAPIError(http.StatusConflict, "conflict", err.Error(), nil)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return newAPIError(http.StatusServiceUnavailable, "unavailable", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusInternalServerError:
		return "internal_error"
	case http.StatusBadGateway:
		return "upstream_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerGate(api huma.API, gate auth.Gate, trail *audit.Log) {
	huma.Register(api, huma.Operation{
		OperationID: "gate-status",
		Method:      http.MethodGet,
		Path:        "/gate",
		Summary:     "Whether the board is gated",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body GateStatusResponse `json:"body"`
	}, error) {
		return &struct {
			Body GateStatusResponse `json:"body"`
		}{Body: GateStatusResponse{Enabled: gate.Enabled(), Board: gate.Board}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "gate-unlock",
		Method:      http.MethodPost,
		Path:        "/gate/unlock",
		Summary:     "Exchange the passphrase for a session token",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusConflict, http.StatusTooManyRequests},
	}, func(ctx context.Context, input *struct {
		Body UnlockRequest `json:"body"`
	}) (*struct {
		Body auth.Session `json:"body"`
	}, error) {
		if !gate.Enabled() {
			return nil, newAPIError(http.StatusConflict, "gate_disabled", "board has no passphrase", nil)
		}
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		session, err := gate.Unlock(input.Body.Passphrase)
		if err != nil {
			trail.Record("unlock_failed", nil)
			return nil, handleError(err)
		}
		trail.Record("unlock", nil)
		return &struct {
			Body auth.Session `json:"body"`
		}{Body: session}, nil
	})
}

func registerWorkers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-workers",
		Method:      http.MethodGet,
		Path:        "/workers",
		Summary:     "List configured workers",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []WorkerResponse `json:"body"`
	}, error) {
		return &struct {
			Body []WorkerResponse `json:"body"`
		}{Body: workerResponses(e.Config)}, nil
	})
}

func registerBoard(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "view-board",
		Method:      http.MethodGet,
		Path:        "/board/{date}",
		Summary:     "Board for a day",
		Description: "Materializes recurring instances for the day, then returns one column per assignee. Use `today` for the board's current day.",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Date string   `path:"date"`
		Hide []string `query:"hide" doc:"assignees whose completed tasks are hidden"`
	}) (*struct {
		Body domain.Board `json:"body"`
	}, error) {
		date := input.Date
		if date == "today" {
			date = e.Today()
		}
		opts := engine.BoardOptions{HideCompleted: map[string]bool{}}
		for _, h := range input.Hide {
			if h = strings.ToUpper(strings.TrimSpace(h)); h != "" {
				opts.HideCompleted[h] = true
			}
		}
		board, err := e.ViewDay(ctx, date, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Board `json:"body"`
		}{Body: board}, nil
	})
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks across dates",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		From      string `query:"from" format:"date"`
		To        string `query:"to" format:"date"`
		Assignee  string `query:"assignee"`
		Completed string `query:"completed" enum:"true,false"`
		Limit     int    `query:"limit" default:"50"`
	}) (*struct {
		Body TaskListResponse `json:"body"`
	}, error) {
		for field, v := range map[string]string{"from": input.From, "to": input.To} {
			if v != "" && !dates.Valid(v) {
				return nil, handleError(domain.Invalid(field, "expected YYYY-MM-DD"))
			}
		}
		f := repo.TaskFilters{
			From:     input.From,
			To:       input.To,
			Assignee: strings.ToUpper(strings.TrimSpace(input.Assignee)),
			Limit:    normalizeLimit(input.Limit),
		}
		if input.Completed != "" {
			done := input.Completed == "true"
			f.Completed = &done
		}
		items, err := e.Repo.ListTasks(ctx, f)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskListResponse `json:"body"`
		}{Body: TaskListResponse{Items: nonNilTasks(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateTaskRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		due := ""
		if input.Body.DueDate != nil {
			due = *input.Body.DueDate
		}
		t, err := e.CreateTask(ctx, engine.TaskCreateOptions{
			Title:    input.Body.Title,
			Assignee: input.Body.Assignee,
			WorkDate: input.Body.WorkDate,
			DueDate:  due,
			Notes:    input.Body.Notes,
			Priority: input.Body.Priority,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		t, err := e.GetTask(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "save-task",
		Method:      http.MethodPatch,
		Path:        "/tasks/{id}",
		Summary:     "Save task fields",
		Description: "Applies the task modal. Setting `recurring` creates, updates or removes the linked template.",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string          `path:"id"`
		Body SaveTaskRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		t, err := e.SaveTask(ctx, input.ID, input.Body.patch())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-task",
		Method:        http.MethodDelete,
		Path:          "/tasks/{id}",
		Summary:       "Delete task",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		if err := e.DeleteTask(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

type taskOutput struct {
	Body domain.Task `json:"body"`
}

func registerTaskActions(api huma.API, e engine.Engine) {
	errs := []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict}

	huma.Register(api, huma.Operation{
		OperationID: "toggle-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/toggle",
		Summary:     "Flip completed",
		Errors:      errs,
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*taskOutput, error) {
		t, err := e.ToggleCompleted(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskOutput{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "assign-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/assign",
		Summary:     "Move task to another assignee",
		Errors:      errs,
	}, func(ctx context.Context, input *struct {
		ID   string        `path:"id"`
		Body AssignRequest `json:"body"`
	}) (*taskOutput, error) {
		t, err := e.AssignTask(ctx, input.ID, input.Body.Assignee)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskOutput{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "move-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/move",
		Summary:     "Move task to another day",
		Errors:      errs,
	}, func(ctx context.Context, input *struct {
		ID   string      `path:"id"`
		Body MoveRequest `json:"body"`
	}) (*taskOutput, error) {
		t, err := e.MoveDate(ctx, input.ID, input.Body.WorkDate)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskOutput{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "shift-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/shift",
		Summary:     "Swap task with its neighbour",
		Errors:      errs,
	}, func(ctx context.Context, input *struct {
		ID   string       `path:"id"`
		Body ShiftRequest `json:"body"`
	}) (*taskOutput, error) {
		t, err := e.ShiftTask(ctx, input.ID, reindex.Direction(input.Body.Direction))
		if err != nil {
			return nil, handleError(err)
		}
		return &taskOutput{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-priority",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/priority",
		Summary:     "Move task to a 1-based position",
		Errors:      errs,
	}, func(ctx context.Context, input *struct {
		ID   string          `path:"id"`
		Body PriorityRequest `json:"body"`
	}) (*taskOutput, error) {
		t, err := e.SetPriority(ctx, input.ID, input.Body.Priority)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskOutput{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "end-recurring",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/end-recurring",
		Summary:     "Stop a recurrence from this task's date on",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body engine.EndRecurringResult `json:"body"`
	}, error) {
		res, err := e.EndRecurringNow(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.EndRecurringResult `json:"body"`
		}{Body: res}, nil
	})
}

func registerTemplates(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-templates",
		Method:      http.MethodGet,
		Path:        "/templates",
		Summary:     "List recurring templates",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Template `json:"body"`
	}, error) {
		items, err := e.ListTemplates(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Template{}
		}
		return &struct {
			Body []domain.Template `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-template",
		Method:      http.MethodGet,
		Path:        "/templates/{id}",
		Summary:     "Get recurring template",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.Template `json:"body"`
	}, error) {
		tpl, err := e.GetTemplate(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Template `json:"body"`
		}{Body: tpl}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "materialize",
		Method:      http.MethodPost,
		Path:        "/materialize",
		Summary:     "Create recurring instances for a range of days",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body MaterializeRequest `json:"body"`
	}) (*struct {
		Body MaterializeResponse `json:"body"`
	}, error) {
		from := input.Body.From
		if from == "" {
			from = e.Today()
		}
		if input.Body.Days < 0 || input.Body.Days > 366 {
			return nil, handleError(domain.Invalid("days", "must be between 0 and 366"))
		}
		days, err := e.MaterializeRange(ctx, from, input.Body.Days)
		if err != nil {
			return nil, handleError(err)
		}
		resp := MaterializeResponse{Days: days}
		for _, d := range days {
			resp.Created += len(d.Created)
		}
		return &struct {
			Body MaterializeResponse `json:"body"`
		}{Body: resp}, nil
	})
}

func registerChanges(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-changes",
		Method:      http.MethodGet,
		Path:        "/changes",
		Summary:     "Poll the change feed",
		Description: "Returns changes after the cursor, oldest first. Without a cursor the latest changes are returned.",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		After      string `query:"after"`
		EntityKind string `query:"entity_kind" enum:"task,template"`
		Limit      int    `query:"limit" default:"50"`
	}) (*struct {
		Body ChangesResponse `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		var items []domain.Change
		var err error
		if input.After == "" {
			items, err = e.Repo.LatestEvents(ctx, limit, input.EntityKind)
		} else {
			cursor, perr := strconv.ParseInt(input.After, 10, 64)
			if perr != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"after": input.After})
			}
			items, err = e.Repo.EventsAfter(ctx, limit, cursor, input.EntityKind)
		}
		if err != nil {
			return nil, handleError(err)
		}
		resp := ChangesResponse{Items: []domain.Change{}}
		if items != nil {
			resp.Items = items
		}
		if n := len(resp.Items); n > 0 && input.After != "" {
			resp.NextCursor = strconv.FormatInt(resp.Items[n-1].ID, 10)
		}
		return &struct {
			Body ChangesResponse `json:"body"`
		}{Body: resp}, nil
	})
}

func registerAudit(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-audit",
		Method:      http.MethodGet,
		Path:        "/audit",
		Summary:     "Recent board actions, newest first",
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit" default:"50"`
	}) (*struct {
		Body AuditResponse `json:"body"`
	}, error) {
		limit := input.Limit
		if limit <= 0 {
			limit = 50
		}
		return &struct {
			Body AuditResponse `json:"body"`
		}{Body: AuditResponse{Items: e.Audit.Entries(limit)}}, nil
	})
}

func registerRelay(api huma.API, relay Relay) {
	huma.Register(api, huma.Operation{
		OperationID: "notify-assignment",
		Method:      http.MethodPost,
		Path:        "/notifications/assignment",
		Summary:     "Send an assignment notice",
		Description: "Contract version 1. Unknown or UNASSIGNED assignees are skipped with 200.",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusMethodNotAllowed,
			http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
		},
	}, func(ctx context.Context, input *struct {
		Body *notify.Assignment `json:"body"`
	}) (*struct {
		Body notify.Result `json:"body"`
	}, error) {
		if relay == nil {
			return nil, handleError(domain.ConfigurationError{Setting: "notification relay"})
		}
		var a notify.Assignment
		if input.Body != nil {
			a = *input.Body
		}
		res, err := relay.NotifyAssignment(ctx, a)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body notify.Result `json:"body"`
		}{Body: res}, nil
	})
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	req, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok || req == nil {
		return nil
	}
	data, _ := io.ReadAll(req.Body)
	return data
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}
