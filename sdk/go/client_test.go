package taskboardsdk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientSendsTokenAfterUnlock(t *testing.T) {
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Method+" "+r.URL.Path+" "+r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/v0/gate/unlock":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["passphrase"] != "open" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte(`{"token":"tok","expires_at":"2030-01-01T00:00:00Z"}`))
		case "/v0/board/today":
			_, _ = w.Write([]byte(`{"date":"2024-01-01","weekday":"Monday","columns":[{"assignee":"UNASSIGNED","title":"Unassigned","tasks":[]}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := New(srv.URL + "/")
	ctx := context.Background()
	if _, err := c.Unlock(ctx, "open"); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	board, err := c.Board(ctx, "")
	if err != nil {
		t.Fatalf("board: %v", err)
	}
	if board.Weekday != "Monday" || len(board.Columns) != 1 {
		t.Fatalf("unexpected board %+v", board)
	}
	if len(seen) != 2 || seen[1] != "GET /v0/board/today Bearer tok" {
		t.Fatalf("unexpected requests %v", seen)
	}
}

func TestClientReturnsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Board-Passphrase") != "pw" {
			t.Errorf("expected passphrase header")
		}
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":{"code":"upstream_error"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.Passphrase = "pw"
	_, err := c.NotifyAssignment(context.Background(), Assignment{Assignee: "COLE", Title: "x", Date: "2024-01-01"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected APIError 502, got %v", err)
	}
}

func TestClientTaskActions(t *testing.T) {
	type call struct {
		path string
		body map[string]any
	}
	var calls []call
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		calls = append(calls, call{path: r.Method + " " + r.URL.EscapedPath(), body: body})
		if r.URL.Path == "/v0/tasks/a b/end-recurring" {
			_, _ = w.Write([]byte(`{"cutoff":"2024-01-02","deleted_tasks":["t2"],"deleted_templates":["tpl"]}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"a b","title":"Ship","assignee":"COLE","work_date":"2024-01-05","completed":false,"notes":""}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	ctx := context.Background()
	task, err := c.MoveTask(ctx, "a b", "2024-01-05")
	if err != nil || task.WorkDate != "2024-01-05" {
		t.Fatalf("move: %+v %v", task, err)
	}
	res, err := c.EndRecurring(ctx, "a b")
	if err != nil {
		t.Fatalf("end recurring: %v", err)
	}
	if res.Cutoff != "2024-01-02" || len(res.DeletedTasks) != 1 || len(res.DeletedTemplates) != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %v", calls)
	}
	if calls[0].path != "POST /v0/tasks/a%20b/move" || calls[0].body["work_date"] != "2024-01-05" {
		t.Fatalf("unexpected move call %+v", calls[0])
	}
	if calls[1].path != "POST /v0/tasks/a%20b/end-recurring" {
		t.Fatalf("unexpected end-recurring call %+v", calls[1])
	}
}
