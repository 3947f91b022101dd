package server

import (
	"encoding/json"
	"log"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"taskboard/internal/engine"
	"taskboard/internal/engine/auth"
	"taskboard/internal/ratelimit"
)

const (
	passphraseHeader = "X-Board-Passphrase"
	actorHeader      = "X-Actor-Id"
	defaultActor     = "web"
)

// openPaths are reachable without unlocking the board.
func openPaths(basePath string) map[string]bool {
	return map[string]bool{
		path.Join(basePath, "health"):                   true,
		path.Join(basePath, "gate"):                     true,
		path.Join(basePath, "gate/unlock"):              true,
		path.Join(basePath, "notifications/assignment"): true,
		path.Join(basePath, "openapi.json"):             true,
	}
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// newGateMiddleware checks the board passphrase or a session token on API
// routes and tags the request context with the caller's display name.
func newGateMiddleware(basePath string, gate auth.Gate) func(http.Handler) http.Handler {
	open := openPaths(basePath)
	streamPath := path.Join(basePath, "changes/stream")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			actor := strings.TrimSpace(req.Header.Get(actorHeader))
			if actor == "" {
				actor = defaultActor
			}
			req = req.WithContext(engine.WithActor(req.Context(), actor))

			// Only enforce for API base path.
			if !strings.HasPrefix(req.URL.Path, basePath) || open[req.URL.Path] || !gate.Enabled() {
				next.ServeHTTP(w, req)
				return
			}
			if p := req.Header.Get(passphraseHeader); p != "" {
				if !gate.CheckPassphrase(p) {
					respondStatusError(w, newAPIError(http.StatusUnauthorized, "incorrect_passphrase", auth.IncorrectPassphraseError{}.Error(), nil))
					return
				}
				next.ServeHTTP(w, req)
				return
			}
			authz := strings.TrimSpace(req.Header.Get("Authorization"))
			// EventSource cannot set headers, so only the stream takes ?token=.
			var token string
			if req.URL.Path == streamPath {
				token = req.URL.Query().Get("token")
			}
			if authz != "" {
				var ok bool
				if token, ok = bearerToken(authz); !ok {
					respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
					return
				}
			}
			if token == "" {
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", "board is locked", nil))
				return
			}
			if _, err := gate.Verify(token); err != nil {
				respondStatusError(w, handleError(err))
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

// newRateLimitMiddleware applies l to the listed paths, each under its own scope.
func newRateLimitMiddleware(l ratelimit.Limiter, scopes map[string]string, logger *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		limited := make(map[string]http.Handler, len(scopes))
		for p, scope := range scopes {
			limited[p] = ratelimit.Middleware(l, scope, logger)(next)
		}
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if h, ok := limited[req.URL.Path]; ok && req.Method == http.MethodPost {
				h.ServeHTTP(w, req)
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	status := http.StatusInternalServerError
	if e, ok := err.(interface{ GetStatus() int }); ok {
		status = e.GetStatus()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(err)
}
