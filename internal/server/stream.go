package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"time"

	"github.com/go-chi/chi/v5"

	"taskboard/internal/realtime"
)

const streamHeartbeat = 15 * time.Second

// registerStream serves task changes as server-sent events. Clients refetch
// the affected day on each event.
func registerStream(r chi.Router, basePath string, hub *realtime.Hub) {
	r.Get(path.Join(basePath, "changes/stream"), func(w http.ResponseWriter, req *http.Request) {
		if hub == nil {
			respondStatusError(w, newAPIError(http.StatusServiceUnavailable, "unavailable", "change stream disabled", nil))
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			respondStatusError(w, newAPIError(http.StatusInternalServerError, "internal_error", "streaming unsupported", nil))
			return
		}
		kind := req.URL.Query().Get("entity_kind")
		if kind == "" {
			kind = "task"
		}
		changes := hub.Subscribe(req.Context(), kind)

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, ": connected\n\n")
		flusher.Flush()

		ticker := time.NewTicker(streamHeartbeat)
		defer ticker.Stop()
		for {
			select {
			case c, ok := <-changes:
				if !ok {
					return
				}
				data, err := json.Marshal(c)
				if err != nil {
					continue
				}
				fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", c.ID, c.Type, data)
				flusher.Flush()
			case <-ticker.C:
				fmt.Fprint(w, ": ping\n\n")
				flusher.Flush()
			}
		}
	})
}
