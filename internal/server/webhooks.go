package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"taskboard/internal/config"
	"taskboard/internal/domain"
	"taskboard/internal/realtime"
)

const (
	hookPollEvery   = 2 * time.Second
	hookTimeout     = 5 * time.Second
	hookBatch       = 100
	signatureHeader = "X-Taskboard-Signature"
)

// hookWorker tails the change log for one webhook. A failed delivery stops
// the batch; the same change is retried on the next tick.
type hookWorker struct {
	hook   config.WebhookConfig
	board  string
	source realtime.Source
	match  func(string) bool
	client *http.Client
	logger *log.Logger
	cursor int64
}

// StartWebhooks delivers change rows to every enabled webhook until ctx is
// done. Cursors start at the current end of the log before this returns, so
// only changes made afterwards are sent. It reports whether any hook runs.
func StartWebhooks(ctx context.Context, src realtime.Source, cfg *config.Config, logger *log.Logger) (bool, error) {
	if cfg == nil {
		return false, nil
	}
	if logger == nil {
		logger = log.Default()
	}
	var workers []*hookWorker
	for _, hook := range cfg.Webhooks {
		if (hook.Enabled != nil && !*hook.Enabled) || strings.TrimSpace(hook.URL) == "" {
			continue
		}
		timeout := hookTimeout
		if hook.TimeoutSeconds > 0 {
			timeout = time.Duration(hook.TimeoutSeconds) * time.Second
		}
		workers = append(workers, &hookWorker{
			hook:   hook,
			board:  cfg.Board.Name,
			source: src,
			match:  eventMatcher(hook.Events),
			client: &http.Client{Timeout: timeout},
			logger: logger,
		})
	}
	if len(workers) == 0 {
		return false, nil
	}
	start, err := src.LatestEventID(ctx)
	if err != nil {
		return false, fmt.Errorf("webhook: read change log: %w", err)
	}
	for _, w := range workers {
		w.cursor = start
		go w.run(ctx)
	}
	return true, nil
}

func (w *hookWorker) run(ctx context.Context) {
	ticker := time.NewTicker(hookPollEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if err := w.drain(ctx); err != nil && ctx.Err() == nil {
			w.logger.Printf("webhook: %s: %v", w.hook.URL, err)
		}
	}
}

// drain sends every matching change after the cursor, advancing past
// filtered rows without a request.
func (w *hookWorker) drain(ctx context.Context) error {
	for {
		changes, err := w.source.EventsAfter(ctx, hookBatch, w.cursor, "")
		if err != nil {
			return err
		}
		for _, c := range changes {
			if w.match(c.Type) {
				if err := w.deliver(ctx, c); err != nil {
					return fmt.Errorf("change %d: %w", c.ID, err)
				}
			}
			w.cursor = c.ID
		}
		if len(changes) < hookBatch {
			return nil
		}
	}
}

// hookBody is the JSON posted to a webhook.
type hookBody struct {
	Board  string          `json:"board"`
	Change domain.Change   `json:"change"`
	Data   json.RawMessage `json:"data"`
}

func (w *hookWorker) deliver(ctx context.Context, c domain.Change) error {
	data := json.RawMessage("{}")
	if json.Valid([]byte(c.Payload)) {
		data = json.RawMessage(c.Payload)
	}
	body, err := json.Marshal(hookBody{Board: w.board, Change: c, Data: data})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.hook.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Taskboard-Event", c.Type)
	req.Header.Set("X-Taskboard-Delivery", strconv.FormatInt(c.ID, 10))
	if secret := strings.TrimSpace(w.hook.Secret); secret != "" {
		req.Header.Set(signatureHeader, sign(secret, body))
	}
	res, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

// sign returns the hex HMAC-SHA256 of body, prefixed with the algorithm.
func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// eventMatcher accepts exact types and "kind.*" patterns. No patterns, or
// "*", matches everything.
func eventMatcher(patterns []string) func(string) bool {
	exact := map[string]bool{}
	var prefixes []string
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		switch {
		case p == "":
		case p == "*":
			return func(string) bool { return true }
		case strings.HasSuffix(p, ".*"):
			prefixes = append(prefixes, strings.TrimSuffix(p, "*"))
		default:
			exact[p] = true
		}
	}
	if len(exact) == 0 && len(prefixes) == 0 {
		return func(string) bool { return true }
	}
	return func(evt string) bool {
		if exact[evt] {
			return true
		}
		for _, p := range prefixes {
			if strings.HasPrefix(evt, p) {
				return true
			}
		}
		return false
	}
}
