// Package notify relays task assignment notices to workers.
//
// There is one request contract, keyed by assignee: callers name who was
// assigned and the relay resolves the recipient from board configuration,
// so a caller never controls the destination address.
package notify

import (
	"context"
	"fmt"
	"html"
	"log"
	"os"
	"strings"
	"time"

	"taskboard/internal/config"
	"taskboard/internal/domain"
)

// Version is the only accepted contract version. Zero is read as Version.
const Version = 1

const (
	StatusSent    = "sent"
	StatusSkipped = "skipped"
)

type Assignment struct {
	Version  int    `json:"version,omitempty"`
	Assignee string `json:"assignee,omitempty"`
	Title    string `json:"title,omitempty"`
	Date     string `json:"date,omitempty"`
}

func (a Assignment) Validate() error {
	if strings.TrimSpace(a.Assignee) == "" || strings.TrimSpace(a.Title) == "" || strings.TrimSpace(a.Date) == "" {
		return domain.ValidationError{Reason: "Missing assignee/title/date"}
	}
	if a.Version != 0 && a.Version != Version {
		return domain.Invalid("version", fmt.Sprintf("unsupported version %d", a.Version))
	}
	return nil
}

type Result struct {
	Status   string   `json:"status" enum:"sent,skipped"`
	Channels []string `json:"channels,omitempty"`
	Reason   string   `json:"reason,omitempty"`
	ID       string   `json:"id,omitempty"`
}

// Message is a rendered notice for one recipient.
type Message struct {
	To      string
	ChatID  int64
	Subject string
	Text    string
	HTML    string
}

func Subject(a Assignment) string {
	return "New task assigned: " + a.Title
}

func TextBody(a Assignment) string {
	return fmt.Sprintf("Task: %s\nAssigned date: %s\n", a.Title, a.Date)
}

func HTMLBody(a Assignment) string {
	return fmt.Sprintf("<p>You have a new task.</p>\n<p><strong>Task:</strong> %s<br>\n<strong>Assigned date:</strong> %s</p>\n",
		html.EscapeString(a.Title), html.EscapeString(a.Date))
}

func telegramBody(a Assignment) string {
	return fmt.Sprintf("<b>New task assigned</b>\nTask: %s\nAssigned date: %s", html.EscapeString(a.Title), html.EscapeString(a.Date))
}

// Settings carries the secrets and endpoints the relay needs.
type Settings struct {
	APIKey        string
	From          string
	BaseURL       string
	Timeout       time.Duration
	TelegramToken string
	// Recipients overrides worker emails, keyed by worker id.
	Recipients map[string]string
}

// RecipientsFromEnv reads TASKBOARD_MAIL_<ID>, then MAIL_<ID>, for every configured worker.
func RecipientsFromEnv(cfg *config.Config, getenv func(string) string) map[string]string {
	if getenv == nil {
		getenv = os.Getenv
	}
	out := map[string]string{}
	if cfg == nil {
		return out
	}
	for _, w := range cfg.Workers {
		for _, key := range []string{"TASKBOARD_MAIL_" + w.ID, "MAIL_" + w.ID} {
			if v := strings.TrimSpace(getenv(key)); v != "" {
				out[w.ID] = v
				break
			}
		}
	}
	return out
}

type Relay struct {
	Config   *config.Config
	Settings Settings
	Email    *ResendSender
	Telegram *TelegramSender
	Logger   *log.Logger
}

func NewRelay(cfg *config.Config, s Settings) *Relay {
	if cfg != nil {
		if s.BaseURL == "" {
			s.BaseURL = cfg.Notify.APIBaseURL
		}
		if s.From == "" {
			s.From = cfg.Notify.From
		}
		if s.Timeout == 0 && cfg.Notify.TimeoutSeconds > 0 {
			s.Timeout = time.Duration(cfg.Notify.TimeoutSeconds) * time.Second
		}
	}
	r := &Relay{
		Config:   cfg,
		Settings: s,
		Email:    NewResendSender(s.APIKey, s.From, s.BaseURL, s.Timeout),
	}
	if s.TelegramToken != "" {
		r.Telegram = NewTelegramSender(s.TelegramToken, "")
	}
	return r
}

func (r *Relay) logger() *log.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return log.Default()
}

func (r *Relay) recipient(assignee string) (string, int64) {
	var (
		email  string
		chatID int64
	)
	if w, ok := r.Config.Worker(assignee); ok {
		email = w.Email
		chatID = w.TelegramChatID
	}
	if v := r.Settings.Recipients[assignee]; v != "" {
		email = v
	}
	return email, chatID
}

// NotifyAssignment validates the request, resolves the recipient and sends.
// An unassigned or unknown assignee is a successful no-op. The email
// provider is never retried; a rejection comes back as domain.UpstreamError.
func (r *Relay) NotifyAssignment(ctx context.Context, a Assignment) (Result, error) {
	if err := a.Validate(); err != nil {
		return Result{}, err
	}
	a.Version = Version
	a.Assignee = strings.ToUpper(strings.TrimSpace(a.Assignee))
	if a.Assignee == domain.Unassigned {
		return Result{Status: StatusSkipped, Reason: "Task is unassigned"}, nil
	}
	to, chatID := r.recipient(a.Assignee)
	sendTelegram := chatID != 0 && r.Telegram != nil
	if to == "" && !sendTelegram {
		return Result{Status: StatusSkipped, Reason: "No recipient for this assignee"}, nil
	}

	res := Result{Status: StatusSent}
	if to != "" {
		if r.Settings.APIKey == "" || r.Settings.From == "" {
			return Result{}, domain.ConfigurationError{Setting: "email (RESEND_API_KEY, MAIL_FROM)"}
		}
		id, err := r.Email.Send(ctx, Message{To: to, Subject: Subject(a), Text: TextBody(a), HTML: HTMLBody(a)})
		if err != nil {
			return Result{}, err
		}
		res.ID = id
		res.Channels = append(res.Channels, r.Email.Name())
	}
	if sendTelegram {
		if _, err := r.Telegram.Send(ctx, Message{ChatID: chatID, Text: telegramBody(a)}); err != nil {
			if len(res.Channels) == 0 {
				return Result{}, err
			}
			r.logger().Printf("notify: telegram to %s: %v", a.Assignee, err)
		} else {
			res.Channels = append(res.Channels, r.Telegram.Name())
		}
	}
	return res, nil
}
