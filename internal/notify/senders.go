package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"taskboard/internal/domain"
)

// ResendSender posts mail to a Resend-compatible HTTP API.
type ResendSender struct {
	APIKey  string
	From    string
	BaseURL string
	Client  *http.Client
}

func NewResendSender(apiKey, from, baseURL string, timeout time.Duration) *ResendSender {
	if baseURL == "" {
		baseURL = "https://api.resend.com"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ResendSender{
		APIKey:  apiKey,
		From:    from,
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: timeout},
	}
}

func (s *ResendSender) Name() string { return "email" }

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Text    string   `json:"text"`
	HTML    string   `json:"html,omitempty"`
}

// Send returns the provider message id.
func (s *ResendSender) Send(ctx context.Context, msg Message) (string, error) {
	payload, err := json.Marshal(resendRequest{From: s.From, To: []string{msg.To}, Subject: msg.Subject, Text: msg.Text, HTML: msg.HTML})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+"/emails", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+s.APIKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.Client.Do(req)
	if err != nil {
		return "", domain.UpstreamError{Service: "Email", Err: err}
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", domain.UpstreamError{Service: "Email", StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	var out struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(body, &out)
	return out.ID, nil
}

// TelegramSender delivers notices through a Telegram bot. The bot is
// created on first use so a bad token does not block startup.
type TelegramSender struct {
	Token    string
	Endpoint string
	Client   *http.Client

	once sync.Once
	bot  *tgbotapi.BotAPI
	err  error
}

func NewTelegramSender(token, endpoint string) *TelegramSender {
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	return &TelegramSender{Token: token, Endpoint: endpoint, Client: &http.Client{Timeout: 10 * time.Second}}
}

func (s *TelegramSender) Name() string { return "telegram" }

func (s *TelegramSender) api() (*tgbotapi.BotAPI, error) {
	s.once.Do(func() {
		s.bot, s.err = tgbotapi.NewBotAPIWithClient(s.Token, s.Endpoint, s.Client)
		if s.err != nil {
			s.err = fmt.Errorf("create bot api: %w", s.err)
		}
	})
	return s.bot, s.err
}

// Send ignores ctx: the bot client has no per-request context.
func (s *TelegramSender) Send(_ context.Context, msg Message) (string, error) {
	bot, err := s.api()
	if err != nil {
		return "", domain.UpstreamError{Service: "Telegram", Err: err}
	}
	m := tgbotapi.NewMessage(msg.ChatID, msg.Text)
	m.ParseMode = tgbotapi.ModeHTML
	sent, err := bot.Send(m)
	if err != nil {
		return "", domain.UpstreamError{Service: "Telegram", Err: err}
	}
	return fmt.Sprint(sent.MessageID), nil
}
