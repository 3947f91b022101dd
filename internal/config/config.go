package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	MatchTemplateID    = "template_id"
	MatchTitleAssignee = "title_assignee"

	unassigned = "UNASSIGNED"
)

// Config models taskboard.yml.
type Config struct {
	Board struct {
		Name     string `yaml:"name" json:"name"`
		Timezone string `yaml:"timezone" json:"timezone"`
	} `yaml:"board" json:"board"`
	Workers []Worker `yaml:"workers" json:"workers"`
	Gate    struct {
		Passphrase   string `yaml:"passphrase" json:"passphrase,omitempty"`
		SessionHours int    `yaml:"session_hours" json:"session_hours"`
	} `yaml:"gate" json:"gate"`
	Notify struct {
		From           string `yaml:"from" json:"from,omitempty"`
		APIBaseURL     string `yaml:"api_base_url" json:"api_base_url"`
		TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds"`
	} `yaml:"notify" json:"notify"`
	Recurrence struct {
		MatchKey string `yaml:"match_key" json:"match_key"`
	} `yaml:"recurrence" json:"recurrence"`
	Schedule struct {
		MaterializeAt string `yaml:"materialize_at" json:"materialize_at"`
		LookaheadDays int    `yaml:"lookahead_days" json:"lookahead_days"`
	} `yaml:"schedule" json:"schedule"`
	RateLimit struct {
		Requests      int `yaml:"requests" json:"requests"`
		WindowSeconds int `yaml:"window_seconds" json:"window_seconds"`
	} `yaml:"rate_limit" json:"rate_limit"`
	Webhooks []WebhookConfig `yaml:"webhooks" json:"webhooks,omitempty"`
}

type Worker struct {
	ID             string `yaml:"id" json:"id"`
	Name           string `yaml:"name" json:"name"`
	Email          string `yaml:"email" json:"email,omitempty"`
	TelegramChatID int64  `yaml:"telegram_chat_id" json:"telegram_chat_id,omitempty"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url" json:"url"`
	Events         []string `yaml:"events" json:"events,omitempty"`
	Secret         string   `yaml:"secret" json:"secret,omitempty"`
	Enabled        *bool    `yaml:"enabled" json:"enabled,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds" json:"timeout_seconds,omitempty"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with tb config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// applyDefaults fills zero values; called before Validate.
func (c *Config) applyDefaults() {
	if c.Board.Name == "" {
		c.Board.Name = "Taskboard"
	}
	if c.Board.Timezone == "" {
		c.Board.Timezone = "UTC"
	}
	for i := range c.Workers {
		c.Workers[i].ID = strings.ToUpper(strings.TrimSpace(c.Workers[i].ID))
		if c.Workers[i].Name == "" {
			c.Workers[i].Name = TitleOf(c.Workers[i].ID)
		}
	}
	if c.Gate.SessionHours == 0 {
		c.Gate.SessionHours = 720
	}
	if c.Notify.APIBaseURL == "" {
		c.Notify.APIBaseURL = "https://api.resend.com"
	}
	if c.Notify.TimeoutSeconds == 0 {
		c.Notify.TimeoutSeconds = 10
	}
	if c.Recurrence.MatchKey == "" {
		c.Recurrence.MatchKey = MatchTemplateID
	}
	if c.Schedule.MaterializeAt == "" {
		c.Schedule.MaterializeAt = "00:05"
	}
	if c.Schedule.LookaheadDays == 0 {
		c.Schedule.LookaheadDays = 7
	}
	if c.RateLimit.Requests == 0 {
		c.RateLimit.Requests = 10
	}
	if c.RateLimit.WindowSeconds == 0 {
		c.RateLimit.WindowSeconds = 60
	}
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	c.applyDefaults()
	if _, err := time.LoadLocation(c.Board.Timezone); err != nil {
		return fmt.Errorf("config.board.timezone %q is invalid: %w", c.Board.Timezone, err)
	}
	if len(c.Workers) == 0 {
		return fmt.Errorf("config.workers requires at least one worker")
	}
	seen := map[string]bool{}
	for _, w := range c.Workers {
		if w.ID == "" {
			return fmt.Errorf("config.workers contains empty id")
		}
		if w.ID == unassigned {
			return fmt.Errorf("config.workers cannot use reserved id %s", unassigned)
		}
		if seen[w.ID] {
			return fmt.Errorf("config.workers has duplicate id %s", w.ID)
		}
		seen[w.ID] = true
	}
	if c.Gate.SessionHours < 0 {
		return fmt.Errorf("config.gate.session_hours must be positive")
	}
	switch c.Recurrence.MatchKey {
	case MatchTemplateID, MatchTitleAssignee:
	default:
		return fmt.Errorf("config.recurrence.match_key must be %s or %s", MatchTemplateID, MatchTitleAssignee)
	}
	if _, _, err := ParseClock(c.Schedule.MaterializeAt); err != nil {
		return fmt.Errorf("config.schedule.materialize_at: %w", err)
	}
	if c.Schedule.LookaheadDays < 0 || c.Schedule.LookaheadDays > 366 {
		return fmt.Errorf("config.schedule.lookahead_days must be between 0 and 366")
	}
	if c.RateLimit.Requests < 0 || c.RateLimit.WindowSeconds < 0 {
		return fmt.Errorf("config.rate_limit values must be positive")
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
	}
	return nil
}

// Location returns the board timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	if c == nil || c.Board.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Board.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Assignees lists the board columns: UNASSIGNED first, then workers in config order.
func (c *Config) Assignees() []string {
	out := []string{unassigned}
	if c == nil {
		return out
	}
	for _, w := range c.Workers {
		out = append(out, w.ID)
	}
	return out
}

func (c *Config) IsAssignee(id string) bool {
	for _, a := range c.Assignees() {
		if a == id {
			return true
		}
	}
	return false
}

func (c *Config) Worker(id string) (Worker, bool) {
	if c == nil {
		return Worker{}, false
	}
	for _, w := range c.Workers {
		if w.ID == id {
			return w, true
		}
	}
	return Worker{}, false
}

// ColumnTitle is the display name of an assignee's column.
func (c *Config) ColumnTitle(id string) string {
	if w, ok := c.Worker(id); ok && w.Name != "" {
		return w.Name
	}
	return TitleOf(id)
}

// TitleOf turns BRYCE into Bryce and UNASSIGNED into Unassigned.
func TitleOf(id string) string {
	if id == "" {
		return ""
	}
	lower := strings.ToLower(id)
	return strings.ToUpper(lower[:1]) + lower[1:]
}

// ParseClock parses an HH:MM wall-clock time.
func ParseClock(s string) (int, int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	return t.Hour(), t.Minute(), nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "taskboard.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(boardName string) string {
	return fmt.Sprintf(defaultTemplate, boardName)
}

// Default returns the default Config struct.
func Default(boardName string) *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(GenerateDefault(boardName))).Decode(&cfg)
	cfg.applyDefaults()
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `board:
  name: %s
  timezone: UTC

workers:
  - id: BRYCE
    name: Bryce
  - id: JUSTIN
    name: Justin
  - id: COLE
    name: Cole

gate:
  passphrase: ""
  session_hours: 720

notify:
  from: ""
  api_base_url: https://api.resend.com
  timeout_seconds: 10

recurrence:
  match_key: template_id

schedule:
  materialize_at: "00:05"
  lookahead_days: 7

rate_limit:
  requests: 10
  window_seconds: 60
`
