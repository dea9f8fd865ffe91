package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"groupmgr/internal/automation"
	"groupmgr/internal/groupapi"
	"groupmgr/internal/notify"
	"groupmgr/internal/store"
	logx "groupmgr/pkg/logx"
)

// Config is the top-level application configuration.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Logging LoggingConfig `json:"logging"`

	// Store controls persistence of events and automation rules.
	// If omitted, the app runs purely in memory.
	Store *StoreConfig `json:"store,omitempty"`

	// GroupAPI configures the community platform client used for group
	// posts. Rules with post_to_group require this section.
	GroupAPI *GroupAPIConfig `json:"group_api,omitempty"`

	// Telegram configures the out-of-band notifier.
	Telegram *TelegramConfig `json:"telegram,omitempty"`

	Automation AutomationConfig `json:"automation"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StoreConfig controls the persistence layer.
//
// Example:
//
//	"store": { "driver": "file", "path": "./groupmgr_store" }
type StoreConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

type GroupAPIConfig struct {
	BaseURL       string `json:"base_url"`
	AuthCookie    string `json:"auth_cookie"` // do not log
	UserAgent     string `json:"user_agent,omitempty"`
	Timeout       string `json:"timeout,omitempty"`
	RatePerMinute int    `json:"rate_per_minute,omitempty"`
}

type TelegramConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"`
	ChatID  int64  `json:"chat_id"`
}

// AutomationConfig controls the trigger engine and the materializer.
//
// Defaults (when fields are omitted/zero):
//   - tick_interval: "60s"
//   - horizon_days: 30
//   - action_timeout: "30s"
type AutomationConfig struct {
	TickInterval  string `json:"tick_interval,omitempty"`
	HorizonDays   int    `json:"horizon_days,omitempty"`
	ActionTimeout string `json:"action_timeout,omitempty"`
}

// ---- typed accessors ----

func (c *Config) LogxConfig() logx.Config {
	return logx.Config{
		Level:   c.Logging.Level,
		Console: c.Logging.Console,
		File: logx.FileConfig{
			Enabled: c.Logging.File.Enabled,
			Path:    c.Logging.File.Path,
		},
	}
}

func (c *Config) StoreConfig() (store.Config, error) {
	if c.Store == nil {
		return store.Config{}, nil
	}
	busy, err := ParseDurationField("store.busy_timeout", c.Store.BusyTimeout)
	if err != nil {
		return store.Config{}, err
	}
	return store.Config{
		Driver:      c.Store.Driver,
		Path:        c.Store.Path,
		BusyTimeout: busy,
	}, nil
}

func (c *Config) GroupAPIConfig() (groupapi.Config, bool, error) {
	if c.GroupAPI == nil {
		return groupapi.Config{}, false, nil
	}
	timeout, err := ParseDurationField("group_api.timeout", c.GroupAPI.Timeout)
	if err != nil {
		return groupapi.Config{}, false, err
	}
	return groupapi.Config{
		BaseURL:       c.GroupAPI.BaseURL,
		AuthCookie:    c.GroupAPI.AuthCookie,
		UserAgent:     c.GroupAPI.UserAgent,
		Timeout:       timeout,
		RatePerMinute: c.GroupAPI.RatePerMinute,
	}, true, nil
}

func (c *Config) NotifyConfig() notify.Config {
	if c.Telegram == nil {
		return notify.Config{}
	}
	return notify.Config{
		Enabled: c.Telegram.Enabled,
		Token:   c.Telegram.Token,
		ChatID:  c.Telegram.ChatID,
	}
}

func (c *Config) TickInterval() (time.Duration, error) {
	return ParseDurationOrDefault("automation.tick_interval", c.Automation.TickInterval, 60*time.Second)
}

func (c *Config) ActionTimeout() (time.Duration, error) {
	return ParseDurationOrDefault("automation.action_timeout", c.Automation.ActionTimeout, 30*time.Second)
}

func (c *Config) HorizonDays() int {
	if c.Automation.HorizonDays <= 0 {
		return automation.DefaultHorizonDays
	}
	return c.Automation.HorizonDays
}

// Validate rejects configurations that would only fail later at runtime.
func (c *Config) Validate() error {
	if _, err := c.TickInterval(); err != nil {
		return err
	}
	if _, err := c.ActionTimeout(); err != nil {
		return err
	}
	if c.Automation.HorizonDays < 0 {
		return errors.New("automation.horizon_days must be >= 0")
	}
	if _, err := c.StoreConfig(); err != nil {
		return err
	}
	if _, _, err := c.GroupAPIConfig(); err != nil {
		return err
	}
	if c.Telegram != nil && c.Telegram.Enabled {
		if c.Telegram.Token == "" {
			return errors.New("telegram.token is required when telegram.enabled")
		}
		if c.Telegram.ChatID == 0 {
			return errors.New("telegram.chat_id is required when telegram.enabled")
		}
	}
	if c.GroupAPI != nil && c.GroupAPI.BaseURL == "" {
		return errors.New("group_api.base_url is required when group_api is set")
	}
	return nil
}

// ParseDurationField parses an optional Go duration string; empty is zero.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
