// Package config handles loading and managing chatline configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/wesm/chatline/internal/fileutil"
)

// APIConfig describes how to reach the chat backend.
type APIConfig struct {
	BaseURL       string   `toml:"base_url"`       // e.g. https://social.example.com
	SessionCookie string   `toml:"session_cookie"` // value of the login session cookie
	CookieName    string   `toml:"cookie_name"`    // default: session
	AllowInsecure bool     `toml:"allow_insecure"` // permit plain http
	Timeout       Duration `toml:"timeout"`        // per-request timeout
	RateLimitQPS  float64  `toml:"rate_limit_qps"` // client-side request pacing
}

// DisplayConfig holds presentation settings for the chat widget.
type DisplayConfig struct {
	Timezone     string `toml:"timezone"`      // IANA zone for timestamps
	LauncherText string `toml:"launcher_text"` // label next to the unread dot
	EmptyText    string `toml:"empty_text"`    // placeholder row for an empty list
}

// LogConfig controls the diagnostic log.
type LogConfig struct {
	File  string `toml:"file"`
	Level string `toml:"level"` // debug, info, warn, error
}

// ChatterSchedule makes a dev server user post on a schedule.
type ChatterSchedule struct {
	User     string `toml:"user"`     // username that posts
	Schedule string `toml:"schedule"` // cron expression, e.g. "*/5 * * * *" or "@every 30s"
	Enabled  bool   `toml:"enabled"`
}

// DevServerConfig configures the development backend.
type DevServerConfig struct {
	Addr    string            `toml:"addr"`
	Users   []string          `toml:"users"`
	DB      string            `toml:"db"` // SQLite file; empty keeps state in memory
	Chatter []ChatterSchedule `toml:"chatter"`
}

// Config represents the chatline configuration.
type Config struct {
	API       APIConfig       `toml:"api"`
	Display   DisplayConfig   `toml:"display"`
	Log       LogConfig       `toml:"log"`
	DevServer DevServerConfig `toml:"dev_server"`

	// Computed paths (not from config file)
	HomeDir    string `toml:"-"`
	configPath string
}

// Duration is a time.Duration that decodes from a TOML string like "30s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// DefaultHome returns the default chatline home directory.
// Respects CHATLINE_HOME environment variable.
func DefaultHome() string {
	if h := os.Getenv("CHATLINE_HOME"); h != "" {
		return expandPath(h)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".chatline"
	}
	return filepath.Join(home, ".chatline")
}

// Load reads the configuration from the specified file.
// If path is empty, uses <home>/config.toml. If homeDir is empty, uses
// DefaultHome.
func Load(path, homeDir string) (*Config, error) {
	if homeDir == "" {
		homeDir = DefaultHome()
	}
	homeDir = expandPath(homeDir)

	if path == "" {
		path = filepath.Join(homeDir, "config.toml")
	}
	path = expandPath(path)

	cfg := &Config{
		HomeDir:    homeDir,
		configPath: path,
		// Defaults
		API: APIConfig{
			CookieName:   "session",
			Timeout:      Duration{30 * time.Second},
			RateLimitQPS: 5,
		},
		Display: DisplayConfig{
			Timezone:     "Asia/Tokyo",
			LauncherText: "Messages",
			EmptyText:    "No messages yet",
		},
		Log: LogConfig{
			File:  filepath.Join(homeDir, "chatline.log"),
			Level: "info",
		},
		DevServer: DevServerConfig{
			Addr:  "127.0.0.1:8787",
			Users:   []string{"alice", "bob", "carol"},
			Chatter: []ChatterSchedule{},
		},
	}

	// Config file is optional - use defaults if not present
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// Expand ~ in paths
	cfg.Log.File = expandPath(cfg.Log.File)
	cfg.DevServer.DB = expandPath(cfg.DevServer.DB)
	cfg.API.BaseURL = strings.TrimSpace(cfg.API.BaseURL)
	if cfg.API.CookieName == "" {
		cfg.API.CookieName = "session"
	}

	return cfg, nil
}

// ConfigFilePath returns the path the configuration was (or would be)
// loaded from.
func (c *Config) ConfigFilePath() string {
	if c.configPath != "" {
		return c.configPath
	}
	return filepath.Join(c.HomeDir, "config.toml")
}

// EnsureHomeDir creates the home directory if it does not exist.
func (c *Config) EnsureHomeDir() error {
	return fileutil.MkdirPrivate(c.HomeDir)
}

// Validate checks the settings a client connection needs.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("[api] base_url is not set in %s", c.ConfigFilePath())
	}
	if c.API.Timeout.Duration < 0 {
		return fmt.Errorf("[api] timeout must not be negative")
	}
	if c.API.RateLimitQPS < 0 {
		return fmt.Errorf("[api] rate_limit_qps must not be negative")
	}
	return nil
}

// ScheduledChatter returns the chatter entries that are enabled and have
// a schedule.
func (c *Config) ScheduledChatter() []ChatterSchedule {
	var scheduled []ChatterSchedule
	for _, ch := range c.DevServer.Chatter {
		if ch.Enabled && ch.Schedule != "" {
			scheduled = append(scheduled, ch)
		}
	}
	return scheduled
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
