package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/wesm/chatline/internal/testutil"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	return testutil.WriteConfig(t, dir, content)
}

func TestLoadDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("CHATLINE_HOME", tmpDir)

	cfg, err := Load("", "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.HomeDir != tmpDir {
		t.Errorf("HomeDir = %q, want %q", cfg.HomeDir, tmpDir)
	}
	if cfg.API.CookieName != "session" {
		t.Errorf("API.CookieName = %q, want session", cfg.API.CookieName)
	}
	if cfg.API.Timeout.Duration != 30*time.Second {
		t.Errorf("API.Timeout = %v, want 30s", cfg.API.Timeout.Duration)
	}
	if cfg.API.RateLimitQPS != 5 {
		t.Errorf("API.RateLimitQPS = %v, want 5", cfg.API.RateLimitQPS)
	}
	if cfg.Display.Timezone != "Asia/Tokyo" {
		t.Errorf("Display.Timezone = %q, want Asia/Tokyo", cfg.Display.Timezone)
	}
	if cfg.Display.EmptyText == "" {
		t.Error("Display.EmptyText should have a default")
	}
	if want := filepath.Join(tmpDir, "chatline.log"); cfg.Log.File != want {
		t.Errorf("Log.File = %q, want %q", cfg.Log.File, want)
	}
	if len(cfg.DevServer.Users) == 0 {
		t.Error("DevServer.Users should have default users")
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("CHATLINE_HOME", tmpDir)

	path := writeConfig(t, tmpDir, `
[api]
base_url = " https://social.example.com "
session_cookie = "abc123"
timeout = "5s"
rate_limit_qps = 2.5

[display]
timezone = "UTC"
empty_text = "nothing here"

[log]
level = "debug"

[dev_server]
addr = "127.0.0.1:9999"
users = ["taro", "hanako"]
db = "~/chat-dev.db"

[[dev_server.chatter]]
user = "hanako"
schedule = "@every 30s"
enabled = true
`)

	cfg, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.API.BaseURL != "https://social.example.com" {
		t.Errorf("API.BaseURL = %q, want trimmed URL", cfg.API.BaseURL)
	}
	if cfg.API.SessionCookie != "abc123" {
		t.Errorf("API.SessionCookie = %q", cfg.API.SessionCookie)
	}
	if cfg.API.CookieName != "session" {
		t.Errorf("API.CookieName = %q, want default kept", cfg.API.CookieName)
	}
	if cfg.API.Timeout.Duration != 5*time.Second {
		t.Errorf("API.Timeout = %v, want 5s", cfg.API.Timeout.Duration)
	}
	if cfg.API.RateLimitQPS != 2.5 {
		t.Errorf("API.RateLimitQPS = %v, want 2.5", cfg.API.RateLimitQPS)
	}
	if cfg.Display.Timezone != "UTC" {
		t.Errorf("Display.Timezone = %q, want UTC", cfg.Display.Timezone)
	}
	if cfg.Display.LauncherText != "Messages" {
		t.Errorf("Display.LauncherText = %q, want default kept", cfg.Display.LauncherText)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
	if got := strings.Join(cfg.DevServer.Users, ","); got != "taro,hanako" {
		t.Errorf("DevServer.Users = %q", got)
	}
	home, _ := os.UserHomeDir()
	if want := filepath.Join(home, "chat-dev.db"); cfg.DevServer.DB != want {
		t.Errorf("DevServer.DB = %q, want %q", cfg.DevServer.DB, want)
	}
	if len(cfg.DevServer.Chatter) != 1 || cfg.DevServer.Chatter[0].User != "hanako" {
		t.Errorf("DevServer.Chatter = %+v", cfg.DevServer.Chatter)
	}
	if cfg.ConfigFilePath() != path {
		t.Errorf("ConfigFilePath() = %q, want %q", cfg.ConfigFilePath(), path)
	}
}

func TestLoadInvalidDuration(t *testing.T) {
	tmpDir := t.TempDir()
	path := writeConfig(t, tmpDir, `
[api]
timeout = "soon"
`)
	if _, err := Load(path, tmpDir); err == nil {
		t.Fatal("Load() should reject an invalid duration")
	}
}

func TestLoadHomeDirArgument(t *testing.T) {
	envDir := t.TempDir()
	argDir := t.TempDir()
	t.Setenv("CHATLINE_HOME", envDir)

	cfg, err := Load("", argDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HomeDir != argDir {
		t.Errorf("HomeDir = %q, want %q (argument wins over env)", cfg.HomeDir, argDir)
	}
	if cfg.ConfigFilePath() != filepath.Join(argDir, "config.toml") {
		t.Errorf("ConfigFilePath() = %q", cfg.ConfigFilePath())
	}
}

func TestValidate(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("CHATLINE_HOME", tmpDir)

	cfg, err := Load("", "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() should fail without base_url")
	}

	cfg.API.BaseURL = "https://social.example.com"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}

	cfg.API.RateLimitQPS = -1
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() should reject negative rate limit")
	}
}

func TestEnsureHomeDir(t *testing.T) {
	home := filepath.Join(t.TempDir(), "nested", "home")
	cfg, err := Load("", home)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := cfg.EnsureHomeDir(); err != nil {
		t.Fatalf("EnsureHomeDir() error = %v", err)
	}
	if fi, err := os.Stat(home); err != nil || !fi.IsDir() {
		t.Errorf("home dir not created: %v", err)
	}
}

func TestScheduledChatter(t *testing.T) {
	cfg := &Config{DevServer: DevServerConfig{Chatter: []ChatterSchedule{
		{User: "bob", Schedule: "*/5 * * * *", Enabled: true},
		{User: "carol", Schedule: "@every 1m", Enabled: true},
		{User: "dave", Schedule: "0 3 * * *", Enabled: false},
		{User: "erin", Schedule: "", Enabled: true},
	}}}

	got := cfg.ScheduledChatter()

	var users []string
	for _, ch := range got {
		users = append(users, ch.User)
	}
	testutil.AssertStrings(t, users, "bob", "carol")
}
