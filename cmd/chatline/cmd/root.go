package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wesm/chatline/internal/chatapi"
	"github.com/wesm/chatline/internal/config"
	"github.com/wesm/chatline/internal/timefmt"
)

var (
	cfgFile string
	homeDir string
	verbose bool
	cfg     *config.Config
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "chatline",
	Short: "Direct messages in the terminal",
	Long: `chatline is a terminal client for the direct-message feature of the
social web app. It talks to the same REST endpoints as the browser widget:
browse conversations, read and answer threads, and bulk-delete
conversations.

Run 'chatline dev-server' for an in-memory backend to try it locally.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for commands that don't need it
		if cmd.Name() == "version" {
			return nil
		}

		// Set up logging
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}))

		// Load config (--home is passed through so it influences
		// where config.toml is loaded from, like CHATLINE_HOME).
		var err error
		cfg, err = config.Load(cfgFile, homeDir)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		// Ensure home directory exists on first use
		if err := cfg.EnsureHomeDir(); err != nil {
			return fmt.Errorf("create home directory %s: %w", cfg.HomeDir, err)
		}

		return nil
	},
}

// Execute runs the root command with a background context.
// Prefer ExecuteContext for signal-aware execution.
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the root command with the given context,
// enabling graceful shutdown when the context is cancelled.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// newClient builds an API client from the loaded config.
func newClient(log *slog.Logger) (*chatapi.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w\n\nAdd the backend to %s:\n  [api]\n  base_url = \"https://social.example.com\"\n  session_cookie = \"<value of your session cookie>\"",
			err, cfg.ConfigFilePath())
	}
	return chatapi.New(chatapi.Config{
		URL:           cfg.API.BaseURL,
		SessionCookie: cfg.API.SessionCookie,
		CookieName:    cfg.API.CookieName,
		AllowInsecure: cfg.API.AllowInsecure,
		Timeout:       cfg.API.Timeout.Duration,
		RateLimitQPS:  cfg.API.RateLimitQPS,
		Logger:        log,
	})
}

// newFormatter returns the timestamp formatter for the configured zone.
func newFormatter() (*timefmt.Formatter, error) {
	f, err := timefmt.New(cfg.Display.Timezone)
	if err != nil {
		return nil, fmt.Errorf("[display] timezone: %w", err)
	}
	return f, nil
}

// parseLevel maps a config level name to a slog level.
func parseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if strings.TrimSpace(name) == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return slog.LevelInfo, fmt.Errorf("[log] level: %w", err)
	}
	return level, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.chatline/config.toml)")
	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "home directory (overrides CHATLINE_HOME)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
