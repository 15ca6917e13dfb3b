package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/wesm/chatline/internal/fileutil"
	"github.com/wesm/chatline/internal/tui"
)

var (
	tuiWith string
	tuiOpen bool
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Open the interactive chat widget",
	Long: `Open the chat widget in the terminal.

The widget starts at the launcher, which shows a dot when any
conversation has unread messages.

Launcher:
  Enter/m     Open the conversation list
  n           Start a conversation with a user id
  q           Quit

Conversation list:
  ↑/k, ↓/j    Move up/down
  Enter       Open conversation
  e           Toggle selection mode
  Space       Toggle selection (selection mode)
  d           Delete selected conversations
  r           Reload
  Esc         Close the widget

Thread:
  i/Tab       Write a message (Enter sends, Tab leaves the composer)
  d           Delete your message under the cursor
  Esc/b       Back to the list

Logs go to the file configured under [log] since the terminal is owned
by the widget.`,
	Example: `  chatline tui
  chatline tui --with 42`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logFile, err := openLogFile(cfg.Log.File)
		if err != nil {
			return err
		}
		defer logFile.Close()

		fileLogger, err := newFileLogger(logFile, cfg.Log.Level)
		if err != nil {
			return err
		}

		client, err := newClient(fileLogger)
		if err != nil {
			return err
		}
		formatter, err := newFormatter()
		if err != nil {
			return err
		}

		model := tui.New(client, tui.Options{
			Formatter:    formatter,
			Logger:       fileLogger,
			LauncherText: cfg.Display.LauncherText,
			EmptyText:    cfg.Display.EmptyText,
			StartWith:    tui.NormalizeUserID(tuiWith),
			OpenOnStart:  tuiOpen,
		})
		p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(cmd.Context()))

		fileLogger.Info("starting chat widget", "base_url", cfg.API.BaseURL)
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("run tui: %w", err)
		}
		return nil
	},
}

// openLogFile opens path for appending, creating its directory.
func openLogFile(path string) (*os.File, error) {
	f, err := fileutil.OpenAppend(path)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

// newFileLogger returns a text logger writing to w at the configured
// level; --verbose forces debug.
func newFileLogger(w io.Writer, levelName string) (*slog.Logger, error) {
	level, err := parseLevel(levelName)
	if err != nil {
		return nil, err
	}
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), nil
}

func init() {
	rootCmd.AddCommand(tuiCmd)
	tuiCmd.Flags().StringVar(&tuiWith, "with", "", "start (or resume) a conversation with this user id")
	tuiCmd.Flags().BoolVar(&tuiOpen, "open", false, "open the conversation list immediately")
}
