package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/wesm/chatline/internal/config"
	"github.com/wesm/chatline/internal/devserver"
	"github.com/wesm/chatline/internal/scheduler"
)

var (
	devServerAddr string
	devServerDB   string
	devServerSeed bool
)

var devServerCmd = &cobra.Command{
	Use:   "dev-server",
	Short: "Run a local chat backend for testing",
	Long: `Run a backend that serves the chat REST endpoints.

State is kept in memory and lost on exit unless a SQLite file is given
with --db or [dev_server] db in config.toml.

Users come from [dev_server] users in config.toml. The session cookie
value is the username, so point a client at the server with:

  [api]
  base_url = "http://127.0.0.1:8787"
  session_cookie = "alice"
  allow_insecure = true

Users listed under [[dev_server.chatter]] post canned messages on a cron
schedule, which keeps the unread dot busy while you work on the client.

Use Ctrl+C to stop the server gracefully.`,
	RunE: runDevServer,
}

func init() {
	rootCmd.AddCommand(devServerCmd)
	devServerCmd.Flags().StringVar(&devServerAddr, "addr", "", "listen address (default from config)")
	devServerCmd.Flags().StringVar(&devServerDB, "db", "", "SQLite file to keep state in (default from config, empty for memory)")
	devServerCmd.Flags().BoolVar(&devServerSeed, "seed", false, "start with demo conversations")
}

// devStore is a dev server backend and its cleanup.
type devStore struct {
	devserver.Backend
	close func() error
}

// newDevStore opens the backend (SQLite when dbPath is set) and adds the
// configured users.
func newDevStore(dbPath string, users []string, seed bool) (*devStore, error) {
	ds := &devStore{close: func() error { return nil }}
	if dbPath == "" {
		ds.Backend = devserver.NewStore(nil)
	} else {
		sqlStore, err := devserver.OpenSQL(dbPath, nil)
		if err != nil {
			return nil, fmt.Errorf("open dev database: %w", err)
		}
		ds.Backend = sqlStore
		ds.close = sqlStore.Close
	}

	for _, name := range users {
		if _, err := ds.AddUser(name); err != nil {
			if errors.Is(err, devserver.ErrEmptyUsername) {
				continue
			}
			_ = ds.close()
			return nil, fmt.Errorf("add user %q: %w", name, err)
		}
	}
	registered, err := ds.Users()
	if err != nil {
		_ = ds.close()
		return nil, err
	}
	if len(registered) == 0 {
		_ = ds.close()
		return nil, errors.New("no users configured\n\nAdd users to config.toml:\n\n  [dev_server]\n  users = [\"alice\", \"bob\"]")
	}
	if seed {
		if err := devserver.SeedDemo(ds); err != nil {
			_ = ds.close()
			return nil, fmt.Errorf("seed demo data: %w", err)
		}
	}
	return ds, nil
}

// startChatter schedules the configured chatter users against store. A
// nil scheduler means nothing is scheduled.
func startChatter(store devserver.Backend, c *config.Config, log *slog.Logger) *scheduler.Scheduler {
	sched := scheduler.New(devserver.NewChatter(store).Post).WithLogger(log)
	count, errs := sched.AddFromConfig(c)
	for _, err := range errs {
		log.Warn("skipping chatter schedule", "error", err)
	}
	if count == 0 {
		return nil
	}
	sched.Start()
	return sched
}

func runDevServer(cmd *cobra.Command, args []string) error {
	addr := devServerAddr
	if addr == "" {
		addr = cfg.DevServer.Addr
	}

	dbPath := devServerDB
	if dbPath == "" {
		dbPath = cfg.DevServer.DB
	}

	store, err := newDevStore(dbPath, cfg.DevServer.Users, devServerSeed)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.close(); err != nil {
			logger.Warn("close dev database", "error", err)
		}
	}()

	if sched := startChatter(store, cfg, logger); sched != nil {
		defer func() {
			<-sched.Stop().Done()
		}()
	}

	users, err := store.Users()
	if err != nil {
		return err
	}

	srv := devserver.NewServer(store, logger, devserver.Options{
		Addr:       addr,
		CookieName: cfg.API.CookieName,
	})

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "chatline dev server listening on http://%s\n", addr)
	if dbPath != "" {
		fmt.Fprintf(out, "  database: %s\n", dbPath)
	}
	for _, u := range users {
		fmt.Fprintf(out, "  user %d: %s\n", u.ID, u.Username)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Press Ctrl+C to stop.")

	// Wait for shutdown signal or server error
	ctx := cmd.Context()
	select {
	case err := <-serverErr:
		logger.Error("dev server error", "error", err)
		return fmt.Errorf("dev server: %w", err)
	case <-ctx.Done():
		logger.Info("context cancelled")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("dev server shutdown error", "error", err)
	}
	fmt.Fprintln(out, "Dev server stopped.")
	return nil
}
