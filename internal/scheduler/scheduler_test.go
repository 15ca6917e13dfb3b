package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wesm/chatline/internal/config"
	"github.com/wesm/chatline/internal/testutil"
)

func noopPost(ctx context.Context, user string) error { return nil }

// newQuiet returns a scheduler that logs to the test logger.
func newQuiet(post PostFunc) *Scheduler {
	return New(post).WithLogger(testutil.Logger())
}

// waitStopped waits for the context returned by Stop.
func waitStopped(t *testing.T, ctx context.Context) {
	t.Helper()
	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() did not complete in time")
	}
}

// statusOf returns the status entry for user.
func statusOf(t *testing.T, s *Scheduler, user string) UserStatus {
	t.Helper()
	for _, st := range s.Status() {
		if st.User == user {
			return st
		}
	}
	t.Fatalf("%s not found in status", user)
	return UserStatus{}
}

// waitIdle polls until the user's post has finished.
func waitIdle(t *testing.T, s *Scheduler, user string) UserStatus {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		st := statusOf(t, s, user)
		if !st.Running && (st.Posts > 0 || st.LastError != "") {
			return st
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("post for %s did not finish", user)
	return UserStatus{}
}

func TestAdd(t *testing.T) {
	s := newQuiet(noopPost)

	if err := s.Add("bob", "*/5 * * * *"); err != nil {
		t.Errorf("Add() with valid cron = %v, want nil", err)
	}
	if err := s.Add("carol", "@every 30s"); err != nil {
		t.Errorf("Add() with descriptor = %v, want nil", err)
	}
	if !s.IsScheduled("bob") || !s.IsScheduled("carol") {
		t.Error("users were not scheduled")
	}
}

func TestAddInvalidCron(t *testing.T) {
	s := newQuiet(noopPost)

	if err := s.Add("bob", "invalid cron"); err == nil {
		t.Error("Add() with invalid cron = nil, want error")
	}
	if s.IsScheduled("bob") {
		t.Error("invalid schedule must not be kept")
	}
}

func TestAddReplacesExisting(t *testing.T) {
	s := newQuiet(noopPost)

	if err := s.Add("bob", "0 2 * * *"); err != nil {
		t.Fatalf("Add() = %v", err)
	}
	s.mu.RLock()
	firstID := s.speakers["bob"].entry
	s.mu.RUnlock()

	if err := s.Add("bob", "0 3 * * *"); err != nil {
		t.Fatalf("Add() replacement = %v", err)
	}
	s.mu.RLock()
	secondID := s.speakers["bob"].entry
	s.mu.RUnlock()

	if firstID == secondID {
		t.Error("job ID was not updated after replacement")
	}
	if got := statusOf(t, s, "bob").Schedule; got != "0 3 * * *" {
		t.Errorf("Schedule = %q, want the replacement", got)
	}
}

func TestRemove(t *testing.T) {
	s := newQuiet(noopPost)

	if err := s.Add("bob", "0 2 * * *"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	s.Remove("bob")
	s.Remove("nobody")

	if s.IsScheduled("bob") {
		t.Error("job still exists after Remove()")
	}
}

func TestAddFromConfig(t *testing.T) {
	s := newQuiet(noopPost)

	cfg := &config.Config{DevServer: config.DevServerConfig{Chatter: []config.ChatterSchedule{
		{User: "bob", Schedule: "*/1 * * * *", Enabled: true},
		{User: "carol", Schedule: "not a cron", Enabled: true},
		{User: "dave", Schedule: "0 3 * * *", Enabled: false},
	}}}

	scheduled, errs := s.AddFromConfig(cfg)

	if scheduled != 1 {
		t.Errorf("scheduled = %d, want 1", scheduled)
	}
	if len(errs) != 1 {
		t.Errorf("len(errs) = %d, want 1", len(errs))
	}
	if !s.IsScheduled("bob") || s.IsScheduled("dave") {
		t.Error("only enabled valid entries should be scheduled")
	}
}

func TestIsRunning(t *testing.T) {
	s := newQuiet(noopPost)

	if s.IsRunning() {
		t.Error("IsRunning() = true before Start()")
	}
	s.Start()
	if !s.IsRunning() {
		t.Error("IsRunning() = false after Start()")
	}
	ctx := s.Stop()
	if s.IsRunning() {
		t.Error("IsRunning() = true after Stop()")
	}
	waitStopped(t, ctx)
}

func TestStopCancelsRunningPost(t *testing.T) {
	started := make(chan struct{})
	s := newQuiet(func(ctx context.Context, user string) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})

	if err := s.Add("bob", "0 0 1 1 *"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Trigger("bob"); err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("post did not start")
	}

	waitStopped(t, s.Stop())

	if statusOf(t, s, "bob").LastError == "" {
		t.Error("expected error after cancelled post")
	}
}

func TestTriggerPreventsDoubleRun(t *testing.T) {
	var concurrent, maxConcurrent, called atomic.Int32
	release := make(chan struct{})
	s := newQuiet(func(ctx context.Context, user string) error {
		called.Add(1)
		c := concurrent.Add(1)
		if c > maxConcurrent.Load() {
			maxConcurrent.Store(c)
		}
		<-release
		concurrent.Add(-1)
		return nil
	})

	if err := s.Add("bob", "0 0 1 1 *"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Trigger("bob"); err != nil {
		t.Fatalf("Trigger() = %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := s.Trigger("bob"); err == nil {
			t.Error("Trigger() while running = nil, want error")
		}
	}
	close(release)

	st := waitIdle(t, s, "bob")
	if called.Load() != 1 || maxConcurrent.Load() != 1 {
		t.Errorf("called=%d max concurrent=%d, want 1/1", called.Load(), maxConcurrent.Load())
	}
	if st.Posts != 1 || st.LastRun.IsZero() || st.LastError != "" {
		t.Errorf("status = %+v, want one successful post", st)
	}
}

func TestTriggerUnscheduled(t *testing.T) {
	s := newQuiet(noopPost)
	if err := s.Trigger("nobody"); err == nil {
		t.Error("Trigger() for unscheduled user = nil, want error")
	}
}

func TestStatusAfterPostError(t *testing.T) {
	s := newQuiet(func(ctx context.Context, user string) error {
		return errors.New("post failed")
	})

	if err := s.Add("bob", "0 0 1 1 *"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Trigger("bob"); err != nil {
		t.Fatalf("Trigger: %v", err)
	}

	st := waitIdle(t, s, "bob")
	if st.LastError != "post failed" || st.Posts != 0 {
		t.Errorf("status = %+v, want the failure recorded", st)
	}
}

func TestStatusNextRun(t *testing.T) {
	s := newQuiet(noopPost)
	if err := s.Add("bob", "0 2 * * *"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	s.Start()
	defer s.Stop()

	if st := statusOf(t, s, "bob"); st.Running || st.NextRun.IsZero() {
		t.Errorf("status = %+v, want idle with a next run", st)
	}
}

func TestTriggerAfterStop(t *testing.T) {
	s := newQuiet(noopPost)
	if err := s.Add("bob", "0 0 1 1 *"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	waitStopped(t, s.Stop())

	if err := s.Trigger("bob"); !errors.Is(err, ErrStopped) {
		t.Errorf("Trigger() after Stop() = %v, want ErrStopped", err)
	}
}

func TestAddInvalidReplacementKeepsSchedule(t *testing.T) {
	s := newQuiet(noopPost)
	if err := s.Add("bob", "@hourly"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := s.Add("bob", "whenever"); err == nil {
		t.Fatal("Add() with invalid cron = nil, want error")
	}
	if got := statusOf(t, s, "bob").Schedule; got != "@hourly" {
		t.Errorf("Schedule = %q, want the earlier @hourly kept", got)
	}
}

func TestAddBlankUser(t *testing.T) {
	s := newQuiet(noopPost)
	if err := s.Add("  ", "@hourly"); err == nil {
		t.Error("Add() with blank user = nil, want error")
	}
	if n := len(s.Status()); n != 0 {
		t.Errorf("Status() has %d entries, want 0", n)
	}
}

func TestStatusOrderedByUser(t *testing.T) {
	s := newQuiet(noopPost)
	for _, user := range []string{"carol", "alice", "bob"} {
		if err := s.Add(user, "@hourly"); err != nil {
			t.Fatalf("Add(%s): %v", user, err)
		}
	}

	var got []string
	for _, st := range s.Status() {
		got = append(got, st.User)
	}
	testutil.AssertStrings(t, got, "alice", "bob", "carol")
}

func TestValidateCronExpr(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"0 2 * * *", false},
		{"*/15 * * * *", false},
		{"@every 30s", false},
		{"@hourly", false},
		{"invalid", true},
		{"* * * * * *", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			err := ValidateCronExpr(tt.expr)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateCronExpr(%q) error = %v, wantErr = %v", tt.expr, err, tt.wantErr)
			}
		})
	}
}
