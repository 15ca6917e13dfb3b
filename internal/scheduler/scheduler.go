// Package scheduler runs cron-driven chatter for the development backend:
// each scheduled user posts a message on their own timetable, so a client
// pointed at the dev server sees conversations change while it runs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wesm/chatline/internal/config"
)

// PostFunc makes user say something. The dev server passes
// devserver.Chatter.Post.
type PostFunc func(ctx context.Context, user string) error

// UserStatus is the chatter state of one scheduled user.
type UserStatus struct {
	User      string    `json:"user"`
	Running   bool      `json:"running"`
	LastRun   time.Time `json:"last_run,omitempty"`
	NextRun   time.Time `json:"next_run"`
	Schedule  string    `json:"schedule"`
	Posts     int       `json:"posts"`
	LastError string    `json:"last_error,omitempty"`
}

// ErrStopped is returned by Trigger after Stop.
var ErrStopped = errors.New("scheduler is stopped")

// speaker is one scheduled user. Fields are guarded by Scheduler.mu.
type speaker struct {
	entry    cron.EntryID
	schedule string
	talking  bool
	lastPost time.Time
	lastErr  error
	posts    int
}

// Scheduler posts chatter for each scheduled user. A user never has two
// posts in flight.
type Scheduler struct {
	cron   *cron.Cron
	post   PostFunc
	logger *slog.Logger

	mu       sync.RWMutex
	speakers map[string]*speaker
	started  bool
	stopped  bool

	ctx    context.Context // cancelled on Stop
	cancel context.CancelFunc
	wg     sync.WaitGroup // posts in flight
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// New creates a Scheduler that calls post for each due user.
func New(post PostFunc) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:     cron.New(cron.WithParser(parser)),
		post:     post,
		logger:   slog.Default(),
		speakers: make(map[string]*speaker),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// WithLogger sets the logger for the scheduler.
func (s *Scheduler) WithLogger(logger *slog.Logger) *Scheduler {
	s.logger = logger
	return s
}

// Add schedules chatter for user, replacing any earlier schedule. An
// invalid expression leaves the earlier schedule in place.
func (s *Scheduler) Add(user, cronExpr string) error {
	user = strings.TrimSpace(user)
	if user == "" {
		return errors.New("chatter needs a user")
	}
	sched, err := parser.Parse(cronExpr)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sp, ok := s.speakers[user]
	if ok {
		s.cron.Remove(sp.entry)
	} else {
		sp = &speaker{}
		s.speakers[user] = sp
	}
	sp.schedule = cronExpr
	sp.entry = s.cron.Schedule(sched, cron.FuncJob(func() { s.speak(user) }))

	s.logger.Info("scheduled chatter",
		"user", user,
		"schedule", cronExpr,
		"next_run", s.cron.Entry(sp.entry).Next)
	return nil
}

// AddFromConfig schedules every enabled chatter entry of cfg. It returns
// the number scheduled and the entries that failed.
func (s *Scheduler) AddFromConfig(cfg *config.Config) (int, []error) {
	var errs []error
	scheduled := 0
	for _, ch := range cfg.ScheduledChatter() {
		if err := s.Add(ch.User, ch.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ch.User, err))
			continue
		}
		scheduled++
	}
	return scheduled, errs
}

// Remove silences user. A post already in flight finishes.
func (s *Scheduler) Remove(user string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sp, ok := s.speakers[user]; ok {
		s.cron.Remove(sp.entry)
		delete(s.speakers, user)
		s.logger.Info("removed chatter", "user", user)
	}
}

// Start begins executing scheduled jobs.
func (s *Scheduler) Start() {
	s.mu.Lock()
	s.started = true
	s.stopped = false
	n := len(s.speakers)
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("chatter started", "users", n)
}

// IsRunning returns true if the scheduler has been started and not yet stopped.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started && !s.stopped
}

// Stop halts the cron loop, cancels posts in flight and returns a context
// that is done once they have returned.
func (s *Scheduler) Stop() context.Context {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	cronCtx := s.cron.Stop()
	s.cancel()

	ctx, done := context.WithCancel(context.Background())
	go func() {
		<-cronCtx.Done()
		s.wg.Wait()
		done()
	}()
	return ctx
}

// speak is the cron job for user. Ticks that arrive while the user is
// still talking are dropped.
func (s *Scheduler) speak(user string) {
	if sp := s.claim(user); sp != nil {
		s.run(user, sp)
	}
}

// claim marks user as talking and registers the post with wg. It returns
// nil when the user is gone, busy, or the scheduler stopped.
func (s *Scheduler) claim(user string) *speaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	sp, ok := s.speakers[user]
	if !ok || s.stopped || sp.talking {
		return nil
	}
	sp.talking = true
	s.wg.Add(1)
	return sp
}

func (s *Scheduler) run(user string, sp *speaker) {
	defer s.wg.Done()

	start := time.Now()
	err := s.post(s.ctx, user)

	s.mu.Lock()
	defer s.mu.Unlock()
	sp.talking = false
	sp.lastErr = err
	if err != nil {
		s.logger.Warn("chatter post failed", "user", user, "duration", time.Since(start), "error", err)
		return
	}
	sp.lastPost = time.Now()
	sp.posts++
	s.logger.Debug("chatter posted", "user", user, "duration", time.Since(start))
}

// IsScheduled reports whether user has a schedule.
func (s *Scheduler) IsScheduled(user string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.speakers[user]
	return ok
}

// Trigger makes user post now, outside the schedule.
func (s *Scheduler) Trigger(user string) error {
	s.mu.RLock()
	sp, ok := s.speakers[user]
	stopped := s.stopped
	busy := ok && sp.talking
	s.mu.RUnlock()

	switch {
	case stopped:
		return ErrStopped
	case !ok:
		return fmt.Errorf("user %s is not scheduled", user)
	case busy:
		return fmt.Errorf("post already running for %s", user)
	}

	if sp = s.claim(user); sp == nil {
		return fmt.Errorf("post already running for %s", user)
	}
	go s.run(user, sp)
	return nil
}

// Status returns the state of every scheduled user, ordered by name.
func (s *Scheduler) Status() []UserStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	statuses := make([]UserStatus, 0, len(s.speakers))
	for user, sp := range s.speakers {
		st := UserStatus{
			User:     user,
			Running:  sp.talking,
			LastRun:  sp.lastPost,
			NextRun:  s.cron.Entry(sp.entry).Next,
			Schedule: sp.schedule,
			Posts:    sp.posts,
		}
		if sp.lastErr != nil {
			st.LastError = sp.lastErr.Error()
		}
		statuses = append(statuses, st)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].User < statuses[j].User })
	return statuses
}

// ValidateCronExpr validates a cron expression without scheduling anything.
func ValidateCronExpr(expr string) error {
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}
