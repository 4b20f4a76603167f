package safesync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ruteri/safesync/dbfile"
	"github.com/ruteri/safesync/interfaces"
)

// cronParser accepts standard 5-field cron expressions and descriptors like @every 5m.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

var (
	ErrDuplicateSafe   = errors.New("safesync: duplicate safe name")
	ErrUnknownSafe     = errors.New("safesync: unknown safe")
	ErrInvalidSchedule = errors.New("safesync: invalid schedule")
)

// Safe is a local database file that is pushed to the provider on a schedule.
type Safe struct {
	Name     string
	Path     string
	Ref      interfaces.FileReference
	Schedule string
}

// JobStatus is the outcome of the most recent run of a safe's job.
type JobStatus struct {
	LastRun    time.Time
	LastResult PushResult
	LastError  error
}

// Scheduler runs periodic pushes of local database files.
type Scheduler struct {
	syncer  *Syncer
	cron    *cron.Cron
	timeout time.Duration
	log     *slog.Logger

	mu     sync.Mutex
	safes  map[string]Safe
	status map[string]JobStatus
}

// NewScheduler creates a scheduler pushing through syncer. Each run is bounded by timeout.
func NewScheduler(syncer *Syncer, timeout time.Duration, log *slog.Logger) *Scheduler {
	logger := cronLogger{log: log}
	return &Scheduler{
		syncer: syncer,
		cron: cron.New(
			cron.WithParser(cronParser),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		timeout: timeout,
		log:     log,
		safes:   make(map[string]Safe),
		status:  make(map[string]JobStatus),
	}
}

// Add registers a safe. A safe without a schedule is only pushed through RunNow.
func (s *Scheduler) Add(safe Safe) error {
	if err := safe.Ref.Validate(); err != nil {
		return fmt.Errorf("safe %q: %w", safe.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.safes[safe.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateSafe, safe.Name)
	}

	if safe.Schedule != "" {
		if _, err := cronParser.Parse(safe.Schedule); err != nil {
			return fmt.Errorf("%w %q for safe %q: %v", ErrInvalidSchedule, safe.Schedule, safe.Name, err)
		}
		name := safe.Name
		if _, err := s.cron.AddFunc(safe.Schedule, func() { s.run(name) }); err != nil {
			return fmt.Errorf("%w %q for safe %q: %v", ErrInvalidSchedule, safe.Schedule, safe.Name, err)
		}
	}

	s.safes[safe.Name] = safe
	return nil
}

// Safe returns the registered safe with the given name.
func (s *Scheduler) Safe(name string) (Safe, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	safe, ok := s.safes[name]
	return safe, ok
}

// Status returns the last run outcome for a safe.
func (s *Scheduler) Status(name string) (JobStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.status[name]
	return st, ok
}

// Start starts the cron loop in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling and waits for running jobs or ctx, whichever comes first.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.log.Warn("scheduler stopped before running jobs finished")
	}
}

// RunNow loads and pushes the named safe immediately.
func (s *Scheduler) RunNow(ctx context.Context, name string) (PushResult, error) {
	safe, ok := s.Safe(name)
	if !ok {
		return PushResult{}, fmt.Errorf("%w: %s", ErrUnknownSafe, name)
	}

	result, err := s.push(ctx, safe)

	s.mu.Lock()
	s.status[name] = JobStatus{LastRun: time.Now().UTC(), LastResult: result, LastError: err}
	s.mu.Unlock()

	return result, err
}

func (s *Scheduler) run(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	result, err := s.RunNow(ctx, name)
	if err != nil {
		s.log.Error("scheduled push failed", "safe", name, "err", err)
		return
	}
	s.log.Debug("scheduled push finished", "safe", name, "skipped", result.Skipped, "contentID", result.ContentID)
}

func (s *Scheduler) push(ctx context.Context, safe Safe) (PushResult, error) {
	data, err := os.ReadFile(safe.Path)
	if err != nil {
		return PushResult{}, fmt.Errorf("read safe %q: %w", safe.Name, err)
	}
	db, err := dbfile.Decode(data)
	if err != nil {
		return PushResult{}, fmt.Errorf("load safe %q: %w", safe.Name, err)
	}
	return s.syncer.Push(ctx, safe.Ref, db)
}

// cronLogger adapts slog to the cron.Logger interface.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(keysAndValues, "err", err)...)
}
