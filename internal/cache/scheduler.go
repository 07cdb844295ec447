package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/LavishGent/tiercache/internal/types"
)

// Background task names.
const (
	TaskAnalytics = "analytics"
	TaskPrefetch  = "prefetch"
	TaskCleanup   = "cleanup"
	TaskRebalance = "rebalance"
	TaskCoherency = "coherency"
)

type scheduledTask struct {
	job  cron.Job
	runs atomic.Int64
}

// Scheduler runs named periodic tasks on fixed intervals. Every run goes
// through a recover + skip-if-still-running chain, so a task never overlaps
// itself and a panic is logged instead of killing the process.
type Scheduler struct {
	cron   *cron.Cron
	chain  cron.Chain
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	tasks   map[string]*scheduledTask
	started bool
	stopped bool
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "scheduler")
	cl := cronLogger{logger: logger}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(cron.WithLogger(cl)),
		chain:  cron.NewChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		tasks:  make(map[string]*scheduledTask),
	}
}

// Add registers fn to run every interval. A non-positive interval leaves the
// task registered for Trigger but never scheduled. fn receives a context
// that is cancelled when the scheduler stops.
func (s *Scheduler) Add(name string, interval time.Duration, fn func(ctx context.Context)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return types.ErrClosed
	}
	if _, dup := s.tasks[name]; dup {
		return fmt.Errorf("scheduler: task %q already registered", name)
	}

	task := &scheduledTask{}
	task.job = s.chain.Then(cron.FuncJob(func() {
		if s.ctx.Err() != nil {
			return
		}
		task.runs.Add(1)
		fn(s.ctx)
	}))
	s.tasks[name] = task

	if interval > 0 {
		s.cron.Schedule(cron.Every(interval), task.job)
		s.logger.Debug("Scheduled task", "task", name, "interval", interval)
	}
	return nil
}

// Start begins running scheduled tasks.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true
	s.cron.Start()
}

// Trigger runs the named task now on the calling goroutine. It returns
// false for an unknown task. A run already in progress makes this one a
// no-op.
func (s *Scheduler) Trigger(name string) bool {
	s.mu.Lock()
	task, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return false
	}
	task.job.Run()
	return true
}

// Runs returns how many times the named task has actually executed.
func (s *Scheduler) Runs(name string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if task, ok := s.tasks[name]; ok {
		return task.runs.Load()
	}
	return 0
}

// Tasks returns the registered task names, sorted.
func (s *Scheduler) Tasks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stop cancels the task context and waits, until ctx is done, for running
// tasks to return.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	s.cancel()
	done := s.cron.Stop()

	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		s.logger.Warn("Background tasks still running at shutdown")
		return types.ErrShutdownTimeout
	}
}

// cronLogger routes cron's logging into slog. Routine messages go to Debug.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron "+msg, append(keysAndValues, "error", err)...)
}
