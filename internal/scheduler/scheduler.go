package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron"
)

// ErrInvalidInterval is returned by Start for non-positive intervals.
var ErrInvalidInterval = errors.New("scheduler interval must be positive")

// State is the lifecycle state of a Scheduler.
type State int32

const (
	// Stopped means no periodic task exists.
	Stopped State = iota
	// Running means a periodic task is active.
	Running
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Running:
		return "running"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// CycleFunc is one unit of periodic work.
type CycleFunc func(ctx context.Context)

// Scheduler runs a CycleFunc periodically. At most one periodic Task exists
// at a time no matter how often Start is called.
type Scheduler struct {
	cycle  CycleFunc
	logger *slog.Logger
	onSkip func()

	// lifecycle serializes Start and Stop, including Stop's wait for an
	// in-flight cycle.
	lifecycle sync.Mutex

	mu    sync.Mutex
	state State
	task  *Task
}

// New creates a stopped Scheduler for cycle.
func New(cycle CycleFunc, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cycle:  cycle,
		logger: logger.With("component", "scheduler"),
		state:  Stopped,
	}
}

// OnSkip registers fn to be called whenever a tick is dropped because the
// previous cycle has not finished yet.
func (s *Scheduler) OnSkip(fn func()) *Scheduler {
	s.mu.Lock()
	s.onSkip = fn
	s.mu.Unlock()
	return s
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Task returns the active periodic task, or nil when stopped.
func (s *Scheduler) Task() *Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.task
}

// Start moves the scheduler from Stopped to Running: one cycle runs right away,
// then one per interval. Calling Start while Running is a no-op that returns
// the already active task.
func (s *Scheduler) Start(interval time.Duration) (*Task, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInterval, interval)
	}

	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Running {
		s.logger.Info("pipeline already running", "interval", s.task.Interval(), "requested_interval", interval)
		return s.task, nil
	}

	task, err := startTask(interval, s.cycle, s.onSkip, s.logger)
	if err != nil {
		return nil, err
	}

	s.task = task
	s.state = Running
	s.logger.Info("starting pipeline", "interval", interval)
	return task, nil
}

// Stop cancels future ticks and returns the scheduler to Stopped. A cycle that
// is already executing is allowed to finish before Stop returns, and a
// concurrent Start blocks until then.
func (s *Scheduler) Stop() {
	s.StopThen(nil)
}

// StopThen stops the scheduler like Stop and then runs fn before any
// concurrent Start can proceed.
func (s *Scheduler) StopThen(fn func()) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	task := s.task
	s.task = nil
	s.state = Stopped
	s.mu.Unlock()

	if task != nil {
		task.Stop()
		s.logger.Info("pipeline stopped", "runs", task.Runs(), "skipped", task.Skipped())
	}
	if fn != nil {
		fn()
	}
}

// Task is a cancellable periodic job. Overlapping ticks are skipped, never queued.
type Task struct {
	interval time.Duration
	cron     *gocron.Scheduler
	cycle    CycleFunc
	onSkip   func()
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	busy     sync.Mutex
	runs     atomic.Int64
	skipped  atomic.Int64
	stopOnce sync.Once
}

func startTask(interval time.Duration, cycle CycleFunc, onSkip func(), logger *slog.Logger) (*Task, error) {
	ctx, cancel := context.WithCancel(context.Background())

	cron := gocron.NewScheduler(time.UTC)
	cron.SetMaxConcurrentJobs(1, gocron.RescheduleMode)

	t := &Task{
		interval: interval,
		cron:     cron,
		cycle:    cycle,
		onSkip:   onSkip,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}

	// gocron runs a new job immediately on start, then every interval.
	if _, err := cron.Every(interval).Do(t.tick); err != nil {
		cancel()
		return nil, fmt.Errorf("scheduling pipeline job: %w", err)
	}

	cron.StartAsync()
	return t, nil
}

func (t *Task) tick() {
	if t.ctx.Err() != nil {
		return
	}
	if !t.busy.TryLock() {
		t.skipped.Add(1)
		t.logger.Warn("previous cycle still running; skipping tick")
		if t.onSkip != nil {
			t.onSkip()
		}
		return
	}
	defer t.busy.Unlock()

	// Stop may have won the race for busy.
	if t.ctx.Err() != nil {
		return
	}

	t.runs.Add(1)
	t.run()
}

func (t *Task) run() {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("pipeline cycle panicked", "panic", r)
		}
	}()
	if t.cycle != nil {
		t.cycle(context.WithoutCancel(t.ctx))
	}
}

// Stop cancels all future ticks and waits for an in-flight cycle to finish.
// It is safe to call more than once.
func (t *Task) Stop() {
	t.stopOnce.Do(func() {
		t.cancel()
		t.cron.Stop()

		t.busy.Lock()
		t.busy.Unlock() //nolint:staticcheck // waits for the in-flight cycle
	})
}

// Done is closed once the task has been stopped.
func (t *Task) Done() <-chan struct{} {
	return t.ctx.Done()
}

// Interval returns the tick interval.
func (t *Task) Interval() time.Duration {
	return t.interval
}

// Runs returns the number of cycles started by this task.
func (t *Task) Runs() int64 {
	return t.runs.Load()
}

// Skipped returns the number of ticks dropped because a cycle was still running.
func (t *Task) Skipped() int64 {
	return t.skipped.Load()
}
