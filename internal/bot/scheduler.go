package bot

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TaskFunc is a deferred unit of work. ctx is cancelled when the task is
// cancelled, times out or the scheduler stops.
type TaskFunc func(ctx context.Context, taskID string)

// Scheduler runs deferred tasks.
type Scheduler interface {
	Schedule(delay time.Duration, fn TaskFunc) string
	Cancel(taskID string) bool
	Pending() int
	Stop(ctx context.Context) error
}

// TaskStatus represents the status of a scheduled task
type TaskStatus string

const (
	TaskWaiting   TaskStatus = "waiting"
	TaskRunning   TaskStatus = "running"
	TaskCancelled TaskStatus = "cancelled"
)

type task struct {
	id     string
	status TaskStatus
	timer  *time.Timer
	ctx    context.Context
	cancel context.CancelFunc
}

// TimerScheduler runs tasks on time.AfterFunc timers with a bound on how
// many execute at once.
type TimerScheduler struct {
	mu      sync.Mutex
	tasks   map[string]*task
	sem     chan struct{}
	timeout time.Duration
	base    context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
	closed  bool
	logger  *slog.Logger
}

// NewTimerScheduler creates a scheduler. maxConcurrent bounds running tasks
// and timeout bounds each run; zero values mean 1 and no timeout.
func NewTimerScheduler(maxConcurrent int, timeout time.Duration, logger *slog.Logger) *TimerScheduler {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	base, stop := context.WithCancel(context.Background())
	return &TimerScheduler{
		tasks:   make(map[string]*task),
		sem:     make(chan struct{}, maxConcurrent),
		timeout: timeout,
		base:    base,
		stop:    stop,
		logger:  logger,
	}
}

// Schedule runs fn after delay and returns the task id. After Stop it
// returns "" and never runs fn.
func (s *TimerScheduler) Schedule(delay time.Duration, fn TaskFunc) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ""
	}

	ctx, cancel := context.WithCancel(s.base)
	t := &task{
		id:     uuid.New().String(),
		status: TaskWaiting,
		ctx:    ctx,
		cancel: cancel,
	}
	s.tasks[t.id] = t
	s.wg.Add(1)
	t.timer = time.AfterFunc(delay, func() { s.run(t, fn) })

	s.logger.Debug("task scheduled", slog.String("task", t.id), slog.Duration("delay", delay))
	return t.id
}

func (s *TimerScheduler) run(t *task, fn TaskFunc) {
	defer s.wg.Done()
	defer s.remove(t)

	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	case <-t.ctx.Done():
		return
	}

	s.mu.Lock()
	if t.status == TaskCancelled {
		s.mu.Unlock()
		return
	}
	t.status = TaskRunning
	s.mu.Unlock()

	ctx := t.ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("task panicked", slog.String("task", t.id), slog.Any("panic", r))
		}
	}()
	fn(ctx, t.id)
}

func (s *TimerScheduler) remove(t *task) {
	s.mu.Lock()
	delete(s.tasks, t.id)
	s.mu.Unlock()
	t.cancel()
}

// Cancel stops a waiting task or cancels the context of a running one. It
// reports whether the task was still known.
func (s *TimerScheduler) Cancel(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelLocked(taskID)
}

func (s *TimerScheduler) cancelLocked(taskID string) bool {
	t, ok := s.tasks[taskID]
	if !ok {
		return false
	}
	t.status = TaskCancelled
	t.cancel()
	delete(s.tasks, taskID)
	if t.timer.Stop() {
		// The timer never fired, so run will not release the wait group.
		s.wg.Done()
	}
	return true
}

// Pending returns the number of waiting and running tasks.
func (s *TimerScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Stop cancels every task and waits for running ones to return.
func (s *TimerScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	for id := range s.tasks {
		s.cancelLocked(id)
	}
	s.mu.Unlock()
	s.stop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
