package pulse

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Task is one named recurring job owned by the Scheduler.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler is a process-wide timer-driven task runner. It owns a small set
// of named recurring tasks, each independently cancellable. Tasks share no
// mutable state beyond the stores they read and write.
type Scheduler struct {
	logger *slog.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// NewScheduler creates an empty scheduler.
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		logger:  logger,
		cancels: make(map[string]context.CancelFunc),
	}
}

// Add registers and starts a recurring task. The task first fires after one
// full interval, then on every tick until cancelled or the parent context
// ends. Task names must be unique.
func (s *Scheduler) Add(ctx context.Context, t Task) error {
	if t.Name == "" {
		return fmt.Errorf("task name is required")
	}
	if t.Interval <= 0 {
		return fmt.Errorf("task %q: interval must be positive", t.Name)
	}
	if t.Run == nil {
		return fmt.Errorf("task %q: run func is required", t.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.cancels[t.Name]; exists {
		return fmt.Errorf("task %q already scheduled", t.Name)
	}

	taskCtx, cancel := context.WithCancel(ctx)
	s.cancels[t.Name] = cancel

	s.wg.Add(1)
	go s.loop(taskCtx, t)

	s.logger.Info("task scheduled", "task", t.Name, "interval", t.Interval)
	return nil
}

// Cancel stops one task by name, reporting whether it was scheduled.
func (s *Scheduler) Cancel(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cancel, ok := s.cancels[name]
	if !ok {
		return false
	}
	cancel()
	delete(s.cancels, name)
	return true
}

// Stop cancels all tasks and blocks until their goroutines exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	for name, cancel := range s.cancels {
		cancel()
		delete(s.cancels, name)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// loop drives one task until its context ends.
func (s *Scheduler) loop(ctx context.Context, t Task) {
	defer s.wg.Done()

	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := time.Now()
			if err := t.Run(ctx); err != nil {
				s.logger.Warn("scheduled task failed",
					"task", t.Name, "error", err, "duration", time.Since(start))
				continue
			}
			s.logger.Debug("scheduled task complete",
				"task", t.Name, "duration", time.Since(start))
		}
	}
}

// ClientTask builds the recurring pulse job for one client: each tick runs
// the digest pipeline over the interval that just elapsed.
func ClientTask(runner *Runner, clientID string, interval time.Duration) Task {
	return Task{
		Name:     "pulse:" + clientID,
		Interval: interval,
		Run: func(ctx context.Context) error {
			end := time.Now().UTC()
			_, err := runner.Run(ctx, clientID, Period{Start: end.Add(-interval), End: end})
			return err
		},
	}
}
