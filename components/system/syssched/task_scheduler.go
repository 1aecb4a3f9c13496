package syssched

import (
	"context"
	"errors"
	"sync"

	"github.com/open-control-systems/device-poller/components/core"
)

// TaskScheduler runs each scheduled task in its own AsyncTaskRunner.
//
// Remarks:
//   - If the task implements ErrorHandler, it handles its own errors,
//     otherwise errors are logged.
//   - Tasks scheduled after Start() are started immediately.
type TaskScheduler struct {
	ctx context.Context

	mu      sync.Mutex
	started bool
	stopped bool
	runners []*scheduledRunner
}

// NewTaskScheduler is an initialization of TaskScheduler.
//
// Parameters:
//   - ctx - parent context for all scheduled tasks.
func NewTaskScheduler(ctx context.Context) *TaskScheduler {
	return &TaskScheduler{
		ctx: ctx,
	}
}

// Schedule registers the task to be run periodically.
func (s *TaskScheduler) Schedule(name string, task Task, params AsyncTaskRunnerParams) Awakener {
	handler, ok := task.(ErrorHandler)
	if !ok {
		handler = &logErrorHandler{name: name}
	}

	runner := NewAsyncTaskRunner(s.ctx, task, handler, params)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.runners = append(s.runners, &scheduledRunner{name: name, runner: runner})

	if s.started && !s.stopped {
		if err := runner.Start(); err != nil {
			core.LogErr.Printf("task-scheduler: failed to start task: name=%s err=%v\n",
				name, err)
		}
	}

	return runner
}

// Start starts all the scheduled tasks.
func (s *TaskScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.started = true

	for _, r := range s.runners {
		if err := r.runner.Start(); err != nil {
			return err
		}

		core.LogInf.Printf("task-scheduler: task started: name=%s interval=%s\n",
			r.name, r.runner.params.UpdateInterval)
	}

	return nil
}

// Stop stops all the scheduled tasks and waits until they finish.
func (s *TaskScheduler) Stop() error {
	s.mu.Lock()
	s.stopped = true
	runners := s.runners
	s.mu.Unlock()

	var errs []error

	for i := len(runners) - 1; i >= 0; i-- {
		if err := runners[i].runner.Stop(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

type scheduledRunner struct {
	name   string
	runner *AsyncTaskRunner
}

type logErrorHandler struct {
	name string
}

func (h *logErrorHandler) HandleError(err error) {
	core.LogErr.Printf("task-scheduler: task failed: name=%s err=%v\n", h.name, err)
}
