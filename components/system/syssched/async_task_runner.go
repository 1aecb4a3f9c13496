package syssched

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/open-control-systems/device-poller/components/status"
)

// AsyncTaskRunnerParams represents various options for AsyncTaskRunner.
type AsyncTaskRunnerParams struct {
	// UpdateInterval - how often to run the task.
	UpdateInterval time.Duration

	// RunOnStart runs the task once as soon as the runner is started.
	RunOnStart bool

	// ExitOnSuccess stops the runner after the first successful run.
	ExitOnSuccess bool

	// Backoff, if set, defines the delay before the next run after a failed run.
	//
	// Remarks:
	//   - Reset after each successful run.
	//   - UpdateInterval is used when the backoff is exhausted.
	Backoff backoff.BackOff
}

// AsyncTaskRunner periodically runs task in the standalone goroutine.
//
// Remarks:
//   - The task is never run concurrently with itself.
type AsyncTaskRunner struct {
	ctx     context.Context
	cancel  context.CancelFunc
	wakeCh  chan struct{}
	doneCh  chan struct{}
	task    Task
	handler ErrorHandler
	params  AsyncTaskRunnerParams

	mu      sync.Mutex
	started bool
}

// NewAsyncTaskRunner is an initialization of AsyncTaskRunner.
//
// Parameters:
//   - ctx - parent context, the runner exits when it's cancelled.
//   - task to run.
//   - handler to handle task errors, can be nil.
//   - params - various runner options.
func NewAsyncTaskRunner(
	ctx context.Context,
	task Task,
	handler ErrorHandler,
	params AsyncTaskRunnerParams,
) *AsyncTaskRunner {
	ctx, cancel := context.WithCancel(ctx)

	return &AsyncTaskRunner{
		ctx:     ctx,
		cancel:  cancel,
		wakeCh:  make(chan struct{}, 1),
		doneCh:  make(chan struct{}),
		task:    task,
		handler: handler,
		params:  params,
	}
}

// Start begins asynchronous task processing.
func (r *AsyncTaskRunner) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return status.StatusInvalidState
	}

	if r.params.UpdateInterval <= 0 {
		return status.StatusInvalidState
	}

	r.started = true

	go r.run()

	return nil
}

// Stop ends asynchronous task processing and waits for the running task to finish.
func (r *AsyncTaskRunner) Stop() error {
	r.cancel()

	r.mu.Lock()
	started := r.started
	r.mu.Unlock()

	if started {
		<-r.doneCh
	}

	return nil
}

// Awake runs the task as soon as possible, out of its regular cadence.
//
// Remarks:
//   - Multiple calls made while the task is running result in a single run.
func (r *AsyncTaskRunner) Awake() {
	select {
	case r.wakeCh <- struct{}{}:
	default:
	}
}

func (r *AsyncTaskRunner) run() {
	defer close(r.doneCh)

	timer := time.NewTimer(r.params.UpdateInterval)
	defer timer.Stop()

	if r.params.RunOnStart {
		if r.runOnce(timer) {
			return
		}
	}

	for {
		select {
		case <-timer.C:
			if r.runOnce(timer) {
				return
			}

		case <-r.wakeCh:
			if r.runOnce(timer) {
				return
			}

		case <-r.ctx.Done():
			return
		}
	}
}

// runOnce runs the task and rearms the timer, returns true if the runner should exit.
func (r *AsyncTaskRunner) runOnce(timer *time.Timer) bool {
	err := r.task.Run(r.ctx)
	if err == nil {
		if r.params.ExitOnSuccess {
			return true
		}

		if r.params.Backoff != nil {
			r.params.Backoff.Reset()
		}

		timer.Reset(r.params.UpdateInterval)

		return false
	}

	if r.handler != nil && r.ctx.Err() == nil {
		r.handler.HandleError(err)
	}

	timer.Reset(r.nextDelay())

	return false
}

func (r *AsyncTaskRunner) nextDelay() time.Duration {
	if r.params.Backoff == nil {
		return r.params.UpdateInterval
	}

	delay := r.params.Backoff.NextBackOff()
	if delay == backoff.Stop {
		return r.params.UpdateInterval
	}

	return delay
}
