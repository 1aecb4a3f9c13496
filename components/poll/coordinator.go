package poll

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/open-control-systems/device-poller/components/core"
	"github.com/open-control-systems/device-poller/components/status"
	"github.com/open-control-systems/device-poller/components/system/syscore"
	"github.com/open-control-systems/device-poller/components/system/syssched"
)

const (
	// DefaultInterval is how often the data is fetched if not configured.
	DefaultInterval = time.Second * 300

	// DefaultTimeout bounds a single fetch.
	DefaultTimeout = time.Second * 10
)

// FetchFunc fetches the complete result set using the client handle.
//
// Remarks:
//   - Expected communication failures should be reported as ClientError
//     or wrap status.StatusClientError.
//   - ctx is cancelled when the fetch timeout expires.
type FetchFunc[C any, K comparable, V any] func(ctx context.Context, client C) (map[K]V, error)

// Params represents various options for Coordinator.
type Params struct {
	// Interval - how often the scheduler should refresh the data.
	Interval time.Duration

	// Timeout - how long a single fetch may take.
	Timeout time.Duration

	// Classifier decides which fetch errors are expected API failures.
	Classifier Classifier

	// Clock to timestamp snapshots and measure refresh duration.
	Clock syscore.MonotonicClock

	// Observer is notified about each refresh, can be nil.
	Observer Observer
}

// Status describes the coordinator health.
type Status struct {
	Name                string
	Interval            time.Duration
	LastUpdateSuccess   bool
	LastError           error
	LastSuccessAt       time.Time
	ConsecutiveFailures int
	Entries             int
}

// Coordinator periodically fetches bulk data and shares the last good result
// between multiple consumers.
//
// Remarks:
//   - The coordinator doesn't run any goroutines between refreshes,
//     it is driven by a syssched.Scheduler, see Attach().
//   - A failed refresh never changes the cached snapshot.
type Coordinator[C any, K comparable, V any] struct {
	name       string
	client     C
	fetch      FetchFunc[C, K, V]
	interval   time.Duration
	timeout    time.Duration
	classifier Classifier
	clock      syscore.MonotonicClock
	observer   Observer

	refreshMu sync.Mutex
	snapshot  atomic.Pointer[Snapshot[K, V]]

	mu                sync.RWMutex
	handlers          []handlerNode[K, V]
	nextHandlerID     uint64
	awakener          syssched.Awakener
	lastErr           error
	lastSuccessAt     time.Time
	failures          int
	lastUpdateSuccess bool
}

// NewCoordinator is an initialization of Coordinator.
//
// Parameters:
//   - name - human readable name of the fetched data.
//   - client - handle passed to fetch as is.
//   - fetch to fetch the data.
//   - params - various coordinator options, zero values are replaced with defaults.
func NewCoordinator[C any, K comparable, V any](
	name string,
	client C,
	fetch FetchFunc[C, K, V],
	params Params,
) *Coordinator[C, K, V] {
	if params.Interval <= 0 {
		params.Interval = DefaultInterval
	}
	if params.Timeout <= 0 {
		params.Timeout = DefaultTimeout
	}
	if params.Classifier == nil {
		params.Classifier = IsClientError
	}
	if params.Clock == nil {
		params.Clock = &syscore.LocalMonotonicClock{}
	}

	return &Coordinator[C, K, V]{
		name:       name,
		client:     client,
		fetch:      fetch,
		interval:   params.Interval,
		timeout:    params.Timeout,
		classifier: params.Classifier,
		clock:      params.Clock,
		observer:   params.Observer,
	}
}

// Name returns the coordinator name.
func (c *Coordinator[C, K, V]) Name() string {
	return c.name
}

// Interval returns how often the coordinator wants to be refreshed.
func (c *Coordinator[C, K, V]) Interval() time.Duration {
	return c.interval
}

// Attach registers the coordinator in the scheduler.
//
// Remarks:
//   - params.UpdateInterval defaults to Interval().
//   - If subscribers are already registered, the refresh is requested immediately.
func (c *Coordinator[C, K, V]) Attach(
	scheduler syssched.Scheduler,
	params syssched.AsyncTaskRunnerParams,
) {
	if params.UpdateInterval <= 0 {
		params.UpdateInterval = c.interval
	}

	awakener := scheduler.Schedule(c.name, c, params)

	c.mu.Lock()
	c.awakener = awakener
	subscribed := len(c.handlers) > 0
	c.mu.Unlock()

	if subscribed {
		awakener.Awake()
	}
}

// Refresh fetches the data, replaces the cached snapshot and notifies subscribers.
//
// Remarks:
//   - Concurrent calls are serialized.
//   - Returns *UpdateFailedError if the fetch timed out or failed with a classified error.
//   - Other fetch errors are returned as is.
//   - If ctx is done before the fetch bound expires, ctx.Err() is returned as is
//     and the refresh isn't counted as a failure. This includes a ctx deadline
//     shorter than the fetch timeout, which yields a bare context.DeadlineExceeded.
//   - Subscribers are notified before Refresh returns, while the refresh lock is held.
func (c *Coordinator[C, K, V]) Refresh(ctx context.Context) (*Snapshot[K, V], error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	start := c.clock.Now()

	data, err := c.fetchWithTimeout(ctx)

	now := c.clock.Now()
	elapsed := now.Sub(start)

	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}

		c.handleFailure(err, elapsed)

		return nil, err
	}

	snapshot := NewSnapshot(data, now)

	c.handleSuccess(snapshot, now, elapsed)
	c.notify(snapshot)

	return snapshot, nil
}

// Run refreshes the data, it's used by the scheduler.
func (c *Coordinator[C, K, V]) Run(ctx context.Context) error {
	_, err := c.Refresh(ctx)
	return err
}

// HandleError handles errors from the scheduled Run() calls.
//
// Remarks:
//   - Refresh() already logged the failure.
func (*Coordinator[C, K, V]) HandleError(_ error) {
}

// Snapshot returns the most recent snapshot, false if nothing was fetched yet.
func (c *Coordinator[C, K, V]) Snapshot() (*Snapshot[K, V], bool) {
	snapshot := c.snapshot.Load()
	return snapshot, snapshot != nil
}

// Subscribe registers the handler to be notified on each successful refresh.
//
// Remarks:
//   - The first subscriber requests an immediate refresh.
//   - Use Snapshot() to get the data fetched before the subscription.
//
// Returns the function to unsubscribe the handler.
func (c *Coordinator[C, K, V]) Subscribe(handler Handler[K, V]) func() {
	c.mu.Lock()

	first := len(c.handlers) == 0

	c.nextHandlerID++
	id := c.nextHandlerID
	c.handlers = append(c.handlers, handlerNode[K, V]{id: id, handler: handler})

	awakener := c.awakener

	c.mu.Unlock()

	if first && awakener != nil {
		awakener.Awake()
	}

	var once sync.Once

	return func() {
		once.Do(func() {
			c.unsubscribe(id)
		})
	}
}

// RequestRefresh asks the scheduler to refresh the data as soon as possible.
func (c *Coordinator[C, K, V]) RequestRefresh() error {
	c.mu.RLock()
	awakener := c.awakener
	c.mu.RUnlock()

	if awakener == nil {
		return status.StatusInvalidState
	}

	awakener.Awake()

	return nil
}

// SetData replaces the snapshot with the data received out of the regular refresh,
// e.g. after a write operation reported the new state.
func (c *Coordinator[C, K, V]) SetData(data map[K]V) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	now := c.clock.Now()

	snapshot := NewSnapshot(data, now)

	c.handleSuccess(snapshot, now, 0)
	c.notify(snapshot)
}

// Restore sets the snapshot persisted by a previous run.
//
// Remarks:
//   - The snapshot keeps fetchedAt, it doesn't pretend to be fresh.
//   - The health status isn't changed and the observer isn't notified:
//     no API call was made.
//   - Subscribers aren't notified, they can read it with Snapshot().
//   - Ignored if the coordinator already has a snapshot.
//
// Returns true if the snapshot was restored.
func (c *Coordinator[C, K, V]) Restore(data map[K]V, fetchedAt time.Time) bool {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.snapshot.Load() != nil {
		return false
	}

	c.snapshot.Store(NewSnapshot(data, fetchedAt))

	return true
}

// Status returns the coordinator health.
func (c *Coordinator[C, K, V]) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entries := 0
	if snapshot := c.snapshot.Load(); snapshot != nil {
		entries = snapshot.Len()
	}

	return Status{
		Name:                c.name,
		Interval:            c.interval,
		LastUpdateSuccess:   c.lastUpdateSuccess,
		LastError:           c.lastErr,
		LastSuccessAt:       c.lastSuccessAt,
		ConsecutiveFailures: c.failures,
		Entries:             entries,
	}
}

func (c *Coordinator[C, K, V]) fetchWithTimeout(ctx context.Context) (map[K]V, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resultCh := make(chan fetchResult[K, V], 1)

	go func() {
		data, err := c.fetch(fetchCtx, c.client)
		resultCh <- fetchResult[K, V]{data: data, err: err}
	}()

	select {
	case res := <-resultCh:
		if res.err == nil {
			return res.data, nil
		}

		return nil, c.classify(ctx, fetchCtx, res.err)

	case <-fetchCtx.Done():
		return nil, c.classify(ctx, fetchCtx, fetchCtx.Err())
	}
}

func (c *Coordinator[C, K, V]) classify(ctx, fetchCtx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if errors.Is(fetchCtx.Err(), context.DeadlineExceeded) {
		return newTimeoutFailed(c.name)
	}

	if c.classifier(err) {
		return newUpdateFailed(err)
	}

	return err
}

func (c *Coordinator[C, K, V]) handleSuccess(
	snapshot *Snapshot[K, V],
	now time.Time,
	elapsed time.Duration,
) {
	c.mu.Lock()
	c.snapshot.Store(snapshot)
	recovered := c.failures > 0
	c.failures = 0
	c.lastErr = nil
	c.lastSuccessAt = now
	c.lastUpdateSuccess = true
	c.mu.Unlock()

	if recovered {
		core.LogInf.Printf("poll-coordinator: fetching %s data recovered\n", c.name)
	}

	core.LogDbg.Printf("poll-coordinator: finished fetching %s data: elapsed=%s entries=%d\n",
		c.name, elapsed, snapshot.Len())

	if c.observer != nil {
		c.observer.ObserveRefresh(c.name, elapsed, snapshot.Len(), nil)
	}
}

func (c *Coordinator[C, K, V]) handleFailure(err error, elapsed time.Duration) {
	c.mu.Lock()
	c.failures++
	failures := c.failures
	c.lastErr = err
	c.lastUpdateSuccess = false
	c.mu.Unlock()

	switch {
	case failures > 1:
		core.LogDbg.Printf("poll-coordinator: fetching %s data failed: failures=%d err=%v\n",
			c.name, failures, err)

	case errors.Is(err, status.StatusUpdateFailed):
		core.LogWrn.Printf("poll-coordinator: fetching %s data failed: %v\n", c.name, err)

	default:
		core.LogErr.Printf("poll-coordinator: unexpected error fetching %s data: %v\n",
			c.name, err)
	}

	if c.observer != nil {
		c.observer.ObserveRefresh(c.name, elapsed, 0, err)
	}
}

func (c *Coordinator[C, K, V]) notify(snapshot *Snapshot[K, V]) {
	c.mu.RLock()
	handlers := make([]Handler[K, V], 0, len(c.handlers))
	for _, node := range c.handlers {
		handlers = append(handlers, node.handler)
	}
	c.mu.RUnlock()

	for _, handler := range handlers {
		handler.HandleSnapshot(snapshot)
	}
}

func (c *Coordinator[C, K, V]) unsubscribe(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, node := range c.handlers {
		if node.id == id {
			c.handlers = append(c.handlers[:i], c.handlers[i+1:]...)
			return
		}
	}
}

type handlerNode[K comparable, V any] struct {
	id      uint64
	handler Handler[K, V]
}

type fetchResult[K comparable, V any] struct {
	data map[K]V
	err  error
}
