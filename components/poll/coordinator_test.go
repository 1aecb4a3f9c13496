package poll

import (
	"context"
	"errors"
	"maps"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/open-control-systems/device-poller/components/status"
	"github.com/open-control-systems/device-poller/components/system/syssched"
)

type testDevice struct {
	Name string
}

type testClient struct {
	id string
}

type testFetchResult struct {
	data  map[string]testDevice
	err   error
	block bool
}

type testFetcher struct {
	mu        sync.Mutex
	results   []testFetchResult
	callCount int
	clients   []*testClient
}

func (f *testFetcher) push(res testFetchResult) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.results = append(f.results, res)
}

func (f *testFetcher) getCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.callCount
}

func (f *testFetcher) fetch(ctx context.Context, client *testClient) (map[string]testDevice, error) {
	f.mu.Lock()
	f.callCount++
	f.clients = append(f.clients, client)

	if len(f.results) == 0 {
		f.mu.Unlock()
		return nil, errors.New("unexpected fetch")
	}

	res := f.results[0]
	f.results = f.results[1:]
	f.mu.Unlock()

	if res.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	return res.data, res.err
}

type testHandler struct {
	mu        sync.Mutex
	snapshots []map[string]testDevice
}

func (h *testHandler) HandleSnapshot(snapshot *Snapshot[string, testDevice]) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.snapshots = append(h.snapshots, snapshot.Map())
}

func (h *testHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.snapshots)
}

func (h *testHandler) last() map[string]testDevice {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.snapshots[len(h.snapshots)-1]
}

type testAwakener struct {
	mu        sync.Mutex
	callCount int
}

func (a *testAwakener) Awake() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.callCount++
}

func (a *testAwakener) getCallCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.callCount
}

type testScheduler struct {
	name     string
	task     syssched.Task
	params   syssched.AsyncTaskRunnerParams
	awakener *testAwakener
}

func (s *testScheduler) Schedule(
	name string,
	task syssched.Task,
	params syssched.AsyncTaskRunnerParams,
) syssched.Awakener {
	s.name = name
	s.task = task
	s.params = params

	return s.awakener
}

type testObserver struct {
	mu      sync.Mutex
	entries []int
	errs    []error
}

func (o *testObserver) ObserveRefresh(_ string, _ time.Duration, entries int, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.entries = append(o.entries, entries)
	o.errs = append(o.errs, err)
}

func newTestCoordinator(
	fetcher *testFetcher,
	params Params,
) *Coordinator[*testClient, string, testDevice] {
	return NewCoordinator("devices", &testClient{id: "omada"}, fetcher.fetch, params)
}

func TestCoordinatorDefaults(t *testing.T) {
	coordinator := newTestCoordinator(&testFetcher{}, Params{})

	require.Equal(t, "devices", coordinator.Name())
	require.Equal(t, DefaultInterval, coordinator.Interval())
	require.Equal(t, time.Second*300, coordinator.Interval())
	require.Equal(t, time.Second*10, coordinator.timeout)
}

func TestCoordinatorConstructionNoFetch(t *testing.T) {
	fetcher := &testFetcher{}
	coordinator := newTestCoordinator(fetcher, Params{})

	snapshot, ok := coordinator.Snapshot()
	require.False(t, ok)
	require.Nil(t, snapshot)
	require.Equal(t, 0, fetcher.getCallCount())

	st := coordinator.Status()
	require.False(t, st.LastUpdateSuccess)
	require.Nil(t, st.LastError)
	require.Equal(t, 0, st.Entries)
}

func TestCoordinatorRefreshPassesClient(t *testing.T) {
	fetcher := &testFetcher{}
	fetcher.push(testFetchResult{data: map[string]testDevice{}})

	client := &testClient{id: "foo"}
	coordinator := NewCoordinator("devices", client, fetcher.fetch, Params{})

	_, err := coordinator.Refresh(context.Background())
	require.Nil(t, err)
	require.Len(t, fetcher.clients, 1)
	require.Same(t, client, fetcher.clients[0])
}

func TestCoordinatorRefreshTimeout(t *testing.T) {
	fetcher := &testFetcher{}
	fetcher.push(testFetchResult{block: true})

	timeout := time.Millisecond * 200
	coordinator := newTestCoordinator(fetcher, Params{Timeout: timeout})

	start := time.Now()
	snapshot, err := coordinator.Refresh(context.Background())
	elapsed := time.Since(start)

	require.Nil(t, snapshot)
	require.Error(t, err)

	var updateFailed *UpdateFailedError
	require.True(t, errors.As(err, &updateFailed))
	require.True(t, errors.Is(err, status.StatusUpdateFailed))
	require.True(t, errors.Is(err, status.StatusTimeout))
	require.Equal(t, "Timeout fetching devices data", err.Error())

	require.GreaterOrEqual(t, elapsed, timeout)
	require.Less(t, elapsed, timeout+time.Second)
}

func TestCoordinatorRefreshTimeoutFetchIgnoresContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	fetch := func(_ context.Context, _ *testClient) (map[string]testDevice, error) {
		<-release
		return nil, nil
	}

	timeout := time.Millisecond * 100
	coordinator := NewCoordinator("devices", &testClient{}, fetch, Params{Timeout: timeout})

	start := time.Now()
	_, err := coordinator.Refresh(context.Background())
	require.True(t, errors.Is(err, status.StatusUpdateFailed))
	require.Less(t, time.Since(start), timeout+time.Second)
}

func TestCoordinatorRefreshKeepSnapshotOnFailure(t *testing.T) {
	first := map[string]testDevice{"dev1": {Name: "A"}}

	for _, tc := range []struct {
		name string
		res  testFetchResult
	}{
		{name: "classified", res: testFetchResult{err: NewClientError(errors.New("boom"))}},
		{name: "unclassified", res: testFetchResult{err: errors.New("boom")}},
		{name: "timeout", res: testFetchResult{block: true}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			fetcher := &testFetcher{}
			fetcher.push(testFetchResult{data: first})
			fetcher.push(tc.res)

			coordinator := newTestCoordinator(fetcher, Params{Timeout: time.Millisecond * 100})

			_, err := coordinator.Refresh(context.Background())
			require.Nil(t, err)

			_, err = coordinator.Refresh(context.Background())
			require.Error(t, err)

			snapshot, ok := coordinator.Snapshot()
			require.True(t, ok)
			require.Equal(t, first, snapshot.Map())

			st := coordinator.Status()
			require.False(t, st.LastUpdateSuccess)
			require.Equal(t, 1, st.ConsecutiveFailures)
			require.Equal(t, err, st.LastError)
			require.Equal(t, 1, st.Entries)
		})
	}
}

func TestCoordinatorRefreshReplaceSnapshot(t *testing.T) {
	first := map[string]testDevice{"dev1": {Name: "A"}, "dev2": {Name: "B"}}
	second := map[string]testDevice{"dev3": {Name: "C"}}

	fetcher := &testFetcher{}
	fetcher.push(testFetchResult{data: first})
	fetcher.push(testFetchResult{data: second})

	coordinator := newTestCoordinator(fetcher, Params{})

	snapshot, err := coordinator.Refresh(context.Background())
	require.Nil(t, err)
	require.Equal(t, first, snapshot.Map())

	snapshot, err = coordinator.Refresh(context.Background())
	require.Nil(t, err)
	require.Equal(t, second, snapshot.Map())

	cached, ok := coordinator.Snapshot()
	require.True(t, ok)
	require.Same(t, snapshot, cached)

	_, ok = cached.Get("dev1")
	require.False(t, ok)
}

func TestCoordinatorRefreshSnapshotIsolatedFromFetcher(t *testing.T) {
	data := map[string]testDevice{"dev1": {Name: "A"}}

	fetcher := &testFetcher{}
	fetcher.push(testFetchResult{data: data})

	coordinator := newTestCoordinator(fetcher, Params{})

	snapshot, err := coordinator.Refresh(context.Background())
	require.Nil(t, err)

	data["dev2"] = testDevice{Name: "B"}
	require.Equal(t, 1, snapshot.Len())

	copied := snapshot.Map()
	copied["dev3"] = testDevice{Name: "C"}
	require.Equal(t, 1, snapshot.Len())
}

func TestCoordinatorRefreshNilData(t *testing.T) {
	fetcher := &testFetcher{}
	fetcher.push(testFetchResult{data: nil})

	coordinator := newTestCoordinator(fetcher, Params{})

	snapshot, err := coordinator.Refresh(context.Background())
	require.Nil(t, err)
	require.Equal(t, 0, snapshot.Len())
	require.NotNil(t, snapshot.Map())
}

func TestCoordinatorRefreshUnclassifiedErrorPassthrough(t *testing.T) {
	defect := errors.New("nil pointer in parser")

	fetcher := &testFetcher{}
	fetcher.push(testFetchResult{err: defect})

	coordinator := newTestCoordinator(fetcher, Params{})

	_, err := coordinator.Refresh(context.Background())
	require.Equal(t, defect, err)
	require.False(t, errors.Is(err, status.StatusUpdateFailed))
}

func TestCoordinatorRefreshClassifiedError(t *testing.T) {
	cause := errors.New("api returned 503")

	fetcher := &testFetcher{}
	fetcher.push(testFetchResult{err: NewClientError(cause)})

	coordinator := newTestCoordinator(fetcher, Params{})

	_, err := coordinator.Refresh(context.Background())
	require.Equal(t, "Error communicating with API: api returned 503", err.Error())
	require.True(t, errors.Is(err, status.StatusUpdateFailed))
	require.True(t, errors.Is(err, status.StatusClientError))
	require.True(t, errors.Is(err, cause))
}

func TestCoordinatorRefreshWrappedStatusClientError(t *testing.T) {
	fetcher := &testFetcher{}
	fetcher.push(testFetchResult{
		err: errors.Join(errors.New("connection reset"), status.StatusClientError),
	})

	coordinator := newTestCoordinator(fetcher, Params{})

	_, err := coordinator.Refresh(context.Background())
	require.True(t, errors.Is(err, status.StatusUpdateFailed))
}

func TestCoordinatorRefreshCustomClassifier(t *testing.T) {
	transient := errors.New("rate limited")

	fetcher := &testFetcher{}
	fetcher.push(testFetchResult{err: transient})
	fetcher.push(testFetchResult{err: NewClientError(errors.New("refused"))})

	coordinator := newTestCoordinator(fetcher, Params{
		Classifier: func(err error) bool {
			return errors.Is(err, transient)
		},
	})

	_, err := coordinator.Refresh(context.Background())
	require.Equal(t, "Error communicating with API: rate limited", err.Error())

	_, err = coordinator.Refresh(context.Background())
	require.False(t, errors.Is(err, status.StatusUpdateFailed))
}

func TestCoordinatorRefreshParentContextCancelled(t *testing.T) {
	fetcher := &testFetcher{}
	fetcher.push(testFetchResult{block: true})

	coordinator := newTestCoordinator(fetcher, Params{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(time.Millisecond * 50)
		cancel()
	}()

	_, err := coordinator.Refresh(ctx)
	require.Equal(t, context.Canceled, err)

	st := coordinator.Status()
	require.Equal(t, 0, st.ConsecutiveFailures)
	require.Nil(t, st.LastError)
}

func TestCoordinatorRefreshNotifySubscribers(t *testing.T) {
	fetcher := &testFetcher{}
	fetcher.push(testFetchResult{data: map[string]testDevice{"dev1": {Name: "A"}}})
	fetcher.push(testFetchResult{err: NewClientError(errors.New("refused"))})
	fetcher.push(testFetchResult{data: map[string]testDevice{"dev2": {Name: "B"}}})

	coordinator := newTestCoordinator(fetcher, Params{})

	foo := &testHandler{}
	bar := &testHandler{}
	coordinator.Subscribe(foo)
	coordinator.Subscribe(bar)

	_, err := coordinator.Refresh(context.Background())
	require.Nil(t, err)
	require.Equal(t, 1, foo.count())
	require.Equal(t, 1, bar.count())

	_, err = coordinator.Refresh(context.Background())
	require.Error(t, err)
	require.Equal(t, 1, foo.count())
	require.Equal(t, 1, bar.count())

	_, err = coordinator.Refresh(context.Background())
	require.Nil(t, err)
	require.Equal(t, 2, foo.count())
	require.Equal(t, 2, bar.count())
	require.Equal(t, map[string]testDevice{"dev2": {Name: "B"}}, foo.last())
	require.Equal(t, map[string]testDevice{"dev2": {Name: "B"}}, bar.last())
}

func TestCoordinatorUnsubscribe(t *testing.T) {
	fetcher := &testFetcher{}
	fetcher.push(testFetchResult{data: map[string]testDevice{"dev1": {Name: "A"}}})
	fetcher.push(testFetchResult{data: map[string]testDevice{"dev1": {Name: "A"}}})

	coordinator := newTestCoordinator(fetcher, Params{})

	foo := &testHandler{}
	unsubscribe := coordinator.Subscribe(foo)

	calls := 0
	coordinator.Subscribe(HandlerFunc[string, testDevice](func(_ *Snapshot[string, testDevice]) {
		calls++
	}))

	_, err := coordinator.Refresh(context.Background())
	require.Nil(t, err)

	unsubscribe()
	unsubscribe()

	_, err = coordinator.Refresh(context.Background())
	require.Nil(t, err)
	require.Equal(t, 1, foo.count())
	require.Equal(t, 2, calls)
}

func TestCoordinatorLateSubscriberGetsSnapshot(t *testing.T) {
	data := map[string]testDevice{"dev1": {Name: "A"}}

	fetcher := &testFetcher{}
	fetcher.push(testFetchResult{data: data})

	coordinator := newTestCoordinator(fetcher, Params{})

	_, err := coordinator.Refresh(context.Background())
	require.Nil(t, err)

	handler := &testHandler{}
	coordinator.Subscribe(handler)

	snapshot, ok := coordinator.Snapshot()
	require.True(t, ok)
	require.Equal(t, data, snapshot.Map())
	require.Equal(t, 1, fetcher.getCallCount())
	require.Equal(t, 0, handler.count())
}

func TestCoordinatorAttach(t *testing.T) {
	scheduler := &testScheduler{awakener: &testAwakener{}}

	coordinator := newTestCoordinator(&testFetcher{}, Params{Interval: time.Minute})
	coordinator.Attach(scheduler, syssched.AsyncTaskRunnerParams{})

	require.Equal(t, "devices", scheduler.name)
	require.Equal(t, time.Minute, scheduler.params.UpdateInterval)
	require.Equal(t, 0, scheduler.awakener.getCallCount())

	task, ok := scheduler.task.(*Coordinator[*testClient, string, testDevice])
	require.True(t, ok)
	require.Same(t, coordinator, task)
}

func TestCoordinatorFirstSubscriberAwakesScheduler(t *testing.T) {
	scheduler := &testScheduler{awakener: &testAwakener{}}

	coordinator := newTestCoordinator(&testFetcher{}, Params{})
	coordinator.Attach(scheduler, syssched.AsyncTaskRunnerParams{})

	unsubscribe := coordinator.Subscribe(&testHandler{})
	require.Equal(t, 1, scheduler.awakener.getCallCount())

	coordinator.Subscribe(&testHandler{})
	require.Equal(t, 1, scheduler.awakener.getCallCount())

	unsubscribe()
	require.Equal(t, 1, scheduler.awakener.getCallCount())
}

func TestCoordinatorAttachAfterSubscribe(t *testing.T) {
	scheduler := &testScheduler{awakener: &testAwakener{}}

	coordinator := newTestCoordinator(&testFetcher{}, Params{})
	coordinator.Subscribe(&testHandler{})

	coordinator.Attach(scheduler, syssched.AsyncTaskRunnerParams{})
	require.Equal(t, 1, scheduler.awakener.getCallCount())
}

func TestCoordinatorRequestRefresh(t *testing.T) {
	coordinator := newTestCoordinator(&testFetcher{}, Params{})
	require.Equal(t, status.StatusInvalidState, coordinator.RequestRefresh())

	scheduler := &testScheduler{awakener: &testAwakener{}}
	coordinator.Attach(scheduler, syssched.AsyncTaskRunnerParams{})

	require.Nil(t, coordinator.RequestRefresh())
	require.Equal(t, 1, scheduler.awakener.getCallCount())
}

func TestCoordinatorScheduledRefresh(t *testing.T) {
	fetcher := &testFetcher{}
	for i := 0; i < 100; i++ {
		fetcher.push(testFetchResult{data: map[string]testDevice{"dev1": {Name: "A"}}})
	}

	coordinator := newTestCoordinator(fetcher, Params{Interval: time.Hour})

	scheduler := syssched.NewTaskScheduler(context.Background())
	coordinator.Attach(scheduler, syssched.AsyncTaskRunnerParams{})
	require.Nil(t, scheduler.Start())
	defer func() {
		require.Nil(t, scheduler.Stop())
	}()

	time.Sleep(time.Millisecond * 100)
	require.Equal(t, 0, fetcher.getCallCount())

	handler := &testHandler{}
	coordinator.Subscribe(handler)

	require.Eventually(t, func() bool {
		return handler.count() == 1
	}, time.Second*5, time.Millisecond*10)
	require.Equal(t, 1, fetcher.getCallCount())
}

func TestCoordinatorSetData(t *testing.T) {
	fetcher := &testFetcher{}
	fetcher.push(testFetchResult{err: NewClientError(errors.New("refused"))})

	coordinator := newTestCoordinator(fetcher, Params{})

	handler := &testHandler{}
	coordinator.Subscribe(handler)

	_, err := coordinator.Refresh(context.Background())
	require.Error(t, err)
	require.Equal(t, 1, coordinator.Status().ConsecutiveFailures)

	data := map[string]testDevice{"dev1": {Name: "A"}}
	coordinator.SetData(data)

	snapshot, ok := coordinator.Snapshot()
	require.True(t, ok)
	require.Equal(t, data, snapshot.Map())
	require.Equal(t, 1, handler.count())

	st := coordinator.Status()
	require.True(t, st.LastUpdateSuccess)
	require.Equal(t, 0, st.ConsecutiveFailures)
	require.Nil(t, st.LastError)
}

func TestCoordinatorStatusConsecutiveFailures(t *testing.T) {
	fetcher := &testFetcher{}
	fetcher.push(testFetchResult{err: NewClientError(errors.New("refused"))})
	fetcher.push(testFetchResult{err: NewClientError(errors.New("refused"))})
	fetcher.push(testFetchResult{data: map[string]testDevice{"dev1": {Name: "A"}}})

	observer := &testObserver{}
	coordinator := newTestCoordinator(fetcher, Params{Observer: observer})

	_, _ = coordinator.Refresh(context.Background())
	_, _ = coordinator.Refresh(context.Background())
	require.Equal(t, 2, coordinator.Status().ConsecutiveFailures)

	_, err := coordinator.Refresh(context.Background())
	require.Nil(t, err)

	st := coordinator.Status()
	require.Equal(t, 0, st.ConsecutiveFailures)
	require.True(t, st.LastUpdateSuccess)
	require.False(t, st.LastSuccessAt.IsZero())

	require.Equal(t, []int{0, 0, 1}, observer.entries)
	require.Error(t, observer.errs[0])
	require.Error(t, observer.errs[1])
	require.Nil(t, observer.errs[2])
}

func TestCoordinatorRefreshSerialized(t *testing.T) {
	var (
		mu      sync.Mutex
		running int
		overlap bool
	)

	fetch := func(_ context.Context, _ *testClient) (map[string]testDevice, error) {
		mu.Lock()
		running++
		if running > 1 {
			overlap = true
		}
		mu.Unlock()

		time.Sleep(time.Millisecond * 20)

		mu.Lock()
		running--
		mu.Unlock()

		return map[string]testDevice{}, nil
	}

	coordinator := NewCoordinator("devices", &testClient{}, fetch, Params{})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := coordinator.Refresh(context.Background())
			require.Nil(t, err)
		}()
	}
	wg.Wait()

	require.False(t, overlap)
}

func TestCoordinatorExampleScenario(t *testing.T) {
	first := map[string]testDevice{"dev1": {Name: "A"}}
	third := map[string]testDevice{"dev1": {Name: "A"}, "dev2": {Name: "B"}}

	fetcher := &testFetcher{}
	fetcher.push(testFetchResult{data: first})
	fetcher.push(testFetchResult{err: NewClientError(errors.New("connection refused"))})
	fetcher.push(testFetchResult{data: third})

	coordinator := newTestCoordinator(fetcher, Params{})

	_, err := coordinator.Refresh(context.Background())
	require.Nil(t, err)

	snapshot, ok := coordinator.Snapshot()
	require.True(t, ok)
	require.True(t, maps.Equal(first, snapshot.Map()))

	_, err = coordinator.Refresh(context.Background())
	require.EqualError(t, err, "Error communicating with API: connection refused")

	snapshot, ok = coordinator.Snapshot()
	require.True(t, ok)
	require.True(t, maps.Equal(first, snapshot.Map()))

	_, err = coordinator.Refresh(context.Background())
	require.Nil(t, err)

	snapshot, ok = coordinator.Snapshot()
	require.True(t, ok)
	require.True(t, maps.Equal(third, snapshot.Map()))
}

type testClock struct {
	mu  sync.Mutex
	now int64
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now++

	return time.Unix(c.now, 0)
}

func TestCoordinatorRestore(t *testing.T) {
	fetcher := &testFetcher{}
	fetcher.push(testFetchResult{err: NewClientError(errors.New("refused"))})

	observer := &testObserver{}
	coordinator := newTestCoordinator(fetcher, Params{Observer: observer})

	handler := &testHandler{}
	coordinator.Subscribe(handler)

	fetchedAt := time.Now().Add(-time.Hour * 48)
	data := map[string]testDevice{"dev1": {Name: "A"}}

	require.True(t, coordinator.Restore(data, fetchedAt))

	snapshot, ok := coordinator.Snapshot()
	require.True(t, ok)
	require.Equal(t, data, snapshot.Map())
	require.True(t, fetchedAt.Equal(snapshot.FetchedAt()))

	st := coordinator.Status()
	require.False(t, st.LastUpdateSuccess)
	require.True(t, st.LastSuccessAt.IsZero())
	require.Equal(t, 0, st.ConsecutiveFailures)
	require.Equal(t, 1, st.Entries)

	require.Equal(t, 0, handler.count())
	require.Empty(t, observer.entries)
	require.Equal(t, 0, fetcher.getCallCount())

	// A failed refresh keeps the restored snapshot.
	_, err := coordinator.Refresh(context.Background())
	require.Error(t, err)

	snapshot, ok = coordinator.Snapshot()
	require.True(t, ok)
	require.True(t, fetchedAt.Equal(snapshot.FetchedAt()))
	require.Equal(t, 1, coordinator.Status().ConsecutiveFailures)
}

func TestCoordinatorRestoreIgnoredAfterFetch(t *testing.T) {
	fetcher := &testFetcher{}
	fetcher.push(testFetchResult{data: map[string]testDevice{"dev2": {Name: "B"}}})

	coordinator := newTestCoordinator(fetcher, Params{})

	_, err := coordinator.Refresh(context.Background())
	require.NoError(t, err)

	require.False(t, coordinator.Restore(map[string]testDevice{"dev1": {Name: "A"}},
		time.Now().Add(-time.Hour)))

	snapshot, ok := coordinator.Snapshot()
	require.True(t, ok)
	require.Equal(t, map[string]testDevice{"dev2": {Name: "B"}}, snapshot.Map())
	require.True(t, coordinator.Status().LastUpdateSuccess)
}

func TestCoordinatorRefreshCallerDeadline(t *testing.T) {
	fetcher := &testFetcher{}
	fetcher.push(testFetchResult{block: true})

	coordinator := newTestCoordinator(fetcher, Params{})

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond*50)
	defer cancel()

	_, err := coordinator.Refresh(ctx)
	require.Equal(t, context.DeadlineExceeded, err)
	require.False(t, errors.Is(err, status.StatusUpdateFailed))

	st := coordinator.Status()
	require.Equal(t, 0, st.ConsecutiveFailures)
	require.Nil(t, st.LastError)
}

func TestCoordinatorHandlerRequestsRefresh(t *testing.T) {
	fetcher := &testFetcher{}
	fetcher.push(testFetchResult{data: map[string]testDevice{"dev1": {Name: "A"}}})

	coordinator := newTestCoordinator(fetcher, Params{})

	scheduler := &testScheduler{awakener: &testAwakener{}}
	coordinator.Attach(scheduler, syssched.AsyncTaskRunnerParams{})

	var (
		mu          sync.Mutex
		refreshErrs []error
		statuses    []Status
	)

	coordinator.Subscribe(HandlerFunc[string, testDevice](
		func(_ *Snapshot[string, testDevice]) {
			err := coordinator.RequestRefresh()
			st := coordinator.Status()

			mu.Lock()
			defer mu.Unlock()

			refreshErrs = append(refreshErrs, err)
			statuses = append(statuses, st)
		}))

	errCh := make(chan error, 1)

	go func() {
		_, err := coordinator.Refresh(context.Background())
		errCh <- err
	}()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(time.Second * 5):
		t.Fatal("refresh didn't complete")
	}

	mu.Lock()
	defer mu.Unlock()

	require.Equal(t, []error{nil}, refreshErrs)
	require.True(t, statuses[0].LastUpdateSuccess)
	require.Equal(t, 1, statuses[0].Entries)

	// Awakened by the first Subscribe and by the handler.
	require.Equal(t, 2, scheduler.awakener.getCallCount())
}

func TestCoordinatorStatusConsistentWithSnapshot(t *testing.T) {
	var calls int

	coordinator := NewCoordinator("devices", &testClient{},
		func(_ context.Context, _ *testClient) (map[string]testDevice, error) {
			calls++

			data := make(map[string]testDevice, calls)
			for i := 0; i < calls; i++ {
				data[strconv.Itoa(i)] = testDevice{}
			}

			return data, nil
		},
		Params{Clock: &testClock{}})

	errCh := make(chan error, 1)

	go func() {
		for i := 0; i < 200; i++ {
			if _, err := coordinator.Refresh(context.Background()); err != nil {
				errCh <- err
				return
			}
		}

		errCh <- nil
	}()

	for {
		select {
		case err := <-errCh:
			require.NoError(t, err)
			return
		default:
		}

		st := coordinator.Status()
		if st.Entries == 0 {
			require.False(t, st.LastUpdateSuccess)
			continue
		}

		// Refresh #k reads the clock twice, the snapshot is stamped with the second read.
		require.True(t, st.LastUpdateSuccess)
		require.Equal(t, int64(2*st.Entries), st.LastSuccessAt.Unix())
	}
}
