package htcore

import (
	"sort"
	"sync"
	"time"

	"github.com/open-control-systems/device-poller/components/poll"
)

// SnapshotView is a JSON representation of a coordinator snapshot.
type SnapshotView struct {
	Name      string    `json:"name"`
	FetchedAt time.Time `json:"fetched_at"`
	Entries   any       `json:"entries"`
}

// StatusView is a JSON representation of poll.Status.
type StatusView struct {
	Name                string     `json:"name"`
	Interval            string     `json:"interval"`
	LastUpdateSuccess   bool       `json:"last_update_success"`
	LastError           string     `json:"last_error,omitempty"`
	LastSuccessAt       *time.Time `json:"last_success_at,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	Entries             int        `json:"entries"`
}

// NewStatusView converts coordinator status to its JSON representation.
func NewStatusView(st poll.Status) StatusView {
	view := StatusView{
		Name:                st.Name,
		Interval:            st.Interval.String(),
		LastUpdateSuccess:   st.LastUpdateSuccess,
		ConsecutiveFailures: st.ConsecutiveFailures,
		Entries:             st.Entries,
	}

	if st.LastError != nil {
		view.LastError = st.LastError.Error()
	}

	if !st.LastSuccessAt.IsZero() {
		lastSuccessAt := st.LastSuccessAt
		view.LastSuccessAt = &lastSuccessAt
	}

	return view
}

// CoordinatorView is a type-erased view over a polling coordinator.
type CoordinatorView interface {
	// Name returns the coordinator name.
	Name() string

	// Status returns the coordinator health.
	Status() poll.Status

	// Snapshot returns the current snapshot, false if nothing was fetched yet.
	Snapshot() (SnapshotView, bool)

	// RequestRefresh requests an out of schedule refresh.
	RequestRefresh() error
}

// NewCoordinatorView wraps the coordinator with string keys.
func NewCoordinatorView[C any, V any](coordinator *poll.Coordinator[C, string, V]) CoordinatorView {
	return &coordinatorView[C, V]{coordinator: coordinator}
}

type coordinatorView[C any, V any] struct {
	coordinator *poll.Coordinator[C, string, V]
}

func (v *coordinatorView[C, V]) Name() string {
	return v.coordinator.Name()
}

func (v *coordinatorView[C, V]) Status() poll.Status {
	return v.coordinator.Status()
}

func (v *coordinatorView[C, V]) Snapshot() (SnapshotView, bool) {
	snapshot, ok := v.coordinator.Snapshot()
	if !ok {
		return SnapshotView{}, false
	}

	return SnapshotView{
		Name:      v.coordinator.Name(),
		FetchedAt: snapshot.FetchedAt(),
		Entries:   snapshot.Map(),
	}, true
}

func (v *coordinatorView[C, V]) RequestRefresh() error {
	return v.coordinator.RequestRefresh()
}

// CoordinatorRegistry holds coordinators exposed over HTTP.
type CoordinatorRegistry struct {
	mu           sync.RWMutex
	coordinators map[string]CoordinatorView
}

// NewCoordinatorRegistry is an initialization of CoordinatorRegistry.
func NewCoordinatorRegistry() *CoordinatorRegistry {
	return &CoordinatorRegistry{
		coordinators: make(map[string]CoordinatorView),
	}
}

// Add registers the coordinator, a coordinator with the same name is replaced.
func (r *CoordinatorRegistry) Add(view CoordinatorView) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.coordinators[view.Name()] = view
}

// Get returns the coordinator by name.
func (r *CoordinatorRegistry) Get(name string) (CoordinatorView, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	view, ok := r.coordinators[name]

	return view, ok
}

// List returns all coordinators sorted by name.
func (r *CoordinatorRegistry) List() []CoordinatorView {
	r.mu.RLock()
	defer r.mu.RUnlock()

	views := make([]CoordinatorView, 0, len(r.coordinators))
	for _, view := range r.coordinators {
		views = append(views, view)
	}

	sort.Slice(views, func(i, j int) bool {
		return views[i].Name() < views[j].Name()
	})

	return views
}
