package poll

import "time"

// Handler is notified about each new snapshot.
type Handler[K comparable, V any] interface {
	// HandleSnapshot handles the snapshot received by the coordinator.
	//
	// Remarks:
	//   - Called from the refreshing goroutine, should not block for long.
	//   - Called while the coordinator refresh lock is held: calling Refresh, SetData
	//     or Restore of the same coordinator from the handler deadlocks. Use
	//     RequestRefresh to ask for another refresh.
	HandleSnapshot(snapshot *Snapshot[K, V])
}

// HandlerFunc is a function type that implements the Handler interface.
type HandlerFunc[K comparable, V any] func(snapshot *Snapshot[K, V])

// HandleSnapshot calls the function itself to fulfill the Handler interface.
func (f HandlerFunc[K, V]) HandleSnapshot(snapshot *Snapshot[K, V]) {
	f(snapshot)
}

// Observer observes the outcome of each refresh.
type Observer interface {
	// ObserveRefresh is called once per refresh.
	//
	// Parameters:
	//   - name - coordinator name.
	//   - elapsed - how long the refresh took.
	//   - entries - number of entries in the new snapshot, 0 on failure.
	//   - err - refresh result.
	ObserveRefresh(name string, elapsed time.Duration, entries int, err error)
}
