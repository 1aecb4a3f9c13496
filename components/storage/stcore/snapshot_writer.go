package stcore

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/open-control-systems/device-poller/components/core"
	"github.com/open-control-systems/device-poller/components/poll"
	"github.com/open-control-systems/device-poller/components/status"
)

const fetchedAtKey = "fetched_at"

// SnapshotWriter mirrors every received snapshot into the database, one JSON blob per key.
type SnapshotWriter[V any] struct {
	mu   sync.Mutex
	name string
	db   DB
	meta DB
}

// NewSnapshotWriter is an initialization of SnapshotWriter.
//
// Parameters:
//   - name - coordinator name, used for logging.
//   - db - database to mirror snapshot entries to.
//   - meta - database to store when the snapshot was fetched, must differ from db.
func NewSnapshotWriter[V any](name string, db DB, meta DB) *SnapshotWriter[V] {
	return &SnapshotWriter[V]{
		name: name,
		db:   db,
		meta: meta,
	}
}

// HandleSnapshot stores the snapshot, the keys absent in it are removed.
//
// Remarks:
//   - Errors are logged, the coordinator isn't affected by storage failures.
func (w *SnapshotWriter[V]) HandleSnapshot(snapshot *poll.Snapshot[string, V]) {
	if err := w.Write(snapshot); err != nil {
		core.LogErr.Printf("stcore: failed to mirror snapshot: name=%s err=%v\n", w.name, err)
	}
}

// Write stores the snapshot.
func (w *SnapshotWriter[V]) Write(snapshot *poll.Snapshot[string, V]) error {
	blobs := make(map[string]Blob, snapshot.Len())

	var err error

	snapshot.Range(func(key string, value V) bool {
		var data []byte

		data, err = json.Marshal(value)
		if err != nil {
			err = fmt.Errorf("failed to encode entry: key=%s: %w", key, err)
			return false
		}

		blobs[key] = Blob{Data: data}

		return true
	})
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.db.Replace(blobs); err != nil {
		return err
	}

	fetchedAt := snapshot.FetchedAt().UTC().Format(time.RFC3339Nano)

	return w.meta.Write(fetchedAtKey, Blob{Data: []byte(fetchedAt)})
}

// Load reads the previously mirrored entries and when they were fetched.
//
// Remarks:
//   - The returned time is zero if it wasn't stored.
func (w *SnapshotWriter[V]) Load() (map[string]V, time.Time, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var fetchedAt time.Time

	blob, err := w.meta.Read(fetchedAtKey)
	if err != nil && !errors.Is(err, status.StatusNoData) {
		return nil, time.Time{}, err
	}
	if err == nil {
		fetchedAt, err = time.Parse(time.RFC3339Nano, string(blob.Data))
		if err != nil {
			return nil, time.Time{}, fmt.Errorf("failed to decode fetch time: %w", err)
		}
	}

	data := make(map[string]V)

	if err := w.db.ForEach(func(key string, blob Blob) error {
		var value V
		if err := json.Unmarshal(blob.Data, &value); err != nil {
			return fmt.Errorf("failed to decode entry: key=%s: %w", key, err)
		}

		data[key] = value

		return nil
	}); err != nil {
		return nil, time.Time{}, err
	}

	return data, fetchedAt, nil
}
