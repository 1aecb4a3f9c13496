package stinfluxdb

import (
	"context"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/open-control-systems/device-poller/components/core"
	"github.com/open-control-systems/device-poller/components/poll"
)

// FieldsFunc converts a snapshot entry to influxDB fields.
type FieldsFunc[V any] func(value V) map[string]any

// SnapshotHandler stores every received snapshot in influxDB, one point per entry.
//
// Remarks:
//   - Measurement is the coordinator name, the entry key is stored in the "key" tag.
//   - All points of a snapshot share the snapshot fetch time.
type SnapshotHandler[V any] struct {
	ctx    context.Context
	name   string
	writer PointWriter
	fields FieldsFunc[V]
}

// NewSnapshotHandler is an initialization of SnapshotHandler.
//
// Parameters:
//   - ctx - parent context, bounds each write.
//   - name - coordinator name, used as the measurement.
//   - writer - to write points to the DB.
//   - fields - to convert entries to point fields.
func NewSnapshotHandler[V any](
	ctx context.Context,
	name string,
	writer PointWriter,
	fields FieldsFunc[V],
) *SnapshotHandler[V] {
	return &SnapshotHandler[V]{
		ctx:    ctx,
		name:   name,
		writer: writer,
		fields: fields,
	}
}

// HandleSnapshot writes the snapshot to the DB, errors are logged.
func (h *SnapshotHandler[V]) HandleSnapshot(snapshot *poll.Snapshot[string, V]) {
	if err := h.Write(snapshot); err != nil {
		core.LogErr.Printf("influxdb-snapshot-handler: %v\n", err)
	}
}

// Write writes the snapshot to the DB.
func (h *SnapshotHandler[V]) Write(snapshot *poll.Snapshot[string, V]) error {
	points := make([]*write.Point, 0, snapshot.Len())

	snapshot.Range(func(key string, value V) bool {
		fields := h.fields(value)
		if len(fields) == 0 {
			return true
		}

		points = append(points, influxdb2.NewPoint(
			h.name,
			map[string]string{"key": key},
			fields,
			snapshot.FetchedAt(),
		))

		return true
	})

	if len(points) == 0 {
		return nil
	}

	if err := h.writer.WritePoint(h.ctx, points...); err != nil {
		return fmt.Errorf("failed to write to DB: name=%s points=%d: %w",
			h.name, len(points), err)
	}

	return nil
}
