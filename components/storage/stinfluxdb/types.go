package stinfluxdb

import (
	"context"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// DBParams provides various configuration options for influxDB.
type DBParams struct {
	URL    string
	Org    string
	Token  string
	Bucket string
}

// Enabled returns true if the influxDB connection is configured.
func (p DBParams) Enabled() bool {
	return p.URL != "" && p.Bucket != ""
}

// PointWriter writes points to influxDB.
//
// Remarks:
//   - api.WriteAPIBlocking implements this interface.
type PointWriter interface {
	// WritePoint writes the points synchronously.
	WritePoint(ctx context.Context, point ...*write.Point) error
}
