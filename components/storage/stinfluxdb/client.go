package stinfluxdb

import (
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/open-control-systems/device-poller/components/core"
)

// Client owns the connection to influxDB.
//
// References:
//   - https://docs.influxdata.com/influxdb/cloud/get-started
//   - https://docs.influxdata.com/influxdb/cloud/api-guide/client-libraries/go/
type Client struct {
	params   DBParams
	dbClient influxdb2.Client
}

// NewClient initializes influxDB client.
//
// Parameters:
//   - closer - to register the client for the underlying resource deallocation.
//   - params - various influxDB configuration parameters.
func NewClient(closer *core.FanoutCloser, params DBParams) *Client {
	client := &Client{
		params:   params,
		dbClient: influxdb2.NewClient(params.URL, params.Token),
	}

	closer.Add("influxdb-client", client)

	return client
}

// Writer returns the blocking writer for the configured bucket.
func (c *Client) Writer() api.WriteAPIBlocking {
	return c.dbClient.WriteAPIBlocking(c.params.Org, c.params.Bucket)
}

// Close stops writing data to the DB.
func (c *Client) Close() error {
	c.dbClient.Close()

	return nil
}
