package pipomada

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.etcd.io/bbolt"

	"github.com/open-control-systems/device-poller/components/core"
	"github.com/open-control-systems/device-poller/components/device"
	"github.com/open-control-systems/device-poller/components/device/devapi"
	"github.com/open-control-systems/device-poller/components/http/htclient"
	"github.com/open-control-systems/device-poller/components/http/htcore"
	"github.com/open-control-systems/device-poller/components/poll"
	"github.com/open-control-systems/device-poller/components/storage/stcore"
	"github.com/open-control-systems/device-poller/components/storage/stinfluxdb"
	"github.com/open-control-systems/device-poller/components/system/sysnet"
	"github.com/open-control-systems/device-poller/components/system/syssched"
)

// Names of the coordinators created by the pipeline.
const (
	DevicesName  = "devices"
	ClientsName  = "clients"
	FirmwareName = "firmware"
)

// DefaultFirmwareInterval - how often the firmware state is refreshed by default.
const DefaultFirmwareInterval = time.Hour * 6

// Params provides various configuration options for Pipeline.
type Params struct {
	// APIURL - controller API base URL.
	APIURL string

	// Interval - how often devices and clients are refreshed.
	Interval time.Duration

	// FirmwareInterval - how often the firmware state is refreshed.
	FirmwareInterval time.Duration

	// FetchTimeout - how long a single fetch may take, zero means poll.DefaultTimeout.
	FetchTimeout time.Duration

	// MdnsBrowseInterval - how often to browse for the .local controller.
	MdnsBrowseInterval time.Duration

	// NewBackoff creates the failure backoff for each coordinator, can be nil.
	NewBackoff func(interval time.Duration) backoff.BackOff

	// DB to mirror snapshots to, can be nil.
	DB *bbolt.DB

	// InfluxDB - influxDB connection, ignored if not configured.
	InfluxDB stinfluxdb.DBParams

	// Observer is notified about each refresh, can be nil.
	Observer poll.Observer
}

// Pipeline polls a single device-management controller.
type Pipeline struct {
	ctx       context.Context
	params    Params
	scheduler *syssched.TaskScheduler
	registry  *htcore.CoordinatorRegistry
	writer    stinfluxdb.PointWriter

	devices  *poll.Coordinator[*devapi.Client, string, device.Device]
	clients  *poll.Coordinator[*devapi.Client, string, device.ConnectedClient]
	firmware *poll.Coordinator[*devapi.Client, string, device.FirmwareUpdate]
}

// NewPipeline initializes all components to poll the controller.
//
// Parameters:
//   - ctx - parent context.
//   - closer - to register all resources that should be closed.
//   - mux - to register HTTP endpoints.
//   - params - various pipeline parameters.
func NewPipeline(
	ctx context.Context,
	closer *core.FanoutCloser,
	mux *http.ServeMux,
	params Params,
) (*Pipeline, error) {
	if params.FirmwareInterval <= 0 {
		params.FirmwareInterval = DefaultFirmwareInterval
	}
	if params.MdnsBrowseInterval <= 0 {
		params.MdnsBrowseInterval = time.Second * 30
	}

	apiURL, err := url.Parse(params.APIURL)
	if err != nil || apiURL.Host == "" {
		return nil, fmt.Errorf("pipomada: invalid API URL: url=%s", params.APIURL)
	}

	p := &Pipeline{
		ctx:       ctx,
		params:    params,
		scheduler: syssched.NewTaskScheduler(ctx),
		registry:  htcore.NewCoordinatorRegistry(),
	}

	httpClient, err := p.makeHTTPClient(apiURL.Hostname())
	if err != nil {
		return nil, err
	}

	client := devapi.NewClient(httpClient, params.APIURL)

	if params.InfluxDB.Enabled() {
		p.writer = stinfluxdb.NewClient(closer, params.InfluxDB).Writer()
	}

	p.devices = poll.NewCoordinator(DevicesName, client, devapi.FetchDevices,
		p.coordinatorParams(params.Interval))
	p.clients = poll.NewCoordinator(ClientsName, client, devapi.FetchClients,
		p.coordinatorParams(params.Interval))
	p.firmware = poll.NewCoordinator(FirmwareName, client, devapi.FetchFirmwareUpdates,
		p.coordinatorParams(params.FirmwareInterval))

	if err := setupCoordinator(p, p.devices, device.Device.Fields); err != nil {
		return nil, err
	}
	if err := setupCoordinator(p, p.clients, device.ConnectedClient.Fields); err != nil {
		return nil, err
	}
	if err := setupCoordinator(p, p.firmware, device.FirmwareUpdate.Fields); err != nil {
		return nil, err
	}

	htcore.NewCoordinatorHandler(p.registry).Register(mux)

	return p, nil
}

// Start starts polling the controller.
func (p *Pipeline) Start() error {
	core.LogInf.Printf("pipomada: starting: url=%s interval=%s firmware_interval=%s\n",
		p.params.APIURL, p.devices.Interval(), p.firmware.Interval())

	return p.scheduler.Start()
}

// Stop stops polling and waits until all in-flight refreshes are finished.
func (p *Pipeline) Stop() error {
	core.LogInf.Println("pipomada: stopping")

	return p.scheduler.Stop()
}

// Registry returns coordinators exposed over HTTP.
func (p *Pipeline) Registry() *htcore.CoordinatorRegistry {
	return p.registry
}

// Devices returns the coordinator of the adopted devices.
func (p *Pipeline) Devices() *poll.Coordinator[*devapi.Client, string, device.Device] {
	return p.devices
}

// Clients returns the coordinator of the connected clients.
func (p *Pipeline) Clients() *poll.Coordinator[*devapi.Client, string, device.ConnectedClient] {
	return p.clients
}

// Firmware returns the coordinator of the firmware state.
func (p *Pipeline) Firmware() *poll.Coordinator[*devapi.Client, string, device.FirmwareUpdate] {
	return p.firmware
}

func (p *Pipeline) coordinatorParams(interval time.Duration) poll.Params {
	return poll.Params{
		Interval: interval,
		Timeout:  p.params.FetchTimeout,
		Observer: p.params.Observer,
	}
}

func (p *Pipeline) makeHTTPClient(host string) (*htclient.HTTPClient, error) {
	if !sysnet.IsLocalHost(host) {
		return htclient.NewDefaultClient(), nil
	}

	store := sysnet.NewResolveStore()
	store.Add(host)

	browser, err := sysnet.NewZeroconfMdnsBrowser(store, sysnet.ZeroconfMdnsBrowserParams{
		Service: sysnet.MdnsServiceName(sysnet.MdnsServiceTypeHTTP, sysnet.MdnsProtoTCP),
		Domain:  "local",
		Timeout: min(p.params.MdnsBrowseInterval, time.Second*10),
	})
	if err != nil {
		return nil, fmt.Errorf("pipomada: failed to create mDNS browser: %w", err)
	}

	p.scheduler.Schedule("mdns-browser", browser, syssched.AsyncTaskRunnerParams{
		UpdateInterval: p.params.MdnsBrowseInterval,
		RunOnStart:     true,
	})

	core.LogInf.Printf("pipomada: resolving controller over mDNS: host=%s\n", host)

	return htclient.NewResolveClient(store), nil
}

func setupCoordinator[V any](
	p *Pipeline,
	coordinator *poll.Coordinator[*devapi.Client, string, V],
	fields stinfluxdb.FieldsFunc[V],
) error {
	name := coordinator.Name()

	var (
		db   stcore.DB = &stcore.NoopDB{}
		meta stcore.DB = &stcore.NoopDB{}
	)
	if p.params.DB != nil {
		db = stcore.NewBboltDBBucket(p.params.DB, name)
		meta = stcore.NewBboltDBBucket(p.params.DB, metaBucketName(name))
	}

	mirror := stcore.NewSnapshotWriter[V](name, db, meta)

	restored, fetchedAt, err := mirror.Load()
	if err != nil {
		return fmt.Errorf("pipomada: failed to restore snapshot: name=%s: %w", name, err)
	}

	switch {
	case fetchedAt.IsZero():
		if len(restored) > 0 {
			core.LogWrn.Printf("pipomada: snapshot without fetch time ignored: name=%s\n", name)
		}

	case coordinator.Restore(restored, fetchedAt):
		core.LogInf.Printf("pipomada: snapshot restored: name=%s entries=%d fetched_at=%s\n",
			name, len(restored), fetchedAt.Format(time.RFC3339))
	}

	coordinator.Subscribe(mirror)

	if p.writer != nil {
		coordinator.Subscribe(stinfluxdb.NewSnapshotHandler(p.ctx, name, p.writer, fields))
	}

	p.registry.Add(htcore.NewCoordinatorView(coordinator))

	runnerParams := syssched.AsyncTaskRunnerParams{}
	if p.params.NewBackoff != nil {
		runnerParams.Backoff = p.params.NewBackoff(coordinator.Interval())
	}

	coordinator.Attach(p.scheduler, runnerParams)

	return nil
}

func metaBucketName(name string) string {
	return name + ".meta"
}
