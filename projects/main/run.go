package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.etcd.io/bbolt"

	"github.com/open-control-systems/device-poller/components/core"
	"github.com/open-control-systems/device-poller/components/http/htcore"
	"github.com/open-control-systems/device-poller/components/metrics/mtprom"
	"github.com/open-control-systems/device-poller/components/pipeline/pipomada"
	"github.com/open-control-systems/device-poller/components/poll"
	"github.com/open-control-systems/device-poller/components/storage/stcore"
	"github.com/open-control-systems/device-poller/components/storage/stinfluxdb"
	"github.com/open-control-systems/device-poller/components/system/syssched"
)

type runOptions struct {
	apiURL             string
	interval           time.Duration
	firmwareInterval   time.Duration
	httpHost           string
	httpPort           int
	dbPath             string
	logPath            string
	logLevel           string
	influxDB           stinfluxdb.DBParams
	mdnsBrowseInterval time.Duration
	failureBackoff     bool
	failureBackoffMax  int
}

func newRunCommand() *cobra.Command {
	opts := runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Poll the controller and serve the collected data",
		RunE: func(_ *cobra.Command, _ []string) error {
			return run(opts)
		},
	}

	flags := cmd.Flags()

	flags.StringVar(&opts.apiURL, "api-url", os.Getenv("DEVICE_POLLER_API_URL"),
		"controller API base URL, e.g. http://omada.local:8088/api/v2")
	flags.DurationVar(&opts.interval, "interval", poll.DefaultInterval,
		"devices and clients refresh interval")
	flags.DurationVar(&opts.firmwareInterval, "firmware-interval",
		pipomada.DefaultFirmwareInterval, "firmware state refresh interval")
	flags.StringVar(&opts.httpHost, "http-host", os.Getenv("DEVICE_POLLER_HTTP_HOST"),
		"HTTP server host")
	flags.IntVar(&opts.httpPort, "http-port", envInt("DEVICE_POLLER_HTTP_PORT", 8081),
		"HTTP server port")
	flags.StringVar(&opts.dbPath, "db-path", os.Getenv("DEVICE_POLLER_DB_PATH"),
		"bbolt database path, snapshots aren't persisted if empty")
	flags.StringVar(&opts.logPath, "log-path", os.Getenv("DEVICE_POLLER_LOG_PATH"),
		"log file path, stderr if empty")
	flags.StringVar(&opts.logLevel, "log-level", envOr("DEVICE_POLLER_LOG_LEVEL", "info"),
		"log level: debug, info, warn, error")
	flags.StringVar(&opts.influxDB.URL, "influxdb-url", os.Getenv("INFLUXDB_URL"),
		"influxDB URL, influxDB isn't used if empty")
	flags.StringVar(&opts.influxDB.Org, "influxdb-org", os.Getenv("INFLUXDB_ORG"),
		"influxDB organization")
	flags.StringVar(&opts.influxDB.Bucket, "influxdb-bucket", os.Getenv("INFLUXDB_BUCKET"),
		"influxDB bucket")
	flags.StringVar(&opts.influxDB.Token, "influxdb-token", os.Getenv("INFLUXDB_API_TOKEN"),
		"influxDB API token")
	flags.DurationVar(&opts.mdnsBrowseInterval, "mdns-browse-interval", time.Second*30,
		"how often to browse for the .local controller")
	flags.BoolVar(&opts.failureBackoff, "failure-backoff", false,
		"stretch the refresh interval exponentially after failures")
	flags.IntVar(&opts.failureBackoffMax, "failure-backoff-max", 8,
		"maximum failure backoff as a multiple of the refresh interval")

	return cmd
}

func run(opts runOptions) error {
	if opts.logPath != "" {
		if err := core.SetLogFile(opts.logPath); err != nil {
			return fmt.Errorf("failed to setup log file: %w", err)
		}
	}
	defer func() {
		_ = core.Sync()
		_ = core.CloseLogFile()
	}()

	if err := core.SetLogLevel(opts.logLevel); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	if opts.apiURL == "" {
		return fmt.Errorf("--api-url or DEVICE_POLLER_API_URL is required")
	}

	appContext, cancelFunc := signal.NotifyContext(context.Background(),
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT)
	defer cancelFunc()

	closer := &core.FanoutCloser{}
	defer closer.Close()

	var db *bbolt.DB

	if opts.dbPath != "" {
		var err error

		db, err = stcore.NewBboltDB(opts.dbPath, &bbolt.Options{Timeout: time.Second * 5})
		if err != nil {
			return err
		}
		closer.Add("bbolt-db", db)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	observer, err := mtprom.NewObserver(registry)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", mtprom.NewHandler(registry))

	params := pipomada.Params{
		APIURL:             opts.apiURL,
		Interval:           opts.interval,
		FirmwareInterval:   opts.firmwareInterval,
		MdnsBrowseInterval: opts.mdnsBrowseInterval,
		DB:                 db,
		InfluxDB:           opts.influxDB,
		Observer:           observer,
	}

	if opts.failureBackoff {
		params.NewBackoff = func(interval time.Duration) backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = interval
			b.MaxInterval = interval * time.Duration(max(opts.failureBackoffMax, 1))

			return b
		}
	}

	pipeline, err := pipomada.NewPipeline(appContext, closer, mux, params)
	if err != nil {
		return err
	}

	server, err := htcore.NewServer(mux, htcore.ServerParams{
		Host: opts.httpHost,
		Port: opts.httpPort,
	})
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	stoppers := []syssched.Stopper{
		pipeline,
		syssched.FuncStopper(server.Close),
	}

	starter := &syssched.FanoutStarter{}
	starter.Add(server)
	starter.Add(pipeline)

	if err := starter.Start(); err != nil {
		stop(stoppers)
		return err
	}

	<-appContext.Done()

	core.LogInf.Println("device-poller: shutting down")

	stop(stoppers)

	return nil
}

func stop(stoppers []syssched.Stopper) {
	for _, s := range stoppers {
		if err := s.Stop(); err != nil {
			core.LogErr.Printf("device-poller: failed to stop: %v\n", err)
		}
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return def
}

func envInt(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return def
	}

	return v
}
