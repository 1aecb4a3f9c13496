package mtprom

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/open-control-systems/device-poller/components/status"
)

const namespace = "device_poller"

// Refresh results reported in the "result" label.
const (
	ResultSuccess      = "success"
	ResultUpdateFailed = "update_failed"
	ResultError        = "error"
)

// Observer exports coordinator refresh outcomes as Prometheus metrics.
//
// References:
//   - https://prometheus.io/docs/practices/naming/
type Observer struct {
	refreshes *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	entries   *prometheus.GaugeVec
	lastOK    *prometheus.GaugeVec
}

// NewObserver creates metrics and registers them in registerer.
func NewObserver(registerer prometheus.Registerer) (*Observer, error) {
	o := &Observer{
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refreshes_total",
			Help:      "Number of coordinator refreshes by result.",
		}, []string{"coordinator", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Duration of coordinator refreshes.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"coordinator"}),
		entries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_entries",
			Help:      "Number of entries in the last good snapshot.",
		}, []string{"coordinator"}),
		lastOK: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_update_success",
			Help:      "1 if the last refresh succeeded, 0 otherwise.",
		}, []string{"coordinator"}),
	}

	for _, c := range []prometheus.Collector{o.refreshes, o.duration, o.entries, o.lastOK} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}

	return o, nil
}

// ObserveRefresh records the refresh outcome.
func (o *Observer) ObserveRefresh(name string, elapsed time.Duration, entries int, err error) {
	o.refreshes.WithLabelValues(name, resultOf(err)).Inc()
	o.duration.WithLabelValues(name).Observe(elapsed.Seconds())

	if err != nil {
		o.lastOK.WithLabelValues(name).Set(0)

		return
	}

	o.lastOK.WithLabelValues(name).Set(1)
	o.entries.WithLabelValues(name).Set(float64(entries))
}

// NewHandler returns HTTP handler to expose metrics from gatherer.
func NewHandler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return ResultSuccess
	case errors.Is(err, status.StatusUpdateFailed):
		return ResultUpdateFailed
	default:
		return ResultError
	}
}
