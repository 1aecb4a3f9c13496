package mtprom

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/open-control-systems/device-poller/components/poll"
)

func scrape(t *testing.T, registry *prometheus.Registry) string {
	server := httptest.NewServer(NewHandler(registry))
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return string(body)
}

func TestObserverObserveRefresh(t *testing.T) {
	registry := prometheus.NewRegistry()

	observer, err := NewObserver(registry)
	require.NoError(t, err)

	observer.ObserveRefresh("devices", time.Millisecond*20, 3, nil)
	observer.ObserveRefresh("devices", time.Millisecond*20, 0, errors.New("boom"))

	body := scrape(t, registry)
	require.Contains(t, body,
		`device_poller_refreshes_total{coordinator="devices",result="success"} 1`)
	require.Contains(t, body,
		`device_poller_refreshes_total{coordinator="devices",result="error"} 1`)
	require.Contains(t, body, `device_poller_snapshot_entries{coordinator="devices"} 3`)
	require.Contains(t, body, `device_poller_last_update_success{coordinator="devices"} 0`)
	require.Contains(t, body,
		`device_poller_refresh_duration_seconds_count{coordinator="devices"} 2`)
}

func TestObserverRegisterTwice(t *testing.T) {
	registry := prometheus.NewRegistry()

	_, err := NewObserver(registry)
	require.NoError(t, err)

	_, err = NewObserver(registry)
	require.Error(t, err)
}

func TestObserverWithCoordinator(t *testing.T) {
	registry := prometheus.NewRegistry()

	observer, err := NewObserver(registry)
	require.NoError(t, err)

	fetchErr := poll.NewClientError(errors.New("connection refused"))

	coordinator := poll.NewCoordinator("clients", struct{}{},
		func(_ context.Context, _ struct{}) (map[string]int, error) {
			return nil, fetchErr
		},
		poll.Params{Observer: observer})

	_, err = coordinator.Refresh(context.Background())
	require.Error(t, err)

	require.Contains(t, scrape(t, registry),
		`device_poller_refreshes_total{coordinator="clients",result="update_failed"} 1`)
}
