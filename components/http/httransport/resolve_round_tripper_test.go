package httransport

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/open-control-systems/device-poller/components/status"
)

type testResolver struct {
	addr net.Addr
	err  error
	host string
}

func (r *testResolver) Resolve(_ context.Context, host string) (net.Addr, error) {
	r.host = host

	return r.addr, r.err
}

func TestResolveRoundTripperRoundTrip(t *testing.T) {
	var gotHost string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHost = r.Host
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	serverURL, err := url.Parse(server.URL)
	require.Nil(t, err)

	resolver := &testResolver{
		addr: &net.IPAddr{IP: net.ParseIP(serverURL.Hostname())},
	}

	client := &http.Client{
		Transport: NewResolveRoundTripper(resolver, http.DefaultTransport),
	}

	reqURL := "http://omada-controller.local:" + serverURL.Port() + "/api/v1/devices"

	req, err := http.NewRequest(http.MethodGet, reqURL, nil)
	require.Nil(t, err)

	resp, err := client.Do(req)
	require.Nil(t, err)
	require.Nil(t, resp.Body.Close())

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "omada-controller.local", resolver.host)
	require.Equal(t, "omada-controller.local:"+serverURL.Port(), gotHost)
	require.Equal(t, reqURL, req.URL.String())
}

func TestResolveRoundTripperResolveFailed(t *testing.T) {
	resolver := &testResolver{err: status.StatusTimeout}

	client := &http.Client{
		Transport: NewResolveRoundTripper(resolver, http.DefaultTransport),
	}

	resp, err := client.Get("http://omada-controller.local/api/v1/devices")
	require.Nil(t, resp)
	require.ErrorIs(t, err, status.StatusTimeout)
}
