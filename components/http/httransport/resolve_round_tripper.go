package httransport

import (
	"fmt"
	"net"
	"net/http"

	"github.com/open-control-systems/device-poller/components/system/sysnet"
)

// ResolveRoundTripper resolves the request host before sending the request.
type ResolveRoundTripper struct {
	rs sysnet.Resolver
	rt http.RoundTripper
}

// NewResolveRoundTripper is an initialization of ResolveRoundTripper.
//
// Parameters:
//   - rs to resolve HTTP addresses.
//   - rt to perform an actual HTTP transaction.
func NewResolveRoundTripper(rs sysnet.Resolver, rt http.RoundTripper) *ResolveRoundTripper {
	return &ResolveRoundTripper{
		rs: rs,
		rt: rt,
	}
}

// RoundTrip resolves HTTP address and performs HTTP transaction.
//
// Remarks:
//   - The original request isn't modified, the port is preserved.
func (r *ResolveRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	addr, err := r.rs.Resolve(req.Context(), req.URL.Hostname())
	if err != nil {
		return nil, fmt.Errorf(
			"resolve-round-tripper: failed to resolve HTTP address: hostname=%s err=%w",
			req.URL.Hostname(), err)
	}

	host := hostOf(addr)
	if port := req.URL.Port(); port != "" {
		host = net.JoinHostPort(host, port)
	}

	resolved := req.Clone(req.Context())
	resolved.URL.Host = host
	resolved.Host = req.URL.Host

	return r.rt.RoundTrip(resolved)
}

func hostOf(addr net.Addr) string {
	switch a := addr.(type) {
	case *net.IPAddr:
		return a.IP.String()
	case *net.TCPAddr:
		return a.IP.String()
	default:
		if host, _, err := net.SplitHostPort(addr.String()); err == nil {
			return host
		}

		return addr.String()
	}
}
