package htcore

import (
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/open-control-systems/device-poller/components/core"
	"github.com/open-control-systems/device-poller/components/status"
)

// Server is a wrapper for http.Server.
type Server struct {
	server  http.Server
	ln      net.Listener
	doneCh  chan struct{}
	url     string
	started atomic.Bool
}

// ServerParams contains server parameters.
type ServerParams struct {
	Host string
	Port int
}

// NewServer creates a new server.
//
// Notes:
//   - The server is not started.
//   - If host is empty, "0.0.0.0" is used.
//   - If port is zero, a random free port is chosen.
//
// References:
//   - The implementation is based on the httptest.Server.
func NewServer(handler http.Handler, params ServerParams) (*Server, error) {
	if params.Host == "" {
		params.Host = "0.0.0.0"
	}

	addr, err := net.ResolveTCPAddr("tcp", net.JoinHostPort(params.Host, strconv.Itoa(params.Port)))
	if err != nil {
		return nil, err
	}

	ln, err := net.ListenTCP(addr.Network(), addr)
	if err != nil {
		return nil, err
	}

	return &Server{
		server: http.Server{
			Addr:              ln.Addr().String(),
			Handler:           handler,
			ReadHeaderTimeout: time.Second * 10,
		},
		ln:     ln,
		doneCh: make(chan struct{}),
		url:    "http://" + ln.Addr().String(),
	}, nil
}

// Start runs the server in the background.
func (s *Server) Start() error {
	if !s.started.CompareAndSwap(false, true) {
		return status.StatusInvalidState
	}

	core.LogInf.Printf("http-server: starting: url=%s\n", s.url)

	go s.run()

	return nil
}

// Close stops the server and waits until it finishes.
func (s *Server) Close() error {
	if !s.started.Load() {
		return s.ln.Close()
	}

	err := s.server.Close()

	_ = s.ln.Close()

	<-s.doneCh

	return err
}

// URL returns base URL of form http://ipaddr:port with no trailing slash.
func (s *Server) URL() string {
	return s.url
}

func (s *Server) run() {
	defer close(s.doneCh)

	if err := s.server.Serve(s.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		core.LogErr.Printf("http-server: failed to serve connection: %v\n", err)
	}
}
