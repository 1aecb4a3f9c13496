package sysnet

import (
	"context"
	"net"
	"strings"
	"sync"

	"github.com/open-control-systems/device-poller/components/core"
	"github.com/open-control-systems/device-poller/components/status"
)

// ResolveStore caches the result of host resolving.
//
// Remarks:
//   - Only hosts added with Add are cached.
//   - Resolve waits for the address of a known host until it's resolved or ctx is done.
type ResolveStore struct {
	mu            sync.Mutex
	changedCh     chan struct{}
	knownHosts    map[string]struct{}
	resolvedAddrs map[string]net.Addr
}

// NewResolveStore is an initialization of ResolveStore.
func NewResolveStore() *ResolveStore {
	return &ResolveStore{
		changedCh:     make(chan struct{}),
		knownHosts:    make(map[string]struct{}),
		resolvedAddrs: make(map[string]net.Addr),
	}
}

// HandleResolve caches known resolved addresses.
//
// Remarks:
//   - Unknown hosts are filtered out.
func (s *ResolveStore) HandleResolve(host string, addr net.Addr) {
	host = normalizeHost(host)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.knownHosts[host]; !ok {
		return
	}

	ra, ok := s.resolvedAddrs[host]
	if ok && ra.String() == addr.String() {
		return
	}

	if ok {
		core.LogInf.Printf("resolve-store: addr changed: host=%s cur=%s new=%s\n",
			host, ra, addr)
	} else {
		core.LogInf.Printf("resolve-store: addr resolved: host=%s addr=%s\n", host, addr)
	}

	s.resolvedAddrs[host] = addr

	close(s.changedCh)
	s.changedCh = make(chan struct{})
}

// Resolve resolves the host address to the network address.
//
// Remarks:
//   - Resolving an unknown host fails with status.StatusNoData.
//   - status.StatusTimeout is returned if ctx is done before the host is resolved.
func (s *ResolveStore) Resolve(ctx context.Context, host string) (net.Addr, error) {
	host = normalizeHost(host)

	for {
		s.mu.Lock()

		if _, ok := s.knownHosts[host]; !ok {
			s.mu.Unlock()
			return nil, status.StatusNoData
		}

		if addr, ok := s.resolvedAddrs[host]; ok {
			s.mu.Unlock()
			return addr, nil
		}

		changedCh := s.changedCh

		s.mu.Unlock()

		select {
		case <-changedCh:
		case <-ctx.Done():
			return nil, status.StatusTimeout
		}
	}
}

// Add adds host to the list of known hosts.
func (s *ResolveStore) Add(host string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.knownHosts[normalizeHost(host)] = struct{}{}
}

// Remove removes host from the list of known hosts.
func (s *ResolveStore) Remove(host string) {
	host = normalizeHost(host)

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.knownHosts, host)
	delete(s.resolvedAddrs, host)

	close(s.changedCh)
	s.changedCh = make(chan struct{})
}

// IsLocalHost returns true if host belongs to the mDNS "local" domain.
func IsLocalHost(host string) bool {
	return strings.HasSuffix(normalizeHost(host), ".local")
}

func normalizeHost(host string) string {
	return strings.ToLower(strings.TrimSuffix(host, "."))
}
