package sysnet

import (
	"context"
	"net"
	"time"

	"github.com/open-control-systems/zeroconf"

	"github.com/open-control-systems/device-poller/components/core"
)

// ZeroconfMdnsBrowserParams represents various options for zeroconf mDNS browser.
type ZeroconfMdnsBrowserParams struct {
	// Service is a mDNS service to lookup for.
	//
	// Examples:
	//  - Lookup for all HTTP services over TCP protocol: "_http._tcp".
	Service string

	// Domain is a mDNS domain.
	//
	// Examples:
	//  - Local domain: "local".
	Domain string

	// Timeout is a mDNS browsing timeout.
	Timeout time.Duration
}

// ZeroconfMdnsBrowser browses the local network for the mDNS hosts.
//
// Remarks:
//   - Implements syssched.Task, each run is a single bounded browsing round.
//
// References:
//   - https://github.com/grandcat/zeroconf
type ZeroconfMdnsBrowser struct {
	params   ZeroconfMdnsBrowserParams
	handler  ResolveHandler
	resolver *zeroconf.Resolver
}

// NewZeroconfMdnsBrowser is an initialization of ZeroconfMdnsBrowser.
//
// Parameters:
//   - handler to receive resolved hosts.
//   - params - browsing options.
func NewZeroconfMdnsBrowser(
	handler ResolveHandler,
	params ZeroconfMdnsBrowserParams,
) (*ZeroconfMdnsBrowser, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, err
	}

	return &ZeroconfMdnsBrowser{
		params:   params,
		handler:  handler,
		resolver: resolver,
	}, nil
}

// Run executes a single mDNS lookup operation.
func (b *ZeroconfMdnsBrowser) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, b.params.Timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)

	if err := b.resolver.Browse(ctx, b.params.Service, b.params.Domain, entries); err != nil {
		return err
	}

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return nil
			}

			b.handleEntry(entry)

		case <-ctx.Done():
			return nil
		}
	}
}

// HandleError reports browsing errors to the log.
func (b *ZeroconfMdnsBrowser) HandleError(err error) {
	core.LogErr.Printf("mdns-zeroconf-browser: browsing failed: service=%s domain=%s: %v\n",
		b.params.Service, b.params.Domain, err)
}

func (b *ZeroconfMdnsBrowser) handleEntry(entry *zeroconf.ServiceEntry) {
	if entry == nil {
		return
	}

	if len(entry.AddrIPv4) < 1 {
		core.LogDbg.Printf("mdns-zeroconf-browser: ignore entry: host=%s:"+
			" IPv4 address not found\n", entry.HostName)

		return
	}

	b.handler.HandleResolve(entry.HostName, &net.IPAddr{IP: entry.AddrIPv4[0]})
}
