package sysnet

import (
	"context"
	"net"
)

// Resolver resolves hostnames to network addresses.
type Resolver interface {
	// Resolve hostname.
	Resolve(ctx context.Context, hostname string) (net.Addr, error)
}
