//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Definition of SocketInterface and Network.
//

package netcore

import (
	"context"
	"log/slog"
	"net"
	"time"
)

// SocketInterface creates the [*IoHandle] and [*Listener] used by a proxy.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type SocketInterface interface {
	// DialContext establishes a new connection and wraps it
	// into a [*IoHandle].
	DialContext(ctx context.Context, network, address string) (*IoHandle, error)

	// Listen creates a new [*Listener] whose accepted connections
	// are wrapped into [*IoHandle].
	Listen(ctx context.Context, network, address string) (*Listener, error)
}

// Network is the default [SocketInterface].
//
// The zero value is ready to use.
//
// A [*Network] is safe for concurrent use by multiple goroutines as long as
// you don't modify its fields after construction and the underlying fields you
// may set (e.g., DialContextFunc) are also safe.
type Network struct {
	// DialContextFunc is the optional dialer for creating new
	// TCP and UDP connections. If this field is nil, the default
	// dialer from the [net] package will be used.
	DialContextFunc func(ctx context.Context, network, address string) (net.Conn, error)

	// ListenFunc is the optional function for creating new
	// listeners. If this field is nil, we use a [*net.ListenConfig].
	ListenFunc func(ctx context.Context, network, address string) (net.Listener, error)

	// Logger is the optional structured logger for emitting
	// structured diagnostic events. If this field is nil, we
	// will not be emitting structured logs.
	Logger *slog.Logger

	// LookupHostFunc is the optional function to resolve a domain
	// name to IP addresses. If this field is nil, we use the
	// default [*net.Resolver] from the [net] package.
	LookupHostFunc func(ctx context.Context, domain string) ([]string, error)

	// TimeNow is an optional function that returns the current time.
	// If this field is nil, the [time.Now] function will be used.
	TimeNow func() time.Time

	// DialContextTimeout is the optional timeout to use for limiting
	// the maximum time spent creating a single connection.
	DialContextTimeout time.Duration
}

// DefaultNetwork is the default [*Network] used by this package.
var DefaultNetwork = &Network{}

var _ SocketInterface = &Network{}

// timeNow is a function that returns the current time.
func (nx *Network) timeNow() time.Time {
	if nx.TimeNow != nil {
		return nx.TimeNow()
	}
	return time.Now()
}
