//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Listener returning IoHandle.
//

package netcore

import (
	"context"
	"log/slog"
	"net"
	"sync"

	"github.com/rbmk-project/netfault/errclass"
	"github.com/rbmk-project/netfault/netipx"
)

// Listen creates a new [*Listener].
func (nx *Network) Listen(ctx context.Context, network, address string) (*Listener, error) {
	var (
		ln  net.Listener
		err error
	)
	if nx.ListenFunc != nil {
		ln, err = nx.ListenFunc(ctx, network, address)
	} else {
		lc := &net.ListenConfig{}
		lc.SetMultipathTCP(false)
		ln, err = lc.Listen(ctx, network, address)
	}

	if nx.Logger != nil {
		var laddr string
		if ln != nil {
			laddr = ln.Addr().String()
		}
		nx.Logger.InfoContext(
			ctx,
			"listen",
			slog.Any("err", err),
			slog.String("errClass", errclass.New(err)),
			slog.String("localAddr", laddr),
			slog.String("protocol", network),
			slog.Time("t", nx.timeNow()),
		)
	}

	if err != nil {
		return nil, err
	}
	return &Listener{ctx: ctx, ln: ln, netx: nx}, nil
}

// Listener accepts connections as [*IoHandle].
//
// Construct using [*Network.Listen].
type Listener struct {
	// ctx is only used for logging.
	ctx context.Context

	// ln is the underlying listener.
	ln net.Listener

	// mu protects override.
	mu sync.Mutex

	// netx is the network that created us.
	netx *Network

	// override is inherited by accepted handles.
	override WritevOverrideFunc
}

var _ net.Listener = &Listener{}

// SetWritevOverride sets the [WritevOverrideFunc] that every
// subsequently accepted [*IoHandle] will use.
func (l *Listener) SetWritevOverride(fn WritevOverrideFunc) {
	l.mu.Lock()
	l.override = fn
	l.mu.Unlock()
}

// AcceptHandle waits for and returns the next connection.
func (l *Listener) AcceptHandle() (*IoHandle, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	handle := newIoHandle(l.ctx, l.netx, conn)
	l.mu.Lock()
	handle.SetWritevOverride(l.override)
	l.mu.Unlock()
	return handle, nil
}

// Accept implements [net.Listener].
func (l *Listener) Accept() (net.Conn, error) {
	handle, err := l.AcceptHandle()
	if err != nil {
		return nil, err
	}
	return handle, nil
}

// Addr implements [net.Listener].
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Port returns the port the listener is bound to.
func (l *Listener) Port() uint16 {
	return netipx.Port(l.ln.Addr())
}

// Close implements [net.Listener].
func (l *Listener) Close() error {
	return l.ln.Close()
}
