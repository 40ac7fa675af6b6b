//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/ooni/probe-cli/blob/v3.20.1/internal/measurexlite/conn.go
//
// I/O handle.
//

package netcore

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/rbmk-project/common/runtimex"
	"github.com/rbmk-project/netfault/dispatcher"
	"github.com/rbmk-project/netfault/errclass"
	"github.com/rbmk-project/netfault/netipx"
)

// WritevOverrideFunc is consulted before every write on a [*IoHandle].
//
// Returning a non-nil error causes the handle to skip the real write and
// return the error, unchanged, with zero bytes written. Returning nil lets
// the real write proceed. The function runs on the goroutine performing
// the write and must not block.
type WritevOverrideFunc func(handle *IoHandle, bufs [][]byte) error

// FileReadyCb is invoked on the dispatcher goroutine with the
// readiness events activated for a [*IoHandle].
type FileReadyCb func(events dispatcher.FileReadyType)

// connLocalAddr is a safe way to get the local address of a connection.
func connLocalAddr(conn net.Conn) net.Addr {
	if conn != nil && conn.LocalAddr() != nil {
		return conn.LocalAddr()
	}
	return emptyAddr{}
}

// connRemoteAddr is a safe way to get the remote address of a connection.
func connRemoteAddr(conn net.Conn) net.Addr {
	if conn != nil && conn.RemoteAddr() != nil {
		return conn.RemoteAddr()
	}
	return emptyAddr{}
}

// emptyAddr is an empty [net.Addr].
type emptyAddr struct{}

// Network implements [net.Addr].
func (emptyAddr) Network() string { return "" }

// String implements [net.Addr].
func (emptyAddr) String() string { return "" }

// IoHandle wraps a [net.Conn].
//
// Construct using [*Network.DialContext] or [*Listener.AcceptHandle].
type IoHandle struct {
	closeonce sync.Once
	conn      net.Conn
	ctx       context.Context // only used for logging
	laddr     string
	lport     uint16
	netx      *Network // may contain nil logger!
	protocol  string
	raddr     string
	rport     uint16

	// mu protects the fields below.
	mu         sync.Mutex
	dispatcher *dispatcher.Dispatcher
	onReady    FileReadyCb
	override   WritevOverrideFunc
}

// newIoHandle wraps conn into a new [*IoHandle].
func newIoHandle(ctx context.Context, netx *Network, conn net.Conn) *IoHandle {
	laddr := connLocalAddr(conn)
	raddr := connRemoteAddr(conn)
	return &IoHandle{
		ctx:      ctx,
		conn:     conn,
		laddr:    laddr.String(),
		lport:    netipx.Port(laddr),
		netx:     netx,
		protocol: laddr.Network(),
		raddr:    raddr.String(),
		rport:    netipx.Port(raddr),
	}
}

var _ net.Conn = &IoHandle{}

// LocalPort returns the local port or zero if unknown.
func (h *IoHandle) LocalPort() uint16 {
	return h.lport
}

// PeerPort returns the peer port or zero if unknown.
func (h *IoHandle) PeerPort() uint16 {
	return h.rport
}

// SetWritevOverride sets the [WritevOverrideFunc] consulted before
// every write. A nil fn disables the override.
func (h *IoHandle) SetWritevOverride(fn WritevOverrideFunc) {
	h.mu.Lock()
	h.override = fn
	h.mu.Unlock()
}

// InitializeFileEvent binds the handle to the given dispatcher. Readiness
// events activated through [*IoHandle.ActivateInDispatcherThread] are
// delivered to cb on the dispatcher goroutine.
func (h *IoHandle) InitializeFileEvent(d *dispatcher.Dispatcher, cb FileReadyCb) {
	runtimex.Assert(d != nil && cb != nil, "netcore: InitializeFileEvent needs a dispatcher and a callback")
	h.mu.Lock()
	h.dispatcher = d
	h.onReady = cb
	h.mu.Unlock()
}

// ActivateInDispatcherThread schedules delivery of events to the file event
// callback on the dispatcher owning this handle. It is safe to call from any
// goroutine and never runs the callback synchronously.
//
// This method panics if [*IoHandle.InitializeFileEvent] was not called.
func (h *IoHandle) ActivateInDispatcherThread(events dispatcher.FileReadyType) {
	h.mu.Lock()
	d, cb := h.dispatcher, h.onReady
	h.mu.Unlock()
	runtimex.Assert(d != nil, "netcore: handle has no file event")

	err := d.Post(func() { cb(events) })

	if h.netx.Logger != nil {
		h.netx.Logger.InfoContext(
			h.ctx,
			"activateFileEvents",
			slog.String("dispatcher", d.Name()),
			slog.Any("err", err),
			slog.String("events", events.String()),
			slog.String("localAddr", h.laddr),
			slog.String("protocol", h.protocol),
			slog.String("remoteAddr", h.raddr),
			slog.Time("t", h.netx.timeNow()),
		)
	}
}

// Close implements [net.Conn].
func (h *IoHandle) Close() (err error) {
	h.closeonce.Do(func() {
		t0 := h.netx.timeNow()
		if h.netx.Logger != nil {
			h.netx.Logger.InfoContext(
				h.ctx,
				"closeStart",
				slog.String("localAddr", h.laddr),
				slog.String("protocol", h.protocol),
				slog.String("remoteAddr", h.raddr),
				slog.Time("t", t0),
			)
		}

		err = h.conn.Close()

		if h.netx.Logger != nil {
			h.netx.Logger.InfoContext(
				h.ctx,
				"closeDone",
				slog.Any("err", err),
				slog.String("errClass", errclass.New(err)),
				slog.String("localAddr", h.laddr),
				slog.String("protocol", h.protocol),
				slog.String("remoteAddr", h.raddr),
				slog.Time("t0", t0),
				slog.Time("t", h.netx.timeNow()),
			)
		}
	})
	return
}

// LocalAddr implements [net.Conn].
func (h *IoHandle) LocalAddr() net.Addr {
	return h.conn.LocalAddr()
}

// Read implements [net.Conn].
func (h *IoHandle) Read(buf []byte) (int, error) {
	t0 := h.netx.timeNow()
	if h.netx.Logger != nil {
		h.netx.Logger.InfoContext(
			h.ctx,
			"readStart",
			slog.Int("ioBufferSize", len(buf)),
			slog.String("localAddr", h.laddr),
			slog.String("protocol", h.protocol),
			slog.String("remoteAddr", h.raddr),
			slog.Time("t", t0),
		)
	}

	count, err := h.conn.Read(buf)

	if h.netx.Logger != nil {
		h.netx.Logger.InfoContext(
			h.ctx,
			"readDone",
			slog.Int("ioBytesCount", count),
			slog.Any("err", err),
			slog.String("errClass", errclass.New(err)),
			slog.String("localAddr", h.laddr),
			slog.String("protocol", h.protocol),
			slog.String("remoteAddr", h.raddr),
			slog.Time("t0", t0),
			slog.Time("t", h.netx.timeNow()),
		)
	}

	return count, err
}

// RemoteAddr implements [net.Conn].
func (h *IoHandle) RemoteAddr() net.Addr {
	return h.conn.RemoteAddr()
}

// SetDeadline implements [net.Conn].
func (h *IoHandle) SetDeadline(t time.Time) error {
	return h.conn.SetDeadline(t)
}

// SetReadDeadline implements [net.Conn].
func (h *IoHandle) SetReadDeadline(t time.Time) error {
	return h.conn.SetReadDeadline(t)
}

// SetWriteDeadline implements [net.Conn].
func (h *IoHandle) SetWriteDeadline(t time.Time) error {
	return h.conn.SetWriteDeadline(t)
}

// Write implements [net.Conn].
func (h *IoHandle) Write(data []byte) (int, error) {
	count, err := h.Writev([][]byte{data})
	return int(count), err
}

// Writev writes the given slices in order using a vectored write
// when the underlying connection supports it.
//
// The [WritevOverrideFunc], if any, is consulted first.
func (h *IoHandle) Writev(bufs [][]byte) (int64, error) {
	h.mu.Lock()
	override := h.override
	h.mu.Unlock()

	if override != nil {
		if err := override(h, bufs); err != nil {
			h.emitWritevOverride(bufs, err)
			return 0, err
		}
	}

	t0 := h.netx.timeNow()
	if h.netx.Logger != nil {
		h.netx.Logger.InfoContext(
			h.ctx,
			"writevStart",
			slog.Int("ioBufferSize", buffersLen(bufs)),
			slog.Int("ioSlicesCount", len(bufs)),
			slog.String("localAddr", h.laddr),
			slog.String("protocol", h.protocol),
			slog.String("remoteAddr", h.raddr),
			slog.Time("t", t0),
		)
	}

	// WriteTo consumes the buffers, so use a shallow copy
	nb := make(net.Buffers, len(bufs))
	copy(nb, bufs)
	count, err := nb.WriteTo(h.conn)

	if h.netx.Logger != nil {
		h.netx.Logger.InfoContext(
			h.ctx,
			"writevDone",
			slog.Int64("ioBytesCount", count),
			slog.Any("err", err),
			slog.String("errClass", errclass.New(err)),
			slog.String("localAddr", h.laddr),
			slog.String("protocol", h.protocol),
			slog.String("remoteAddr", h.raddr),
			slog.Time("t0", t0),
			slog.Time("t", h.netx.timeNow()),
		)
	}

	return count, err
}

// emitWritevOverride logs a write replaced by the override.
func (h *IoHandle) emitWritevOverride(bufs [][]byte, err error) {
	if h.netx.Logger != nil {
		h.netx.Logger.InfoContext(
			h.ctx,
			"writevOverride",
			slog.Int("ioBufferSize", buffersLen(bufs)),
			slog.Any("err", err),
			slog.String("errClass", errclass.New(err)),
			slog.String("localAddr", h.laddr),
			slog.String("protocol", h.protocol),
			slog.String("remoteAddr", h.raddr),
			slog.Time("t", h.netx.timeNow()),
		)
	}
}

// buffersLen returns the overall number of bytes in bufs.
func buffersLen(bufs [][]byte) (total int) {
	for _, buf := range bufs {
		total += len(buf)
	}
	return
}
