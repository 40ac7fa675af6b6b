// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package netcore provides the socket interface through which a proxy
creates its TCP/UDP I/O handles.

The process-wide active [SocketInterface] is managed by
[ActiveSocketInterface], [InitializeSocketInterface], and
[ClearSocketInterface]. Tests swap the active interface with an
instrumented one to observe or alter the behaviour of every handle
the proxy creates (see the sockswap package).

# Features

- [*Network], the default [SocketInterface], dials and listens
using the [net] package or user-provided functions;

- [*IoHandle] wraps a [net.Conn], emits structured logs via the
[log/slog] package, supports vectored writes, and consults an optional
[WritevOverrideFunc] before every write;

- handles bound to a [*dispatcher.Dispatcher] receive readiness
callbacks on the dispatcher goroutine.

# Design Documents

This package is experimental and has no design documents for now.
*/
package netcore
