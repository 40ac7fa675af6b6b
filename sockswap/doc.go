// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package sockswap lets integration tests stop and resume the writes of
a proxy built on top of [netcore].

Creating a [*Swap] replaces the process-wide [netcore.SocketInterface]
with a [*TestSocketInterface] wrapping the previous one. Every handle the
proxy creates through the active interface consults the [*IoHandleMatcher]
before each write. Closing the [*Swap] restores the previous interface.

# Usage

A test typically:

1. arms the matcher with [*IoHandleMatcher.SetSourcePort] (or
[*IoHandleMatcher.SetDestinationPort]) followed by
[*IoHandleMatcher.SetWritevReturnsEAGAIN];

2. lets the proxy write, at which point the first matching handle is
captured and its write fails with [netcore.EAGAIN];

3. calls [*IoHandleMatcher.ResumeWrites] from the test goroutine, which
waits for the capture, disarms the override, and posts a write-ready
event to the dispatcher owning the captured handle.

At most one handle may be captured. A second, different handle
matching the armed criterion causes a panic.

# Design Documents

This package is experimental and has no design documents for now.
*/
package sockswap
