// SPDX-License-Identifier: GPL-3.0-or-later

// Package netipx contains [net/netip] extensions for reading
// the endpoints of a connection.
package netipx

import (
	"net"
	"net/netip"
)

// unspecified is the value returned for addresses we cannot convert.
var unspecified = netip.AddrPortFrom(netip.IPv6Unspecified(), 0)

// AddrToAddrPort converts a [net.Addr] to a [netip.AddrPort].
//
// For [*net.TCPAddr] and [*net.UDPAddr] addresses, returns their
// corresponding [netip.AddrPort] representation. For any other
// non-nil address, attempts to parse the string representation as
// an endpoint (this covers simulated and wrapped addresses).
//
// Otherwise, returns an unspecified IPv6 address with port 0.
func AddrToAddrPort(addr net.Addr) netip.AddrPort {
	switch v := addr.(type) {
	case nil:
		return unspecified
	case *net.TCPAddr:
		if v == nil {
			return unspecified
		}
		return v.AddrPort()
	case *net.UDPAddr:
		if v == nil {
			return unspecified
		}
		return v.AddrPort()
	}
	epnt, err := netip.ParseAddrPort(addr.String())
	if err != nil {
		return unspecified
	}
	return epnt
}

// Port returns the port of the given [net.Addr] or zero when
// the address does not carry a TCP/UDP port.
func Port(addr net.Addr) uint16 {
	return AddrToAddrPort(addr).Port()
}
