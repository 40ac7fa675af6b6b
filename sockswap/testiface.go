//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Instrumented socket interface.
//

package sockswap

import (
	"context"

	"github.com/rbmk-project/netfault/netcore"
)

// TestSocketInterface is a [netcore.SocketInterface] that installs a
// [netcore.WritevOverrideFunc] on every handle created by the
// wrapped [netcore.SocketInterface].
//
// Construct using [NewTestSocketInterface].
type TestSocketInterface struct {
	// override is installed on every handle.
	override netcore.WritevOverrideFunc

	// parent is the wrapped interface.
	parent netcore.SocketInterface
}

// NewTestSocketInterface constructs a new [*TestSocketInterface].
func NewTestSocketInterface(
	parent netcore.SocketInterface, override netcore.WritevOverrideFunc) *TestSocketInterface {
	return &TestSocketInterface{override: override, parent: parent}
}

var _ netcore.SocketInterface = &TestSocketInterface{}

// Parent returns the wrapped [netcore.SocketInterface].
func (si *TestSocketInterface) Parent() netcore.SocketInterface {
	return si.parent
}

// DialContext implements [netcore.SocketInterface].
func (si *TestSocketInterface) DialContext(
	ctx context.Context, network, address string) (*netcore.IoHandle, error) {
	handle, err := si.parent.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}
	handle.SetWritevOverride(si.override)
	return handle, nil
}

// Listen implements [netcore.SocketInterface].
func (si *TestSocketInterface) Listen(
	ctx context.Context, network, address string) (*netcore.Listener, error) {
	listener, err := si.parent.Listen(ctx, network, address)
	if err != nil {
		return nil, err
	}
	listener.SetWritevOverride(si.override)
	return listener, nil
}
