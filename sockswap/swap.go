//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Socket interface swap.
//

package sockswap

import (
	"log/slog"
	"sync"

	"github.com/rbmk-project/netfault/netcore"
)

// Swap replaces the process-wide [netcore.SocketInterface] for
// the duration of a test.
//
// Construct using [New].
type Swap struct {
	// Matcher decides which writes fail. The matcher outlives
	// the swap if the test keeps a reference to it.
	Matcher *IoHandleMatcher

	// closeonce ensures we restore just once.
	closeonce sync.Once

	// previous is the interface installed before us, possibly nil.
	previous netcore.SocketInterface
}

// New installs a [*TestSocketInterface] wrapping the current
// [netcore.SocketInterface] and returns the corresponding [*Swap].
//
// The logger may be nil.
//
// Swaps do not nest: do not create a new [*Swap] before
// closing the existing one.
func New(logger *slog.Logger) *Swap {
	matcher := NewIoHandleMatcher()
	matcher.Logger = logger

	previous := netcore.ExistingSocketInterface()
	parent := previous
	if parent == nil {
		parent = netcore.DefaultNetwork
	}

	override := func(handle *netcore.IoHandle, bufs [][]byte) error {
		return matcher.ReturnOverride(handle)
	}

	netcore.ClearSocketInterface()
	netcore.InitializeSocketInterface(NewTestSocketInterface(parent, override))

	return &Swap{
		Matcher:   matcher,
		closeonce: sync.Once{},
		previous:  previous,
	}
}

// Close restores the [netcore.SocketInterface] that was installed
// when the swap was created. Pending captures are discarded. Handles
// created while the swap was installed keep consulting the matcher.
func (s *Swap) Close() error {
	s.closeonce.Do(func() {
		netcore.ClearSocketInterface()
		if s.previous != nil {
			netcore.InitializeSocketInterface(s.previous)
		}
	})
	return nil
}
