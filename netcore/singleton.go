//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Process-wide active socket interface.
//

package netcore

import (
	"sync"

	"github.com/rbmk-project/common/runtimex"
)

// singleton holds the installed [SocketInterface].
var singleton struct {
	iface SocketInterface
	mu    sync.Mutex
}

// ActiveSocketInterface returns the installed [SocketInterface]
// or [DefaultNetwork] when nothing has been installed.
func ActiveSocketInterface() SocketInterface {
	if si := ExistingSocketInterface(); si != nil {
		return si
	}
	return DefaultNetwork
}

// ExistingSocketInterface returns the installed [SocketInterface]
// or nil when nothing has been installed.
func ExistingSocketInterface() SocketInterface {
	singleton.mu.Lock()
	defer singleton.mu.Unlock()
	return singleton.iface
}

// InitializeSocketInterface installs si as the process-wide
// [SocketInterface].
//
// This function panics if si is nil or if another interface is already
// installed: call [ClearSocketInterface] first.
func InitializeSocketInterface(si SocketInterface) {
	runtimex.Assert(si != nil, "netcore: cannot install a nil SocketInterface")
	singleton.mu.Lock()
	defer singleton.mu.Unlock()
	runtimex.Assert(singleton.iface == nil, "netcore: a SocketInterface is already installed")
	singleton.iface = si
}

// ClearSocketInterface uninstalls the process-wide [SocketInterface].
func ClearSocketInterface() {
	singleton.mu.Lock()
	singleton.iface = nil
	singleton.mu.Unlock()
}
