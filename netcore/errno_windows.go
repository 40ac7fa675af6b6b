//go:build windows

//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Windows errno definitions.
//

package netcore

import "golang.org/x/sys/windows"

// EAGAIN is the error a non-blocking write returns when the
// kernel send buffer is full.
const EAGAIN = windows.WSAEWOULDBLOCK
