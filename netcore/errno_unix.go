//go:build unix

//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// UNIX errno definitions.
//

package netcore

import "golang.org/x/sys/unix"

// EAGAIN is the error a non-blocking write returns when the
// kernel send buffer is full.
const EAGAIN = unix.EAGAIN
