//go:build unix

// SPDX-License-Identifier: GPL-3.0-or-later

package errclass

import "golang.org/x/sys/unix"

// errEAGAIN also covers EWOULDBLOCK, which has the same value
// on every Unix platform we support.
const errEAGAIN = unix.EAGAIN
