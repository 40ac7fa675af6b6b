// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package errclass implements error classification.

The general idea is to classify golang errors to an enum of strings
with names resembling standard Unix error names.

This package extends `github.com/rbmk-project/common/errclass` with
the classes that matter when injecting write faults. Everything this
package does not recognise is delegated to the common package.

# Design Principles

1. Preserve original error in `err` in the structured logs.

2. Add the classified error as the `errClass` field.

3. Use [errors.Is] for classification.

4. Map the nil error to an empty string.

# Would-Block Errors

- [EAGAIN] for the would-block condition returned by a non-blocking
socket whose send buffer is full (on Windows, WSAEWOULDBLOCK)

The actual system error constants are defined in platform-specific files:

- unix.go for Unix-like systems using x/sys/unix

- windows.go for Windows systems using x/sys/windows
*/
package errclass

import (
	"errors"

	"github.com/rbmk-project/common/errclass"
)

const (
	// EAGAIN is the resource temporarily unavailable (would-block) error.
	EAGAIN = "EAGAIN"

	// ECONNRESET is the connection reset by peer error.
	ECONNRESET = errclass.ECONNRESET

	// EINTR is the interrupted system call error.
	EINTR = errclass.EINTR

	// ETIMEDOUT is the operation timed out error.
	ETIMEDOUT = errclass.ETIMEDOUT

	// EGENERIC is the generic, unclassified error.
	EGENERIC = errclass.EGENERIC
)

// New classifies the given error and returns its class.
func New(err error) string {
	if err != nil && errors.Is(err, errEAGAIN) {
		return EAGAIN
	}
	return errclass.New(err)
}
