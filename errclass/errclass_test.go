// SPDX-License-Identifier: GPL-3.0-or-later

package errclass

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"testing"
)

func TestNew(t *testing.T) {
	// testcase is a test case implemented by this function.
	type testcase struct {
		input  error
		expect string
	}

	var tests = []testcase{
		{
			input:  nil,
			expect: "",
		},

		{
			input:  errEAGAIN,
			expect: EAGAIN,
		},

		// wrapped the way the net package reports write errors
		{
			input: &net.OpError{
				Op:  "write",
				Net: "tcp",
				Err: os.NewSyscallError("writev", errEAGAIN),
			},
			expect: EAGAIN,
		},

		{
			input:  fmt.Errorf("flush: %w", errEAGAIN),
			expect: EAGAIN,
		},

		// delegated to the common package
		{
			input:  context.DeadlineExceeded,
			expect: ETIMEDOUT,
		},

		{
			input:  net.ErrClosed,
			expect: EINTR,
		},

		{
			input:  errors.New("unknown error"),
			expect: EGENERIC,
		},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%v", tt.input), func(t *testing.T) {
			got := New(tt.input)
			if got != tt.expect {
				t.Errorf("New(%v) = %v; want %v", tt.input, got, tt.expect)
			}
		})
	}
}
