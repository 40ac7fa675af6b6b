//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Writev matcher.
//

package sockswap

import (
	"log/slog"
	"sync"

	"github.com/rbmk-project/common/runtimex"
	"github.com/rbmk-project/netfault/dispatcher"
	"github.com/rbmk-project/netfault/errclass"
	"github.com/rbmk-project/netfault/netcore"
)

// Handle is the view of an I/O handle the [*IoHandleMatcher] needs.
//
// The [*netcore.IoHandle] type implements this interface.
type Handle interface {
	// LocalPort returns the local port of the handle.
	LocalPort() uint16

	// PeerPort returns the peer port of the handle.
	PeerPort() uint16

	// ActivateInDispatcherThread schedules the given readiness events
	// on the dispatcher owning the handle.
	ActivateInDispatcherThread(events dispatcher.FileReadyType)
}

var _ Handle = &netcore.IoHandle{}

// IoHandleMatcher holds the state determining the [Handle] whose
// writes should fail with the armed error.
//
// Construct using [NewIoHandleMatcher].
type IoHandleMatcher struct {
	// Logger is the optional structured logger.
	Logger *slog.Logger

	// captured is signaled when matched becomes non-nil.
	captured *sync.Cond

	// dstPort is the peer port to match, zero if unset.
	dstPort uint16

	// err is the armed error, nil if unarmed.
	err error

	// matched is the captured handle. We never own it.
	matched Handle

	// mu provides mutual exclusion.
	mu sync.Mutex

	// srcPort is the local port to match, zero if unset.
	srcPort uint16
}

// NewIoHandleMatcher constructs a new [*IoHandleMatcher] with nothing armed.
func NewIoHandleMatcher() *IoHandleMatcher {
	m := &IoHandleMatcher{}
	m.captured = sync.NewCond(&m.mu)
	return m
}

// ReturnOverride returns the armed error if the handle matches the armed
// criterion, and nil otherwise. On match, the handle becomes the captured
// handle.
//
// This method panics if a handle other than the captured one matches,
// since that means the test could not tell the two apart.
func (m *IoHandleMatcher) ReturnOverride(handle Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err == nil || !m.matchesLocked(handle) {
		return nil
	}
	runtimex.Assert(m.matched == nil || m.matched == handle,
		"Matched multiple io_handles, expected at most one to match.")
	first := m.matched == nil
	m.matched = handle
	m.captured.Broadcast()

	if m.Logger != nil {
		m.Logger.Info(
			"writevOverride",
			slog.Int("dstPort", int(m.dstPort)),
			slog.Any("err", m.err),
			slog.String("errClass", errclass.New(m.err)),
			slog.Bool("firstMatch", first),
			slog.Int("localPort", int(handle.LocalPort())),
			slog.Int("peerPort", int(handle.PeerPort())),
			slog.Int("srcPort", int(m.srcPort)),
		)
	}
	return m.err
}

// matchesLocked returns whether the handle matches the criterion.
func (m *IoHandleMatcher) matchesLocked(handle Handle) bool {
	return (m.srcPort != 0 && handle.LocalPort() == m.srcPort) ||
		(m.dstPort != 0 && handle.PeerPort() == m.dstPort)
}

// SetSourcePort arms matching on the local port and clears the
// destination port. The port should be the one of a listener.
func (m *IoHandleMatcher) SetSourcePort(port uint16) {
	m.mu.Lock()
	m.dstPort = 0
	m.srcPort = port
	m.mu.Unlock()
}

// SetDestinationPort arms matching on the peer port and clears the
// source port. The port should be the one of a listener.
func (m *IoHandleMatcher) SetDestinationPort(port uint16) {
	m.mu.Lock()
	m.srcPort = 0
	m.dstPort = port
	m.mu.Unlock()
}

// SetWritevReturnsEAGAIN arms [netcore.EAGAIN] as the override.
func (m *IoHandleMatcher) SetWritevReturnsEAGAIN() {
	m.SetWritevOverride(netcore.EAGAIN)
}

// SetWritevOverride arms the given error as the override. The matcher
// returns err as is and never wraps it.
//
// This method panics if neither a source nor a destination
// port has been set, since overriding every write is not supported.
func (m *IoHandleMatcher) SetWritevOverride(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	runtimex.Assert(m.srcPort != 0 || m.dstPort != 0,
		"sockswap: set a source or destination port before arming an override")
	m.err = err
}

// ResumeWrites waits until a handle is captured, disarms the override,
// and schedules a write-ready event on the captured handle's dispatcher.
//
// There is no timeout: a test that never performs a matching write
// blocks here forever. Do not call this method from the dispatcher
// goroutine owning the handle, which must stay free to perform the
// write that we are waiting for.
//
// The captured handle is still recorded on return. Use
// [*IoHandleMatcher.ClearMatchedHandle] to capture a different
// handle in a subsequent cycle.
func (m *IoHandleMatcher) ResumeWrites() {
	if m.Logger != nil {
		m.Logger.Info("resumeWritesStart")
	}

	m.mu.Lock()
	for m.matched == nil {
		m.captured.Wait()
	}
	m.err = nil
	handle := m.matched
	m.mu.Unlock()

	handle.ActivateInDispatcherThread(dispatcher.FileReadyWrite)

	if m.Logger != nil {
		m.Logger.Info(
			"resumeWritesDone",
			slog.Int("localPort", int(handle.LocalPort())),
			slog.Int("peerPort", int(handle.PeerPort())),
		)
	}
}

// MatchedHandle returns the captured handle or nil.
func (m *IoHandleMatcher) MatchedHandle() Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.matched
}

// ClearMatchedHandle forgets the captured handle.
func (m *IoHandleMatcher) ClearMatchedHandle() {
	m.mu.Lock()
	m.matched = nil
	m.mu.Unlock()
}
