// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package dispatcher implements a single-goroutine event loop.

A [*Dispatcher] owns a FIFO task queue. Any goroutine may [*Dispatcher.Post]
a task; the dispatcher goroutine runs tasks one at a time in the order
they were posted. I/O handles bound to a dispatcher receive their
readiness callbacks on the dispatcher goroutine, which is how a test
goroutine asks the owner of a handle to retry a write.
*/
package dispatcher

import (
	"errors"
	"log/slog"
	"sync"
)

// FileReadyType is a bit set of readiness events.
type FileReadyType uint32

const (
	// FileReadyRead indicates that the handle is readable.
	FileReadyRead FileReadyType = 1 << iota

	// FileReadyWrite indicates that the handle is writable.
	FileReadyWrite

	// FileReadyClosed indicates that the peer closed the handle.
	FileReadyClosed
)

// String returns a compact representation such as "read|write".
func (ft FileReadyType) String() string {
	var out string
	for _, entry := range []struct {
		flag FileReadyType
		name string
	}{
		{FileReadyRead, "read"},
		{FileReadyWrite, "write"},
		{FileReadyClosed, "closed"},
	} {
		if ft&entry.flag == 0 {
			continue
		}
		if out != "" {
			out += "|"
		}
		out += entry.name
	}
	return out
}

// ErrClosed is returned when posting to a closed [*Dispatcher].
var ErrClosed = errors.New("dispatcher: closed")

// Dispatcher runs posted tasks on its own goroutine.
//
// Construct using [New].
type Dispatcher struct {
	// Logger is the optional structured logger.
	Logger *slog.Logger

	// closed is true once Close has been called.
	closed bool

	// done is closed when the loop goroutine exits.
	done chan struct{}

	// mu provides mutual exclusion.
	mu sync.Mutex

	// name identifies the dispatcher in the logs.
	name string

	// queue contains the pending tasks.
	queue []func()

	// started is true once Start has been called.
	started bool

	// wakeup is signaled when the queue becomes non-empty.
	wakeup chan struct{}
}

// New constructs a new, non-running [*Dispatcher] instance.
func New(name string) *Dispatcher {
	return &Dispatcher{
		done:   make(chan struct{}),
		name:   name,
		wakeup: make(chan struct{}, 1),
	}
}

// Name returns the dispatcher name.
func (d *Dispatcher) Name() string {
	return d.name
}

// Start starts the dispatcher goroutine. Calling Start more
// than once, or after Close, has no effect.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true
	go d.loop()
}

// Post enqueues fn for execution on the dispatcher goroutine.
//
// Post never blocks and is safe to call from any goroutine,
// including the dispatcher goroutine itself.
func (d *Dispatcher) Post(fn func()) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	d.queue = append(d.queue, fn)
	d.mu.Unlock()

	select {
	case d.wakeup <- struct{}{}:
	default:
	}
	return nil
}

// Close stops the dispatcher and waits for the goroutine to exit. Tasks
// that have not run yet are dropped. Close is idempotent and must not be
// called from the dispatcher goroutine.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	alreadyClosed := d.closed
	started := d.started
	d.closed = true
	dropped := len(d.queue)
	d.queue = nil
	d.mu.Unlock()

	if alreadyClosed {
		return nil
	}

	if started {
		select {
		case d.wakeup <- struct{}{}:
		default:
		}
		<-d.done
	}

	if d.Logger != nil {
		d.Logger.Info(
			"dispatcherClosed",
			slog.String("dispatcher", d.name),
			slog.Int("droppedTasks", dropped),
		)
	}
	return nil
}

// loop is the dispatcher goroutine.
func (d *Dispatcher) loop() {
	defer close(d.done)
	for {
		tasks, closed := d.drain()
		if closed {
			return
		}
		for _, fn := range tasks {
			fn()
		}
		if len(tasks) <= 0 {
			<-d.wakeup
		}
	}
}

// drain atomically takes ownership of the pending tasks.
func (d *Dispatcher) drain() ([]func(), bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, true
	}
	tasks := d.queue
	d.queue = nil
	return tasks, false
}
