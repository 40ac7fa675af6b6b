// SPDX-License-Identifier: GPL-3.0-or-later

package netcore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rbmk-project/common/mocks"
	"github.com/rbmk-project/netfault/dispatcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnLocalAddr(t *testing.T) {
	t.Run("nil connection", func(t *testing.T) {
		addr := connLocalAddr(nil)
		assert.Equal(t, "", addr.Network())
		assert.Equal(t, "", addr.String())
	})

	t.Run("nil local address", func(t *testing.T) {
		conn := &mocks.Conn{
			MockLocalAddr: func() net.Addr { return nil },
		}
		addr := connLocalAddr(conn)
		assert.Equal(t, "", addr.Network())
		assert.Equal(t, "", addr.String())
	})

	t.Run("valid address", func(t *testing.T) {
		expectedAddr := &net.TCPAddr{
			IP:   net.ParseIP("127.0.0.1"),
			Port: 1234,
		}
		conn := &mocks.Conn{
			MockLocalAddr: func() net.Addr { return expectedAddr },
		}
		addr := connLocalAddr(conn)
		assert.Equal(t, expectedAddr, addr)
	})
}

func TestConnRemoteAddr(t *testing.T) {
	t.Run("nil connection", func(t *testing.T) {
		addr := connRemoteAddr(nil)
		assert.Equal(t, "", addr.Network())
		assert.Equal(t, "", addr.String())
	})

	t.Run("valid address", func(t *testing.T) {
		expectedAddr := &net.TCPAddr{
			IP:   net.ParseIP("1.1.1.1"),
			Port: 443,
		}
		conn := &mocks.Conn{
			MockRemoteAddr: func() net.Addr { return expectedAddr },
		}
		addr := connRemoteAddr(conn)
		assert.Equal(t, expectedAddr, addr)
	})
}

// newMockConn returns a [*mocks.Conn] with 127.0.0.1:1234 -> 1.1.1.1:443 addresses.
func newMockConn() *mocks.Conn {
	return &mocks.Conn{
		MockLocalAddr: func() net.Addr {
			return &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 1234}
		},
		MockRemoteAddr: func() net.Addr {
			return &net.TCPAddr{IP: net.ParseIP("1.1.1.1"), Port: 443}
		},
	}
}

// newTestLogger returns a JSON logger writing into buf without the time key.
func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return a
		},
	}))
}

// parseLogs splits and parses the JSON logs inside buf.
func parseLogs(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		out = append(out, entry)
	}
	return out
}

func TestNewIoHandle(t *testing.T) {
	handle := newIoHandle(context.Background(), &Network{}, newMockConn())
	assert.Equal(t, uint16(1234), handle.LocalPort())
	assert.Equal(t, uint16(443), handle.PeerPort())
	assert.Equal(t, "127.0.0.1:1234", handle.laddr)
	assert.Equal(t, "1.1.1.1:443", handle.raddr)
	assert.Equal(t, "tcp", handle.protocol)
}

func TestIoHandle(t *testing.T) {
	fixedTime := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	// setup creates a standard test environment
	setup := func() (*bytes.Buffer, *mocks.Conn, *IoHandle) {
		var buf bytes.Buffer
		mock := newMockConn()
		netx := &Network{
			Logger:  newTestLogger(&buf),
			TimeNow: func() time.Time { return fixedTime },
		}
		return &buf, mock, newIoHandle(context.Background(), netx, mock)
	}

	t.Run("Writev without override", func(t *testing.T) {
		buf, mock, handle := setup()

		var written [][]byte
		mock.MockWrite = func(b []byte) (int, error) {
			written = append(written, append([]byte{}, b...))
			return len(b), nil
		}

		bufs := [][]byte{[]byte("abc"), []byte("de")}
		count, err := handle.Writev(bufs)
		assert.NoError(t, err)
		assert.Equal(t, int64(5), count)
		assert.Equal(t, [][]byte{[]byte("abc"), []byte("de")}, written)
		assert.Len(t, bufs, 2, "Writev must not consume the caller's slices")

		logs := parseLogs(t, buf)
		require.Len(t, logs, 2)
		assert.Equal(t, map[string]interface{}{
			"level":         "INFO",
			"msg":           "writevStart",
			"ioBufferSize":  float64(5),
			"ioSlicesCount": float64(2),
			"localAddr":     "127.0.0.1:1234",
			"protocol":      "tcp",
			"remoteAddr":    "1.1.1.1:443",
			"t":             fixedTime.Format(time.RFC3339Nano),
		}, logs[0])
		assert.Equal(t, map[string]interface{}{
			"level":        "INFO",
			"msg":          "writevDone",
			"ioBytesCount": float64(5),
			"err":          nil,
			"errClass":     "",
			"localAddr":    "127.0.0.1:1234",
			"protocol":     "tcp",
			"remoteAddr":   "1.1.1.1:443",
			"t0":           fixedTime.Format(time.RFC3339Nano),
			"t":            fixedTime.Format(time.RFC3339Nano),
		}, logs[1])
	})

	t.Run("Writev with override returning an error", func(t *testing.T) {
		buf, mock, handle := setup()

		mock.MockWrite = func(b []byte) (int, error) {
			t.Fatal("the real write should not happen")
			return 0, nil
		}

		var seen *IoHandle
		handle.SetWritevOverride(func(h *IoHandle, bufs [][]byte) error {
			seen = h
			return EAGAIN
		})

		count, err := handle.Write([]byte("abc"))
		assert.ErrorIs(t, err, EAGAIN)
		assert.Equal(t, 0, count)
		assert.Same(t, handle, seen)

		logs := parseLogs(t, buf)
		require.Len(t, logs, 1)
		assert.Equal(t, "writevOverride", logs[0]["msg"])
		assert.Equal(t, "EAGAIN", logs[0]["errClass"])
		assert.Equal(t, float64(3), logs[0]["ioBufferSize"])
	})

	t.Run("Writev with override returning nil", func(t *testing.T) {
		_, mock, handle := setup()

		mock.MockWrite = func(b []byte) (int, error) {
			return len(b), nil
		}
		calls := 0
		handle.SetWritevOverride(func(h *IoHandle, bufs [][]byte) error {
			calls++
			return nil
		})

		count, err := handle.Write([]byte("abcd"))
		assert.NoError(t, err)
		assert.Equal(t, 4, count)
		assert.Equal(t, 1, calls)
	})

	t.Run("Writev error", func(t *testing.T) {
		buf, mock, handle := setup()

		expectedErr := errors.New("mocked write error")
		mock.MockWrite = func(b []byte) (int, error) {
			return 0, expectedErr
		}

		count, err := handle.Writev([][]byte{[]byte("x")})
		assert.ErrorIs(t, err, expectedErr)
		assert.Equal(t, int64(0), count)

		logs := parseLogs(t, buf)
		require.Len(t, logs, 2)
		assert.Equal(t, "EGENERIC", logs[1]["errClass"])
	})

	t.Run("Read", func(t *testing.T) {
		buf, mock, handle := setup()

		mock.MockRead = func(b []byte) (int, error) {
			return copy(b, "hello"), nil
		}

		data := make([]byte, 16)
		count, err := handle.Read(data)
		assert.NoError(t, err)
		assert.Equal(t, "hello", string(data[:count]))

		logs := parseLogs(t, buf)
		require.Len(t, logs, 2)
		assert.Equal(t, "readStart", logs[0]["msg"])
		assert.Equal(t, float64(16), logs[0]["ioBufferSize"])
		assert.Equal(t, "readDone", logs[1]["msg"])
		assert.Equal(t, float64(5), logs[1]["ioBytesCount"])
	})

	t.Run("idempotent close", func(t *testing.T) {
		buf, mock, handle := setup()

		closeCount := 0
		mock.MockClose = func() error {
			closeCount++
			return nil
		}

		assert.NoError(t, handle.Close())
		assert.NoError(t, handle.Close())
		assert.NoError(t, handle.Close())
		assert.Equal(t, 1, closeCount, "Close should only be called once")

		logs := parseLogs(t, buf)
		assert.Len(t, logs, 2, "Should only have one pair of start/done logs")
	})

	t.Run("no logger configured", func(t *testing.T) {
		mock := newMockConn()
		mock.MockClose = func() error {
			return nil
		}
		mock.MockWrite = func(b []byte) (int, error) {
			return len(b), nil
		}
		handle := newIoHandle(context.Background(), &Network{}, mock)

		count, err := handle.Write([]byte("abc"))
		assert.NoError(t, err)
		assert.Equal(t, 3, count)
		assert.NoError(t, handle.Close())
	})
}

func TestIoHandleFileEvents(t *testing.T) {
	t.Run("activation is delivered on the dispatcher", func(t *testing.T) {
		d := dispatcher.New("worker_0")
		d.Start()
		defer d.Close()

		handle := newIoHandle(context.Background(), &Network{}, newMockConn())

		var (
			got dispatcher.FileReadyType
			wg  sync.WaitGroup
		)
		wg.Add(1)
		handle.InitializeFileEvent(d, func(events dispatcher.FileReadyType) {
			got = events
			wg.Done()
		})

		handle.ActivateInDispatcherThread(dispatcher.FileReadyWrite)
		wg.Wait()
		assert.Equal(t, dispatcher.FileReadyWrite, got)
	})

	t.Run("activation after the dispatcher is closed", func(t *testing.T) {
		var buf bytes.Buffer
		d := dispatcher.New("worker_0")
		d.Start()
		require.NoError(t, d.Close())

		netx := &Network{Logger: newTestLogger(&buf)}
		handle := newIoHandle(context.Background(), netx, newMockConn())
		handle.InitializeFileEvent(d, func(events dispatcher.FileReadyType) {
			t.Fatal("should not be called")
		})
		handle.ActivateInDispatcherThread(dispatcher.FileReadyWrite)

		logs := parseLogs(t, &buf)
		require.Len(t, logs, 1)
		assert.Equal(t, "activateFileEvents", logs[0]["msg"])
		assert.Equal(t, dispatcher.ErrClosed.Error(), logs[0]["err"])
	})

	t.Run("activation without file event", func(t *testing.T) {
		handle := newIoHandle(context.Background(), &Network{}, newMockConn())
		assert.Panics(t, func() {
			handle.ActivateInDispatcherThread(dispatcher.FileReadyWrite)
		})
	})
}
