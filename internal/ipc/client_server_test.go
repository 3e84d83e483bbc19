package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testTimeout = 200 * time.Millisecond

// startServer runs Serve on a fresh socket and returns its path plus an
// idempotent stop function that also asserts a clean shutdown.
func startServer(t *testing.T, handler Handler) (string, func()) {
	t.Helper()

	socketPath := filepath.Join(t.TempDir(), "korvod.sock")
	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, listener, handler) }()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			require.NoError(t, <-done)
		})
	}
	t.Cleanup(stop)
	return socketPath, stop
}

func echoStatus(state string) HandlerFunc {
	return func(_ context.Context, req Request) Response {
		if req.Command != CommandStatus {
			return Response{OK: false, Error: "unexpected command " + req.Command}
		}
		return Response{OK: true, State: state, Session: "d2b7", Volume: 60}
	}
}

func TestSendRoundTrip(t *testing.T) {
	socketPath, _ := startServer(t, echoStatus("active"))

	resp, err := Send(context.Background(), socketPath, Request{Command: CommandStatus}, testTimeout)
	require.NoError(t, err)
	require.True(t, resp.OK)
	require.Equal(t, "active", resp.State)
	require.Equal(t, "d2b7", resp.Session)
	require.Equal(t, 60, resp.Volume)
}

func TestSendRejectsGarbageResponse(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "korvod.sock")
	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	go func() {
		conn, acceptErr := listener.Accept()
		if acceptErr != nil {
			return
		}
		defer conn.Close()
		_, _ = bufio.NewReader(conn).ReadBytes('\n')
		_, _ = conn.Write([]byte("not-json\n"))
	}()

	_, err = Send(context.Background(), socketPath, Request{Command: CommandStatus}, testTimeout)
	require.Error(t, err)
	require.Contains(t, err.Error(), "decode response")
}

func TestSendEmptyResponseError(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "korvod.sock")
	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	go func() {
		conn, acceptErr := listener.Accept()
		if acceptErr != nil {
			return
		}
		_ = conn.Close()
	}()

	_, err = Send(context.Background(), socketPath, Request{Command: CommandStatus}, testTimeout)
	require.Error(t, err)
	require.Contains(t, err.Error(), "decode response")
}

func TestServeRejectsGarbageRequest(t *testing.T) {
	socketPath, _ := startServer(t, echoStatus("idle"))

	conn, err := net.Dial("unix", socketPath)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("not-json\n"))
	require.NoError(t, err)

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal(line, &resp))
	require.False(t, resp.OK)
	require.Contains(t, resp.Error, "decode request")
}

func TestProbe(t *testing.T) {
	socketPath, stop := startServer(t, echoStatus("idle"))

	alive, err := Probe(context.Background(), socketPath, testTimeout)
	require.NoError(t, err)
	require.True(t, alive)

	stop()

	alive, err = Probe(context.Background(), socketPath, testTimeout)
	require.NoError(t, err)
	require.False(t, alive)
}
