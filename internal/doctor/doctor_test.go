package doctor

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/korvolabs/korvod/internal/config"
)

func TestReportStringAndOK(t *testing.T) {
	report := Report{Checks: []Check{
		{Name: "a", Pass: true, Message: "fine"},
		{Name: "b", Pass: false, Message: "broken"},
	}}
	require.False(t, report.OK())
	require.Equal(t, "[OK] a: fine\n[FAIL] b: broken", report.String())

	report.Checks[1].Pass = true
	require.True(t, report.OK())
}

func TestCheckUploadServerReachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	check := checkUploadServer("http://" + ln.Addr().String() + "/api/audio")
	require.True(t, check.Pass, check.Message)
}

func TestCheckUploadServerUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	check := checkUploadServer("http://" + addr + "/api/audio")
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "connect failed")
}

func TestCheckPlaybackURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	check := checkPlaybackURL(srv.URL + "/stream.mp3")
	require.True(t, check.Pass, check.Message)

	srv404 := httptest.NewServer(http.NotFoundHandler())
	defer srv404.Close()
	check = checkPlaybackURL(srv404.URL + "/stream.mp3")
	require.False(t, check.Pass)
}

func TestRunWithNullDriverSkipsHardware(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	cfg := config.Default()
	cfg.Audio.Driver = "null"
	cfg.Record.ServerURI = "http://" + ln.Addr().String() + "/api/audio"

	report := Run(config.Loaded{Path: "/dev/null", Config: cfg, Exists: true})
	require.True(t, report.OK(), report.String())
}
