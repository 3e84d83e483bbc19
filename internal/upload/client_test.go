package upload

import (
	"bufio"
	"bytes"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAppendChunkFraming(t *testing.T) {
	cases := []struct {
		name    string
		payload []byte
		prefix  string
	}{
		{"empty", nil, "0\r\n"},
		{"single byte", []byte{0xAB}, "1\r\n"},
		{"full frame", bytes.Repeat([]byte{0x5A}, 16384), "4000\r\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			frame := EncodeChunk(tc.payload)
			require.True(t, bytes.HasPrefix(frame, []byte(tc.prefix)))
			require.True(t, bytes.HasSuffix(frame, []byte("\r\n")))
			body := frame[len(tc.prefix) : len(frame)-2]
			require.Equal(t, tc.payload, append([]byte(nil), body...))
		})
	}
}

func TestEncodeEmptyChunkIsTerminalMarker(t *testing.T) {
	require.Equal(t, []byte(TerminalMarker), EncodeChunk(nil))
}

// capture accepts a single connection and returns everything read from it
// until the terminal marker or EOF, optionally replying first.
func capture(t *testing.T, reply string) (addr string, got <-chan []byte) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	ch := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			ch <- nil
			return
		}
		defer conn.Close()
		var buf bytes.Buffer
		tmp := make([]byte, 4096)
		for {
			conn.SetReadDeadline(time.Now().Add(2 * time.Second))
			n, err := conn.Read(tmp)
			buf.Write(tmp[:n])
			if bytes.HasSuffix(buf.Bytes(), []byte(TerminalMarker)) {
				break
			}
			if err != nil {
				break
			}
		}
		if reply != "" {
			conn.Write([]byte(reply))
		}
		ch <- buf.Bytes()
	}()
	return ln.Addr().String(), ch
}

func TestOpenSendsRequestHead(t *testing.T) {
	addr, got := capture(t, "")

	client := New(WithResponseTimeout(100 * time.Millisecond))
	sess, err := client.Open("http://"+addr+"/api/audio?rec=1", StreamInfo{
		SampleRate: 16000,
		Bits:       16,
		Channels:   1,
	})
	require.NoError(t, err)
	_, err = sess.Finish()
	require.NoError(t, err)

	raw := <-got
	r := bufio.NewReader(bytes.NewReader(raw))
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "POST /api/audio?rec=1 HTTP/1.1\r\n", line)

	headers := map[string]string{}
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		if line == "\r\n" {
			break
		}
		k, v, ok := strings.Cut(strings.TrimRight(line, "\r\n"), ": ")
		require.True(t, ok, "malformed header %q", line)
		headers[k] = v
	}
	require.Equal(t, addr, headers["Host"])
	require.Equal(t, "audio/pcm", headers["Content-Type"])
	require.Equal(t, "chunked", headers["Transfer-Encoding"])
	require.Equal(t, "16000", headers["x-audio-sample-rates"])
	require.Equal(t, "16", headers["x-audio-bits"])
	require.Equal(t, "1", headers["x-audio-channel"])
}

func TestSessionStreamsChunksWithOneTerminalMarker(t *testing.T) {
	addr, got := capture(t, "HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n")

	client := New()
	sess, err := client.Open("http://"+addr+"/api/audio", StreamInfo{SampleRate: 16000, Bits: 16, Channels: 1})
	require.NoError(t, err)

	payloads := [][]byte{
		bytes.Repeat([]byte{0x01}, 512),
		nil, // empty capture read, must be suppressed
		bytes.Repeat([]byte{0x02}, 1024),
	}
	var sent int64
	for _, p := range payloads {
		n, err := sess.WriteChunk(p)
		require.NoError(t, err)
		sent += int64(n)
	}
	require.Equal(t, int64(1536), sent)
	require.Equal(t, int64(1536), sess.Bytes())

	resp, err := sess.Finish()
	require.NoError(t, err)
	require.Contains(t, resp, "200 OK")
	require.LessOrEqual(t, len(resp), 127)

	raw := <-got
	head, body, ok := bytes.Cut(raw, []byte("\r\n\r\n"))
	require.True(t, ok)
	require.Contains(t, string(head), "Transfer-Encoding: chunked")

	want := append([]byte(nil), EncodeChunk(payloads[0])...)
	want = AppendChunk(want, payloads[2])
	want = append(want, TerminalMarker...)
	require.Equal(t, want, body)
	require.Equal(t, 1, bytes.Count(body, []byte(TerminalMarker)))
}

func TestFinishIsIdempotentAndWriteAfterFinishFails(t *testing.T) {
	addr, got := capture(t, "")

	client := New(WithResponseTimeout(100 * time.Millisecond))
	sess, err := client.Open("http://"+addr+"/api/audio", StreamInfo{SampleRate: 8000, Bits: 16, Channels: 2})
	require.NoError(t, err)

	_, err = sess.Finish()
	require.NoError(t, err)
	_, err = sess.Finish()
	require.NoError(t, err)

	_, err = sess.WriteChunk([]byte{0x01})
	require.ErrorIs(t, err, ErrUploadFailure)

	raw := <-got
	_, body, _ := bytes.Cut(raw, []byte("\r\n\r\n"))
	require.Equal(t, 1, bytes.Count(body, []byte(TerminalMarker)))
}

func TestAbortDropsConnectionWithoutTerminalMarker(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	got := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			got <- nil
			return
		}
		defer conn.Close()
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		raw, _ := io.ReadAll(conn)
		got <- raw
	}()

	client := New()
	sess, err := client.Open("http://"+ln.Addr().String()+"/api/audio", StreamInfo{SampleRate: 16000, Bits: 16, Channels: 1})
	require.NoError(t, err)
	_, err = sess.WriteChunk([]byte{0x01, 0x02})
	require.NoError(t, err)
	sess.Abort()

	raw := <-got
	require.NotContains(t, string(raw), TerminalMarker)
	require.Contains(t, string(raw), "2\r\n\x01\x02\r\n")
}

func TestOpenConnectFailure(t *testing.T) {
	// Grab a port, then close it so the dial is refused.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	client := New(WithConnectTimeout(time.Second))
	_, err = client.Open("http://"+addr+"/api/audio", StreamInfo{SampleRate: 16000, Bits: 16, Channels: 1})
	require.ErrorIs(t, err, ErrConnectionFailure)
}

func TestOpenRejectsNonHTTPScheme(t *testing.T) {
	client := New()
	_, err := client.Open("https://example.com/api/audio", StreamInfo{})
	require.Error(t, err)
}
