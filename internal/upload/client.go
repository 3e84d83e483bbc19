package upload

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"
)

var (
	// ErrConnectionFailure reports that the collection server could not be
	// reached within the connect timeout.
	ErrConnectionFailure = errors.New("upload: connect failed")

	// ErrUploadFailure reports a framing or transport failure after the
	// connection was established.
	ErrUploadFailure = errors.New("upload: stream failed")
)

const (
	// DefaultConnectTimeout bounds the TCP dial to the collection server.
	DefaultConnectTimeout = 10 * time.Second

	// DefaultResponseTimeout bounds the wait for the server's reply after
	// the terminal chunk. The reply is advisory; its absence is tolerated.
	DefaultResponseTimeout = 5 * time.Second

	// maxResponseBytes caps how much of the server reply is retained.
	maxResponseBytes = 127
)

// StreamInfo describes the PCM stream announced in the request headers.
type StreamInfo struct {
	SampleRate int
	Bits       int
	Channels   int
}

// Client opens upload sessions against a collection server.
type Client struct {
	connectTimeout  time.Duration
	responseTimeout time.Duration
}

// Option adjusts client construction.
type Option func(*Client)

// WithConnectTimeout overrides the dial timeout.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Client) { c.connectTimeout = d }
}

// WithResponseTimeout overrides the post-stream response wait.
func WithResponseTimeout(d time.Duration) Option {
	return func(c *Client) { c.responseTimeout = d }
}

// New builds a Client with default timeouts.
func New(opts ...Option) *Client {
	c := &Client{
		connectTimeout:  DefaultConnectTimeout,
		responseTimeout: DefaultResponseTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Session is one in-flight chunked POST. It is not safe for concurrent use;
// the capture pipeline drives it from a single element goroutine.
type Session struct {
	conn            net.Conn
	responseTimeout time.Duration
	lenLine         []byte
	bytes           int64

	// finished is atomic because Abort may be called from the stopping
	// goroutine to unblock a pending WriteChunk.
	finished atomic.Bool
}

// Open dials the server named by uri, sends the request head, and returns a
// live session ready for chunk writes. The URI scheme must be http; the body
// is announced as chunked audio/pcm with the stream parameters carried in
// x-audio-* headers.
func (c *Client) Open(uri string, info StreamInfo) (*Session, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("upload: parse target %q: %w", uri, err)
	}
	if u.Scheme != "http" {
		return nil, fmt.Errorf("upload: target %q: scheme %q not supported", uri, u.Scheme)
	}
	host := u.Host
	if u.Port() == "" {
		host = net.JoinHostPort(u.Hostname(), "80")
	}
	path := u.RequestURI()
	if path == "" {
		path = "/"
	}

	conn, err := net.DialTimeout("tcp", host, c.connectTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailure, host, err)
	}

	var head bytes.Buffer
	fmt.Fprintf(&head, "POST %s HTTP/1.1\r\n", path)
	fmt.Fprintf(&head, "Host: %s\r\n", u.Host)
	head.WriteString("Content-Type: audio/pcm\r\n")
	head.WriteString("Transfer-Encoding: chunked\r\n")
	fmt.Fprintf(&head, "x-audio-sample-rates: %d\r\n", info.SampleRate)
	fmt.Fprintf(&head, "x-audio-bits: %d\r\n", info.Bits)
	fmt.Fprintf(&head, "x-audio-channel: %d\r\n", info.Channels)
	head.WriteString("\r\n")

	if _, err := conn.Write(head.Bytes()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: write request head: %w", ErrUploadFailure, err)
	}

	return &Session{
		conn:            conn,
		responseTimeout: c.responseTimeout,
		lenLine:         make([]byte, 0, 16),
	}, nil
}

// WriteChunk frames payload as one chunk and writes it to the wire. Empty
// payloads are suppressed: a zero-length chunk is the terminal marker, which
// only Finish may emit. Returns the payload bytes accepted.
func (s *Session) WriteChunk(payload []byte) (int, error) {
	if s.finished.Load() {
		return 0, fmt.Errorf("%w: write after finish", ErrUploadFailure)
	}
	if len(payload) == 0 {
		return 0, nil
	}

	s.lenLine = strconv.AppendUint(s.lenLine[:0], uint64(len(payload)), 16)
	s.lenLine = append(s.lenLine, '\r', '\n')

	frame := net.Buffers{s.lenLine, payload, []byte("\r\n")}
	if _, err := frame.WriteTo(s.conn); err != nil {
		return 0, fmt.Errorf("%w: write chunk: %w", ErrUploadFailure, err)
	}
	s.bytes += int64(len(payload))
	return len(payload), nil
}

// Bytes reports how many payload bytes the session has accepted so far.
func (s *Session) Bytes() int64 { return s.bytes }

// Finish writes the terminal marker, waits briefly for the server reply, and
// closes the connection. The reply is returned as-is, truncated to a small
// fixed window; a missing reply is not an error.
func (s *Session) Finish() (string, error) {
	if !s.finished.CompareAndSwap(false, true) {
		return "", nil
	}
	defer s.conn.Close()

	if _, err := s.conn.Write([]byte(TerminalMarker)); err != nil {
		return "", fmt.Errorf("%w: write terminal chunk: %w", ErrUploadFailure, err)
	}

	if err := s.conn.SetReadDeadline(time.Now().Add(s.responseTimeout)); err != nil {
		return "", nil
	}
	buf := make([]byte, maxResponseBytes)
	n, _ := s.conn.Read(buf)
	return string(buf[:n]), nil
}

// Abort drops the connection without the terminal marker, signaling to the
// server that the body is incomplete.
func (s *Session) Abort() {
	if !s.finished.CompareAndSwap(false, true) {
		return
	}
	s.conn.Close()
}
