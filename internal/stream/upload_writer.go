package stream

import (
	"io"
	"log/slog"
	"sync"

	"github.com/korvolabs/korvod/internal/element"
	"github.com/korvolabs/korvod/internal/upload"
)

// UploadWriter terminates the capture pipeline: it opens one chunked POST
// per session against the element URI and streams each captured frame as one
// chunk. A graceful stop drains the ring buffer and emits the terminal
// marker; only a fault or a stop timeout drops the connection so the server
// sees the body as incomplete.
type UploadWriter struct {
	client *upload.Client
	logger *slog.Logger
	frame  []byte

	// mu guards sess and drained: Interrupt runs on the stopping goroutine
	// while the element goroutine is inside Open, Process or Close.
	mu      sync.Mutex
	sess    *upload.Session
	drained bool
}

// NewUploadWriter wraps an upload client as an element handler.
func NewUploadWriter(client *upload.Client, logger *slog.Logger) *UploadWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &UploadWriter{client: client, logger: logger}
}

func (w *UploadWriter) Open(e *element.Element) error {
	e.ResetBytes()
	clock := e.Clock()
	sess, err := w.client.Open(e.URI(), upload.StreamInfo{
		SampleRate: clock.SampleRate,
		Bits:       clock.Bits,
		Channels:   clock.Channels,
	})
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.sess = sess
	w.drained = false
	w.mu.Unlock()
	w.frame = make([]byte, DefaultFrameSize)
	return nil
}

func (w *UploadWriter) Process(e *element.Element) error {
	n, err := e.ReadInput(w.frame)
	if n > 0 {
		w.mu.Lock()
		sess := w.sess
		w.mu.Unlock()
		if _, werr := sess.WriteChunk(w.frame[:n]); werr != nil {
			return element.Errf(element.StatusErrorOutput, werr)
		}
		e.AddBytes(int64(n))
	}
	if err != nil {
		if err == io.EOF {
			w.mu.Lock()
			w.drained = true
			w.mu.Unlock()
			return io.EOF
		}
		return element.Errf(element.StatusErrorInput, err)
	}
	return nil
}

func (w *UploadWriter) Close(e *element.Element) error {
	w.mu.Lock()
	sess := w.sess
	drained := w.drained
	w.sess = nil
	w.mu.Unlock()
	if sess == nil {
		return nil
	}

	// Only a fully drained stream gets the terminal marker; anything else
	// leaves the body visibly truncated.
	if drained {
		resp, err := sess.Finish()
		if err != nil {
			return err
		}
		w.logger.Info("upload complete",
			"bytes", e.Bytes(),
			"response", firstLine(resp),
		)
		return nil
	}
	sess.Abort()
	return nil
}

// Interrupt unblocks a chunk write pending in Process.
func (w *UploadWriter) Interrupt() {
	w.mu.Lock()
	sess := w.sess
	w.mu.Unlock()
	if sess != nil {
		sess.Abort()
	}
}

// Reset clears session remnants so the element can be reused.
func (w *UploadWriter) Reset() error {
	w.mu.Lock()
	w.sess = nil
	w.drained = false
	w.mu.Unlock()
	return nil
}

func firstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\r' || s[i] == '\n' {
			return s[:i]
		}
	}
	return s
}
