package stream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/korvolabs/korvod/internal/element"
)

// HTTPReader fetches the element URI and streams the response body
// downstream. Transient fetch failures are retried by the client before the
// element sees an open fault.
type HTTPReader struct {
	client *retryablehttp.Client
	frame  []byte

	cancel context.CancelFunc
	body   io.ReadCloser
}

// NewHTTPReader builds a reader with bounded retries on connect.
func NewHTTPReader() *HTTPReader {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.RetryWaitMin = 250 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.Logger = nil
	return &HTTPReader{client: client}
}

func (h *HTTPReader) Open(e *element.Element) error {
	ctx, cancel := context.WithCancel(context.Background())
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, e.URI(), nil)
	if err != nil {
		cancel()
		return fmt.Errorf("stream source %q: %w", e.URI(), err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		cancel()
		return fmt.Errorf("fetch %q: %w", e.URI(), err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return fmt.Errorf("fetch %q: unexpected status %s", e.URI(), resp.Status)
	}
	h.cancel = cancel
	h.body = resp.Body
	h.frame = make([]byte, DefaultFrameSize)
	return nil
}

func (h *HTTPReader) Process(e *element.Element) error {
	n, err := h.body.Read(h.frame)
	if n > 0 {
		if _, werr := e.WriteOutput(h.frame[:n]); werr != nil {
			return element.Errf(element.StatusErrorOutput, werr)
		}
		e.AddBytes(int64(n))
	}
	if err != nil {
		if err == io.EOF {
			return io.EOF
		}
		return element.Errf(element.StatusErrorInput, err)
	}
	return nil
}

func (h *HTTPReader) Close(*element.Element) error {
	if h.body != nil {
		h.body.Close()
		h.body = nil
	}
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
	return nil
}

// Interrupt unblocks a body read pending in Process.
func (h *HTTPReader) Interrupt() {
	if h.cancel != nil {
		h.cancel()
	}
}
