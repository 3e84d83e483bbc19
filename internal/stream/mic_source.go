// Package stream provides the concrete pipeline elements: audio sources,
// sinks, the MP3 decoding stage, and the upload writer. Each element adapts
// one I/O concern to the element handler contract; lifecycle, buffering, and
// fault reporting stay in the engine.
package stream

import (
	"io"

	"github.com/korvolabs/korvod/internal/element"
)

// DefaultFrameSize is the per-iteration transfer size used by elements that
// shuttle raw PCM.
const DefaultFrameSize = 2048

// CaptureDriver is the input side of an audio device. Read blocks until a
// frame is available; Interrupt unblocks a pending Read so the element can
// stop promptly. Close must be safe to call after Interrupt.
type CaptureDriver interface {
	Open(info element.StreamInfo) error
	Read(p []byte) (int, error)
	Interrupt()
	Close() error
}

// MicSource captures PCM frames from a device and feeds them downstream.
type MicSource struct {
	driver CaptureDriver
	frame  []byte
}

// NewMicSource wraps a capture driver as an element handler.
func NewMicSource(driver CaptureDriver) *MicSource {
	return &MicSource{driver: driver}
}

func (m *MicSource) Open(e *element.Element) error {
	m.frame = make([]byte, DefaultFrameSize)
	return m.driver.Open(e.Clock())
}

func (m *MicSource) Process(e *element.Element) error {
	n, err := m.driver.Read(m.frame)
	if n > 0 {
		if _, werr := e.WriteOutput(m.frame[:n]); werr != nil {
			return element.Errf(element.StatusErrorOutput, werr)
		}
	}
	if err != nil {
		if err == io.EOF {
			return io.EOF
		}
		return element.Errf(element.StatusErrorInput, err)
	}
	return nil
}

func (m *MicSource) Close(*element.Element) error {
	return m.driver.Close()
}

// Interrupt unblocks a device read pending in Process.
func (m *MicSource) Interrupt() {
	m.driver.Interrupt()
}
