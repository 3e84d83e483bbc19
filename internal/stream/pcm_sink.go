package stream

import (
	"io"

	"github.com/korvolabs/korvod/internal/element"
)

// OutputDriver is the output side of an audio device. SetClock reconfigures
// the device sample format and may be called while the stream is live, when
// a decoder reports the real parameters mid-stream.
type OutputDriver interface {
	Open(info element.StreamInfo) error
	Write(p []byte) (int, error)
	SetClock(info element.StreamInfo) error
	Interrupt()
	Close() error
}

// PCMSink renders decoded PCM frames to an output device.
type PCMSink struct {
	driver OutputDriver
	frame  []byte
}

// NewPCMSink wraps an output driver as an element handler.
func NewPCMSink(driver OutputDriver) *PCMSink {
	return &PCMSink{driver: driver}
}

func (s *PCMSink) Open(e *element.Element) error {
	s.frame = make([]byte, DefaultFrameSize)
	return s.driver.Open(e.Clock())
}

func (s *PCMSink) Process(e *element.Element) error {
	n, err := e.ReadInput(s.frame)
	if err != nil {
		if err == io.EOF {
			return io.EOF
		}
		return element.Errf(element.StatusErrorInput, err)
	}
	if _, err := s.driver.Write(s.frame[:n]); err != nil {
		return element.Errf(element.StatusErrorOutput, err)
	}
	e.AddBytes(int64(n))
	return nil
}

func (s *PCMSink) Close(*element.Element) error {
	return s.driver.Close()
}

// SetClock forwards decoder-reported stream parameters to the device.
func (s *PCMSink) SetClock(info element.StreamInfo) error {
	return s.driver.SetClock(info)
}

// Interrupt unblocks a device write pending in Process.
func (s *PCMSink) Interrupt() {
	s.driver.Interrupt()
}
