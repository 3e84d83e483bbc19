package audio

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/korvolabs/korvod/internal/element"
)

// SilenceSource is a capture driver that yields zeroed PCM at real-time
// pace. It stands in for hardware in tests and on machines without a Pulse
// server.
type SilenceSource struct {
	mu   sync.Mutex
	info element.StreamInfo
	done chan struct{}
}

// NewSilenceSource builds the hardware-free capture driver.
func NewSilenceSource() *SilenceSource {
	return &SilenceSource{}
}

func (s *SilenceSource) Open(info element.StreamInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.info = info
	s.done = make(chan struct{})
	return nil
}

// Read zero-fills p up to one 20ms frame after a matching real-time delay.
func (s *SilenceSource) Read(p []byte) (int, error) {
	s.mu.Lock()
	done := s.done
	frame := fragmentBytes(s.info)
	s.mu.Unlock()
	if done == nil {
		return 0, io.EOF
	}

	select {
	case <-done:
		return 0, io.EOF
	case <-time.After(20 * time.Millisecond):
	}

	n := min(len(p), frame)
	clear(p[:n])
	return n, nil
}

func (s *SilenceSource) Interrupt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		select {
		case <-s.done:
		default:
			close(s.done)
		}
	}
}

func (s *SilenceSource) Close() error {
	s.Interrupt()
	return nil
}

// DiscardSink is an output driver that swallows PCM, counting bytes.
type DiscardSink struct {
	mu    sync.Mutex
	clock element.StreamInfo
	bytes atomic.Int64
}

// NewDiscardSink builds the hardware-free output driver.
func NewDiscardSink() *DiscardSink {
	return &DiscardSink{}
}

func (d *DiscardSink) Open(info element.StreamInfo) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clock = info
	return nil
}

func (d *DiscardSink) Write(p []byte) (int, error) {
	d.bytes.Add(int64(len(p)))
	return len(p), nil
}

func (d *DiscardSink) SetClock(info element.StreamInfo) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clock = info
	return nil
}

func (d *DiscardSink) Interrupt() {}

func (d *DiscardSink) Close() error { return nil }

// Clock reports the last configured format.
func (d *DiscardSink) Clock() element.StreamInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clock
}

// Bytes reports total PCM swallowed.
func (d *DiscardSink) Bytes() int64 {
	return d.bytes.Load()
}
