package audio

import (
	"fmt"
	"io"
	"sync"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"

	"github.com/korvolabs/korvod/internal/element"
	"github.com/korvolabs/korvod/internal/ringbuf"
)

// playbackBufferSize absorbs decoder bursts ahead of the Pulse reader.
const playbackBufferSize = 1 << 16

// PulseSink renders PCM to the default Pulse sink. Writes land in a ring
// buffer that the playback stream drains on Pulse's callback thread. A
// sample rate or channel layout change tears the stream down and rebuilds
// it, since Pulse fixes the format at stream creation.
type PulseSink struct {
	mu     sync.Mutex
	client *pulse.Client
	stream *pulse.PlaybackStream
	rb     *ringbuf.Buffer
	clock  element.StreamInfo
	closed bool
}

// NewPulseSink builds an output driver against the default sink.
func NewPulseSink() *PulseSink {
	return &PulseSink{}
}

func (s *PulseSink) Open(info element.StreamInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = false
	return s.openStreamLocked(info)
}

// openStreamLocked connects and starts a playback stream for info. Caller
// holds s.mu.
func (s *PulseSink) openStreamLocked(info element.StreamInfo) error {
	if info.Bits != 16 {
		return fmt.Errorf("playback format s%dle not supported", info.Bits)
	}

	client, err := newClient()
	if err != nil {
		return err
	}

	rb := ringbuf.New(playbackBufferSize)
	opts := []pulse.PlaybackOption{
		pulse.PlaybackSampleRate(info.SampleRate),
		pulse.PlaybackMediaName(playbackMediaName),
	}
	if info.Channels == 2 {
		opts = append(opts, pulse.PlaybackStereo)
	} else {
		opts = append(opts, pulse.PlaybackMono)
	}

	stream, err := client.NewPlayback(pulse.NewReader(rb, pulseproto.FormatInt16LE), opts...)
	if err != nil {
		client.Close()
		return fmt.Errorf("create pulse playback stream: %w", err)
	}

	s.client = client
	s.stream = stream
	s.rb = rb
	s.clock = info
	stream.Start()
	return nil
}

// closeStreamLocked releases the current stream. Caller holds s.mu.
func (s *PulseSink) closeStreamLocked() {
	if s.rb != nil {
		s.rb.Abort(io.EOF)
		s.rb = nil
	}
	if s.stream != nil {
		s.stream.Stop()
		s.stream.Close()
		s.stream = nil
	}
	if s.client != nil {
		s.client.Close()
		s.client = nil
	}
}

// Write blocks until the playback buffer accepts p.
func (s *PulseSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	rb := s.rb
	s.mu.Unlock()
	if rb == nil {
		return 0, io.ErrClosedPipe
	}
	return rb.Write(p)
}

// SetClock reconfigures the device format mid-stream. Buffered samples at
// the old format are dropped.
func (s *PulseSink) SetClock(info element.StreamInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return io.ErrClosedPipe
	}
	if info == s.clock && s.stream != nil {
		return nil
	}
	s.closeStreamLocked()
	return s.openStreamLocked(info)
}

// Interrupt unblocks a pending Write so the element can stop.
func (s *PulseSink) Interrupt() {
	s.mu.Lock()
	rb := s.rb
	s.mu.Unlock()
	if rb != nil {
		rb.Abort(io.ErrClosedPipe)
	}
}

func (s *PulseSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.closeStreamLocked()
	return nil
}
