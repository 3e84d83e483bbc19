package audio

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"

	"github.com/korvolabs/korvod/internal/element"
	"github.com/korvolabs/korvod/internal/ringbuf"
)

// captureBufferSize holds roughly one second of 16kHz mono s16 between the
// Pulse callback thread and the element goroutine.
const captureBufferSize = 1 << 16

// fragmentBytes is the Pulse fragment size for a 20ms slice of the stream.
func fragmentBytes(info element.StreamInfo) int {
	return info.SampleRate * info.Channels * (info.Bits / 8) / 50
}

// PulseSource captures PCM from one Pulse input source. The record stream
// pushes frames into a ring buffer on Pulse's callback thread; Read drains
// it from the element goroutine.
type PulseSource struct {
	input    string
	fallback string

	mu     sync.Mutex
	client *pulse.Client
	stream *pulse.RecordStream
	rb     *ringbuf.Buffer
	device Device
	closed bool
}

// NewPulseSource builds a capture driver resolving the given input and
// fallback device preferences at open time.
func NewPulseSource(input, fallback string) *PulseSource {
	return &PulseSource{input: input, fallback: fallback}
}

// Device returns capture metadata for logging and diagnostics. Valid after
// Open.
func (s *PulseSource) Device() Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.device
}

func (s *PulseSource) Open(info element.StreamInfo) error {
	if info.Bits != 16 {
		return fmt.Errorf("capture format s%dle not supported", info.Bits)
	}

	selection, err := SelectDevice(context.Background(), s.input, s.fallback)
	if err != nil {
		return err
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	source, err := client.SourceByID(selection.Device.ID)
	if err != nil {
		client.Close()
		return fmt.Errorf("resolve source %q: %w", selection.Device.ID, err)
	}

	rb := ringbuf.New(captureBufferSize)
	writer := pulse.NewWriter(writerFunc(func(b []byte) (int, error) {
		if len(b) == 0 {
			return 0, nil
		}
		n, err := rb.Write(b)
		if err != nil {
			return n, io.EOF
		}
		return n, nil
	}), pulseproto.FormatInt16LE)

	opts := []pulse.RecordOption{
		pulse.RecordSource(source),
		pulse.RecordSampleRate(info.SampleRate),
		pulse.RecordBufferFragmentSize(uint32(fragmentBytes(info))),
		pulse.RecordMediaName(captureMediaName),
	}
	if info.Channels == 2 {
		opts = append(opts, pulse.RecordStereo)
	} else {
		opts = append(opts, pulse.RecordMono)
	}

	stream, err := client.NewRecord(writer, opts...)
	if err != nil {
		client.Close()
		return fmt.Errorf("create pulse record stream: %w", err)
	}

	s.mu.Lock()
	s.client = client
	s.stream = stream
	s.rb = rb
	s.device = selection.Device
	s.closed = false
	s.mu.Unlock()

	stream.Start()
	return nil
}

// Read blocks until captured PCM is available.
func (s *PulseSource) Read(p []byte) (int, error) {
	s.mu.Lock()
	rb := s.rb
	s.mu.Unlock()
	if rb == nil {
		return 0, io.EOF
	}
	return rb.Read(p)
}

// Interrupt unblocks a pending Read so the element can stop.
func (s *PulseSource) Interrupt() {
	s.mu.Lock()
	rb := s.rb
	s.mu.Unlock()
	if rb != nil {
		rb.Abort(io.EOF)
	}
}

func (s *PulseSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	if s.stream != nil {
		s.stream.Stop()
		s.stream.Close()
		s.stream = nil
	}
	if s.client != nil {
		s.client.Close()
		s.client = nil
	}
	if s.rb != nil {
		s.rb.Abort(io.EOF)
		s.rb = nil
	}
	return nil
}
