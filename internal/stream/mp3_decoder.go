package stream

import (
	"io"

	mp3 "github.com/hajimehoshi/go-mp3"

	"github.com/korvolabs/korvod/internal/element"
)

// MP3Decoder turns an MP3 byte stream from the input buffer into 16-bit
// stereo PCM. The decoder is created on the first Process call, once header
// bytes are available, and the discovered sample rate is reported on the
// event bus so the sink can reconfigure its clock.
type MP3Decoder struct {
	dec   *mp3.Decoder
	frame []byte
}

// NewMP3Decoder builds the decoding stage.
func NewMP3Decoder() *MP3Decoder {
	return &MP3Decoder{}
}

func (d *MP3Decoder) Open(*element.Element) error {
	d.frame = make([]byte, DefaultFrameSize)
	return nil
}

func (d *MP3Decoder) Process(e *element.Element) error {
	if d.dec == nil {
		dec, err := mp3.NewDecoder(e.Input())
		if err != nil {
			if err == io.EOF {
				return io.EOF
			}
			return element.Errf(element.StatusErrorProcess, err)
		}
		d.dec = dec
		e.ReportStreamInfo(element.StreamInfo{
			SampleRate: dec.SampleRate(),
			Bits:       16,
			Channels:   2,
		})
	}

	n, err := d.dec.Read(d.frame)
	if n > 0 {
		if _, werr := e.WriteOutput(d.frame[:n]); werr != nil {
			return element.Errf(element.StatusErrorOutput, werr)
		}
		e.AddBytes(int64(n))
	}
	if err != nil {
		if err == io.EOF {
			return io.EOF
		}
		return element.Errf(element.StatusErrorProcess, err)
	}
	return nil
}

func (d *MP3Decoder) Close(*element.Element) error {
	d.dec = nil
	return nil
}

// Reset discards the per-stream decoder so the element can decode a fresh
// stream after reuse.
func (d *MP3Decoder) Reset() error {
	d.dec = nil
	return nil
}
