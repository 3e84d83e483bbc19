package audio

import (
	"context"
	"io"
	"reflect"
	"testing"

	pulseproto "github.com/jfreymuth/pulse/proto"
	"github.com/stretchr/testify/require"

	"github.com/korvolabs/korvod/internal/element"
)

func TestSelectDeviceFromList(t *testing.T) {
	builtIn := Device{ID: "alsa_input.pci-0000", Description: "Built-in Audio", Available: true, Default: true}
	headset := Device{ID: "alsa_input.usb-sony", Description: "Sony WH-1000XM6", Available: true}
	mutedBuiltIn := builtIn
	mutedBuiltIn.Muted = true
	brokenHeadset := headset
	brokenHeadset.Available = false

	tests := []struct {
		name     string
		devices  []Device
		input    string
		fallback string
		wantID   string
		wantWarn string
		wantErr  string
	}{
		{
			name:    "default input picks the default source",
			devices: []Device{builtIn, headset},
			input:   "default", fallback: "default",
			wantID: builtIn.ID,
		},
		{
			name:    "named input matches by description",
			devices: []Device{builtIn, headset},
			input:   "wh-1000", fallback: "",
			wantID: headset.ID,
		},
		{
			name:    "muted primary falls back to the named device",
			devices: []Device{mutedBuiltIn, headset},
			input:   "built-in", fallback: "sony",
			wantID: headset.ID, wantWarn: "muted",
		},
		{
			name:    "muted default with no alternative fails",
			devices: []Device{mutedBuiltIn},
			input:   "default", fallback: "default",
			wantErr: "muted",
		},
		{
			name:    "unavailable fallback fails",
			devices: []Device{mutedBuiltIn, brokenHeadset},
			input:   "built-in", fallback: "sony",
			wantErr: "unavailable",
		},
		{
			name:    "unknown input fails",
			devices: []Device{builtIn},
			input:   "missing", fallback: "default",
			wantErr: "did not match",
		},
		{
			name:    "empty device list fails",
			devices: nil,
			input:   "default", fallback: "",
			wantErr: "no audio input devices",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			selection, err := selectDeviceFromList(tc.devices, tc.input, tc.fallback)
			if tc.wantErr != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.wantID, selection.Device.ID)
			if tc.wantWarn == "" {
				require.Empty(t, selection.Warning)
				return
			}
			require.Contains(t, selection.Warning, tc.wantWarn)
			require.True(t, selection.Fallback)
		})
	}
}

func TestDeviceMatchesByIDAndDescription(t *testing.T) {
	dev := Device{ID: "alsa_input.usb-elgato", Description: "Elgato Wave 3 Mono"}
	require.True(t, deviceMatches(dev, "elgato"))
	require.True(t, deviceMatches(dev, "wave 3"))
	require.False(t, deviceMatches(dev, "missing"))
	require.False(t, deviceMatches(dev, ""))
}

func TestDiscoveryFailsWhenPulseUnavailable(t *testing.T) {
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")

	_, err := ListDevices(context.Background())
	require.Error(t, err)

	_, err = SelectDevice(context.Background(), "default", "default")
	require.Error(t, err)
}

func TestSourceStateString(t *testing.T) {
	require.Equal(t, "running", sourceStateString(0))
	require.Equal(t, "idle", sourceStateString(1))
	require.Equal(t, "suspended", sourceStateString(2))
	require.Equal(t, "unknown(99)", sourceStateString(99))
}

func TestSourceAvailable(t *testing.T) {
	require.False(t, sourceAvailable(nil))
	require.True(t, sourceAvailable(&pulseproto.GetSourceInfoReply{})) // no ports => available

	available := &pulseproto.GetSourceInfoReply{ActivePortName: "mic"}
	setSourcePorts(t, available, []sourcePort{{name: "mic", available: 2}})
	require.True(t, sourceAvailable(available))

	notAvailable := &pulseproto.GetSourceInfoReply{ActivePortName: "mic"}
	setSourcePorts(t, notAvailable, []sourcePort{{name: "mic", available: 1}})
	require.False(t, sourceAvailable(notAvailable))
}

func TestWriterFuncDelegatesWrite(t *testing.T) {
	var got []byte
	writer := writerFunc(func(b []byte) (int, error) {
		got = append(got, b...)
		return len(b), nil
	})

	n, err := writer.Write([]byte{1, 2, 3})
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, []byte{1, 2, 3}, got)
}

func TestFragmentBytes(t *testing.T) {
	// 20ms of 16kHz mono s16.
	require.Equal(t, 640, fragmentBytes(element.StreamInfo{SampleRate: 16000, Bits: 16, Channels: 1}))
	// 20ms of 44.1kHz stereo s16.
	require.Equal(t, 3528, fragmentBytes(element.StreamInfo{SampleRate: 44100, Bits: 16, Channels: 2}))
}

func TestSilenceSourceYieldsZeroFrames(t *testing.T) {
	src := NewSilenceSource()
	info := element.StreamInfo{SampleRate: 16000, Bits: 16, Channels: 1}
	require.NoError(t, src.Open(info))

	buf := make([]byte, 4096)
	n, err := src.Read(buf)
	require.NoError(t, err)
	require.Equal(t, fragmentBytes(info), n)
	for _, b := range buf[:n] {
		require.Zero(t, b)
	}

	src.Interrupt()
	_, err = src.Read(buf)
	require.ErrorIs(t, err, io.EOF)
	require.NoError(t, src.Close())
}

func TestDiscardSinkCountsAndReclocks(t *testing.T) {
	sink := NewDiscardSink()
	require.NoError(t, sink.Open(element.StreamInfo{SampleRate: 16000, Bits: 16, Channels: 1}))

	n, err := sink.Write(make([]byte, 1000))
	require.NoError(t, err)
	require.Equal(t, 1000, n)
	require.Equal(t, int64(1000), sink.Bytes())

	reclock := element.StreamInfo{SampleRate: 44100, Bits: 16, Channels: 2}
	require.NoError(t, sink.SetClock(reclock))
	require.Equal(t, reclock, sink.Clock())
}

type sourcePort struct {
	name      string
	available uint32
}

func setSourcePorts(t *testing.T, reply *pulseproto.GetSourceInfoReply, ports []sourcePort) {
	t.Helper()

	sliceType := reflect.TypeOf(reply.Ports)
	sliceValue := reflect.MakeSlice(sliceType, len(ports), len(ports))

	for i, port := range ports {
		item := sliceValue.Index(i)
		item.FieldByName("Name").SetString(port.name)
		item.FieldByName("Available").SetUint(uint64(port.available))
	}

	replyValue := reflect.ValueOf(reply).Elem().FieldByName("Ports")
	replyValue.Set(sliceValue)
}
