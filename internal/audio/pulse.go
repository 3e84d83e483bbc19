// Package audio handles device discovery, selection, and the PulseAudio
// capture and playback drivers behind the pipeline's source and sink
// elements.
package audio

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

const (
	appName           = "korvod"
	appIcon           = "audio-input-microphone"
	captureMediaName  = "korvod capture"
	playbackMediaName = "korvod playback"
)

// Device describes one Pulse input source surfaced to korvod.
type Device struct {
	ID          string
	Description string
	State       string
	Available   bool
	Muted       bool
	Default     bool
}

// Selection is the resolved capture source plus optional fallback warning context.
type Selection struct {
	Device   Device
	Warning  string
	Fallback bool
}

func newClient() (*pulse.Client, error) {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName(appName),
		pulse.ClientApplicationIconName(appIcon),
	)
	if err != nil {
		return nil, fmt.Errorf("connect pulse server: %w", err)
	}
	return client, nil
}

// ListDevices returns available Pulse input sources with default/availability metadata.
func ListDevices(_ context.Context) ([]Device, error) {
	client, err := newClient()
	if err != nil {
		return nil, err
	}
	defer client.Close()

	defaultSource, err := client.DefaultSource()
	if err != nil {
		return nil, fmt.Errorf("read default source: %w", err)
	}
	defaultID := defaultSource.ID()

	var sourceInfos pulseproto.GetSourceInfoListReply
	if err := client.RawRequest(&pulseproto.GetSourceInfoList{}, &sourceInfos); err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}

	devices := make([]Device, 0, len(sourceInfos))
	for _, source := range sourceInfos {
		if source == nil {
			continue
		}
		devices = append(devices, Device{
			ID:          source.SourceName,
			Description: source.Device,
			State:       sourceStateString(source.State),
			Available:   sourceAvailable(source),
			Muted:       source.Mute,
			Default:     source.SourceName == defaultID,
		})
	}
	return devices, nil
}

// SelectDevice resolves audio.input/audio.fallback preferences against live devices.
func SelectDevice(ctx context.Context, input string, fallback string) (Selection, error) {
	devices, err := ListDevices(ctx)
	if err != nil {
		return Selection{}, err
	}
	return selectDeviceFromList(devices, input, fallback)
}

// selectDeviceFromList applies selection policy to a pre-fetched device
// list: the configured input first, then the named fallback, then the
// default source. The fallback chain is only walked when the primary exists
// but is muted or unavailable.
func selectDeviceFromList(devices []Device, input string, fallback string) (Selection, error) {
	if len(devices) == 0 {
		return Selection{}, errors.New("no audio input devices found")
	}

	input = normalizeTerm(input)
	fallback = normalizeTerm(fallback)

	primary, err := resolvePrimary(devices, input)
	if err != nil {
		return Selection{}, err
	}

	reason := unusableReason(*primary)
	if reason == "" {
		return Selection{Device: *primary}, nil
	}

	var next *Device
	if fallback != "" {
		if next = findMatch(devices, fallback); next == nil {
			return Selection{}, fmt.Errorf("primary input %q is %s and fallback %q not found", primary.ID, reason, fallback)
		}
	} else {
		if next = findDefault(devices); next == nil {
			return Selection{}, fmt.Errorf("primary input %q is %s and the default source is unavailable", primary.ID, reason)
		}
	}

	if nextReason := unusableReason(*next); nextReason != "" {
		return Selection{}, fmt.Errorf("audio fallback device %q is %s", next.ID, nextReason)
	}

	return Selection{
		Device:   *next,
		Warning:  fmt.Sprintf("audio.input %q is %s; falling back to %q", primary.ID, reason, next.ID),
		Fallback: primary.ID != next.ID,
	}, nil
}

// normalizeTerm lowercases a device search term; "default" means no explicit
// preference and collapses to the empty string.
func normalizeTerm(term string) string {
	term = strings.TrimSpace(strings.ToLower(term))
	if term == "default" {
		return ""
	}
	return term
}

func resolvePrimary(devices []Device, input string) (*Device, error) {
	if input == "" {
		if dev := findDefault(devices); dev != nil {
			return dev, nil
		}
		return nil, errors.New("default audio source is unavailable")
	}
	if dev := findMatch(devices, input); dev != nil {
		return dev, nil
	}
	return nil, fmt.Errorf("audio.input %q did not match any device", input)
}

func findDefault(devices []Device) *Device {
	for i := range devices {
		if devices[i].Default {
			return &devices[i]
		}
	}
	return nil
}

func findMatch(devices []Device, term string) *Device {
	for i := range devices {
		if deviceMatches(devices[i], term) {
			return &devices[i]
		}
	}
	return nil
}

func unusableReason(dev Device) string {
	switch {
	case !dev.Available:
		return "unavailable"
	case dev.Muted:
		return "muted"
	default:
		return ""
	}
}

// deviceMatches reports whether a search term matches a device id or description.
func deviceMatches(device Device, term string) bool {
	if term == "" {
		return false
	}
	id := strings.ToLower(device.ID)
	desc := strings.ToLower(device.Description)
	return strings.Contains(id, term) || strings.Contains(desc, term)
}

// writerFunc adapts a function to io.Writer for pulse.NewWriter.
type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}

// sourceStateString maps Pulse source state constants to human-readable values.
func sourceStateString(state uint32) string {
	switch state {
	case 0:
		return "running"
	case 1:
		return "idle"
	case 2:
		return "suspended"
	default:
		return fmt.Sprintf("unknown(%d)", state)
	}
}

// sourceAvailable maps Pulse source port availability to a simple boolean.
func sourceAvailable(source *pulseproto.GetSourceInfoReply) bool {
	if source == nil {
		return false
	}
	if len(source.Ports) == 0 {
		return true
	}
	for _, port := range source.Ports {
		if port.Name != source.ActivePortName {
			continue
		}
		// PulseAudio values: unknown=0, no=1, yes=2.
		return port.Available == 0 || port.Available == 2
	}
	return true
}
