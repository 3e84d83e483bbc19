// Package periph feeds peripheral input events into the bus.
//
// The physical ADC button driver lives outside this process; anything able
// to publish button events is a valid peripheral. This package defines the
// logical button identifiers and ships a websocket feed used during
// development and by companion tooling.
package periph

import "github.com/korvolabs/korvod/internal/bus"

// Button is a logical button identifier.
type Button string

const (
	ButtonVolumeUp   Button = "volume-up"
	ButtonVolumeDown Button = "volume-down"
	ButtonRecord     Button = "record"
)

// Known reports whether b is one of the defined buttons.
func (b Button) Known() bool {
	switch b {
	case ButtonVolumeUp, ButtonVolumeDown, ButtonRecord:
		return true
	default:
		return false
	}
}

// Publish emits one button edge onto the bus.
func Publish(b *bus.Bus, button Button, pressed bool) {
	command := bus.CommandButtonReleased
	if pressed {
		command = bus.CommandButtonPressed
	}
	b.Publish(bus.Event{
		Source:   bus.KindPeripheral,
		SourceID: string(button),
		Command:  command,
		Payload:  button,
	})
}
