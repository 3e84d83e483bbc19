// Package control runs the single-consumer dispatch loop over the event bus.
//
// Every pipeline lifecycle call and every session mutation happens on this
// loop's goroutine: serialization by construction removes the need for locks
// around session state. Events that match no registered handler are dropped
// silently; that is a design choice, not an error path.
package control

import (
	"log/slog"

	"github.com/korvolabs/korvod/internal/bus"
	"github.com/korvolabs/korvod/internal/element"
	"github.com/korvolabs/korvod/internal/periph"
)

// ButtonFunc handles one peripheral button edge.
type ButtonFunc func(button periph.Button, pressed bool)

// StreamInfoFunc handles decoded stream parameters from one element.
type StreamInfoFunc func(info element.StreamInfo)

// FaultFunc handles a terminal error status from one element.
type FaultFunc func(status element.Status)

// Loop dispatches bus events to a fixed set of handlers keyed on the
// (source kind, source id, command) tuple.
type Loop struct {
	bus    *bus.Bus
	logger *slog.Logger

	onButton   ButtonFunc
	streamInfo map[string]StreamInfoFunc
	faults     map[string]FaultFunc
}

// New creates an empty dispatch loop over b.
func New(b *bus.Bus, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		bus:        b,
		logger:     logger,
		streamInfo: map[string]StreamInfoFunc{},
		faults:     map[string]FaultFunc{},
	}
}

// OnButton registers the handler for peripheral button events.
func (l *Loop) OnButton(fn ButtonFunc) {
	l.onButton = fn
}

// OnStreamInfo registers the stream-info handler for one element tag.
func (l *Loop) OnStreamInfo(sourceID string, fn StreamInfoFunc) {
	l.streamInfo[sourceID] = fn
}

// OnFault registers the fault handler for one element tag. Only statuses in
// the terminal error set reach the handler.
func (l *Loop) OnFault(sourceID string, fn FaultFunc) {
	l.faults[sourceID] = fn
}

// Run consumes events until the bus closes. The wait between events is
// unbounded; shutdown is driven externally by closing the bus.
func (l *Loop) Run() {
	for {
		ev, ok := l.bus.Consume()
		if !ok {
			return
		}
		l.dispatch(ev)
	}
}

func (l *Loop) dispatch(ev bus.Event) {
	switch ev.Source {
	case bus.KindPeripheral:
		l.dispatchPeripheral(ev)
	case bus.KindElement:
		l.dispatchElement(ev)
	}
}

func (l *Loop) dispatchPeripheral(ev bus.Event) {
	if l.onButton == nil {
		return
	}
	button, ok := ev.Payload.(periph.Button)
	if !ok {
		return
	}
	switch ev.Command {
	case bus.CommandButtonPressed:
		l.onButton(button, true)
	case bus.CommandButtonReleased:
		l.onButton(button, false)
	}
}

func (l *Loop) dispatchElement(ev bus.Event) {
	switch ev.Command {
	case bus.CommandReportStreamInfo:
		fn := l.streamInfo[ev.SourceID]
		info, ok := ev.Payload.(element.StreamInfo)
		if fn == nil || !ok {
			return
		}
		l.logger.Info("stream info reported",
			"element", ev.SourceID,
			"sample_rate", info.SampleRate,
			"bits", info.Bits,
			"channels", info.Channels,
		)
		fn(info)
	case bus.CommandReportStatus:
		status, ok := ev.Payload.(element.Status)
		if !ok || !status.Fault() {
			return
		}
		fn := l.faults[ev.SourceID]
		if fn == nil {
			return
		}
		l.logger.Error("element fault reported",
			"element", ev.SourceID,
			"status", status.String(),
		)
		fn(status)
	}
}
