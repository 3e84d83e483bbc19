package control

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/korvolabs/korvod/internal/bus"
	"github.com/korvolabs/korvod/internal/element"
	"github.com/korvolabs/korvod/internal/periph"
)

type recorder struct {
	mu      sync.Mutex
	buttons []string
	infos   []element.StreamInfo
	faults  []element.Status
}

func (r *recorder) button(b periph.Button, pressed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	edge := string(b) + "/up"
	if pressed {
		edge = string(b) + "/down"
	}
	r.buttons = append(r.buttons, edge)
}

func (r *recorder) info(info element.StreamInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.infos = append(r.infos, info)
}

func (r *recorder) fault(status element.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.faults = append(r.faults, status)
}

func (r *recorder) snapshot() ([]string, []element.StreamInfo, []element.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.buttons...),
		append([]element.StreamInfo(nil), r.infos...),
		append([]element.Status(nil), r.faults...)
}

func runLoop(t *testing.T, wire func(*Loop)) (*bus.Bus, func()) {
	t.Helper()
	b := bus.New(16)
	loop := New(b, slog.New(slog.NewTextHandler(io.Discard, nil)))
	wire(loop)

	done := make(chan struct{})
	go func() {
		defer close(done)
		loop.Run()
	}()
	return b, func() {
		b.Close()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("loop did not exit after bus close")
		}
	}
}

func TestButtonEdgesDispatchInOrder(t *testing.T) {
	rec := &recorder{}
	b, stop := runLoop(t, func(l *Loop) { l.OnButton(rec.button) })

	periph.Publish(b, periph.ButtonRecord, true)
	periph.Publish(b, periph.ButtonRecord, false)
	periph.Publish(b, periph.ButtonVolumeUp, true)
	stop()

	buttons, _, _ := rec.snapshot()
	require.Equal(t, []string{"record/down", "record/up", "volume-up/down"}, buttons)
}

func TestStreamInfoRoutedByTag(t *testing.T) {
	rec := &recorder{}
	b, stop := runLoop(t, func(l *Loop) { l.OnStreamInfo("mp3", rec.info) })

	want := element.StreamInfo{SampleRate: 44100, Bits: 16, Channels: 2}
	b.Publish(bus.Event{Source: bus.KindElement, SourceID: "mp3", Command: bus.CommandReportStreamInfo, Payload: want})
	// Same command from an unregistered tag is dropped silently.
	b.Publish(bus.Event{Source: bus.KindElement, SourceID: "http", Command: bus.CommandReportStreamInfo, Payload: want})
	stop()

	_, infos, _ := rec.snapshot()
	require.Equal(t, []element.StreamInfo{want}, infos)
}

func TestOnlyFaultStatusesReachFaultHandler(t *testing.T) {
	rec := &recorder{}
	b, stop := runLoop(t, func(l *Loop) { l.OnFault("upload", rec.fault) })

	publish := func(id string, status element.Status) {
		b.Publish(bus.Event{Source: bus.KindElement, SourceID: id, Command: bus.CommandReportStatus, Payload: status})
	}
	publish("upload", element.StatusStateRunning)
	publish("upload", element.StatusStateFinished)
	publish("upload", element.StatusErrorOpen)
	publish("mic", element.StatusErrorInput) // unregistered tag
	publish("upload", element.StatusErrorOutput)
	stop()

	_, _, faults := rec.snapshot()
	require.Equal(t, []element.Status{element.StatusErrorOpen, element.StatusErrorOutput}, faults)
}

func TestUnwiredLoopDropsEverything(t *testing.T) {
	b, stop := runLoop(t, func(*Loop) {})
	periph.Publish(b, periph.ButtonRecord, true)
	b.Publish(bus.Event{Source: bus.KindElement, SourceID: "mic", Command: bus.CommandReportStatus, Payload: element.StatusErrorInput})
	stop()
}
