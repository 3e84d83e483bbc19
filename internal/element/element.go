// Package element implements the lifecycle engine for one pipeline stage.
//
// An Element owns a processing goroutine driven by its Handler callbacks and
// moves through a fixed state machine: Initialized -> Running -> Paused ->
// Stopped/Finished/Error. Lifecycle operations validate the current state and
// reject invalid transitions. Status changes and stream parameters are
// published as events to an attached bus listener; the element itself never
// mutates anything outside its own ring buffer endpoints.
package element

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/korvolabs/korvod/internal/bus"
	"github.com/korvolabs/korvod/internal/ringbuf"
)

// ErrInvalidTransition rejects an operation attempted from an incompatible
// state. The caller may retry after the element settles.
var ErrInvalidTransition = errors.New("element: invalid state transition")

// StreamInfo carries decoded stream parameters from a decoding stage to the
// downstream writer's clock configuration.
type StreamInfo struct {
	SampleRate int
	Bits       int
	Channels   int
}

// Handler supplies the data-plane callbacks for one element. All three run
// on the element's goroutine. Process returns io.EOF when the stream is
// exhausted; any other error becomes a fault classified via StatusError.
type Handler interface {
	Open(e *Element) error
	Process(e *Element) error
	Close(e *Element) error
}

// Interruptible is implemented by handlers whose Process can block outside
// the element's ring buffers (device reads, network I/O). Interrupt is
// called from the stopping goroutine to unblock a pending Process call.
type Interruptible interface {
	Interrupt()
}

// ClockConfigurable is implemented by handlers that apply clock parameters
// to an underlying device while running.
type ClockConfigurable interface {
	SetClock(StreamInfo) error
}

// Resettable is implemented by handlers carrying state that must be cleared
// before the element can be reused after a stop.
type Resettable interface {
	Reset() error
}

// Config describes one element at creation time.
type Config struct {
	Tag   string
	Role  Role
	URI   string
	Clock StreamInfo
}

// Element is one pipeline stage. It is owned exclusively by its pipeline.
type Element struct {
	cfg     Config
	handler Handler

	mu       sync.Mutex
	cond     *sync.Cond
	state    State
	uri      string
	clock    StreamInfo
	in       *ringbuf.Buffer
	out      *ringbuf.Buffer
	listener *bus.Bus
	stopReq  bool
	doneCh   chan struct{}
	lastErr  error

	bytes atomic.Int64
}

// New creates an element in state Initialized.
func New(cfg Config, handler Handler) *Element {
	e := &Element{
		cfg:     cfg,
		handler: handler,
		state:   StateInitialized,
		uri:     cfg.URI,
		clock:   cfg.Clock,
	}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// Tag returns the element's identity within its pipeline.
func (e *Element) Tag() string { return e.cfg.Tag }

// Role returns the element's pipeline role.
func (e *Element) Role() Role { return e.cfg.Role }

// State returns the current lifecycle state. Never fails.
func (e *Element) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// URI returns the configured endpoint URI.
func (e *Element) URI() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.uri
}

// SetURI configures the endpoint. Only valid while the element is not
// actively processing.
func (e *Element) SetURI(uri string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.Active() {
		return fmt.Errorf("set uri on %s element %q while %s: %w",
			e.cfg.Role, e.cfg.Tag, e.state, ErrInvalidTransition)
	}
	e.uri = uri
	return nil
}

// Clock returns the element's current clock parameters.
func (e *Element) Clock() StreamInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clock
}

// SetClock stores clock parameters and forwards them to the handler when it
// drives a reconfigurable device. Valid in any state: decoded stream
// parameters arrive while the downstream writer is already running.
func (e *Element) SetClock(info StreamInfo) error {
	e.mu.Lock()
	e.clock = info
	handler := e.handler
	e.mu.Unlock()

	if c, ok := handler.(ClockConfigurable); ok {
		return c.SetClock(info)
	}
	return nil
}

// SetInput wires the upstream ring buffer endpoint.
func (e *Element) SetInput(b *ringbuf.Buffer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.in = b
}

// SetOutput wires the downstream ring buffer endpoint.
func (e *Element) SetOutput(b *ringbuf.Buffer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.out = b
}

// Input returns the upstream ring buffer, nil for source elements.
func (e *Element) Input() *ringbuf.Buffer {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.in
}

// Output returns the downstream ring buffer, nil for sink elements.
func (e *Element) Output() *ringbuf.Buffer {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.out
}

// SetListener attaches the event bus that receives this element's reports.
func (e *Element) SetListener(b *bus.Bus) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listener = b
}

// Bytes reports bytes accounted by the handler since the last reset.
func (e *Element) Bytes() int64 { return e.bytes.Load() }

// AddBytes accumulates handler byte accounting.
func (e *Element) AddBytes(n int64) { e.bytes.Add(n) }

// ResetBytes zeroes the byte counter.
func (e *Element) ResetBytes() { e.bytes.Store(0) }

// LastError returns the cause of the most recent fault, if any.
func (e *Element) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// Start launches the processing goroutine. Valid only from Initialized.
func (e *Element) Start() error {
	e.mu.Lock()
	if e.state != StateInitialized {
		defer e.mu.Unlock()
		return fmt.Errorf("start element %q from %s: %w", e.cfg.Tag, e.state, ErrInvalidTransition)
	}
	e.stopReq = false
	e.lastErr = nil
	e.state = StateRunning
	done := make(chan struct{})
	e.doneCh = done
	e.mu.Unlock()

	e.report(StatusStateRunning)
	go e.run(done)
	return nil
}

// Pause suspends processing. Valid only from Running.
func (e *Element) Pause() error {
	e.mu.Lock()
	if e.state != StateRunning {
		defer e.mu.Unlock()
		return fmt.Errorf("pause element %q from %s: %w", e.cfg.Tag, e.state, ErrInvalidTransition)
	}
	e.state = StatePaused
	e.cond.Broadcast()
	e.mu.Unlock()

	e.report(StatusStatePaused)
	return nil
}

// Resume continues processing. Valid only from Paused.
func (e *Element) Resume() error {
	e.mu.Lock()
	if e.state != StatePaused {
		defer e.mu.Unlock()
		return fmt.Errorf("resume element %q from %s: %w", e.cfg.Tag, e.state, ErrInvalidTransition)
	}
	e.state = StateRunning
	e.cond.Broadcast()
	e.mu.Unlock()

	e.report(StatusStateRunning)
	return nil
}

// Stop requests the processing goroutine to exit. A no-op returning success
// when the element is already settled. Stop does not wait; use WaitSettled.
//
// A running terminal writer whose upstream already carries the end-of-stream
// marker is left to drain: it reads the remaining buffered payload, hits EOF
// and finishes through the normal close path. Everything else gets the stop
// request and a handler interrupt.
func (e *Element) Stop() error {
	e.mu.Lock()
	if e.state.Settled() {
		e.mu.Unlock()
		return nil
	}
	if e.state == StateRunning && e.out == nil && e.in != nil && e.in.Done() {
		e.mu.Unlock()
		return nil
	}
	e.stopReq = true
	handler := e.handler
	e.cond.Broadcast()
	e.mu.Unlock()

	if i, ok := handler.(Interruptible); ok {
		i.Interrupt()
	}
	return nil
}

// Interrupt forces the stop request regardless of drain state and interrupts
// the handler. Used when a stop deadline has passed and a draining element
// must be cut loose.
func (e *Element) Interrupt() {
	e.mu.Lock()
	if e.state.Settled() {
		e.mu.Unlock()
		return
	}
	e.stopReq = true
	handler := e.handler
	e.cond.Broadcast()
	e.mu.Unlock()

	if i, ok := handler.(Interruptible); ok {
		i.Interrupt()
	}
}

// WaitSettled blocks until the processing goroutine has exited, up to d.
func (e *Element) WaitSettled(d time.Duration) bool {
	e.mu.Lock()
	done := e.doneCh
	e.mu.Unlock()
	if done == nil {
		return true
	}
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}

// Reset returns a settled element to Initialized for reuse. Idempotent:
// resetting an Initialized element is a no-op returning success.
func (e *Element) Reset() error {
	e.mu.Lock()
	switch e.state {
	case StateInitialized:
		e.mu.Unlock()
		return nil
	case StateStopped, StateFinished, StateError:
	default:
		defer e.mu.Unlock()
		return fmt.Errorf("reset element %q from %s: %w", e.cfg.Tag, e.state, ErrInvalidTransition)
	}
	e.state = StateInitialized
	e.stopReq = false
	e.lastErr = nil
	handler := e.handler
	e.mu.Unlock()

	e.bytes.Store(0)
	if r, ok := handler.(Resettable); ok {
		return r.Reset()
	}
	return nil
}

// Terminate releases the element irreversibly. Valid only once settled.
func (e *Element) Terminate() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.Active() {
		return fmt.Errorf("terminate element %q from %s: %w", e.cfg.Tag, e.state, ErrInvalidTransition)
	}
	e.state = StateUninitialized
	e.in = nil
	e.out = nil
	return nil
}

// ReadInput blocks reading from the upstream ring buffer. io.EOF signals the
// upstream end-of-stream marker has drained.
func (e *Element) ReadInput(p []byte) (int, error) {
	in := e.Input()
	if in == nil {
		return 0, io.EOF
	}
	return in.Read(p)
}

// WriteOutput blocks writing to the downstream ring buffer.
func (e *Element) WriteOutput(p []byte) (int, error) {
	out := e.Output()
	if out == nil {
		return len(p), nil
	}
	return out.Write(p)
}

// ReportStreamInfo records decoded stream parameters and publishes them for
// the control loop to forward downstream.
func (e *Element) ReportStreamInfo(info StreamInfo) {
	e.mu.Lock()
	e.clock = info
	listener := e.listener
	e.mu.Unlock()

	if listener == nil {
		return
	}
	listener.Publish(bus.Event{
		Source:   bus.KindElement,
		SourceID: e.cfg.Tag,
		Command:  bus.CommandReportStreamInfo,
		Payload:  info,
	})
}

// run is the element's processing goroutine.
func (e *Element) run(done chan struct{}) {
	defer close(done)

	if err := e.handler.Open(e); err != nil {
		_ = e.handler.Close(e)
		e.finishOutput()
		e.fail(StatusErrorOpen, err)
		return
	}

	var procErr error
	finished := false
	for {
		if !e.waitRunnable() {
			break
		}
		err := e.handler.Process(e)
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) {
			finished = true
			break
		}
		procErr = err
		break
	}

	closeErr := e.handler.Close(e)
	e.finishOutput()

	switch {
	case procErr != nil && !isTeardown(procErr):
		e.fail(classify(procErr), procErr)
	case closeErr != nil:
		e.fail(StatusErrorClose, closeErr)
	case finished:
		e.setState(StateFinished)
		e.report(StatusStateFinished)
	default:
		e.setState(StateStopped)
		e.report(StatusStateStopped)
	}
}

// waitRunnable blocks while paused and reports whether processing should
// continue; false means a stop was requested.
func (e *Element) waitRunnable() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for e.state == StatePaused && !e.stopReq {
		e.cond.Wait()
	}
	return !e.stopReq
}

// finishOutput marks the downstream end-of-stream so later stages drain and
// settle instead of blocking on an empty buffer.
func (e *Element) finishOutput() {
	if out := e.Output(); out != nil {
		out.SetDone()
	}
}

func (e *Element) setState(s State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = s
}

func (e *Element) fail(status Status, err error) {
	e.mu.Lock()
	e.state = StateError
	e.lastErr = err
	e.mu.Unlock()
	e.report(status)
}

func (e *Element) report(status Status) {
	e.mu.Lock()
	listener := e.listener
	e.mu.Unlock()
	if listener == nil {
		return
	}
	listener.Publish(bus.Event{
		Source:   bus.KindElement,
		SourceID: e.cfg.Tag,
		Command:  bus.CommandReportStatus,
		Payload:  status,
	})
}

// classify maps a handler failure to its fault status.
func classify(err error) Status {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return StatusErrorUnknown
}

// isTeardown reports whether the error came from a ring buffer that was
// finished or aborted underneath the handler during shutdown; these end the
// run loop without raising a fault.
func isTeardown(err error) bool {
	return errors.Is(err, ringbuf.ErrDone) || errors.Is(err, io.ErrClosedPipe)
}
