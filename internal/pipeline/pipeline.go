// Package pipeline chains elements into one logical audio flow.
//
// Compose allocates a ring buffer between each adjacent pair of elements and
// wires stage i's output to stage i+1's input. Lifecycle operations act on
// the whole chain: Run is all-or-nothing with rollback, Stop drains the
// chain within a bounded settle interval, Reset prepares the chain for
// reuse, Terminate releases it for good. The aggregate state is always
// computed from the members, never cached.
package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/korvolabs/korvod/internal/bus"
	"github.com/korvolabs/korvod/internal/element"
	"github.com/korvolabs/korvod/internal/ringbuf"
)

var (
	// ErrStartFailure reports that a member failed to start and the whole
	// chain was rolled back to Stopped.
	ErrStartFailure = errors.New("pipeline: start failure")

	// ErrStopTimeout reports that members did not settle within the stop
	// interval; the pipeline is left in a best-effort stopped state.
	ErrStopTimeout = errors.New("pipeline: stop timeout")
)

// DefaultStopTimeout bounds how long Stop waits for members to settle.
const DefaultStopTimeout = 8 * time.Second

// DefaultBufferSize is the ring buffer capacity between adjacent stages.
const DefaultBufferSize = 16 * 1024

// Option adjusts pipeline construction.
type Option func(*Pipeline)

// WithBufferSize sets the capacity of the ring buffers between stages.
func WithBufferSize(n int) Option {
	return func(p *Pipeline) { p.bufSize = n }
}

// WithStopTimeout sets the bounded settle interval used by Stop.
func WithStopTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.stopTimeout = d }
}

// Pipeline is an ordered chain of elements with exclusive ownership of its
// members and the ring buffers linking them.
type Pipeline struct {
	name        string
	elements    []*element.Element
	buffers     []*ringbuf.Buffer
	bufSize     int
	stopTimeout time.Duration
	terminated  bool
}

// Compose builds a pipeline from elements in flow order.
func Compose(name string, elements []*element.Element, opts ...Option) (*Pipeline, error) {
	if len(elements) == 0 {
		return nil, fmt.Errorf("pipeline %q: no elements", name)
	}
	tags := map[string]struct{}{}
	for _, el := range elements {
		if _, dup := tags[el.Tag()]; dup {
			return nil, fmt.Errorf("pipeline %q: duplicate element tag %q", name, el.Tag())
		}
		tags[el.Tag()] = struct{}{}
	}

	p := &Pipeline{
		name:        name,
		elements:    elements,
		bufSize:     DefaultBufferSize,
		stopTimeout: DefaultStopTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}

	p.buffers = make([]*ringbuf.Buffer, 0, len(elements)-1)
	for i := 0; i < len(elements)-1; i++ {
		rb := ringbuf.New(p.bufSize)
		elements[i].SetOutput(rb)
		elements[i+1].SetInput(rb)
		p.buffers = append(p.buffers, rb)
	}
	return p, nil
}

// Name returns the pipeline identity.
func (p *Pipeline) Name() string { return p.name }

// Elements returns the member chain in flow order.
func (p *Pipeline) Elements() []*element.Element { return p.elements }

// Element finds a member by tag, nil when absent.
func (p *Pipeline) Element(tag string) *element.Element {
	for _, el := range p.elements {
		if el.Tag() == tag {
			return el
		}
	}
	return nil
}

// SetListener attaches the event bus to every member.
func (p *Pipeline) SetListener(b *bus.Bus) {
	for _, el := range p.elements {
		el.SetListener(b)
	}
}

// State reduces member states to an aggregate on demand. Any member in
// Error dominates; a chain is Running only while it has live members.
func (p *Pipeline) State() element.State {
	anyActive := false
	allRunning := len(p.elements) > 0
	allFinished := len(p.elements) > 0
	allInitialized := len(p.elements) > 0
	allUninitialized := len(p.elements) > 0

	for _, el := range p.elements {
		s := el.State()
		if s == element.StateError {
			return element.StateError
		}
		anyActive = anyActive || s.Active()
		allRunning = allRunning && s == element.StateRunning
		allFinished = allFinished && s == element.StateFinished
		allInitialized = allInitialized && s == element.StateInitialized
		allUninitialized = allUninitialized && s == element.StateUninitialized
	}

	switch {
	case allRunning:
		return element.StateRunning
	case anyActive:
		return element.StatePaused
	case allFinished:
		return element.StateFinished
	case allInitialized:
		return element.StateInitialized
	case allUninitialized:
		return element.StateUninitialized
	default:
		return element.StateStopped
	}
}

// Clean reports whether every member is settled without a fault pending,
// i.e. the chain is safe to Run again after a Reset.
func (p *Pipeline) Clean() bool {
	for _, el := range p.elements {
		s := el.State()
		if s.Active() || s == element.StateError {
			return false
		}
	}
	return true
}

// Run starts every member. If any member refuses to start, members already
// started are rolled back to Stopped and ErrStartFailure is returned.
func (p *Pipeline) Run() error {
	if p.terminated {
		return fmt.Errorf("run pipeline %q after terminate: %w", p.name, element.ErrInvalidTransition)
	}

	for i, el := range p.elements {
		if err := el.Start(); err != nil {
			p.rollback(i)
			return fmt.Errorf("%w: pipeline %q element %q: %v", ErrStartFailure, p.name, el.Tag(), err)
		}
	}
	return nil
}

// rollback stops the first n members after a partial start.
func (p *Pipeline) rollback(n int) {
	for _, el := range p.elements[:n] {
		_ = el.Stop()
	}
	for _, rb := range p.buffers {
		rb.Abort(ErrStartFailure)
	}
	for _, el := range p.elements[:n] {
		el.WaitSettled(p.stopTimeout)
	}
}

// Stop drains and settles the chain: the upstream-most ring buffer gets the
// end-of-stream marker, every member receives a stop request (a terminal
// writer with a drained-out upstream instead runs to EOF so it can close out
// its stream), and Stop then waits the bounded settle interval. A no-op
// returning success when the chain is already settled. On timeout the
// members are interrupted, the buffers aborted, and ErrStopTimeout reported
// after a last grace period.
func (p *Pipeline) Stop() error {
	if p.settled() {
		return nil
	}

	if len(p.buffers) > 0 {
		p.buffers[0].SetDone()
	}
	for _, el := range p.elements {
		_ = el.Stop()
	}

	deadline := time.Now().Add(p.stopTimeout)
	if p.waitSettled(deadline) {
		return nil
	}

	// Best effort after the interval is exceeded: cut loose any member still
	// draining, abort the buffers to free blocked members, then report the
	// timeout either way.
	for _, el := range p.elements {
		el.Interrupt()
	}
	for _, rb := range p.buffers {
		rb.Abort(ErrStopTimeout)
	}
	p.waitSettled(time.Now().Add(time.Second))
	return fmt.Errorf("%w: pipeline %q", ErrStopTimeout, p.name)
}

func (p *Pipeline) settled() bool {
	for _, el := range p.elements {
		if el.State().Active() {
			return false
		}
	}
	return true
}

func (p *Pipeline) waitSettled(deadline time.Time) bool {
	for _, el := range p.elements {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			remaining = time.Millisecond
		}
		if !el.WaitSettled(remaining) {
			return false
		}
	}
	return true
}

// Reset clears the ring buffer end-of-stream markers and returns every
// member to Initialized for reuse. Only valid once Stop has settled the
// chain; idempotent when the chain is already Initialized.
func (p *Pipeline) Reset() error {
	if p.terminated {
		return fmt.Errorf("reset pipeline %q after terminate: %w", p.name, element.ErrInvalidTransition)
	}
	if !p.settled() {
		return fmt.Errorf("reset pipeline %q before stop settled: %w", p.name, element.ErrInvalidTransition)
	}

	for _, rb := range p.buffers {
		rb.Reset()
	}
	for _, el := range p.elements {
		if err := el.Reset(); err != nil {
			return fmt.Errorf("reset pipeline %q: %w", p.name, err)
		}
	}
	return nil
}

// Terminate releases every member irreversibly. Only valid on a previously
// stopped pipeline.
func (p *Pipeline) Terminate() error {
	if p.terminated {
		return nil
	}
	if !p.settled() {
		return fmt.Errorf("terminate pipeline %q before stop: %w", p.name, element.ErrInvalidTransition)
	}

	for _, rb := range p.buffers {
		rb.Abort(nil)
	}
	for _, el := range p.elements {
		if err := el.Terminate(); err != nil {
			return fmt.Errorf("terminate pipeline %q: %w", p.name, err)
		}
	}
	p.terminated = true
	return nil
}

// SignalEOS marks end-of-stream on the upstream-most reader's output so the
// chain drains gracefully. Safe to call repeatedly.
func (p *Pipeline) SignalEOS() {
	if len(p.buffers) > 0 {
		p.buffers[0].SetDone()
	}
}
