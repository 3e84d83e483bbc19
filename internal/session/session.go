// Package session drives the recording lifecycle over the capture pipeline.
//
// A single Recorder instance exists per process and is mutated only from the
// control loop goroutine; that serialization is what removes races between
// button input and fault detection. Every fault and every stop request
// converge on one recovery action, the safe reset, which is idempotent by
// construction: a duplicate trigger racing in the same dispatch cycle finds
// the session already Idle and is ignored.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"syscall"

	"github.com/google/uuid"

	"github.com/korvolabs/korvod/internal/element"
	"github.com/korvolabs/korvod/internal/fsm"
	"github.com/korvolabs/korvod/internal/pipeline"
)

// State is the recording session lifecycle state.
type State = fsm.State

const (
	StateIdle     = fsm.StateIdle
	StateStarting = fsm.StateStarting
	StateActive   = fsm.StateActive
	StateStopping = fsm.StateStopping
)

// Recorder is the state machine over the capture pipeline.
type Recorder struct {
	logger    *slog.Logger
	pipe      *pipeline.Pipeline
	writer    *element.Element
	targetURI string

	mu    sync.RWMutex
	state State
	id    uuid.UUID
}

// NewRecorder builds the session controller for a capture pipeline whose
// final element is the upload writer.
func NewRecorder(logger *slog.Logger, pipe *pipeline.Pipeline, targetURI string) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	members := pipe.Elements()
	return &Recorder{
		logger:    logger,
		pipe:      pipe,
		writer:    members[len(members)-1],
		targetURI: targetURI,
	}
}

// State returns a snapshot of the session state. Safe from any goroutine.
func (r *Recorder) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.state == "" {
		return StateIdle
	}
	return r.state
}

// ID returns the identifier of the current or most recent session.
func (r *Recorder) ID() uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.id
}

// Bytes reports upload bytes accumulated by the writer element during the
// current session.
func (r *Recorder) Bytes() int64 {
	return r.writer.Bytes()
}

// advance applies event to the lifecycle transition table. An event that is
// not legal in the current state leaves it untouched and reports false.
func (r *Recorder) advance(event fsm.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	current := r.state
	if current == "" {
		current = StateIdle
	}
	next, err := fsm.Transition(current, event)
	if err != nil {
		return false
	}
	r.state = next
	return true
}

// HandleStartRequest starts a recording session. A start request while the
// session is not Idle is ignored: the device supports at most one active
// session. On failure the session returns to Idle and the error surfaces to
// the caller.
func (r *Recorder) HandleStartRequest() error {
	if !r.advance(fsm.EventStart) {
		r.logger.Info("start request ignored", "state", string(r.State()))
		return nil
	}

	// Running the engine over an already-active chain is undefined; settle
	// it first when any member is live or faulted.
	if !r.pipe.Clean() {
		r.logger.Warn("capture pipeline not settled before start, resetting")
		r.safeReset()
	} else if r.pipe.State() != element.StateInitialized {
		if err := r.pipe.Reset(); err != nil {
			r.advance(fsm.EventStartFailed)
			return fmt.Errorf("prepare capture pipeline: %w", err)
		}
	}

	if err := r.writer.SetURI(r.targetURI); err != nil {
		r.advance(fsm.EventStartFailed)
		return fmt.Errorf("set upload target: %w", err)
	}

	if err := r.pipe.Run(); err != nil {
		r.advance(fsm.EventStartFailed)
		return fmt.Errorf("start capture pipeline: %w", err)
	}

	r.advance(fsm.EventStarted)
	r.mu.Lock()
	r.id = uuid.New()
	id := r.id
	r.mu.Unlock()

	r.logger.Info("recording started",
		"session_id", id.String(),
		"target", r.targetURI,
	)
	return nil
}

// HandleStopRequest ends the active session. Ignored unless Active.
func (r *Recorder) HandleStopRequest() {
	if !r.advance(fsm.EventStop) {
		return
	}
	r.safeReset()
	r.advance(fsm.EventSettled)

	r.logger.Info("recording stopped",
		"session_id", r.ID().String(),
	)
}

// HandleFault applies the uniform recovery action to an element fault
// reported while recording. Only the open sub-kind carries a differentiated
// diagnostic; recovery is identical for every sub-kind.
func (r *Recorder) HandleFault(status element.Status) {
	if !r.advance(fsm.EventFault) {
		return
	}

	if status == element.StatusErrorOpen {
		err := r.writer.LastError()
		attrs := []any{
			"session_id", r.ID().String(),
			"target", r.targetURI,
		}
		if err != nil && errors.Is(err, syscall.ECONNREFUSED) {
			attrs = append(attrs, "hint", "connection refused; check the upload server")
		}
		r.logger.Error("upload connection failed", attrs...)
	} else {
		r.logger.Error("recording fault",
			"session_id", r.ID().String(),
			"status", status.String(),
		)
	}

	r.safeReset()
	r.advance(fsm.EventSettled)
}

// safeReset is the uniform recovery action: signal end-of-stream upstream,
// stop the chain, and reset it for reuse unless it had already settled
// cleanly. Idempotent: stop and reset are both no-ops on a settled chain.
func (r *Recorder) safeReset() {
	wasSettled := r.pipe.Clean()
	if wasSettled && r.pipe.State() == element.StateInitialized {
		return
	}

	r.pipe.SignalEOS()
	if err := r.pipe.Stop(); err != nil {
		r.logger.Warn("capture pipeline stop", "error", err.Error())
	}
	if wasSettled {
		return
	}
	if err := r.pipe.Reset(); err != nil {
		r.logger.Warn("capture pipeline reset", "error", err.Error())
	}
}
