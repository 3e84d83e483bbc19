// Package fsm defines the recording session lifecycle transition table.
package fsm

import "fmt"

type State string

type Event string

const (
	StateIdle     State = "idle"
	StateStarting State = "starting"
	StateActive   State = "active"
	StateStopping State = "stopping"
)

const (
	EventStart       Event = "start"
	EventStarted     Event = "started"
	EventStartFailed Event = "start-failed"
	EventStop        Event = "stop"
	EventFault       Event = "fault"
	EventSettled     Event = "settled"
)

// Transition returns the state reached from current by event. An event that
// is not legal in the current state returns current unchanged with an error.
func Transition(current State, event Event) (State, error) {
	switch current {
	case StateIdle:
		switch event {
		case EventStart:
			return StateStarting, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateStarting:
		switch event {
		case EventStarted:
			return StateActive, nil
		case EventStartFailed:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateActive:
		switch event {
		case EventStop, EventFault:
			return StateStopping, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateStopping:
		switch event {
		case EventSettled:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
