package fsm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransitionRecordingCycle(t *testing.T) {
	s := StateIdle

	next, err := Transition(s, EventStart)
	require.NoError(t, err)
	require.Equal(t, StateStarting, next)

	next, err = Transition(next, EventStarted)
	require.NoError(t, err)
	require.Equal(t, StateActive, next)

	next, err = Transition(next, EventStop)
	require.NoError(t, err)
	require.Equal(t, StateStopping, next)

	next, err = Transition(next, EventSettled)
	require.NoError(t, err)
	require.Equal(t, StateIdle, next)
}

func TestTransitionFaultAndStopConverge(t *testing.T) {
	for _, event := range []Event{EventStop, EventFault} {
		next, err := Transition(StateActive, event)
		require.NoError(t, err)
		require.Equal(t, StateStopping, next)
	}
}

func TestTransitionStartFailureReturnsToIdle(t *testing.T) {
	next, err := Transition(StateStarting, EventStartFailed)
	require.NoError(t, err)
	require.Equal(t, StateIdle, next)
}

func TestTransitionMatrixInvalidTransitions(t *testing.T) {
	tests := []struct {
		name  string
		state State
		event Event
	}{
		{name: "idle stop invalid", state: StateIdle, event: EventStop},
		{name: "idle fault invalid", state: StateIdle, event: EventFault},
		{name: "idle settled invalid", state: StateIdle, event: EventSettled},
		{name: "starting start invalid", state: StateStarting, event: EventStart},
		{name: "starting stop invalid", state: StateStarting, event: EventStop},
		{name: "active start invalid", state: StateActive, event: EventStart},
		{name: "active started invalid", state: StateActive, event: EventStarted},
		{name: "stopping start invalid", state: StateStopping, event: EventStart},
		{name: "stopping fault invalid", state: StateStopping, event: EventFault},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			next, err := Transition(tc.state, tc.event)
			require.Error(t, err)
			require.Contains(t, err.Error(), "invalid transition")
			require.Equal(t, tc.state, next)
		})
	}
}

func TestTransitionUnknownState(t *testing.T) {
	next, err := Transition(State("mystery"), EventStart)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown state")
	require.Equal(t, State("mystery"), next)
}
