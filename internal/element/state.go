package element

// State is the lifecycle state of one processing element.
type State int

const (
	StateUninitialized State = iota
	StateInitialized
	StateRunning
	StatePaused
	StateStopped
	StateFinished
	StateError
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	case StateFinished:
		return "finished"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Active reports whether the element owns a live processing goroutine.
func (s State) Active() bool {
	return s == StateRunning || s == StatePaused
}

// Settled reports whether the element has no processing goroutine and will
// not start one without an explicit operation.
func (s State) Settled() bool {
	return !s.Active()
}

// Role describes an element's position in a pipeline.
type Role int

const (
	RoleReader Role = iota + 1
	RoleFilter
	RoleWriter
)

func (r Role) String() string {
	switch r {
	case RoleReader:
		return "reader"
	case RoleFilter:
		return "filter"
	case RoleWriter:
		return "writer"
	default:
		return "unknown"
	}
}
