package element

// Status is the payload of a report-status event. State reports mirror the
// lifecycle; error statuses identify which phase of processing failed.
type Status int

const (
	StatusStateRunning Status = iota + 1
	StatusStatePaused
	StatusStateStopped
	StatusStateFinished
	StatusErrorOpen
	StatusErrorInput
	StatusErrorProcess
	StatusErrorOutput
	StatusErrorClose
	StatusErrorTimeout
	StatusErrorUnknown
)

func (s Status) String() string {
	switch s {
	case StatusStateRunning:
		return "running"
	case StatusStatePaused:
		return "paused"
	case StatusStateStopped:
		return "stopped"
	case StatusStateFinished:
		return "finished"
	case StatusErrorOpen:
		return "error-open"
	case StatusErrorInput:
		return "error-input"
	case StatusErrorProcess:
		return "error-process"
	case StatusErrorOutput:
		return "error-output"
	case StatusErrorClose:
		return "error-close"
	case StatusErrorTimeout:
		return "error-timeout"
	case StatusErrorUnknown:
		return "error-unknown"
	default:
		return "unknown"
	}
}

// Fault reports whether the status is one of the terminal error codes.
func (s Status) Fault() bool {
	switch s {
	case StatusErrorOpen, StatusErrorInput, StatusErrorProcess,
		StatusErrorOutput, StatusErrorClose, StatusErrorTimeout,
		StatusErrorUnknown:
		return true
	default:
		return false
	}
}

// StatusError attaches a fault status to the underlying cause so the run
// loop can classify handler failures.
type StatusError struct {
	Status Status
	Err    error
}

func (e *StatusError) Error() string {
	if e.Err == nil {
		return e.Status.String()
	}
	return e.Status.String() + ": " + e.Err.Error()
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// Errf wraps err with the given fault status.
func Errf(status Status, err error) error {
	if err == nil {
		return nil
	}
	return &StatusError{Status: status, Err: err}
}
