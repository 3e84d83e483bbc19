// Package bus carries status and peripheral events to the control loop.
//
// Publish is safe from any goroutine without external locking; the control
// loop is the single consumer. Events from one producer arrive in the order
// they were published. No total order across producers is guaranteed.
package bus

// Kind identifies the class of event producer.
type Kind int

const (
	KindElement Kind = iota + 1
	KindPeripheral
)

func (k Kind) String() string {
	switch k {
	case KindElement:
		return "element"
	case KindPeripheral:
		return "peripheral"
	default:
		return "unknown"
	}
}

// Command identifies what an event reports.
type Command int

const (
	CommandReportStatus Command = iota + 1
	CommandReportStreamInfo
	CommandButtonPressed
	CommandButtonReleased
)

func (c Command) String() string {
	switch c {
	case CommandReportStatus:
		return "report-status"
	case CommandReportStreamInfo:
		return "report-stream-info"
	case CommandButtonPressed:
		return "button-pressed"
	case CommandButtonReleased:
		return "button-released"
	default:
		return "unknown"
	}
}

// Event is one message on the bus. Payload contents depend on Command.
type Event struct {
	Source   Kind
	SourceID string
	Command  Command
	Payload  any
}

// Bus is a single FIFO queue between many producers and one consumer.
type Bus struct {
	events chan Event
	closed chan struct{}
}

// New returns a Bus buffering up to capacity pending events.
func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = 64
	}
	return &Bus{
		events: make(chan Event, capacity),
		closed: make(chan struct{}),
	}
}

// Publish enqueues ev, blocking while the queue is full. Publishing on a
// closed bus discards the event.
func (b *Bus) Publish(ev Event) {
	select {
	case <-b.closed:
		return
	default:
	}
	select {
	case b.events <- ev:
	case <-b.closed:
	}
}

// Consume blocks until the next event. ok is false once the bus has been
// closed and no event is pending.
func (b *Bus) Consume() (ev Event, ok bool) {
	select {
	case ev = <-b.events:
		return ev, true
	case <-b.closed:
		// Drain anything that raced ahead of Close.
		select {
		case ev = <-b.events:
			return ev, true
		default:
			return Event{}, false
		}
	}
}

// Close releases the consumer. Idempotent is not required: callers close
// exactly once during shutdown.
func (b *Bus) Close() {
	close(b.closed)
}
