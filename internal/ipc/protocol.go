package ipc

// Commands accepted over the control socket.
const (
	CommandStatus = "status"
	CommandStart  = "start"
	CommandStop   = "stop"
)

// Request is one newline-delimited JSON command from a client.
type Request struct {
	Command string `json:"command"`
}

// Response reports the daemon state observed while handling a Request.
type Response struct {
	OK      bool   `json:"ok"`
	State   string `json:"state,omitempty"`
	Session string `json:"session,omitempty"`
	Volume  int    `json:"volume"`
	Error   string `json:"error,omitempty"`
}
