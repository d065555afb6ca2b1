package server

// State is the server loop's position in its run cycle.
type State string

const (
	StateIdle        State = "idle"
	StateWaiting     State = "waiting"
	StateDispatching State = "dispatching"
	StateStopped     State = "stopped"
)

// Stop reasons recorded when a loop leaves Run.
const (
	StopShutdown      = "shutdown"
	StopPollFailed    = "poll_failed"
	StopReceiveFailed = "receive_failed"
	StopSendFailed    = "send_failed"
	StopForwardFailed = "forward_failed"
)
