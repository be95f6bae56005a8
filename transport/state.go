package transport

// State describes where a run's delivery channel currently sits. Transitions
// are one way apart from the reconnect loop: connecting or open can fall back
// to reconnecting, reconnecting either reopens or degrades to polling, and
// every path ends in closed.
type State string

const (
	StateConnecting   State = "connecting"
	StateOpen         State = "open"
	StateReconnecting State = "reconnecting"
	StatePolling      State = "polling"
	StateClosed       State = "closed"
)
