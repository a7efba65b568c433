package cluster

// State is a worker's lifecycle state, spec.md §3/§4.8.
type State int

const (
	StateNone State = iota
	StateOnline
	StateListening
	StateDisconnected
	StateDead
)

func (s State) String() string {
	switch s {
	case StateNone:
		return "none"
	case StateOnline:
		return "online"
	case StateListening:
		return "listening"
	case StateDisconnected:
		return "disconnected"
	case StateDead:
		return "dead"
	default:
		return "unknown"
	}
}
