package broadcast

// State is the lifecycle state of a Server.
type State int32

const (
	// StateCreated: constructed, not yet started.
	StateCreated State = iota
	// StateStarting: Start is waiting for the bind result.
	StateStarting
	// StateListening: bound and accepting connections.
	StateListening
	// StateFailed: bind failed or the event loop died.
	StateFailed
	// StateStopped: Stop completed.
	StateStopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarting:
		return "starting"
	case StateListening:
		return "listening"
	case StateFailed:
		return "failed"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Terminal reports whether a server in this state can never listen again.
func (s State) Terminal() bool {
	return s == StateFailed || s == StateStopped
}
