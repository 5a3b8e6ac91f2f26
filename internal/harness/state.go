package harness

// State is a step of the round-trip state machine.
type State string

// Round-trip states, in the order a successful run visits them.
// StateClosed is terminal and is reached on every exit path.
const (
	StateNotStarted       State = "not_started"
	StateSpawned          State = "spawned"
	StateReady            State = "ready"
	StateRequestSent      State = "request_sent"
	StateResponseReceived State = "response_received"
	StateDrained          State = "drained"
	StateDecoded          State = "decoded"
	StateClosed           State = "closed"
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "Not started"
	case StateSpawned:
		return "Spawned"
	case StateReady:
		return "Ready"
	case StateRequestSent:
		return "Request sent"
	case StateResponseReceived:
		return "Response received"
	case StateDrained:
		return "Drained"
	case StateDecoded:
		return "Decoded"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}
