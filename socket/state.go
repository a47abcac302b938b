package socket

// ReadyState is the connection lifecycle state.
type ReadyState int32

// Ready states, numbered as in the browser socket API.
const (
	Connecting ReadyState = iota
	Open
	Closing
	Closed
)

func (s ReadyState) String() string {
	switch s {
	case Connecting:
		return "CONNECTING"
	case Open:
		return "OPEN"
	case Closing:
		return "CLOSING"
	case Closed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// transitions lists the states reachable from each state.
var transitions = map[ReadyState][]ReadyState{
	Connecting: {Open, Closing},
	Open:       {Closing},
	Closing:    {Closed},
}

// canTransition reports whether moving from s to next is allowed.
func (s ReadyState) canTransition(next ReadyState) bool {
	for _, to := range transitions[s] {
		if to == next {
			return true
		}
	}
	return false
}

// Close status codes.
const (
	CloseNormal        = 1000
	CloseGoingAway     = 1001
	CloseProtocolError = 1002
	CloseNoStatus      = 1005
	CloseAbnormal      = 1006
)

// maxCloseReason is the largest reason a close frame can carry, in bytes.
const maxCloseReason = 123

// validCloseCode reports whether an application may close with code.
func validCloseCode(code int) bool {
	return code == CloseNormal || (code >= 3000 && code <= 4999)
}
