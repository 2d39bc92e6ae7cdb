package wsmux

// State is a Session Loop stage
type State int

const (
	// StateSniffing reads the first bytes to classify the transport
	StateSniffing State = iota
	// StateTLSHandshaking runs the server-side TLS handshake
	StateTLSHandshaking
	// StateHTTPReading reads one HTTP request
	StateHTTPReading
	// StateWSUpgrading answers the WebSocket upgrade
	StateWSUpgrading
	// StateMessageLoop exchanges messages until termination
	StateMessageLoop
	// StateClosing releases the connection
	StateClosing
	// StateClosed is terminal
	StateClosed
)

var stateNames = [...]string{
	"sniffing", "tls-handshaking", "http-reading", "ws-upgrading", "message-loop", "closing", "closed",
}

func (s State) String() string {
	if s < StateSniffing || s > StateClosed {
		return "invalid"
	}
	return stateNames[s]
}

// validTransition reports whether a session may move from one state to
// another. Transitions only go forward; the message loop may repeat, and any
// state may end the session.
func validTransition(from, to State) bool {
	switch {
	case from == StateClosed:
		return false
	case to == StateClosing || to == StateClosed:
		return to > from || (from == StateClosing && to == StateClosed)
	case from == StateMessageLoop && to == StateMessageLoop:
		return true
	}
	switch from {
	case StateSniffing:
		return to == StateTLSHandshaking || to == StateHTTPReading
	case StateTLSHandshaking:
		return to == StateHTTPReading
	case StateHTTPReading:
		return to == StateWSUpgrading
	case StateWSUpgrading:
		return to == StateMessageLoop
	}
	return false
}
