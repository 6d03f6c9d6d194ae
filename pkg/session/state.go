package session

type State uint8

const (
	State_Uninitialized State = iota
	State_Spectating
	State_AwaitingTransition
	State_Playing
	State_Closed
)

func (s State) String() string {
	switch s {
	case State_Uninitialized:
		return "Uninitialized"
	case State_Spectating:
		return "Spectating"
	case State_AwaitingTransition:
		return "AwaitingTransition"
	case State_Playing:
		return "Playing"
	case State_Closed:
		return "Closed"
	}
	return "Unknown"
}

// Active states have finished the handshake and are not closed.
func (s State) Active() bool {
	return s == State_Spectating || s == State_AwaitingTransition || s == State_Playing
}
