package errors

import "fmt"

type Underrun struct {
	MessageName string
	MsgSize     int
	MinimumSize int
}

func (e *Underrun) Error() string {
	return fmt.Sprintf("Message parsing underran (type=%s), provided %d bytes, needed at least %d", e.MessageName, e.MsgSize, e.MinimumSize)
}

type Overrun struct {
	MessageName string
	BufferSize  int
	WriteEnd    int
}

func (e *Overrun) Error() string {
	return fmt.Sprintf("Message writing overran (type=%s), buffer holds %d bytes, write ends at %d", e.MessageName, e.BufferSize, e.WriteEnd)
}

type ProtocolMismatch struct {
	Context  string
	Expected string
	Actual   string
}

func (e *ProtocolMismatch) Error() string {
	return fmt.Sprintf("Protocol mismatch in %s: expected %s, got %s", e.Context, e.Expected, e.Actual)
}

type DuplicatePlayerId struct {
	Id uint16
}

func (e *DuplicatePlayerId) Error() string {
	return fmt.Sprintf("Player with id %d is already tracked", e.Id)
}

type MissingFieldError struct {
	MessageName string
	FieldName   string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("Missing field %s in message type %s", e.FieldName, e.MessageName)
}

// TransitionRejected is the server's explicit refusal of a become-player request.
type TransitionRejected struct {
	Code   uint8
	Reason string
}

func (e *TransitionRejected) Error() string {
	return fmt.Sprintf("Transition to playing rejected (code=%d): %s", e.Code, e.Reason)
}

type TransitionInProgress struct{}

func (e *TransitionInProgress) Error() string {
	return "A transition to playing is already in progress"
}

type InvalidState struct {
	Operation string
	State     string
}

func (e *InvalidState) Error() string {
	return fmt.Sprintf("Cannot %s while session is %s", e.Operation, e.State)
}

type ConnectionClosed struct {
	Cause error
}

func (e *ConnectionClosed) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("Connection closed: %v", e.Cause)
	}
	return "Connection closed"
}

func (e *ConnectionClosed) Unwrap() error {
	return e.Cause
}
