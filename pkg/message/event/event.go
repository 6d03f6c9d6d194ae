package event

import "fmt"

// Reliable event codes, second byte of a reliable frame.
const (
	CodeTransitionResponse uint8 = 0x01
	CodeHandshake          uint8 = 0x05
	CodePlayerJoined       uint8 = 0x41
	CodePlayerKilled       uint8 = 0x90
)

const (
	WallRecordSize   = 16
	UpdateRecordSize = 18
	KillRecordSize   = 6
)

type WallRecord struct {
	X1, Y1 float32
	X2, Y2 float32
}

type PlayerRecord struct {
	Id       uint16
	Username string
	Class    uint8
	X, Y     float32
}

func (p PlayerRecord) encodedSize() int {
	return 2 + len(p.Username) + 1 + 1 + 4 + 4
}

type PlayerUpdate struct {
	Id     uint16
	X, Y   float32
	Vx, Vy float32
}

type KillRecord struct {
	KillerId    uint16
	VictimId    uint16
	KillerKills uint16
}

// Event is one of *Handshake, *Snapshot, *TransitionResponse, *PlayerJoined
// or *PlayerKilled.
type Event interface {
	eventName() string
}

type Handshake struct {
	Version string
	Walls   []WallRecord
	Players []PlayerRecord
}

type Snapshot struct {
	Updates []PlayerUpdate
}

type TransitionResponse struct {
	Status   uint8
	PlayerId uint16
}

type PlayerJoined struct {
	Players []PlayerRecord
}

type PlayerKilled struct {
	Kills []KillRecord
}

func (*Handshake) eventName() string          { return "Handshake" }
func (*Snapshot) eventName() string           { return "Snapshot" }
func (*TransitionResponse) eventName() string { return "TransitionResponse" }
func (*PlayerJoined) eventName() string       { return "PlayerJoined" }
func (*PlayerKilled) eventName() string       { return "PlayerKilled" }

// Name is the event's type name, for logs and metric labels.
func Name(e Event) string {
	if e == nil {
		return "none"
	}
	return e.eventName()
}

const (
	StatusAccepted         uint8 = 0
	StatusMalformedRequest uint8 = 1
	StatusUsernameTaken    uint8 = 2
	StatusUsernameTooLong  uint8 = 3
	StatusUsernameEmpty    uint8 = 4
)

func (t *TransitionResponse) Accepted() bool {
	return t.Status == StatusAccepted
}

// RejectionReason maps a non-zero transition status to its fixed message.
func RejectionReason(status uint8) string {
	switch status {
	case StatusMalformedRequest:
		return "malformed request"
	case StatusUsernameTaken:
		return "username already taken"
	case StatusUsernameTooLong:
		return "username too long"
	case StatusUsernameEmpty:
		return "username empty"
	}
	return fmt.Sprintf("unknown rejection code %d", status)
}
