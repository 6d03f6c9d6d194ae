package command

import (
	"encoding/json"
	"fmt"

	"github.com/sessamekesh/snowplowderby-client/pkg/errors"
	"github.com/sessamekesh/snowplowderby-client/pkg/message"
	"github.com/sessamekesh/snowplowderby-client/pkg/message/cursor"
)

const (
	CodeSetInput     uint8 = 0x3a
	CodeBoost        uint8 = 0x52
	CodeBrake        uint8 = 0x32
	CodeAcknowledge  uint8 = 'k'
	CodeBecomePlayer uint8 = 't'
)

// The server multiplies input back up by this factor.
const InputScale float32 = 10

const (
	MovementSize = 10
	BoostSize    = 2
	BrakeSize    = 3
	AckSize      = 2
)

type CommandType uint8

const (
	CommandType_SetInput CommandType = iota
	CommandType_Boost
	CommandType_Brake
	CommandType_Acknowledge
	CommandType_BecomePlayer

	CommandType_NONE
)

func (t CommandType) String() string {
	switch t {
	case CommandType_SetInput:
		return "SetInput"
	case CommandType_Boost:
		return "Boost"
	case CommandType_Brake:
		return "Brake"
	case CommandType_Acknowledge:
		return "Acknowledge"
	case CommandType_BecomePlayer:
		return "BecomePlayer"
	}
	return "NONE"
}

func headerToCommandType(channel message.Channel, code uint8) CommandType {
	switch channel {
	case message.Channel_Unreliable:
		if code == CodeSetInput {
			return CommandType_SetInput
		}
	case message.Channel_Reliable:
		switch code {
		case CodeBoost:
			return CommandType_Boost
		case CodeBrake:
			return CommandType_Brake
		case CodeAcknowledge:
			return CommandType_Acknowledge
		case CodeBecomePlayer:
			return CommandType_BecomePlayer
		}
	}

	return CommandType_NONE
}

type BecomePlayerRequest struct {
	Username    string `json:"username"`
	PlayerClass int    `json:"player_class"`
}

// Command is the decoded form of any frame this client sends.
type Command struct {
	Type CommandType

	// SetInput, already divided by InputScale
	Dx float32
	Dy float32

	// Brake
	Braking bool

	// BecomePlayer
	BecomePlayer *BecomePlayerRequest
}

func EncodeMovement(dx, dy float32) []byte {
	w := cursor.CreateWriter("Command::SetInput", MovementSize)
	// Fixed layout into an exactly-sized buffer, these cannot overrun.
	off, _ := w.PutByte(0, message.ChannelUnreliable)
	off, _ = w.PutByte(off, CodeSetInput)
	off, _ = w.PutFloat(off, dx/InputScale)
	w.PutFloat(off, dy/InputScale)
	return w.Bytes()
}

func EncodeBoost() []byte {
	return []byte{message.ChannelReliable, CodeBoost}
}

func EncodeBrake(braking bool) []byte {
	w := cursor.CreateWriter("Command::Brake", BrakeSize)
	off, _ := w.PutByte(0, message.ChannelReliable)
	off, _ = w.PutByte(off, CodeBrake)
	w.PutBool(off, braking)
	return w.Bytes()
}

func EncodeHandshakeAck() []byte {
	return []byte{message.ChannelReliable, CodeAcknowledge}
}

// EncodeBecomePlayer builds the "rt" + JSON request the server parses with a
// JSON reader. Values are not validated here, the server answers with a
// transition response code instead.
func EncodeBecomePlayer(request BecomePlayerRequest) ([]byte, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, 2+len(body))
	out = append(out, message.ChannelReliable, CodeBecomePlayer)
	return append(out, body...), nil
}

// Parse is the inverse of the Encode* functions. Test servers use it to read
// what a client sent.
func Parse(frame []byte) (*Command, error) {
	r := cursor.CreateReader("Command", frame)

	tag, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	code, err := r.ReadByte()
	if err != nil {
		return nil, err
	}

	cmdType := headerToCommandType(message.ChannelFromTag(tag), code)
	cmd := &Command{Type: cmdType}

	switch cmdType {
	case CommandType_SetInput:
		if cmd.Dx, err = r.ReadFloat(); err != nil {
			return nil, err
		}
		if cmd.Dy, err = r.ReadFloat(); err != nil {
			return nil, err
		}
	case CommandType_Brake:
		if cmd.Braking, err = r.ReadBool(); err != nil {
			return nil, err
		}
	case CommandType_BecomePlayer:
		body := r.Rest()
		if len(body) == 0 {
			return nil, &errors.MissingFieldError{
				MessageName: "Command::BecomePlayer",
				FieldName:   "body",
			}
		}
		request := &BecomePlayerRequest{}
		if err := json.Unmarshal(body, request); err != nil {
			return nil, err
		}
		cmd.BecomePlayer = request
	case CommandType_Boost, CommandType_Acknowledge: // no payload
		break
	default:
		return nil, &errors.ProtocolMismatch{
			Context:  "Command",
			Expected: "known command header",
			Actual:   fmt.Sprintf("tag=%#x code=%#x", tag, code),
		}
	}

	return cmd, nil
}
