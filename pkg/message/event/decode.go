package event

import (
	"github.com/sessamekesh/snowplowderby-client/pkg/message"
	"github.com/sessamekesh/snowplowderby-client/pkg/message/cursor"
)

// Decode classifies and parses one inbound frame. A nil Event with a nil
// error means the frame should be dropped: empty frame, unknown channel tag
// or an unknown reliable event code.
func Decode(frame []byte) (Event, error) {
	if len(frame) == 0 {
		return nil, nil
	}

	r := cursor.CreateReader("Event", frame)
	tag, _ := r.ReadByte()

	switch message.ChannelFromTag(tag) {
	case message.Channel_Unreliable:
		return decodeSnapshot(r)
	case message.Channel_Reliable:
		code, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		return decodeReliable(code, r)
	}

	return nil, nil
}

func decodeReliable(code uint8, r *cursor.Reader) (Event, error) {
	switch code {
	case CodeHandshake:
		return decodeHandshake(r)
	case CodeTransitionResponse:
		return decodeTransitionResponse(r)
	case CodePlayerJoined:
		return decodePlayerJoined(r)
	case CodePlayerKilled:
		return decodePlayerKilled(r)
	}

	return nil, nil
}

func decodeHandshake(r *cursor.Reader) (Event, error) {
	version, err := r.ReadStringUntilNull()
	if err != nil {
		return nil, err
	}

	wallCount, err := r.ReadShort()
	if err != nil {
		return nil, err
	}
	walls := make([]WallRecord, 0, capacityHint(wallCount, WallRecordSize, r))
	for i := 0; i < int(wallCount); i++ {
		wall, err := readWall(r)
		if err != nil {
			return nil, err
		}
		walls = append(walls, wall)
	}

	players, err := readPlayerList(r)
	if err != nil {
		return nil, err
	}

	return &Handshake{
		Version: version,
		Walls:   walls,
		Players: players,
	}, nil
}

func decodeSnapshot(r *cursor.Reader) (Event, error) {
	count, err := r.ReadShort()
	if err != nil {
		return nil, err
	}

	updates := make([]PlayerUpdate, 0, capacityHint(count, UpdateRecordSize, r))
	for i := 0; i < int(count); i++ {
		update := PlayerUpdate{}
		if update.Id, err = r.ReadShort(); err != nil {
			return nil, err
		}
		if update.X, err = r.ReadFloat(); err != nil {
			return nil, err
		}
		if update.Y, err = r.ReadFloat(); err != nil {
			return nil, err
		}
		if update.Vx, err = r.ReadFloat(); err != nil {
			return nil, err
		}
		if update.Vy, err = r.ReadFloat(); err != nil {
			return nil, err
		}
		updates = append(updates, update)
	}

	return &Snapshot{Updates: updates}, nil
}

func decodeTransitionResponse(r *cursor.Reader) (Event, error) {
	status, err := r.ReadByte()
	if err != nil {
		return nil, err
	}

	response := &TransitionResponse{Status: status}
	if status == StatusAccepted {
		if response.PlayerId, err = r.ReadShort(); err != nil {
			return nil, err
		}
	}

	return response, nil
}

func decodePlayerJoined(r *cursor.Reader) (Event, error) {
	players, err := readPlayerList(r)
	if err != nil {
		return nil, err
	}
	return &PlayerJoined{Players: players}, nil
}

func decodePlayerKilled(r *cursor.Reader) (Event, error) {
	count, err := r.ReadShort()
	if err != nil {
		return nil, err
	}

	kills := make([]KillRecord, 0, capacityHint(count, KillRecordSize, r))
	for i := 0; i < int(count); i++ {
		kill := KillRecord{}
		if kill.KillerId, err = r.ReadShort(); err != nil {
			return nil, err
		}
		if kill.VictimId, err = r.ReadShort(); err != nil {
			return nil, err
		}
		if kill.KillerKills, err = r.ReadShort(); err != nil {
			return nil, err
		}
		kills = append(kills, kill)
	}

	return &PlayerKilled{Kills: kills}, nil
}

func readWall(r *cursor.Reader) (WallRecord, error) {
	var wall WallRecord
	var err error
	if wall.X1, err = r.ReadFloat(); err != nil {
		return wall, err
	}
	if wall.Y1, err = r.ReadFloat(); err != nil {
		return wall, err
	}
	if wall.X2, err = r.ReadFloat(); err != nil {
		return wall, err
	}
	if wall.Y2, err = r.ReadFloat(); err != nil {
		return wall, err
	}
	return wall, nil
}

func readPlayerList(r *cursor.Reader) ([]PlayerRecord, error) {
	count, err := r.ReadShort()
	if err != nil {
		return nil, err
	}

	// Smallest possible player record is 12 bytes (empty username).
	players := make([]PlayerRecord, 0, capacityHint(count, 12, r))
	for i := 0; i < int(count); i++ {
		player, err := readPlayer(r)
		if err != nil {
			return nil, err
		}
		players = append(players, player)
	}
	return players, nil
}

func readPlayer(r *cursor.Reader) (PlayerRecord, error) {
	var p PlayerRecord
	var err error
	if p.Id, err = r.ReadShort(); err != nil {
		return p, err
	}
	if p.Username, err = r.ReadStringUntilNull(); err != nil {
		return p, err
	}
	if p.Class, err = r.ReadByte(); err != nil {
		return p, err
	}
	if p.X, err = r.ReadFloat(); err != nil {
		return p, err
	}
	if p.Y, err = r.ReadFloat(); err != nil {
		return p, err
	}
	return p, nil
}

// capacityHint keeps a hostile count from pre-allocating more records than
// the remaining bytes could possibly hold.
func capacityHint(count uint16, recordSize int, r *cursor.Reader) int {
	most := r.Remaining() / recordSize
	if int(count) < most {
		return int(count)
	}
	return most
}
