package event

import (
	"github.com/sessamekesh/snowplowderby-client/pkg/message"
	"github.com/sessamekesh/snowplowderby-client/pkg/message/cursor"
)

// Server-side encoders. The client never sends these; they exist so fake
// arenas and tests can speak the same wire format the decoder expects.

func EncodeHandshake(h *Handshake) ([]byte, error) {
	size := 2 + cursor.StringSize(h.Version) + 2 + WallRecordSize*len(h.Walls) + playerListSize(h.Players)
	w := cursor.CreateWriter("Event::Handshake", size)

	off, err := putHeader(w, CodeHandshake)
	if err != nil {
		return nil, err
	}
	if off, err = w.PutStringWithNull(off, h.Version); err != nil {
		return nil, err
	}
	if off, err = w.PutShort(off, uint16(len(h.Walls))); err != nil {
		return nil, err
	}
	for _, wall := range h.Walls {
		for _, v := range []float32{wall.X1, wall.Y1, wall.X2, wall.Y2} {
			if off, err = w.PutFloat(off, v); err != nil {
				return nil, err
			}
		}
	}
	if _, err = putPlayerList(w, off, h.Players); err != nil {
		return nil, err
	}

	return w.Bytes(), nil
}

func EncodeSnapshot(s *Snapshot) ([]byte, error) {
	w := cursor.CreateWriter("Event::Snapshot", 1+2+UpdateRecordSize*len(s.Updates))

	off, err := w.PutByte(0, message.ChannelUnreliable)
	if err != nil {
		return nil, err
	}
	if off, err = w.PutShort(off, uint16(len(s.Updates))); err != nil {
		return nil, err
	}
	for _, u := range s.Updates {
		if off, err = w.PutShort(off, u.Id); err != nil {
			return nil, err
		}
		for _, v := range []float32{u.X, u.Y, u.Vx, u.Vy} {
			if off, err = w.PutFloat(off, v); err != nil {
				return nil, err
			}
		}
	}

	return w.Bytes(), nil
}

func EncodeTransitionResponse(t *TransitionResponse) ([]byte, error) {
	size := 3
	if t.Accepted() {
		size += 2
	}
	w := cursor.CreateWriter("Event::TransitionResponse", size)

	off, err := putHeader(w, CodeTransitionResponse)
	if err != nil {
		return nil, err
	}
	if off, err = w.PutByte(off, t.Status); err != nil {
		return nil, err
	}
	if t.Accepted() {
		if _, err = w.PutShort(off, t.PlayerId); err != nil {
			return nil, err
		}
	}

	return w.Bytes(), nil
}

func EncodePlayerJoined(j *PlayerJoined) ([]byte, error) {
	w := cursor.CreateWriter("Event::PlayerJoined", 2+playerListSize(j.Players))

	off, err := putHeader(w, CodePlayerJoined)
	if err != nil {
		return nil, err
	}
	if _, err = putPlayerList(w, off, j.Players); err != nil {
		return nil, err
	}

	return w.Bytes(), nil
}

func EncodePlayerKilled(k *PlayerKilled) ([]byte, error) {
	w := cursor.CreateWriter("Event::PlayerKilled", 2+2+KillRecordSize*len(k.Kills))

	off, err := putHeader(w, CodePlayerKilled)
	if err != nil {
		return nil, err
	}
	if off, err = w.PutShort(off, uint16(len(k.Kills))); err != nil {
		return nil, err
	}
	for _, kill := range k.Kills {
		for _, v := range []uint16{kill.KillerId, kill.VictimId, kill.KillerKills} {
			if off, err = w.PutShort(off, v); err != nil {
				return nil, err
			}
		}
	}

	return w.Bytes(), nil
}

func putHeader(w *cursor.Writer, code uint8) (int, error) {
	off, err := w.PutByte(0, message.ChannelReliable)
	if err != nil {
		return off, err
	}
	return w.PutByte(off, code)
}

func playerListSize(players []PlayerRecord) int {
	size := 2
	for _, p := range players {
		size += p.encodedSize()
	}
	return size
}

func putPlayerList(w *cursor.Writer, off int, players []PlayerRecord) (int, error) {
	off, err := w.PutShort(off, uint16(len(players)))
	if err != nil {
		return off, err
	}
	for _, p := range players {
		if off, err = w.PutShort(off, p.Id); err != nil {
			return off, err
		}
		if off, err = w.PutStringWithNull(off, p.Username); err != nil {
			return off, err
		}
		if off, err = w.PutByte(off, p.Class); err != nil {
			return off, err
		}
		if off, err = w.PutFloat(off, p.X); err != nil {
			return off, err
		}
		if off, err = w.PutFloat(off, p.Y); err != nil {
			return off, err
		}
	}
	return off, nil
}
