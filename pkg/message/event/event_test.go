package event

import (
	goerrs "errors"
	"reflect"
	"testing"

	"github.com/sessamekesh/snowplowderby-client/pkg/errors"
)

func mustEncode(t *testing.T) func([]byte, error) []byte {
	return func(b []byte, err error) []byte {
		t.Helper()
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		return b
	}
}

func TestDecodeHandshake(t *testing.T) {
	want := &Handshake{
		Version: "snowplow-0.3",
		Walls: []WallRecord{
			{X1: -10, Y1: -10, X2: 10, Y2: -10},
			{X1: 10, Y1: -10, X2: 10, Y2: 10},
		},
		Players: []PlayerRecord{
			{Id: 1, Username: "alpha", Class: 0, X: 1, Y: 2},
			{Id: 7, Username: "", Class: 3, X: -4, Y: 8.5},
		},
	}
	frame := mustEncode(t)(EncodeHandshake(want))
	if frame[0] != 'r' || frame[1] != CodeHandshake {
		t.Fatalf("header = %x %x", frame[0], frame[1])
	}

	got, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Decode() = %+v, want %+v", got, want)
	}
}

func TestDecodeSnapshot(t *testing.T) {
	want := &Snapshot{Updates: []PlayerUpdate{
		{Id: 3, X: 1, Y: 2, Vx: 0.5, Vy: -0.5},
		{Id: 1, X: 9, Y: 9},
	}}
	frame := mustEncode(t)(EncodeSnapshot(want))
	if frame[0] != 'u' {
		t.Fatalf("snapshot tag = %x, want 'u'", frame[0])
	}

	got, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Decode() = %+v, want %+v", got, want)
	}
}

func TestDecodeTransitionResponse(t *testing.T) {
	accepted := mustEncode(t)(EncodeTransitionResponse(&TransitionResponse{Status: 0, PlayerId: 42}))
	got, err := Decode(accepted)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	resp, ok := got.(*TransitionResponse)
	if !ok || !resp.Accepted() || resp.PlayerId != 42 {
		t.Fatalf("Decode() = %+v, want accepted id 42", got)
	}

	// The original server pads rejections with two zero bytes.
	got, err = Decode([]byte{'r', 0x01, 3, 0, 0})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	resp, ok = got.(*TransitionResponse)
	if !ok || resp.Accepted() || resp.Status != StatusUsernameTooLong {
		t.Fatalf("Decode() = %+v, want status 3", got)
	}
}

func TestRejectionReasons(t *testing.T) {
	want := map[uint8]string{
		1: "malformed request",
		2: "username already taken",
		3: "username too long",
		4: "username empty",
		9: "unknown rejection code 9",
	}
	for code, reason := range want {
		if got := RejectionReason(code); got != reason {
			t.Errorf("RejectionReason(%d) = %q, want %q", code, got, reason)
		}
	}
}

func TestDecodePlayerJoinedAndKilled(t *testing.T) {
	joined := &PlayerJoined{Players: []PlayerRecord{{Id: 5, Username: "plow", Class: 1, X: 3, Y: 4}}}
	got, err := Decode(mustEncode(t)(EncodePlayerJoined(joined)))
	if err != nil {
		t.Fatalf("Decode joined: %v", err)
	}
	if !reflect.DeepEqual(got, joined) {
		t.Fatalf("Decode() = %+v, want %+v", got, joined)
	}

	killed := &PlayerKilled{Kills: []KillRecord{{KillerId: 2, VictimId: 5, KillerKills: 7}}}
	got, err = Decode(mustEncode(t)(EncodePlayerKilled(killed)))
	if err != nil {
		t.Fatalf("Decode killed: %v", err)
	}
	if !reflect.DeepEqual(got, killed) {
		t.Fatalf("Decode() = %+v, want %+v", got, killed)
	}
}

func TestDecodeDropsUnknownFrames(t *testing.T) {
	frames := map[string][]byte{
		"empty":        {},
		"unknown tag":  {'x', 0x41, 0, 0},
		"unknown code": {'r', 0x46, 1, 2, 3},
		"high scores":  {'r', 0x91},
		"zero tag":     {0},
	}
	for name, frame := range frames {
		t.Run(name, func(t *testing.T) {
			got, err := Decode(frame)
			if err != nil || got != nil {
				t.Fatalf("Decode(%v) = %v, %v; want nil, nil", frame, got, err)
			}
		})
	}
}

func TestDecodeTruncatedFramesUnderrun(t *testing.T) {
	handshake := mustEncode(t)(EncodeHandshake(&Handshake{
		Version: "v",
		Walls:   []WallRecord{{X1: 1}},
		Players: []PlayerRecord{{Id: 1, Username: "a"}},
	}))
	snapshot := mustEncode(t)(EncodeSnapshot(&Snapshot{Updates: []PlayerUpdate{{Id: 1}}}))
	kills := mustEncode(t)(EncodePlayerKilled(&PlayerKilled{Kills: []KillRecord{{KillerId: 1}}}))

	frames := map[string][]byte{
		"reliable without code": {'r'},
		"handshake":             handshake[:len(handshake)-1],
		"snapshot":              snapshot[:len(snapshot)-3],
		"kills":                 kills[:len(kills)-1],
		"accepted without id":   {'r', 0x01, 0, 42},
		"hostile count":         {'u', 0xff, 0xff},
	}
	for name, frame := range frames {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(frame)
			var underrun *errors.Underrun
			if !goerrs.As(err, &underrun) {
				t.Fatalf("Decode error = %v, want *errors.Underrun", err)
			}
		})
	}
}

func TestEventNames(t *testing.T) {
	if Name(nil) != "none" {
		t.Errorf("Name(nil) = %q", Name(nil))
	}
	if Name(&PlayerKilled{}) != "PlayerKilled" {
		t.Errorf("Name(PlayerKilled) = %q", Name(&PlayerKilled{}))
	}
}
