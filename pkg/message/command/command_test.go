package command

import (
	"bytes"
	"math"
	"testing"

	"github.com/sessamekesh/snowplowderby-client/pkg/message/cursor"
)

func TestEncodeMovementLayout(t *testing.T) {
	frame := EncodeMovement(25, -5)
	if len(frame) != MovementSize {
		t.Fatalf("len = %d, want %d", len(frame), MovementSize)
	}
	if frame[0] != 'u' || frame[1] != 0x3a {
		t.Fatalf("header = %x %x, want 75 3a", frame[0], frame[1])
	}

	r := cursor.CreateReader("movement", frame[2:])
	dx, _ := r.ReadFloat()
	dy, _ := r.ReadFloat()
	if dx != 2.5 || dy != -0.5 {
		t.Fatalf("scaled input = (%v, %v), want (2.5, -0.5)", dx, dy)
	}
}

func TestMovementRoundTrip(t *testing.T) {
	inputs := [][2]float32{{0, 0}, {1, 1}, {-123.25, 42.5}, {0.001, -9999}}
	for _, in := range inputs {
		cmd, err := Parse(EncodeMovement(in[0], in[1]))
		if err != nil {
			t.Fatalf("Parse(%v): %v", in, err)
		}
		if cmd.Type != CommandType_SetInput {
			t.Fatalf("Type = %v, want SetInput", cmd.Type)
		}
		gotDx := cmd.Dx * InputScale
		gotDy := cmd.Dy * InputScale
		if !closeEnough(gotDx, in[0]) || !closeEnough(gotDy, in[1]) {
			t.Errorf("round trip (%v, %v) -> (%v, %v)", in[0], in[1], gotDx, gotDy)
		}
	}
}

func closeEnough(a, b float32) bool {
	diff := math.Abs(float64(a - b))
	scale := math.Max(1, math.Abs(float64(b)))
	return diff <= 1e-5*scale
}

func TestEncodeBoostAndBrake(t *testing.T) {
	if got := EncodeBoost(); !bytes.Equal(got, []byte{'r', 0x52}) {
		t.Errorf("EncodeBoost() = %v", got)
	}
	if got := EncodeBrake(true); !bytes.Equal(got, []byte{'r', 0x32, 1}) {
		t.Errorf("EncodeBrake(true) = %v", got)
	}
	if got := EncodeBrake(false); !bytes.Equal(got, []byte{'r', 0x32, 0}) {
		t.Errorf("EncodeBrake(false) = %v", got)
	}
	if got := EncodeHandshakeAck(); !bytes.Equal(got, []byte("rk")) {
		t.Errorf("EncodeHandshakeAck() = %q", got)
	}
}

func TestBecomePlayerRoundTrip(t *testing.T) {
	frame, err := EncodeBecomePlayer(BecomePlayerRequest{Username: "plowboy", PlayerClass: 2})
	if err != nil {
		t.Fatalf("EncodeBecomePlayer: %v", err)
	}
	if !bytes.HasPrefix(frame, []byte("rt{")) {
		t.Fatalf("frame = %q, want rt{...", frame)
	}

	cmd, err := Parse(frame)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cmd.Type != CommandType_BecomePlayer || cmd.BecomePlayer == nil {
		t.Fatalf("cmd = %+v, want BecomePlayer", cmd)
	}
	if cmd.BecomePlayer.Username != "plowboy" || cmd.BecomePlayer.PlayerClass != 2 {
		t.Fatalf("request = %+v", cmd.BecomePlayer)
	}
}

func TestBecomePlayerDoesNotValidate(t *testing.T) {
	if _, err := EncodeBecomePlayer(BecomePlayerRequest{}); err != nil {
		t.Fatalf("empty request should still encode, got %v", err)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	frames := map[string][]byte{
		"empty":          {},
		"tag only":       {'r'},
		"unknown code":   {'r', 0x99},
		"unknown tag":    {'x', 0x3a},
		"short movement": {'u', 0x3a, 0, 0},
		"empty request":  {'r', 't'},
		"bad json":       []byte("rt{nope"),
	}
	for name, frame := range frames {
		t.Run(name, func(t *testing.T) {
			if cmd, err := Parse(frame); err == nil {
				t.Fatalf("Parse(%v) = %+v, want error", frame, cmd)
			}
		})
	}
}
