package arenatest

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sessamekesh/snowplowderby-client/pkg/message/command"
	"github.com/sessamekesh/snowplowderby-client/pkg/message/event"
	"go.uber.org/zap/zaptest"
)

func connect(t *testing.T, a *Arena) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(a)
	t.Cleanup(server.Close)

	c, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func readEvent(t *testing.T, c *websocket.Conn) event.Event {
	t.Helper()
	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	ev, err := event.Decode(payload)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return ev
}

func requestPlayer(t *testing.T, c *websocket.Conn, username string) *event.TransitionResponse {
	t.Helper()
	frame, err := command.EncodeBecomePlayer(command.BecomePlayerRequest{Username: username})
	if err != nil {
		t.Fatalf("EncodeBecomePlayer: %v", err)
	}
	if err := c.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	for {
		if rsp, ok := readEvent(t, c).(*event.TransitionResponse); ok {
			return rsp
		}
	}
}

func TestHandshakeCarriesWorld(t *testing.T) {
	a := New(Params{Walls: []event.WallRecord{{X2: 5}}, Logger: zaptest.NewLogger(t)})
	a.AddBot("bot", 0, 1, 2)

	c := connect(t, a)
	handshake, ok := readEvent(t, c).(*event.Handshake)
	if !ok {
		t.Fatal("first frame was not a handshake")
	}
	if len(handshake.Walls) != 1 || len(handshake.Players) != 1 || handshake.Players[0].Username != "bot" {
		t.Fatalf("handshake = %+v", handshake)
	}
}

func TestBecomePlayerValidation(t *testing.T) {
	a := New(Params{MaxUsernameLength: 8, Logger: zaptest.NewLogger(t)})
	a.AddBot("taken", 0, 0, 0)

	tests := []struct {
		username string
		want     uint8
	}{
		{"", event.StatusUsernameEmpty},
		{"much-too-long-name", event.StatusUsernameTooLong},
		{"taken", event.StatusUsernameTaken},
		{"fresh", event.StatusAccepted},
	}

	for _, tc := range tests {
		t.Run(tc.username, func(t *testing.T) {
			c := connect(t, a)
			readEvent(t, c)
			rsp := requestPlayer(t, c, tc.username)
			if rsp.Status != tc.want {
				t.Fatalf("status = %d, want %d", rsp.Status, tc.want)
			}
			if tc.want == event.StatusAccepted && rsp.PlayerId == 0 {
				t.Fatal("accepted without an id")
			}
		})
	}
}

func TestMalformedBecomePlayerIsRejected(t *testing.T) {
	a := New(Params{Logger: zaptest.NewLogger(t)})
	c := connect(t, a)
	readEvent(t, c)

	c.WriteMessage(websocket.BinaryMessage, []byte("rt{not json"))
	for {
		if rsp, ok := readEvent(t, c).(*event.TransitionResponse); ok {
			if rsp.Status != event.StatusMalformedRequest {
				t.Fatalf("status = %d, want %d", rsp.Status, event.StatusMalformedRequest)
			}
			return
		}
	}
}

func TestKillBroadcastsAndRemoves(t *testing.T) {
	a := New(Params{Logger: zaptest.NewLogger(t)})
	killer := a.AddBot("killer", 0, 0, 0)
	victim := a.AddBot("victim", 0, 0, 0)

	c := connect(t, a)
	readEvent(t, c)

	a.Kill(killer, victim)
	killed, ok := readEvent(t, c).(*event.PlayerKilled)
	if !ok || len(killed.Kills) != 1 || killed.Kills[0].KillerKills != 1 || killed.Kills[0].VictimId != victim {
		t.Fatalf("kill event = %+v", killed)
	}
	for _, p := range a.Players() {
		if p.Id == victim {
			t.Fatal("victim still in arena")
		}
	}
}
