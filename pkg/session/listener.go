package session

import "github.com/sessamekesh/snowplowderby-client/pkg/world"

type RemovalReason uint8

const (
	Removal_Evicted RemovalReason = iota
	Removal_Killed
)

func (r RemovalReason) String() string {
	switch r {
	case Removal_Evicted:
		return "evicted"
	case Removal_Killed:
		return "killed"
	}
	return "unknown"
}

// Listener receives every visible change to session state. All callbacks run
// on the session goroutine in frame arrival order; they must not block, and
// must not call back into blocking Session methods such as View.
type Listener interface {
	OnHandshake(version string, walls []world.Wall, players []world.Player)
	OnPlayerJoined(player world.Player)
	OnPlayersUpdated(players []world.Player)
	OnPlayerRemoved(id uint16, reason RemovalReason)
	OnLocalPlayerReady(player world.Player)
	OnScoreboardChanged(scoreboard []world.Player)
	OnStateChanged(from State, to State)
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	Handshake         func(version string, walls []world.Wall, players []world.Player)
	PlayerJoined      func(player world.Player)
	PlayersUpdated    func(players []world.Player)
	PlayerRemoved     func(id uint16, reason RemovalReason)
	LocalPlayerReady  func(player world.Player)
	ScoreboardChanged func(scoreboard []world.Player)
	StateChanged      func(from State, to State)
}

func (l ListenerFuncs) OnHandshake(version string, walls []world.Wall, players []world.Player) {
	if l.Handshake != nil {
		l.Handshake(version, walls, players)
	}
}

func (l ListenerFuncs) OnPlayerJoined(player world.Player) {
	if l.PlayerJoined != nil {
		l.PlayerJoined(player)
	}
}

func (l ListenerFuncs) OnPlayersUpdated(players []world.Player) {
	if l.PlayersUpdated != nil {
		l.PlayersUpdated(players)
	}
}

func (l ListenerFuncs) OnPlayerRemoved(id uint16, reason RemovalReason) {
	if l.PlayerRemoved != nil {
		l.PlayerRemoved(id, reason)
	}
}

func (l ListenerFuncs) OnLocalPlayerReady(player world.Player) {
	if l.LocalPlayerReady != nil {
		l.LocalPlayerReady(player)
	}
}

func (l ListenerFuncs) OnScoreboardChanged(scoreboard []world.Player) {
	if l.ScoreboardChanged != nil {
		l.ScoreboardChanged(scoreboard)
	}
}

func (l ListenerFuncs) OnStateChanged(from State, to State) {
	if l.StateChanged != nil {
		l.StateChanged(from, to)
	}
}
