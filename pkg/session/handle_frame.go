package session

import (
	"github.com/sessamekesh/snowplowderby-client/pkg/errors"
	"github.com/sessamekesh/snowplowderby-client/pkg/message/command"
	"github.com/sessamekesh/snowplowderby-client/pkg/message/event"
	"github.com/sessamekesh/snowplowderby-client/pkg/world"
	"go.uber.org/zap"
)

// handleFrame applies one inbound frame. Decode failures and protocol
// mismatches are scoped to the frame; nothing here ends the session.
func (s *Session) handleFrame(frame []byte) {
	ev, err := event.Decode(frame)
	if err != nil {
		s.metrics.RecordDecodeError()
		s.log.Warn("Dropping malformed frame", zap.Int("size", len(frame)), zap.Error(err))
		return
	}

	if ev == nil {
		s.metrics.RecordFrame("dropped")
		s.log.Debug("Dropping unrecognized frame", zap.Int("size", len(frame)))
		return
	}

	s.metrics.RecordFrame(event.Name(ev))

	state := s.State()
	if state == State_Uninitialized {
		handshake, isHandshake := ev.(*event.Handshake)
		if !isHandshake {
			s.log.Debug("Dropping frame before handshake", zap.Error(&errors.ProtocolMismatch{
				Context:  "uninitialized session",
				Expected: "Handshake",
				Actual:   event.Name(ev),
			}))
			return
		}
		s.applyHandshake(handshake)
		return
	}

	if !state.Active() {
		return
	}

	switch e := ev.(type) {
	case *event.Handshake:
		s.log.Warn("Ignoring repeated handshake", zap.String("version", e.Version))
	case *event.Snapshot:
		s.applySnapshot(e)
	case *event.TransitionResponse:
		s.applyTransitionResponse(e)
	case *event.PlayerJoined:
		s.applyPlayerJoined(e)
	case *event.PlayerKilled:
		s.applyPlayerKilled(e)
	}
}

func (s *Session) addPlayers(records []event.PlayerRecord) []world.Player {
	added := make([]world.Player, 0, len(records))
	for _, record := range records {
		player, err := s.store.AddPlayer(record)
		if err != nil {
			s.log.Warn("Skipping player record", zap.Error(err))
			continue
		}
		added = append(added, player)
	}
	s.metrics.SetPlayersTracked(s.store.Len())
	return added
}

func (s *Session) applyHandshake(e *event.Handshake) {
	s.log.Info("Received handshake", zap.String("version", e.Version), zap.Int("walls", len(e.Walls)), zap.Int("players", len(e.Players)))

	s.store = world.CreateStore(e.Walls)
	players := s.addPlayers(e.Players)

	if err := s.send(command.EncodeHandshakeAck(), command.CommandType_Acknowledge); err != nil {
		s.log.Warn("Failed to acknowledge handshake", zap.Error(err))
	}

	s.setState(State_Spectating)
	s.listener.OnHandshake(e.Version, s.store.Walls(), players)

	if t := s.queuedInitial; t != nil {
		s.queuedInitial = nil
		if err := s.sendTransitionRequest(t); err != nil {
			s.log.Error("Failed to send initial transition request", zap.Error(err))
			t.reject(err)
		}
	}
}

func (s *Session) applySnapshot(e *event.Snapshot) {
	matched, evicted := s.store.ApplySnapshot(e.Updates)

	for _, id := range evicted {
		s.log.Debug("Evicting player missing from snapshot", zap.Uint16("playerId", id))
		s.listener.OnPlayerRemoved(id, Removal_Evicted)
	}

	s.metrics.RecordEvictions(len(evicted))
	s.metrics.SetPlayersTracked(s.store.Len())

	if matched > 0 || len(evicted) > 0 {
		s.listener.OnPlayersUpdated(s.store.Players())
	}
}

func (s *Session) applyTransitionResponse(e *event.TransitionResponse) {
	t := s.transition
	if t == nil || s.State() != State_AwaitingTransition {
		s.log.Warn("Ignoring unsolicited transition response", zap.Uint8("status", e.Status))
		return
	}
	s.transition = nil

	if !e.Accepted() {
		rejection := &errors.TransitionRejected{
			Code:   e.Status,
			Reason: event.RejectionReason(e.Status),
		}
		s.log.Info("Transition rejected", zap.Error(rejection))
		s.setState(State_Spectating)
		s.metrics.RecordTransition("rejected", t.elapsed())
		t.reject(rejection)
		return
	}

	s.log.Info("Transition accepted", zap.Uint16("playerId", e.PlayerId))
	s.setLocalPlayer(e.PlayerId)
	s.setState(State_Playing)
	s.armInput()
	s.metrics.RecordTransition("accepted", t.elapsed())
	t.resolve(e.PlayerId)

	// The join for our id may have arrived first
	s.signalLocalPlayerReady()
}

func (s *Session) signalLocalPlayerReady() {
	if s.localReadySignaled {
		return
	}
	id, has := s.LocalPlayerId()
	if !has {
		return
	}
	player, tracked := s.store.Player(id)
	if !tracked {
		return
	}

	s.localReadySignaled = true
	s.log.Info("Local player ready", zap.Uint16("playerId", id))
	s.listener.OnLocalPlayerReady(player)
}

func (s *Session) applyPlayerJoined(e *event.PlayerJoined) {
	for _, player := range s.addPlayers(e.Players) {
		s.log.Debug("Player joined", zap.Uint16("playerId", player.Id), zap.String("username", player.Username))
		s.listener.OnPlayerJoined(player)
	}
	s.signalLocalPlayerReady()
}

func (s *Session) applyPlayerKilled(e *event.PlayerKilled) {
	localId, hasLocal := s.LocalPlayerId()
	for _, kill := range e.Kills {
		s.log.Debug("Player killed", zap.Uint16("killerId", kill.KillerId), zap.Uint16("victimId", kill.VictimId), zap.Uint16("killerKills", kill.KillerKills))
		if hasLocal && kill.VictimId == localId {
			s.log.Info("Local player was killed", zap.Uint16("killerId", kill.KillerId))
		}
	}

	victims := s.store.ApplyKills(e.Kills)
	for _, id := range victims {
		s.listener.OnPlayerRemoved(id, Removal_Killed)
	}

	s.metrics.RecordKills(len(e.Kills))
	s.metrics.SetPlayersTracked(s.store.Len())
	s.listener.OnScoreboardChanged(s.store.Scoreboard())
}
