// Package arenatest is a scripted in-process arena server speaking the real
// wire protocol, for tests and local demos.
package arenatest

import (
	"context"
	"net/http"
	"sort"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sessamekesh/snowplowderby-client/pkg/message"
	"github.com/sessamekesh/snowplowderby-client/pkg/message/command"
	"github.com/sessamekesh/snowplowderby-client/pkg/message/event"
	"github.com/sessamekesh/snowplowderby-client/pkg/transport"
	utils "github.com/sessamekesh/snowplowderby-client/pkg/util"
	"go.uber.org/zap"
)

const DefaultMaxUsernameLength = 16

type Params struct {
	Version string
	Walls   []event.WallRecord

	MaxUsernameLength int

	// Leave become-player requests unanswered
	HoldTransitions bool
	// Answer every become-player request with this status when non-zero
	ForceRejection uint8

	AllowAllHosts    bool
	AllowlistedHosts []string

	Logger *zap.Logger
}

type ReceivedCommand struct {
	PeerId  int
	Command *command.Command
}

type arenaPlayer struct {
	record event.PlayerRecord
	vx, vy float32
	kills  uint16
	peerId int
}

type peer struct {
	id   int
	conn transport.Conn
	send chan []byte

	playerId  uint16
	hasPlayer bool
}

type Arena struct {
	params   Params
	upgrader websocket.Upgrader
	log      *zap.Logger

	mut_arena  sync.Mutex
	players    map[uint16]*arenaPlayer
	nextId     uint16
	peers      map[int]*peer
	nextPeerId int

	commands chan ReceivedCommand
}

func New(params Params) *Arena {
	if params.Version == "" {
		params.Version = "0.1.0-arenatest"
	}
	if params.MaxUsernameLength == 0 {
		params.MaxUsernameLength = DefaultMaxUsernameLength
	}

	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &Arena{
		params:   params,
		log:      logger.With(zap.String("component", "Arena")),
		players:  make(map[uint16]*arenaPlayer),
		nextId:   1,
		peers:    make(map[int]*peer),
		commands: make(chan ReceivedCommand, 256),
	}
	a.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || utils.CheckOrigin(origin, params.AllowAllHosts, params.AllowlistedHosts, nil)
		},
	}
	return a
}

// Commands delivers every parsed client command. Commands are dropped when
// nobody drains the channel.
func (a *Arena) Commands() <-chan ReceivedCommand {
	return a.commands
}

func (a *Arena) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.log.Error("Failed to upgrade HTTP request to WebSocket connection", zap.Error(err))
		return
	}

	conn := transport.WrapWebsocket(c, a.log)
	defer conn.Close()

	a.Serve(r.Context(), conn)
}

// Serve runs one client connection until it closes or ctx ends.
func (a *Arena) Serve(ctx context.Context, conn transport.Conn) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := a.addPeer(conn)
	log := a.log.With(zap.Int("peerId", p.id))
	defer a.removePeer(p)

	wg := sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case frame := <-p.send:
				if err := conn.WriteFrame(ctx, frame); err != nil {
					log.Debug("Write failed", zap.Error(err))
					cancel()
					return
				}
			}
		}
	}()

	for {
		frame, err := conn.ReadFrame(ctx)
		if err != nil {
			log.Debug("Peer read ended", zap.Error(err))
			break
		}
		a.handleCommand(p, frame, log)
	}

	cancel()
	conn.Close()
	wg.Wait()
}

func (a *Arena) addPeer(conn transport.Conn) *peer {
	a.mut_arena.Lock()
	defer a.mut_arena.Unlock()

	p := &peer{
		id:   a.nextPeerId,
		conn: conn,
		send: make(chan []byte, 64),
	}
	a.nextPeerId++
	a.peers[p.id] = p

	handshake, err := event.EncodeHandshake(&event.Handshake{
		Version: a.params.Version,
		Walls:   a.params.Walls,
		Players: a.recordsLocked(),
	})
	if err != nil {
		a.log.Error("Failed to encode handshake", zap.Error(err))
	} else {
		p.send <- handshake
	}
	return p
}

func (a *Arena) removePeer(p *peer) {
	a.mut_arena.Lock()
	defer a.mut_arena.Unlock()

	delete(a.peers, p.id)
	if p.hasPlayer {
		// Other clients find out through the next snapshot
		delete(a.players, p.playerId)
	}
}

func (a *Arena) handleCommand(p *peer, frame []byte, log *zap.Logger) {
	cmd, err := command.Parse(frame)
	if err != nil {
		log.Warn("Unparseable command", zap.Error(err))
		if len(frame) >= 2 && frame[0] == message.ChannelReliable && frame[1] == command.CodeBecomePlayer {
			a.respondTransition(p, event.StatusMalformedRequest, 0)
		}
		return
	}

	select {
	case a.commands <- ReceivedCommand{PeerId: p.id, Command: cmd}:
	default:
	}

	switch cmd.Type {
	case command.CommandType_BecomePlayer:
		a.becomePlayer(p, cmd.BecomePlayer, log)
	case command.CommandType_SetInput:
		a.mut_arena.Lock()
		if player, has := a.players[p.playerId]; has && p.hasPlayer {
			player.vx = cmd.Dx * command.InputScale
			player.vy = cmd.Dy * command.InputScale
		}
		a.mut_arena.Unlock()
	}
}

func (a *Arena) rejectionFor(p *peer, request *command.BecomePlayerRequest) uint8 {
	switch {
	case a.params.ForceRejection != 0:
		return a.params.ForceRejection
	case p.hasPlayer:
		return event.StatusMalformedRequest
	case request.Username == "":
		return event.StatusUsernameEmpty
	case len(request.Username) > a.params.MaxUsernameLength:
		return event.StatusUsernameTooLong
	}
	for _, player := range a.players {
		if player.record.Username == request.Username {
			return event.StatusUsernameTaken
		}
	}
	return event.StatusAccepted
}

func (a *Arena) becomePlayer(p *peer, request *command.BecomePlayerRequest, log *zap.Logger) {
	if a.params.HoldTransitions {
		log.Info("Holding transition request", zap.String("username", request.Username))
		return
	}

	a.mut_arena.Lock()
	status := a.rejectionFor(p, request)
	if status != event.StatusAccepted {
		a.mut_arena.Unlock()
		log.Info("Rejecting transition", zap.String("username", request.Username), zap.Uint8("status", status))
		a.respondTransition(p, status, 0)
		return
	}

	record := event.PlayerRecord{
		Id:       a.allocateIdLocked(),
		Username: request.Username,
		Class:    uint8(request.PlayerClass),
	}
	a.players[record.Id] = &arenaPlayer{record: record, peerId: p.id}
	p.playerId = record.Id
	p.hasPlayer = true
	a.mut_arena.Unlock()

	log.Info("Created player", zap.Uint16("playerId", record.Id), zap.String("username", record.Username))
	a.respondTransition(p, event.StatusAccepted, record.Id)
	a.broadcastJoin(record)
}

func (a *Arena) allocateIdLocked() uint16 {
	for {
		id := a.nextId
		a.nextId++
		if _, taken := a.players[id]; !taken {
			return id
		}
	}
}

func (a *Arena) respondTransition(p *peer, status uint8, id uint16) {
	frame, err := event.EncodeTransitionResponse(&event.TransitionResponse{Status: status, PlayerId: id})
	if err != nil {
		a.log.Error("Failed to encode transition response", zap.Error(err))
		return
	}
	a.mut_arena.Lock()
	defer a.mut_arena.Unlock()
	a.sendLocked(p, frame)
}

func (a *Arena) sendLocked(p *peer, frame []byte) {
	select {
	case p.send <- frame:
	default:
		a.log.Warn("Peer send queue full, dropping frame", zap.Int("peerId", p.id))
	}
}

func (a *Arena) broadcast(frame []byte) {
	a.mut_arena.Lock()
	defer a.mut_arena.Unlock()
	for _, p := range a.peers {
		a.sendLocked(p, frame)
	}
}

func (a *Arena) broadcastJoin(records ...event.PlayerRecord) {
	frame, err := event.EncodePlayerJoined(&event.PlayerJoined{Players: records})
	if err != nil {
		a.log.Error("Failed to encode join", zap.Error(err))
		return
	}
	a.broadcast(frame)
}

//
// Scripting

// AddBot creates a server-side player with no connection and announces it.
func (a *Arena) AddBot(username string, class uint8, x, y float32) uint16 {
	a.mut_arena.Lock()
	record := event.PlayerRecord{
		Id:       a.allocateIdLocked(),
		Username: username,
		Class:    class,
		X:        x,
		Y:        y,
	}
	a.players[record.Id] = &arenaPlayer{record: record, peerId: -1}
	a.mut_arena.Unlock()

	a.broadcastJoin(record)
	return record.Id
}

// Remove drops a player without telling anyone; clients evict it on the next
// snapshot.
func (a *Arena) Remove(id uint16) {
	a.mut_arena.Lock()
	defer a.mut_arena.Unlock()
	delete(a.players, id)
}

// Kill credits killer (if present) and removes victim, then broadcasts the
// kill record.
func (a *Arena) Kill(killerId, victimId uint16) {
	a.mut_arena.Lock()
	var kills uint16
	if killer, has := a.players[killerId]; has {
		killer.kills++
		kills = killer.kills
	}
	delete(a.players, victimId)
	for _, p := range a.peers {
		if p.hasPlayer && p.playerId == victimId {
			p.hasPlayer = false
		}
	}
	a.mut_arena.Unlock()

	frame, err := event.EncodePlayerKilled(&event.PlayerKilled{Kills: []event.KillRecord{
		{KillerId: killerId, VictimId: victimId, KillerKills: kills},
	}})
	if err != nil {
		a.log.Error("Failed to encode kill", zap.Error(err))
		return
	}
	a.broadcast(frame)
}

// Step advances every player by its velocity.
func (a *Arena) Step(dt float32) {
	a.mut_arena.Lock()
	defer a.mut_arena.Unlock()
	for _, player := range a.players {
		player.record.X += player.vx * dt
		player.record.Y += player.vy * dt
	}
}

// BroadcastSnapshot sends every player's position and velocity to every peer.
func (a *Arena) BroadcastSnapshot() {
	a.mut_arena.Lock()
	updates := make([]event.PlayerUpdate, 0, len(a.players))
	for _, player := range a.players {
		updates = append(updates, event.PlayerUpdate{
			Id: player.record.Id,
			X:  player.record.X,
			Y:  player.record.Y,
			Vx: player.vx,
			Vy: player.vy,
		})
	}
	a.mut_arena.Unlock()

	frame, err := event.EncodeSnapshot(&event.Snapshot{Updates: updates})
	if err != nil {
		a.log.Error("Failed to encode snapshot", zap.Error(err))
		return
	}
	a.broadcast(frame)
}

// DropPeers closes every client connection.
func (a *Arena) DropPeers() {
	a.mut_arena.Lock()
	defer a.mut_arena.Unlock()
	for _, p := range a.peers {
		p.conn.Close()
	}
}

func (a *Arena) PeerCount() int {
	a.mut_arena.Lock()
	defer a.mut_arena.Unlock()
	return len(a.peers)
}

func (a *Arena) Players() []event.PlayerRecord {
	a.mut_arena.Lock()
	defer a.mut_arena.Unlock()
	return a.recordsLocked()
}

func (a *Arena) recordsLocked() []event.PlayerRecord {
	records := make([]event.PlayerRecord, 0, len(a.players))
	for _, player := range a.players {
		records = append(records, player.record)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Id < records[j].Id })
	return records
}
