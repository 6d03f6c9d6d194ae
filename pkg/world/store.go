package world

import (
	"sort"

	"github.com/sessamekesh/snowplowderby-client/pkg/errors"
	"github.com/sessamekesh/snowplowderby-client/pkg/message/event"
)

type Player struct {
	Id       uint16
	Username string
	Class    uint8
	X, Y     float32
	Vx, Vy   float32
	Kills    uint16
}

type Wall struct {
	X1, Y1 float32
	X2, Y2 float32
}

type playerSlot struct {
	player Player
	live   bool
}

// Store is the client-side mirror of every entity the server has told us
// about. It is not safe for concurrent use; the session goroutine owns it.
type Store struct {
	slots []playerSlot
	index map[uint16]int
	free  []int

	// per-snapshot mark set, indexed like slots
	seen []bool

	walls      []Wall
	scoreboard []uint16
}

func CreateStore(walls []event.WallRecord) *Store {
	store := &Store{
		slots:      []playerSlot{},
		index:      make(map[uint16]int),
		free:       []int{},
		seen:       []bool{},
		walls:      make([]Wall, 0, len(walls)),
		scoreboard: []uint16{},
	}

	for _, w := range walls {
		store.walls = append(store.walls, Wall{X1: w.X1, Y1: w.Y1, X2: w.X2, Y2: w.Y2})
	}

	return store
}

func (s *Store) Len() int {
	return len(s.index)
}

func (s *Store) HasPlayer(id uint16) bool {
	_, has := s.index[id]
	return has
}

// AddPlayer starts tracking a player. Only handshakes and join events create
// players, and an id that is already tracked is a protocol error.
func (s *Store) AddPlayer(record event.PlayerRecord) (Player, error) {
	if _, has := s.index[record.Id]; has {
		return Player{}, &errors.DuplicatePlayerId{Id: record.Id}
	}

	player := Player{
		Id:       record.Id,
		Username: record.Username,
		Class:    record.Class,
		X:        record.X,
		Y:        record.Y,
	}

	var slot int
	if n := len(s.free); n > 0 {
		slot = s.free[n-1]
		s.free = s.free[:n-1]
	} else {
		slot = len(s.slots)
		s.slots = append(s.slots, playerSlot{})
		s.seen = append(s.seen, false)
	}

	s.slots[slot] = playerSlot{player: player, live: true}
	s.index[record.Id] = slot
	return player, nil
}

// RemovePlayer stops tracking id. Removing an absent id is a no-op.
func (s *Store) RemovePlayer(id uint16) bool {
	slot, has := s.index[id]
	if !has {
		return false
	}

	s.slots[slot] = playerSlot{}
	s.free = append(s.free, slot)
	delete(s.index, id)
	return true
}

func (s *Store) Player(id uint16) (Player, bool) {
	slot, has := s.index[id]
	if !has {
		return Player{}, false
	}
	return s.slots[slot].player, true
}

// Players returns copies of every tracked player ordered by id.
func (s *Store) Players() []Player {
	players := make([]Player, 0, len(s.index))
	for _, slot := range s.slots {
		if slot.live {
			players = append(players, slot.player)
		}
	}
	sort.Slice(players, func(i, j int) bool { return players[i].Id < players[j].Id })
	return players
}

func (s *Store) Ids() []uint16 {
	ids := make([]uint16, 0, len(s.index))
	for id := range s.index {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *Store) Walls() []Wall {
	walls := make([]Wall, len(s.walls))
	copy(walls, s.walls)
	return walls
}

// ApplySnapshot reconciles the store against one periodic snapshot.
//
// Mark: every update whose id is tracked is merged in and its slot is marked
// seen. Updates for unknown ids are discarded; snapshots never create players.
// Only the first entry for an id counts; repeats within the same snapshot are
// skipped.
// Sweep: every tracked player left unmarked is evicted. Nothing is removed
// until all updates are matched, so the order of entries in the snapshot has
// no effect on the result.
//
// Returns how many updates matched and the evicted ids in ascending order.
func (s *Store) ApplySnapshot(updates []event.PlayerUpdate) (int, []uint16) {
	for i := range s.seen {
		s.seen[i] = false
	}

	matched := 0
	for _, update := range updates {
		slot, has := s.index[update.Id]
		if !has || s.seen[slot] {
			continue
		}
		p := &s.slots[slot].player
		p.X = update.X
		p.Y = update.Y
		p.Vx = update.Vx
		p.Vy = update.Vy
		s.seen[slot] = true
		matched++
	}

	evicted := []uint16{}
	for slot := range s.slots {
		if s.slots[slot].live && !s.seen[slot] {
			evicted = append(evicted, s.slots[slot].player.Id)
		}
	}
	for _, id := range evicted {
		s.RemovePlayer(id)
	}
	sort.Slice(evicted, func(i, j int) bool { return evicted[i] < evicted[j] })

	return matched, evicted
}

// ApplyKills applies kill totals to known killers, removes victims and
// recomputes the scoreboard. Unknown killers are ignored rather than
// created. Returns the victims that were actually tracked.
func (s *Store) ApplyKills(kills []event.KillRecord) []uint16 {
	victims := []uint16{}
	for _, kill := range kills {
		if slot, has := s.index[kill.KillerId]; has {
			s.slots[slot].player.Kills = kill.KillerKills
		}
		if s.RemovePlayer(kill.VictimId) {
			victims = append(victims, kill.VictimId)
		}
	}

	s.recomputeScoreboard()
	return victims
}
