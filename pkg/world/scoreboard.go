package world

import "sort"

// The scoreboard is sorted ascending by kills, ties broken by id. It is only
// recomputed after kill events.
func (s *Store) recomputeScoreboard() {
	players := s.Players()
	sort.SliceStable(players, func(i, j int) bool {
		return players[i].Kills < players[j].Kills
	})

	s.scoreboard = s.scoreboard[:0]
	for _, p := range players {
		s.scoreboard = append(s.scoreboard, p.Id)
	}
}

// Scoreboard returns the most recently computed ordering. Players that left
// the store since then are skipped; players that joined since then appear
// after the next kill event.
func (s *Store) Scoreboard() []Player {
	board := make([]Player, 0, len(s.scoreboard))
	for _, id := range s.scoreboard {
		if p, has := s.Player(id); has {
			board = append(board, p)
		}
	}
	return board
}
