package game

// Tick advances the match by one step. Paused or finished games return
// the same pointer untouched.
//
// Snakes are processed in join order, but every collision check reads a
// snapshot of the board taken before anything moved this tick. A cell a
// tail vacates this tick still kills a mover entering it this tick, and
// a snake running at its own tail cell dies even though the tail is
// about to move away.
func Tick(s *GameState) *GameState {
	if s.GameOver || s.IsPaused {
		return s
	}

	next := s.clone()
	occupied := occupancy(s.Snakes)
	anyAlive := s.AliveCount() > 0

	for i := range next.Snakes {
		sn := &next.Snakes[i]
		if !sn.Alive {
			continue
		}
		head := sn.Body[0].Step(sn.Direction, s.GridSize)

		if occupied[head] {
			// Fatal. The body freezes where it stood before the tick.
			sn.Alive = false
			continue
		}

		if fi := foodIndex(next.Food, head); fi >= 0 {
			// Grow: keep the tail, prepend the new head.
			sn.Body = append([]Position{head}, sn.Body...)
			sn.Score++
			next.Food = append(next.Food[:fi], next.Food[fi+1:]...)
			next.Food = append(next.Food, replacementFood(next, occupied, head))
		} else {
			// Advance: prepend the new head, drop the tail.
			sn.Body = append([]Position{head}, sn.Body[:len(sn.Body)-1]...)
		}
	}

	if anyAlive && next.AliveCount() == 0 {
		next.GameOver = true
	}
	return next
}

// replacementFood picks the cell for the item replacing one just eaten
// at head. Pre-tick bodies, the consuming head and all remaining food
// are avoided.
func replacementFood(next *GameState, preTick map[Position]bool, head Position) Position {
	avoid := make(map[Position]bool, len(preTick)+len(next.Food)+1)
	for c := range preTick {
		avoid[c] = true
	}
	avoid[head] = true
	for _, f := range next.Food {
		avoid[f] = true
	}
	return placeFood(avoid, next.GridSize)
}

// ChangeDirection returns a state with one snake's heading replaced, or
// the same pointer when nothing changes. Unknown ids, dead snakes,
// repeated headings and direct reversals are all ignored. A single-cell
// snake has no body to run back into and may reverse freely.
func ChangeDirection(s *GameState, id string, dir Direction) *GameState {
	if !dir.Valid() {
		return s
	}
	i := s.snakeIndex(id)
	if i < 0 || !s.Snakes[i].Alive {
		return s
	}
	sn := &s.Snakes[i]
	if dir == sn.Direction {
		return s
	}
	if dir == sn.Direction.Opposite() && len(sn.Body) > 1 {
		return s
	}
	next := s.clone()
	next.Snakes[i].Direction = dir
	return next
}
