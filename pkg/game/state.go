package game

import "errors"

// Engine failure modes. Any other error coming out of this package is a
// bug in the caller.
var (
	ErrNoPlayers       = errors.New("game: need at least one player")
	ErrGameFull        = errors.New("game: max players reached")
	ErrDuplicatePlayer = errors.New("game: player id already in use")
	ErrSpawnBlocked    = errors.New("game: spawn cells are occupied")
)

// GameState is the complete state of one match. It is treated as an
// immutable value: every operation returns either the receiver pointer
// unchanged (a no-op) or a fresh deep copy with the change applied.
// Snakes appear in join order and are never removed, only killed.
type GameState struct {
	Snakes   []Snake    `json:"snakes"`
	Food     []Position `json:"food"`
	GridSize Size       `json:"gridSize"`
	GameOver bool       `json:"gameOver"`
	IsPaused bool       `json:"isPaused"`
}

// NewGame builds the starting state for the given players, in order.
// Ids beyond cfg.MaxPlayers are silently dropped. Food lands on random
// cells off the spawned bodies.
func NewGame(playerIDs []string, cfg Settings) (*GameState, error) {
	cfg = cfg.normalized()
	if len(playerIDs) == 0 {
		return nil, ErrNoPlayers
	}
	if len(playerIDs) > cfg.MaxPlayers {
		playerIDs = playerIDs[:cfg.MaxPlayers]
	}
	grid := Size{Width: cfg.GridWidth, Height: cfg.GridHeight}
	st := &GameState{
		Snakes:   make([]Snake, 0, len(playerIDs)),
		Food:     make([]Position, 0, cfg.FoodCount),
		GridSize: grid,
	}
	for i, id := range playerIDs {
		st.Snakes = append(st.Snakes, newSnake(id, i, cfg, grid))
	}
	occupied := occupancy(st.Snakes)
	for i := 0; i < cfg.FoodCount; i++ {
		f := placeFood(occupied, grid)
		occupied[f] = true
		st.Food = append(st.Food, f)
	}
	return st, nil
}

// AddPlayer returns a new state with a snake for id appended at the next
// player index. The join fails when the game is at capacity, the id
// already owns a snake, or the spawn template overlaps an existing body
// or food item. The input state is left untouched on failure.
func AddPlayer(s *GameState, id string, cfg Settings) (*GameState, error) {
	cfg = cfg.normalized()
	if len(s.Snakes) >= cfg.MaxPlayers {
		return nil, ErrGameFull
	}
	if s.snakeIndex(id) >= 0 {
		return nil, ErrDuplicatePlayer
	}
	sn := newSnake(id, len(s.Snakes), cfg, s.GridSize)
	occupied := occupancy(s.Snakes)
	for _, f := range s.Food {
		occupied[f] = true
	}
	for _, c := range sn.Body {
		if occupied[c] {
			return nil, ErrSpawnBlocked
		}
	}
	next := s.clone()
	next.Snakes = append(next.Snakes, sn)
	return next, nil
}

// SetPaused returns a state with the pause flag set, or the same
// pointer when the flag already matches. Who may pause is the
// coordinator's business, not the engine's.
func SetPaused(s *GameState, paused bool) *GameState {
	if s.IsPaused == paused {
		return s
	}
	next := s.clone()
	next.IsPaused = paused
	return next
}

// MarkDead returns a state with id's snake killed in place, or the same
// pointer when the snake is unknown or already dead. The body stays on
// the board. Killing the last live snake ends the game, exactly as a
// losing tick would.
func MarkDead(s *GameState, id string) *GameState {
	i := s.snakeIndex(id)
	if i < 0 || !s.Snakes[i].Alive {
		return s
	}
	next := s.clone()
	next.Snakes[i].Alive = false
	if next.AliveCount() == 0 {
		next.GameOver = true
	}
	return next
}

// Snake returns the snake owned by id, or nil. The pointer aliases the
// state, so callers must not write through it.
func (s *GameState) Snake(id string) *Snake {
	if i := s.snakeIndex(id); i >= 0 {
		return &s.Snakes[i]
	}
	return nil
}

// AliveCount returns how many snakes are still alive.
func (s *GameState) AliveCount() int {
	n := 0
	for i := range s.Snakes {
		if s.Snakes[i].Alive {
			n++
		}
	}
	return n
}

// snakeIndex returns the slice index of the snake owned by id, or -1.
func (s *GameState) snakeIndex(id string) int {
	for i := range s.Snakes {
		if s.Snakes[i].ID == id {
			return i
		}
	}
	return -1
}

// clone returns a deep copy. Body and food slices are copied, so the
// original can never be mutated through the result.
func (s *GameState) clone() *GameState {
	next := &GameState{
		Snakes:   make([]Snake, len(s.Snakes)),
		Food:     append([]Position(nil), s.Food...),
		GridSize: s.GridSize,
		GameOver: s.GameOver,
		IsPaused: s.IsPaused,
	}
	for i := range s.Snakes {
		next.Snakes[i] = s.Snakes[i]
		next.Snakes[i].Body = append([]Position(nil), s.Snakes[i].Body...)
	}
	return next
}

// occupancy returns the set of cells covered by any snake body. Dead
// bodies count: they stay on the board and still collide.
func occupancy(snakes []Snake) map[Position]bool {
	cells := make(map[Position]bool)
	for i := range snakes {
		for _, c := range snakes[i].Body {
			cells[c] = true
		}
	}
	return cells
}
