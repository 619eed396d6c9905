package game

import "time"

// Default match parameters.
const (
	DefaultGridWidth    = 40
	DefaultGridHeight   = 30
	DefaultFoodCount    = 3
	DefaultSnakeLength  = 3
	DefaultMaxPlayers   = 8
	DefaultTickInterval = 150 * time.Millisecond
)

// spawnMargin keeps corner spawn heads this many cells away from the walls.
const spawnMargin = 2

// Settings are the fixed parameters of one match. The host picks them
// before the first state exists; they never change mid-game.
type Settings struct {
	GridWidth          int
	GridHeight         int
	FoodCount          int
	InitialSnakeLength int
	MaxPlayers         int
	TickInterval       time.Duration
}

// DefaultSettings returns the standard match parameters.
func DefaultSettings() Settings {
	return Settings{
		GridWidth:          DefaultGridWidth,
		GridHeight:         DefaultGridHeight,
		FoodCount:          DefaultFoodCount,
		InitialSnakeLength: DefaultSnakeLength,
		MaxPlayers:         DefaultMaxPlayers,
		TickInterval:       DefaultTickInterval,
	}
}

// normalized replaces values the engine cannot work with. A grid smaller
// than 2x2 has no cell to move into, a snake needs at least one segment
// and a game needs at least one seat. FoodCount of zero is legal: it
// makes the whole match deterministic.
func (s Settings) normalized() Settings {
	if s.GridWidth < 2 {
		s.GridWidth = DefaultGridWidth
	}
	if s.GridHeight < 2 {
		s.GridHeight = DefaultGridHeight
	}
	if s.FoodCount < 0 {
		s.FoodCount = DefaultFoodCount
	}
	if s.InitialSnakeLength < 1 {
		s.InitialSnakeLength = DefaultSnakeLength
	}
	if s.MaxPlayers < 1 {
		s.MaxPlayers = DefaultMaxPlayers
	}
	if s.TickInterval <= 0 {
		s.TickInterval = DefaultTickInterval
	}
	return s
}

// PlayerColors is the palette snakes draw from, keyed by player index
// modulo the palette size.
var PlayerColors = []string{
	"#e74c3c", "#3498db", "#2ecc71", "#f39c12",
	"#9b59b6", "#1abc9c", "#e67e22", "#e91e63",
}

// ColorForIndex returns the palette color for a player index.
func ColorForIndex(idx int) string {
	return PlayerColors[idx%len(PlayerColors)]
}
