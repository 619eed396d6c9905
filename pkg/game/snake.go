package game

// Snake is one player's piece on the board. Body cells are ordered head
// first and never repeat a cell. A dead snake keeps its final body on
// the board as a permanent obstacle.
type Snake struct {
	ID          string     `json:"id"`
	PlayerIndex int        `json:"playerIndex"`
	Body        []Position `json:"body"`
	Direction   Direction  `json:"direction"`
	Color       string     `json:"color"`
	Score       int        `json:"score"`
	Alive       bool       `json:"alive"`
}

// Head returns the snake's head cell.
func (s *Snake) Head() Position {
	return s.Body[0]
}

// newSnake builds the snake for a player index at its spawn template.
// The body trails opposite the heading, wrapping if the configured
// length runs past the wall.
func newSnake(id string, idx int, cfg Settings, grid Size) Snake {
	head, dir := spawnTemplate(idx, grid)
	body := make([]Position, cfg.InitialSnakeLength)
	body[0] = head
	back := dir.Opposite()
	for i := 1; i < len(body); i++ {
		body[i] = body[i-1].Step(back, grid)
	}
	return Snake{
		ID:          id,
		PlayerIndex: idx,
		Body:        body,
		Direction:   dir,
		Color:       ColorForIndex(idx),
		Alive:       true,
	}
}

// spawnTemplate returns the head cell and heading for a player index.
// Indices 0 to 3 take the four corners, inset by spawnMargin, facing
// inward along the top or bottom wall. Later indices fan out diagonally
// from the grid center, cycling through all four headings, so every
// seat has a deterministic spot with no RNG involved.
func spawnTemplate(idx int, grid Size) (Position, Direction) {
	switch idx {
	case 0:
		return Position{X: spawnMargin, Y: spawnMargin}, DirRight
	case 1:
		return Position{X: grid.Width - 1 - spawnMargin, Y: spawnMargin}, DirLeft
	case 2:
		return Position{X: spawnMargin, Y: grid.Height - 1 - spawnMargin}, DirRight
	case 3:
		return Position{X: grid.Width - 1 - spawnMargin, Y: grid.Height - 1 - spawnMargin}, DirLeft
	}
	k := idx - 4
	headings := [4]Direction{DirRight, DirLeft, DirUp, DirDown}
	shift := 2 * (k + 1)
	head := Position{
		X: (grid.Width/2 + shift) % grid.Width,
		Y: (grid.Height/2 + shift) % grid.Height,
	}
	return head, headings[k%4]
}
