package game

// Direction is one of the four cardinal headings a snake can travel in.
// Wire payloads carry the upper-case names verbatim.
type Direction string

const (
	DirUp    Direction = "UP"
	DirDown  Direction = "DOWN"
	DirLeft  Direction = "LEFT"
	DirRight Direction = "RIGHT"
)

// Valid reports whether d is one of the four cardinal headings.
func (d Direction) Valid() bool {
	switch d {
	case DirUp, DirDown, DirLeft, DirRight:
		return true
	}
	return false
}

// Opposite returns the 180-degree reverse of d.
func (d Direction) Opposite() Direction {
	switch d {
	case DirUp:
		return DirDown
	case DirDown:
		return DirUp
	case DirLeft:
		return DirRight
	case DirRight:
		return DirLeft
	}
	return d
}

// Delta returns the per-tick cell offset for d. Y grows downward.
func (d Direction) Delta() (dx, dy int) {
	switch d {
	case DirUp:
		return 0, -1
	case DirDown:
		return 0, 1
	case DirLeft:
		return -1, 0
	case DirRight:
		return 1, 0
	}
	return 0, 0
}

// Position is a cell on the grid. (0,0) is the top-left corner.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Size is the playfield dimensions in cells.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Step returns the cell one move from p in direction d. The grid is a
// torus: leaving one edge re-enters on the opposite side.
func (p Position) Step(d Direction, grid Size) Position {
	dx, dy := d.Delta()
	return Position{
		X: (p.X + dx + grid.Width) % grid.Width,
		Y: (p.Y + dy + grid.Height) % grid.Height,
	}
}
