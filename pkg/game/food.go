package game

import "math/rand"

// randIntn is a helper to avoid direct rand.Intn calls in tests
var randIntn = rand.Intn

// placeFood picks a random cell outside the occupied set. It tries up
// to width*height random cells, then gives up and returns the last
// candidate even if occupied, so a crowded board cannot hang the tick.
func placeFood(occupied map[Position]bool, grid Size) Position {
	attempts := grid.Width * grid.Height
	var p Position
	for i := 0; i < attempts; i++ {
		p = Position{X: randIntn(grid.Width), Y: randIntn(grid.Height)}
		if !occupied[p] {
			return p
		}
	}
	return p
}

// foodIndex returns the index of the food item at p, or -1.
func foodIndex(food []Position, p Position) int {
	for i, f := range food {
		if f == p {
			return i
		}
	}
	return -1
}
