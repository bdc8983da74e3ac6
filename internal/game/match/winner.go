package match

// Line is a run of identical symbols that decides a match.
type Line struct {
	Symbol Symbol
	// Cells holds board indices from the start cell outward.
	Cells []int
}

// direction is a (row, col) step.
type direction struct {
	dr, dc int
}

// Scan order matters: the first direction that completes at the lowest
// start index is reported.
var directions = [...]direction{
	{0, 1},  // horizontal
	{1, 0},  // vertical
	{1, 1},  // diagonal
	{1, -1}, // anti-diagonal
}

// FindWinner scans board for winLength identical symbols in a row. Every
// occupied cell is tried as a start, in increasing index order, against the
// four directions. Runs never wrap past a grid edge.
//
// Precondition: len(board) == gridSize*gridSize; 1 <= winLength <= gridSize.
// Postcondition: on success len(line.Cells) == winLength and all cells hold
// line.Symbol.
func FindWinner(board []Symbol, gridSize, winLength int) (Line, bool) {
	if winLength < 1 || winLength > gridSize || len(board) != gridSize*gridSize {
		return Line{}, false
	}
	for start, sym := range board {
		if sym == Empty {
			continue
		}
		row, col := start/gridSize, start%gridSize
		for _, d := range directions {
			if !fits(row, col, d, gridSize, winLength) {
				continue
			}
			if cells, ok := run(board, gridSize, winLength, row, col, d, sym); ok {
				return Line{Symbol: sym, Cells: cells}, true
			}
		}
	}
	return Line{}, false
}

// fits reports whether a run of winLength starting at (row, col) along d
// stays on the board.
func fits(row, col int, d direction, gridSize, winLength int) bool {
	endRow := row + d.dr*(winLength-1)
	endCol := col + d.dc*(winLength-1)
	return endRow >= 0 && endRow < gridSize && endCol >= 0 && endCol < gridSize
}

func run(board []Symbol, gridSize, winLength, row, col int, d direction, sym Symbol) ([]int, bool) {
	cells := make([]int, 0, winLength)
	for i := 0; i < winLength; i++ {
		pos := (row+d.dr*i)*gridSize + col + d.dc*i
		if board[pos] != sym {
			return nil, false
		}
		cells = append(cells, pos)
	}
	return cells, true
}
