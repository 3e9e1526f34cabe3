package tetris

// Snapshot is the per-player state broadcast every tick. Board is row-major,
// with the ghost and active piece composited in as GhostCell and ActiveCell.
type Snapshot struct {
	Board    []int `json:"board"`
	Hold     Piece `json:"hold"`
	Score    int   `json:"score"`
	Lines    int   `json:"lines"`
	Level    int   `json:"level"`
	GameOver bool  `json:"gameOver"`
}

// Snapshot renders the composite board and counters.
func (e *Engine) Snapshot() Snapshot {
	board := make([]int, Width*Height)
	for i, p := range e.board {
		board[i] = int(p)
	}

	inBounds := func(x, y int) bool { return x >= 0 && x < Width && y >= 0 && y < Height }

	if e.active.Piece != Empty {
		ghost := e.active
		ghost.Y = e.ghostY
		ghost.cells(func(x, y int) {
			if inBounds(x, y) && board[y*Width+x] == 0 {
				board[y*Width+x] = GhostCell
			}
		})
		e.active.cells(func(x, y int) {
			if inBounds(x, y) {
				board[y*Width+x] = ActiveCell
			}
		})
	}

	return Snapshot{
		Board:    board,
		Hold:     e.hold,
		Score:    e.score,
		Lines:    e.lines,
		Level:    e.level,
		GameOver: e.gameOver,
	}
}
