package tetris

import "fmt"

// Piece is a shape id. The same value is written into the board when a piece locks.
type Piece uint8

const (
	Empty Piece = iota
	I
	O
	T
	S
	Z
	J
	L
)

// Reserved cell values used only in snapshots.
const (
	GhostCell  = 8
	ActiveCell = 9
)

var pieceNames = [...]string{"Empty", "I", "O", "T", "S", "Z", "J", "L"}

func (p Piece) String() string {
	if int(p) < len(pieceNames) {
		return pieceNames[p]
	}
	return fmt.Sprintf("Piece(%d)", uint8(p))
}

// shapes holds every piece in rotation 0 inside a 4x4 box, indexed [piece][row][col].
var shapes = [8][4][4]uint8{
	Empty: {},
	I:     {{0, 0, 0, 0}, {1, 1, 1, 1}, {0, 0, 0, 0}, {0, 0, 0, 0}},
	O:     {{0, 0, 0, 0}, {0, 1, 1, 0}, {0, 1, 1, 0}, {0, 0, 0, 0}},
	T:     {{0, 0, 0, 0}, {1, 1, 1, 0}, {0, 1, 0, 0}, {0, 0, 0, 0}},
	S:     {{0, 0, 0, 0}, {0, 1, 1, 0}, {1, 1, 0, 0}, {0, 0, 0, 0}},
	Z:     {{0, 0, 0, 0}, {1, 1, 0, 0}, {0, 1, 1, 0}, {0, 0, 0, 0}},
	J:     {{0, 0, 0, 0}, {1, 1, 1, 0}, {1, 0, 0, 0}, {0, 0, 0, 0}},
	L:     {{0, 0, 0, 0}, {1, 1, 1, 0}, {0, 0, 1, 0}, {0, 0, 0, 0}},
}

// allPieces is the content of one bag.
var allPieces = [7]Piece{I, O, T, S, Z, J, L}

// rotXY maps a box coordinate through rot quarter turns.
func rotXY(x, y, rot int) (int, int) {
	switch rot & 3 {
	case 1:
		return 3 - y, x
	case 2:
		return 3 - x, 3 - y
	case 3:
		return y, 3 - x
	}
	return x, y
}

// occupied reports whether box cell (dx, dy) is filled for p at rotation rot.
func occupied(p Piece, rot, dx, dy int) bool {
	if p == Empty || int(p) >= len(shapes) {
		return false
	}
	if dx < 0 || dx >= 4 || dy < 0 || dy >= 4 {
		return false
	}
	x, y := rotXY(dx, dy, rot)
	return shapes[p][y][x] != 0
}

// Active is the falling piece. X and Y locate the top-left of its 4x4 box and
// may be negative while the piece is partly above the board.
type Active struct {
	Piece Piece `json:"piece"`
	Rot   int   `json:"rot"`
	X     int   `json:"x"`
	Y     int   `json:"y"`
}

// cells calls fn for every board coordinate covered by a.
func (a Active) cells(fn func(x, y int)) {
	for dy := 0; dy < 4; dy++ {
		for dx := 0; dx < 4; dx++ {
			if occupied(a.Piece, a.Rot, dx, dy) {
				fn(a.X+dx, a.Y+dy)
			}
		}
	}
}
