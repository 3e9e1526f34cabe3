// internal/tetris/engine.go
package tetris

import "math/rand"

const (
	Width  = 10
	Height = 20

	spawnX = 3
	spawnY = -1

	// DefaultDropInterval is the number of steps between automatic one-row descents.
	DefaultDropInterval = 10
)

// kicks are tried in order when a rotation collides at the current origin.
var kicks = [4][2]int{{0, 0}, {-1, 0}, {1, 0}, {0, -1}}

// lineScores is indexed by the number of rows cleared by one lock.
var lineScores = [5]int{0, 100, 300, 500, 800}

// State is a read-only view of an engine.
type State struct {
	Active     Active
	Hold       Piece
	HoldLocked bool
	Score      int
	Lines      int
	Level      int
	GhostY     int
	GameOver   bool
}

// Engine simulates one player's board. It is not safe for concurrent use; the
// match loop owns it.
type Engine struct {
	board [Width * Height]Piece
	rng   *rand.Rand
	bag   []Piece

	dropInterval    int
	framesSinceDrop int

	active     Active
	hold       Piece
	holdLocked bool

	score, lines, level int
	ghostY              int
	gameOver            bool
}

// New returns an engine with an empty board and the first piece spawned.
// dropInterval <= 0 uses DefaultDropInterval.
func New(seed int64, dropInterval int) *Engine {
	if dropInterval <= 0 {
		dropInterval = DefaultDropInterval
	}
	e := &Engine{
		rng:          rand.New(rand.NewSource(seed)),
		dropInterval: dropInterval,
	}
	e.Reset()
	return e
}

// Reset clears the board and score and spawns a fresh piece. The random source is not reseeded.
func (e *Engine) Reset() {
	e.board = [Width * Height]Piece{}
	e.bag = e.bag[:0]
	e.framesSinceDrop = 0
	e.hold = Empty
	e.holdLocked = false
	e.score, e.lines, e.level = 0, 0, 1
	e.gameOver = false
	e.spawn()
	e.computeGhost()
}

// State returns the current engine state.
func (e *Engine) State() State {
	return State{
		Active:     e.active,
		Hold:       e.hold,
		HoldLocked: e.holdLocked,
		Score:      e.score,
		Lines:      e.lines,
		Level:      e.level,
		GhostY:     e.ghostY,
		GameOver:   e.gameOver,
	}
}

// Board returns the locked cells only, row-major.
func (e *Engine) Board() [Width * Height]Piece {
	return e.board
}

// Next returns the pieces left in the current bag, in draw order.
func (e *Engine) Next() []Piece {
	return append([]Piece(nil), e.bag...)
}

// Step applies one action and advances the drop timer. It reports whether
// anything changed. Once the game is over Step is a no-op.
func (e *Engine) Step(a Action) bool {
	if e.gameOver {
		return false
	}
	changed := false

	switch a {
	case Left:
		changed = e.move(-1, 0)
	case Right:
		changed = e.move(1, 0)
	case SoftDrop:
		if e.move(0, 1) {
			changed = true
			e.framesSinceDrop = 0
		}
	case HardDrop:
		for e.move(0, 1) {
		}
		e.lock()
		e.framesSinceDrop = 0
		changed = true
	case RotateCW:
		changed = e.rotate(1)
	case RotateCCW:
		changed = e.rotate(-1)
	case Hold:
		changed = e.swapHold()
	}

	if a != HardDrop && !e.gameOver {
		e.framesSinceDrop++
		if e.framesSinceDrop >= e.dropInterval {
			if !e.move(0, 1) {
				e.lock()
			}
			e.framesSinceDrop = 0
			changed = true
		}
	}

	e.computeGhost()
	return changed
}

func (e *Engine) canPlace(a Active) bool {
	ok := true
	a.cells(func(x, y int) {
		if x < 0 || x >= Width || y >= Height {
			ok = false
			return
		}
		if y >= 0 && e.board[y*Width+x] != Empty {
			ok = false
		}
	})
	return ok
}

func (e *Engine) move(dx, dy int) bool {
	t := e.active
	t.X += dx
	t.Y += dy
	if !e.canPlace(t) {
		return false
	}
	e.active = t
	return true
}

func (e *Engine) rotate(dir int) bool {
	t := e.active
	if dir > 0 {
		t.Rot = (t.Rot + 1) & 3
	} else {
		t.Rot = (t.Rot + 3) & 3
	}
	for _, k := range kicks {
		t.X = e.active.X + k[0]
		t.Y = e.active.Y + k[1]
		if e.canPlace(t) {
			e.active = t
			return true
		}
	}
	return false
}

// swapHold exchanges the active piece with the hold slot, at most once per piece.
func (e *Engine) swapHold() bool {
	if e.holdLocked {
		return false
	}
	held := e.hold
	e.hold = e.active.Piece
	e.holdLocked = true
	if held == Empty {
		e.spawn()
	} else {
		e.place(held)
	}
	e.framesSinceDrop = 0
	return true
}

func (e *Engine) refillBag() {
	if len(e.bag) > 0 {
		return
	}
	pieces := allPieces
	e.rng.Shuffle(len(pieces), func(i, j int) { pieces[i], pieces[j] = pieces[j], pieces[i] })
	e.bag = append(e.bag, pieces[:]...)
}

func (e *Engine) draw() Piece {
	e.refillBag()
	p := e.bag[0]
	e.bag = e.bag[1:]
	return p
}

func (e *Engine) spawn() {
	e.place(e.draw())
}

// place puts p at the spawn point, one row lower if the first spot collides.
func (e *Engine) place(p Piece) {
	e.active = Active{Piece: p, X: spawnX, Y: spawnY}
	if !e.canPlace(e.active) {
		e.active.Y = 0
	}
	if !e.canPlace(e.active) {
		e.gameOver = true
	}
}

func (e *Engine) lock() {
	e.active.cells(func(x, y int) {
		if x >= 0 && x < Width && y >= 0 && y < Height {
			e.board[y*Width+x] = e.active.Piece
		}
	})
	e.clearLines()
	e.spawn()
	e.holdLocked = false
}

// clearLines removes every full row and scores them at the post-clear level.
func (e *Engine) clearLines() int {
	cleared := 0
	for y := Height - 1; y >= 0; y-- {
		if !e.rowFull(y) {
			continue
		}
		cleared++
		copy(e.board[Width:(y+1)*Width], e.board[0:y*Width])
		for x := 0; x < Width; x++ {
			e.board[x] = Empty
		}
		y++ // re-check the row that moved down into y
	}
	if cleared > 4 {
		cleared = 4
	}
	e.lines += cleared
	e.level = 1 + e.lines/10
	e.score += lineScores[cleared] * e.level
	return cleared
}

func (e *Engine) rowFull(y int) bool {
	for x := 0; x < Width; x++ {
		if e.board[y*Width+x] == Empty {
			return false
		}
	}
	return true
}

func (e *Engine) computeGhost() {
	g := e.active
	for {
		n := g
		n.Y++
		if !e.canPlace(n) {
			break
		}
		g = n
	}
	e.ghostY = g.Y
}
