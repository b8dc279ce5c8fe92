// Package grid maintains the in-memory terminal screen model that a VT
// parser (internal/vtparser) drives via its Performer interface: a
// rows-by-cols cell matrix, cursor, scrollback, and dirty-row tracking,
// suitable for snapshotting to clients as plain text or rich cell grids.
package grid

import (
	"strconv"
	"sync"

	"github.com/alangmartini/godlyd/internal/vtparser"
)

// DefaultScrollbackCap is the number of completed rows retained once they
// scroll off the top of the viewport.
const DefaultScrollbackCap = 10_000

// Grid is a terminal screen. It implements vtparser.Performer, so PTY
// output can be fed directly into Grid.Parser().Advance(grid, bytes). All
// mutation happens under one mutex, matching the invariant that
// ExtractFull and ExtractDiff observe a consistent snapshot.
type Grid struct {
	mu sync.Mutex

	parser vtparser.Parser

	rows, cols int
	cells      [][]Cell

	cursorRow, cursorCol           int
	savedCursorRow, savedCursorCol int
	cursorVisible                  bool
	originMode                     bool

	pen attrs

	altScreen  bool
	altCells   [][]Cell
	altCursorR int
	altCursorC int

	title string

	scrollback    [][]Cell
	scrollbackCap int
	viewportOff   int

	scrollTop, scrollBottom int // 0-based, inclusive

	dirty   []bool
	diffSeq uint64

	upload UploadStage
}

// New creates a Grid with the given viewport dimensions.
func New(rows, cols int) *Grid {
	g := &Grid{
		rows:          rows,
		cols:          cols,
		cursorVisible: true,
		scrollbackCap: DefaultScrollbackCap,
	}
	g.pen.reset()
	g.cells = newCellMatrix(rows, cols)
	g.dirty = make([]bool, rows)
	g.scrollTop = 0
	g.scrollBottom = rows - 1
	return g
}

func newCellMatrix(rows, cols int) [][]Cell {
	m := make([][]Cell, rows)
	for r := range m {
		row := make([]Cell, cols)
		for c := range row {
			row[c] = blankCell()
		}
		m[r] = row
	}
	return m
}

// Parser returns the VT parser driving this grid; callers feed PTY output
// through Parser().Advance(grid, chunk).
func (g *Grid) Parser() *vtparser.Parser { return &g.parser }

// Feed is a convenience wrapper around Parser().Advance(g, data) that takes
// the grid's own lock is NOT held here; vtparser.Parser is not itself
// thread-safe, and the reader goroutine is the sole owner of the parser, so
// Feed locks only for the duration of the Performer callbacks it triggers.
func (g *Grid) Feed(data []byte) {
	g.parser.Advance(g, data)
}

// Resize changes the viewport dimensions, clamping the cursor and
// scrollback-insertion region into range without reflowing existing text.
func (g *Grid) Resize(rows, cols int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if rows == g.rows && cols == g.cols {
		return
	}
	newCells := newCellMatrix(rows, cols)
	for r := 0; r < rows && r < g.rows; r++ {
		copy(newCells[r], g.cells[r])
	}
	g.cells = newCells
	g.rows, g.cols = rows, cols
	g.dirty = make([]bool, rows)
	if g.cursorRow >= rows {
		g.cursorRow = rows - 1
	}
	if g.cursorCol >= cols {
		g.cursorCol = cols - 1
	}
	g.scrollTop = 0
	g.scrollBottom = rows - 1
	g.markAllDirty()
	g.diffSeq++
}

// SetScrollbackOffset sets how many rows back from live the viewport shows,
// clamped to [0, len(scrollback)] rather than erroring on out-of-range
// requests.
func (g *Grid) SetScrollbackOffset(offset int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if offset < 0 {
		offset = 0
	}
	if offset > len(g.scrollback) {
		offset = len(g.scrollback)
	}
	g.viewportOff = offset
}

// viewportRowsLocked returns the g.rows rows currently visible, composed
// from scrollback followed by the live cells when viewportOff is non-zero.
// Callers must hold g.mu. The returned rows are not copies; callers that
// hand them to clients must copy before releasing the lock.
func (g *Grid) viewportRowsLocked() [][]Cell {
	if g.viewportOff <= 0 {
		return g.cells
	}

	off := g.viewportOff
	if off > len(g.scrollback) {
		off = len(g.scrollback)
	}

	combined := make([][]Cell, 0, len(g.scrollback)+len(g.cells))
	combined = append(combined, g.scrollback...)
	combined = append(combined, g.cells...)

	end := len(combined) - off
	if end > len(combined) {
		end = len(combined)
	}
	start := end - g.rows
	if start < 0 {
		start = 0
	}

	rows := combined[start:end]
	if len(rows) < g.rows {
		pad := make([][]Cell, g.rows-len(rows))
		for i := range pad {
			blankRow := make([]Cell, g.cols)
			for c := range blankRow {
				blankRow[c] = blankCell()
			}
			pad[i] = blankRow
		}
		rows = append(pad, rows...)
	}
	return rows
}

func (g *Grid) markAllDirty() {
	for i := range g.dirty {
		g.dirty[i] = true
	}
}

func (g *Grid) markDirty(row int) {
	if row >= 0 && row < len(g.dirty) {
		g.dirty[row] = true
	}
}

// UploadStage returns the inline-image upload staging area attached to
// this grid. No decode/render logic is implemented; it is a seam for a
// future image pipeline.
func (g *Grid) UploadStage() *UploadStage { return &g.upload }

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func parseDecimal(b []byte) int {
	n, err := strconv.Atoi(string(b))
	if err != nil {
		return 0
	}
	return n
}
