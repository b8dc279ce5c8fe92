package grid

import "github.com/alangmartini/godlyd/internal/protocol"

// ExtractPlain returns a plain-text snapshot: one string per visible row,
// trailing blanks trimmed, plus cursor position. Used by ReadGrid.
func (g *Grid) ExtractPlain() *protocol.PlainGrid {
	g.mu.Lock()
	defer g.mu.Unlock()

	viewport := g.viewportRowsLocked()
	rows := make([]string, len(viewport))
	for i, row := range viewport {
		rows[i] = rowText(row)
	}
	return &protocol.PlainGrid{
		Rows:      rows,
		CursorRow: g.cursorRow,
		CursorCol: g.cursorCol,
		Cols:      g.cols,
		NumRows:   g.rows,
		AltScreen: g.altScreen,
	}
}

func rowText(row []Cell) string {
	end := len(row)
	for end > 0 && row[end-1].Rune == ' ' {
		end--
	}
	out := make([]rune, end)
	for i := 0; i < end; i++ {
		out[i] = row[i].Rune
	}
	return string(out)
}

// ExtractFull returns a complete rich-cell snapshot (every row, every
// cell), taken under the same lock as dirty-row tracking so it cannot
// observe a torn mid-update state. Each call advances DiffSeq.
func (g *Grid) ExtractFull() *protocol.RichGrid {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.diffSeq++
	viewport := g.viewportRowsLocked()
	rows := make([][]Cell, len(viewport))
	for i, row := range viewport {
		cp := make([]Cell, len(row))
		copy(cp, row)
		rows[i] = cp
	}
	return &protocol.RichGrid{
		Rows:             rows,
		CursorRow:        g.cursorRow,
		CursorCol:        g.cursorCol,
		Title:            g.title,
		AltScreen:        g.altScreen,
		ScrollbackOffset: g.viewportOff,
		TotalScrollback:  len(g.scrollback),
		DiffSeq:          g.diffSeq,
	}
}

// ExtractDiff returns only the rows marked dirty since the last call,
// clearing the dirty bitmap as it goes. sinceSeq is compared against the
// grid's current DiffSeq: if the grid hasn't changed since the client last
// saw it, ExtractDiff returns an empty diff without touching dirty state.
// Either way the call advances DiffSeq. FullRepaint is a copy of
// fullRepaintPending; the grid does not itself detect a resize or
// alt-screen swap.
func (g *Grid) ExtractDiff(sinceSeq uint64, fullRepaintPending bool) *protocol.RichGridDiff {
	g.mu.Lock()
	defer g.mu.Unlock()

	if sinceSeq == g.diffSeq && !fullRepaintPending {
		g.diffSeq++
		return &protocol.RichGridDiff{
			CursorRow: g.cursorRow, CursorCol: g.cursorCol,
			Title: g.title, AltScreen: g.altScreen,
			ScrollbackOffset: g.viewportOff, TotalScrollback: len(g.scrollback),
			DiffSeq: g.diffSeq,
		}
	}

	var dirtyRows []protocol.RichGridRow
	for i, isDirty := range g.dirty {
		if !isDirty {
			continue
		}
		cp := make([]Cell, len(g.cells[i]))
		copy(cp, g.cells[i])
		dirtyRows = append(dirtyRows, protocol.RichGridRow{Index: i, Cells: cp})
		g.dirty[i] = false
	}
	g.diffSeq++
	return &protocol.RichGridDiff{
		DirtyRows:        dirtyRows,
		CursorRow:        g.cursorRow,
		CursorCol:        g.cursorCol,
		Title:            g.title,
		AltScreen:        g.altScreen,
		ScrollbackOffset: g.viewportOff,
		TotalScrollback:  len(g.scrollback),
		DiffSeq:          g.diffSeq,
		FullRepaint:      fullRepaintPending,
	}
}

// DiffSeq returns the grid's current sequence number without extracting a
// snapshot, used by callers deciding whether a poll would be a no-op.
func (g *Grid) DiffSeq() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.diffSeq
}
