package grid

import "github.com/alangmartini/godlyd/internal/vtparser"

var _ vtparser.Performer = (*Grid)(nil)

// Print writes a single rune at the cursor and advances it, wrapping to the
// next line when the current row is full.
func (g *Grid) Print(r rune) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.printLocked(r)
}

// PrintString batches a run of printable runes under a single lock
// acquisition, matching the VT parser's ground-state fast path.
func (g *Grid) PrintString(s string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, r := range s {
		g.printLocked(r)
	}
}

func (g *Grid) printLocked(r rune) {
	if g.cursorCol >= g.cols {
		g.lineFeedLocked()
		g.cursorCol = 0
	}
	cell := blankCell()
	cell.Rune = r
	g.pen.apply(&cell)
	g.cells[g.cursorRow][g.cursorCol] = cell
	g.markDirty(g.cursorRow)
	g.cursorCol++
	g.diffSeq++
}

// Execute handles C0/C1 control codes: BS, HT, LF, VT, FF, CR, BEL.
func (g *Grid) Execute(b byte) {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch b {
	case '\b':
		if g.cursorCol > 0 {
			g.cursorCol--
		}
	case '\t':
		next := ((g.cursorCol / 8) + 1) * 8
		if next >= g.cols {
			next = g.cols - 1
		}
		g.cursorCol = next
	case '\n', '\v', '\f':
		g.lineFeedLocked()
	case '\r':
		g.cursorCol = 0
	case 0x07: // BEL: no-op, no audible/visual bell modeled
	}
	g.diffSeq++
}

func (g *Grid) lineFeedLocked() {
	if g.cursorRow == g.scrollBottom {
		g.scrollUpLocked(1)
		return
	}
	if g.cursorRow < g.rows-1 {
		g.cursorRow++
	}
}

// scrollUpLocked shifts rows [scrollTop, scrollBottom] up by n, pushing
// rows that leave the top of that region into scrollback only when the
// region starts at the top row and we're not on the alt screen.
func (g *Grid) scrollUpLocked(n int) {
	for i := 0; i < n; i++ {
		if g.scrollTop == 0 && !g.altScreen {
			g.pushScrollbackLocked(g.cells[g.scrollTop])
		}
		copy(g.cells[g.scrollTop:g.scrollBottom], g.cells[g.scrollTop+1:g.scrollBottom+1])
		blank := make([]Cell, g.cols)
		for c := range blank {
			blank[c] = blankCell()
		}
		g.cells[g.scrollBottom] = blank
	}
	g.markAllDirty()
}

func (g *Grid) pushScrollbackLocked(row []Cell) {
	cp := make([]Cell, len(row))
	copy(cp, row)
	g.scrollback = append(g.scrollback, cp)
	if len(g.scrollback) > g.scrollbackCap {
		g.scrollback = g.scrollback[len(g.scrollback)-g.scrollbackCap:]
	}
	// A scrolled-up viewport is anchored to an absolute position in
	// scrollback; as a new row pushes in behind it, the offset must grow by
	// the same amount or the anchored content would appear to drift down.
	if g.viewportOff > 0 && !g.altScreen && g.scrollTop == 0 {
		g.viewportOff++
		if g.viewportOff > len(g.scrollback) {
			g.viewportOff = len(g.scrollback)
		}
	}
}

// Hook/Put/PutSlice/Unhook handle DCS sequences. Every DCS payload except a
// `+q` query is staged in UploadStage (Sixel arrives this way); Unhook
// finalizes the stage and discards the bytes without decoding them.
func (g *Grid) Hook(params *vtparser.Params, intermediates []byte, ignore bool, action byte) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(intermediates) > 0 && intermediates[0] == '+' && action == 'q' {
		return // DECRQSS-style query, not implemented
	}
	g.upload.Begin(action)
}

func (g *Grid) Put(b byte) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.upload.Append([]byte{b})
}

func (g *Grid) PutSlice(data []byte) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.upload.Append(data)
}

func (g *Grid) Unhook() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.upload.Finalize()
}

// EscDispatch handles two-character escape sequences: save/restore cursor
// (DECSC/DECRC) and index/next-line/reverse-index.
func (g *Grid) EscDispatch(intermediates []byte, ignore bool, b byte) {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch b {
	case '7':
		g.savedCursorRow, g.savedCursorCol = g.cursorRow, g.cursorCol
	case '8':
		g.cursorRow, g.cursorCol = g.savedCursorRow, g.savedCursorCol
	case 'D': // IND
		g.lineFeedLocked()
	case 'E': // NEL
		g.lineFeedLocked()
		g.cursorCol = 0
	case 'M': // RI
		if g.cursorRow == g.scrollTop {
			g.scrollDownLocked(1)
		} else if g.cursorRow > 0 {
			g.cursorRow--
		}
	case 'c': // RIS
		g.resetLocked()
	}
	g.diffSeq++
}

func (g *Grid) scrollDownLocked(n int) {
	for i := 0; i < n; i++ {
		copy(g.cells[g.scrollTop+1:g.scrollBottom+1], g.cells[g.scrollTop:g.scrollBottom])
		blank := make([]Cell, g.cols)
		for c := range blank {
			blank[c] = blankCell()
		}
		g.cells[g.scrollTop] = blank
	}
	g.markAllDirty()
}

func (g *Grid) resetLocked() {
	g.cells = newCellMatrix(g.rows, g.cols)
	g.cursorRow, g.cursorCol = 0, 0
	g.pen.reset()
	g.scrollTop, g.scrollBottom = 0, g.rows-1
	g.altScreen = false
	g.cursorVisible = true
	g.originMode = false
	g.markAllDirty()
}
