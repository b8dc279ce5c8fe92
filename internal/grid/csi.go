package grid

import "github.com/alangmartini/godlyd/internal/vtparser"

// CsiDispatch implements the subset of CSI final actions a terminal
// multiplexer core needs to keep a faithful screen model: cursor motion,
// erase, scroll-region, insert/delete, SGR, and DEC private modes.
func (g *Grid) CsiDispatch(params *vtparser.Params, intermediates []byte, ignore bool, final byte) {
	g.mu.Lock()
	defer g.mu.Unlock()

	private := len(intermediates) > 0 && (intermediates[0] == '?' || intermediates[0] == '>' || intermediates[0] == '<' || intermediates[0] == '=')
	if private && len(intermediates) > 0 && intermediates[0] == '?' {
		g.decPrivateModeLocked(params, final)
		g.diffSeq++
		return
	}

	p := func(i int, def uint16) int {
		v := params.Param(i, def)
		if v == 0 && def != 0 {
			return int(def)
		}
		return int(v)
	}

	switch final {
	case 'A': // CUU
		g.cursorRow = clamp(g.cursorRow-p(0, 1), g.topLocked(), g.bottomLocked())
	case 'B': // CUD
		g.cursorRow = clamp(g.cursorRow+p(0, 1), g.topLocked(), g.bottomLocked())
	case 'C': // CUF
		g.cursorCol = clamp(g.cursorCol+p(0, 1), 0, g.cols-1)
	case 'D': // CUB
		g.cursorCol = clamp(g.cursorCol-p(0, 1), 0, g.cols-1)
	case 'E': // CNL
		g.cursorRow = clamp(g.cursorRow+p(0, 1), 0, g.rows-1)
		g.cursorCol = 0
	case 'F': // CPL
		g.cursorRow = clamp(g.cursorRow-p(0, 1), 0, g.rows-1)
		g.cursorCol = 0
	case 'G', '`': // CHA / HPA
		g.cursorCol = clamp(p(0, 1)-1, 0, g.cols-1)
	case 'd': // VPA
		g.cursorRow = clamp(p(0, 1)-1, 0, g.rows-1)
	case 'H', 'f': // CUP / HVP
		row, col := p(0, 1), p(1, 1)
		g.cursorRow = clamp(row-1, 0, g.rows-1)
		g.cursorCol = clamp(col-1, 0, g.cols-1)
	case 'J': // ED
		g.eraseDisplayLocked(p(0, 0))
	case 'K': // EL
		g.eraseLineLocked(p(0, 0))
	case 'L': // IL
		g.insertLinesLocked(p(0, 1))
	case 'M': // DL
		g.deleteLinesLocked(p(0, 1))
	case 'P': // DCH
		g.deleteCharsLocked(p(0, 1))
	case '@': // ICH
		g.insertCharsLocked(p(0, 1))
	case 'X': // ECH
		g.eraseCharsLocked(p(0, 1))
	case 'S': // SU
		g.scrollUpLocked(p(0, 1))
	case 'T': // SD
		g.scrollDownLocked(p(0, 1))
	case 'r': // DECSTBM
		top, bottom := p(0, 1)-1, p(1, uint16(g.rows))-1
		if top < 0 {
			top = 0
		}
		if bottom >= g.rows || bottom < top {
			bottom = g.rows - 1
		}
		g.scrollTop, g.scrollBottom = top, bottom
		g.cursorRow, g.cursorCol = 0, 0
	case 's': // SCOSC
		g.savedCursorRow, g.savedCursorCol = g.cursorRow, g.cursorCol
	case 'u': // SCORC
		g.cursorRow, g.cursorCol = g.savedCursorRow, g.savedCursorCol
	case 'm': // SGR
		g.sgrLocked(params)
	}
	g.diffSeq++
}

func (g *Grid) topLocked() int    { return g.scrollTop }
func (g *Grid) bottomLocked() int { return g.scrollBottom }

func (g *Grid) decPrivateModeLocked(params *vtparser.Params, final byte) {
	set := final == 'h'
	if final != 'h' && final != 'l' {
		return
	}
	for _, mode := range params.All() {
		switch mode {
		case 25: // cursor visibility
			g.cursorVisible = set
		case 6: // origin mode
			g.originMode = set
		case 1049, 47, 1047: // alt screen buffer
			g.setAltScreenLocked(set)
		case 2004: // bracketed paste: client-side concern, nothing to model
		}
	}
}

func (g *Grid) setAltScreenLocked(enable bool) {
	if enable == g.altScreen {
		return
	}
	if enable {
		g.altCells = g.cells
		g.altCursorR, g.altCursorC = g.cursorRow, g.cursorCol
		g.cells = newCellMatrix(g.rows, g.cols)
		g.cursorRow, g.cursorCol = 0, 0
	} else {
		g.cells = g.altCells
		g.cursorRow, g.cursorCol = g.altCursorR, g.altCursorC
		g.altCells = nil
	}
	g.altScreen = enable
	g.markAllDirty()
}

func (g *Grid) eraseDisplayLocked(mode int) {
	switch mode {
	case 0:
		g.eraseLineLocked(0)
		for r := g.cursorRow + 1; r < g.rows; r++ {
			g.blankRow(r)
		}
	case 1:
		g.eraseLineLocked(1)
		for r := 0; r < g.cursorRow; r++ {
			g.blankRow(r)
		}
	case 2, 3:
		for r := 0; r < g.rows; r++ {
			g.blankRow(r)
		}
	}
}

func (g *Grid) blankRow(r int) {
	for c := range g.cells[r] {
		g.cells[r][c] = blankCell()
	}
	g.markDirty(r)
}

func (g *Grid) eraseLineLocked(mode int) {
	row := g.cells[g.cursorRow]
	switch mode {
	case 0:
		for c := g.cursorCol; c < len(row); c++ {
			row[c] = blankCell()
		}
	case 1:
		for c := 0; c <= g.cursorCol && c < len(row); c++ {
			row[c] = blankCell()
		}
	case 2:
		for c := range row {
			row[c] = blankCell()
		}
	}
	g.markDirty(g.cursorRow)
}

func (g *Grid) insertLinesLocked(n int) {
	if g.cursorRow < g.scrollTop || g.cursorRow > g.scrollBottom {
		return
	}
	for i := 0; i < n; i++ {
		copy(g.cells[g.cursorRow+1:g.scrollBottom+1], g.cells[g.cursorRow:g.scrollBottom])
		g.blankRow(g.cursorRow)
	}
	g.markAllDirty()
}

func (g *Grid) deleteLinesLocked(n int) {
	if g.cursorRow < g.scrollTop || g.cursorRow > g.scrollBottom {
		return
	}
	for i := 0; i < n; i++ {
		copy(g.cells[g.cursorRow:g.scrollBottom], g.cells[g.cursorRow+1:g.scrollBottom+1])
		g.blankRow(g.scrollBottom)
	}
	g.markAllDirty()
}

func (g *Grid) insertCharsLocked(n int) {
	row := g.cells[g.cursorRow]
	if g.cursorCol >= len(row) {
		return
	}
	end := len(row) - n
	if end < g.cursorCol {
		end = g.cursorCol
	}
	copy(row[g.cursorCol+n:], row[g.cursorCol:end])
	for c := g.cursorCol; c < g.cursorCol+n && c < len(row); c++ {
		row[c] = blankCell()
	}
	g.markDirty(g.cursorRow)
}

func (g *Grid) deleteCharsLocked(n int) {
	row := g.cells[g.cursorRow]
	if g.cursorCol >= len(row) {
		return
	}
	copy(row[g.cursorCol:], row[g.cursorCol+n:])
	for c := len(row) - n; c < len(row); c++ {
		if c >= g.cursorCol {
			row[c] = blankCell()
		}
	}
	g.markDirty(g.cursorRow)
}

func (g *Grid) eraseCharsLocked(n int) {
	row := g.cells[g.cursorRow]
	for c := g.cursorCol; c < g.cursorCol+n && c < len(row); c++ {
		row[c] = blankCell()
	}
	g.markDirty(g.cursorRow)
}

var sgrPalette = [8]uint32{0x000000, 0xcd0000, 0x00cd00, 0xcdcd00, 0x0000ee, 0xcd00cd, 0x00cdcd, 0xe5e5e5}

func (g *Grid) sgrLocked(params *vtparser.Params) {
	all := params.All()
	if len(all) == 0 {
		g.pen.reset()
		return
	}
	for i := 0; i < len(all); i++ {
		switch v := all[i]; v {
		case 0:
			g.pen.reset()
		case 1:
			g.pen.bold = true
		case 2:
			g.pen.dim = true
		case 3:
			g.pen.italic = true
		case 4:
			g.pen.underline = true
		case 7:
			g.pen.rv = true
		case 22:
			g.pen.bold, g.pen.dim = false, false
		case 23:
			g.pen.italic = false
		case 24:
			g.pen.underline = false
		case 27:
			g.pen.rv = false
		case 39:
			g.pen.fg = defaultFG
		case 49:
			g.pen.bg = defaultBG
		default:
			switch {
			case v >= 30 && v <= 37:
				g.pen.fg = sgrPalette[v-30]
			case v >= 40 && v <= 47:
				g.pen.bg = sgrPalette[v-40]
			case v >= 90 && v <= 97:
				g.pen.fg = sgrPalette[v-90]
			case v >= 100 && v <= 107:
				g.pen.bg = sgrPalette[v-100]
			case v == 38 || v == 48:
				color, consumed := g.extendedColorLocked(params, i)
				if v == 38 {
					g.pen.fg = color
				} else {
					g.pen.bg = color
				}
				i += consumed
			}
		}
	}
}

// extendedColorLocked parses a 256-color (`38;5;n`) or true-color
// (`38;2;r;g;b`) sequence starting at the `38`/`48` parameter, also
// accepting the colon-subparameter form (`38:2:r:g:b`) via Subparams.
func (g *Grid) extendedColorLocked(params *vtparser.Params, i int) (uint32, int) {
	if sub := params.Subparams(i); len(sub) > 1 {
		if sub[1] == 2 && len(sub) >= 5 {
			return rgb(uint32(sub[2]), uint32(sub[3]), uint32(sub[4])), 0
		}
		if sub[1] == 5 && len(sub) >= 3 {
			return ansi256(uint32(sub[2])), 0
		}
	}
	all := params.All()
	if i+1 >= len(all) {
		return 0, 0
	}
	switch all[i+1] {
	case 2:
		if i+4 < len(all) {
			return rgb(uint32(all[i+2]), uint32(all[i+3]), uint32(all[i+4])), 3
		}
	case 5:
		if i+2 < len(all) {
			return ansi256(uint32(all[i+2])), 2
		}
	}
	return 0, 0
}

func rgb(r, g, b uint32) uint32 { return (r << 16) | (g << 8) | b }

func ansi256(n uint32) uint32 {
	if n < 8 {
		return sgrPalette[n]
	}
	if n < 16 {
		return sgrPalette[n-8]
	}
	if n < 232 {
		n -= 16
		r := (n / 36) * 51
		gg := ((n / 6) % 6) * 51
		b := (n % 6) * 51
		return rgb(r, gg, b)
	}
	level := 8 + (n-232)*10
	return rgb(level, level, level)
}

// OscDispatch handles OSC 0/2 (set window title).
func (g *Grid) OscDispatch(params [][]byte, bellTerminated bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(params) < 2 {
		return
	}
	switch string(params[0]) {
	case "0", "2":
		g.title = string(params[1])
	}
	g.diffSeq++
}
