package grid

import "github.com/alangmartini/godlyd/internal/protocol"

// Cell is one terminal cell: a rune plus its SGR attributes. It is the same
// shape as protocol.Cell so grid snapshots serialize without conversion.
type Cell = protocol.Cell

func blankCell() Cell {
	return Cell{Rune: ' ', FG: defaultFG, BG: defaultBG}
}

// defaultFG/defaultBG mark "terminal default color" (SGR 39/49, or no SGR
// applied yet) as distinct from 0x000000 black, which is a real, requestable
// color (SGR 30). Both are outside the 24-bit RGB range any real color can
// occupy.
const (
	defaultFG uint32 = 0xffffffff
	defaultBG uint32 = 0xfffffffe
)

// attrs is the SGR pen state carried forward between printed cells until
// the next SGR (CSI ... m) sequence changes it.
type attrs struct {
	fg, bg                           uint32
	bold, dim, italic, underline, rv bool
}

func (a attrs) apply(c *Cell) {
	c.FG = a.fg
	c.BG = a.bg
	c.Bold = a.bold
	c.Dim = a.dim
	c.Italic = a.italic
	c.Underline = a.underline
	c.Reverse = a.rv
}

func (a *attrs) reset() { *a = attrs{fg: defaultFG, bg: defaultBG} }
