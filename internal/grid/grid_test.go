package grid

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFeedPrintsPlainText(t *testing.T) {
	g := New(5, 10)
	g.Feed([]byte("hi"))

	plain := g.ExtractPlain()
	require.Equal(t, "hi", plain.Rows[0])
	require.Equal(t, 0, plain.CursorRow)
	require.Equal(t, 2, plain.CursorCol)
}

func TestFeedCursorMovementCSI(t *testing.T) {
	g := New(5, 10)
	g.Feed([]byte("\x1b[3;5Hx"))

	plain := g.ExtractPlain()
	require.Equal(t, 2, plain.CursorRow) // 1-based CSI row 3 -> 0-based 2
	require.Equal(t, 5, plain.CursorCol) // printed one char after moving to col 5 (0-based 4)
	require.Equal(t, "    x", plain.Rows[2])
}

func TestResizeClampsCursorWithoutReflow(t *testing.T) {
	g := New(5, 10)
	g.Feed([]byte("\x1b[5;10H")) // move to bottom-right corner

	g.Resize(3, 6)

	plain := g.ExtractPlain()
	require.Equal(t, 2, plain.CursorRow)
	require.Equal(t, 5, plain.CursorCol)
	require.Equal(t, 3, plain.NumRows)
	require.Equal(t, 6, plain.Cols)
}

func TestSetScrollbackOffsetClamps(t *testing.T) {
	g := New(5, 10)
	g.SetScrollbackOffset(-5)
	g.SetScrollbackOffset(999999)
	full := g.ExtractFull()
	require.Equal(t, full.TotalScrollback, full.ScrollbackOffset)
}

func TestExtractDiffReturnsEmptyWhenUpToDate(t *testing.T) {
	g := New(5, 10)
	g.Feed([]byte("hello"))
	seq := g.DiffSeq()

	diff := g.ExtractDiff(seq, false)
	require.Empty(t, diff.DirtyRows)
	require.False(t, diff.FullRepaint)
}

func TestExtractDiffReportsDirtyRowsThenClears(t *testing.T) {
	g := New(5, 10)
	g.Feed([]byte("row0"))

	diff := g.ExtractDiff(0, false)
	require.NotEmpty(t, diff.DirtyRows)
	require.Equal(t, 0, diff.DirtyRows[0].Index)

	second := g.ExtractDiff(diff.DiffSeq, false)
	require.Empty(t, second.DirtyRows)
}

func TestExtractDiffFullRepaintPendingIsEchoedBack(t *testing.T) {
	g := New(5, 10)
	diff := g.ExtractDiff(0, true)
	require.True(t, diff.FullRepaint)
}

// TestScrollUpOffsetStaysAnchoredAsOutputArrives pins down the
// scroll_position_preservation behavior: once a client has scrolled up into
// scrollback, further output arriving at the bottom of the live screen must
// not change what that client sees, and it must not reveal content that
// arrived after the scroll.
func TestScrollUpOffsetStaysAnchoredAsOutputArrives(t *testing.T) {
	g := New(3, 10)
	for i := 0; i < 10; i++ {
		g.Feed([]byte("line\r\n"))
	}

	full := g.ExtractFull()
	require.NotZero(t, full.TotalScrollback)

	g.SetScrollbackOffset(2)
	before := g.ExtractPlain()

	g.Feed([]byte("MARKER\r\n"))

	after := g.ExtractPlain()
	require.Equal(t, before.Rows, after.Rows, "scrolled-up viewport must stay anchored as new output arrives")
	for _, row := range after.Rows {
		require.NotContains(t, row, "MARKER")
	}

	fullAfter := g.ExtractFull()
	require.Equal(t, 3, fullAfter.ScrollbackOffset, "offset must grow with scrollback so the view stays anchored")
}

func TestSGRResetForegroundIsNotBlack(t *testing.T) {
	g := New(2, 10)
	g.Feed([]byte("\x1b[30mx")) // SGR 30: black foreground
	g.Feed([]byte("\x1b[39my")) // SGR 39: reset foreground to terminal default

	full := g.ExtractFull()
	require.Equal(t, uint32(0x000000), full.Rows[0][0].FG, "explicit black stays black")
	require.NotEqual(t, full.Rows[0][0].FG, full.Rows[0][1].FG, "default fg must be distinguishable from explicit black")
}

func TestScrollbackOffsetZeroTracksLiveScreen(t *testing.T) {
	g := New(3, 10)
	g.Feed([]byte("line1\r\nline2\r\n"))
	g.Feed([]byte("line3"))

	plain := g.ExtractPlain()
	require.Equal(t, "line3", plain.Rows[len(plain.Rows)-1])
}
