package vtparser

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// recordingPerformer captures the events a test cares about; everything
// else falls through to NoopPerformer.
type recordingPerformer struct {
	NoopPerformer
	printed []rune
	csi     []csiCall
	executed []byte
}

type csiCall struct {
	action byte
	params []uint16
}

func (r *recordingPerformer) Print(c rune) { r.printed = append(r.printed, c) }
func (r *recordingPerformer) PrintString(s string) {
	for _, c := range s {
		r.Print(c)
	}
}
func (r *recordingPerformer) Execute(b byte) { r.executed = append(r.executed, b) }
func (r *recordingPerformer) CsiDispatch(params *Params, intermediates []byte, ignore bool, action byte) {
	r.csi = append(r.csi, csiCall{action: action, params: params.All()})
}

func TestAdvancePrintsPlainText(t *testing.T) {
	var p Parser
	var perf recordingPerformer
	p.Advance(&perf, []byte("hi"))
	require.Equal(t, []rune{'h', 'i'}, perf.printed)
}

func TestAdvanceDispatchesCSIWithParams(t *testing.T) {
	var p Parser
	var perf recordingPerformer
	p.Advance(&perf, []byte("\x1b[3;5H"))

	require.Len(t, perf.csi, 1)
	require.Equal(t, byte('H'), perf.csi[0].action)
	require.Equal(t, []uint16{3, 5}, perf.csi[0].params)
}

func TestAdvanceExecutesControlBytes(t *testing.T) {
	var p Parser
	var perf recordingPerformer
	p.Advance(&perf, []byte("a\nb"))

	require.Equal(t, []rune{'a', 'b'}, perf.printed)
	require.Equal(t, []byte{'\n'}, perf.executed)
}

func TestAdvanceSplitAcrossCallsStillDispatches(t *testing.T) {
	var p Parser
	var perf recordingPerformer

	p.Advance(&perf, []byte("\x1b["))
	p.Advance(&perf, []byte("2"))
	p.Advance(&perf, []byte("J"))

	require.Len(t, perf.csi, 1)
	require.Equal(t, byte('J'), perf.csi[0].action)
	require.Equal(t, []uint16{2}, perf.csi[0].params)
}
