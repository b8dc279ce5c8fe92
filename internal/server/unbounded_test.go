package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestUnboundedPipeOrdersFIFO(t *testing.T) {
	in, out := unboundedPipe[int]()

	for i := 0; i < 5; i++ {
		in <- i
	}

	for i := 0; i < 5; i++ {
		require.Equal(t, i, <-out)
	}
	close(in)
	_, ok := <-out
	require.False(t, ok)
}

func TestUnboundedPipeNeverBlocksSender(t *testing.T) {
	in, out := unboundedPipe[int]()
	defer close(in)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			in <- i
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sender blocked despite no reader draining out")
	}

	require.Equal(t, 0, <-out)
}

func TestStripANSIRemovesCSIAndOSC(t *testing.T) {
	input := "\x1b[31mred\x1b[0m text \x1b]0;title\x07 end"
	require.Equal(t, "red text  end", stripANSI(input))
}

func TestStripANSINoEscapesUnchanged(t *testing.T) {
	require.Equal(t, "plain text", stripANSI("plain text"))
}
