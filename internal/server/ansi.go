package server

import "regexp"

// ansiSequence matches CSI sequences (ESC [ ... final-byte), OSC sequences
// terminated by BEL or ST, and bare two-byte ESC sequences — enough to
// strip display formatting from buffered shell output before a plain-text
// substring or glob search.
var ansiSequence = regexp.MustCompile(`\x1b(?:\[[0-9;:?]*[a-zA-Z]|\][^\x07\x1b]*(?:\x07|\x1b\\)|[a-zA-Z0-9])`)

// stripANSI removes escape sequences from s, leaving the printable text a
// SearchBuffer{strip_ansi: true} request expects to match against.
func stripANSI(s string) string {
	return ansiSequence.ReplaceAllString(s, "")
}
