package channel

import "os"

// TerminalBell is the default quiz-receipt cue: a BEL byte to stdout. It holds
// no state, so any number of channels may share it.
func TerminalBell() {
	os.Stdout.Write([]byte{'\a'})
}

// NoCue suppresses the cue. Pass it explicitly to opt out, since a nil
// Options.Cue falls back to TerminalBell.
func NoCue() {}
