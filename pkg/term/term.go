// Package term bridges raw PTY output into a VT emulation engine.
//
// Archon does not parse escape sequences itself; every byte read off a
// session's master descriptor is handed to the engine, and the host reads
// back a rendered screen when its cache goes stale.
package term

import "github.com/charmbracelet/x/vt"

// Bridge wraps one emulator instance sized to the session's geometry.
type Bridge struct {
	emu  *vt.Emulator
	cols int
	rows int
}

// New constructs a bridge with an engine at the given geometry.
func New(cols, rows int) *Bridge {
	return &Bridge{emu: vt.NewEmulator(cols, rows), cols: cols, rows: rows}
}

// Feed forwards raw output bytes to the engine.
func (b *Bridge) Feed(data []byte) {
	if len(data) == 0 {
		return
	}
	_, _ = b.emu.Write(data)
}

// Resize changes the engine geometry.
func (b *Bridge) Resize(cols, rows int) {
	if cols == b.cols && rows == b.rows {
		return
	}
	b.cols, b.rows = cols, rows
	b.emu.Resize(cols, rows)
}

// Render returns the styled screen contents.
func (b *Bridge) Render() string {
	return b.emu.Render()
}

// Close releases the engine.
func (b *Bridge) Close() error {
	return b.emu.Close()
}
