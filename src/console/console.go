// Package console models the out-of-scope text-mode console as a
// write sink: a memory-mapped grid of 16-bit cells at a fixed
// physical address, user-accessible read-only from every process
// (spec §6). The kernel core only ever writes to it — diagnostics and
// panic lines land at fixed positions (spec §7) — so this package
// exposes a write-oriented view over the frame mem already tracks as
// PO_RESERVED, plus a Cell accessor for reading a cell back.
package console

import (
	"golang.org/x/text/encoding/charmap"

	"mem"
)

/// Cols and Rows give the classic 80x25 text-mode grid this console
/// models.
const (
	Cols      = 80
	Rows      = 25
	CellCount = Cols * Rows
)

/// DefaultAttr is the attribute byte (white on black) used when a
/// caller doesn't care about color.
const DefaultAttr = 0x07

/// Console_t is a write sink over one reserved physical frame, one
/// 16-bit cell (glyph byte + attribute byte) per character position.
type Console_t struct {
	M    *mem.Physmem_t
	Base mem.Pa_t
}

/// New binds a console sink to the reserved frame at base.
func New(m *mem.Physmem_t, base mem.Pa_t) *Console_t {
	return &Console_t{M: m, Base: base}
}

/// Clear zeroes every cell.
func (c *Console_t) Clear() {
	c.M.Zero(c.Base)
}

/// WriteAt encodes s through IBM code page 437 — the glyph set a real
/// VGA text console expects, not raw UTF-8 — and packs it into cells
/// starting at the given cell position, each cell tagged with attr.
// Characters with no CP437 representation become '?', matching how a
// hardware console would render an unmappable code point.
func (c *Console_t) WriteAt(pos int, attr byte, s string) {
	frame := c.M.Frame(c.Base)
	i := 0
	for _, r := range s {
		if pos+i >= CellCount {
			break
		}
		b, ok := charmap.CodePage437.EncodeRune(r)
		if !ok {
			b = '?'
		}
		off := (pos + i) * 2
		frame[off] = b
		frame[off+1] = attr
		i++
	}
}

/// CPos computes the linear cell position of (row, col), matching the
/// teaching kernel's CPOS(row, col) macro.
func CPos(row, col int) int {
	return row*Cols + col
}

/// Cell returns the raw (glyph, attr) pair at cell position pos, for
/// tests and for anything reading the console back (the visualizer,
/// out of scope, would use the same accessor).
func (c *Console_t) Cell(pos int) (glyph, attr byte) {
	frame := c.M.Frame(c.Base)
	off := pos * 2
	return frame[off], frame[off+1]
}
