package console

import (
	"testing"

	"mem"
)

func newConsole(t *testing.T) *Console_t {
	t.Helper()
	m := mem.NewPhysmem(4)
	m.Initialize([]mem.Range{{Start: 0, End: mem.PGSIZE}}, 0, 0)
	return New(m, 0)
}

func TestWriteAtEncodesAndPacksCells(t *testing.T) {
	c := newConsole(t)
	c.WriteAt(CPos(1, 0), DefaultAttr, "hi")

	g0, a0 := c.Cell(CPos(1, 0))
	if g0 != 'h' || a0 != DefaultAttr {
		t.Errorf("cell 0 = (%q, %#x), want ('h', %#x)", g0, a0, DefaultAttr)
	}
	g1, _ := c.Cell(CPos(1, 1))
	if g1 != 'i' {
		t.Errorf("cell 1 glyph = %q, want 'i'", g1)
	}
}

func TestWriteAtStopsAtGridEdge(t *testing.T) {
	c := newConsole(t)
	long := make([]byte, CellCount+10)
	for i := range long {
		long[i] = 'x'
	}
	c.WriteAt(0, DefaultAttr, string(long))
	// must not panic writing past CellCount; nothing further to assert
	// beyond surviving the call (the frame holds PGSIZE/2 cells, a few
	// more than CellCount, so the grid edge is what bounds the write).
}

func TestClearZeroesCells(t *testing.T) {
	c := newConsole(t)
	c.WriteAt(0, DefaultAttr, "x")
	c.Clear()
	g, a := c.Cell(0)
	if g != 0 || a != 0 {
		t.Errorf("cell after Clear = (%#x, %#x), want (0, 0)", g, a)
	}
}

func TestCPos(t *testing.T) {
	if got := CPos(2, 5); got != 2*Cols+5 {
		t.Errorf("CPos(2, 5) = %d, want %d", got, 2*Cols+5)
	}
}
