// Package vm implements the four-level page-table walker: lookup,
// map, and unmap of leaf entries over a process's (or the kernel's)
// root page table, plus table teardown and page-rounding helpers. The
// program break and heap window themselves live in packages proc and
// trap.
package vm

import "mem"
import "util"

/// PTE_P marks a page-table entry present.
const PTE_P mem.Pa_t = 1 << 0

/// PTE_W marks an entry writable.
const PTE_W mem.Pa_t = 1 << 1

/// PTE_U marks an entry user-accessible.
const PTE_U mem.Pa_t = 1 << 2

/// PTE_ADDR extracts the frame address bits of an entry.
const PTE_ADDR mem.Pa_t = ^mem.Pa_t(mem.PGSIZE - 1)

/// PTE_FLAGS extracts the permission bits of an entry.
const PTE_FLAGS mem.Pa_t = mem.PGSIZE - 1

/// NPTENTS is the number of entries in one page-table level.
const NPTENTS = 512

/// NoFrame is the sentinel frame number Lookup returns when there is
/// no mapping at the requested address.
const NoFrame = ^uint64(0)

/// pagebits extracts the four 9-bit level indices from a virtual
/// address (l4 first, l1/leaf index last).
func pagebits(va uintptr) (l4, l3, l2, l1 int) {
	return int((va >> 39) & 0x1ff),
		int((va >> 30) & 0x1ff),
		int((va >> 21) & 0x1ff),
		int((va >> 12) & 0x1ff)
}

/// entries reads the 512 page-table entries stored in the frame at pa.
func entries(m *mem.Physmem_t, pa mem.Pa_t) []mem.Pa_t {
	raw := m.Frame(pa)
	ret := make([]mem.Pa_t, NPTENTS)
	for i := 0; i < NPTENTS; i++ {
		var v uint64
		for b := 0; b < 8; b++ {
			v |= uint64(raw[i*8+b]) << (8 * b)
		}
		ret[i] = mem.Pa_t(v)
	}
	return ret
}

func putEntry(m *mem.Physmem_t, pa mem.Pa_t, idx int, val mem.Pa_t) {
	raw := m.Frame(pa)
	v := uint64(val)
	for b := 0; b < 8; b++ {
		raw[idx*8+b] = byte(v >> (8 * b))
	}
}

func getEntry(m *mem.Physmem_t, pa mem.Pa_t, idx int) mem.Pa_t {
	raw := m.Frame(pa)
	var v uint64
	for b := 0; b < 8; b++ {
		v |= uint64(raw[idx*8+b]) << (8 * b)
	}
	return mem.Pa_t(v)
}

/// Mapping_t is what Lookup reports about a virtual address.
type Mapping_t struct {
	Present bool
	Pa      mem.Pa_t
	Frame   uint64
	Perm    mem.Pa_t
}

/// Lookup descends the four levels of root and reports the leaf
/// mapping for va. A missing
/// level anywhere on the path yields Mapping_t{Present: false} and a
/// Frame of NoFrame, per spec §4.2.
func Lookup(m *mem.Physmem_t, root mem.Pa_t, va uintptr) Mapping_t {
	l4, l3, l2, l1 := pagebits(va)
	idxs := [4]int{l4, l3, l2, l1}
	cur := root
	for lvl := 0; lvl < 4; lvl++ {
		ent := getEntry(m, cur, idxs[lvl])
		if ent&PTE_P == 0 {
			return Mapping_t{Frame: NoFrame}
		}
		if lvl == 3 {
			pa := ent & PTE_ADDR
			return Mapping_t{
				Present: true,
				Pa:      pa,
				Frame:   uint64(pa >> mem.PGSHIFT),
				Perm:    ent & PTE_FLAGS,
			}
		}
		cur = ent & PTE_ADDR
	}
	panic("unreachable")
}

// Reachable reports whether every level on the path to va has
// PTE_P set, and (for user access) PTE_U set at every level too;
// writability likewise requires PTE_W at every level. This is the
// permission tie-break rule from spec §4.2.
func Reachable(m *mem.Physmem_t, root mem.Pa_t, va uintptr, wantWrite, wantUser bool) bool {
	l4, l3, l2, l1 := pagebits(va)
	idxs := [4]int{l4, l3, l2, l1}
	cur := root
	for lvl := 0; lvl < 4; lvl++ {
		ent := getEntry(m, cur, idxs[lvl])
		if ent&PTE_P == 0 {
			return false
		}
		if wantUser && ent&PTE_U == 0 {
			return false
		}
		if wantWrite && ent&PTE_W == 0 {
			return false
		}
		cur = ent & PTE_ADDR
	}
	return true
}

/// walkAlloc descends to the interior table holding va's leaf entry,
/// allocating any missing interior tables as frames owned by owner.
/// It returns the frame holding the leaf level and the leaf index.
func walkAlloc(m *mem.Physmem_t, root mem.Pa_t, owner mem.Owner_t, va uintptr) (mem.Pa_t, int, mem.Errno) {
	l4, l3, l2, l1 := pagebits(va)
	idxs := [3]int{l4, l3, l2}
	cur := root
	for _, idx := range idxs {
		ent := getEntry(m, cur, idx)
		if ent&PTE_P == 0 {
			np, err := m.AllocateFor(owner)
			if err != mem.Ok {
				return 0, 0, err
			}
			m.Zero(np)
			putEntry(m, cur, idx, np|PTE_P|PTE_W|PTE_U)
			cur = np
		} else {
			cur = ent & PTE_ADDR
		}
	}
	return cur, l1, mem.Ok
}

/// Map installs leaf entries covering [va, va+size) in root, pointing
/// at consecutive physical pages starting at pa (or, when pa == 0 and
/// perm == 0, removing the leaf entries — spec §4.2's "clear"
/// shorthand). Missing interior tables are allocated as frames owned
/// by owner. A failed interior allocation leaves whatever partial
/// work was already done in place; the caller is responsible for
/// treating that as fatal or unwinding it.
func Map(m *mem.Physmem_t, root mem.Pa_t, owner mem.Owner_t, va uintptr, pa mem.Pa_t, size int, perm mem.Pa_t) mem.Errno {
	if uintptr(va)&(mem.PGSIZE-1) != 0 || size%mem.PGSIZE != 0 {
		return mem.EINVAL
	}
	clearing := pa == 0 && perm == 0
	for off := 0; off < size; off += mem.PGSIZE {
		leaf, idx, err := walkAlloc(m, root, owner, va+uintptr(off))
		if err != mem.Ok {
			return err
		}
		if clearing {
			putEntry(m, leaf, idx, 0)
			continue
		}
		putEntry(m, leaf, idx, (pa+mem.Pa_t(off))|perm|PTE_P)
	}
	return mem.Ok
}

/// Unmap atomically clears the leaf entry for va in root and returns
/// the physical frame it pointed at, if any. Unlike composing a
/// zero-map with a later release, the frame number is handed back in
/// the same step so a caller can never forget to free it (the
/// teaching kernel this grew from had exactly that leak).
func Unmap(m *mem.Physmem_t, root mem.Pa_t, va uintptr) (mem.Pa_t, bool) {
	lk := Lookup(m, root, va)
	if !lk.Present {
		return 0, false
	}
	l4, l3, l2, l1 := pagebits(va)
	idxs := [4]int{l4, l3, l2, l1}
	cur := root
	for lvl := 0; lvl < 3; lvl++ {
		ent := getEntry(m, cur, idxs[lvl])
		cur = ent & PTE_ADDR
	}
	putEntry(m, cur, idxs[3], 0)
	return lk.Pa, true
}

/// FreeTable walks every user-owned leaf and interior table reachable
/// from root, releasing leaves first and then each interior table on
/// the way back up, and finally releases root itself. Matches spec
/// §4.3 Exit's ordering in one recursive pass.
func FreeTable(m *mem.Physmem_t, root mem.Pa_t) {
	freeLevel(m, root, 0)
	m.Release(root)
}

// freeLevel releases everything below (but not including) the table
// at the given level. level 3 means table's entries are leaf PTEs
// pointing at data frames; levels 0-2 mean they point at child tables.
func freeLevel(m *mem.Physmem_t, table mem.Pa_t, level int) {
	ents := entries(m, table)
	for _, e := range ents {
		if e&PTE_P == 0 || e&PTE_U == 0 {
			continue
		}
		child := e & PTE_ADDR
		if level < 3 {
			freeLevel(m, child, level+1)
		}
		m.Release(child)
	}
}

/// PageRoundDown rounds a virtual address down to its containing page.
func PageRoundDown(va uintptr) uintptr {
	return uintptr(util.Rounddown(int(va), mem.PGSIZE))
}

/// PageRoundUp rounds a virtual address up to the next page boundary.
func PageRoundUp(va uintptr) uintptr {
	return uintptr(util.Roundup(int(va), mem.PGSIZE))
}
