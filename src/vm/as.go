package vm

import "mem"

/// LeafVisitor is called once per present, user-accessible leaf
/// mapping found while walking an address space.
type LeafVisitor func(va uintptr, pa mem.Pa_t, perm mem.Pa_t)

/// WalkUser visits every present user-accessible leaf mapping in root,
/// in increasing virtual-address order. It is the shared traversal
/// behind Fork's copy loop and the leaf teardown of Exit.
func WalkUser(m *mem.Physmem_t, root mem.Pa_t, visit LeafVisitor) {
	walkUserLevel(m, root, 0, 0, visit)
}

func walkUserLevel(m *mem.Physmem_t, table mem.Pa_t, level int, vaPrefix uintptr, visit LeafVisitor) {
	ents := entries(m, table)
	shift := uint(39 - 9*level)
	for i, e := range ents {
		if e&PTE_P == 0 || e&PTE_U == 0 {
			continue
		}
		va := vaPrefix | (uintptr(i) << shift)
		if level == 3 {
			visit(va, e&PTE_ADDR, e&PTE_FLAGS)
			continue
		}
		walkUserLevel(m, e&PTE_ADDR, level+1, va, visit)
	}
}

/// InteriorTablesOwnedOnce reports whether every interior table
/// reachable from root (levels 0-2) has refcount exactly 1, the
/// invariant spec §8 requires for any process in a non-free state.
func InteriorTablesOwnedOnce(m *mem.Physmem_t, root mem.Pa_t) bool {
	if m.Refcount(root) != 1 {
		return false
	}
	return interiorOK(m, root, 0)
}

func interiorOK(m *mem.Physmem_t, table mem.Pa_t, level int) bool {
	if level == 3 {
		return true
	}
	ents := entries(m, table)
	for _, e := range ents {
		if e&PTE_P == 0 || e&PTE_U == 0 {
			continue
		}
		child := e & PTE_ADDR
		if m.Refcount(child) != 1 {
			return false
		}
		if !interiorOK(m, child, level+1) {
			return false
		}
	}
	return true
}
