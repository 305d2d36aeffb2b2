// Package proc implements the process descriptor table and its
// lifecycle: setup, fork, exit, and the round-robin scheduler that
// picks among runnable slots.
package proc

import (
	"defs"
	"mem"
	"vm"
)

/// State is the lifecycle state of a process slot.
type State int

const (
	Free State = iota
	Runnable
	Broken
)

func (s State) String() string {
	switch s {
	case Free:
		return "free"
	case Runnable:
		return "runnable"
	case Broken:
		return "broken"
	default:
		return "?"
	}
}

/// Regs is the saved register frame for a trapped process: just the
/// fields the kernel core actually touches (syscall argument/return
/// registers, program counter, stack pointer). The full frame layout
/// and its save/restore sequence belong to the out-of-scope assembly
/// stub.
type Regs struct {
	Rdi, Rsi, Rdx uintptr
	Rax           uintptr
	Rip, Rsp      uintptr
	/// No is the trapped syscall number, captured by the assembly
	/// stub into a register the calling convention reserves for it;
	/// Rax is reused as the pure return-value register once the
	/// handler runs, per spec §4.7's "return in the accumulator
	/// register".
	No uintptr
}

// KPML4SLOT is the single top-level page-table index every process's
// root shares with the kernel root, covering the entire kernel-half
// identity map (image, stack, and the console window). Restricting
// the shared window to one slot, rather than copying or ref-counting
// every kernel leaf into each process, is this rewrite's resolution
// of the fork/sharing open question in the design notes.
const KPML4SLOT = vm.NPTENTS - 1

/// USERTOP is the first virtual address that belongs to the kernel
/// half of the address space; no user mapping may reach or exceed it.
const USERTOP = uintptr(KPML4SLOT) << 39

/// Proc_t is one process descriptor slot.
type Proc_t struct {
	Pid                          int
	State                        State
	Regs                         Regs
	Root                         mem.Pa_t
	OriginalBreak, ProgramBreak  uintptr
	Display                      bool
}

/// Table_t is the fixed-size process table plus the backing physical
/// memory and kernel root it allocates against. Slot 0 is permanently
/// Free and is never selected by the scheduler.
type Table_t struct {
	Procs      []Proc_t
	M          *mem.Physmem_t
	KernelRoot mem.Pa_t
	Current    int
}

/// NewTable builds an n-slot process table (slot 0 reserved) bound to
/// physical memory m and a prebuilt kernel root page table.
func NewTable(m *mem.Physmem_t, n int, kernelRoot mem.Pa_t) *Table_t {
	t := &Table_t{
		Procs:      make([]Proc_t, n),
		M:          m,
		KernelRoot: kernelRoot,
	}
	for i := range t.Procs {
		t.Procs[i].Pid = i
		t.Procs[i].State = Free
	}
	return t
}

/// Init allocates a fresh root page table for pid and identity-maps
/// the kernel half by sharing the kernel root's single top-level
/// slot, per spec §4.3 Init.
func (t *Table_t) Init(pid int) mem.Errno {
	root, err := t.M.AllocateFor(mem.Owner_t(pid))
	if err != mem.Ok {
		return err
	}
	t.M.Zero(root)
	kent := krootEntry(t.M, t.KernelRoot)
	setRootEntry(t.M, root, kent)
	t.Procs[pid].Root = root
	t.Procs[pid].State = Broken // caller must still Load+InstallStack before Runnable
	return mem.Ok
}

func krootEntry(m *mem.Physmem_t, kroot mem.Pa_t) mem.Pa_t {
	raw := m.Frame(kroot)
	off := KPML4SLOT * 8
	var v uint64
	for b := 0; b < 8; b++ {
		v |= uint64(raw[off+b]) << (8 * b)
	}
	return mem.Pa_t(v)
}

func setRootEntry(m *mem.Physmem_t, root mem.Pa_t, ent mem.Pa_t) {
	raw := m.Frame(root)
	off := KPML4SLOT * 8
	v := uint64(ent)
	for b := 0; b < 8; b++ {
		raw[off+b] = byte(v >> (8 * b))
	}
}

/// Loader is the external program-loader contract (spec §6): given a
/// process's physical memory and root page table, assign frames and
/// install leaf mappings for a program image's text/data/bss and
/// report where the image ends.
type Loader interface {
	Load(m *mem.Physmem_t, root mem.Pa_t, pid int, program int) (imageEnd uintptr, err mem.Errno)
}

/// Load delegates to the external loader and sets both OriginalBreak
/// and ProgramBreak to the first page strictly above the loaded
/// image, per spec §4.3 Load.
func (t *Table_t) Load(pid int, program int, ld Loader) mem.Errno {
	p := &t.Procs[pid]
	end, err := ld.Load(t.M, p.Root, pid, program)
	if err != mem.Ok {
		return err
	}
	brk := vm.PageRoundUp(end)
	p.OriginalBreak = brk
	p.ProgramBreak = brk
	return mem.Ok
}

/// InstallStack allocates a user-writable frame, maps it just below
/// USERTOP, and points the saved rsp at the top of the new stack.
func (t *Table_t) InstallStack(pid int) mem.Errno {
	p := &t.Procs[pid]
	frame, err := t.M.AllocateFor(mem.Owner_t(pid))
	if err != mem.Ok {
		return err
	}
	t.M.Zero(frame)
	stackva := USERTOP - mem.PGSIZE
	if e := vm.Map(t.M, p.Root, mem.Owner_t(pid), stackva, frame, mem.PGSIZE, vm.PTE_P|vm.PTE_W|vm.PTE_U); e != mem.Ok {
		t.M.Release(frame)
		return e
	}
	p.Regs.Rsp = USERTOP
	return mem.Ok
}

/// freeSlot returns the first Free slot at index >= 1, or -1.
func (t *Table_t) freeSlot() int {
	for i := 1; i < len(t.Procs); i++ {
		if t.Procs[i].State == Free {
			return i
		}
	}
	return -1
}

/// Fork implements spec §4.3 Fork: a fresh child slot with an
/// independent copy of every user-accessible page the parent has
/// mapped. On any allocation failure the child's partially built
/// address space is torn down and -1/ENOMEM-or-EAGAIN is returned;
/// the parent is left untouched either way.
func (t *Table_t) Fork(parentPid int) (int, mem.Errno) {
	child := t.freeSlot()
	if child < 0 {
		return -1, defs.EAGAIN
	}
	if err := t.Init(child); err != mem.Ok {
		t.Procs[child].State = Free
		return -1, err
	}
	cp := &t.Procs[child]
	pp := &t.Procs[parentPid]
	cp.OriginalBreak = pp.OriginalBreak
	cp.ProgramBreak = pp.ProgramBreak

	var copyErr mem.Errno
	vm.WalkUser(t.M, pp.Root, func(va uintptr, pa mem.Pa_t, perm mem.Pa_t) {
		if copyErr != mem.Ok {
			return
		}
		nf, err := t.M.AllocateFor(mem.Owner_t(child))
		if err != mem.Ok {
			copyErr = err
			return
		}
		copy(t.M.Frame(nf), t.M.Frame(pa))
		if err := vm.Map(t.M, cp.Root, mem.Owner_t(child), va, nf, mem.PGSIZE, perm); err != mem.Ok {
			t.M.Release(nf)
			copyErr = err
			return
		}
	})
	if copyErr != mem.Ok {
		t.destroyAddrspace(child)
		t.Procs[child].State = Free
		return -1, copyErr
	}

	cp.Regs = pp.Regs
	cp.Regs.Rax = 0
	cp.State = Runnable
	pp.Regs.Rax = uintptr(child)
	return child, mem.Ok
}

func (t *Table_t) destroyAddrspace(pid int) {
	p := &t.Procs[pid]
	vm.WalkUser(t.M, p.Root, func(va uintptr, pa mem.Pa_t, perm mem.Pa_t) {
		if fr, ok := vm.Unmap(t.M, p.Root, va); ok {
			t.M.Release(fr)
		}
		_ = pa
		_ = perm
	})
	vm.FreeTable(t.M, p.Root)
}

/// Exit implements spec §4.3 Exit: release every user-owned leaf,
/// then every interior table, then the root itself, then recycle the
/// slot.
func (t *Table_t) Exit(pid int) {
	t.destroyAddrspace(pid)
	t.Procs[pid] = Proc_t{Pid: pid, State: Free}
}
