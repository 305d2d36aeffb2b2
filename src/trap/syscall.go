package trap

import (
	"defs"
	"mem"
	"proc"
	"vm"
)

// syscall implements spec §4.7, dispatching on the syscall number the
// assembly stub placed in the trapped register frame's No field and
// leaving the result in Rax, the accumulator register. It reports
// whether the caller must give up its turn regardless of its State —
// yield has no state of its own to fall through on, unlike exit or an
// unknown syscall number.
func (d *Dispatcher) syscall(pid int) (yield bool) {
	p := &d.Procs.Procs[pid]
	switch defs.Sysno(p.Regs.No) {

	case defs.SYS_GETPID:
		p.Regs.Rax = uintptr(pid)

	case defs.SYS_YIELD:
		return true

	case defs.SYS_FORK:
		if _, err := d.Procs.Fork(pid); err != mem.Ok {
			p.Regs.Rax = errRax(err)
		}
		// On success Table_t.Fork already set the parent's Rax to the
		// child's pid and the child's Rax to 0.

	case defs.SYS_EXIT:
		d.Procs.Exit(pid)

	case defs.SYS_PAGE_ALLOC:
		if err := d.PageAlloc(pid, p.Regs.Rdi); err != defs.Ok {
			p.Regs.Rax = errRax(err)
		} else {
			p.Regs.Rax = 0
		}

	case defs.SYS_BRK:
		if err := d.Brk(pid, p.Regs.Rdi); err != defs.Ok {
			p.Regs.Rax = ^uintptr(0)
		} else {
			p.Regs.Rax = 0
		}

	case defs.SYS_SBRK:
		old, err := d.Sbrk(pid, int64(p.Regs.Rdi))
		if err != defs.Ok {
			p.Regs.Rax = ^uintptr(0)
		} else {
			p.Regs.Rax = old
		}

	case defs.SYS_PANIC:
		d.sysPanic(pid, p.Regs.Rdi)

	case defs.SYS_MAPPING:
		d.sysMapping(pid, p.Regs.Rdi, p.Regs.Rsi)

	case defs.SYS_MEM_TOG:
		d.sysMemTog(pid, p.Regs.Rdi)

	default:
		d.terminate(pid, "unknown syscall number %d", p.Regs.No)
	}
	return false
}

func errRax(err defs.Errno) uintptr {
	return uintptr(err.Neg())
}

// PageAlloc implements the page_alloc syscall (spec §4.7): va must be
// page-aligned; a fresh user-writable frame is mapped there.
func (d *Dispatcher) PageAlloc(pid int, va uintptr) defs.Errno {
	if va&(mem.PGSIZE-1) != 0 {
		return defs.EINVAL
	}
	p := &d.Procs.Procs[pid]
	frame, err := d.Procs.M.AllocateFor(mem.Owner_t(pid))
	if err != mem.Ok {
		return err
	}
	d.Procs.M.Zero(frame)
	if e := vm.Map(d.Procs.M, p.Root, mem.Owner_t(pid), va, frame, mem.PGSIZE, vm.PTE_P|vm.PTE_W|vm.PTE_U); e != mem.Ok {
		d.Procs.M.Release(frame)
		return e
	}
	return defs.Ok
}

// setBreak implements the shared bounds-check-and-move logic behind
// both brk and sbrk (spec §4.7): the new break must stay within
// [original_break, USERTOP - PGSIZE), growing never pre-allocates
// (the page-fault handler backs new pages lazily), and shrinking
// unmaps and releases every page whose start falls in the vacated
// range.
func (d *Dispatcher) setBreak(pid int, newbrk uintptr) defs.Errno {
	p := &d.Procs.Procs[pid]
	if newbrk < p.OriginalBreak || newbrk >= proc.USERTOP-mem.PGSIZE {
		return defs.EINVAL
	}
	old := p.ProgramBreak
	if newbrk < old {
		lo := vm.PageRoundUp(newbrk)
		hi := vm.PageRoundUp(old)
		for va := lo; va < hi; va += mem.PGSIZE {
			if fr, ok := vm.Unmap(d.Procs.M, p.Root, va); ok {
				d.Procs.M.Release(fr)
			}
		}
	}
	p.ProgramBreak = newbrk
	return defs.Ok
}

// Brk implements the brk syscall (spec §4.7): move the program break
// to an absolute address.
func (d *Dispatcher) Brk(pid int, addr uintptr) defs.Errno {
	return d.setBreak(pid, addr)
}

// Sbrk implements the sbrk syscall (spec §4.7): move the program
// break by a signed delta, returning its prior value. This is the
// entry point package ualloc's grow hook is meant to call.
func (d *Dispatcher) Sbrk(pid int, delta int64) (uintptr, defs.Errno) {
	p := &d.Procs.Procs[pid]
	old := p.ProgramBreak
	newbrk := uintptr(int64(old) + delta)
	if err := d.setBreak(pid, newbrk); err != defs.Ok {
		return 0, err
	}
	return old, defs.Ok
}

// panicMsgMax is the maximum panic message length (spec §4.7): "read
// up to 160 bytes across at most two pages".
const panicMsgMax = 160

// sysPanic implements the panic syscall (spec §4.7): read a
// NUL-terminated message (up to panicMsgMax bytes, which can cross at
// most one page boundary) out of the caller's address space and halt
// the machine. Per spec §7, any permission shortfall halts with no
// message rather than returning to the caller.
func (d *Dispatcher) sysPanic(pid int, msgptr uintptr) {
	p := &d.Procs.Procs[pid]
	if msgptr == 0 {
		d.fatal(pid, "")
	}

	var msg []byte
	va := msgptr
	remaining := panicMsgMax
	for remaining > 0 {
		pageva := vm.PageRoundDown(va)
		if !vm.Reachable(d.Procs.M, p.Root, pageva, false, true) {
			d.fatal(pid, "")
		}
		lk := vm.Lookup(d.Procs.M, p.Root, pageva)
		frame := d.Procs.M.Frame(lk.Pa)
		off := int(va - pageva)
		n := mem.PGSIZE - off
		if n > remaining {
			n = remaining
		}
		done := false
		for i := 0; i < n; i++ {
			b := frame[off+i]
			if b == 0 {
				done = true
				break
			}
			msg = append(msg, b)
		}
		if done {
			break
		}
		va += uintptr(n)
		remaining -= n
	}
	d.fatal(pid, "%s", string(msg))
}

// mappingRecordSize is the wire size of the lookup record the mapping
// syscall writes back: Present(1, padded to 8) + Pa(8) + Frame(8) +
// Perm(8).
const mappingRecordSize = 32

// sysMapping implements the mapping syscall (spec §4.7): after
// verifying the destination buffer is user-writable — using
// write+user for both the start and end address, per this rewrite's
// resolution of the REDESIGN FLAG in the inconsistent original check
// — write the lookup record for va into it. Any permission shortfall
// is a silent no-op.
func (d *Dispatcher) sysMapping(pid int, dst, va uintptr) {
	p := &d.Procs.Procs[pid]
	if !vm.Reachable(d.Procs.M, p.Root, dst, true, true) {
		return
	}
	end := dst + mappingRecordSize - 1
	if vm.PageRoundDown(end) != vm.PageRoundDown(dst) {
		if !vm.Reachable(d.Procs.M, p.Root, end, true, true) {
			return
		}
	}

	lk := vm.Lookup(d.Procs.M, p.Root, va)
	dstPageva := vm.PageRoundDown(dst)
	dstLk := vm.Lookup(d.Procs.M, p.Root, dstPageva)
	frame := d.Procs.M.Frame(dstLk.Pa)
	off := int(dst - dstPageva)
	writeMappingRecord(frame[off:off+mappingRecordSize], lk)
}

func writeMappingRecord(b []byte, lk vm.Mapping_t) {
	for i := range b {
		b[i] = 0
	}
	if lk.Present {
		b[0] = 1
	}
	putU64(b[8:16], uint64(lk.Pa))
	putU64(b[16:24], lk.Frame)
	putU64(b[24:32], uint64(lk.Perm))
}

func putU64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

// sysMemTog implements the mem_tog syscall (spec §4.7): arg 0 flips
// the global visualization toggle; any other value flips the calling
// process's own per-process display flag, and is ignored if it
// doesn't name the caller.
func (d *Dispatcher) sysMemTog(pid int, arg uintptr) {
	p := &d.Procs.Procs[pid]
	if arg == 0 {
		DisplayGlobal = !DisplayGlobal
		return
	}
	if int(arg) == pid {
		p.Display = !p.Display
	}
}
