package trap

import (
	"defs"
	"mem"
	"proc"
	"vm"
)

// pagefault implements spec §4.6. faultAddr is the address from the
// fault-address register (cr2 on real hardware); errcode carries the
// PFERR_* bits the hardware error code sets.
func (d *Dispatcher) pagefault(pid int, faultAddr uintptr, errcode uint32) {
	p := &d.Procs.Procs[pid]

	if errcode&defs.PFERR_USER == 0 {
		asm := d.disasmAt(pid)
		d.fatal(pid, "kernel page fault at %#x (rip=%#x) %s", faultAddr, p.Regs.Rip, asm)
		return
	}

	if faultAddr >= p.OriginalBreak && faultAddr < p.ProgramBreak {
		pageva := vm.PageRoundDown(faultAddr)

		if vm.Lookup(d.Procs.M, p.Root, pageva).Present {
			p.State = proc.Runnable
			return
		}

		frame, err := d.Procs.M.AllocateFor(mem.Owner_t(pid))
		if err != mem.Ok {
			d.terminate(pid, "out of physical memory for fault at %#x", faultAddr)
			return
		}
		d.Procs.M.Zero(frame)

		if e := vm.Map(d.Procs.M, p.Root, mem.Owner_t(pid), pageva, frame, mem.PGSIZE, vm.PTE_P|vm.PTE_W|vm.PTE_U); e != mem.Ok {
			d.Procs.M.Release(frame)
			d.terminate(pid, "failed to map heap page at %#x: %v", pageva, e)
			return
		}
		p.State = proc.Runnable
		return
	}

	d.terminate(pid, "page fault for %#x outside heap window [%#x, %#x) (rip=%#x)",
		faultAddr, p.OriginalBreak, p.ProgramBreak, p.Regs.Rip)
}
