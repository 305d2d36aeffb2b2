// Package kernel wires the physical-page allocator, process table,
// trap dispatcher, console, and diagnostic sampler into the single
// owned kernel state a boot entry point needs, and implements the CLI
// command dispatch of spec §6.
package kernel

import (
	"console"
	"defs"
	"diag"
	"mem"
	"proc"
	"trap"
	"ualloc"
)

/// State is the kernel's entire mutable world: process-wide singleton
/// state, per spec §9's design note, expressed as one owned value
/// rather than a scatter of package-level globals.
type State struct {
	M       *mem.Physmem_t
	Procs   *proc.Table_t
	Trap    *trap.Dispatcher
	Console *console.Console_t
	Sampler *diag.Sampler
}

/// Config describes the fixed binary layout spec §6 calls for: frame
/// count, reserved ranges (firmware/MMIO/console), where the kernel
/// image ends, which frame holds the kernel stack, and the physical
/// address of the console's MMIO window.
type Config struct {
	NFrames        int
	NProc          int
	Reserved       []mem.Range
	KernelImageEnd mem.Pa_t
	KernelStack    mem.Pa_t
	ConsoleBase    mem.Pa_t
}

/// New builds a fresh kernel state: the physical-page table is
/// initialized per cfg, a kernel root page table is carved out and
/// the process table built on top of it, and the console and
/// diagnostic sampler are bound to their fixed addresses.
func New(cfg Config) (*State, defs.Errno) {
	m := mem.NewPhysmem(cfg.NFrames)
	m.Initialize(cfg.Reserved, cfg.KernelImageEnd, cfg.KernelStack)

	kroot, err := m.AllocateFor(mem.PO_KERNEL)
	if err != mem.Ok {
		return nil, err
	}
	m.Zero(kroot)

	procs := proc.NewTable(m, cfg.NProc, kroot)
	cons := console.New(m, cfg.ConsoleBase)
	sampler := diag.NewSampler()

	s := &State{
		M:       m,
		Procs:   procs,
		Console: cons,
		Sampler: sampler,
	}
	s.Trap = &trap.Dispatcher{
		Procs:   procs,
		Sampler: sampler,
		Console: cons,
	}
	return s, defs.Ok
}

// setup mirrors the original kernel's process_setup: init a fresh
// root, delegate to the external loader, install the stack, and mark
// the slot runnable.
func (s *State) setup(pid, program int, ld proc.Loader) defs.Errno {
	if err := s.Procs.Init(pid); err != mem.Ok {
		return err
	}
	if err := s.Procs.Load(pid, program, ld); err != mem.Ok {
		return err
	}
	if err := s.Procs.InstallStack(pid); err != mem.Ok {
		return err
	}
	s.Procs.Procs[pid].State = proc.Runnable
	return defs.Ok
}

/// Boot implements spec §6's CLI dispatch: the bootloader command
/// string, consumed once at startup, selects which program(s) load
/// into which initial slots. Unknown strings fall through to the
/// default (pid 1, program 0), exactly as the original kernel()
/// entry point's if/else chain does.
func (s *State) Boot(command string, ld proc.Loader) defs.Errno {
	switch command {
	case "malloc":
		return s.setup(1, 1, ld)
	case "alloctests":
		return s.setup(1, 2, ld)
	case "test":
		return s.setup(1, 3, ld)
	case "test2":
		for pid := 1; pid <= 2; pid++ {
			if err := s.setup(pid, 3, ld); err != defs.Ok {
				return err
			}
		}
		return defs.Ok
	default:
		return s.setup(1, 0, ld)
	}
}

/// SbrkGrowHook adapts this kernel's real sbrk syscall handler into
/// the shape package ualloc's Heap_t wants for its optional grow
/// hook, so a user process's malloc/free traffic — "the sole producer
/// of sbrk traffic in a typical run" per this kernel's design — stays
/// visible to kernel-side bookkeeping (program_break, demand paging)
/// instead of only moving bytes in a bare Go slice.
func (s *State) SbrkGrowHook(pid int) func(delta int) bool {
	return func(delta int) bool {
		_, err := s.Trap.Sbrk(pid, int64(delta))
		return err == defs.Ok
	}
}

/// NewUserHeap builds a ualloc.Heap_t for pid whose growth is wired
/// through this kernel's sbrk syscall handler.
func (s *State) NewUserHeap(pid int, capacity int) *ualloc.Heap_t {
	return ualloc.NewHeap(capacity).WithGrowHook(s.SbrkGrowHook(pid))
}
