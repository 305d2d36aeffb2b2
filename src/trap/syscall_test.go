package trap

import (
	"testing"

	"defs"
	"mem"
	"proc"
	"vm"
)

func TestPageAllocRequiresAlignedVa(t *testing.T) {
	d := newDispatcher(t, 64, 4)
	setupRunnable(t, d, 1, 0x401000)

	if err := d.PageAlloc(1, 0x500001); err != defs.EINVAL {
		t.Errorf("PageAlloc(unaligned) = %v, want EINVAL", err)
	}
}

func TestPageAllocMapsFreshUserWritablePage(t *testing.T) {
	d := newDispatcher(t, 64, 4)
	setupRunnable(t, d, 1, 0x401000)

	const va = 0x500000
	if err := d.PageAlloc(1, va); err != defs.Ok {
		t.Fatalf("PageAlloc = %v", err)
	}
	p := &d.Procs.Procs[1]
	if !vm.Reachable(d.Procs.M, p.Root, va, true, true) {
		t.Error("page installed by PageAlloc is not user-writable")
	}
}

func TestSbrkGrowsAndShrinksWithinBounds(t *testing.T) {
	d := newDispatcher(t, 64, 4)
	setupRunnable(t, d, 1, 0x401000)
	p := &d.Procs.Procs[1]
	base := p.OriginalBreak

	old, err := d.Sbrk(1, int64(mem.PGSIZE))
	if err != defs.Ok {
		t.Fatalf("Sbrk(+PGSIZE) = %v", err)
	}
	if old != base {
		t.Errorf("Sbrk returned old break %#x, want %#x", old, base)
	}
	if p.ProgramBreak != base+mem.PGSIZE {
		t.Errorf("ProgramBreak after grow = %#x, want %#x", p.ProgramBreak, base+mem.PGSIZE)
	}

	if _, err := d.Sbrk(1, -int64(mem.PGSIZE)); err != defs.Ok {
		t.Fatalf("Sbrk(-PGSIZE) = %v", err)
	}
	if p.ProgramBreak != base {
		t.Errorf("ProgramBreak after shrink = %#x, want %#x", p.ProgramBreak, base)
	}
}

func TestSbrkShrinkUnmapsAndReleasesPages(t *testing.T) {
	d := newDispatcher(t, 64, 4)
	setupRunnable(t, d, 1, 0x401000)
	p := &d.Procs.Procs[1]
	base := p.OriginalBreak

	if _, err := d.Sbrk(1, int64(mem.PGSIZE)); err != defs.Ok {
		t.Fatalf("Sbrk(+PGSIZE) = %v", err)
	}
	// fault in the grown page the way the page-fault handler would.
	d.pagefault(1, base, defs.PFERR_USER)
	lk := vm.Lookup(d.Procs.M, p.Root, base)
	if !lk.Present {
		t.Fatal("setup: grown page never got backed")
	}

	if _, err := d.Sbrk(1, -int64(mem.PGSIZE)); err != defs.Ok {
		t.Fatalf("Sbrk(-PGSIZE) = %v", err)
	}
	if d.Procs.M.Refcount(lk.Pa) != 0 {
		t.Errorf("frame backing the shrunk page still has refcount %d", d.Procs.M.Refcount(lk.Pa))
	}
}

func TestBrkRejectsOutOfBoundsAddress(t *testing.T) {
	d := newDispatcher(t, 64, 4)
	setupRunnable(t, d, 1, 0x401000)
	p := &d.Procs.Procs[1]

	if err := d.Brk(1, p.OriginalBreak-1); err != defs.EINVAL {
		t.Errorf("Brk below OriginalBreak = %v, want EINVAL", err)
	}
	if err := d.Brk(1, proc.USERTOP); err != defs.EINVAL {
		t.Errorf("Brk at USERTOP = %v, want EINVAL", err)
	}
}

func TestPagefaultBacksHeapFaultAndResumesRunnable(t *testing.T) {
	d := newDispatcher(t, 64, 4)
	setupRunnable(t, d, 1, 0x401000)
	p := &d.Procs.Procs[1]
	d.Procs.Procs[1].State = proc.Runnable

	if _, err := d.Sbrk(1, int64(mem.PGSIZE)); err != defs.Ok {
		t.Fatalf("Sbrk = %v", err)
	}
	d.Procs.Procs[1].State = proc.Broken // simulate the trap handler's pre-dispatch state

	d.pagefault(1, p.OriginalBreak, defs.PFERR_USER)

	if d.Procs.Procs[1].State != proc.Runnable {
		t.Errorf("state after a legitimate heap fault = %v, want Runnable", d.Procs.Procs[1].State)
	}
	if !vm.Reachable(d.Procs.M, p.Root, p.OriginalBreak, true, true) {
		t.Error("heap page not mapped user-writable after pagefault")
	}
}

func TestPagefaultOutsideHeapWindowTerminates(t *testing.T) {
	d := newDispatcher(t, 64, 4)
	setupRunnable(t, d, 1, 0x401000)

	d.pagefault(1, 0x900000, defs.PFERR_USER)
	if d.Procs.Procs[1].State != proc.Broken {
		t.Errorf("state after out-of-window fault = %v, want Broken", d.Procs.Procs[1].State)
	}
}

func TestPagefaultKernelModeIsFatal(t *testing.T) {
	d := newDispatcher(t, 64, 4)
	setupRunnable(t, d, 1, 0x401000)

	defer func() {
		if recover() == nil {
			t.Error("pagefault with PFERR_USER unset did not panic")
		}
	}()
	d.pagefault(1, 0x500000, 0)
}

func TestSysMemTogFlipsGlobalAndPerProcess(t *testing.T) {
	d := newDispatcher(t, 64, 4)
	setupRunnable(t, d, 1, 0x401000)
	before := DisplayGlobal

	d.sysMemTog(1, 0)
	if DisplayGlobal == before {
		t.Error("sysMemTog(0) did not flip DisplayGlobal")
	}
	DisplayGlobal = before

	d.sysMemTog(1, 1)
	if !d.Procs.Procs[1].Display {
		t.Error("sysMemTog(pid) did not flip the caller's own Display flag")
	}
	d.sysMemTog(1, 2)
	if !d.Procs.Procs[1].Display {
		t.Error("sysMemTog naming a different pid flipped the caller's flag")
	}
}

func TestSysMappingWritesLookupRecord(t *testing.T) {
	d := newDispatcher(t, 64, 4)
	setupRunnable(t, d, 1, 0x401000)
	p := &d.Procs.Procs[1]

	const dst = 0x500000
	if err := d.PageAlloc(1, dst); err != defs.Ok {
		t.Fatalf("PageAlloc(dst) = %v", err)
	}

	d.sysMapping(1, dst, 0x400000)

	lk := vm.Lookup(d.Procs.M, p.Root, dst)
	frame := d.Procs.M.Frame(lk.Pa)
	if frame[0] != 1 {
		t.Errorf("mapping record Present byte = %d, want 1", frame[0])
	}
}
