package kernel

import (
	"testing"

	"defs"
	"mem"
)

type stubLoader struct{}

func (stubLoader) Load(m *mem.Physmem_t, root mem.Pa_t, pid int, program int) (uintptr, mem.Errno) {
	frame, err := m.AllocateFor(mem.Owner_t(pid))
	if err != mem.Ok {
		return 0, err
	}
	m.Zero(frame)
	return 0x401000, mem.Ok
}

func testConfig() Config {
	return Config{
		NFrames:        512,
		NProc:          8,
		Reserved:       []mem.Range{{Start: 0xA0000, End: 0x100000}},
		KernelImageEnd: 0x40000,
		KernelStack:    0x80000,
		ConsoleBase:    0xB8000,
	}
}

func TestNewBuildsWiredState(t *testing.T) {
	s, err := New(testConfig())
	if err != defs.Ok {
		t.Fatalf("New = %v", err)
	}
	if s.M == nil || s.Procs == nil || s.Trap == nil || s.Console == nil || s.Sampler == nil {
		t.Fatal("New left a component nil")
	}
	if s.Trap.Procs != s.Procs {
		t.Error("Trap dispatcher not wired to the same process table")
	}
}

func TestBootDefaultAndNamedCommands(t *testing.T) {
	specs := []struct {
		command  string
		wantPids []int
	}{
		{"", []int{1}},
		{"malloc", []int{1}},
		{"alloctests", []int{1}},
		{"test", []int{1}},
		{"test2", []int{1, 2}},
	}
	for _, spec := range specs {
		s, err := New(testConfig())
		if err != defs.Ok {
			t.Fatalf("New = %v", err)
		}
		if err := s.Boot(spec.command, stubLoader{}); err != defs.Ok {
			t.Fatalf("Boot(%q) = %v", spec.command, err)
		}
		for _, pid := range spec.wantPids {
			if s.Procs.Procs[pid].State.String() != "runnable" {
				t.Errorf("Boot(%q): pid %d state = %v, want runnable", spec.command, pid, s.Procs.Procs[pid].State)
			}
		}
	}
}

func TestSbrkGrowHookMovesProgramBreak(t *testing.T) {
	s, err := New(testConfig())
	if err != defs.Ok {
		t.Fatalf("New = %v", err)
	}
	if err := s.Boot("", stubLoader{}); err != defs.Ok {
		t.Fatalf("Boot = %v", err)
	}

	hook := s.SbrkGrowHook(1)
	before := s.Procs.Procs[1].ProgramBreak
	if ok := hook(int(mem.PGSIZE)); !ok {
		t.Fatal("grow hook rejected a valid grow")
	}
	if got := s.Procs.Procs[1].ProgramBreak; got != before+mem.PGSIZE {
		t.Errorf("ProgramBreak after grow hook = %#x, want %#x", got, before+mem.PGSIZE)
	}
}

func TestNewUserHeapGrowsThroughKernelSbrk(t *testing.T) {
	s, err := New(testConfig())
	if err != defs.Ok {
		t.Fatalf("New = %v", err)
	}
	if err := s.Boot("", stubLoader{}); err != defs.Ok {
		t.Fatalf("Boot = %v", err)
	}

	before := s.Procs.Procs[1].ProgramBreak
	h := s.NewUserHeap(1, 4096)
	p := h.Malloc(64)
	if p < 0 {
		t.Fatal("Malloc on a freshly wired user heap failed")
	}
	if got := s.Procs.Procs[1].ProgramBreak; got <= before {
		t.Errorf("ProgramBreak after a growing Malloc = %#x, want > %#x", got, before)
	}
}
