// Command bootsim is a terminal-driven stand-in for the out-of-scope
// hardware-init and assembly-stub layers: it puts the controlling
// terminal into raw mode (the same technique elsie's tty console
// uses to drive its simulated CPU) so a literal Ctrl-C keystroke can
// satisfy spec §4.4's "keyboard-check that allows external
// termination", then drives the kernel's trap dispatcher with
// synthetic timer ticks so the round-robin scheduler has something to
// schedule.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"time"

	"golang.org/x/term"

	"defs"
	"kernel"
	"mem"
	"proc"
)

// stubLoader is a minimal stand-in for the out-of-scope program
// loader: it assigns one zero-filled frame as the process's entire
// "image" so the boot path can be exercised without a real ELF
// loader. A production build links against the real loader instead.
type stubLoader struct{}

func (stubLoader) Load(m *mem.Physmem_t, root mem.Pa_t, pid int, program int) (uintptr, mem.Errno) {
	const imageVA = 0x400000
	frame, err := m.AllocateFor(mem.Owner_t(pid))
	if err != mem.Ok {
		return 0, err
	}
	m.Zero(frame)
	return imageVA + mem.PGSIZE, mem.Ok
}

// keyboardHW adapts a channel of raw terminal bytes into the
// trap.Hardware contract: KeyboardEscape reports true once a Ctrl-C
// (0x03) byte has been seen.
type keyboardHW struct {
	keys    <-chan byte
	escaped bool
}

func (k *keyboardHW) KeyboardEscape() bool {
	for {
		select {
		case b, ok := <-k.keys:
			if !ok {
				return k.escaped
			}
			if b == 0x03 {
				k.escaped = true
			}
		default:
			return k.escaped
		}
	}
}

func main() {
	command := flag.String("command", "", "boot command string (malloc, alloctests, test, test2, or empty for default)")
	nframes := flag.Int("frames", 4096, "physical frame count")
	hz := flag.Int("hz", 20, "synthetic timer ticks per second")
	flag.Parse()

	cfg := kernel.Config{
		NFrames:        *nframes,
		NProc:          8,
		Reserved:       []mem.Range{{Start: 0xA0000, End: 0x100000}},
		KernelImageEnd: 0x40000,
		KernelStack:    0x80000,
		ConsoleBase:    0xB8000,
	}
	state, err := kernel.New(cfg)
	if err != defs.Ok {
		fmt.Fprintf(os.Stderr, "bootsim: kernel init failed: errno %d\n", err)
		os.Exit(1)
	}
	if err := state.Boot(*command, stubLoader{}); err != defs.Ok {
		fmt.Fprintf(os.Stderr, "bootsim: boot %q failed: errno %d\n", *command, err)
		os.Exit(1)
	}

	keys := make(chan byte, 16)
	hw := &keyboardHW{keys: keys}
	state.Trap.HW = hw

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		oldState, rawErr := term.MakeRaw(fd)
		if rawErr == nil {
			defer term.Restore(fd, oldState)
			go readKeys(os.Stdin, keys)
		}
	} else {
		close(keys)
	}

	pid, ok := state.Procs.RunNext()
	tick := time.NewTicker(time.Second / time.Duration(*hz))
	defer tick.Stop()

	for range tick.C {
		if !ok {
			fmt.Println("bootsim: nothing runnable")
			return
		}
		regs := state.Procs.Procs[pid].Regs
		next, runnable, halt := state.Trap.Handle(pid, regs, defs.INT_TIMER, 0, 0)
		if halt {
			fmt.Printf("bootsim: Ctrl-C, halting at tick %d\n", state.Trap.Ticks)
			return
		}
		pid, ok = next, runnable
		if state.Procs.Procs[pid].State == proc.Broken {
			fmt.Printf("bootsim: pid %d broken\n", pid)
		}
	}
}

func readKeys(in *os.File, keys chan<- byte) {
	defer close(keys)
	r := bufio.NewReader(in)
	for {
		b, err := r.ReadByte()
		if err != nil {
			return
		}
		keys <- b
	}
}
