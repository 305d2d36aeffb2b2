// Package trap implements the trap and system-call dispatcher: the
// component that receives a saved register frame from the (external)
// assembly stub, classifies why the CPU trapped, dispatches to the
// timer/syscall/page-fault handler, and decides whether to resume the
// trapping process or hand off to the scheduler.
package trap

import (
	"fmt"

	"console"
	"defs"
	"diag"
	"mem"
	"proc"
	"vm"
)

/// DisplayGlobal is the package-level visualization toggle the
/// mem_tog syscall flips when called with pid 0 (spec §4.7); an
/// external visualizer (out of scope) would read it before deciding
/// whether to render a frame.
var DisplayGlobal = true

/// Hardware is the keyboard-check contract consumed from the
/// out-of-scope hardware-init layer (spec §6): a way to notice a
/// Ctrl-C keystroke and let the whole machine halt rather than the
/// kernel's own process-level Broken/Free termination.
type Hardware interface {
	KeyboardEscape() bool
}

/// Dispatcher holds everything a trap needs to run to completion: the
/// process table (which itself owns physical memory), the
/// diagnostic sampler, the console sink, and the keyboard-escape
/// hook. All of it is process-wide singleton state, consistent with
/// spec §9 — no locking, because the kernel always runs one trap to
/// completion before any user-mode resumption.
type Dispatcher struct {
	Procs   *proc.Table_t
	Sampler *diag.Sampler
	Console *console.Console_t
	HW      Hardware
	Ticks   uint64
}

// diagnosticConsolePos is the fixed console cell spec §7 wants
// user-visible failures to land on (the teaching kernel's row 24).
const diagnosticConsolePos = console.Cols * 24

func (d *Dispatcher) logf(format string, args ...interface{}) {
	fmt.Printf("trap: "+format+"\n", args...)
	if d.Console != nil {
		d.Console.WriteAt(diagnosticConsolePos, 0x0c, fmt.Sprintf(format, args...))
	}
}

// fatal reports a corrupt-kernel-state condition and halts the
// machine. Per this rewrite's ambient stack, recoverable errors are
// typed Errno returns; only truly corrupt state panics.
func (d *Dispatcher) fatal(pid int, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if d.Console != nil {
		d.Console.WriteAt(diagnosticConsolePos, 0x4f, msg)
	}
	panic(fmt.Sprintf("kernel panic (pid %d): %s", pid, msg))
}

// disasmAt best-effort disassembles the instruction at the process's
// current rip, for embedding in a fatal diagnostic line. Any failure
// to read the text page (unmapped, out of range) degrades to "".
func (d *Dispatcher) disasmAt(pid int) string {
	p := &d.Procs.Procs[pid]
	lk := vm.Lookup(d.Procs.M, p.Root, p.Regs.Rip)
	if !lk.Present {
		return ""
	}
	frame := d.Procs.M.Frame(lk.Pa)
	off := int(p.Regs.Rip) % mem.PGSIZE
	if off >= len(frame) {
		return ""
	}
	return diag.DisasmOne(frame[off:], uint64(p.Regs.Rip))
}

// terminate marks a process Broken after a protocol violation — it is
// never selected again, but its frames stay allocated to it until an
// explicit exit, per spec §7.
func (d *Dispatcher) terminate(pid int, format string, args ...interface{}) {
	d.logf("pid %d: %s", pid, fmt.Sprintf(format, args...))
	d.Procs.Procs[pid].State = proc.Broken
}

/// Handle is the trap dispatcher's entry point (spec §4.5): it copies
/// the trapped register frame into the process descriptor, runs the
/// diagnostic sampler and keyboard-escape hook, classifies the trap,
/// and returns which process (if any) should be resumed next.
// halt is true when a Ctrl-C keyboard escape was observed; the caller
// (the out-of-scope boot loop) is expected to stop the machine.
func (d *Dispatcher) Handle(pid int, regs proc.Regs, trapno defs.Trapno, faultAddr uintptr, errcode uint32) (next int, ok bool, halt bool) {
	d.Procs.Procs[pid].Regs = regs
	d.Procs.Current = pid

	if d.Sampler != nil {
		d.Sampler.Sample(pid, int(trapno), uint64(regs.Rip))
	}
	if d.HW != nil && d.HW.KeyboardEscape() {
		return 0, false, true
	}

	switch trapno {
	case defs.INT_TIMER:
		d.Ticks++
		return d.reschedule()

	case defs.INT_SYSCALL:
		yield := d.syscall(pid)
		if !yield && d.Procs.Procs[pid].State == proc.Runnable {
			return pid, true, false
		}
		return d.reschedule()

	case defs.INT_PAGEFAULT:
		d.pagefault(pid, faultAddr, errcode)
		if d.Procs.Procs[pid].State == proc.Runnable {
			return pid, true, false
		}
		return d.reschedule()

	default:
		if asm := d.disasmAt(pid); asm != "" {
			d.terminate(pid, "unknown trap %d at rip=%#x (%s)", trapno, regs.Rip, asm)
		} else {
			d.terminate(pid, "unknown trap %d at rip=%#x", trapno, regs.Rip)
		}
		return d.reschedule()
	}
}

// reschedule asks the process table for the next runnable slot and
// adapts its (pid, ok) result to Handle's three-value return shape.
func (d *Dispatcher) reschedule() (next int, ok bool, halt bool) {
	next, ok = d.Procs.RunNext()
	return next, ok, false
}
