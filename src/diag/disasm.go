package diag

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"
)

/// disasmWindow is how many bytes of the faulting text page this
/// rewrite hands to the decoder — comfortably more than the longest
/// legal x86-64 instruction (15 bytes).
const disasmWindow = 16

/// DisasmOne decodes a single 64-bit-mode instruction starting at pc
/// out of code (typically a slice into a process's mapped text page,
/// taken from the faulting rip) and renders it GNU-syntax, for
/// appending to a fatal-panic or unknown-trap diagnostic line. A
/// decode failure yields a placeholder instead of panicking further —
/// this is itself diagnostic code running during a fatal condition.
func DisasmOne(code []byte, pc uint64) string {
	if len(code) > disasmWindow {
		code = code[:disasmWindow]
	}
	inst, err := x86asm.Decode(code, 64)
	if err != nil {
		return fmt.Sprintf("<undecodable @ %#x: %v>", pc, err)
	}
	return x86asm.GNUSyntax(inst, pc, nil)
}
