package defs

/// Sysno identifies a system call trapped from user mode.
type Sysno int

const (
	SYS_GETPID     Sysno = 1
	SYS_YIELD      Sysno = 2
	SYS_FORK       Sysno = 3
	SYS_EXIT       Sysno = 4
	SYS_PAGE_ALLOC Sysno = 5
	SYS_BRK        Sysno = 6
	SYS_SBRK       Sysno = 7
	SYS_PANIC      Sysno = 8
	SYS_MAPPING    Sysno = 9
	SYS_MEM_TOG    Sysno = 10
)

/// Trapno identifies the reason the CPU trapped into the kernel.
type Trapno int

const (
	INT_TIMER     Trapno = 32
	INT_PAGEFAULT Trapno = 14
	INT_GPF       Trapno = 13
	INT_SYSCALL   Trapno = 48
)

/// Err codes extracted from the hardware page-fault error code.
const (
	PFERR_PRESENT = 1 << 0
	PFERR_WRITE   = 1 << 1
	PFERR_USER    = 1 << 2
)
