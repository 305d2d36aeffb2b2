// Package mem implements the physical-page allocator and per-page
// ownership table described in this kernel's design: one record per
// physical frame, carrying a reference count and an owner tag.
//
// The out-of-scope bootloader and hardware-init code are assumed to
// have already discovered how much physical memory exists and where
// firmware/MMIO holes sit; Physmem_t only needs that inventory, not
// the probing that produced it. Rather than manipulate raw hardware
// pointers, the table owns a byte arena that models physical RAM, so
// frame contents (page tables, zero-fill, heap backing) are ordinary
// Go slices instead of unsafe casts over bare-metal addresses.
package mem

import "fmt"

import "defs"

type Errno = defs.Errno

const (
	Ok     = defs.Ok
	EINVAL = defs.EINVAL
	ERANGE = defs.ERANGE
	EEXIST = defs.EEXIST
	ENOMEM = defs.ENOMEM
)

/// PGSHIFT is the base-2 exponent for the page size.
const PGSHIFT = 12

/// PGSIZE is the size of a single page/frame in bytes.
const PGSIZE = 1 << PGSHIFT

/// Pa_t is a physical address: a byte offset into the machine's
/// physical memory, not a pointer into this process's own memory.
type Pa_t uintptr

/// Owner_t identifies who a physical frame belongs to.
type Owner_t int32

const (
	/// PO_FREE marks a frame with no owner.
	PO_FREE Owner_t = 0
	/// PO_RESERVED marks firmware/MMIO/console frames, never reassigned.
	PO_RESERVED Owner_t = -1
	/// PO_KERNEL marks frames owned by the kernel image or kernel stack.
	PO_KERNEL Owner_t = -2
	// values >= 1 are process ids.
)

/// Physpg_t is the per-frame record: refcount == 0 iff owner == PO_FREE.
type Physpg_t struct {
	Owner  Owner_t
	Refcnt int32
}

/// Range describes a half-open physical address range [Start, End).
type Range struct {
	Start, End Pa_t
}

func (r Range) contains(pa Pa_t) bool {
	return pa >= r.Start && pa < r.End
}

/// Physmem_t is the flat, O(1)-indexed frame table plus the byte arena
/// it governs. All mutation happens on the single kernel thread, so no
/// locking is required (spec §5: kernel runs to completion between
/// user-mode resumptions).
type Physmem_t struct {
	Pgs []Physpg_t
	Ram []byte
}

/// NewPhysmem allocates a frame table and backing arena for nframes
/// physical frames, all initially PO_FREE.
func NewPhysmem(nframes int) *Physmem_t {
	return &Physmem_t{
		Pgs: make([]Physpg_t, nframes),
		Ram: make([]byte, nframes*PGSIZE),
	}
}

func pgn(pa Pa_t) int {
	return int(pa >> PGSHIFT)
}

func aligned(pa Pa_t) bool {
	return pa&(PGSIZE-1) == 0
}

func (p *Physmem_t) inrange(pa Pa_t) bool {
	return pgn(pa) >= 0 && pgn(pa) < len(p.Pgs)
}

/// Initialize scans the machine in frame-sized steps, marking each
/// reserved range PO_RESERVED (refcount 1), the kernel image and
/// kernel stack frame PO_KERNEL (refcount 1), and everything else
/// PO_FREE (refcount 0). Matches spec §4.1 Initialize.
func (p *Physmem_t) Initialize(reserved []Range, kernelImageEnd Pa_t, kernelStack Pa_t) {
	for i := range p.Pgs {
		p.Pgs[i] = Physpg_t{Owner: PO_FREE, Refcnt: 0}
	}
	for fn := 0; fn < len(p.Pgs); fn++ {
		addr := Pa_t(fn) << PGSHIFT
		switch {
		case inAny(reserved, addr):
			p.Pgs[fn] = Physpg_t{Owner: PO_RESERVED, Refcnt: 1}
		case addr < kernelImageEnd || addr == kernelStack:
			p.Pgs[fn] = Physpg_t{Owner: PO_KERNEL, Refcnt: 1}
		}
	}
}

func inAny(ranges []Range, pa Pa_t) bool {
	for _, r := range ranges {
		if r.contains(pa) {
			return true
		}
	}
	return false
}

/// Assign grants ownership of the frame at addr to owner. Used only at
/// process load time to install an already-loaded image's pages. It
/// fails if addr is unaligned, out of range, or already owned.
func (p *Physmem_t) Assign(addr Pa_t, owner Owner_t) Errno {
	if !aligned(addr) {
		return EINVAL
	}
	if !p.inrange(addr) {
		return ERANGE
	}
	fn := pgn(addr)
	if p.Pgs[fn].Refcnt != 0 {
		return EEXIST
	}
	p.Pgs[fn] = Physpg_t{Owner: owner, Refcnt: 1}
	return Ok
}

/// AllocateFor returns the address of some free frame, assigning it to
/// owner with refcount 1. It fails with ENOMEM when none is free.
func (p *Physmem_t) AllocateFor(owner Owner_t) (Pa_t, Errno) {
	for fn := range p.Pgs {
		if p.Pgs[fn].Refcnt == 0 {
			p.Pgs[fn] = Physpg_t{Owner: owner, Refcnt: 1}
			return Pa_t(fn) << PGSHIFT, Ok
		}
	}
	return 0, ENOMEM
}

/// Refup increments the reference count of an already-owned frame (for
/// example, a transient kernel reference held mid-operation).
func (p *Physmem_t) Refup(addr Pa_t) {
	if !p.inrange(addr) {
		panic("mem: Refup out of range")
	}
	p.Pgs[pgn(addr)].Refcnt++
}

/// Release decrements the reference count of the frame at addr,
/// marking it PO_FREE once the count reaches zero. A null or
/// out-of-range address is a logged no-op; releasing an already-free
/// frame is a logged error but is not fatal.
func (p *Physmem_t) Release(addr Pa_t) {
	if addr == 0 || !p.inrange(addr) {
		fmt.Printf("mem: Release: bad address %#x, ignoring\n", addr)
		return
	}
	fn := pgn(addr)
	if p.Pgs[fn].Refcnt == 0 {
		fmt.Printf("mem: Release: frame %#x already free\n", addr)
		return
	}
	p.Pgs[fn].Refcnt--
	if p.Pgs[fn].Refcnt == 0 {
		p.Pgs[fn].Owner = PO_FREE
	}
}

/// Refcount returns the current reference count of the frame at addr.
func (p *Physmem_t) Refcount(addr Pa_t) int32 {
	if !p.inrange(addr) {
		return 0
	}
	return p.Pgs[pgn(addr)].Refcnt
}

/// OwnerOf returns the current owner of the frame at addr.
func (p *Physmem_t) OwnerOf(addr Pa_t) Owner_t {
	if !p.inrange(addr) {
		return PO_FREE
	}
	return p.Pgs[pgn(addr)].Owner
}

/// Frame returns the PGSIZE-byte slice of the arena backing addr. The
/// slice aliases Physmem_t's storage directly, matching the teacher's
/// direct-map convention of handing out a live window onto physical
/// memory rather than a copy.
func (p *Physmem_t) Frame(addr Pa_t) []byte {
	if !aligned(addr) || !p.inrange(addr) {
		panic("mem: Frame: bad address")
	}
	off := int(addr)
	return p.Ram[off : off+PGSIZE]
}

/// Zero clears the frame at addr to all zero bytes.
func (p *Physmem_t) Zero(addr Pa_t) {
	f := p.Frame(addr)
	for i := range f {
		f[i] = 0
	}
}

/// NFrames reports how many frames this table governs.
func (p *Physmem_t) NFrames() int {
	return len(p.Pgs)
}
