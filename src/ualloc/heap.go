// Package ualloc implements the user-space heap allocator described in
// this kernel's design: a single doubly-linked free list over a flat
// byte arena, grown on demand through the heap's own Sbrk (which an
// optional injected grow hook may veto), with best-fit placement and
// address-order coalescing.
//
// A real process's heap sits behind the kernel's sbrk syscall and is
// backed lazily, one page at a time, by the page-fault handler (see
// package trap). This package models "the process's own memory" as a
// plain Go byte slice: pointers are offsets into that slice rather
// than raw addresses, matching this rewrite's arena-of-indices
// approach to pointers (see the kernel's page-table walker for the
// same idea applied to physical frames). Nil is -1, not 0, so a
// freshly sbrk-grown block at offset 0 is never confused with a null
// pointer.
package ualloc

import (
	"encoding/binary"
	"math"
	"sort"

	"util"
)

/// headerSize is the size of the block header: Size(8) + Next(8) +
/// Prev(8) + Freed(1), padded to a multiple of 8.
const headerSize = 32

/// alignment is the byte alignment every payload is rounded up to.
const alignment = 8

/// Ptr is a handle to a live allocation's payload: an offset into the
/// heap's arena. Nil is the zero-value-free sentinel, distinct from
/// offset 0, which is itself a legal payload location.
type Ptr int64

/// Nil is the null-pointer value returned by failed/zero-size
/// allocation requests.
const Nil Ptr = -1

const noBlock int64 = -1

/// Sbrk is the kernel sbrk syscall contract this allocator is built
/// on: move the heap's break by delta bytes and report its previous
/// value, or ok=false if the kernel refused (matching spec §4.7's
/// "old break, or -1" return).
type Sbrk func(delta int) (old int, ok bool)

/// Heap_t is one process's heap: the backing arena, the current
/// break, and the address-ordered free list threaded through block
/// headers stored directly in the arena.
type Heap_t struct {
	arena    []byte
	brk      int
	growHook func(delta int) bool
	head     int64
	tail     int64
	live     int
}

/// NewHeap builds a standalone allocator with capacity bytes of
/// backing arena and no external kernel coupling — suitable for
/// tests and for any user process run in isolation.
func NewHeap(capacity int) *Heap_t {
	return &Heap_t{
		arena: make([]byte, capacity),
		head:  -1,
		tail:  -1,
	}
}

/// WithGrowHook wires an external notifier — typically a real
/// kernel's sbrk syscall handler — that is consulted (but not relied
/// on for storage) every time the heap grows, so kernel-side
/// bookkeeping (the process's program_break, demand paging) stays in
/// sync with the allocator's own arena. Returns h for chaining.
func (h *Heap_t) WithGrowHook(hook func(delta int) bool) *Heap_t {
	h.growHook = hook
	return h
}

func (h *Heap_t) readHeader(off int64) (size uint64, next, prev int64, freed bool) {
	b := h.arena[off : off+headerSize]
	size = binary.LittleEndian.Uint64(b[0:8])
	next = int64(binary.LittleEndian.Uint64(b[8:16]))
	prev = int64(binary.LittleEndian.Uint64(b[16:24]))
	freed = b[24] != 0
	return
}

func (h *Heap_t) writeHeader(off int64, size uint64, next, prev int64, freed bool) {
	b := h.arena[off : off+headerSize]
	binary.LittleEndian.PutUint64(b[0:8], size)
	binary.LittleEndian.PutUint64(b[8:16], uint64(next))
	binary.LittleEndian.PutUint64(b[16:24], uint64(prev))
	if freed {
		b[24] = 1
	} else {
		b[24] = 0
	}
}

/// Sbrk grows or shrinks the heap's logical break by delta bytes,
/// exactly mirroring spec §4.7: it only moves the boundary, it never
/// touches arena contents, and the grow hook (if any) is given the
/// chance to veto.
func (h *Heap_t) Sbrk(delta int) (old int, ok bool) {
	newbrk := h.brk + delta
	if newbrk < 0 || newbrk > len(h.arena) {
		return h.brk, false
	}
	if delta != 0 && h.growHook != nil && !h.growHook(delta) {
		return h.brk, false
	}
	old = h.brk
	h.brk = newbrk
	return old, true
}

func (h *Heap_t) appendBlock(off int64, size uint64) {
	h.writeHeader(off, size, noBlock, h.tail, false)
	if h.tail == -1 {
		h.head = off
	} else {
		tsize, tnext, tprev, tfreed := h.readHeader(h.tail)
		_ = tnext
		h.writeHeader(h.tail, tsize, off, tprev, tfreed)
	}
	h.tail = off
}

/// Malloc implements spec §4.8: zero-size requests return Nil;
/// otherwise the payload is rounded up to 8 bytes, the free list is
/// scanned for the smallest free block that fits (best fit), and that
/// block is split when the remainder can hold a header plus at least
/// 8 payload bytes. If nothing fits, the heap grows by exactly the
/// needed size via Sbrk.
func (h *Heap_t) Malloc(sz int) Ptr {
	if sz <= 0 {
		return Nil
	}
	payload := util.Roundup(sz, alignment)
	total := uint64(payload + headerSize)

	best := int64(-1)
	var bestDiff uint64 = math.MaxUint64
	for cur := h.head; cur != -1; {
		size, next, _, freed := h.readHeader(cur)
		if freed && size >= total {
			if diff := size - total; diff < bestDiff {
				bestDiff = diff
				best = cur
			}
		}
		cur = next
	}

	if best != -1 {
		size, next, prev, _ := h.readHeader(best)
		if size >= total+headerSize+8 {
			newOff := best + int64(total)
			newSize := size - total
			h.writeHeader(newOff, newSize, next, best, true)
			if next != -1 {
				nsize, nnext, _, nfreed := h.readHeader(next)
				h.writeHeader(next, nsize, nnext, newOff, nfreed)
			} else {
				h.tail = newOff
			}
			h.writeHeader(best, total, newOff, prev, false)
		} else {
			h.writeHeader(best, size, next, prev, false)
		}
		h.live++
		return Ptr(best + headerSize)
	}

	old, ok := h.Sbrk(int(total))
	if !ok {
		return Nil
	}
	h.appendBlock(int64(old), total)
	h.live++
	return Ptr(int64(old) + headerSize)
}

/// Free implements spec §4.8: null is a no-op; otherwise the block is
/// marked freed (it is already linked — every block lives in the list
/// from its first sbrk onward, per this kernel's design notes) and
/// coalesced with its physically adjacent freed neighbors, next then
/// previous.
func (h *Heap_t) Free(p Ptr) {
	if p == Nil {
		return
	}
	off := int64(p) - headerSize
	size, next, prev, _ := h.readHeader(off)
	h.writeHeader(off, size, next, prev, true)
	h.live--

	if next != -1 {
		nsize, nnext, _, nfreed := h.readHeader(next)
		if nfreed && off+int64(size) == next {
			size += nsize
			next = nnext
			h.writeHeader(off, size, next, prev, true)
			if next != -1 {
				nnsize, nnnext, _, nnfreed := h.readHeader(next)
				h.writeHeader(next, nnsize, nnnext, off, nnfreed)
			} else {
				h.tail = off
			}
		}
	}
	if prev != -1 {
		psize, _, pprev, pfreed := h.readHeader(prev)
		if pfreed && prev+int64(psize) == off {
			psize += size
			h.writeHeader(prev, psize, next, pprev, true)
			if next != -1 {
				nsize, nnext, _, nfreed := h.readHeader(next)
				h.writeHeader(next, nsize, nnext, prev, nfreed)
			} else {
				h.tail = prev
			}
		}
	}
}

/// Calloc implements spec §4.8: rejects a zero count or size and any
/// multiplicative overflow, then mallocs and zero-fills.
func (h *Heap_t) Calloc(n, sz int) Ptr {
	if n <= 0 || sz <= 0 {
		return Nil
	}
	if uint64(n) > math.MaxUint64/uint64(sz) {
		return Nil
	}
	total := n * sz
	p := h.Malloc(total)
	if p != Nil {
		payload := h.arena[int64(p) : int64(p)+int64(total)]
		for i := range payload {
			payload[i] = 0
		}
	}
	return p
}

/// Realloc implements spec §4.8: a null pointer degrades to malloc, a
/// zero size degrades to free, an already-large-enough block is
/// returned unchanged (no in-place shrink), otherwise a fresh block is
/// allocated, the overlapping prefix copied, and the old block freed.
func (h *Heap_t) Realloc(p Ptr, sz int) Ptr {
	if p == Nil {
		return h.Malloc(sz)
	}
	if sz <= 0 {
		h.Free(p)
		return Nil
	}
	off := int64(p) - headerSize
	size, _, _, _ := h.readHeader(off)
	oldPayload := int(size) - headerSize
	if oldPayload >= sz {
		return p
	}
	np := h.Malloc(sz)
	if np != Nil {
		n := util.Min(oldPayload, sz)
		copy(h.arena[int64(np):int64(np)+int64(n)], h.arena[int64(p):int64(p)+int64(n)])
		h.Free(p)
	}
	return np
}

/// Info is the heap_info snapshot of spec §3: free-list totals plus
/// two parallel arrays describing every live allocation, largest
/// first.
type Info struct {
	FreeBytes   uint64
	LargestFree uint64
	NumAllocs   int
	Sizes       []uint64
	Ptrs        []Ptr
}

/// HeapInfo implements spec §4.8's two-pass heap_info: tally free
/// space and live count, then (capacity permitting) fill and
/// size-sort the live-allocation arrays. ok is false, mirroring the
/// -1 return, when the live count exceeds capacity.
func (h *Heap_t) HeapInfo(capacity int) (Info, bool) {
	var info Info
	for cur := h.head; cur != -1; {
		size, next, _, freed := h.readHeader(cur)
		if freed {
			info.FreeBytes += size
			if size > info.LargestFree {
				info.LargestFree = size
			}
		} else {
			info.NumAllocs++
		}
		cur = next
	}
	if info.NumAllocs > capacity {
		return Info{}, false
	}

	info.Sizes = make([]uint64, 0, info.NumAllocs)
	info.Ptrs = make([]Ptr, 0, info.NumAllocs)
	for cur := h.head; cur != -1; {
		size, next, _, freed := h.readHeader(cur)
		if !freed {
			info.Sizes = append(info.Sizes, size-headerSize)
			info.Ptrs = append(info.Ptrs, Ptr(cur+headerSize))
		}
		cur = next
	}
	sort.Sort(bySizeDesc(info))
	return info, true
}

type bySizeDesc Info

func (b bySizeDesc) Len() int      { return len(b.Sizes) }
func (b bySizeDesc) Swap(i, j int) {
	b.Sizes[i], b.Sizes[j] = b.Sizes[j], b.Sizes[i]
	b.Ptrs[i], b.Ptrs[j] = b.Ptrs[j], b.Ptrs[i]
}
func (b bySizeDesc) Less(i, j int) bool { return b.Sizes[i] > b.Sizes[j] }

/// Defrag implements spec §4.8: repeated linear scans coalescing
/// every adjacent pair of freed blocks until a full pass performs no
/// merge.
func (h *Heap_t) Defrag() {
	for {
		merged := false
		for cur := h.head; cur != -1; {
			size, next, prev, freed := h.readHeader(cur)
			if next == -1 {
				break
			}
			nsize, nnext, _, nfreed := h.readHeader(next)
			if freed && nfreed && cur+int64(size) == next {
				size += nsize
				h.writeHeader(cur, size, nnext, prev, true)
				if nnext != -1 {
					nnsize, nnnext2, _, nnfreed := h.readHeader(nnext)
					h.writeHeader(nnext, nnsize, nnnext2, cur, nnfreed)
				} else {
					h.tail = cur
				}
				merged = true
				continue
			}
			cur = next
		}
		if !merged {
			return
		}
	}
}

/// LiveCount reports total_allocations, the number of non-freed
/// headers currently in the list (spec §8).
func (h *Heap_t) LiveCount() int {
	return h.live
}

/// Read copies n bytes of a live allocation's payload starting at p,
/// for tests and introspection that need to look at the bytes a
/// pointer addresses.
func (h *Heap_t) Read(p Ptr, n int) []byte {
	out := make([]byte, n)
	copy(out, h.arena[int64(p):int64(p)+int64(n)])
	return out
}

/// Write copies data into a live allocation's payload starting at p.
func (h *Heap_t) Write(p Ptr, data []byte) {
	copy(h.arena[int64(p):int64(p)+int64(len(data))], data)
}
