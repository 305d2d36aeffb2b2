// Package diag backs the "diagnostic reporting" spec §7 calls for:
// a pprof-format tick sampler the trap dispatcher feeds on every trap
// (the concrete data source an out-of-scope visualizer would read),
// and an x86 disassembler used to make fatal-panic and unknown-trap
// diagnostics readable.
package diag

import (
	"fmt"
	"io"

	"github.com/google/pprof/profile"
)

/// Sampler accumulates one profile.Sample per trap, keyed by (pid,
/// trap number) as the pprof "function" and the faulting/instruction
/// address as the pprof "location" — the standard shape a sampling
/// profiler builds, repurposed here as a trap-frequency feed instead
/// of a CPU-time feed.
type Sampler struct {
	prof      *profile.Profile
	funcByKey map[int64]*profile.Function
	locByAddr map[uint64]*profile.Location
	nextFunc  uint64
	nextLoc   uint64
}

/// NewSampler builds an empty sampler with a single "traps" value
/// type, one sample recorded per trap.
func NewSampler() *Sampler {
	return &Sampler{
		prof: &profile.Profile{
			SampleType: []*profile.ValueType{{Type: "traps", Unit: "count"}},
			PeriodType: &profile.ValueType{Type: "tick", Unit: "count"},
			Period:     1,
		},
		funcByKey: make(map[int64]*profile.Function),
		locByAddr: make(map[uint64]*profile.Location),
	}
}

/// Sample records one trap: pid and trapno identify the "function"
/// bucket, addr (the instruction or faulting address) identifies the
/// "location" within it.
func (s *Sampler) Sample(pid int, trapno int, addr uint64) {
	fn := s.funcFor(pid, trapno)
	loc := s.locFor(addr, fn)
	s.prof.Sample = append(s.prof.Sample, &profile.Sample{
		Value:    []int64{1},
		Location: []*profile.Location{loc},
	})
}

func (s *Sampler) funcFor(pid, trapno int) *profile.Function {
	key := int64(pid)<<32 | int64(trapno)
	if fn, ok := s.funcByKey[key]; ok {
		return fn
	}
	s.nextFunc++
	fn := &profile.Function{
		ID:   s.nextFunc,
		Name: fmt.Sprintf("pid%d/trap%d", pid, trapno),
	}
	s.prof.Function = append(s.prof.Function, fn)
	s.funcByKey[key] = fn
	return fn
}

func (s *Sampler) locFor(addr uint64, fn *profile.Function) *profile.Location {
	if loc, ok := s.locByAddr[addr]; ok && loc.Line[0].Function == fn {
		return loc
	}
	s.nextLoc++
	loc := &profile.Location{
		ID:      s.nextLoc,
		Address: addr,
		Line:    []profile.Line{{Function: fn}},
	}
	s.prof.Location = append(s.prof.Location, loc)
	s.locByAddr[addr] = loc
	return loc
}

/// SampleCount reports how many samples have been recorded so far.
func (s *Sampler) SampleCount() int {
	return len(s.prof.Sample)
}

/// WriteProfile serializes the accumulated samples in the real pprof
/// wire format (gzipped protobuf), ready for an out-of-scope
/// visualizer to consume.
func (s *Sampler) WriteProfile(w io.Writer) error {
	return s.prof.Write(w)
}
