package diag

import (
	"bytes"
	"testing"
)

func TestSampleAccumulatesAndCounts(t *testing.T) {
	s := NewSampler()
	s.Sample(1, 14, 0x400000)
	s.Sample(1, 14, 0x400010)
	s.Sample(2, 0, 0x500000)

	if got := s.SampleCount(); got != 3 {
		t.Fatalf("SampleCount() = %d, want 3", got)
	}
}

func TestSampleReusesFunctionAndLocationForRepeats(t *testing.T) {
	s := NewSampler()
	s.Sample(1, 14, 0x400000)
	s.Sample(1, 14, 0x400000)

	if got := len(s.prof.Function); got != 1 {
		t.Errorf("distinct functions recorded = %d, want 1 for identical (pid, trapno)", got)
	}
	if got := len(s.prof.Location); got != 1 {
		t.Errorf("distinct locations recorded = %d, want 1 for identical address", got)
	}
	if s.SampleCount() != 2 {
		t.Errorf("SampleCount() = %d, want 2", s.SampleCount())
	}
}

func TestWriteProfileProducesNonEmptyOutput(t *testing.T) {
	s := NewSampler()
	s.Sample(1, 14, 0x400000)

	var buf bytes.Buffer
	if err := s.WriteProfile(&buf); err != nil {
		t.Fatalf("WriteProfile: %v", err)
	}
	if buf.Len() == 0 {
		t.Error("WriteProfile wrote zero bytes")
	}
}
