package rtt_test

import (
	"errors"
	"testing"
	"time"

	"github.com/zackxzhang/tcup/rtt"
)

func TestSamplerRecordContainsRemove(t *testing.T) {
	s := rtt.NewSampler()
	if s.Contains(5) {
		t.Fatalf("expected empty sampler to not contain 5")
	}
	s.Record(5, time.Now())
	if !s.Contains(5) {
		t.Fatalf("expected sampler to contain 5 after Record")
	}
	s.Remove(5)
	if s.Contains(5) {
		t.Fatalf("expected Remove to drop the entry")
	}
}

func TestSamplerPopSkipCount(t *testing.T) {
	s := rtt.NewSampler()
	base := time.Now()
	s.Record(5, base.Add(1*time.Second))
	s.Record(6, base.Add(2*time.Second))
	s.Record(7, base.Add(3*time.Second))
	s.Record(8, base.Add(4*time.Second))
	s.Record(9, base.Add(5*time.Second))

	skip, sendTime, err := s.Pop(8)
	if err != nil {
		t.Fatalf("Pop returned error: %v", err)
	}
	if skip != 3 {
		t.Fatalf("skip count = %d, want 3 (entries at 5,6,7 skipped)", skip)
	}
	if !sendTime.Equal(base.Add(4 * time.Second)) {
		t.Fatalf("send time mismatch")
	}
	if s.Contains(9) != true {
		t.Fatalf("entry 9 (above ackEndpoint) should remain tracked")
	}
	for _, k := range []uint32{5, 6, 7, 8} {
		if s.Contains(k) {
			t.Fatalf("entry %d should have been purged", k)
		}
	}
}

func TestSamplerPopMissingKeyIsError(t *testing.T) {
	s := rtt.NewSampler()
	_, _, err := s.Pop(1)
	if !errors.Is(err, rtt.ErrNotTracked) {
		t.Fatalf("expected ErrNotTracked, got %v", err)
	}
}
