package rtt

import (
	"fmt"
	"time"
)

// Error mirrors the reference stack's types.Error: a dedicated sentinel
// type rather than ad-hoc errors.New calls.
type Error struct{ s string }

func (e *Error) Error() string { return e.s }

// ErrNotTracked is returned by Pop when the requested ack endpoint has no
// recorded send time — a caller-bug condition, since callers are expected
// to check Contains (or otherwise know the key is present) first.
var ErrNotTracked = &Error{"rtt: ack endpoint has no recorded send time"}

// Sampler records the send time of each outstanding segment, keyed by its
// ack endpoint (the seq_no a cumulative ACK must reach to acknowledge that
// segment). It supports the cumulative-ACK semantics of the wire protocol:
// a single ACK can retire several outstanding segments at once, and Pop
// reports how many older entries were implicitly skipped.
type Sampler struct {
	sendTime map[uint32]time.Time
}

// NewSampler returns an empty Sampler.
func NewSampler() *Sampler {
	return &Sampler{sendTime: make(map[uint32]time.Time)}
}

// Record stores (or overwrites) the send time for ackEndpoint.
func (s *Sampler) Record(ackEndpoint uint32, t time.Time) {
	s.sendTime[ackEndpoint] = t
}

// Contains reports whether ackEndpoint has a recorded send time.
func (s *Sampler) Contains(ackEndpoint uint32) bool {
	_, ok := s.sendTime[ackEndpoint]
	return ok
}

// Remove discards any recorded send time for ackEndpoint, invalidating a
// pending RTT measurement — used on timeout retransmission per Karn's
// rule, so a retransmitted segment's eventual ACK is never mistaken for a
// true round-trip sample.
func (s *Sampler) Remove(ackEndpoint uint32) {
	delete(s.sendTime, ackEndpoint)
}

// Pop deletes every entry keyed strictly below ackEndpoint (older segments
// implicitly acknowledged by a cumulative ACK that jumped past them) and
// returns how many were deleted, plus the send time recorded for
// ackEndpoint itself, which is also removed. ackEndpoint must be present;
// otherwise Pop returns ErrNotTracked.
func (s *Sampler) Pop(ackEndpoint uint32) (skipCount int, sendTime time.Time, err error) {
	t, ok := s.sendTime[ackEndpoint]
	if !ok {
		return 0, time.Time{}, fmt.Errorf("%w: %d", ErrNotTracked, ackEndpoint)
	}
	for k := range s.sendTime {
		if k < ackEndpoint {
			delete(s.sendTime, k)
			skipCount++
		}
	}
	delete(s.sendTime, ackEndpoint)
	return skipCount, t, nil
}
