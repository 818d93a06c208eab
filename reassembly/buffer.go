// Package reassembly implements the receiver's out-of-order holding
// buffer: payloads that arrived ahead of the contiguous prefix the
// receiver can deliver, kept sorted by sequence number so the longest
// contiguous run can be drained in one Pop once the gap closes.
//
// The source implementation re-sorted its entire list on every push; this
// one keeps the slice sorted at all times and uses a binary search to find
// the insertion point, per the reference spec's design note preferring an
// ordered structure over sort-on-every-insert.
package reassembly

import (
	"fmt"
	"sort"
)

type entry struct {
	seqNo   uint32
	payload []byte
}

// Buffer holds out-of-order (seqNo, payload) entries keyed by seqNo, with
// a total-size cap.
type Buffer struct {
	entries []entry
	size    int
	maxSize int
}

// New creates an empty Buffer capped at maxSize total buffered bytes.
func New(maxSize int) *Buffer {
	return &Buffer{maxSize: maxSize}
}

// Push inserts (seqNo, payload) in sorted position and reports whether it
// did. It is a no-op (returning false) if seqNo is already present, or if
// the buffer's occupied size is already at or past maxSize — note the
// pre-push check is against the buffer's size
// *before* adding payload, not size+len(payload), so a single push can
// overshoot maxSize by up to len(payload)-1 bytes rather than enforcing
// a strict post-insertion cap.
func (b *Buffer) Push(seqNo uint32, payload []byte) bool {
	if b.size >= b.maxSize {
		return false
	}
	i := sort.Search(len(b.entries), func(i int) bool { return b.entries[i].seqNo >= seqNo })
	if i < len(b.entries) && b.entries[i].seqNo == seqNo {
		return false
	}

	cp := append([]byte(nil), payload...)
	b.entries = append(b.entries, entry{})
	copy(b.entries[i+1:], b.entries[i:])
	b.entries[i] = entry{seqNo: seqNo, payload: cp}
	b.size += len(cp)
	return true
}

// Pop returns the maximal contiguous run of payloads starting at seqNo and
// removes them from the buffer. If the buffer is empty or its smallest key
// is not seqNo, it returns nil with no error — that is a normal "nothing to
// drain yet" result. If seqNo is strictly greater than the buffer's
// smallest key, the caller has violated the contract (it should never ask
// to pop past data it hasn't accounted for) and Pop returns ErrBadPop.
func (b *Buffer) Pop(seqNo uint32) ([]byte, error) {
	if len(b.entries) == 0 {
		return nil, nil
	}
	if smallest := b.entries[0].seqNo; seqNo > smallest {
		return nil, fmt.Errorf("%w: pop(%d) with smallest buffered key %d", ErrBadPop, seqNo, smallest)
	}
	if b.entries[0].seqNo != seqNo {
		return nil, nil
	}

	expect := seqNo
	end := 0
	for end < len(b.entries) && b.entries[end].seqNo == expect {
		expect += uint32(len(b.entries[end].payload))
		end++
	}

	var out []byte
	for i := 0; i < end; i++ {
		out = append(out, b.entries[i].payload...)
		b.size -= len(b.entries[i].payload)
	}
	b.entries = b.entries[end:]
	return out, nil
}

// Size reports the total number of bytes currently buffered.
func (b *Buffer) Size() int { return b.size }

// Len reports the number of distinct entries currently buffered.
func (b *Buffer) Len() int { return len(b.entries) }
