package datagram

import (
	"time"
)

// Delivery describes one datagram a Transform wants delivered to the far
// end of a MemConn pair, after an optional delay. Returning zero
// Deliveries drops the segment; returning more than one duplicates it;
// differing delays across calls reorders segments relative to each other;
// mutating Payload corrupts it. This one hook is enough to drive every
// loss, reorder, corruption, and duplication scenario a test wants,
// without a real socket.
type Delivery struct {
	Payload []byte
	Delay   time.Duration
}

// Transform maps one sent segment to the set of deliveries the far end
// should eventually observe.
type Transform func(payload []byte) []Delivery

// Passthrough delivers payload unmodified and immediately — the default,
// lossless transform.
func Passthrough(payload []byte) []Delivery {
	return []Delivery{{Payload: payload}}
}

// MemConn is an in-memory Conn, used to drive the sender/receiver loops
// against each other (or against a scripted peer) in tests, without a
// real UDP socket.
type MemConn struct {
	send func([]byte)
	in   chan []byte
}

// NewMemConnPair returns two connected MemConns: sends on a are delivered
// to b after fwd's transform, and sends on b are delivered to a after
// rev's transform. A nil transform is treated as Passthrough.
func NewMemConnPair(fwd, rev Transform) (a, b *MemConn) {
	if fwd == nil {
		fwd = Passthrough
	}
	if rev == nil {
		rev = Passthrough
	}

	a = &MemConn{in: make(chan []byte, 256)}
	b = &MemConn{in: make(chan []byte, 256)}
	a.send = wireTransform(fwd, b)
	b.send = wireTransform(rev, a)
	return a, b
}

func wireTransform(t Transform, dst *MemConn) func([]byte) {
	return func(payload []byte) {
		for _, d := range t(payload) {
			d := d
			if d.Delay <= 0 {
				dst.in <- d.Payload
				continue
			}
			go func() {
				time.Sleep(d.Delay)
				dst.in <- d.Payload
			}()
		}
	}
}

// Send hands payload to this end's Transform for delivery to the peer.
func (m *MemConn) Send(payload []byte) error {
	m.send(append([]byte(nil), payload...))
	return nil
}

// Recv blocks up to timeout for the next delivered datagram. A timeout of
// zero (or less) polls non-blockingly: it returns ErrTimeout immediately
// if nothing is already queued, rather than waiting out a zero-length
// timer race.
func (m *MemConn) Recv(timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		select {
		case b := <-m.in:
			return b, nil
		default:
			return nil, ErrTimeout
		}
	}
	select {
	case b := <-m.in:
		return b, nil
	case <-time.After(timeout):
		return nil, ErrTimeout
	}
}
