// Package transport exercises the sender and receiver together over an
// in-memory, scriptable datagram medium, covering: no loss (one segment,
// and several), single-packet loss with timeout retransmit, fast
// retransmit on duplicate ACKs, out-of-order delivery, and a corrupted
// segment.
package transport_test

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zackxzhang/tcup/datagram"
	"github.com/zackxzhang/tcup/filestore"
	"github.com/zackxzhang/tcup/receiver"
	"github.com/zackxzhang/tcup/segment"
	"github.com/zackxzhang/tcup/sender"
)

const (
	senderPort   = 41191
	receiverPort = 41192
)

func runTransfer(t *testing.T, data []byte, obufferSize int, windowSize uint32, fwd, rev datagram.Transform) []byte {
	t.Helper()

	senderConn, receiverConn := datagram.NewMemConnPair(fwd, rev)
	reader := filestore.NewMemReader(data)
	writer := filestore.NewMemWriter()

	snd := sender.New(sender.Config{
		SrcPort:     senderPort,
		DstPort:     receiverPort,
		OBufferSize: obufferSize,
		WindowSize:  windowSize,
	}, senderConn, reader)

	rcv := receiver.New(receiver.Config{
		SrcPort:           receiverPort,
		DstPort:           senderPort,
		IBufferSize:       4096,
		WindowSize:        int(windowSize),
		InactivityTimeout: 5 * time.Second,
	}, receiverConn, writer)

	var wg sync.WaitGroup
	var sErr, rErr error
	wg.Add(2)
	go func() { defer wg.Done(); sErr = snd.Run() }()
	go func() { defer wg.Done(); rErr = rcv.Run() }()
	wg.Wait()

	require.NoError(t, sErr)
	require.NoError(t, rErr)
	return writer.Bytes()
}

func TestNoLossSingleSegment(t *testing.T) {
	data := []byte("helloworld")
	out := runTransfer(t, data, 16, 2048, nil, nil)
	require.Equal(t, data, out)
}

func TestNoLossMultipleSegments(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 200)
	out := runTransfer(t, data, 64, 2048, nil, nil)
	require.Equal(t, data, out)
}

// dropOnce drops the first forward segment whose seq_no matches target,
// letting every other segment (including the later retransmission of the
// same seq_no) through unmodified.
func dropOnce(target uint32) datagram.Transform {
	var dropped bool
	var mu sync.Mutex
	return func(payload []byte) []datagram.Delivery {
		mu.Lock()
		defer mu.Unlock()
		_, h, p, err := segment.Decode(payload)
		if err == nil && !dropped && h.SeqNo == target && len(p) > 0 {
			dropped = true
			return nil
		}
		return []datagram.Delivery{{Payload: payload}}
	}
}

func TestSinglePacketLossTimeoutRetransmit(t *testing.T) {
	// Two segments, the second (seq 64) dropped once: nothing follows it to
	// draw duplicate ACKs, so only the sender's timeout can recover it.
	data := bytes.Repeat([]byte("y"), 128)
	out := runTransfer(t, data, 64, 2048, dropOnce(64), nil)
	require.Equal(t, data, out)
}

func TestFastRetransmit(t *testing.T) {
	data := bytes.Repeat([]byte("z"), 200)
	// Drop the segment at seq 64 once; segments at 128 and 192 still get
	// through, so the receiver emits duplicate ACKs (ack_no stuck at 64)
	// until the sender's dup-ack counter reaches 2 and fast-retransmits,
	// well before the 1s initial timeout would fire.
	out := runTransfer(t, data, 64, 2048, dropOnce(64), nil)
	require.Equal(t, data, out)
}

func reverseDeliveryOrder() datagram.Transform {
	var mu sync.Mutex
	var count int
	return func(payload []byte) []datagram.Delivery {
		mu.Lock()
		defer mu.Unlock()
		// Each successive send gets a much shorter delay than the last,
		// so sends reliably arrive in the opposite order from which they
		// were issued, regardless of goroutine scheduling jitter.
		delay := 300*time.Millisecond - time.Duration(count)*75*time.Millisecond
		if delay < 0 {
			delay = 0
		}
		count++
		return []datagram.Delivery{{Payload: payload, Delay: delay}}
	}
}

func TestOutOfOrderDelivery(t *testing.T) {
	data := bytes.Repeat([]byte("w"), 200)
	out := runTransfer(t, data, 64, 2048, reverseDeliveryOrder(), nil)
	require.Equal(t, data, out)
}

func corruptOnce(target uint32) datagram.Transform {
	var done bool
	var mu sync.Mutex
	return func(payload []byte) []datagram.Delivery {
		mu.Lock()
		defer mu.Unlock()
		_, h, p, err := segment.Decode(payload)
		if err == nil && !done && h.SeqNo == target && len(p) > 0 {
			done = true
			corrupt := append([]byte(nil), payload...)
			corrupt[0] ^= 0xFF
			return []datagram.Delivery{{Payload: corrupt}}
		}
		return []datagram.Delivery{{Payload: payload}}
	}
}

func TestCorruptSegment(t *testing.T) {
	data := bytes.Repeat([]byte("v"), 200)
	out := runTransfer(t, data, 64, 2048, corruptOnce(64), nil)
	require.Equal(t, data, out)
}
