package segment_test

import (
	"bytes"
	"testing"

	"github.com/zackxzhang/tcup/segment"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	payload := []byte("helloworld")
	opts := segment.Options{
		SrcPort: 41191,
		DstPort: 41192,
		SeqNo:   128,
		AckNo:   64,
		Window:  2048,
		ACK:     true,
		FIN:     false,
	}

	raw := segment.Encode(payload, opts)
	if len(raw) != segment.HeaderSize+len(payload) {
		t.Fatalf("got length %d, want %d", len(raw), segment.HeaderSize+len(payload))
	}

	sum, h, p, err := segment.Decode(raw)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if sum != 0 {
		t.Fatalf("checksum result = 0x%04x, want 0", sum)
	}
	if h.SrcPort != opts.SrcPort || h.DstPort != opts.DstPort {
		t.Fatalf("ports mismatch: got %+v", h)
	}
	if h.SeqNo != opts.SeqNo || h.AckNo != opts.AckNo {
		t.Fatalf("seq/ack mismatch: got %+v", h)
	}
	if h.Window != opts.Window {
		t.Fatalf("window mismatch: got %d, want %d", h.Window, opts.Window)
	}
	if !h.ACK() || h.FIN() {
		t.Fatalf("flags mismatch: got %08b", h.Flags)
	}
	if h.DataOffset != 5 {
		t.Fatalf("data offset = %d, want 5", h.DataOffset)
	}
	if h.UrgentPtr != 0 {
		t.Fatalf("urgent pointer = %d, want 0", h.UrgentPtr)
	}
	if !bytes.Equal(p, payload) {
		t.Fatalf("payload = %q, want %q", p, payload)
	}
}

func TestEncodeDecodeEmptyPayload(t *testing.T) {
	raw := segment.Encode(nil, segment.Options{SrcPort: 1, DstPort: 2, SeqNo: 10, FIN: true})
	sum, h, p, err := segment.Decode(raw)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if sum != 0 {
		t.Fatalf("checksum result = 0x%04x, want 0", sum)
	}
	if !h.FIN() {
		t.Fatalf("expected FIN set")
	}
	if len(p) != 0 {
		t.Fatalf("expected empty payload, got %d bytes", len(p))
	}
}

func TestDecodeDetectsCorruption(t *testing.T) {
	raw := segment.Encode([]byte("payload data"), segment.Options{SrcPort: 1, DstPort: 2, SeqNo: 7})

	flipped := 0
	total := 0
	for bitPos := 0; bitPos < segment.HeaderSize*8; bitPos++ {
		corrupt := append([]byte(nil), raw...)
		corrupt[bitPos/8] ^= 1 << uint(bitPos%8)

		sum, _, _, err := segment.Decode(corrupt)
		if err != nil {
			t.Fatalf("Decode returned error: %v", err)
		}
		total++
		if sum != 0 {
			flipped++
		}
	}
	// Every single-bit flip within the header, checksum field included,
	// must be detected: one flipped bit shifts the one's-complement sum by
	// a non-zero power of two, so it can never sum back to zero.
	if flipped != total {
		t.Fatalf("detected %d/%d single-bit header corruptions", flipped, total)
	}
}

func TestDecodeShortSegmentIsError(t *testing.T) {
	if _, _, _, err := segment.Decode(make([]byte, 10)); err == nil {
		t.Fatalf("expected error decoding a too-short segment")
	}
}

func TestDecodeAcceptsUnmodifiedCapture(t *testing.T) {
	raw := segment.Encode([]byte("x"), segment.Options{SrcPort: 9, DstPort: 10, SeqNo: 1, AckNo: 2, ACK: true})
	sum, _, _, _ := segment.Decode(raw)
	if sum != 0 {
		t.Fatalf("expected intact segment to checksum to 0, got 0x%04x", sum)
	}
}
