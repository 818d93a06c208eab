package checksum_test

import (
	"testing"

	"github.com/zackxzhang/tcup/checksum"
)

func TestChecksumRFC1071Example(t *testing.T) {
	// The classic RFC 1071 §3 worked example: words 0x0001, 0xf203,
	// 0xf4f5, 0xf6f7 sum to 0x2ddf0, folding to 0xddf0 + 2 = 0xddf2,
	// which complements to 0x220d.
	buf := []byte{0x00, 0x01, 0xf2, 0x03, 0xf4, 0xf5, 0xf6, 0xf7}
	got := checksum.Checksum(buf, 0)
	want := uint16(0x220d)
	if got != want {
		t.Fatalf("Checksum() = %#04x, want %#04x", got, want)
	}
}

func TestChecksumOddLengthPadsWithZeroByte(t *testing.T) {
	odd := checksum.Checksum([]byte{0x12, 0x34, 0x00}, 0)
	even := checksum.Checksum([]byte{0x12, 0x34}, 0)
	if odd != even {
		t.Fatalf("odd-length buffer padded with a zero byte should match its even-length equivalent: got %#04x, %#04x", odd, even)
	}
}

func TestChecksumOfItsOwnComplementIsZero(t *testing.T) {
	// A standard checksum property: if the checksum field itself carries
	// the checksum, summing header+checksum together yields zero.
	buf := []byte{0x45, 0x00, 0x00, 0x3c, 0x1c, 0x46, 0x40, 0x00}
	c := checksum.Checksum(buf, 0)
	withChecksum := append(append([]byte(nil), buf...), byte(c>>8), byte(c))
	if got := checksum.Checksum(withChecksum, 0); got != 0 {
		t.Fatalf("checksum of buffer+its own checksum = %#04x, want 0", got)
	}
}

func TestChecksumInitialSeedsTheAccumulation(t *testing.T) {
	// Checksum(buf, initial) folding on top of a non-zero seed should
	// match computing the checksum of initial's two bytes prepended to
	// buf from a zero seed.
	buf := []byte{0xde, 0xad, 0xbe, 0xef}
	seeded := checksum.Checksum(buf, 0x1234)
	prefixed := checksum.Checksum(append([]byte{0x12, 0x34}, buf...), 0)
	if seeded != prefixed {
		t.Fatalf("Checksum(buf, 0x1234) = %#04x, want %#04x matching a prepended seed", seeded, prefixed)
	}
}
