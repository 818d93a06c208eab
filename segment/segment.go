// Package segment implements the wire codec for tcup's TCP-shaped
// datagram: a fixed 20-byte header (six of TCP's control bits, a 32-bit
// byte-offset sequence/ack space, no options) followed by a variable-length
// payload, checksummed the way the reference network stack's header
// package checksums its own TCP segments.
package segment

import (
	"encoding/binary"
	"fmt"

	"github.com/zackxzhang/tcup/checksum"
)

// Byte offsets of each header field, mirroring how the reference stack's
// header.TCP lays out its constants rather than inlining magic offsets at
// every accessor.
const (
	offSrcPort    = 0
	offDstPort    = 2
	offSeqNo      = 4
	offAckNo      = 8
	offDataOffset = 12
	offFlags      = 13
	offWindow     = 14
	offChecksum   = 16
	offUrgentPtr  = 18

	// HeaderSize is the fixed size, in bytes, of a segment header.
	HeaderSize = 20

	// dataOffsetWords is the header length in 32-bit words (20 bytes = 5
	// words), stored in the high nibble of the data-offset byte.
	dataOffsetWords = 5
)

// Control bit positions within the flags byte, bits 5..0; bits 7-6 are
// reserved and always zero.
const (
	FlagFIN = 1 << 0
	FlagSYN = 1 << 1
	FlagRST = 1 << 2
	FlagPSH = 1 << 3
	FlagACK = 1 << 4
	FlagURG = 1 << 5
)

// Header holds the parsed fields of a segment header, returned by Decode
// alongside the payload and checksum result. It is a plain struct rather
// than the dynamic field-dict the source language used, per the Dynamic
// dict design note.
type Header struct {
	SrcPort    uint16
	DstPort    uint16
	SeqNo      uint32
	AckNo      uint32
	DataOffset uint8 // header length in 32-bit words; always 5 here
	Flags      uint8
	Window     uint16
	Checksum   uint16
	UrgentPtr  uint16
}

// ACK reports whether the ACK control bit is set.
func (h Header) ACK() bool { return h.Flags&FlagACK != 0 }

// FIN reports whether the FIN control bit is set.
func (h Header) FIN() bool { return h.Flags&FlagFIN != 0 }

// Options bundles the semantically-varying fields Encode accepts. The
// global defaults baked into the wire format (reserved bits, URG/PSH/RST/
// SYN always zero, urgent pointer always zero, data offset always 5) are
// not parameters — they are constants, per the Global mutable header
// defaults design note.
type Options struct {
	SrcPort uint16
	DstPort uint16
	SeqNo   uint32
	AckNo   uint32
	Window  uint16
	ACK     bool
	FIN     bool
}

// Encode packs payload and opts into a segment: a 20-byte header followed
// by payload, with the checksum computed over the whole thing after first
// writing a zeroed checksum field.
func Encode(payload []byte, opts Options) []byte {
	buf := make([]byte, HeaderSize+len(payload))
	writeHeader(buf, opts, 0)
	copy(buf[HeaderSize:], payload)

	sum := checksum.Checksum(buf, 0)
	binary.BigEndian.PutUint16(buf[offChecksum:], sum)
	return buf
}

func writeHeader(buf []byte, opts Options, csum uint16) {
	binary.BigEndian.PutUint16(buf[offSrcPort:], opts.SrcPort)
	binary.BigEndian.PutUint16(buf[offDstPort:], opts.DstPort)
	binary.BigEndian.PutUint32(buf[offSeqNo:], opts.SeqNo)
	binary.BigEndian.PutUint32(buf[offAckNo:], opts.AckNo)
	buf[offDataOffset] = dataOffsetWords << 4
	buf[offFlags] = packFlags(opts.ACK, opts.FIN)
	binary.BigEndian.PutUint16(buf[offWindow:], opts.Window)
	binary.BigEndian.PutUint16(buf[offChecksum:], csum)
	binary.BigEndian.PutUint16(buf[offUrgentPtr:], 0)
}

func packFlags(ack, fin bool) uint8 {
	var f uint8
	if ack {
		f |= FlagACK
	}
	if fin {
		f |= FlagFIN
	}
	return f
}

// Decode splits segment into its header and payload, and reports the
// checksum recomputed over the whole received segment (header, with its
// received checksum field intact, plus payload). A zero result means the
// segment is intact; any other value means it is corrupt and the caller
// must not act on Header's control bits, since they cannot be trusted.
//
// Decode is total over any input of at least HeaderSize bytes — it never
// panics. A segment shorter than HeaderSize cannot be decoded at all and
// is reported as an error, since there is no header to read.
func Decode(raw []byte) (checksumResult uint16, h Header, payload []byte, err error) {
	if len(raw) < HeaderSize {
		return 0, Header{}, nil, fmt.Errorf("segment: short segment: %d bytes, want at least %d", len(raw), HeaderSize)
	}

	h = Header{
		SrcPort:    binary.BigEndian.Uint16(raw[offSrcPort:]),
		DstPort:    binary.BigEndian.Uint16(raw[offDstPort:]),
		SeqNo:      binary.BigEndian.Uint32(raw[offSeqNo:]),
		AckNo:      binary.BigEndian.Uint32(raw[offAckNo:]),
		DataOffset: raw[offDataOffset] >> 4,
		Flags:      raw[offFlags],
		Window:     binary.BigEndian.Uint16(raw[offWindow:]),
		Checksum:   binary.BigEndian.Uint16(raw[offChecksum:]),
		UrgentPtr:  binary.BigEndian.Uint16(raw[offUrgentPtr:]),
	}
	payload = raw[HeaderSize:]
	checksumResult = checksum.Checksum(raw, 0)
	return checksumResult, h, payload, nil
}
