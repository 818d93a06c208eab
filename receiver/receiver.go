// Package receiver implements the receiving half of tcup: in-order
// reassembly with an out-of-order holding buffer. Like package sender, it
// depends only on the datagram.Conn and filestore.Writer interfaces.
package receiver

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zackxzhang/tcup/datagram"
	"github.com/zackxzhang/tcup/filestore"
	"github.com/zackxzhang/tcup/metrics"
	"github.com/zackxzhang/tcup/reassembly"
	"github.com/zackxzhang/tcup/segment"
)

// Error mirrors the reference stack's types.Error.
type Error struct{ s string }

func (e *Error) Error() string { return e.s }

// ErrInactivityTimeout is returned by Run when no segment (not even a
// corrupt or duplicate one) arrives within InactivityTimeout — the only
// failure mode of an otherwise-never-surfacing error policy.
var ErrInactivityTimeout = &Error{"receiver: inactivity timeout, no segment received"}

// Config bundles the receiver's fixed parameters.
type Config struct {
	SrcPort           uint16
	DstPort           uint16
	IBufferSize       int
	WindowSize        int // reassembly buffer capacity, in bytes
	InactivityTimeout time.Duration
}

// DefaultInactivityTimeout is the receiver's fixed recv timeout, guarding
// against a lost or corrupted FIN.
const DefaultInactivityTimeout = 60 * time.Second

// Receiver reassembles a stream of segments into an in-order byte
// sequence written to file.
type Receiver struct {
	cfg  Config
	conn datagram.Conn
	file filestore.Writer
	log  logrus.FieldLogger
	mx   *metrics.Set

	recvBase uint32
	buf      *reassembly.Buffer
}

// Option customizes a Receiver at construction time.
type Option func(*Receiver)

// WithLogger overrides the default discard logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(r *Receiver) { r.log = l }
}

// WithMetrics attaches a metrics.Set; a nil Set (the default) is inert.
func WithMetrics(m *metrics.Set) Option {
	return func(r *Receiver) { r.mx = m }
}

// New constructs a Receiver ready to run.
func New(cfg Config, conn datagram.Conn, file filestore.Writer, opts ...Option) *Receiver {
	if cfg.InactivityTimeout == 0 {
		cfg.InactivityTimeout = DefaultInactivityTimeout
	}
	r := &Receiver{
		cfg:  cfg,
		conn: conn,
		file: file,
		log:  discardLogger(),
		buf:  reassembly.New(cfg.WindowSize),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(discardWriter{})
	return l
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// Run blocks, receiving and dispatching segments, until a FIN segment
// that passes its checksum is accepted, or InactivityTimeout elapses with
// no segment received at all.
func (r *Receiver) Run() error {
	for {
		raw, err := r.conn.Recv(r.cfg.InactivityTimeout)
		if err != nil {
			if err == datagram.ErrTimeout {
				r.log.Error("receiver: inactivity timeout")
				return ErrInactivityTimeout
			}
			return err
		}

		finAccepted, err := r.handleSegment(raw)
		if err != nil {
			return err
		}
		if finAccepted {
			r.log.WithField("recv_base", r.recvBase).Info("receiver: fin accepted, transfer complete")
			return nil
		}
	}
}

// handleSegment decodes and dispatches one received segment, emitting the
// corresponding ACK. It reports whether the segment was an
// checksum-intact FIN, in which case the caller should stop after the ACK
// already sent below.
func (r *Receiver) handleSegment(raw []byte) (finAccepted bool, err error) {
	checksumResult, h, payload, decErr := segment.Decode(raw)
	if decErr != nil {
		// Too short even to have a header: nothing to ACK meaningfully,
		// treat like any other corrupt segment (drop, ACK unchanged).
		r.log.WithError(decErr).Debug("receiver: dropping malformed segment")
		r.mx.IncDiscarded("corrupt")
		r.sendAck()
		return false, nil
	}

	switch {
	case checksumResult != 0:
		// Corrupt: discarded, and its control bits (including FIN) are
		// never acted on, since they cannot be trusted.
		r.log.WithField("seq_no", h.SeqNo).Debug("receiver: corrupt segment discarded")
		r.mx.IncDiscarded("corrupt")
		r.sendAck()
		return false, nil

	case h.SeqNo < r.recvBase:
		r.log.WithField("seq_no", h.SeqNo).Debug("receiver: duplicate/reordered-past segment discarded")
		r.mx.IncDiscarded("duplicate")
		r.sendAck()
		return h.FIN(), nil

	case h.SeqNo > r.recvBase:
		if !r.buf.Push(h.SeqNo, payload) {
			// Push rejects on a full buffer first; otherwise the seqNo was
			// already buffered.
			if r.buf.Size() >= r.cfg.WindowSize {
				r.mx.IncDiscarded("buffer_full")
			} else {
				r.mx.IncDiscarded("duplicate")
			}
		}
		r.mx.SetReassemblyBufferBytes(r.buf.Size())
		r.sendAck()
		return h.FIN(), nil

	default: // h.SeqNo == r.recvBase
		extra, popErr := r.buf.Pop(r.recvBase + uint32(len(payload)))
		if popErr != nil {
			return false, popErr
		}
		full := append(append([]byte(nil), payload...), extra...)
		if err := r.file.Append(full); err != nil {
			return false, err
		}
		r.mx.AddBytesReceived(len(full))
		r.mx.SetReassemblyBufferBytes(r.buf.Size())
		r.recvBase += uint32(len(full))

		fin := h.FIN()
		r.sendAck()
		return fin, nil
	}
}

// sendAck emits a cumulative ACK carrying recv_base: one per received
// segment, including corrupt or duplicate ones, so the sender's
// cumulative-ack and duplicate-ack-driven fast retransmit both function.
func (r *Receiver) sendAck() {
	ack := segment.Encode(nil, segment.Options{
		SrcPort: r.cfg.SrcPort,
		DstPort: r.cfg.DstPort,
		AckNo:   r.recvBase,
		ACK:     true,
	})
	if err := r.conn.Send(ack); err != nil {
		r.log.WithError(err).Warn("receiver: failed to send ack")
	}
}
