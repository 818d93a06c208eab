// Package sender implements the sending half of tcup: a sliding-window,
// retransmission, and RTT-estimation state machine. It depends only on
// the datagram.Conn and filestore.Reader interfaces, never on net or os
// directly, so it can be driven against in-memory fakes in tests.
package sender

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zackxzhang/tcup/datagram"
	"github.com/zackxzhang/tcup/filestore"
	"github.com/zackxzhang/tcup/metrics"
	"github.com/zackxzhang/tcup/rtt"
	"github.com/zackxzhang/tcup/segment"
)

// Config bundles the sender's fixed parameters: the CLI surface's
// -b/-w flags plus the addressing needed to stamp outgoing segments.
type Config struct {
	SrcPort       uint16
	DstPort       uint16
	OBufferSize   int // outgoing payload chunk size
	WindowSize    uint32
	RetransmitBackoffFactor float64 // default 1.1, applied on each timeout retransmit
}

// Sender streams a file's contents, reliably and in order, to a single
// peer.
type Sender struct {
	cfg    Config
	conn   datagram.Conn
	file   filestore.Reader
	log    logrus.FieldLogger
	mx     *metrics.Set

	sendBase  uint32
	sendNext  uint32
	done      bool
	dupAckCnt int

	minRTT  time.Duration
	hasMin  bool
	toiCalc *rtt.Calculator
	samples *rtt.Sampler

	now func() time.Time
}

// Option customizes a Sender at construction time.
type Option func(*Sender)

// WithLogger overrides the default discard logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Sender) { s.log = l }
}

// WithMetrics attaches a metrics.Set; a nil Set (the default) is inert.
func WithMetrics(m *metrics.Set) Option {
	return func(s *Sender) { s.mx = m }
}

// withClock overrides the time source, for deterministic RTT tests.
func withClock(now func() time.Time) Option {
	return func(s *Sender) { s.now = now }
}

// New constructs a Sender ready to run.
func New(cfg Config, conn datagram.Conn, file filestore.Reader, opts ...Option) *Sender {
	if cfg.RetransmitBackoffFactor == 0 {
		cfg.RetransmitBackoffFactor = 1.1
	}
	s := &Sender{
		cfg:     cfg,
		conn:    conn,
		file:    file,
		log:     discardLogger(),
		toiCalc: rtt.NewCalculator(),
		samples: rtt.NewSampler(),
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(discardWriter{})
	return l
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// Run drives the sender loop to completion: it streams the file, handles
// ACKs, retransmits on timeout and on fast-retransmit, and returns once a
// FIN has been sent and implicitly delivered (the sender does not wait
// for an ACK of its own FIN — there is no handshake on this side of the
// transfer's end).
func (s *Sender) Run() error {
	for {
		toi := s.toiCalc.TOI()
		s.mx.SetTOI(toi)

		switch {
		case s.dupAckCnt >= 2:
			// Fast-retransmit pending: poll write-readiness only. A real
			// UDP write essentially never blocks, so this is realized as
			// an immediate, synchronous retransmit rather than a channel
			// select.
			if err := s.fastRetransmit(); err != nil {
				return err
			}

		case s.canSendMore():
			// A real UDP write essentially never blocks, so the
			// reference select()'s write-readiness fires immediately on
			// every iteration here; only recv-readiness is genuinely in
			// question. Poll it without blocking — processing an ACK
			// that's already arrived — then send unconditionally,
			// rather than waiting out a full TOI before the very first
			// segment goes out.
			seg, timedOut, err := s.pollRecv(0)
			if err != nil {
				return err
			}
			if !timedOut {
				done, err := s.handleAck(seg)
				if err != nil {
					return err
				}
				if done {
					return nil
				}
			}
			if err := s.sendNextSegment(); err != nil {
				return err
			}

		default:
			// Window full or file exhausted: nothing left to send this
			// iteration, so the reference select() genuinely blocks on
			// recv-readiness alone, up to toi.
			seg, timedOut, err := s.pollRecv(toi)
			if err != nil {
				return err
			}
			if timedOut {
				if err := s.retransmitOnTimeout(); err != nil {
					return err
				}
				continue
			}
			done, err := s.handleAck(seg)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
		}
	}
}

// canSendMore reports whether the window admits sending another full
// obuffer-sized chunk without exceeding windowSize outstanding bytes.
func (s *Sender) canSendMore() bool {
	return !s.done && uint64(s.sendNext)+uint64(s.cfg.OBufferSize) <= uint64(s.sendBase)+uint64(s.cfg.WindowSize)
}

// pollRecv waits up to toi for one datagram, or polls non-blockingly if
// toi is zero. timedOut is true iff none arrived; otherwise seg holds the
// raw bytes received.
func (s *Sender) pollRecv(toi time.Duration) (seg []byte, timedOut bool, err error) {
	b, err := s.conn.Recv(toi)
	if err != nil {
		if err == datagram.ErrTimeout {
			return nil, true, nil
		}
		return nil, false, err
	}
	return b, false, nil
}

// handleAck decodes and applies one ACK segment. done reports whether the
// transfer has completed (FIN sent and the loop should exit).
func (s *Sender) handleAck(raw []byte) (done bool, err error) {
	_, h, _, decErr := segment.Decode(raw)
	if decErr != nil {
		// Malformed beyond even having a header: nothing to act on.
		s.log.WithError(decErr).Debug("sender: dropping malformed ack")
		return false, nil
	}
	a := h.AckNo

	if s.sendBase < a {
		s.sendBase = a
		s.dupAckCnt = 0
	} else {
		s.dupAckCnt++
		s.mx.IncDuplicateACK()
	}

	if s.done && s.sendBase == s.sendNext {
		fin := segment.Encode(nil, segment.Options{
			SrcPort: s.cfg.SrcPort,
			DstPort: s.cfg.DstPort,
			SeqNo:   s.sendNext,
			FIN:     true,
		})
		if err := s.conn.Send(fin); err != nil {
			return false, err
		}
		s.log.WithField("seq_no", s.sendNext).Info("sender: fin sent, transfer complete")
		return true, nil
	}

	if s.samples.Contains(a) {
		skip, sendTime, err := s.samples.Pop(a)
		if err != nil {
			return false, err
		}
		sample := s.now().Sub(sendTime)
		if !s.hasMin || sample < s.minRTT {
			s.minRTT = sample
			s.hasMin = true
		}
		s.toiCalc.Update(sample)
		s.mx.SetRTT(sample)
		for i := 0; i < skip; i++ {
			s.toiCalc.Update(s.minRTT)
		}
	}
	return false, nil
}

// fastRetransmit resends the segment at sendBase without recording a new
// RTT sample, per Karn's rule, and resets the duplicate-ACK counter.
func (s *Sender) fastRetransmit() error {
	payload, err := s.file.ReadAt(int64(s.sendBase), s.cfg.OBufferSize)
	if err != nil {
		return err
	}
	seg := segment.Encode(payload, segment.Options{
		SrcPort: s.cfg.SrcPort,
		DstPort: s.cfg.DstPort,
		SeqNo:   s.sendBase,
	})
	if err := s.conn.Send(seg); err != nil {
		return err
	}
	s.mx.IncSegmentsSent()
	s.mx.IncRetransmit("fast_retransmit")
	s.log.WithField("seq_no", s.sendBase).Debug("sender: fast retransmit")
	s.dupAckCnt = 0
	return nil
}

// sendNextSegment reads the next chunk at sendNext and transmits it, or
// marks the transfer done at EOF.
func (s *Sender) sendNextSegment() error {
	payload, err := s.file.ReadAt(int64(s.sendNext), s.cfg.OBufferSize)
	if err != nil {
		return err
	}
	if len(payload) == 0 {
		s.done = true
		return nil
	}

	seg := segment.Encode(payload, segment.Options{
		SrcPort: s.cfg.SrcPort,
		DstPort: s.cfg.DstPort,
		SeqNo:   s.sendNext,
	})
	if err := s.conn.Send(seg); err != nil {
		return err
	}
	s.mx.IncSegmentsSent()
	s.mx.AddBytesSent(len(payload))
	s.sendNext += uint32(len(payload))
	s.samples.Record(s.sendNext, s.now())
	s.log.WithField("seq_no", s.sendNext-uint32(len(payload))).Debug("sender: sent segment")
	return nil
}

// retransmitOnTimeout backs off the TOI calculator and resends the
// segment at sendBase, invalidating any pending RTT sample for it per
// Karn's rule.
func (s *Sender) retransmitOnTimeout() error {
	s.toiCalc.Backoff(s.cfg.RetransmitBackoffFactor)

	payload, err := s.file.ReadAt(int64(s.sendBase), s.cfg.OBufferSize)
	if err != nil {
		return err
	}
	seg := segment.Encode(payload, segment.Options{
		SrcPort: s.cfg.SrcPort,
		DstPort: s.cfg.DstPort,
		SeqNo:   s.sendBase,
	})
	if err := s.conn.Send(seg); err != nil {
		return err
	}
	s.mx.IncSegmentsSent()
	s.mx.IncRetransmit("timeout")

	ackEndpoint := s.sendBase + uint32(len(payload))
	if s.samples.Contains(ackEndpoint) {
		s.samples.Remove(ackEndpoint)
	}
	s.log.WithFields(logrus.Fields{
		"seq_no": s.sendBase,
		"toi":    s.toiCalc.TOI(),
	}).Debug("sender: timeout, retransmitting")
	return nil
}
