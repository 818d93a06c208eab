// Package metrics exposes the sender's and receiver's reliability-engine
// statistics as Prometheus collectors, the way runZeroInc's tcpinfo
// exporters expose kernel TCP_INFO statistics — except here the numbers
// come from tcup's own hand-rolled transport instead of getsockopt.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Set bundles every collector either role reports. A nil *Set is a valid,
// fully inert default (every method is a nil-safe no-op), so the core
// sender/receiver packages can be unit tested without a metrics registry.
type Set struct {
	BytesTotal                *prometheus.CounterVec
	SegmentsSentTotal         prometheus.Counter
	SegmentsRetransmitted     *prometheus.CounterVec
	SegmentsDiscardedTotal    *prometheus.CounterVec
	DuplicateAcksTotal        prometheus.Counter
	CurrentTOISeconds         prometheus.Gauge
	CurrentRTTSeconds         prometheus.Gauge
	ReassemblyBufferBytes     prometheus.Gauge
}

// NewSet constructs a Set and registers its collectors with reg.
func NewSet(reg prometheus.Registerer, role string) *Set {
	s := &Set{
		BytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tcup",
			Name:      "bytes_total",
			Help:      "Total payload bytes transferred.",
		}, []string{"role"}),
		SegmentsSentTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "tcup",
			Name:        "segments_sent_total",
			Help:        "Total segments sent, including retransmissions.",
			ConstLabels: prometheus.Labels{"role": role},
		}),
		SegmentsRetransmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "tcup",
			Name:        "segments_retransmitted_total",
			Help:        "Total segments retransmitted, by cause.",
			ConstLabels: prometheus.Labels{"role": role},
		}, []string{"cause"}),
		SegmentsDiscardedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "tcup",
			Name:        "segments_discarded_total",
			Help:        "Total segments discarded on receipt, by reason.",
			ConstLabels: prometheus.Labels{"role": role},
		}, []string{"reason"}),
		DuplicateAcksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "tcup",
			Name:        "duplicate_acks_total",
			Help:        "Total ACKs received that did not advance send_base.",
			ConstLabels: prometheus.Labels{"role": role},
		}),
		CurrentTOISeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "tcup",
			Name:        "current_toi_seconds",
			Help:        "Current retransmission timeout interval.",
			ConstLabels: prometheus.Labels{"role": role},
		}),
		CurrentRTTSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "tcup",
			Name:        "current_rtt_seconds",
			Help:        "Most recently observed round-trip sample.",
			ConstLabels: prometheus.Labels{"role": role},
		}),
		ReassemblyBufferBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "tcup",
			Name:        "reassembly_buffer_bytes",
			Help:        "Bytes currently held in the out-of-order reassembly buffer.",
			ConstLabels: prometheus.Labels{"role": role},
		}),
	}

	reg.MustRegister(
		s.BytesTotal,
		s.SegmentsSentTotal,
		s.SegmentsRetransmitted,
		s.SegmentsDiscardedTotal,
		s.DuplicateAcksTotal,
		s.CurrentTOISeconds,
		s.CurrentRTTSeconds,
		s.ReassemblyBufferBytes,
	)
	return s
}

func (s *Set) addBytes(role string, n int) {
	if s == nil {
		return
	}
	s.BytesTotal.WithLabelValues(role).Add(float64(n))
}

// AddBytesSent records n payload bytes sent by the sender role.
func (s *Set) AddBytesSent(n int) { s.addBytes("sender", n) }

// AddBytesReceived records n payload bytes delivered by the receiver role.
func (s *Set) AddBytesReceived(n int) { s.addBytes("receiver", n) }

// IncSegmentsSent counts one transmitted segment (new or retransmitted).
func (s *Set) IncSegmentsSent() {
	if s == nil {
		return
	}
	s.SegmentsSentTotal.Inc()
}

// IncRetransmit counts one retransmission, attributing it to cause
// ("timeout" or "fast_retransmit").
func (s *Set) IncRetransmit(cause string) {
	if s == nil {
		return
	}
	s.SegmentsRetransmitted.WithLabelValues(cause).Inc()
}

// IncDiscarded counts one discarded segment, attributing it to reason
// ("corrupt", "duplicate", or "buffer_full").
func (s *Set) IncDiscarded(reason string) {
	if s == nil {
		return
	}
	s.SegmentsDiscardedTotal.WithLabelValues(reason).Inc()
}

// IncDuplicateACK counts one ACK that failed to advance send_base.
func (s *Set) IncDuplicateACK() {
	if s == nil {
		return
	}
	s.DuplicateAcksTotal.Inc()
}

// SetTOI records the sender's current retransmission timeout interval.
func (s *Set) SetTOI(d time.Duration) {
	if s == nil {
		return
	}
	s.CurrentTOISeconds.Set(d.Seconds())
}

// SetRTT records the most recently observed round-trip sample.
func (s *Set) SetRTT(d time.Duration) {
	if s == nil {
		return
	}
	s.CurrentRTTSeconds.Set(d.Seconds())
}

// SetReassemblyBufferBytes records the receiver's current out-of-order
// buffer occupancy.
func (s *Set) SetReassemblyBufferBytes(n int) {
	if s == nil {
		return
	}
	s.ReassemblyBufferBytes.Set(float64(n))
}
