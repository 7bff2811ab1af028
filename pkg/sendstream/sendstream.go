// Package sendstream implements a per-SSRC RTC send stream: transmit of
// already-packetized RTP, retransmit ring, NACK responder, periodic Sender Reports, and
// RR/XR ingestion with RTT smoothing.
package sendstream

import (
	"sync"
	"time"

	"github.com/ethan/streamkit/pkg/logger"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"golang.org/x/time/rate"
)

const (
	ringSize       = 2048
	srInterval     = 500 * time.Millisecond
	xrStaleWindow  = 5 * time.Second
	resendWarnTries = 5
)

// Send delivers a fully-formed RTP or RTCP packet to the wire (already
// SRTP-protected by the caller).
type Send func(b []byte) error

type ringEntry struct {
	valid     bool
	packet    *rtp.Packet
	lastSent  time.Time
	resends   int
}

// Stream owns one primary SSRC and, optionally, a paired RTX SSRC/PT.
type Stream struct {
	ssrc        uint32
	rtxSSRC     uint32
	rtxPT       uint8
	rtxEnabled  bool
	clockRate   uint32
	send        Send
	log         *logger.Logger

	mu          sync.Mutex
	ring        [ringSize]ringEntry
	rtxSeq      uint16
	packetCount uint32
	octetCount  uint32

	avgRTT      time.Duration
	lastXRRecv  time.Time
	lastRRTNTP  uint64
	haveXR      bool

	srLimiter   *rate.Limiter
}

// Option configures RTX on a Stream at construction.
type Option func(*Stream)

// WithRTX enables RTX rewrapping on resends using rtxSSRC/rtxPT.
func WithRTX(rtxSSRC uint32, rtxPT uint8) Option {
	return func(s *Stream) {
		s.rtxSSRC = rtxSSRC
		s.rtxPT = rtxPT
		s.rtxEnabled = true
	}
}

// New constructs a send stream for ssrc at clockRate, delivering wire
// bytes through send.
func New(ssrc, clockRate uint32, send Send, log *logger.Logger, opts ...Option) *Stream {
	s := &Stream{
		ssrc:      ssrc,
		clockRate: clockRate,
		send:      send,
		log:       logger.OrDefault(log),
		srLimiter: rate.NewLimiter(rate.Every(srInterval), 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SSRC returns the primary synchronization source this stream sends on.
func (s *Stream) SSRC() uint32 { return s.ssrc }

// TimestampFor converts a dts in milliseconds to an RTP timestamp:
// rtp_ts = dts_ms * clock_rate / 1000 (truncated).
func (s *Stream) TimestampFor(dtsMs int64) uint32 {
	return uint32(dtsMs * int64(s.clockRate) / 1000)
}

// SendRTP transmits pkt, recording it in the retransmit ring.
func (s *Stream) SendRTP(pkt *rtp.Packet) error {
	raw, err := pkt.Marshal()
	if err != nil {
		return err
	}

	s.mu.Lock()
	slot := &s.ring[pkt.SequenceNumber%ringSize]
	slot.valid = true
	slot.packet = clonePacket(pkt)
	slot.lastSent = time.Now()
	slot.resends = 0
	s.packetCount++
	s.octetCount += uint32(len(pkt.Payload))
	s.mu.Unlock()

	return s.send(raw)
}

func clonePacket(pkt *rtp.Packet) *rtp.Packet {
	cp := *pkt
	cp.Payload = append([]byte(nil), pkt.Payload...)
	return &cp
}

// OnNack services a received TransportLayerNack, resending each listed
// sequence subject to the RTT-gated throttle.
func (s *Stream) OnNack(nack *rtcp.TransportLayerNack) {
	for _, pair := range nack.Nacks {
		for _, seq := range pair.PacketList() {
			s.resend(seq)
		}
	}
}

func (s *Stream) resend(seq uint16) {
	s.mu.Lock()
	slot := &s.ring[seq%ringSize]
	if !slot.valid || slot.packet == nil || slot.packet.SequenceNumber != seq {
		s.mu.Unlock()
		return
	}

	minGap := s.avgRTT
	if s.avgRTT > 10*time.Millisecond {
		minGap = s.avgRTT / 2
	}
	if time.Since(slot.lastSent) < minGap {
		s.mu.Unlock()
		return
	}

	pkt := clonePacket(slot.packet)
	slot.lastSent = time.Now()
	slot.resends++
	resends := slot.resends
	s.mu.Unlock()

	if resends > resendWarnTries {
		s.log.Warn("sequence exceeded resend warn threshold", "seq", seq, "resends", resends)
	}

	if s.rtxEnabled {
		pkt = s.rewrapRTX(pkt)
	}
	if raw, err := pkt.Marshal(); err == nil {
		_ = s.send(raw)
	}
}

// rewrapRTX rewraps a cloned packet with the RTX SSRC/PT, prepending the
// original sequence number (2 big-endian bytes) and stripping padding.
func (s *Stream) rewrapRTX(pkt *rtp.Packet) *rtp.Packet {
	s.mu.Lock()
	rtxSeq := s.rtxSeq
	s.rtxSeq++
	s.mu.Unlock()

	origSeq := pkt.SequenceNumber
	payload := make([]byte, 2, 2+len(pkt.Payload))
	payload[0] = byte(origSeq >> 8)
	payload[1] = byte(origSeq)
	payload = append(payload, pkt.Payload...)

	pkt.Padding = false
	pkt.PayloadType = s.rtxPT
	pkt.SSRC = s.rtxSSRC
	pkt.SequenceNumber = rtxSeq
	pkt.Payload = payload
	return pkt
}

// Tick should be called on a short interval (e.g. 100ms) to emit periodic
// Sender Reports and XR/DLRR blocks. The 500ms cadence is enforced by a
// token-bucket limiter rather than hand-rolled ticker-delta math.
func (s *Stream) Tick(now time.Time) {
	if s.srLimiter.AllowN(now, 1) {
		s.emitSR(now)
	}
}

func (s *Stream) emitSR(now time.Time) {
	s.mu.Lock()
	sr := &rtcp.SenderReport{
		SSRC:        s.ssrc,
		NTPTime:     toNTP(now),
		RTPTime:     uint32(now.UnixMilli()/1000) * s.clockRate,
		PacketCount: s.packetCount,
		OctetCount:  s.octetCount,
	}
	var xr *rtcp.ExtendedReport
	if s.haveXR && now.Sub(s.lastXRRecv) < xrStaleWindow {
		xr = &rtcp.ExtendedReport{
			SenderSSRC: s.ssrc,
			Reports: []rtcp.ReportBlock{
				&rtcp.DLRRReportBlock{
					Reports: []rtcp.DLRRReport{{
						SSRC:   s.ssrc,
						LastRR: compactNTP(s.lastRRTNTP),
						DLRR:   ntpDelay(now.Sub(s.lastXRRecv)),
					}},
				},
			},
		}
	}
	s.mu.Unlock()

	if raw, err := sr.Marshal(); err == nil {
		_ = s.send(raw)
	}
	if xr != nil {
		if raw, err := xr.Marshal(); err == nil {
			_ = s.send(raw)
		}
	}
}

// OnReceiverReport ingests an inbound RR, updating the smoothed avg_rtt:
// avg_rtt += (rtt - avg_rtt)/4.
func (s *Stream) OnReceiverReport(now time.Time, report rtcp.ReceptionReport) {
	if report.LastSenderReport == 0 {
		return
	}
	rtt := rttFromReport(now, report.LastSenderReport, report.Delay)
	if rtt < 0 {
		return
	}

	s.mu.Lock()
	if s.avgRTT == 0 {
		s.avgRTT = rtt
	} else {
		s.avgRTT += (rtt - s.avgRTT) / 4
	}
	s.mu.Unlock()
}

// OnReceiverReferenceTime records an inbound XR-RRT block so a subsequent
// SR can contribute a DLRR.
func (s *Stream) OnReceiverReferenceTime(now time.Time, ntp uint64) {
	s.mu.Lock()
	s.lastRRTNTP = ntp
	s.lastXRRecv = now
	s.haveXR = true
	s.mu.Unlock()
}

// AvgRTT returns the current smoothed round-trip estimate.
func (s *Stream) AvgRTT() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.avgRTT
}
