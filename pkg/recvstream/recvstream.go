package recvstream

import (
	"sync"
	"time"

	"github.com/ethan/streamkit/pkg/logger"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
)

const pliRateLimit = 5 * time.Second

// Send delivers a fully-formed RTCP packet to the wire.
type Send func(b []byte) error

// Stream is a per-SSRC RTC receive stream: sequence validity tracking,
// jitter estimation, RTX demux, cumulative loss, RR emission, and
// rate-limited PLI requests.
type Stream struct {
	ssrc       uint32
	clockRate  uint32
	send       Send
	log        *logger.Logger

	rtxSSRC    uint32
	rtxEnabled bool

	mu         sync.Mutex
	state      seqState
	jitter     float64
	lastArrival time.Time
	lastTransit float64
	haveTransit bool

	lastSRNTP  uint64
	lastSRRecv time.Time
	haveSR     bool

	lastPLI    time.Time
}

// Option configures a receive Stream.
type Option func(*Stream)

// WithRTX enables RTX demuxing for packets arriving on rtxSSRC.
func WithRTX(rtxSSRC uint32) Option {
	return func(s *Stream) {
		s.rtxSSRC = rtxSSRC
		s.rtxEnabled = true
	}
}

// New constructs a receive stream for the primary ssrc.
func New(ssrc, clockRate uint32, send Send, log *logger.Logger, opts ...Option) *Stream {
	s := &Stream{ssrc: ssrc, clockRate: clockRate, send: send, log: logger.OrDefault(log)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SSRC returns the primary synchronization source this stream receives on.
func (s *Stream) SSRC() uint32 { return s.ssrc }

// DemuxRTX rewraps an RTX packet back into the primary SSRC/PT space:
// outer SSRC becomes primary, the leading two payload bytes (original seq)
// become the new RTP seq, padding is stripped.
func (s *Stream) DemuxRTX(pkt *rtp.Packet, primaryPT uint8) bool {
	if !s.rtxEnabled || pkt.SSRC != s.rtxSSRC || len(pkt.Payload) < 2 {
		return false
	}
	origSeq := uint16(pkt.Payload[0])<<8 | uint16(pkt.Payload[1])
	pkt.SSRC = s.ssrc
	pkt.PayloadType = primaryPT
	pkt.SequenceNumber = origSeq
	pkt.Payload = pkt.Payload[2:]
	pkt.Padding = false
	return true
}

// OnPacket updates sequence state and the jitter estimate for a non-RTX
// packet and returns its extended sequence number.
func (s *Stream) OnPacket(pkt *rtp.Packet, now time.Time) (extSeq uint64, valid bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	extSeq, valid = s.state.update(pkt.SequenceNumber)
	if !valid {
		return extSeq, false
	}

	transit := float64(now.UnixMilli()) - float64(pkt.Timestamp)*1000/float64(s.clockRate)
	if s.haveTransit {
		d := transit - s.lastTransit
		if d < 0 {
			d = -d
		}
		s.jitter += (d - s.jitter) / 8
	}
	s.lastTransit = transit
	s.haveTransit = true
	return extSeq, true
}

// OnSenderReport records the most recent inbound SR's NTP timestamp, used
// to compute LSR/DLSR on the next RR.
func (s *Stream) OnSenderReport(now time.Time, sr *rtcp.SenderReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSRNTP = sr.NTPTime
	s.lastSRRecv = now
	s.haveSR = true
}

// BuildReceiverReport constructs the periodic RTCP receiver report.
func (s *Stream) BuildReceiverReport(now time.Time) *rtcp.ReceiverReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	fracLost, totalLost := s.state.lossStats()

	report := rtcp.ReceptionReport{
		SSRC:               s.ssrc,
		FractionLost:       fracLost,
		TotalLost:          totalLost,
		LastSequenceNumber: uint32(s.state.cycles) | uint32(s.state.maxSeq),
		Jitter:             uint32(s.jitter),
	}
	if s.haveSR {
		report.LastSenderReport = compactNTP(s.lastSRNTP)
		report.Delay = ntpDelay(now.Sub(s.lastSRRecv))
	}

	return &rtcp.ReceiverReport{SSRC: s.ssrc, Reports: []rtcp.ReceptionReport{report}}
}

// RequestKeyFrame sends an RTCP PLI to mediaSSRC, rate-limited to at most
// once per 5s.
func (s *Stream) RequestKeyFrame(senderSSRC uint32) {
	s.mu.Lock()
	if time.Since(s.lastPLI) < pliRateLimit {
		s.mu.Unlock()
		return
	}
	s.lastPLI = time.Now()
	s.mu.Unlock()

	pli := &rtcp.PictureLossIndication{SenderSSRC: senderSSRC, MediaSSRC: s.ssrc}
	if raw, err := pli.Marshal(); err == nil {
		if err := s.send(raw); err != nil {
			s.log.Warn("failed to send PLI", "err", err)
		}
	}
}
