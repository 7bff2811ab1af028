// Package rtppack packetizes and depacketizes H.264 and Opus media into
// RTP, on the send side and the receive side.
package rtppack

import (
	"encoding/binary"
	"time"

	"github.com/pion/rtp"
)

// H.264 NAL unit types (ITU-T H.264 Annex-B).
const (
	NALTypeSlice   = 1
	NALTypeIDR     = 5
	NALTypeSEI     = 6
	NALTypeSPS     = 7
	NALTypePPS     = 8
	NALTypeSTAPA   = 24
	NALTypeFUA     = 28
)

// MaxPayloadSize is the RTP payload MTU packetization is pinned to.
const MaxPayloadSize = 1200

// fuaStaleTimeout drops pending FU-A fragments older than this.
const fuaStaleTimeout = 600 * time.Millisecond

// H264Packetizer turns Annex-B NAL units into RTP packets: STAP-A
// SPS/PPS aggregation ahead of key frames, single packets for small NALs,
// FU-A fragmentation for large ones, and SEI drop.
type H264Packetizer struct {
	sps, pps  []byte
	sequence  uint16
}

// NewH264Packetizer constructs a packetizer with its own RTP sequence space.
func NewH264Packetizer() *H264Packetizer {
	return &H264Packetizer{}
}

// Packetize converts one Annex-B-framed NAL unit (start code already
// stripped) into the RTP packets that represent it. ts is the
// already-computed RTP timestamp (dts_ms * clock_rate / 1000).
func (p *H264Packetizer) Packetize(nal []byte, isKeyFrame bool, ts uint32, ssrc uint32, payloadType uint8) []*rtp.Packet {
	if len(nal) == 0 {
		return nil
	}
	naluType := nal[0] & 0x1F

	switch naluType {
	case NALTypeSPS:
		p.sps = append([]byte(nil), nal...)
		return nil
	case NALTypePPS:
		p.pps = append([]byte(nil), nal...)
		return nil
	case NALTypeSEI:
		return nil
	}

	var packets []*rtp.Packet
	if isKeyFrame && len(p.sps) > 0 && len(p.pps) > 0 {
		packets = append(packets, p.stapA(ts, ssrc, payloadType))
	}

	if len(nal) <= MaxPayloadSize {
		packets = append(packets, p.single(nal, ts, ssrc, payloadType, true))
	} else {
		packets = append(packets, p.fragment(nal, ts, ssrc, payloadType)...)
	}
	return packets
}

func (p *H264Packetizer) nextHeader(ts, ssrc uint32, payloadType uint8, marker bool) rtp.Header {
	h := rtp.Header{
		Version:        2,
		Marker:         marker,
		PayloadType:    payloadType,
		SequenceNumber: p.sequence,
		Timestamp:      ts,
		SSRC:           ssrc,
	}
	p.sequence++
	return h
}

// stapA emits a single STAP-A packet aggregating SPS then PPS, using the
// "[NAL header | 2-byte length | NAL | ...]" layout.
func (p *H264Packetizer) stapA(ts, ssrc uint32, payloadType uint8) *rtp.Packet {
	fByte := p.sps[0] & 0x80
	nriByte := p.sps[0] & 0x60
	stapHeader := fByte | nriByte | NALTypeSTAPA

	payload := make([]byte, 0, 3+len(p.sps)+len(p.pps))
	payload = append(payload, stapHeader)
	payload = appendLenPrefixed(payload, p.sps)
	payload = appendLenPrefixed(payload, p.pps)

	header := p.nextHeader(ts, ssrc, payloadType, false)
	return &rtp.Packet{Header: header, Payload: payload}
}

func appendLenPrefixed(dst, nal []byte) []byte {
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(nal)))
	dst = append(dst, lenBuf[:]...)
	return append(dst, nal...)
}

func (p *H264Packetizer) single(nal []byte, ts, ssrc uint32, payloadType uint8, marker bool) *rtp.Packet {
	header := p.nextHeader(ts, ssrc, payloadType, marker)
	return &rtp.Packet{Header: header, Payload: append([]byte(nil), nal...)}
}

// fragment splits nal into FU-A packets of at most MaxPayloadSize bytes of
// payload each.
func (p *H264Packetizer) fragment(nal []byte, ts, ssrc uint32, payloadType uint8) []*rtp.Packet {
	fuIndicator := (nal[0] & 0xE0) | NALTypeFUA
	naluType := nal[0] & 0x1F
	data := nal[1:]

	var packets []*rtp.Packet
	for offset := 0; offset < len(data); offset += MaxPayloadSize {
		end := offset + MaxPayloadSize
		last := end >= len(data)
		if last {
			end = len(data)
		}
		first := offset == 0

		var fuHeader byte = naluType
		if first {
			fuHeader |= 0x80
		}
		if last {
			fuHeader |= 0x40
		}

		payload := make([]byte, 0, 2+(end-offset))
		payload = append(payload, fuIndicator, fuHeader)
		payload = append(payload, data[offset:end]...)

		header := p.nextHeader(ts, ssrc, payloadType, last)
		packets = append(packets, &rtp.Packet{Header: header, Payload: payload})
	}
	return packets
}

// H264Depacketizer reassembles RTP packets into Annex-B-framed NAL units:
// single NALs pass through, STAP-A splits, FU-A reassembles with a 600ms
// stale-fragment timeout and reset/PLI notification on gaps.
type H264Depacketizer struct {
	fuBuffer   []byte
	fuStarted  bool
	fuOpenedAt time.Time
	lastSeq    uint16
	haveSeq    bool

	// OnReset is called when a gap or out-of-order S/E forces a reset,
	// signaling the caller to request a PLI.
	OnReset func()

	now func() time.Time
}

// NewH264Depacketizer constructs a depacketizer.
func NewH264Depacketizer() *H264Depacketizer {
	return &H264Depacketizer{now: time.Now}
}

// Depacketize processes one ordered RTP packet, returning zero or more
// complete Annex-B NAL units (start code prepended).
func (d *H264Depacketizer) Depacketize(pkt *rtp.Packet) [][]byte {
	if d.haveSeq && pkt.SequenceNumber != d.lastSeq+1 {
		d.resetFU()
	}
	d.lastSeq = pkt.SequenceNumber
	d.haveSeq = true

	if len(pkt.Payload) == 0 {
		return nil
	}
	naluType := pkt.Payload[0] & 0x1F

	switch {
	case naluType == NALTypeFUA:
		return d.depacketizeFUA(pkt)
	case naluType == NALTypeSTAPA:
		return d.depacketizeSTAPA(pkt.Payload)
	default:
		return [][]byte{annexB(pkt.Payload)}
	}
}

func (d *H264Depacketizer) depacketizeSTAPA(payload []byte) [][]byte {
	var out [][]byte
	rest := payload[1:]
	for len(rest) > 2 {
		size := binary.BigEndian.Uint16(rest[:2])
		rest = rest[2:]
		if int(size) > len(rest) {
			break
		}
		out = append(out, annexB(rest[:size]))
		rest = rest[size:]
	}
	return out
}

func (d *H264Depacketizer) depacketizeFUA(pkt *rtp.Packet) [][]byte {
	if len(pkt.Payload) < 2 {
		return nil
	}
	fuIndicator := pkt.Payload[0]
	fuHeader := pkt.Payload[1]
	payload := pkt.Payload[2:]

	start := fuHeader&0x80 != 0
	end := fuHeader&0x40 != 0
	naluType := fuHeader & 0x1F

	if start {
		if d.fuStarted {
			d.resetFU()
		}
		d.fuBuffer = d.fuBuffer[:0]
		d.fuBuffer = append(d.fuBuffer, (fuIndicator&0xE0)|naluType)
		d.fuStarted = true
		d.fuOpenedAt = d.now()
	} else if !d.fuStarted {
		d.resetFU()
		return nil
	} else if d.now().Sub(d.fuOpenedAt) > fuaStaleTimeout {
		d.resetFU()
		return nil
	}

	d.fuBuffer = append(d.fuBuffer, payload...)

	if end {
		nal := append([]byte(nil), d.fuBuffer...)
		d.fuStarted = false
		d.fuBuffer = d.fuBuffer[:0]
		return [][]byte{annexB(nal)}
	}
	return nil
}

func (d *H264Depacketizer) resetFU() {
	d.fuStarted = false
	d.fuBuffer = d.fuBuffer[:0]
	if d.OnReset != nil {
		d.OnReset()
	}
}

// annexB prepends the {0,0,0,1} Annex-B start code.
func annexB(nal []byte) []byte {
	out := make([]byte, 0, 4+len(nal))
	out = append(out, 0, 0, 0, 1)
	return append(out, nal...)
}
