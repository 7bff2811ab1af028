package rtppack

import "github.com/pion/rtp"

// OpusPacketizer emits exactly one RTP packet per input Opus frame, marker
// always set. Packetize sees only frame bytes: it does not recognise or
// skip sequence-header (identification header) packets.
type OpusPacketizer struct {
	sequence uint16
}

// NewOpusPacketizer constructs an Opus packetizer with its own sequence space.
func NewOpusPacketizer() *OpusPacketizer { return &OpusPacketizer{} }

// Packetize wraps one Opus frame into a single RTP packet.
func (p *OpusPacketizer) Packetize(frame []byte, ts, ssrc uint32, payloadType uint8) *rtp.Packet {
	header := rtp.Header{
		Version:        2,
		Marker:         true,
		PayloadType:    payloadType,
		SequenceNumber: p.sequence,
		Timestamp:      ts,
		SSRC:           ssrc,
	}
	p.sequence++
	return &rtp.Packet{Header: header, Payload: append([]byte(nil), frame...)}
}

// OpusDepacketizer extracts each RTP packet's payload as one raw Opus frame.
// It returns only the frame bytes: it does not build a MediaPacket, and the
// RTP timestamp stays on the rtp.Packet.
type OpusDepacketizer struct{}

// NewOpusDepacketizer constructs a depacketizer.
func NewOpusDepacketizer() *OpusDepacketizer { return &OpusDepacketizer{} }

// Depacketize extracts the raw Opus frame from one RTP packet.
func (d *OpusDepacketizer) Depacketize(pkt *rtp.Packet) []byte {
	return append([]byte(nil), pkt.Payload...)
}
