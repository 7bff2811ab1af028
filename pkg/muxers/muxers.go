// Package muxers defines the narrow boundary interfaces between the
// streamer pipeline and the container/protocol formats it shuttles
// MediaPackets through (FLV, MPEG-TS, RTMP). Full demux/mux bodies are out
// of scope; this package only gives pkg/streamer stages a type to wire
// against, plus a pass-through implementation for tests.
package muxers

import "github.com/ethan/streamkit/pkg/packet"

// FLVMuxer accepts MediaPackets and produces FLV tag bytes.
type FLVMuxer interface {
	WriteTag(pkt *packet.MediaPacket) ([]byte, error)
}

// FLVDemuxer turns FLV tag bytes back into MediaPackets.
type FLVDemuxer interface {
	ReadTag(raw []byte) (*packet.MediaPacket, error)
}

// MpegTSMuxer accepts MediaPackets and produces MPEG-TS packets.
type MpegTSMuxer interface {
	WritePacket(pkt *packet.MediaPacket) ([]byte, error)
}

// RTMPSession represents one RTMP publish/play connection's framing step.
type RTMPSession interface {
	Handshake() error
	WriteChunk(pkt *packet.MediaPacket) ([]byte, error)
}

// PassThrough implements all four interfaces by handing the packet's raw
// buffer bytes back unmodified, with no container framing applied. It
// exists so pipeline stages can be exercised in tests without a real
// muxer/demuxer implementation.
type PassThrough struct{}

// WriteTag implements FLVMuxer.
func (PassThrough) WriteTag(pkt *packet.MediaPacket) ([]byte, error) {
	return pkt.Buffer.Bytes(), nil
}

// ReadTag implements FLVDemuxer. It cannot recover the real AVType/CodecType
// from raw bytes alone, so it always labels the packet as FLV-framed H.264
// video; callers that need real FLV parsing must supply their own demuxer.
func (PassThrough) ReadTag(raw []byte) (*packet.MediaPacket, error) {
	return packet.New(packet.AVVideo, packet.CodecH264, packet.FormatFLV, raw)
}

// WritePacket implements MpegTSMuxer.
func (PassThrough) WritePacket(pkt *packet.MediaPacket) ([]byte, error) {
	return pkt.Buffer.Bytes(), nil
}

// Handshake implements RTMPSession; the pass-through has no wire handshake.
func (PassThrough) Handshake() error { return nil }

// WriteChunk implements RTMPSession.
func (PassThrough) WriteChunk(pkt *packet.MediaPacket) ([]byte, error) {
	return pkt.Buffer.Bytes(), nil
}
