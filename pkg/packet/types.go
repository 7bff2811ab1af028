// Package packet defines the canonical in-flight media unit shared by
// every streamer stage: MediaPacket.
package packet

import "fmt"

// AVType classifies the payload carried by a MediaPacket.
type AVType int

const (
	AVUnknown AVType = iota
	AVVideo
	AVAudio
	AVMetadata
)

func (t AVType) String() string {
	switch t {
	case AVVideo:
		return "video"
	case AVAudio:
		return "audio"
	case AVMetadata:
		return "metadata"
	default:
		return "unknown"
	}
}

// CodecType identifies the codec of the elementary data.
type CodecType int

const (
	CodecUnknown CodecType = iota
	CodecH264
	CodecH265
	CodecVP8
	CodecVP9
	CodecAAC
	CodecOpus
	CodecMP3
)

func (c CodecType) String() string {
	switch c {
	case CodecH264:
		return "h264"
	case CodecH265:
		return "h265"
	case CodecVP8:
		return "vp8"
	case CodecVP9:
		return "vp9"
	case CodecAAC:
		return "aac"
	case CodecOpus:
		return "opus"
	case CodecMP3:
		return "mp3"
	default:
		return "unknown"
	}
}

// FormatType identifies the container framing of the buffer, if any.
type FormatType int

const (
	FormatUnknown FormatType = iota
	FormatRaw
	FormatFLV
	FormatMpegTS
	FormatRTMP
)

func (f FormatType) String() string {
	switch f {
	case FormatRaw:
		return "raw"
	case FormatFLV:
		return "flv"
	case FormatMpegTS:
		return "mpegts"
	case FormatRTMP:
		return "rtmp"
	default:
		return "unknown"
	}
}

// nalStartCode is the Annex-B start code that must open a raw H.264 buffer.
var nalStartCode = [4]byte{0, 0, 0, 1}

// flvVideoHeaderLen is the size of the flv-video tag header that must open
// an FLV-framed video buffer.
const flvVideoHeaderLen = 5

// MediaPacket is the universal in-flight unit routed through the streamer
// pipeline.
type MediaPacket struct {
	AVType     AVType
	CodecType  CodecType
	FormatType FormatType

	DtsMs int64
	PtsMs int64

	IsKeyFrame bool
	IsSeqHdr   bool

	// MetadataType and Metadata are only meaningful when AVType == AVMetadata.
	MetadataType string
	Metadata     map[string]string

	Buffer *Buffer

	// Routing tags.
	Key        string
	App        string
	StreamName string
	StreamID   string
	TypeID     int
}

// New constructs a MediaPacket backed by a fresh Buffer wrapping data, and
// validates the fields appropriate to the given AVType/FormatType.
func New(av AVType, codec CodecType, format FormatType, data []byte) (*MediaPacket, error) {
	p := &MediaPacket{
		AVType:     av,
		CodecType:  codec,
		FormatType: format,
		Buffer:     NewBuffer(data),
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// SetKeyFrame marks the packet as a key frame. A sequence header is never
// also a key frame.
func (p *MediaPacket) SetKeyFrame(v bool) error {
	if v && p.IsSeqHdr {
		return fmt.Errorf("packet: cannot set is_key_frame on a sequence-header packet")
	}
	p.IsKeyFrame = v
	return nil
}

// SetSeqHdr marks the packet as a sequence header; mutually exclusive with
// IsKeyFrame.
func (p *MediaPacket) SetSeqHdr(v bool) error {
	if v && p.IsKeyFrame {
		return fmt.Errorf("packet: cannot set is_seq_hdr on a key-frame packet")
	}
	p.IsSeqHdr = v
	return nil
}

// SetTimestamps sets dts/pts, requiring pts >= dts.
func (p *MediaPacket) SetTimestamps(dtsMs, ptsMs int64) error {
	if ptsMs < dtsMs {
		return fmt.Errorf("packet: pts (%d) < dts (%d)", ptsMs, dtsMs)
	}
	p.DtsMs, p.PtsMs = dtsMs, ptsMs
	return nil
}

func (p *MediaPacket) validate() error {
	if p.IsSeqHdr && p.IsKeyFrame {
		return fmt.Errorf("packet: is_seq_hdr and is_key_frame both set")
	}
	if p.PtsMs < p.DtsMs {
		return fmt.Errorf("packet: pts (%d) < dts (%d)", p.PtsMs, p.DtsMs)
	}
	switch {
	case p.AVType == AVVideo && p.CodecType == CodecH264 && p.FormatType == FormatRaw:
		if err := checkAnnexB(p.Buffer.Peek()); err != nil {
			return err
		}
	case p.AVType == AVVideo && p.FormatType == FormatFLV:
		if err := checkFLVVideoHeader(p.Buffer.Peek()); err != nil {
			return err
		}
	case p.AVType == AVMetadata:
		if p.Metadata == nil {
			p.Metadata = make(map[string]string)
		}
	}
	return nil
}

func checkAnnexB(data []byte) error {
	if len(data) < 4 {
		return fmt.Errorf("packet: raw H.264 buffer too short for Annex-B start code")
	}
	if [4]byte{data[0], data[1], data[2], data[3]} != nalStartCode {
		return fmt.Errorf("packet: raw H.264 buffer missing Annex-B start code {0,0,0,1}")
	}
	return nil
}

func checkFLVVideoHeader(data []byte) error {
	if len(data) < flvVideoHeaderLen {
		return fmt.Errorf("packet: FLV video buffer shorter than %d-byte header", flvVideoHeaderLen)
	}
	return nil
}

// SetMetadataValue stores v in the packet's metadata map, stringifying
// floats with "%.02f" (numeric fidelity beyond two decimals is not
// preserved; textual form is what downstream consumers see).
func (p *MediaPacket) SetMetadataValue(key string, v any) {
	if p.Metadata == nil {
		p.Metadata = make(map[string]string)
	}
	switch val := v.(type) {
	case float64:
		p.Metadata[key] = fmt.Sprintf("%.02f", val)
	case float32:
		p.Metadata[key] = fmt.Sprintf("%.02f", val)
	case string:
		p.Metadata[key] = val
	default:
		p.Metadata[key] = fmt.Sprintf("%v", val)
	}
}
