// Package sdpneg converts between the canonical Session object used by the
// WebRTC session engine and the SDP text form exchanged over WHIP/WHEP and
// mediasoup signaling.
package sdpneg

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pion/sdp/v3"
)

// Direction is the media direction attribute of a Session.
type Direction string

const (
	DirSendRecv Direction = "sendrecv"
	DirSendOnly Direction = "sendonly"
	DirRecvOnly Direction = "recvonly"
	DirInactive Direction = "inactive"
)

// Codec describes a single rtpmap/fmtp/rtcp-fb payload type entry.
type Codec struct {
	PayloadType uint8
	Name        string
	ClockRate   uint32
	Channels    uint16
	FmtpLine    string
	RtcpFB      []string

	// IsRTX marks this payload type as the apt= retransmission pair of
	// another payload type.
	IsRTX       bool
	AptTarget   uint8
}

// SSRCEntry is one a=ssrc grouping (cname + msid) for a media block.
type SSRCEntry struct {
	SSRC  uint32
	CName string
	MSID  string
}

// MediaBlock is one m=audio or m=video section of a Session.
type MediaBlock struct {
	Kind      string // "video" or "audio"
	Mid       string
	Direction Direction
	Port      uint16
	Codecs    []Codec
	Extmaps   map[int]string // id -> URI, only non-negative IDs are emitted

	// SSRCs holds the primary and (if RTX is enabled) retransmission SSRC,
	// in that order, matching the a=ssrc-group:FID ordering.
	SSRCs     []SSRCEntry
	RTCPMux   bool
	RTCPRsize bool
}

// Session is the canonical, protocol-agnostic representation of an offer or
// answer negotiated by a PeerConnection.
type Session struct {
	Origin    uint64
	Name      string
	ICEUfrag  string
	ICEPwd    string
	FingerprintAlgo string
	FingerprintHex  string
	Setup     string // "active", "passive", "actpass"
	BundleMids []string

	Video *MediaBlock
	Audio *MediaBlock
}

// Parse extracts a canonical Session from raw SDP text, reading
// rtpmap/fmtp/apt=, rtcp-fb, extmap, ssrc (cname/msid), ice-ufrag/pwd,
// fingerprint and setup. a=candidate and a=ssrc-group lines are not read;
// a block's SSRCs keep the order of its a=ssrc lines.
func Parse(raw []byte) (*Session, error) {
	var parsed sdp.SessionDescription
	if err := parsed.Unmarshal(raw); err != nil {
		return nil, fmt.Errorf("sdpneg: unmarshal: %w", err)
	}

	sess := &Session{Name: parsed.SessionName.String()}
	if parsed.Origin.SessionID != 0 {
		sess.Origin = parsed.Origin.SessionID
	}

	// ICE, fingerprint and setup attributes may sit at session level or, as
	// Marshal emits them, inside each media block; the first value found wins.
	readTransport := func(get func(string) (string, bool)) {
		if ufrag, ok := get("ice-ufrag"); ok && sess.ICEUfrag == "" {
			sess.ICEUfrag = ufrag
		}
		if pwd, ok := get("ice-pwd"); ok && sess.ICEPwd == "" {
			sess.ICEPwd = pwd
		}
		if fp, ok := get("fingerprint"); ok && sess.FingerprintAlgo == "" {
			parts := strings.SplitN(fp, " ", 2)
			if len(parts) == 2 {
				sess.FingerprintAlgo, sess.FingerprintHex = parts[0], parts[1]
			}
		}
		if setup, ok := get("setup"); ok && sess.Setup == "" {
			sess.Setup = setup
		}
	}
	readTransport(parsed.Attribute)
	if grp, ok := parsed.Attribute("group"); ok && strings.HasPrefix(grp, "BUNDLE") {
		sess.BundleMids = strings.Fields(strings.TrimPrefix(grp, "BUNDLE"))
	}

	for _, md := range parsed.MediaDescriptions {
		block, err := parseMediaBlock(md)
		if err != nil {
			return nil, err
		}
		readTransport(md.Attribute)
		switch block.Kind {
		case "video":
			sess.Video = block
		case "audio":
			sess.Audio = block
		}
	}

	if err := validateInvariants(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func parseMediaBlock(md *sdp.MediaDescription) (*MediaBlock, error) {
	block := &MediaBlock{
		Kind:    md.MediaName.Media,
		Extmaps: make(map[int]string),
	}
	if md.MediaName.Port.Value >= 0 {
		block.Port = uint16(md.MediaName.Port.Value)
	}

	ptNames := make(map[uint8]string)
	fmtps := make(map[uint8]string)
	rtcpfb := make(map[uint8][]string)
	clockRates := make(map[uint8]uint32)
	channels := make(map[uint8]uint16)

	for _, attr := range md.Attributes {
		switch attr.Key {
		case "mid":
			block.Mid = attr.Value
		case "sendrecv":
			block.Direction = DirSendRecv
		case "sendonly":
			block.Direction = DirSendOnly
		case "recvonly":
			block.Direction = DirRecvOnly
		case "inactive":
			block.Direction = DirInactive
		case "rtcp-mux":
			block.RTCPMux = true
		case "rtcp-rsize":
			block.RTCPRsize = true
		case "rtpmap":
			pt, name, clock, ch := parseRtpmap(attr.Value)
			ptNames[pt] = name
			clockRates[pt] = clock
			channels[pt] = ch
		case "fmtp":
			fields := strings.SplitN(attr.Value, " ", 2)
			if len(fields) == 2 {
				pt, err := parsePT(fields[0])
				if err == nil {
					fmtps[pt] = fields[1]
				}
			}
		case "rtcp-fb":
			fields := strings.SplitN(attr.Value, " ", 2)
			if len(fields) == 2 {
				pt, err := parsePT(fields[0])
				if err == nil {
					rtcpfb[pt] = append(rtcpfb[pt], fields[1])
				}
			}
		case "extmap":
			fields := strings.SplitN(attr.Value, " ", 2)
			if len(fields) == 2 {
				id, err := strconv.Atoi(fields[0])
				if err == nil {
					block.Extmaps[id] = fields[1]
				}
			}
		case "ssrc":
			entry, err := parseSSRCLine(attr.Value)
			if err == nil {
				block.SSRCs = mergeSSRC(block.SSRCs, entry)
			}
		}
	}

	for pt, name := range ptNames {
		codec := Codec{
			PayloadType: pt,
			Name:        name,
			ClockRate:   clockRates[pt],
			Channels:    channels[pt],
			FmtpLine:    fmtps[pt],
			RtcpFB:      rtcpfb[pt],
		}
		if apt, ok := extractApt(fmtps[pt]); ok {
			codec.IsRTX = true
			codec.AptTarget = apt
		}
		block.Codecs = append(block.Codecs, codec)
	}

	return block, nil
}

func parsePT(s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 10, 8)
	return uint8(v), err
}

func parseRtpmap(value string) (pt uint8, name string, clock uint32, channels uint16) {
	fields := strings.SplitN(value, " ", 2)
	if len(fields) != 2 {
		return 0, "", 0, 0
	}
	pt8, _ := parsePT(fields[0])
	spec := strings.Split(fields[1], "/")
	name = spec[0]
	if len(spec) > 1 {
		c, _ := strconv.ParseUint(spec[1], 10, 32)
		clock = uint32(c)
	}
	if len(spec) > 2 {
		ch, _ := strconv.ParseUint(spec[2], 10, 16)
		channels = uint16(ch)
	}
	return pt8, name, clock, channels
}

// extractApt pulls the apt= retransmission target payload type out of an
// fmtp line.
func extractApt(fmtp string) (uint8, bool) {
	for _, field := range strings.Split(fmtp, ";") {
		field = strings.TrimSpace(field)
		if strings.HasPrefix(field, "apt=") {
			v, err := parsePT(strings.TrimPrefix(field, "apt="))
			if err == nil {
				return v, true
			}
		}
	}
	return 0, false
}

func parseSSRCLine(value string) (SSRCEntry, error) {
	fields := strings.SplitN(value, " ", 2)
	ssrc, err := strconv.ParseUint(fields[0], 10, 32)
	if err != nil {
		return SSRCEntry{}, err
	}
	entry := SSRCEntry{SSRC: uint32(ssrc)}
	if len(fields) == 2 {
		kv := strings.SplitN(fields[1], ":", 2)
		if len(kv) == 2 {
			switch kv[0] {
			case "cname":
				entry.CName = kv[1]
			case "msid":
				entry.MSID = kv[1]
			}
		}
	}
	return entry, nil
}

func mergeSSRC(existing []SSRCEntry, next SSRCEntry) []SSRCEntry {
	for i, e := range existing {
		if e.SSRC == next.SSRC {
			if next.CName != "" {
				existing[i].CName = next.CName
			}
			if next.MSID != "" {
				existing[i].MSID = next.MSID
			}
			return existing
		}
	}
	return append(existing, next)
}

func validateInvariants(sess *Session) error {
	for _, block := range []*MediaBlock{sess.Video, sess.Audio} {
		if block == nil {
			continue
		}
		ptSet := make(map[uint8]bool, len(block.Codecs))
		for _, c := range block.Codecs {
			ptSet[c.PayloadType] = true
		}
		for _, c := range block.Codecs {
			if c.IsRTX && !ptSet[c.AptTarget] {
				return fmt.Errorf("sdpneg: rtx payload type %d references missing apt target %d", c.PayloadType, c.AptTarget)
			}
		}
	}
	return nil
}
