package sdpneg

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pion/sdp/v3"
)

// Marshal renders sess as SDP text in a fixed, deterministic order:
// protocol version, origin with numeric session id, session name, "t=0 0",
// extmap-allow-mixed, msid-semantic, BUNDLE group, then a video block
// followed by an audio block.
func (sess *Session) Marshal() []byte {
	desc := &sdp.SessionDescription{
		Version: 0,
		Origin: sdp.Origin{
			Username:       "-",
			SessionID:      sess.Origin,
			SessionVersion: 2,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: "0.0.0.0",
		},
		SessionName: sdp.SessionName(sess.Name),
		TimeDescriptions: []sdp.TimeDescription{
			{Timing: sdp.Timing{StartTime: 0, StopTime: 0}},
		},
	}

	desc.Attributes = append(desc.Attributes,
		sdp.Attribute{Key: "extmap-allow-mixed"},
		sdp.Attribute{Key: "msid-semantic", Value: " WMS"},
	)
	if len(sess.BundleMids) > 0 {
		desc.Attributes = append(desc.Attributes,
			sdp.Attribute{Key: "group", Value: "BUNDLE " + strings.Join(sess.BundleMids, " ")})
	}

	if sess.Video != nil {
		desc.MediaDescriptions = append(desc.MediaDescriptions, sess.marshalMediaBlock(sess.Video))
	}
	if sess.Audio != nil {
		desc.MediaDescriptions = append(desc.MediaDescriptions, sess.marshalMediaBlock(sess.Audio))
	}

	return desc.Marshal()
}

func (sess *Session) marshalMediaBlock(block *MediaBlock) *sdp.MediaDescription {
	formats := make([]string, 0, len(block.Codecs))
	for _, c := range block.Codecs {
		formats = append(formats, fmt.Sprintf("%d", c.PayloadType))
	}

	md := &sdp.MediaDescription{
		MediaName: sdp.MediaName{
			Media:   block.Kind,
			Port:    sdp.RangedPort{Value: int(block.Port)},
			Protos:  []string{"UDP", "TLS", "RTP", "SAVPF"},
			Formats: formats,
		},
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &sdp.Address{Address: "0.0.0.0"},
		},
	}

	for _, c := range block.Codecs {
		rtpmap := fmt.Sprintf("%d %s/%d", c.PayloadType, c.Name, c.ClockRate)
		if c.Channels > 0 {
			rtpmap = fmt.Sprintf("%s/%d", rtpmap, c.Channels)
		}
		md.Attributes = append(md.Attributes, sdp.Attribute{Key: "rtpmap", Value: rtpmap})
		if c.FmtpLine != "" {
			md.Attributes = append(md.Attributes,
				sdp.Attribute{Key: "fmtp", Value: fmt.Sprintf("%d %s", c.PayloadType, c.FmtpLine)})
		}
		for _, fb := range c.RtcpFB {
			md.Attributes = append(md.Attributes,
				sdp.Attribute{Key: "rtcp-fb", Value: fmt.Sprintf("%d %s", c.PayloadType, fb)})
		}
	}

	if block.RTCPMux {
		md.Attributes = append(md.Attributes, sdp.Attribute{Key: "rtcp-mux"})
	}
	if block.RTCPRsize {
		md.Attributes = append(md.Attributes, sdp.Attribute{Key: "rtcp-rsize"})
	}

	extIDs := make([]int, 0, len(block.Extmaps))
	for id := range block.Extmaps {
		if id >= 0 {
			extIDs = append(extIDs, id)
		}
	}
	sort.Ints(extIDs)
	for _, id := range extIDs {
		md.Attributes = append(md.Attributes,
			sdp.Attribute{Key: "extmap", Value: fmt.Sprintf("%d %s", id, block.Extmaps[id])})
	}

	md.Attributes = append(md.Attributes,
		sdp.Attribute{Key: "setup", Value: sess.Setup},
		sdp.Attribute{Key: "mid", Value: block.Mid},
	)
	if block.Direction != "" {
		md.Attributes = append(md.Attributes, sdp.Attribute{Key: string(block.Direction)})
	}
	md.Attributes = append(md.Attributes,
		sdp.Attribute{Key: "ice-ufrag", Value: sess.ICEUfrag},
		sdp.Attribute{Key: "ice-pwd", Value: sess.ICEPwd},
		sdp.Attribute{Key: "fingerprint", Value: fmt.Sprintf("%s %s", sess.FingerprintAlgo, sess.FingerprintHex)},
	)

	for _, entry := range block.SSRCs {
		if entry.CName != "" {
			md.Attributes = append(md.Attributes,
				sdp.Attribute{Key: "ssrc", Value: fmt.Sprintf("%d cname:%s", entry.SSRC, entry.CName)})
		}
		if entry.MSID != "" {
			md.Attributes = append(md.Attributes,
				sdp.Attribute{Key: "ssrc", Value: fmt.Sprintf("%d msid:%s", entry.SSRC, entry.MSID)})
		}
	}
	if len(block.SSRCs) == 2 {
		md.Attributes = append(md.Attributes, sdp.Attribute{
			Key:   "ssrc-group",
			Value: fmt.Sprintf("FID %d %d", block.SSRCs[0].SSRC, block.SSRCs[1].SSRC),
		})
	}

	return md
}
