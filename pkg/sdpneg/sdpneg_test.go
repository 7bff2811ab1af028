package sdpneg_test

import (
	"strings"
	"testing"

	"github.com/ethan/streamkit/pkg/sdpneg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSession() *sdpneg.Session {
	return &sdpneg.Session{
		Origin:          1234567890,
		Name:            "-",
		ICEUfrag:        "abcd",
		ICEPwd:          "0123456789abcdef0123456789",
		FingerprintAlgo: "sha-256",
		FingerprintHex:  "AA:BB:CC",
		Setup:           "passive",
		BundleMids:      []string{"0", "1"},
		Video: &sdpneg.MediaBlock{
			Kind:      "video",
			Mid:       "0",
			Direction: sdpneg.DirSendRecv,
			Port:      9,
			RTCPMux:   true,
			Extmaps:   map[int]string{2: "urn:ietf:params:rtp-hdrext:toffset"},
			Codecs: []sdpneg.Codec{
				{PayloadType: 96, Name: "H264", ClockRate: 90000, FmtpLine: "packetization-mode=1"},
				{PayloadType: 97, Name: "rtx", ClockRate: 90000, FmtpLine: "apt=96", IsRTX: true, AptTarget: 96},
			},
			SSRCs: []sdpneg.SSRCEntry{
				{SSRC: 111, CName: "stream1"},
				{SSRC: 222, CName: "stream1"},
			},
		},
		Audio: &sdpneg.MediaBlock{
			Kind:      "audio",
			Mid:       "1",
			Direction: sdpneg.DirSendRecv,
			Port:      9,
			RTCPMux:   true,
			Codecs: []sdpneg.Codec{
				{PayloadType: 111, Name: "opus", ClockRate: 48000, Channels: 2},
			},
			SSRCs: []sdpneg.SSRCEntry{{SSRC: 333, CName: "stream1"}},
		},
	}
}

func TestMarshalParseRoundTrip(t *testing.T) {
	sess := sampleSession()
	raw := sess.Marshal()

	parsed, err := sdpneg.Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, sess.ICEUfrag, parsed.ICEUfrag)
	assert.Equal(t, sess.ICEPwd, parsed.ICEPwd)
	assert.Equal(t, sess.FingerprintAlgo, parsed.FingerprintAlgo)
	require.NotNil(t, parsed.Video)
	require.Len(t, parsed.Video.SSRCs, 2)
	assert.Equal(t, uint32(111), parsed.Video.SSRCs[0].SSRC)
	assert.Equal(t, uint32(222), parsed.Video.SSRCs[1].SSRC)
}

func TestMarshalEmitsDeterministicOrder(t *testing.T) {
	sess := sampleSession()
	raw := string(sess.Marshal())

	extmapIdx := strings.Index(raw, "a=extmap-allow-mixed")
	msidIdx := strings.Index(raw, "a=msid-semantic")
	bundleIdx := strings.Index(raw, "a=group:BUNDLE")
	videoIdx := strings.Index(raw, "m=video")
	audioIdx := strings.Index(raw, "m=audio")

	require.True(t, extmapIdx >= 0 && msidIdx > extmapIdx && bundleIdx > msidIdx)
	require.True(t, videoIdx > bundleIdx && audioIdx > videoIdx)
}

func TestSSRCGroupOrderMatchesFID(t *testing.T) {
	sess := sampleSession()
	raw := string(sess.Marshal())
	assert.Contains(t, raw, "a=ssrc-group:FID 111 222")
}

func TestParseRejectsRTXWithoutAptTarget(t *testing.T) {
	sess := sampleSession()
	sess.Video.Codecs[1].AptTarget = 55
	sess.Video.Codecs[1].FmtpLine = "apt=55"
	raw := sess.Marshal()

	_, err := sdpneg.Parse(raw)
	assert.Error(t, err)
}
