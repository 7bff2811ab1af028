package session_test

import (
	"net"
	"testing"

	"github.com/ethan/streamkit/pkg/sdpneg"
	"github.com/ethan/streamkit/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConn(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func remoteOfferSDP() []byte {
	sess := &sdpneg.Session{
		Origin:   1,
		Name:     "-",
		ICEUfrag: "remoteUfrag",
		ICEPwd:   "remotePasswordabcdefghijklmno",
		Setup:    "actpass",
		Video: &sdpneg.MediaBlock{
			Kind: "video",
			Mid:  "0",
			Codecs: []sdpneg.Codec{
				{PayloadType: 96, Name: "H264", ClockRate: 90000},
			},
		},
	}
	return sess.Marshal()
}

func TestNewSessionStartsInInit(t *testing.T) {
	conn := newTestConn(t)
	pc := session.New(conn, nil)
	assert.Equal(t, session.StateInit, pc.State())
}

func TestNegotiateAdvancesToSdpDone(t *testing.T) {
	conn := newTestConn(t)
	pc := session.New(conn, nil)

	answer, err := pc.Negotiate(remoteOfferSDP(), "localUfrag", "localPasswordabcdefghijklmno")
	require.NoError(t, err)
	assert.NotEmpty(t, answer)
	assert.Equal(t, session.StateSdpDone, pc.State())

	parsed, err := sdpneg.Parse(answer)
	require.NoError(t, err)
	assert.Equal(t, "sha-256", parsed.FingerprintAlgo)
}

func TestNegotiateTwiceFails(t *testing.T) {
	conn := newTestConn(t)
	pc := session.New(conn, nil)

	_, err := pc.Negotiate(remoteOfferSDP(), "u", "pppppppppppppppppppppppppppp")
	require.NoError(t, err)

	_, err = pc.Negotiate(remoteOfferSDP(), "u", "pppppppppppppppppppppppppppp")
	assert.Error(t, err)
}

func TestStateStringer(t *testing.T) {
	assert.Equal(t, "DtlsDone", session.StateDtlsDone.String())
	assert.Equal(t, "Init", session.StateInit.String())
}

func TestCreateOfferThenCompleteOfferAdvancesToSdpDone(t *testing.T) {
	conn := newTestConn(t)
	pc := session.New(conn, nil)

	offer, err := pc.CreateOffer("localUfrag", "localPasswordabcdefghijklmno", "H264", 96, 90000)
	require.NoError(t, err)
	assert.NotEmpty(t, offer)
	assert.Equal(t, session.StateInit, pc.State())

	parsedOffer, err := sdpneg.Parse(offer)
	require.NoError(t, err)
	assert.Equal(t, "actpass", parsedOffer.Setup)

	answer := &sdpneg.Session{
		Origin:   2,
		Name:     "-",
		ICEUfrag: "remoteUfrag",
		ICEPwd:   "remotePasswordabcdefghijklmno",
		Setup:    "passive",
		Video: &sdpneg.MediaBlock{
			Kind: "video",
			Mid:  "0",
			Codecs: []sdpneg.Codec{
				{PayloadType: 96, Name: "H264", ClockRate: 90000},
			},
		},
	}

	require.NoError(t, pc.CompleteOffer(answer.Marshal()))
	assert.Equal(t, session.StateSdpDone, pc.State())
}

func TestCreateOfferAttachesLocalVideoSSRC(t *testing.T) {
	conn := newTestConn(t)
	pc := session.New(conn, nil)

	offer, err := pc.CreateOffer("localUfrag", "localPasswordabcdefghijklmno", "H264", 96, 90000)
	require.NoError(t, err)

	parsed, err := sdpneg.Parse(offer)
	require.NoError(t, err)
	require.Len(t, parsed.Video.SSRCs, 1)
	assert.NotZero(t, parsed.Video.SSRCs[0].SSRC)
	assert.Equal(t, "streamkit", parsed.Video.SSRCs[0].CName)
}

func TestSendVideoFrameBeforeNegotiationFails(t *testing.T) {
	conn := newTestConn(t)
	pc := session.New(conn, nil)

	err := pc.SendVideoFrame([]byte{0x65, 0xAA}, true, 0)
	assert.Error(t, err)
}
