package recvstream_test

import (
	"testing"
	"time"

	"github.com/ethan/streamkit/pkg/recvstream"
	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDemuxRTXRewrapsToPrimary(t *testing.T) {
	s := recvstream.New(100, 90000, func([]byte) error { return nil }, nil, recvstream.WithRTX(200))

	pkt := &rtp.Packet{
		Header:  rtp.Header{SSRC: 200, SequenceNumber: 999, PayloadType: 97},
		Payload: []byte{0x03, 0xE8, 0xAA, 0xBB}, // original seq 1000, then payload
	}
	ok := s.DemuxRTX(pkt, 96)
	require.True(t, ok)
	assert.EqualValues(t, 100, pkt.SSRC)
	assert.EqualValues(t, 96, pkt.PayloadType)
	assert.EqualValues(t, 1000, pkt.SequenceNumber)
	assert.Equal(t, []byte{0xAA, 0xBB}, pkt.Payload)
}

func TestOnPacketTracksSequenceAndJitter(t *testing.T) {
	s := recvstream.New(1, 90000, func([]byte) error { return nil }, nil)

	_, ok := s.OnPacket(&rtp.Packet{Header: rtp.Header{SequenceNumber: 1, Timestamp: 90000}}, time.Now())
	assert.True(t, ok)
	_, ok = s.OnPacket(&rtp.Packet{Header: rtp.Header{SequenceNumber: 2, Timestamp: 93000}}, time.Now())
	assert.True(t, ok)
}

func TestRequestKeyFrameRateLimited(t *testing.T) {
	var sent int
	s := recvstream.New(1, 90000, func([]byte) error { sent++; return nil }, nil)

	s.RequestKeyFrame(5)
	s.RequestKeyFrame(5)
	assert.Equal(t, 1, sent)
}
