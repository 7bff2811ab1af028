package muxers_test

import (
	"testing"

	"github.com/ethan/streamkit/pkg/muxers"
	"github.com/ethan/streamkit/pkg/packet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPassThroughRoundTripsRawBytes(t *testing.T) {
	pkt, err := packet.New(packet.AVVideo, packet.CodecH264, packet.FormatRaw, []byte{0, 0, 0, 1, 0x65, 1, 2, 3})
	require.NoError(t, err)

	var pt muxers.PassThrough

	flvOut, err := pt.WriteTag(pkt)
	require.NoError(t, err)
	assert.Equal(t, pkt.Buffer.Bytes(), flvOut)

	tsOut, err := pt.WritePacket(pkt)
	require.NoError(t, err)
	assert.Equal(t, pkt.Buffer.Bytes(), tsOut)

	require.NoError(t, pt.Handshake())

	chunk, err := pt.WriteChunk(pkt)
	require.NoError(t, err)
	assert.Equal(t, pkt.Buffer.Bytes(), chunk)
}

func TestPassThroughReadTagProducesValidPacket(t *testing.T) {
	var pt muxers.PassThrough
	pkt, err := pt.ReadTag([]byte{0, 0, 0, 1, 0x65})
	require.NoError(t, err)
	assert.Equal(t, packet.AVVideo, pkt.AVType)
}

func TestPassThroughSatisfiesInterfaces(t *testing.T) {
	var _ muxers.FLVMuxer = muxers.PassThrough{}
	var _ muxers.FLVDemuxer = muxers.PassThrough{}
	var _ muxers.MpegTSMuxer = muxers.PassThrough{}
	var _ muxers.RTMPSession = muxers.PassThrough{}
}
