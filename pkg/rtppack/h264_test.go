package rtppack_test

import (
	"testing"

	"github.com/ethan/streamkit/pkg/rtppack"
	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestStapAAssembly verifies a buffered SPS+PPS pair is aggregated into a
// single STAP-A packet once the key frame NAL arrives.
func TestStapAAssembly(t *testing.T) {
	p := rtppack.NewH264Packetizer()

	sps := []byte{0x67, 0x42, 0x00}
	pps := []byte{0x68, 0xCE}
	packets := p.Packetize(sps, false, 0, 1, 96)
	assert.Nil(t, packets)
	packets = p.Packetize(pps, false, 0, 1, 96)
	assert.Nil(t, packets)

	keyNal := make([]byte, 161)
	keyNal[0] = 0x65

	out := p.Packetize(keyNal, true, 90000, 1, 96)
	require.Len(t, out, 2)

	expectedStap := []byte{0x78, 0x00, 0x03, 0x67, 0x42, 0x00, 0x00, 0x02, 0x68, 0xCE}
	assert.Equal(t, expectedStap, out[0].Payload)
	assert.False(t, out[0].Marker)

	assert.Equal(t, keyNal, out[1].Payload)
	assert.True(t, out[1].Marker)
	assert.EqualValues(t, 90000, out[1].Timestamp)
}

// TestFUASplitAndReassembly verifies a NAL larger than the max payload size
// is split into FU-A fragments and reassembled back to the original bytes.
func TestFUASplitAndReassembly(t *testing.T) {
	p := rtppack.NewH264Packetizer()

	nal := make([]byte, 2500)
	nal[0] = 0x65
	for i := 1; i < len(nal); i++ {
		nal[i] = byte(i)
	}

	packets := p.Packetize(nal, true, 90000, 1, 96)
	// no SPS/PPS captured yet, so no leading STAP-A
	require.Len(t, packets, 3)

	sizes := []int{1200, 1200, 99}
	fuHeaders := []byte{0x85, 0x05, 0x45}
	for i, pkt := range packets {
		assert.Equal(t, byte(0x7C), pkt.Payload[0], "fu indicator at fragment %d", i)
		assert.Equal(t, fuHeaders[i], pkt.Payload[1], "fu header at fragment %d", i)
		assert.Len(t, pkt.Payload[2:], sizes[i], "fragment %d size", i)
	}
	assert.True(t, packets[2].Marker)
	assert.False(t, packets[0].Marker)

	d := rtppack.NewH264Depacketizer()
	var reassembled [][]byte
	for _, pkt := range packets {
		reassembled = append(reassembled, d.Depacketize(pkt)...)
	}
	require.Len(t, reassembled, 1)
	assert.Equal(t, append([]byte{0, 0, 0, 1}, nal...), reassembled[0])
}

func TestDepacketizeSingleNAL(t *testing.T) {
	d := rtppack.NewH264Depacketizer()
	pkt := &rtp.Packet{
		Header:  rtp.Header{SequenceNumber: 5},
		Payload: []byte{0x67, 0xAA, 0xBB},
	}
	out := d.Depacketize(pkt)
	require.Len(t, out, 1)
	assert.Equal(t, []byte{0, 0, 0, 1, 0x67, 0xAA, 0xBB}, out[0])
}

func TestDepacketizeSTAPASplitsIntoMultipleNALs(t *testing.T) {
	d := rtppack.NewH264Depacketizer()
	payload := []byte{0x78, 0x00, 0x03, 0x67, 0x42, 0x00, 0x00, 0x02, 0x68, 0xCE}
	pkt := &rtp.Packet{Header: rtp.Header{SequenceNumber: 10}, Payload: payload}

	out := d.Depacketize(pkt)
	require.Len(t, out, 2)
	assert.Equal(t, []byte{0, 0, 0, 1, 0x67, 0x42, 0x00}, out[0])
	assert.Equal(t, []byte{0, 0, 0, 1, 0x68, 0xCE}, out[1])
}

func TestFUAGapResetsAccumulatorAndNotifies(t *testing.T) {
	d := rtppack.NewH264Depacketizer()
	resetCalled := false
	d.OnReset = func() { resetCalled = true }

	start := &rtp.Packet{
		Header:  rtp.Header{SequenceNumber: 1},
		Payload: []byte{0x7C, 0x85, 0x01, 0x02},
	}
	d.Depacketize(start)

	// skip sequence 2, arrive at 3: triggers a gap reset before processing
	gapped := &rtp.Packet{
		Header:  rtp.Header{SequenceNumber: 3},
		Payload: []byte{0x7C, 0x45, 0x03, 0x04},
	}
	out := d.Depacketize(gapped)

	assert.True(t, resetCalled)
	assert.Nil(t, out)
}
