package packet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferConsumeAndPrepend(t *testing.T) {
	buf := NewBuffer([]byte{0x00, 0x00, 0x00, 0x01, 0x65, 0xAA})

	assert.Equal(t, 6, buf.Len())
	require.NoError(t, buf.ConsumeData(4))
	assert.Equal(t, []byte{0x65, 0xAA}, buf.Peek())

	require.NoError(t, buf.ConsumeData(-4))
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x01, 0x65, 0xAA}, buf.Peek())

	require.NoError(t, buf.Prepend([]byte{0xFF, 0xFF}))
	assert.Equal(t, []byte{0xFF, 0xFF, 0x00, 0x00, 0x00, 0x01, 0x65, 0xAA}, buf.Peek())
}

func TestBufferConsumeOutOfRange(t *testing.T) {
	buf := NewBuffer([]byte{1, 2, 3})
	assert.Error(t, buf.ConsumeData(4))
	assert.Error(t, buf.ConsumeData(-(prependHeadroom + 1)))
}

func TestBufferRefCounting(t *testing.T) {
	buf := NewBuffer([]byte{1, 2, 3})
	assert.EqualValues(t, 1, buf.RefCount())

	clone := buf.Ref()
	assert.EqualValues(t, 2, buf.RefCount())

	clone.Release()
	assert.EqualValues(t, 1, buf.RefCount())
}

func TestMediaPacketInvariants(t *testing.T) {
	t.Run("seq hdr cannot be key frame", func(t *testing.T) {
		p, err := New(AVVideo, CodecH264, FormatRaw, []byte{0, 0, 0, 1, 0x67})
		require.NoError(t, err)
		require.NoError(t, p.SetSeqHdr(true))
		assert.Error(t, p.SetKeyFrame(true))
	})

	t.Run("pts must be >= dts", func(t *testing.T) {
		p, err := New(AVVideo, CodecH264, FormatRaw, []byte{0, 0, 0, 1, 0x65})
		require.NoError(t, err)
		assert.Error(t, p.SetTimestamps(1000, 900))
		assert.NoError(t, p.SetTimestamps(900, 1000))
	})

	t.Run("raw H264 requires Annex-B start code", func(t *testing.T) {
		_, err := New(AVVideo, CodecH264, FormatRaw, []byte{0x65, 0xAA})
		assert.Error(t, err)
	})

	t.Run("FLV video requires 5 byte header", func(t *testing.T) {
		_, err := New(AVVideo, CodecH264, FormatFLV, []byte{0x01, 0x02})
		assert.Error(t, err)

		_, err = New(AVVideo, CodecH264, FormatFLV, []byte{0x17, 0x01, 0x00, 0x00, 0x00, 0x65})
		assert.NoError(t, err)
	})

	t.Run("metadata carries a key-string map", func(t *testing.T) {
		p, err := New(AVMetadata, CodecUnknown, FormatFLV, []byte{0x02})
		require.NoError(t, err)
		p.SetMetadataValue("width", float64(1920))
		p.SetMetadataValue("codec", "h264")
		assert.Equal(t, "1920.00", p.Metadata["width"])
		assert.Equal(t, "h264", p.Metadata["codec"])
	})
}
