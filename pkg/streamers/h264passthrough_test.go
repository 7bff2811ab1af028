package streamers_test

import (
	"context"
	"testing"

	"github.com/ethan/streamkit/pkg/packet"
	"github.com/ethan/streamkit/pkg/streamer"
	"github.com/ethan/streamkit/pkg/streamers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	*streamer.Base
	got []*packet.MediaPacket
}

func newRecordingSink() *recordingSink {
	return &recordingSink{Base: streamer.NewBase("sink", nil)}
}

func (r *recordingSink) SourceData(pkt *packet.MediaPacket) error {
	r.got = append(r.got, pkt)
	return nil
}

func (r *recordingSink) StartNetwork(ctx context.Context, url string, loop *streamer.EventLoop) error {
	return nil
}

func TestH264PassthroughIsRegisteredWithDefaultFactory(t *testing.T) {
	s, err := streamer.DefaultFactory().Make(streamers.Name)
	require.NoError(t, err)
	assert.NotNil(t, s)
}

func TestH264PassthroughForwardsToSinks(t *testing.T) {
	stage := streamers.NewH264Passthrough()
	sink := newRecordingSink()
	stage.AddSink(sink)

	pkt, err := packet.New(packet.AVVideo, packet.CodecH264, packet.FormatRaw, []byte{0, 0, 0, 1, 0x65})
	require.NoError(t, err)

	require.NoError(t, stage.SourceData(pkt))
	require.Len(t, sink.got, 1)
	assert.Same(t, pkt, sink.got[0])
}
