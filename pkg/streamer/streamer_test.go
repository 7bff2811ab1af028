package streamer_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethan/streamkit/pkg/packet"
	"github.com/ethan/streamkit/pkg/streamer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type relayStreamer struct {
	*streamer.Base
	received int32
}

func newRelayStreamer() *relayStreamer {
	return &relayStreamer{Base: streamer.NewBase("relay", map[string]string{"mtu": "1200"})}
}

func (r *relayStreamer) SourceData(pkt *packet.MediaPacket) error {
	atomic.AddInt32(&r.received, 1)
	return r.Emit(pkt)
}

func (r *relayStreamer) StartNetwork(ctx context.Context, url string, loop *streamer.EventLoop) error {
	return nil
}

func TestBaseNameIsStableAndUnique(t *testing.T) {
	a := newRelayStreamer()
	b := newRelayStreamer()
	assert.NotEqual(t, a.Name(), b.Name())
	assert.Contains(t, a.Name(), "relay-")
}

func TestSinkFanout(t *testing.T) {
	src := newRelayStreamer()
	sinkA := newRelayStreamer()
	sinkB := newRelayStreamer()
	src.AddSink(sinkA)
	src.AddSink(sinkB)

	pkt, err := packet.New(packet.AVVideo, packet.CodecH264, packet.FormatRaw, []byte{0, 0, 0, 1, 0x65})
	require.NoError(t, err)
	require.NoError(t, pkt.SetKeyFrame(true))

	require.NoError(t, src.SourceData(pkt))
	assert.EqualValues(t, 1, atomic.LoadInt32(&sinkA.received))
	assert.EqualValues(t, 1, atomic.LoadInt32(&sinkB.received))

	src.RemoveSink(sinkA.Name())
	require.NoError(t, src.SourceData(pkt))
	assert.EqualValues(t, 1, atomic.LoadInt32(&sinkA.received))
	assert.EqualValues(t, 2, atomic.LoadInt32(&sinkB.received))
}

func TestOptionValidation(t *testing.T) {
	s := newRelayStreamer()
	require.NoError(t, s.AddOption("mtu", "1000"))
	assert.Equal(t, "1000", s.Option("mtu"))

	err := s.AddOption("bogus", "x")
	assert.ErrorIs(t, err, streamer.ErrUnknownOption)
}

func TestReporterReceivesEvents(t *testing.T) {
	s := newRelayStreamer()
	events := make(chan streamer.EventType, 4)
	s.SetReporter(func(name string, eventType streamer.EventType, value any) {
		events <- eventType
	})
	s.Report(streamer.EventHandshake, streamer.ValueHandshake)

	select {
	case et := <-events:
		assert.Equal(t, streamer.EventHandshake, et)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for reporter event")
	}
}

func TestEventLoopRunsSubmittedTasks(t *testing.T) {
	loop := streamer.NewEventLoop()
	defer loop.Stop()

	done := make(chan struct{})
	loop.Submit(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("event loop never ran submitted task")
	}
}
