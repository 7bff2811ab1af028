// Package streamers holds concrete pkg/streamer stages, each registering
// itself with the process-wide Factory from an init() function the way a
// database/sql driver registers itself at import time.
package streamers

import (
	"context"

	"github.com/ethan/streamkit/pkg/packet"
	"github.com/ethan/streamkit/pkg/streamer"
)

// Name is the Factory key this stage registers under.
const Name = "h264-passthrough"

func init() {
	streamer.Register(Name, func() streamer.Streamer { return NewH264Passthrough() })
}

// H264Passthrough is the simplest concrete pipeline stage: it forwards each
// depacketized H.264 MediaPacket to its sinks unchanged.
type H264Passthrough struct {
	*streamer.Base
}

// NewH264Passthrough constructs a stage with no configurable options.
func NewH264Passthrough() *H264Passthrough {
	return &H264Passthrough{Base: streamer.NewBase(Name, nil)}
}

// SourceData implements streamer.Streamer.
func (h *H264Passthrough) SourceData(pkt *packet.MediaPacket) error {
	return h.Emit(pkt)
}

// StartNetwork implements streamer.Streamer. This stage has no network leg
// of its own; it only relays packets handed to it via SourceData.
func (h *H264Passthrough) StartNetwork(ctx context.Context, url string, loop *streamer.EventLoop) error {
	return nil
}
