package recvstream_test

import (
	"testing"
	"time"

	"github.com/ethan/streamkit/pkg/recvstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNackRoundTrip verifies observing {1000,1001,1004} produces a NACK
// with base PID 1002 and bitmap covering 1003.
func TestNackRoundTrip(t *testing.T) {
	g := recvstream.NewNackGenerator(func() time.Duration { return 0 })
	g.OnPacket(1000)
	g.OnPacket(1001)
	g.OnPacket(1004)

	nacks := g.Tick(1, 2)
	require.Len(t, nacks, 1)
	require.Len(t, nacks[0].Nacks, 1)

	pair := nacks[0].Nacks[0]
	assert.EqualValues(t, 1002, pair.PacketID)
	assert.EqualValues(t, 0x0001, pair.LostPackets)

	recovered := pair.PacketList()
	assert.ElementsMatch(t, []uint16{1002, 1003}, recovered)
}

func TestNackEvictsAfterMaxRetries(t *testing.T) {
	g := recvstream.NewNackGenerator(func() time.Duration { return 0 })
	g.OnPacket(1)
	g.OnPacket(3) // gap at 2

	for i := 0; i < 25; i++ {
		g.Tick(1, 2)
	}
	// after >20 retries the entry should be evicted; next tick reports nothing
	nacks := g.Tick(1, 2)
	assert.Empty(t, nacks)
}
