package streamer_test

import (
	"testing"

	"github.com/ethan/streamkit/pkg/streamer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactoryMakeAndDestroy(t *testing.T) {
	f := streamer.NewFactory()
	f.Register("relay", func() streamer.Streamer { return newRelayStreamer() })

	s, err := f.Make("relay")
	require.NoError(t, err)
	assert.Contains(t, s.Name(), "relay-")

	f.Destroy("relay", s)

	_, err = f.Make("unknown")
	assert.Error(t, err)
}

func TestFactoryReleaseAll(t *testing.T) {
	f := streamer.NewFactory()
	f.Register("relay", func() streamer.Streamer { return newRelayStreamer() })
	_, err := f.Make("relay")
	require.NoError(t, err)
	f.ReleaseAll()
}
