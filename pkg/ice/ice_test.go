package ice_test

import (
	"net"
	"testing"
	"time"

	"github.com/ethan/streamkit/pkg/ice"
	"github.com/pion/stun/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeepaliveSendsBindingRequestWithUsername(t *testing.T) {
	sent := make(chan []byte, 4)
	k := ice.New("remoteFrag", "localFrag", "remotePwd",
		func(b []byte) error { sent <- b; return nil }, nil)

	k.Start()
	defer k.Stop()

	select {
	case raw := <-sent:
		msg := &stun.Message{Raw: raw}
		require.NoError(t, msg.Decode())
		assert.Equal(t, stun.BindingRequest, msg.Type)

		var username stun.Username
		require.NoError(t, username.GetFrom(msg))
		assert.Equal(t, "remoteFrag:localFrag", username.String())
	case <-time.After(2 * time.Second):
		t.Fatal("no binding request observed")
	}
}

func TestKeepaliveBindingRequestCarriesPriorityAndUseCandidate(t *testing.T) {
	sent := make(chan []byte, 4)
	k := ice.New("remoteFrag", "localFrag", "remotePwd",
		func(b []byte) error { sent <- b; return nil }, nil)

	k.Start()
	defer k.Stop()

	select {
	case raw := <-sent:
		msg := &stun.Message{Raw: raw}
		require.NoError(t, msg.Decode())

		priority := msg.Attributes.Get(stun.AttrType(0x0024))
		assert.Len(t, priority.Value, 4)

		useCandidate := msg.Attributes.Get(stun.AttrType(0x0025))
		assert.Equal(t, stun.AttrType(0x0025), useCandidate.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("no binding request observed")
	}
}

func TestKeepaliveOnResponseSignalsDoneAndRewrites(t *testing.T) {
	var rewritten *net.UDPAddr
	k := ice.New("r", "l", "pwd", func(b []byte) error { return nil },
		func(addr *net.UDPAddr) { rewritten = addr })

	xorAddr := stun.XORMappedAddress{IP: net.ParseIP("203.0.113.5"), Port: 54321}
	msg, err := stun.Build(stun.TransactionID, stun.BindingSuccess, &xorAddr)
	require.NoError(t, err)

	require.NoError(t, k.OnResponse(msg.Raw))

	select {
	case <-k.Done():
	default:
		t.Fatal("Done channel not closed after valid binding response")
	}
	require.NotNil(t, rewritten)
	assert.Equal(t, 54321, rewritten.Port)
}
