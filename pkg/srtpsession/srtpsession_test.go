package srtpsession_test

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/ethan/streamkit/pkg/srtpsession"
	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randBytes(n int) []byte {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return b
}

func newMatchingPairs(t *testing.T) (*srtpsession.Pair, *srtpsession.Pair) {
	t.Helper()
	keyA, saltA := randBytes(16), randBytes(14)
	keyB, saltB := randBytes(16), randBytes(14)

	// side A encrypts outbound with (keyA,saltA), decrypts inbound with (keyB,saltB)
	sideA, err := srtpsession.New(keyA, saltA, keyB, saltB, nil)
	require.NoError(t, err)
	// side B is the mirror: its outbound matches A's inbound key material
	sideB, err := srtpsession.New(keyB, saltB, keyA, saltA, nil)
	require.NoError(t, err)
	return sideA, sideB
}

func TestEncryptDecryptRTPRoundTrip(t *testing.T) {
	sideA, sideB := newMatchingPairs(t)

	header := &rtp.Header{Version: 2, SequenceNumber: 1, Timestamp: 1000, SSRC: 42}
	payload := []byte("hello rtp payload")

	encrypted, err := sideA.EncryptRTP(header, payload)
	require.NoError(t, err)

	decrypted, decHeader, err := sideB.DecryptRTP(encrypted)
	require.NoError(t, err)
	require.NotNil(t, decHeader)
	assert.True(t, bytes.HasSuffix(decrypted, payload) || bytes.Contains(decrypted, payload))
}

func TestDecryptRTPFailsSilentlyOnAuthFailure(t *testing.T) {
	sideA, _ := newMatchingPairs(t)
	_, wrongSide := newMatchingPairs(t)

	header := &rtp.Header{Version: 2, SequenceNumber: 1, Timestamp: 1000, SSRC: 42}
	encrypted, err := sideA.EncryptRTP(header, []byte("payload"))
	require.NoError(t, err)

	out, hdr, err := wrongSide.DecryptRTP(encrypted)
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.Nil(t, hdr)
}

func TestNewRejectsBadKeyLengths(t *testing.T) {
	_, err := srtpsession.New(randBytes(8), randBytes(14), randBytes(16), randBytes(14), nil)
	assert.Error(t, err)
}
