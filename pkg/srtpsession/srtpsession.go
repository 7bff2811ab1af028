// Package srtpsession implements paired inbound/outbound SRTP contexts:
// AES_CM_128_HMAC_SHA1_80, an 8192-entry replay window, and
// silent-drop-on-auth-failure decrypt.
package srtpsession

import (
	"fmt"

	"github.com/ethan/streamkit/pkg/logger"
	"github.com/pion/rtp"
	"github.com/pion/srtp/v3"
)

const (
	keyLen  = 16
	saltLen = 14

	// scratchSlack covers the auth tag plus MKI trailer room reserved over
	// the payload (>= 128 bytes).
	scratchSlack = 128

	replayWindow = 8192
)

// Pair wraps one outbound ("ssrc_any_outbound") and one inbound
// ("ssrc_any_inbound") srtp.Context, keyed from the local/remote
// master key+salt exported by pkg/dtlsengine.
type Pair struct {
	outbound *srtp.Context
	inbound  *srtp.Context
	log      *logger.Logger
}

// New builds the outbound context from localKey/localSalt and the inbound
// context from remoteKey/remoteSalt, both under AES_CM_128_HMAC_SHA1_80.
func New(localKey, localSalt, remoteKey, remoteSalt []byte, log *logger.Logger) (*Pair, error) {
	if len(localKey) != keyLen || len(remoteKey) != keyLen {
		return nil, fmt.Errorf("srtpsession: key length must be %d bytes", keyLen)
	}
	if len(localSalt) != saltLen || len(remoteSalt) != saltLen {
		return nil, fmt.Errorf("srtpsession: salt length must be %d bytes", saltLen)
	}

	outbound, err := srtp.CreateContext(localKey, localSalt, srtp.ProtectionProfileAes128CmHmacSha1_80,
		srtp.SRTPReplayProtectionWindow(replayWindow))
	if err != nil {
		return nil, fmt.Errorf("srtpsession: create outbound context: %w", err)
	}
	inbound, err := srtp.CreateContext(remoteKey, remoteSalt, srtp.ProtectionProfileAes128CmHmacSha1_80,
		srtp.SRTPReplayProtectionWindow(replayWindow))
	if err != nil {
		return nil, fmt.Errorf("srtpsession: create inbound context: %w", err)
	}

	return &Pair{outbound: outbound, inbound: inbound, log: logger.OrDefault(log)}, nil
}

// EncryptRTP protects an RTP packet in place into a scratch buffer sized
// len(plaintext)+scratchSlack.
func (p *Pair) EncryptRTP(header *rtp.Header, payload []byte) ([]byte, error) {
	scratch := make([]byte, 0, len(payload)+scratchSlack)
	out, err := p.outbound.EncryptRTP(scratch, header, payload)
	if err != nil {
		return nil, fmt.Errorf("srtpsession: encrypt rtp: %w", err)
	}
	return out, nil
}

// EncryptRTCP protects an RTCP compound packet.
func (p *Pair) EncryptRTCP(plaintext []byte) ([]byte, error) {
	scratch := make([]byte, 0, len(plaintext)+scratchSlack)
	out, err := p.outbound.EncryptRTCP(scratch, plaintext, nil)
	if err != nil {
		return nil, fmt.Errorf("srtpsession: encrypt rtcp: %w", err)
	}
	return out, nil
}

// DecryptRTP verifies and strips the auth tag. Authentication failures are
// not surfaced as errors: they return (nil, nil, nil) and log a warning, so
// the caller simply drops the packet.
func (p *Pair) DecryptRTP(encrypted []byte) ([]byte, *rtp.Header, error) {
	scratch := make([]byte, 0, len(encrypted))
	out, header, err := p.inbound.DecryptRTP(scratch, encrypted, nil)
	if err != nil {
		p.log.Warn("rtp auth/decrypt failed, dropping packet")
		return nil, nil, nil
	}
	return out, header, nil
}

// DecryptRTCP is DecryptRTP's RTCP counterpart.
func (p *Pair) DecryptRTCP(encrypted []byte) ([]byte, error) {
	scratch := make([]byte, 0, len(encrypted))
	out, err := p.inbound.DecryptRTCP(scratch, encrypted, nil)
	if err != nil {
		p.log.Warn("rtcp auth/decrypt failed, dropping packet")
		return nil, nil
	}
	return out, nil
}
