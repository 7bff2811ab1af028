// Package dtlsengine implements the DTLS 1.2 server-role handshake and
// SRTP key export, built on pion's DTLS transport library rather than a
// direct OpenSSL binding.
package dtlsengine

import (
	"context"
	"crypto"
	"fmt"
	"net"
	"sync"

	"github.com/pion/dtls/v3"
	"github.com/pion/dtls/v3/pkg/crypto/fingerprint"
	"github.com/pion/dtls/v3/pkg/crypto/selfsign"
)

// MTU is pinned so every handshake record fits one UDP datagram.
const MTU = 1200

const (
	srtpKeyLen  = 16 // AES_CM_128 key length
	srtpSaltLen = 14
)

// State is the engine's local handshake status.
type State int

const (
	StateInit State = iota
	StateHandshaking
	StateEstablished
	StateFailed
	StateClosed
)

// KeyingMaterial holds the four slices exported for SRTP per RFC 5764:
// client write key/salt, server write key/salt.
type KeyingMaterial struct {
	ClientKey, ClientSalt []byte
	ServerKey, ServerSalt []byte
}

// Engine owns the self-signed certificate, fingerprint, and DTLS server
// connection for one PeerConnection.
type Engine struct {
	cert        dtls.Certificate
	Fingerprint string // "sha-256" hex, inserted into emitted SDP

	mu    sync.Mutex
	state State
	conn  *dtls.Conn
	pipe  *pipeConn
}

// New generates an EC P-256 self-signed certificate (365-day validity, CN
// "cppstreamer.org") and computes its SHA-256 fingerprint.
func New() (*Engine, error) {
	cert, err := selfsign.GenerateSelfSignedWithDNS("cppstreamer.org")
	if err != nil {
		return nil, fmt.Errorf("dtlsengine: generate self-signed cert: %w", err)
	}

	fp, err := fingerprint.Fingerprint(cert.Leaf, crypto.SHA256)
	if err != nil {
		return nil, fmt.Errorf("dtlsengine: compute fingerprint: %w", err)
	}

	return &Engine{
		cert:        dtls.Certificate{Certificate: cert.Certificate, PrivateKey: cert.PrivateKey},
		Fingerprint: fp,
		state:       StateInit,
	}, nil
}

// Feed hands an inbound UDP datagram (already identified as DTLS by the
// session's demux, per RFC 7983 byte-range) to the handshake pipe.
func (e *Engine) Feed(b []byte) {
	e.mu.Lock()
	pipe := e.pipe
	e.mu.Unlock()
	if pipe != nil {
		pipe.Feed(b)
	}
}

// StartServer begins a passive (a=setup:passive) DTLS 1.2 handshake. send
// delivers outbound handshake records to the session's UDP socket.
func (e *Engine) StartServer(ctx context.Context, send func([]byte) error, local, remote net.Addr) error {
	e.mu.Lock()
	if e.state != StateInit {
		e.mu.Unlock()
		return fmt.Errorf("dtlsengine: StartServer called in state %d", e.state)
	}
	e.state = StateHandshaking
	pipe := newPipeConn(send, local, remote)
	e.pipe = pipe
	e.mu.Unlock()

	cfg := &dtls.Config{
		Certificates:         []dtls.Certificate{e.cert},
		InsecureSkipVerify:   true,
		ExtendedMasterSecret: dtls.RequireExtendedMasterSecret,
		MTU:                  MTU,
	}

	conn, err := dtls.ServerWithContext(ctx, pipe, cfg)
	if err != nil {
		e.mu.Lock()
		e.state = StateFailed
		e.mu.Unlock()
		return fmt.Errorf("dtlsengine: server handshake: %w", err)
	}

	e.mu.Lock()
	e.conn = conn
	e.state = StateEstablished
	e.mu.Unlock()
	return nil
}

// ExportKeys pulls SRTP key/salt material via RFC 5705 keying-material
// export, sliced client-then-server.
func (e *Engine) ExportKeys() (*KeyingMaterial, error) {
	e.mu.Lock()
	conn := e.conn
	e.mu.Unlock()
	if conn == nil {
		return nil, fmt.Errorf("dtlsengine: ExportKeys called before handshake completed")
	}

	total := 2 * (srtpKeyLen + srtpSaltLen)
	material, err := conn.ExportKeyingMaterial("EXTRACTOR-dtls_srtp", nil, total)
	if err != nil {
		return nil, fmt.Errorf("dtlsengine: export keying material: %w", err)
	}

	offset := 0
	next := func(n int) []byte {
		s := material[offset : offset+n]
		offset += n
		return s
	}

	return &KeyingMaterial{
		ClientKey:  next(srtpKeyLen),
		ServerKey:  next(srtpKeyLen),
		ClientSalt: next(srtpSaltLen),
		ServerSalt: next(srtpSaltLen),
	}, nil
}

// State returns the engine's current handshake state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Close tears down the DTLS connection, marking the engine Closed.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = StateClosed
	if e.conn != nil {
		return e.conn.Close()
	}
	if e.pipe != nil {
		return e.pipe.Close()
	}
	return nil
}
