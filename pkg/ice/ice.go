// Package ice implements a STUN Binding keepalive: a fixed-cadence probe
// toward the remote candidate that both confirms reachability and learns
// the server-reflexive address to send future packets to.
package ice

import (
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pion/stun/v3"
)

const keepaliveInterval = 800 * time.Millisecond

// ICE (RFC 8445) attribute types that pion/stun/v3, a generic RFC 5389
// implementation, has no typed builder for.
const (
	attrPriority     = stun.AttrType(0x0024)
	attrUseCandidate = stun.AttrType(0x0025)
)

// candidatePriority is the RFC 8445 §5.1.2 priority formula
// (2^24)*type_pref + (2^8)*local_pref + (2^0)*(256-component_id) evaluated
// for a single host candidate (type_pref=126, local_pref=65535,
// component_id=1), since this keepalive never arbitrates among candidates.
const candidatePriority uint32 = 126<<24 | 65535<<8 | 255

// priorityAttr sets the ICE PRIORITY attribute on a Binding request.
type priorityAttr uint32

func (p priorityAttr) AddTo(m *stun.Message) error {
	v := make([]byte, 4)
	binary.BigEndian.PutUint32(v, uint32(p))
	m.Add(attrPriority, v)
	return nil
}

// useCandidateAttr sets the zero-length ICE USE-CANDIDATE flag attribute.
type useCandidateAttr struct{}

func (useCandidateAttr) AddTo(m *stun.Message) error {
	m.Add(attrUseCandidate, nil)
	return nil
}

// CandidateRewrite is invoked with the XOR-MAPPED-ADDRESS of every Binding
// success response that carries one, whether or not it differs from the
// currently addressed candidate, allowing the caller to redirect subsequent
// sends to it.
type CandidateRewrite func(addr *net.UDPAddr)

// Send delivers a raw STUN message to the wire; supplied by the session
// that owns the UDP socket.
type Send func(b []byte) error

// Keepalive drives the 800ms STUN Binding request cadence until the first
// valid response is observed, then signals Done.
type Keepalive struct {
	remoteUfrag, localUfrag string
	remotePwd               string
	send                    Send
	onRewrite               CandidateRewrite

	mu       sync.Mutex
	done     chan struct{}
	closed   bool
	ticker   *time.Ticker
	stopOnce sync.Once
}

// New constructs a Keepalive. remoteUfrag/localUfrag form the USERNAME
// attribute "remote_frag:local_frag"; remotePwd keys the MESSAGE-INTEGRITY
// HMAC-SHA1 attribute.
func New(remoteUfrag, localUfrag, remotePwd string, send Send, onRewrite CandidateRewrite) *Keepalive {
	return &Keepalive{
		remoteUfrag: remoteUfrag,
		localUfrag:  localUfrag,
		remotePwd:   remotePwd,
		send:        send,
		onRewrite:   onRewrite,
		done:        make(chan struct{}),
	}
}

// Done is closed the first time a valid Binding response is observed,
// signaling the session's SdpDone -> StunDone transition.
func (k *Keepalive) Done() <-chan struct{} { return k.done }

// Start begins issuing Binding requests every 800ms until Stop is called
// or a response is processed by OnResponse.
func (k *Keepalive) Start() {
	k.mu.Lock()
	k.ticker = time.NewTicker(keepaliveInterval)
	ticker := k.ticker
	k.mu.Unlock()

	go func() {
		k.sendBindingRequest()
		for range ticker.C {
			k.mu.Lock()
			closed := k.closed
			k.mu.Unlock()
			if closed {
				return
			}
			k.sendBindingRequest()
		}
	}()
}

// Stop halts the keepalive ticker. Safe to call multiple times.
func (k *Keepalive) Stop() {
	k.stopOnce.Do(func() {
		k.mu.Lock()
		k.closed = true
		if k.ticker != nil {
			k.ticker.Stop()
		}
		k.mu.Unlock()
	})
}

func (k *Keepalive) username() string {
	return fmt.Sprintf("%s:%s", k.remoteUfrag, k.localUfrag)
}

func (k *Keepalive) sendBindingRequest() {
	msg, err := stun.Build(
		stun.TransactionID,
		stun.BindingRequest,
		stun.NewUsername(k.username()),
		priorityAttr(candidatePriority),
		useCandidateAttr{},
		stun.NewShortTermIntegrity(k.remotePwd),
		stun.Fingerprint,
	)
	if err != nil {
		return
	}
	_ = k.send(msg.Raw)
}

// OnResponse processes an inbound STUN message, parsing XOR-MAPPED-ADDRESS
// and invoking the candidate-rewrite callback, then closing Done exactly
// once and stopping further Binding requests.
func (k *Keepalive) OnResponse(data []byte) error {
	msg := &stun.Message{Raw: append([]byte(nil), data...)}
	if err := msg.Decode(); err != nil {
		return fmt.Errorf("ice: decode stun message: %w", err)
	}
	if msg.Type != stun.BindingSuccess {
		return nil
	}

	var xorAddr stun.XORMappedAddress
	if err := xorAddr.GetFrom(msg); err == nil && k.onRewrite != nil {
		k.onRewrite(&net.UDPAddr{IP: xorAddr.IP, Port: xorAddr.Port})
	}

	k.mu.Lock()
	alreadyDone := k.closed
	k.mu.Unlock()
	if !alreadyDone {
		k.signalDone()
		k.Stop()
	}
	return nil
}

func (k *Keepalive) signalDone() {
	k.mu.Lock()
	defer k.mu.Unlock()
	select {
	case <-k.done:
	default:
		close(k.done)
	}
}
