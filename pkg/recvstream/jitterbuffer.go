package recvstream

import (
	"sort"
	"sync"
	"time"

	"github.com/pion/rtp"
)

// MediaKind distinguishes the jitter buffer's per-kind timeout.
type MediaKind int

const (
	KindVideo MediaKind = iota
	KindAudio
)

// timeout returns the delivery timeout for entries of this kind: video
// 400ms, audio 100ms.
func (k MediaKind) timeout() time.Duration {
	if k == KindAudio {
		return 100 * time.Millisecond
	}
	return 400 * time.Millisecond
}

const jitterRingSize = 2048

type bufferEntry struct {
	extSeq   uint64
	packet   *rtp.Packet
	arrived  time.Time
}

// JitterBuffer reorders inbound RTP by extended sequence number, delivering
// consecutive runs immediately and forcing out late/gapped entries once
// they exceed the per-kind timeout.
type JitterBuffer struct {
	kind       MediaKind
	clockRate  uint32

	mu         sync.Mutex
	pending    map[uint64]bufferEntry
	lastOutput uint64
	haveOutput bool

	lastLossReport time.Time

	// OnLoss is called (rate-limited to once per 500ms) when a timeout
	// forces a gap.
	OnLoss func()

	now func() time.Time

	scratch [jitterRingSize][]byte
}

// NewJitterBuffer constructs a buffer for the given media kind/clock rate.
func NewJitterBuffer(kind MediaKind, clockRate uint32) *JitterBuffer {
	return &JitterBuffer{
		kind:      kind,
		clockRate: clockRate,
		pending:   make(map[uint64]bufferEntry),
		now:       time.Now,
	}
}

// Insert adds an arrived packet at extended sequence extSeq.
func (b *JitterBuffer) Insert(extSeq uint64, pkt *rtp.Packet) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending[extSeq] = bufferEntry{extSeq: extSeq, packet: pkt, arrived: b.now()}
}

// Drain returns packets ready for delivery: any consecutive run starting
// at lastOutput+1, followed by any timed-out entries forced out of order.
func (b *JitterBuffer) Drain() []*rtp.Packet {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []*rtp.Packet

	if !b.haveOutput {
		// seed lastOutput with the smallest pending sequence on first drain
		if len(b.pending) == 0 {
			return nil
		}
		min := b.minPending()
		b.lastOutput = min - 1
		b.haveOutput = true
	}

	for {
		next := b.lastOutput + 1
		entry, ok := b.pending[next]
		if !ok {
			break
		}
		out = append(out, entry.packet)
		delete(b.pending, next)
		b.lastOutput = next
	}

	out = append(out, b.drainTimedOutLocked()...)
	return out
}

func (b *JitterBuffer) minPending() uint64 {
	min := ^uint64(0)
	for seq := range b.pending {
		if seq < min {
			min = seq
		}
	}
	return min
}

func (b *JitterBuffer) drainTimedOutLocked() []*rtp.Packet {
	timeout := b.kind.timeout()
	now := b.now()

	var timedOut []uint64
	for seq, entry := range b.pending {
		if now.Sub(entry.arrived) >= timeout {
			timedOut = append(timedOut, seq)
		}
	}
	if len(timedOut) == 0 {
		return nil
	}
	sort.Slice(timedOut, func(i, j int) bool { return timedOut[i] < timedOut[j] })

	out := make([]*rtp.Packet, 0, len(timedOut))
	for _, seq := range timedOut {
		entry := b.pending[seq]
		delete(b.pending, seq)
		if seq > b.lastOutput {
			b.lastOutput = seq
		}
		out = append(out, entry.packet)
	}

	if b.now().Sub(b.lastLossReport) >= 500*time.Millisecond {
		b.lastLossReport = b.now()
		if b.OnLoss != nil {
			b.OnLoss()
		}
	}
	return out
}
