package recvstream

import (
	"sort"
	"sync"
	"time"

	"github.com/pion/rtcp"
)

const (
	nackTickInterval = 10 * time.Millisecond
	nackMaxRetries   = 20
	nackMaxPending   = 5000
)

type pendingNack struct {
	seq      uint16
	lastSent time.Time
	retries  int
	firstSeen time.Time
}

// NackGenerator monitors received sequences for gaps and emits RFC 4585
// NACK feedback, grounded directly on the original nack_generator.cpp
// pending-map/retry/eviction logic.
type NackGenerator struct {
	mu        sync.Mutex
	pending   map[uint16]*pendingNack
	order     []uint16 // insertion order, for oldest-eviction once over cap
	lastSeq   uint16
	haveSeq   bool
	rtt       func() time.Duration
}

// NewNackGenerator constructs a generator. rtt supplies the current RTT
// estimate used to gate re-sends of the same pending entry.
func NewNackGenerator(rtt func() time.Duration) *NackGenerator {
	return &NackGenerator{
		pending: make(map[uint16]*pendingNack),
		rtt:     rtt,
	}
}

// OnPacket records an observed sequence number, adding any gap since the
// last observed sequence to the pending set.
func (g *NackGenerator) OnPacket(seq uint16) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.haveSeq {
		g.lastSeq = seq
		g.haveSeq = true
		return
	}

	delta := int32(int16(seq - g.lastSeq)) // modulo 2^16, so wraparound is a small step
	if delta > 1 && delta < maxDropout {
		now := time.Now()
		for missing := g.lastSeq + 1; missing != seq; missing++ {
			g.addPendingLocked(missing, now)
		}
	}
	if delta > 0 {
		g.lastSeq = seq
	}
	delete(g.pending, seq)
}

func (g *NackGenerator) addPendingLocked(seq uint16, now time.Time) {
	if _, exists := g.pending[seq]; exists {
		return
	}
	g.pending[seq] = &pendingNack{seq: seq, firstSeen: now}
	g.order = append(g.order, seq)

	for len(g.pending) > nackMaxPending && len(g.order) > 0 {
		oldest := g.order[0]
		g.order = g.order[1:]
		delete(g.pending, oldest)
	}
}

// Tick should be called roughly every 10ms. It scans the pending map for
// entries due for a resend (now - last_sent >= rtt), evicting anything
// whose retry count exceeds 20, and returns the due set RFC 4585-encoded as
// a single TransportLayerNack carrying one base+bitmap pair per group of up
// to 17 sequences (nil when nothing is due).
func (g *NackGenerator) Tick(senderSSRC, mediaSSRC uint32) []*rtcp.TransportLayerNack {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	rtt := time.Duration(0)
	if g.rtt != nil {
		rtt = g.rtt()
	}

	var due []uint16
	for seq, entry := range g.pending {
		if entry.retries > nackMaxRetries {
			delete(g.pending, seq)
			continue
		}
		if now.Sub(entry.lastSent) >= rtt {
			due = append(due, seq)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool { return due[i] < due[j] })

	for _, seq := range due {
		g.pending[seq].lastSent = now
		g.pending[seq].retries++
	}

	return encodeNackPairs(senderSSRC, mediaSSRC, due)
}

// encodeNackPairs groups a sorted sequence list into RFC 4585 base-PID +
// 16-bit bitmap pairs (covering up to 16 additional sequences each).
func encodeNackPairs(senderSSRC, mediaSSRC uint32, seqs []uint16) []*rtcp.TransportLayerNack {
	var pairs []rtcp.NackPair
	i := 0
	for i < len(seqs) {
		base := seqs[i]
		var bitmap uint16
		j := i + 1
		for j < len(seqs) {
			offset := int32(seqs[j]) - int32(base) - 1
			if offset < 0 || offset > 15 {
				break
			}
			bitmap |= 1 << uint(offset)
			j++
		}
		pairs = append(pairs, rtcp.NackPair{PacketID: base, LostPackets: rtcp.PacketBitmap(bitmap)})
		i = j
	}

	return []*rtcp.TransportLayerNack{{
		SenderSSRC: senderSSRC,
		MediaSSRC:  mediaSSRC,
		Nacks:      pairs,
	}}
}
