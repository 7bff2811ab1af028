package recvstream

const (
	maxDropout  = 3000
	maxMisorder = 100
	rtpSeqMod   = 1 << 16
)

// seqState tracks the RFC 3550 §A.1 sequence validity state machine:
// base_seq, max_seq, bad_seq, cycles.
type seqState struct {
	initialized bool
	baseSeq     uint16
	maxSeq      uint16
	badSeq      uint32
	cycles      uint32

	received uint32
	expectedPrior uint32
	receivedPrior uint32
}

// update validates seq against RFC 3550's dropout/misorder rules. It
// returns ok=false when the packet should be treated as a re-init trigger
// ("bad" pair), matching the jitter buffer's re-init-and-report behavior.
func (s *seqState) update(seq uint16) (extended uint64, ok bool) {
	if !s.initialized {
		s.initialized = true
		s.baseSeq = seq
		s.maxSeq = seq
		s.badSeq = 0
		s.received++
		return uint64(seq), true
	}

	udelta := seq - s.maxSeq // modulo 2^16, as in RFC 3550 A.1

	switch {
	case udelta < maxDropout:
		if seq < s.maxSeq {
			s.cycles += rtpSeqMod
		}
		s.maxSeq = seq
	case udelta <= rtpSeqMod-maxMisorder:
		if uint32(seq) == s.badSeq {
			s.reinit(seq)
			s.received++
			return s.extendedSeq(), true
		}
		s.badSeq = (uint32(seq) + 1) & (rtpSeqMod - 1)
		return 0, false
	default:
		// duplicate or out of order within misorder window; accept as-is.
	}

	s.received++
	return s.extendedSeq(), true
}

func (s *seqState) reinit(seq uint16) {
	s.baseSeq = seq
	s.maxSeq = seq
	s.cycles = 0
	s.badSeq = 0
	s.received = 0
	s.expectedPrior = 0
	s.receivedPrior = 0
}

func (s *seqState) extendedSeq() uint64 {
	return uint64(s.cycles) + uint64(s.maxSeq)
}

// expected returns the total expected packet count, per RFC 3550 §A.3.
func (s *seqState) expected() uint32 {
	return s.cycles + uint32(s.maxSeq) - uint32(s.baseSeq) + 1
}

// lossStats computes fraction-lost (8-bit, scaled by 256) and cumulative
// lost since the last call.
func (s *seqState) lossStats() (fractionLost uint8, cumulativeLost uint32) {
	expected := s.expected()
	expectedInterval := expected - s.expectedPrior
	receivedInterval := s.received - s.receivedPrior
	s.expectedPrior = expected
	s.receivedPrior = s.received

	lostInterval := int32(expectedInterval) - int32(receivedInterval)
	if lostInterval < 0 {
		lostInterval = 0
	}
	if expectedInterval > 0 && lostInterval > 0 {
		fractionLost = uint8((lostInterval * 256) / int32(expectedInterval))
	}

	totalLost := int32(expected) - int32(s.received)
	if totalLost < 0 {
		totalLost = 0
	}
	return fractionLost, uint32(totalLost)
}
