package sendstream

import "time"

const ntpEpochOffset = 2208988800 // seconds between 1900 and 1970 epochs

// toNTP converts a wall-clock time to a 64-bit NTP timestamp.
func toNTP(t time.Time) uint64 {
	secs := uint64(t.Unix()) + ntpEpochOffset
	frac := uint64(float64(t.Nanosecond()) / 1e9 * (1 << 32))
	return secs<<32 | frac
}

// compactNTP truncates a 64-bit NTP timestamp to the middle 32 bits used by
// LSR/DLSR/LRR fields (RFC 3550 §4).
func compactNTP(ntp uint64) uint32 {
	return uint32(ntp >> 16)
}

// ntpDelay converts an elapsed duration to 1/65536-second DLSR/DLRR units.
func ntpDelay(d time.Duration) uint32 {
	return uint32(d.Seconds() * 65536)
}

// rttFromReport computes RTT as compact_ntp(now) - LSR - DLSR, all modular
// (wrapping) 32-bit arithmetic. Go's native uint32 wraparound already
// implements the modular subtraction correctly, so no special-cased wrap
// handling is needed beyond using uint32 math.
func rttFromReport(now time.Time, lsr, dlsr uint32) time.Duration {
	nowCompact := compactNTP(toNTP(now))
	diff := nowCompact - lsr - dlsr
	return time.Duration(float64(diff)/65536.0*float64(time.Second))
}
