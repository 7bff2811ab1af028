package recvstream

import "time"

const ntpEpochOffset = 2208988800

func toNTP(t time.Time) uint64 {
	secs := uint64(t.Unix()) + ntpEpochOffset
	frac := uint64(float64(t.Nanosecond()) / 1e9 * (1 << 32))
	return secs<<32 | frac
}

func compactNTP(ntp uint64) uint32 {
	return uint32(ntp >> 16)
}

func ntpDelay(d time.Duration) uint32 {
	return uint32(d.Seconds() * 65536)
}
