package rtprtx

const seqnumHalf = 1 << 15

// seqnumCompare orders two RTP sequence numbers on the 16 bit circle. It
// returns a negative value when a was sent before b, zero when they are
// equal and a positive value otherwise. The comparison treats the unsigned
// difference as signed, so it stays correct across the 65535 -> 0 wrap as
// long as the two values are less than 2^15 apart.
func seqnumCompare(a, b uint16) int {
	if a == b {
		return 0
	}
	if b-a < seqnumHalf {
		return -1
	}
	return 1
}

// seqnumLess reports whether a was sent before b.
func seqnumLess(a, b uint16) bool {
	return seqnumCompare(a, b) < 0
}

// timestampDelta returns newest-oldest in clock ticks. Unsigned subtraction
// gives the wrapped distance when the 32 bit timestamp has rolled over.
func timestampDelta(newest, oldest uint32) uint32 {
	return newest - oldest
}

// ticksToMillis converts a tick span to milliseconds for the given clock
// rate. A zero clock rate yields zero, the caller is expected to skip
// time based decisions in that case.
func ticksToMillis(ticks uint32, clockRate uint32) uint64 {
	if clockRate == 0 {
		return 0
	}
	return uint64(ticks) * 1000 / uint64(clockRate)
}
