package crypto

import "math/bits"

// LeadingZeroBits returns the number of leading zero bits in h, used to
// express proof-of-work difficulty as "solution hash has >= N leading
// zero bits", matching the teacher's *big.Int difficulty comparisons in
// core/consensus.go generalized to a bit-count form more natural for a
// fixed-width digest.
func LeadingZeroBits(h Hash) int {
	n := 0
	for _, b := range h {
		if b == 0 {
			n += 8
			continue
		}
		n += bits.LeadingZeros8(b)
		break
	}
	return n
}

// MeetsDifficulty reports whether h has at least `difficulty` leading zero
// bits.
func MeetsDifficulty(h Hash, difficulty int) bool {
	return LeadingZeroBits(h) >= difficulty
}

// PoWSolutionHash computes the candidate digest for a proof-of-work
// submission: BLAKE3(node_id || epoch || nonce).
func PoWSolutionHash(nodeID Hash, epoch uint64, nonce []byte) Hash {
	var epochBytes [8]byte
	for i := 0; i < 8; i++ {
		epochBytes[i] = byte(epoch >> (8 * i))
	}
	return SumAll(nodeID.Bytes(), epochBytes[:], nonce)
}
