package cache

// Policy selects the victim-selection and metadata-update strategy for a
// Cache. Compile-time preprocessor selection in the original C source
// (spec.md §9) is replaced with this runtime tagged variant, per the
// design note: no performance cost that matters at simulation scale.
type Policy int

const (
	// PolicyRandom selects a uniformly random way among valid blocks when
	// no invalid way is available. Carries no per-block metadata.
	PolicyRandom Policy = iota
	// PolicyLRU selects the way whose recency equals NumWays-1 (the least
	// recently used valid block).
	PolicyLRU
	// PolicyRRIP is 2-bit static Re-Reference Interval Prediction:
	// installs insert at LONG(2); a miss scans for DISTANT(3) and, failing
	// that, ages every valid way by one (saturating) before rescanning.
	PolicyRRIP
)

// RRIP re-reference interval values (spec.md §3).
const (
	rrpvImmediate uint8 = 0
	rrpvLong      uint8 = 2
	rrpvDistant   uint8 = 3
)

// String implements fmt.Stringer for diagnostic output.
func (p Policy) String() string {
	switch p {
	case PolicyRandom:
		return "random"
	case PolicyLRU:
		return "lru"
	case PolicyRRIP:
		return "rrip-2bit-static"
	default:
		return "unknown"
	}
}
