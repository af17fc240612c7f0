package issuance

import "fmt"

// RecommendedMethod is the output of Coordinator.Recommend, per spec §4.3.
type RecommendedMethod uint8

const (
	RecommendPowOnly RecommendedMethod = iota
	RecommendPostakeOnly
	RecommendHybrid
)

func (m RecommendedMethod) String() string {
	switch m {
	case RecommendPowOnly:
		return "POW_ONLY"
	case RecommendPostakeOnly:
		return "POSTAKE_ONLY"
	case RecommendHybrid:
		return "HYBRID"
	default:
		return "UNKNOWN"
	}
}

// Policy configures the issuance coordinator's caps and thresholds, per
// spec §4.3.
type Policy struct {
	PowWeight                    float64
	PostakeWeight                float64
	EpochCapPerNode              uint32
	RateLimitSeconds             int64
	PostakeContributionThreshold int32
	HybridBonusMultiplier        float64
}

// DefaultPolicy matches spec §4.3's stated defaults: 10 keys/node/epoch,
// 60s between issuances, contribution threshold 100, 1.5x hybrid bonus.
func DefaultPolicy() Policy {
	return Policy{
		PowWeight:                    0.5,
		PostakeWeight:                0.5,
		EpochCapPerNode:              10,
		RateLimitSeconds:             60,
		PostakeContributionThreshold: 100,
		HybridBonusMultiplier:        1.5,
	}
}

// Validate enforces spec §4.3's "pow_weight + postake_weight == 1.0"
// invariant.
func (p Policy) Validate() error {
	sum := p.PowWeight + p.PostakeWeight
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("issuance: pow_weight + postake_weight must equal 1.0, got %f", sum)
	}
	if p.EpochCapPerNode == 0 {
		return fmt.Errorf("issuance: epoch cap must be positive")
	}
	if p.HybridBonusMultiplier <= 0 {
		return fmt.Errorf("issuance: hybrid bonus multiplier must be positive")
	}
	return nil
}
