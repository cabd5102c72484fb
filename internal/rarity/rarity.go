// Package rarity implements the probabilistic rarity roll used when a fish
// is caught. The score depends on the bait type, the staked amount, and a
// uniform random draw, so two identical catches can land in different tiers.
package rarity

import (
	"math"
	"math/big"
	"math/rand"
	"time"

	"github.com/fishit-backend/internal/types"
)

// Rarity tiers, ordered from most to least common.
const (
	TierCommon    = "common"
	TierRare      = "rare"
	TierEpic      = "epic"
	TierLegendary = "legendary"
)

// Score thresholds for each tier.
const (
	thresholdLegendary = 0.90
	thresholdEpic      = 0.70
	thresholdRare      = 0.40
)

var weiPerToken = new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

// Calculator computes rarity scores. The random source is injectable so
// threshold behavior is testable; the production source is seeded from the
// wall clock.
type Calculator struct {
	roll func() float64 // uniform in [0,1)
}

// NewCalculator returns a Calculator backed by a time-seeded random source.
func NewCalculator() *Calculator {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &Calculator{roll: rng.Float64}
}

// NewCalculatorWithRoll returns a Calculator with a fixed roll source.
func NewCalculatorWithRoll(roll func() float64) *Calculator {
	return &Calculator{roll: roll}
}

// BaitMultiplier returns the score multiplier for a bait type. Unknown bait
// values behave like common bait.
func BaitMultiplier(bait types.BaitType) float64 {
	switch bait {
	case types.BaitRare:
		return 1.1
	case types.BaitEpic:
		return 1.25
	case types.BaitLegendary:
		return 1.5
	default:
		return 1.0
	}
}

// Score draws a rarity score in [0,1] for the given bait and stake.
// The random base is quantized to 1/10000 steps before scaling.
func (c *Calculator) Score(bait types.BaitType, stakeWei *big.Int) float64 {
	base := math.Floor(c.roll()*10000) / 10000

	tokens := 0.0
	if stakeWei != nil {
		tokens, _ = new(big.Float).Quo(new(big.Float).SetInt(stakeWei), weiPerToken).Float64()
	}
	mStake := 1 + 0.35*math.Log10(math.Max(tokens, 100)/100)

	return math.Min(1, base*BaitMultiplier(bait)*mStake)
}

// TierForScore maps a score to its rarity tier.
func TierForScore(score float64) string {
	switch {
	case score >= thresholdLegendary:
		return TierLegendary
	case score >= thresholdEpic:
		return TierEpic
	case score >= thresholdRare:
		return TierRare
	default:
		return TierCommon
	}
}

// Roll draws a score and returns the resulting tier.
func (c *Calculator) Roll(bait types.BaitType, stakeWei *big.Int) string {
	return TierForScore(c.Score(bait, stakeWei))
}
