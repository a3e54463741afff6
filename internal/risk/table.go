// Package risk sizes positions and derives protective prices.
//
// Risk is fixed in account currency per trade, scaled by the prevailing
// market regime: with-trend trades carry the full allocation, counter-trend
// trades a reduced one, and an unknown regime always falls back to the
// smallest allocation with a flat reward ratio.
package risk

import "pptrader/internal/model"

// Profile is the per-trade risk allocation for one regime/side pairing.
type Profile struct {
	RiskAmount  float64 `yaml:"risk_amount"`  // account currency at risk
	RewardRatio float64 `yaml:"reward_ratio"` // take-profit distance as a multiple of stop distance
}

// SideProfiles holds the long and short allocations within one regime.
type SideProfiles struct {
	Long  Profile `yaml:"long"`
	Short Profile `yaml:"short"`
}

// Table maps market regime to risk allocation per position side.
type Table struct {
	Bull SideProfiles `yaml:"bull"`
	Bear SideProfiles `yaml:"bear"`
}

// DefaultTable returns the stock allocation: 300 with trend, 100 against.
func DefaultTable() Table {
	return Table{
		Bull: SideProfiles{
			Long:  Profile{RiskAmount: 300, RewardRatio: 1.2},
			Short: Profile{RiskAmount: 100, RewardRatio: 0.6},
		},
		Bear: SideProfiles{
			Long:  Profile{RiskAmount: 100, RewardRatio: 0.6},
			Short: Profile{RiskAmount: 300, RewardRatio: 1.2},
		},
	}
}

// neutralProfile is used whenever the regime is unknown. The smallest
// allocation and a 1:1 reward keep an unclassified market from being
// traded at full size.
var neutralProfile = Profile{RiskAmount: 100, RewardRatio: 1.0}

// Lookup returns the allocation for a trade of the given side under the
// given regime. NEUTRAL (or any unrecognized regime) maps to the
// conservative fallback profile.
func (t Table) Lookup(regime model.Regime, side model.Side) Profile {
	switch regime {
	case model.RegimeBull:
		if side == model.SideLong {
			return t.Bull.Long
		}
		return t.Bull.Short
	case model.RegimeBear:
		if side == model.SideLong {
			return t.Bear.Long
		}
		return t.Bear.Short
	default:
		return neutralProfile
	}
}
