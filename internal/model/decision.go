package model

// Regime is the coarse-timeframe market classification used to bias risk
// and filter opposite-direction trades.
type Regime string

const (
	RegimeBull    Regime = "BULL"
	RegimeBear    Regime = "BEAR"
	RegimeNeutral Regime = "NEUTRAL"
)

// Action is what the gating engine authorizes for the current candle.
type Action string

const (
	ActionHold      Action = "HOLD"
	ActionOpenLong  Action = "OPEN_LONG"
	ActionOpenShort Action = "OPEN_SHORT"
	ActionClose     Action = "CLOSE"
)

// Decision is the gating engine's output for one cycle: at most one
// action, with sizing and protective prices filled in for opens.
//
// Follow is non-empty only when Action is CLOSE and the regime favors the
// opposite side: the caller closes first, then opens Follow immediately.
type Decision struct {
	Action Action
	Follow Action // OPEN_LONG / OPEN_SHORT after a CLOSE, or empty

	Units      int64
	StopLoss   float64
	TakeProfit float64

	// RiskAmount and RewardRatio are the risk parameters the sizing was
	// derived from, kept for journaling.
	RiskAmount  float64
	RewardRatio float64

	Reason string
}

// IsHold reports whether the decision authorizes no action.
func (d *Decision) IsHold() bool { return d.Action == ActionHold }
