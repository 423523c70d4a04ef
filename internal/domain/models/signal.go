package models

import "time"

// Direction is the option side a signal trades.
type Direction string

const (
	DirectionCall Direction = "CALL"
	DirectionPut  Direction = "PUT"
)

// Tier identifies which rung of the priority tree produced a signal.
// Lower numbers outrank higher ones; exactly one tier contributes per signal.
type Tier int

const (
	TierORBBreakout Tier = iota + 1
	TierInsideBarBreakout
	TierReversal
	TierMomentum
)

func (t Tier) String() string {
	switch t {
	case TierORBBreakout:
		return "ORB_BREAKOUT"
	case TierInsideBarBreakout:
		return "INSIDE_BAR_BREAKOUT"
	case TierReversal:
		return "REVERSAL"
	case TierMomentum:
		return "MOMENTUM"
	}
	return "UNKNOWN"
}

// Signal is the engine's terminal output: a discrete BUY_CALL/BUY_PUT call
// with protective levels attached. Immutable; emitted at most once per
// instrument per lock window.
type Signal struct {
	Instrument string    `json:"instrument"`
	Direction  Direction `json:"direction"`
	Tier       Tier      `json:"tier"`
	Confidence float64   `json:"confidence"`
	Entry      float64   `json:"entry"`
	StopLoss   float64   `json:"stop_loss"`
	Target     float64   `json:"target"`
	ATR        float64   `json:"atr"`
	Timestamp  time.Time `json:"timestamp"`
}

// Action renders the signal as the outbound action string consumed by
// downstream order routers.
func (s Signal) Action() string {
	if s.Direction == DirectionCall {
		return "BUY_CALL"
	}
	return "BUY_PUT"
}
