package models

import "time"

// Candle is a closed OHLCV bar for one instrument. Immutable once closed.
type Candle struct {
	Instrument string    `json:"instrument"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
	Volume     float64   `json:"volume"`
	Timestamp  time.Time `json:"timestamp"`
	Interval   string    `json:"interval"` // "1m"
}

// Range returns high-low. Zero-range candles are legal (illiquid strikes).
func (c Candle) Range() float64 { return c.High - c.Low }

// Body returns the absolute open-close distance.
func (c Candle) Body() float64 {
	if c.Close >= c.Open {
		return c.Close - c.Open
	}
	return c.Open - c.Close
}

// Bullish reports whether the candle closed above its open.
func (c Candle) Bullish() bool { return c.Close > c.Open }

// Tick is a last-traded-price update for one instrument.
type Tick struct {
	Instrument string    `json:"instrument"`
	LTP        float64   `json:"ltp"`
	Timestamp  time.Time `json:"timestamp"`
}

// MarketEvent is one typed message delivered by the feed client.
// Exactly one of Tick or Candle is set.
type MarketEvent struct {
	Instrument string
	Tick       *Tick
	Candle     *Candle
}

// TrendDirection is the SuperTrend regime.
type TrendDirection int

const (
	TrendUp TrendDirection = iota + 1
	TrendDown
)

func (d TrendDirection) String() string {
	if d == TrendUp {
		return "UP"
	}
	return "DOWN"
}

// IndicatorSnapshot is the derived technical state for one instrument,
// recomputed on each candle close. Owned by the decision engine; never shared.
type IndicatorSnapshot struct {
	EMAFast        float64
	EMASlow        float64
	VWAP           float64
	RSI            float64
	ATR            float64
	SuperTrend     float64
	SuperTrendDir  TrendDirection
	MACD           float64
	MACDSignal     float64
	VolumeAvg20    float64
}
