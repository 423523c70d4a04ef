// Package pattern provides pure geometric candlestick classifiers over a
// small window of closed candles. Classifiers are deterministic and hold no
// state; zero-range candles degrade to "no pattern" rather than failing.
package pattern

import "ScalpPulse/internal/domain/models"

// Tag is one recognized candlestick formation.
type Tag string

const (
	Doji             Tag = "DOJI"
	Hammer           Tag = "HAMMER"
	ShootingStar     Tag = "SHOOTING_STAR"
	BullishEngulfing Tag = "BULLISH_ENGULFING"
	BearishEngulfing Tag = "BEARISH_ENGULFING"
	InsideBar        Tag = "INSIDE_BAR"
	RangeCompression Tag = "RANGE_COMPRESSION"
	StrongBull       Tag = "STRONG_BULL"
	StrongBear       Tag = "STRONG_BEAR"
)

const (
	dojiBodyMax      = 0.10 // body <= 10% of range
	strongBodyMin    = 0.60 // body > 60% of range
	strongCloseZone  = 0.10 // close within top/bottom 10% of range
	wickBodyMultiple = 2.0  // opposite wick > 2x body
	compressionPct   = 0.25 // range below 25th percentile of the lookback
)

// Verdict is the transient classification result for one candle window.
type Verdict struct {
	Tags      []Tag
	BodyRatio float64 // body / range of the newest candle, 0 on zero range
	WickRatio float64 // dominant wick / range of the newest candle
}

// Has reports whether the verdict carries the given tag.
func (v Verdict) Has(t Tag) bool {
	for _, tag := range v.Tags {
		if tag == t {
			return true
		}
	}
	return false
}

// Classify inspects the last candles of the window (newest last) and returns
// every matching tag. Windows shorter than two candles only yield
// single-candle patterns.
func Classify(window []models.Candle) Verdict {
	n := len(window)
	if n == 0 {
		return Verdict{}
	}

	cur := window[n-1]
	v := Verdict{}

	rng := cur.Range()
	if rng > 0 {
		v.BodyRatio = cur.Body() / rng
		upperWick := cur.High - max2(cur.Open, cur.Close)
		lowerWick := min2(cur.Open, cur.Close) - cur.Low
		v.WickRatio = max2(upperWick, lowerWick) / rng
	}

	if isDoji(cur) {
		v.Tags = append(v.Tags, Doji)
	}
	if isHammer(cur) {
		v.Tags = append(v.Tags, Hammer)
	}
	if isShootingStar(cur) {
		v.Tags = append(v.Tags, ShootingStar)
	}
	if t, ok := strongCandle(cur); ok {
		v.Tags = append(v.Tags, t)
	}

	if n >= 2 {
		prev := window[n-2]
		if t, ok := engulfing(cur, prev); ok {
			v.Tags = append(v.Tags, t)
		}
		if isInsideBar(cur, prev) {
			v.Tags = append(v.Tags, InsideBar)
		}
	}
	if n >= 4 && isRangeCompression(window) {
		v.Tags = append(v.Tags, RangeCompression)
	}

	return v
}

// IsInsideBar exposes the two-candle inside-bar test for callers that track
// the prior candle separately (tier-2 breakout detection).
func IsInsideBar(cur, prev models.Candle) bool { return isInsideBar(cur, prev) }

func isDoji(c models.Candle) bool {
	rng := c.Range()
	if rng <= 0 {
		return false
	}
	return c.Body() <= rng*dojiBodyMax
}

// isHammer: body sits in the upper third of the range, lower wick dwarfs it.
func isHammer(c models.Candle) bool {
	rng := c.Range()
	body := c.Body()
	if rng <= 0 || body <= 0 {
		return false
	}
	bodyLow := min2(c.Open, c.Close)
	if bodyLow-c.Low < rng/3*2 { // body confined to upper third
		return false
	}
	lowerWick := bodyLow - c.Low
	return lowerWick > body*wickBodyMultiple
}

// isShootingStar: body in the lower third, upper wick dwarfs it.
func isShootingStar(c models.Candle) bool {
	rng := c.Range()
	body := c.Body()
	if rng <= 0 || body <= 0 {
		return false
	}
	bodyHigh := max2(c.Open, c.Close)
	if c.High-bodyHigh < rng/3*2 {
		return false
	}
	upperWick := c.High - bodyHigh
	return upperWick > body*wickBodyMultiple
}

// engulfing: current body strictly contains the previous body, opposite color.
func engulfing(cur, prev models.Candle) (Tag, bool) {
	curLow, curHigh := min2(cur.Open, cur.Close), max2(cur.Open, cur.Close)
	prevLow, prevHigh := min2(prev.Open, prev.Close), max2(prev.Open, prev.Close)
	if !(curLow < prevLow && curHigh > prevHigh) {
		return "", false
	}
	if cur.Bullish() && prev.Close < prev.Open {
		return BullishEngulfing, true
	}
	if !cur.Bullish() && cur.Close != cur.Open && prev.Bullish() {
		return BearishEngulfing, true
	}
	return "", false
}

func isInsideBar(cur, prev models.Candle) bool {
	return cur.High <= prev.High && cur.Low >= prev.Low
}

// isRangeCompression: the newest candle's range sits below the lower quartile
// of the window's ranges (volatility squeeze).
func isRangeCompression(window []models.Candle) bool {
	cur := window[len(window)-1].Range()
	if cur <= 0 {
		return false
	}
	below := 0
	for _, c := range window[:len(window)-1] {
		if cur < c.Range() {
			below++
		}
	}
	return float64(below) >= float64(len(window)-1)*(1-compressionPct)
}

func strongCandle(c models.Candle) (Tag, bool) {
	rng := c.Range()
	if rng <= 0 {
		return "", false
	}
	if c.Body() <= rng*strongBodyMin {
		return "", false
	}
	if c.Bullish() && c.High-c.Close <= rng*strongCloseZone {
		return StrongBull, true
	}
	if !c.Bullish() && c.Close-c.Low <= rng*strongCloseZone {
		return StrongBear, true
	}
	return "", false
}

func min2(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func max2(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
