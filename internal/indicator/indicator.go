// Package indicator maintains rolling technical state for one instrument,
// updated incrementally on each closed candle. Past candles are never
// edited; VWAP resets at the start of each trading day.
package indicator

import (
	"time"

	"ScalpPulse/internal/domain/models"
)

const (
	emaFastPeriod   = 9
	emaSlowPeriod   = 20
	rsiPeriod       = 14
	atrPeriod       = 10
	stMultiplier    = 3.0
	macdFastPeriod  = 12
	macdSlowPeriod  = 26
	macdSigPeriod   = 9
	volumeAvgPeriod = 20

	// warmupCount gates Ready(); the slowest component is the MACD slow EMA.
	warmupCount = macdSlowPeriod
)

type ema struct {
	k      float64
	value  float64
	seeded bool
}

func newEMA(period int) *ema {
	return &ema{k: 2.0 / float64(period+1)}
}

func (e *ema) update(v float64) float64 {
	if !e.seeded {
		e.value = v
		e.seeded = true
		return e.value
	}
	e.value = v*e.k + e.value*(1-e.k)
	return e.value
}

// Set is the full rolling indicator state for a single instrument.
type Set struct {
	count int

	emaFast *ema
	emaSlow *ema

	macdFast *ema
	macdSlow *ema
	macdSig  *ema

	// RSI, Wilder smoothing.
	rsiAvgGain  float64
	rsiAvgLoss  float64
	rsiWarm     int
	rsiValue    float64
	prevClose   float64
	havePrev    bool

	// ATR(10), Wilder smoothing.
	atrValue float64
	atrWarm  int
	trSum    float64

	// SuperTrend final bands with flip hysteresis.
	stUpper float64
	stLower float64
	stDir   models.TrendDirection
	stInit  bool

	// Session VWAP.
	vwapDay      string
	vwapValSum   float64 // sum(price*volume)
	vwapVolSum   float64

	// Rolling 20-period volume average.
	volumes []float64
	volSum  float64
}

// NewSet creates empty indicator state.
func NewSet() *Set {
	return &Set{
		emaFast:  newEMA(emaFastPeriod),
		emaSlow:  newEMA(emaSlowPeriod),
		macdFast: newEMA(macdFastPeriod),
		macdSlow: newEMA(macdSlowPeriod),
		macdSig:  newEMA(macdSigPeriod),
		stDir:    models.TrendUp,
	}
}

// Ready reports whether enough candles have been seen for usable values.
func (s *Set) Ready() bool { return s.count >= warmupCount }

// Count returns how many candles have been absorbed.
func (s *Set) Count() int { return s.count }

// Update absorbs one closed candle. Candles must arrive in time order; the
// caller (the decision engine) is responsible for dropping out-of-order
// duplicates before calling.
func (s *Set) Update(c models.Candle) {
	s.count++

	s.emaFast.update(c.Close)
	s.emaSlow.update(c.Close)
	macd := s.macdFast.update(c.Close) - s.macdSlow.update(c.Close)
	s.macdSig.update(macd)

	s.updateRSI(c.Close)
	s.updateVWAP(c)
	tr := s.trueRange(c)
	s.updateATR(tr)
	s.updateSuperTrend(c)
	s.updateVolume(c.Volume)

	s.prevClose = c.Close
	s.havePrev = true
}

// Snapshot returns the current derived values. Meaningful only after Ready.
func (s *Set) Snapshot() models.IndicatorSnapshot {
	vwap := 0.0
	if s.vwapVolSum > 0 {
		vwap = s.vwapValSum / s.vwapVolSum
	}
	macd := s.macdFast.value - s.macdSlow.value
	st := s.stLower
	if s.stDir == models.TrendDown {
		st = s.stUpper
	}
	return models.IndicatorSnapshot{
		EMAFast:       s.emaFast.value,
		EMASlow:       s.emaSlow.value,
		VWAP:          vwap,
		RSI:           s.rsiValue,
		ATR:           s.atrValue,
		SuperTrend:    st,
		SuperTrendDir: s.stDir,
		MACD:          macd,
		MACDSignal:    s.macdSig.value,
		VolumeAvg20:   s.volumeAvg(),
	}
}

func (s *Set) updateRSI(close float64) {
	if !s.havePrev {
		s.rsiValue = 50
		return
	}
	diff := close - s.prevClose
	gain, loss := 0.0, 0.0
	if diff > 0 {
		gain = diff
	} else {
		loss = -diff
	}

	if s.rsiWarm < rsiPeriod {
		s.rsiAvgGain += gain
		s.rsiAvgLoss += loss
		s.rsiWarm++
		if s.rsiWarm == rsiPeriod {
			s.rsiAvgGain /= rsiPeriod
			s.rsiAvgLoss /= rsiPeriod
			s.rsiValue = rsiFrom(s.rsiAvgGain, s.rsiAvgLoss)
		}
		return
	}

	s.rsiAvgGain = (s.rsiAvgGain*(rsiPeriod-1) + gain) / rsiPeriod
	s.rsiAvgLoss = (s.rsiAvgLoss*(rsiPeriod-1) + loss) / rsiPeriod
	s.rsiValue = rsiFrom(s.rsiAvgGain, s.rsiAvgLoss)
}

func rsiFrom(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

func (s *Set) updateVWAP(c models.Candle) {
	day := tradingDay(c.Timestamp)
	if day != s.vwapDay {
		s.vwapDay = day
		s.vwapValSum = 0
		s.vwapVolSum = 0
	}
	typical := (c.High + c.Low + c.Close) / 3
	s.vwapValSum += typical * c.Volume
	s.vwapVolSum += c.Volume
}

func (s *Set) trueRange(c models.Candle) float64 {
	tr := c.High - c.Low
	if s.havePrev {
		if v := abs(c.High - s.prevClose); v > tr {
			tr = v
		}
		if v := abs(c.Low - s.prevClose); v > tr {
			tr = v
		}
	}
	return tr
}

func (s *Set) updateATR(tr float64) {
	if s.atrWarm < atrPeriod {
		s.trSum += tr
		s.atrWarm++
		s.atrValue = s.trSum / float64(s.atrWarm)
		return
	}
	s.atrValue = (s.atrValue*(atrPeriod-1) + tr) / atrPeriod
}

// updateSuperTrend recomputes final bands and applies flip hysteresis: the
// direction only changes when close crosses the opposite final band.
func (s *Set) updateSuperTrend(c models.Candle) {
	mid := (c.High + c.Low) / 2
	basicUpper := mid + stMultiplier*s.atrValue
	basicLower := mid - stMultiplier*s.atrValue

	if !s.stInit {
		s.stUpper = basicUpper
		s.stLower = basicLower
		if c.Close < basicLower {
			s.stDir = models.TrendDown
		} else {
			s.stDir = models.TrendUp
		}
		s.stInit = true
		return
	}

	// Band ratcheting: bands only tighten while price respects them.
	if basicUpper < s.stUpper || s.prevClose > s.stUpper {
		s.stUpper = basicUpper
	}
	if basicLower > s.stLower || s.prevClose < s.stLower {
		s.stLower = basicLower
	}

	switch s.stDir {
	case models.TrendUp:
		if c.Close < s.stLower {
			s.stDir = models.TrendDown
		}
	case models.TrendDown:
		if c.Close > s.stUpper {
			s.stDir = models.TrendUp
		}
	}
}

func (s *Set) updateVolume(v float64) {
	s.volumes = append(s.volumes, v)
	s.volSum += v
	if len(s.volumes) > volumeAvgPeriod {
		s.volSum -= s.volumes[0]
		s.volumes = s.volumes[1:]
	}
}

func (s *Set) volumeAvg() float64 {
	if len(s.volumes) == 0 {
		return 0
	}
	return s.volSum / float64(len(s.volumes))
}

func tradingDay(t time.Time) string { return t.Format("2006-01-02") }

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
