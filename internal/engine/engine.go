// Package engine implements the per-instrument signal decision engine: a
// WARMING_UP -> READY -> LOCKED state machine evaluating a strict priority
// tree over rolling indicator and pattern state on every candle close.
package engine

import (
	"time"

	"ScalpPulse/internal/domain/models"
	"ScalpPulse/internal/domain/repository"
	"ScalpPulse/internal/indicator"
	"ScalpPulse/internal/pattern"
	"ScalpPulse/pkg/logger"
)

// Config tunes the decision engine. Percent fields are percent units
// (0.3 means 0.3%).
type Config struct {
	HistorySize      int
	Cooldown         time.Duration
	TargetPercent    float64
	StopLossPercent  float64
	MinVolumeRatio   float64
	MinConfidence    float64
	ORBWindow        time.Duration
	ProximityPercent float64
	// MomentumGapPercent is the minimum EMA9/EMA20 separation (percent of
	// price) for a tier-4 candidate; below it the market is treated as flat.
	MomentumGapPercent float64
}

// DefaultConfig mirrors the production scalping defaults.
func DefaultConfig() Config {
	return Config{
		HistorySize:      100,
		Cooldown:         5 * time.Minute,
		TargetPercent:    0.3,
		StopLossPercent:  0.2,
		MinVolumeRatio:   0.8,
		MinConfidence:    40,
		ORBWindow:          15 * time.Minute,
		ProximityPercent:   0.25,
		MomentumGapPercent: 0.1,
	}
}

// FromStrategy derives an engine config from a session's strategy config.
func FromStrategy(sc models.StrategyConfig) Config {
	cfg := DefaultConfig()
	cfg.Cooldown = sc.Cooldown()
	cfg.TargetPercent = sc.TargetPercent
	cfg.StopLossPercent = sc.StopLossPercent
	cfg.MinVolumeRatio = sc.MinVolumeRatio
	cfg.MinConfidence = sc.MinConfidence
	return cfg
}

// ORBState is the opening-range state for one instrument and trading day.
// High/Low mutate only inside the opening window; frozen once Established.
type ORBState struct {
	High        float64
	Low         float64
	Established bool
}

// State is the lifecycle phase of one instrument.
type State int

const (
	StateWarmingUp State = iota
	StateReady
	StateLocked
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "READY"
	case StateLocked:
		return "LOCKED"
	}
	return "WARMING_UP"
}

type instrumentState struct {
	history []models.Candle
	ind     *indicator.Set

	day     string
	dayOpen time.Time
	orb     ORBState

	lockedUntil time.Time
	lastStamp   time.Time
}

// Engine owns all per-instrument decision state for a single session.
// It is confined to the session's dispatch goroutine: no internal locking,
// by the single-writer discipline of the orchestrator.
type Engine struct {
	cfg         Config
	log         *logger.Logger
	metrics     repository.Metrics
	instruments map[string]*instrumentState
}

// New creates an engine with empty state.
func New(cfg Config, log *logger.Logger, m repository.Metrics) *Engine {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = DefaultConfig().HistorySize
	}
	return &Engine{
		cfg:         cfg,
		log:         log,
		metrics:     m,
		instruments: make(map[string]*instrumentState),
	}
}

// InstrumentState reports the current lifecycle phase of an instrument,
// judged at the given time.
func (e *Engine) InstrumentState(instrument string, at time.Time) State {
	st, ok := e.instruments[instrument]
	if !ok || !st.ind.Ready() {
		return StateWarmingUp
	}
	if at.Before(st.lockedUntil) {
		return StateLocked
	}
	return StateReady
}

// ORB returns the instrument's opening-range state.
func (e *Engine) ORB(instrument string) ORBState {
	if st, ok := e.instruments[instrument]; ok {
		return st.orb
	}
	return ORBState{}
}

// OnCandle absorbs one closed candle and, when all gates pass, returns an
// emitted signal. The candle timestamp is the engine's clock: lock windows
// and the opening range are judged against it, which keeps replays of the
// same sequence deterministic.
func (e *Engine) OnCandle(c models.Candle) *models.Signal {
	st := e.state(c.Instrument)

	// Out-of-order or duplicate candles are dropped, never merged.
	if !st.lastStamp.IsZero() && !c.Timestamp.After(st.lastStamp) {
		e.log.Debug("dropping out-of-order candle",
			logger.String("instrument", c.Instrument),
			logger.Any("ts", c.Timestamp))
		return nil
	}
	st.lastStamp = c.Timestamp

	e.absorb(st, c)
	return e.evaluate(st, c)
}

func (e *Engine) state(instrument string) *instrumentState {
	st, ok := e.instruments[instrument]
	if !ok {
		st = &instrumentState{ind: indicator.NewSet()}
		e.instruments[instrument] = st
	}
	return st
}

// absorb updates owned state: day rollover, bounded history, indicators and
// the opening range. Runs before any evaluation gate so state stays
// consistent while an instrument is locked.
func (e *Engine) absorb(st *instrumentState, c models.Candle) {
	day := c.Timestamp.Format("2006-01-02")
	if day != st.day {
		st.day = day
		st.dayOpen = c.Timestamp
		st.orb = ORBState{}
	}

	st.history = append(st.history, c)
	if len(st.history) > e.cfg.HistorySize {
		st.history = st.history[len(st.history)-e.cfg.HistorySize:]
	}

	st.ind.Update(c)

	if c.Timestamp.Before(st.dayOpen.Add(e.cfg.ORBWindow)) {
		if !st.orb.Established {
			if st.orb.High == 0 || c.High > st.orb.High {
				st.orb.High = c.High
			}
			if st.orb.Low == 0 || c.Low < st.orb.Low {
				st.orb.Low = c.Low
			}
		}
	} else if st.orb.High > 0 && !st.orb.Established {
		st.orb.Established = true
		e.log.Info("opening range established",
			logger.String("instrument", c.Instrument),
			logger.Float64("high", st.orb.High),
			logger.Float64("low", st.orb.Low))
	}
}

type candidate struct {
	dir  models.Direction
	tier models.Tier
}

// evaluate runs the short-circuiting decision steps. Steps before acceptance
// are pure reads over owned state; acceptance (the lock write and signal
// construction) is the single side effect.
func (e *Engine) evaluate(st *instrumentState, c models.Candle) *models.Signal {
	if !st.ind.Ready() || len(st.history) < 5 {
		return nil
	}
	if c.Timestamp.Before(st.lockedUntil) {
		return nil
	}

	snap := st.ind.Snapshot()
	window := st.history
	if len(window) > 5 {
		window = window[len(window)-5:]
	}
	verdict := pattern.Classify(window)

	volRatio := 0.0
	if snap.VolumeAvg20 > 0 {
		volRatio = c.Volume / snap.VolumeAvg20
	}

	cand, ok := e.findCandidate(st, c, snap, verdict, volRatio)
	if !ok {
		return nil
	}

	score, rsiOK, trendOK, paOK := e.scoreCandidate(st, c, snap, verdict, volRatio, cand.dir)
	if score <= e.cfg.MinConfidence || !rsiOK || !(trendOK || paOK) {
		e.log.Debug("candidate rejected",
			logger.String("instrument", c.Instrument),
			logger.String("tier", cand.tier.String()),
			logger.Float64("score", score),
			logger.Bool("rsi_ok", rsiOK))
		return nil
	}

	sig := e.accept(st, c, snap, cand, score)
	return sig
}

// findCandidate walks the priority tiers in strict order; the first match
// wins and lower tiers are never consulted.
func (e *Engine) findCandidate(st *instrumentState, c models.Candle, snap models.IndicatorSnapshot, verdict pattern.Verdict, volRatio float64) (candidate, bool) {
	// Tier 1: opening-range breakout, volume-confirmed.
	if st.orb.Established && volRatio > e.cfg.MinVolumeRatio {
		if c.Close > st.orb.High {
			return candidate{models.DirectionCall, models.TierORBBreakout}, true
		}
		if c.Close < st.orb.Low {
			return candidate{models.DirectionPut, models.TierORBBreakout}, true
		}
	}

	// Tier 2: inside-bar breakout.
	if n := len(st.history); n >= 3 {
		prev, prior := st.history[n-2], st.history[n-3]
		if pattern.IsInsideBar(prev, prior) {
			if c.Close > prev.High {
				return candidate{models.DirectionCall, models.TierInsideBarBreakout}, true
			}
			if c.Close < prev.Low {
				return candidate{models.DirectionPut, models.TierInsideBarBreakout}, true
			}
		}
	}

	// Tier 3: reversal patterns, subject to the location filter.
	if dir, ok := reversalDirection(verdict); ok && e.locationOK(c, snap) {
		return candidate{dir, models.TierReversal}, true
	}

	// Tier 4: momentum trend sustained through the current candle. A minimal
	// EMA separation is required so a flat market with barely-crossed EMAs
	// does not read as a trend.
	gap := snap.EMAFast - snap.EMASlow
	if gap < 0 {
		gap = -gap
	}
	if gap >= c.Close*e.cfg.MomentumGapPercent/100 {
		if snap.EMAFast > snap.EMASlow && snap.SuperTrendDir == models.TrendUp && c.Bullish() {
			return candidate{models.DirectionCall, models.TierMomentum}, true
		}
		if snap.EMAFast < snap.EMASlow && snap.SuperTrendDir == models.TrendDown && !c.Bullish() && c.Close != c.Open {
			return candidate{models.DirectionPut, models.TierMomentum}, true
		}
	}

	return candidate{}, false
}

func reversalDirection(v pattern.Verdict) (models.Direction, bool) {
	if v.Has(pattern.BullishEngulfing) || v.Has(pattern.Hammer) {
		return models.DirectionCall, true
	}
	if v.Has(pattern.BearishEngulfing) || v.Has(pattern.ShootingStar) {
		return models.DirectionPut, true
	}
	return "", false
}

// locationOK is the reversal guardrail: the close must sit near VWAP or the
// EMA pair, and never strictly between EMA9 and EMA20 (the no-man's-land).
func (e *Engine) locationOK(c models.Candle, snap models.IndicatorSnapshot) bool {
	lo, hi := snap.EMAFast, snap.EMASlow
	if lo > hi {
		lo, hi = hi, lo
	}
	if c.Close > lo && c.Close < hi {
		return false
	}

	band := c.Close * e.cfg.ProximityPercent / 100
	near := func(level float64) bool {
		if level <= 0 {
			return false
		}
		d := c.Close - level
		if d < 0 {
			d = -d
		}
		return d <= band
	}
	return near(snap.VWAP) || near(snap.EMAFast) || near(snap.EMASlow)
}

// scoreCandidate applies the 0-100 confidence grid: 40 trend alignment,
// 20 RSI headroom, 20 price-action confirmation, 20 volume confirmation.
func (e *Engine) scoreCandidate(st *instrumentState, c models.Candle, snap models.IndicatorSnapshot, verdict pattern.Verdict, volRatio float64, dir models.Direction) (score float64, rsiOK, trendOK, paOK bool) {
	call := dir == models.DirectionCall

	if call {
		trendOK = snap.EMAFast > snap.EMASlow && snap.SuperTrendDir == models.TrendUp
		rsiOK = snap.RSI < 70
	} else {
		trendOK = snap.EMAFast < snap.EMASlow && snap.SuperTrendDir == models.TrendDown
		rsiOK = snap.RSI > 30
	}
	if trendOK {
		score += 40
	}
	if rsiOK {
		score += 20
	}

	if n := len(st.history); n >= 2 {
		prev := st.history[n-2]
		if call {
			paOK = c.Close > prev.High || verdict.Has(pattern.StrongBull) ||
				verdict.Has(pattern.BullishEngulfing) || verdict.Has(pattern.Hammer)
		} else {
			paOK = c.Close < prev.Low || verdict.Has(pattern.StrongBear) ||
				verdict.Has(pattern.BearishEngulfing) || verdict.Has(pattern.ShootingStar)
		}
	}
	if paOK {
		score += 20
	}

	if volRatio > e.cfg.MinVolumeRatio {
		score += 20
	}
	return score, rsiOK, trendOK, paOK
}

// accept is the only mutating step: arm the trade lock and build the signal.
func (e *Engine) accept(st *instrumentState, c models.Candle, snap models.IndicatorSnapshot, cand candidate, score float64) *models.Signal {
	entry := c.Close
	var sl, target float64
	if cand.dir == models.DirectionCall {
		sl = entry * (1 - e.cfg.StopLossPercent/100)
		target = entry * (1 + e.cfg.TargetPercent/100)
	} else {
		sl = entry * (1 + e.cfg.StopLossPercent/100)
		target = entry * (1 - e.cfg.TargetPercent/100)
	}

	st.lockedUntil = c.Timestamp.Add(e.cfg.Cooldown)

	sig := &models.Signal{
		Instrument: c.Instrument,
		Direction:  cand.dir,
		Tier:       cand.tier,
		Confidence: score,
		Entry:      entry,
		StopLoss:   sl,
		Target:     target,
		ATR:        snap.ATR,
		Timestamp:  c.Timestamp,
	}

	e.log.Info("signal emitted",
		logger.String("instrument", sig.Instrument),
		logger.String("action", sig.Action()),
		logger.String("tier", sig.Tier.String()),
		logger.Float64("confidence", sig.Confidence),
		logger.Float64("entry", sig.Entry))
	if e.metrics != nil {
		e.metrics.RecordSignal(string(sig.Direction), sig.Tier.String())
	}
	return sig
}
