package engine

import (
	"testing"
	"time"

	"ScalpPulse/internal/domain/models"
	"ScalpPulse/internal/indicator"
	"ScalpPulse/pkg/logger"
)

const testInstrument = "NSE_INDEX|Nifty Bank"

var sessionOpen = time.Date(2026, 1, 5, 9, 15, 0, 0, time.UTC)

func mk(i int, o, h, l, c, v float64) models.Candle {
	return models.Candle{
		Instrument: testInstrument,
		Open:       o, High: h, Low: l, Close: c,
		Volume:    v,
		Timestamp: sessionOpen.Add(time.Duration(i) * time.Minute),
		Interval:  "1m",
	}
}

// oscillating base: sideways chop around 100 that warms up the indicators
// and pins the opening range near 100.8 / 99.2.
func chopCandles(n int, volume float64) []models.Candle {
	candles := make([]models.Candle, 0, n)
	for i := 0; i < n; i++ {
		c := 100.3
		if i%2 == 1 {
			c = 99.7
		}
		candles = append(candles, mk(i, 100, c+0.5, c-0.5, c, volume))
	}
	return candles
}

func feed(t *testing.T, e *Engine, candles []models.Candle) []models.Signal {
	t.Helper()
	var out []models.Signal
	for _, c := range candles {
		if sig := e.OnCandle(c); sig != nil {
			out = append(out, *sig)
		}
	}
	return out
}

func newTestEngine(cfg Config) *Engine {
	return New(cfg, logger.Nop(), nil)
}

func TestWarmupSuppressesEvaluation(t *testing.T) {
	e := newTestEngine(DefaultConfig())
	base := chopCandles(10, 1000)
	if got := feed(t, e, base); len(got) != 0 {
		t.Fatalf("signals before warm-up: %v", got)
	}
	if st := e.InstrumentState(testInstrument, base[9].Timestamp); st != StateWarmingUp {
		t.Fatalf("state = %s, want WARMING_UP", st)
	}
}

func TestORBBreakoutCall(t *testing.T) {
	// Scenario: sideways chop establishes the opening range, then a
	// volume-confirmed close above it fires a tier-1 CALL.
	e := newTestEngine(DefaultConfig())
	base := chopCandles(40, 1000)
	if got := feed(t, e, base); len(got) != 0 {
		t.Fatalf("unexpected signals during chop: %v", got)
	}

	orb := e.ORB(testInstrument)
	if !orb.Established {
		t.Fatalf("opening range not established after %d minutes", 40)
	}

	breakout := mk(40, 100.3, 102.1, 100.2, 102, 1500)
	sig := e.OnCandle(breakout)
	if sig == nil {
		t.Fatalf("expected tier-1 signal")
	}
	if sig.Direction != models.DirectionCall {
		t.Fatalf("direction = %s, want CALL", sig.Direction)
	}
	if sig.Tier != models.TierORBBreakout {
		t.Fatalf("tier = %s, want ORB_BREAKOUT", sig.Tier)
	}
	if sig.Confidence < 80 {
		t.Fatalf("confidence = %f, want >= 80", sig.Confidence)
	}
	if sig.StopLoss >= sig.Entry || sig.Target <= sig.Entry {
		t.Fatalf("CALL levels inverted: sl=%f entry=%f target=%f", sig.StopLoss, sig.Entry, sig.Target)
	}
	if st := e.InstrumentState(testInstrument, breakout.Timestamp.Add(time.Minute)); st != StateLocked {
		t.Fatalf("state after emission = %s, want LOCKED", st)
	}
}

func TestTradeLockCooldown(t *testing.T) {
	cfg := DefaultConfig()
	e := newTestEngine(cfg)
	feed(t, e, chopCandles(40, 1000))

	first := e.OnCandle(mk(40, 100.3, 102.1, 100.2, 102, 1500))
	if first == nil {
		t.Fatalf("expected first signal")
	}

	// Keep feeding ever-stronger breakouts inside the cooldown window.
	price := 102.0
	var signals []models.Signal
	for i := 41; i < 60; i++ {
		price += 0.5
		if sig := e.OnCandle(mk(i, price-0.5, price+0.1, price-0.6, price, 1500)); sig != nil {
			signals = append(signals, *sig)
		}
	}
	for _, sig := range signals {
		if gap := sig.Timestamp.Sub(first.Timestamp); gap < cfg.Cooldown {
			t.Fatalf("signal %s only %s after the first, cooldown is %s", sig.Timestamp, gap, cfg.Cooldown)
		}
	}
}

func TestORBFrozenAfterEstablished(t *testing.T) {
	e := newTestEngine(DefaultConfig())
	feed(t, e, chopCandles(40, 1000))
	before := e.ORB(testInstrument)
	if !before.Established {
		t.Fatalf("range not established")
	}

	// Candles far outside the range must not move it.
	e.OnCandle(mk(40, 100, 140, 60, 100, 1000))
	after := e.ORB(testInstrument)
	if after.High != before.High || after.Low != before.Low || !after.Established {
		t.Fatalf("established range mutated: before=%+v after=%+v", before, after)
	}
}

func TestRSIOverboughtRejectsMomentum(t *testing.T) {
	// Scenario: structurally valid bullish momentum but RSI pinned at the
	// top. The RSI confirmation gate must reject every candidate.
	e := newTestEngine(DefaultConfig())
	price := 100.0
	volume := 2000.0
	for i := 0; i < 45; i++ {
		open := price
		price += 5
		volume *= 0.97 // fading volume keeps tier-1 out of play
		if sig := e.OnCandle(mk(i, open, price+1, open-1, price, volume)); sig != nil {
			t.Fatalf("overbought uptrend emitted %s at candle %d (confidence %f)", sig.Action(), i, sig.Confidence)
		}
	}
}

func TestOutOfOrderCandlesDropped(t *testing.T) {
	e := newTestEngine(DefaultConfig())
	base := chopCandles(40, 1000)
	feed(t, e, base)

	// Replaying an old candle must not corrupt history or emit.
	if sig := e.OnCandle(base[10]); sig != nil {
		t.Fatalf("stale duplicate emitted a signal")
	}
	breakout := mk(40, 100.3, 102.1, 100.2, 102, 1500)
	if sig := e.OnCandle(breakout); sig == nil {
		t.Fatalf("fresh candle after stale duplicate should still evaluate")
	}
}

// downCandles builds a steady decline with fading volume, used by the
// location-filter tests.
func downCandles(n int, start float64) []models.Candle {
	candles := make([]models.Candle, 0, n)
	price := start
	volume := 2000.0
	for i := 0; i < n; i++ {
		open := price
		price -= 0.7
		volume *= 0.97
		candles = append(candles, mk(i, open, open+0.3, price-0.3, price, volume))
	}
	return candles
}

func hammerAt(i int, close float64, volume float64) models.Candle {
	return mk(i, close-0.2, close+0.1, close-5, close, volume)
}

func TestLocationFilterRejectsNoMansLand(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinConfidence = 30
	base := downCandles(40, 130)

	// Mirror the engine's indicator state to place the reversal candle
	// exactly between EMA9 and EMA20.
	mirror := indicator.NewSet()
	for _, c := range base {
		mirror.Update(c)
	}
	snap := mirror.Snapshot()
	if snap.EMAFast >= snap.EMASlow {
		t.Fatalf("downtrend should rank EMA9 below EMA20")
	}
	mid := (snap.EMAFast + snap.EMASlow) / 2

	e := newTestEngine(cfg)
	feed(t, e, base)
	if sig := e.OnCandle(hammerAt(40, mid, 500)); sig != nil {
		t.Fatalf("reversal inside the EMA band emitted %s", sig.Action())
	}
}

func TestLocationFilterAcceptsNearEMA(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinConfidence = 30
	base := downCandles(40, 130)

	mirror := indicator.NewSet()
	for _, c := range base {
		mirror.Update(c)
	}
	snap := mirror.Snapshot()
	close := snap.EMAFast - 0.1 // just below the fast EMA, outside the band

	e := newTestEngine(cfg)
	feed(t, e, base)
	sig := e.OnCandle(hammerAt(40, close, 500))
	if sig == nil {
		t.Fatalf("reversal near EMA9 should pass the location filter")
	}
	if sig.Tier != models.TierReversal {
		t.Fatalf("tier = %s, want REVERSAL", sig.Tier)
	}
	if sig.Direction != models.DirectionCall {
		t.Fatalf("hammer reversal direction = %s, want CALL", sig.Direction)
	}
}

func TestInsideBarBreakoutFiresTier2(t *testing.T) {
	// A mother bar and an inside bar form within the opening range; the
	// breakout closes above the inside bar's high but below the range high,
	// so only the inside-bar tier can claim it.
	e := newTestEngine(DefaultConfig())
	base := chopCandles(40, 1000)
	base = append(base,
		mk(40, 100, 100.6, 99.6, 100.2, 1000),   // mother bar
		mk(41, 100.2, 100.4, 99.9, 100.1, 1000), // inside bar
	)
	if got := feed(t, e, base); len(got) != 0 {
		t.Fatalf("unexpected signals before breakout: %v", got)
	}

	breakout := mk(42, 100.1, 100.75, 100, 100.7, 1200)
	sig := e.OnCandle(breakout)
	if sig == nil {
		t.Fatalf("expected inside-bar breakout signal")
	}
	if sig.Tier != models.TierInsideBarBreakout {
		t.Fatalf("tier = %s, want INSIDE_BAR_BREAKOUT", sig.Tier)
	}
	if sig.Direction != models.DirectionCall {
		t.Fatalf("direction = %s, want CALL", sig.Direction)
	}
	if orb := e.ORB(testInstrument); breakout.Close >= orb.High {
		t.Fatalf("breakout close %f reached the range high %f; scenario no longer isolates tier 2",
			breakout.Close, orb.High)
	}
}

func TestORBBreakoutOutranksInsideBar(t *testing.T) {
	// The breakout candle clears both the inside bar's high and the opening
	// range high; the higher tier must claim it.
	e := newTestEngine(DefaultConfig())
	base := chopCandles(40, 1000)
	base = append(base,
		mk(40, 100, 100.6, 99.6, 100.2, 1000),
		mk(41, 100.2, 100.4, 99.9, 100.1, 1000),
	)
	if got := feed(t, e, base); len(got) != 0 {
		t.Fatalf("unexpected signals before breakout: %v", got)
	}

	breakout := mk(42, 100.1, 102.1, 100, 102, 1500)
	sig := e.OnCandle(breakout)
	if sig == nil {
		t.Fatalf("expected breakout signal")
	}
	if sig.Tier != models.TierORBBreakout {
		t.Fatalf("tier = %s, want ORB_BREAKOUT", sig.Tier)
	}
	if sig.Direction != models.DirectionCall {
		t.Fatalf("direction = %s, want CALL", sig.Direction)
	}
}
