package indicator

import (
	"math"
	"testing"
	"time"

	"ScalpPulse/internal/domain/models"
)

func mkCandle(i int, close, volume float64) models.Candle {
	base := time.Date(2026, 1, 5, 9, 15, 0, 0, time.UTC)
	return models.Candle{
		Instrument: "NSE_INDEX|Nifty Bank",
		Open:       close - 1,
		High:       close + 2,
		Low:        close - 3,
		Close:      close,
		Volume:     volume,
		Timestamp:  base.Add(time.Duration(i) * time.Minute),
		Interval:   "1m",
	}
}

func feedFlat(s *Set, n int, close, volume float64) {
	for i := 0; i < n; i++ {
		s.Update(mkCandle(i, close, volume))
	}
}

func TestReadyRequiresWarmup(t *testing.T) {
	s := NewSet()
	for i := 0; i < warmupCount-1; i++ {
		s.Update(mkCandle(i, 100, 1000))
		if s.Ready() {
			t.Fatalf("ready after %d candles, warmup is %d", i+1, warmupCount)
		}
	}
	s.Update(mkCandle(warmupCount-1, 100, 1000))
	if !s.Ready() {
		t.Fatalf("not ready after %d candles", warmupCount)
	}
}

func TestEMAOrderingInUptrend(t *testing.T) {
	s := NewSet()
	price := 100.0
	for i := 0; i < 60; i++ {
		price += 1.0
		s.Update(mkCandle(i, price, 1000))
	}
	snap := s.Snapshot()
	if snap.EMAFast <= snap.EMASlow {
		t.Fatalf("uptrend must rank EMA9 above EMA20: fast=%f slow=%f", snap.EMAFast, snap.EMASlow)
	}
	if snap.SuperTrendDir != models.TrendUp {
		t.Fatalf("uptrend SuperTrend direction = %s", snap.SuperTrendDir)
	}
	if snap.MACD <= 0 {
		t.Fatalf("uptrend MACD should be positive, got %f", snap.MACD)
	}
}

func TestRSIBounds(t *testing.T) {
	s := NewSet()
	price := 100.0
	for i := 0; i < 40; i++ {
		price += 2
		s.Update(mkCandle(i, price, 1000))
	}
	up := s.Snapshot().RSI
	if up < 70 || up > 100 {
		t.Fatalf("pure uptrend RSI = %f, want >= 70", up)
	}

	s = NewSet()
	price = 500.0
	for i := 0; i < 40; i++ {
		price -= 2
		s.Update(mkCandle(i, price, 1000))
	}
	down := s.Snapshot().RSI
	if down > 30 || down < 0 {
		t.Fatalf("pure downtrend RSI = %f, want <= 30", down)
	}
}

func TestVWAPFlatSeries(t *testing.T) {
	s := NewSet()
	feedFlat(s, 30, 100, 1000)
	snap := s.Snapshot()
	// typical price is (high+low+close)/3 = (102+97+100)/3
	want := (102.0 + 97.0 + 100.0) / 3
	if math.Abs(snap.VWAP-want) > 1e-9 {
		t.Fatalf("VWAP = %f, want %f", snap.VWAP, want)
	}
}

func TestVWAPResetsPerTradingDay(t *testing.T) {
	s := NewSet()
	day1 := time.Date(2026, 1, 5, 9, 15, 0, 0, time.UTC)
	day2 := time.Date(2026, 1, 6, 9, 15, 0, 0, time.UTC)

	c := mkCandle(0, 100, 1000)
	c.Timestamp = day1
	s.Update(c)

	c2 := mkCandle(0, 200, 1000)
	c2.Timestamp = day2
	s.Update(c2)

	want := (202.0 + 197.0 + 200.0) / 3
	if math.Abs(s.Snapshot().VWAP-want) > 1e-9 {
		t.Fatalf("day-2 VWAP carries day-1 accumulation: got %f want %f", s.Snapshot().VWAP, want)
	}
}

func TestSuperTrendFlipHysteresis(t *testing.T) {
	s := NewSet()
	price := 100.0
	for i := 0; i < 30; i++ {
		price += 1
		s.Update(mkCandle(i, price, 1000))
	}
	if s.Snapshot().SuperTrendDir != models.TrendUp {
		t.Fatalf("expected UP after sustained rise")
	}

	// A mild dip that stays above the lower band must not flip direction.
	s.Update(mkCandle(30, price-1, 1000))
	if s.Snapshot().SuperTrendDir != models.TrendUp {
		t.Fatalf("mild pullback flipped SuperTrend")
	}

	// A collapse through the band must flip.
	for i := 31; i < 36; i++ {
		price -= 12
		s.Update(mkCandle(i, price, 1000))
	}
	if s.Snapshot().SuperTrendDir != models.TrendDown {
		t.Fatalf("collapse did not flip SuperTrend to DOWN")
	}
}

func TestVolumeAverageWindow(t *testing.T) {
	s := NewSet()
	for i := 0; i < 20; i++ {
		s.Update(mkCandle(i, 100, 1000))
	}
	if got := s.Snapshot().VolumeAvg20; math.Abs(got-1000) > 1e-9 {
		t.Fatalf("flat volume average = %f", got)
	}
	// 20 more candles at double volume fully replace the window.
	for i := 20; i < 40; i++ {
		s.Update(mkCandle(i, 100, 2000))
	}
	if got := s.Snapshot().VolumeAvg20; math.Abs(got-2000) > 1e-9 {
		t.Fatalf("window did not roll: avg = %f", got)
	}
}
