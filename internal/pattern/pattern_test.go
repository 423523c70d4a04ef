package pattern

import (
	"testing"
	"time"

	"ScalpPulse/internal/domain/models"
)

func candle(o, h, l, c float64) models.Candle {
	return models.Candle{
		Instrument: "NSE_INDEX|Nifty Bank",
		Open:       o, High: h, Low: l, Close: c,
		Volume:    1000,
		Timestamp: time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC),
		Interval:  "1m",
	}
}

func TestClassifySingleCandle(t *testing.T) {
	tests := []struct {
		name string
		c    models.Candle
		want Tag
	}{
		{"doji tiny body", candle(100, 105, 95, 100.5), Doji},
		{"hammer long lower wick", candle(104, 105, 95, 105), Hammer},
		{"shooting star long upper wick", candle(96, 105, 95, 95.2), ShootingStar},
		{"strong bull", candle(100, 110, 99.8, 109.5), StrongBull},
		{"strong bear", candle(110, 110.2, 100, 100.5), StrongBear},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Classify([]models.Candle{tt.c})
			if !v.Has(tt.want) {
				t.Fatalf("expected %s, got %v", tt.want, v.Tags)
			}
		})
	}
}

func TestClassifyZeroRangeDegradesToNoPattern(t *testing.T) {
	v := Classify([]models.Candle{candle(100, 100, 100, 100)})
	if len(v.Tags) != 0 {
		t.Fatalf("zero-range candle produced tags: %v", v.Tags)
	}
	if v.BodyRatio != 0 || v.WickRatio != 0 {
		t.Fatalf("zero-range ratios must be zero, got body=%f wick=%f", v.BodyRatio, v.WickRatio)
	}
}

func TestEngulfing(t *testing.T) {
	prev := candle(102, 103, 99, 100) // red
	cur := candle(99.5, 104, 99, 103) // green body [99.5,103] contains [100,102]
	v := Classify([]models.Candle{prev, cur})
	if !v.Has(BullishEngulfing) {
		t.Fatalf("expected bullish engulfing, got %v", v.Tags)
	}

	prev = candle(100, 103, 99, 102)  // green
	cur = candle(102.5, 103, 98, 99) // red body [99,102.5] contains [100,102]
	v = Classify([]models.Candle{prev, cur})
	if !v.Has(BearishEngulfing) {
		t.Fatalf("expected bearish engulfing, got %v", v.Tags)
	}
}

func TestEngulfingRequiresStrictContainment(t *testing.T) {
	prev := candle(102, 103, 99, 100)
	cur := candle(100, 104, 99, 102) // body equals previous, not strict
	v := Classify([]models.Candle{prev, cur})
	if v.Has(BullishEngulfing) {
		t.Fatalf("non-strict containment must not tag engulfing")
	}
}

func TestInsideBar(t *testing.T) {
	prev := candle(100, 110, 90, 105)
	cur := candle(104, 108, 95, 103)
	v := Classify([]models.Candle{prev, cur})
	if !v.Has(InsideBar) {
		t.Fatalf("expected inside bar, got %v", v.Tags)
	}
	if !IsInsideBar(cur, prev) {
		t.Fatalf("IsInsideBar disagrees with Classify")
	}

	outside := candle(104, 111, 95, 103)
	if IsInsideBar(outside, prev) {
		t.Fatalf("high above previous high must not be inside bar")
	}
}

func TestRangeCompression(t *testing.T) {
	window := []models.Candle{
		candle(100, 110, 90, 105),
		candle(105, 114, 96, 100),
		candle(100, 109, 91, 104),
		candle(104, 112, 94, 101),
		candle(101, 102, 100.5, 101.2), // squeeze
	}
	v := Classify(window)
	if !v.Has(RangeCompression) {
		t.Fatalf("expected range compression, got %v", v.Tags)
	}
}

func TestClassifyDeterministic(t *testing.T) {
	window := []models.Candle{
		candle(102, 103, 99, 100),
		candle(99.5, 104, 99, 103),
	}
	a := Classify(window)
	b := Classify(window)
	if len(a.Tags) != len(b.Tags) {
		t.Fatalf("classification not deterministic: %v vs %v", a.Tags, b.Tags)
	}
	for i := range a.Tags {
		if a.Tags[i] != b.Tags[i] {
			t.Fatalf("tag %d differs: %s vs %s", i, a.Tags[i], b.Tags[i])
		}
	}
}
