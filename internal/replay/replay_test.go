package replay

import (
	"math/rand"
	"reflect"
	"testing"
	"time"

	"ScalpPulse/internal/domain/models"
	"ScalpPulse/internal/engine"
	"ScalpPulse/pkg/logger"
)

const testInstrument = "NSE_INDEX|Nifty Bank"

var sessionOpen = time.Date(2026, 1, 5, 9, 15, 0, 0, time.UTC)

// breakoutDay is sideways chop that establishes the opening range, a
// volume-confirmed breakout, then more chop.
func breakoutDay() []models.Candle {
	mk := func(i int, o, h, l, c, v float64) models.Candle {
		return models.Candle{
			Instrument: testInstrument,
			Open:       o, High: h, Low: l, Close: c,
			Volume:    v,
			Timestamp: sessionOpen.Add(time.Duration(i) * time.Minute),
			Interval:  "1m",
		}
	}

	candles := make([]models.Candle, 0, 50)
	for i := 0; i < 40; i++ {
		c := 100.3
		if i%2 == 1 {
			c = 99.7
		}
		candles = append(candles, mk(i, 100, c+0.5, c-0.5, c, 1000))
	}
	candles = append(candles, mk(40, 100.3, 102.1, 100.2, 102, 1500))
	// Post-breakout drift inside the cooldown window.
	for i := 41; i < 45; i++ {
		candles = append(candles, mk(i, 102, 102.4, 101.8, 102.1, 1000))
	}
	return candles
}

func TestReplayEmitsBreakoutSignal(t *testing.T) {
	eng := engine.New(engine.DefaultConfig(), logger.Nop(), nil)
	signals := Run(eng, breakoutDay())

	if len(signals) != 1 {
		t.Fatalf("signals = %d, want 1", len(signals))
	}
	if signals[0].Direction != models.DirectionCall {
		t.Fatalf("direction = %s, want CALL", signals[0].Direction)
	}
	if signals[0].Tier != models.TierORBBreakout {
		t.Fatalf("tier = %s, want ORB_BREAKOUT", signals[0].Tier)
	}
}

func TestReplayIsDeterministic(t *testing.T) {
	day := breakoutDay()

	first := Run(engine.New(engine.DefaultConfig(), logger.Nop(), nil), day)
	second := Run(engine.New(engine.DefaultConfig(), logger.Nop(), nil), day)

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("replays diverged:\n%+v\n%+v", first, second)
	}
}

func TestReplayOrdersShuffledInput(t *testing.T) {
	day := breakoutDay()
	shuffled := make([]models.Candle, len(day))
	copy(shuffled, day)
	rand.New(rand.NewSource(7)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	ordered := Run(engine.New(engine.DefaultConfig(), logger.Nop(), nil), day)
	fromShuffled := Run(engine.New(engine.DefaultConfig(), logger.Nop(), nil), shuffled)

	if !reflect.DeepEqual(ordered, fromShuffled) {
		t.Fatalf("shuffled replay diverged:\n%+v\n%+v", ordered, fromShuffled)
	}

	// Input slice must be left untouched.
	if reflect.DeepEqual(shuffled, day) {
		t.Fatal("shuffle produced the identity permutation; pick another seed")
	}
}
