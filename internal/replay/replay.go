// Package replay plays a recorded candle sequence through a fresh decision
// engine. The engine's clock is the candle timestamp, so a replayed day
// yields exactly the signals the live day produced.
package replay

import (
	"sort"

	"ScalpPulse/internal/domain/models"
	"ScalpPulse/internal/engine"
)

// Run feeds the candles, oldest first, into the engine and collects every
// emitted signal. The input slice is not mutated.
func Run(eng *engine.Engine, candles []models.Candle) []models.Signal {
	ordered := make([]models.Candle, len(candles))
	copy(ordered, candles)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	var signals []models.Signal
	for _, c := range ordered {
		if sig := eng.OnCandle(c); sig != nil {
			signals = append(signals, *sig)
		}
	}
	return signals
}
