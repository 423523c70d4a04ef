package trade

import (
	"testing"
	"time"

	"ScalpPulse/internal/domain/models"
)

func callSignal() *models.Signal {
	return &models.Signal{
		Instrument: "OPT|44100CE",
		Direction:  models.DirectionCall,
		Entry:      200,
		StopLoss:   190,
		Target:     230,
		ATR:        10,
		Timestamp:  time.Now(),
	}
}

func putSignal() *models.Signal {
	return &models.Signal{
		Instrument: "OPT|44100PE",
		Direction:  models.DirectionPut,
		Entry:      200,
		StopLoss:   210,
		Target:     170,
		ATR:        10,
		Timestamp:  time.Now(),
	}
}

func TestStopLossExitsCall(t *testing.T) {
	c := NewContext(callSignal())
	adv := c.Update(189, 195, 188)
	if !adv.ExitAll || adv.ExitReason != "STOP_LOSS" {
		t.Fatalf("advice = %+v, want stop-loss exit", adv)
	}
	if adv.ExitPrice != 190 {
		t.Fatalf("exit price = %v, want stop 190", adv.ExitPrice)
	}
}

func TestStopLossExitsPut(t *testing.T) {
	c := NewContext(putSignal())
	adv := c.Update(211, 212, 205)
	if !adv.ExitAll || adv.ExitReason != "STOP_LOSS" {
		t.Fatalf("advice = %+v, want stop-loss exit", adv)
	}
}

func TestBreakEvenAtOneATR(t *testing.T) {
	c := NewContext(callSignal())

	adv := c.Update(209, 209, 205)
	if adv.SLMoved || c.BreakEvenMoved() {
		t.Fatalf("break-even armed below 1 ATR: %+v", adv)
	}

	adv = c.Update(210, 210, 206)
	if !adv.SLMoved || adv.NewSL != 200 {
		t.Fatalf("advice = %+v, want stop at entry 200", adv)
	}
	if !c.BreakEvenMoved() {
		t.Fatal("break-even flag not set")
	}

	// Break-even fires once; a pullback above entry keeps the stop put.
	adv = c.Update(205, 210, 204)
	if adv.SLMoved || adv.ExitAll {
		t.Fatalf("advice after pullback = %+v, want hold", adv)
	}
	if c.CurrentSL() != 200 {
		t.Fatalf("stop = %v, want 200", c.CurrentSL())
	}
}

func TestPartialBooksOnceAtOnePointTwoATR(t *testing.T) {
	c := NewContext(callSignal())

	adv := c.Update(212, 212, 208)
	if adv.PartialExit != 0.5 {
		t.Fatalf("partial = %v, want 0.5 at 1.2 ATR", adv.PartialExit)
	}

	adv = c.Update(213, 213, 209)
	if adv.PartialExit != 0 {
		t.Fatalf("partial booked twice: %+v", adv)
	}
}

func TestTrailingFromOnePointFiveATRNeverRetreats(t *testing.T) {
	c := NewContext(callSignal())

	// 1.5 ATR reached: trailing arms and lifts the stop to the anchor low.
	adv := c.Update(215, 216, 207)
	if !c.TrailingActive() {
		t.Fatal("trailing not armed at 1.5 ATR")
	}
	if !adv.SLMoved || adv.NewSL != 207 {
		t.Fatalf("advice = %+v, want stop trailed to 207", adv)
	}

	// Higher anchor lifts it again.
	adv = c.Update(220, 221, 212)
	if !adv.SLMoved || adv.NewSL != 212 {
		t.Fatalf("advice = %+v, want stop trailed to 212", adv)
	}

	// Lower anchor never drags it back.
	adv = c.Update(218, 219, 210)
	if adv.SLMoved {
		t.Fatalf("stop retreated: %+v", adv)
	}
	if c.CurrentSL() != 212 {
		t.Fatalf("stop = %v, want 212", c.CurrentSL())
	}
}

func TestTrailingPutUsesCandleHigh(t *testing.T) {
	c := NewContext(putSignal())

	// 1.5 ATR in favor for a put means price 15 below entry.
	adv := c.Update(185, 193, 184)
	if !c.TrailingActive() {
		t.Fatal("trailing not armed")
	}
	if !adv.SLMoved || adv.NewSL != 193 {
		t.Fatalf("advice = %+v, want stop trailed to anchor high 193", adv)
	}

	// Then the trailed stop is live: price touching it exits.
	adv = c.Update(193, 194, 185)
	if !adv.ExitAll {
		t.Fatalf("advice = %+v, want stop-loss exit at trailed level", adv)
	}
}

func TestMFEHighWaterMark(t *testing.T) {
	c := NewContext(callSignal())
	c.Update(208, 208, 204)
	c.Update(204, 208, 203)
	if got := c.HighestMFE(); got != 8 {
		t.Fatalf("highest MFE = %v, want 8", got)
	}
}
