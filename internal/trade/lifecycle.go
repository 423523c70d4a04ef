// Package trade manages an open position after a signal fires: stop-loss
// enforcement, break-even move, partial profit booking, and candle-anchored
// trailing, all driven by ATR multiples of favorable excursion.
package trade

import (
	"ScalpPulse/internal/domain/models"
)

// ATR multiples at which each management stage arms.
const (
	breakEvenATR = 1.0
	partialATR   = 1.2
	trailingATR  = 1.5
)

// partialFraction is the share of the position booked at the partial stage.
const partialFraction = 0.5

// Advice is the action set produced by one price update. Zero value means
// hold as-is.
type Advice struct {
	ExitAll    bool
	ExitReason string
	ExitPrice  float64

	SLMoved bool
	NewSL   float64

	PartialExit float64 // position fraction to book, 0 when none
	Note        string
}

// Context tracks one active trade. Owned by the session goroutine; no
// internal locking.
type Context struct {
	direction models.Direction
	entry     float64
	atr       float64
	currentSL float64
	target    float64

	highestMFE    float64
	beMoved       bool
	partialBooked bool
	trailing      bool
}

// NewContext opens trade management state from an accepted signal.
func NewContext(sig *models.Signal) *Context {
	return &Context{
		direction: sig.Direction,
		entry:     sig.Entry,
		atr:       sig.ATR,
		currentSL: sig.StopLoss,
		target:    sig.Target,
	}
}

// Update advances the trade state for one closed candle. high and low are
// that candle's extremes and anchor the trailing stop: its low for calls,
// its high for puts.
func (c *Context) Update(price, high, low float64) Advice {
	if c.stopHit(price) {
		return Advice{ExitAll: true, ExitReason: "STOP_LOSS", ExitPrice: c.currentSL}
	}

	mfe := c.mfe(price)
	if mfe > c.highestMFE {
		c.highestMFE = mfe
	}

	var adv Advice

	// Break even: stop moves to the entry price once the trade has earned
	// one full ATR.
	if !c.beMoved && mfe >= breakEvenATR*c.atr {
		c.currentSL = c.entry
		c.beMoved = true
		adv.SLMoved = true
		adv.NewSL = c.currentSL
		adv.Note = "stop moved to break-even"
	}

	if !c.partialBooked && mfe >= partialATR*c.atr {
		c.partialBooked = true
		adv.PartialExit = partialFraction
		adv.Note = "partial profit booked"
	}

	if mfe >= trailingATR*c.atr {
		c.trailing = true
	}
	if c.trailing {
		newSL := c.currentSL
		if c.direction == models.DirectionCall {
			// Never moves the stop down.
			if low > c.currentSL {
				newSL = low
			}
		} else {
			if high < c.currentSL {
				newSL = high
			}
		}
		if newSL != c.currentSL {
			c.currentSL = newSL
			adv.SLMoved = true
			adv.NewSL = newSL
			adv.Note = "trailing stop updated"
		}
	}

	return adv
}

func (c *Context) stopHit(price float64) bool {
	if c.direction == models.DirectionCall {
		return price <= c.currentSL
	}
	return price >= c.currentSL
}

func (c *Context) mfe(price float64) float64 {
	if c.direction == models.DirectionCall {
		return price - c.entry
	}
	return c.entry - price
}

// CurrentSL returns the live stop level.
func (c *Context) CurrentSL() float64 { return c.currentSL }

// Target returns the fixed profit target from the originating signal.
func (c *Context) Target() float64 { return c.target }

// HighestMFE returns the best favorable excursion seen so far, in points.
func (c *Context) HighestMFE() float64 { return c.highestMFE }

// BreakEvenMoved reports whether the stop sits at entry or better.
func (c *Context) BreakEvenMoved() bool { return c.beMoved }

// PartialBooked reports whether the partial stage has fired.
func (c *Context) PartialBooked() bool { return c.partialBooked }

// TrailingActive reports whether candle-anchored trailing is armed.
func (c *Context) TrailingActive() bool { return c.trailing }
