// Package risk implements redis-backed daily trading guardrails: trade-count
// cap, daily loss cap, and a sticky kill switch, all scoped to user and day.
package risk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ScalpPulse/pkg/cache"
	"ScalpPulse/pkg/logger"
	"ScalpPulse/pkg/util"
)

// Limits caps one user's trading day.
type Limits struct {
	MaxTrades  int
	MaxLossAmt float64
}

// DefaultLimits mirrors the production guardrail defaults.
func DefaultLimits() Limits {
	return Limits{MaxTrades: 5, MaxLossAmt: 2500}
}

// Stats is the current state of a user's trading day.
type Stats struct {
	Trades int
	PnL    float64
	Locked bool
}

// Engine evaluates the guardrails for one user. State lives in redis under
// risk:<user>:<day>:* so restarts and parallel processes agree on it.
type Engine struct {
	userID string
	limits Limits
	store  cache.Service
	log    *logger.Logger
	now    func() time.Time
}

func New(userID string, limits Limits, store cache.Service, log *logger.Logger) *Engine {
	if limits.MaxTrades <= 0 {
		limits.MaxTrades = DefaultLimits().MaxTrades
	}
	if limits.MaxLossAmt <= 0 {
		limits.MaxLossAmt = DefaultLimits().MaxLossAmt
	}
	return &Engine{
		userID: userID,
		limits: limits,
		store:  store,
		log:    log,
		now:    time.Now,
	}
}

func (e *Engine) key(field string) string {
	return fmt.Sprintf("risk:%s:%s:%s", e.userID, util.TradingDay(e.now()), field)
}

// GetStats reads the day's counters; absent keys read as zero.
func (e *Engine) GetStats(ctx context.Context) (Stats, error) {
	var stats Stats

	var trades int
	if err := e.store.Get(ctx, e.key("trades"), &trades); err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		return stats, fmt.Errorf("risk stats trades: %w", err)
	}
	var pnl float64
	if err := e.store.Get(ctx, e.key("pnl"), &pnl); err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		return stats, fmt.Errorf("risk stats pnl: %w", err)
	}
	var locked string
	if err := e.store.Get(ctx, e.key("locked"), &locked); err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		return stats, fmt.Errorf("risk stats locked: %w", err)
	}

	stats.Trades = trades
	stats.PnL = pnl
	stats.Locked = locked == "1"
	return stats, nil
}

// CanTrade reports whether a new trade is allowed, with a human-readable
// reason on refusal. Breaching the loss cap arms the kill switch as a side
// effect, so later checks refuse fast.
func (e *Engine) CanTrade(ctx context.Context) (bool, string, error) {
	stats, err := e.GetStats(ctx)
	if err != nil {
		return false, "", err
	}

	if stats.Locked {
		return false, "kill switch active", nil
	}
	if stats.Trades >= e.limits.MaxTrades {
		return false, fmt.Sprintf("max trades reached (%d/%d)", stats.Trades, e.limits.MaxTrades), nil
	}
	if stats.PnL <= -e.limits.MaxLossAmt {
		if err := e.Lock(ctx, "max daily loss hit"); err != nil {
			return false, "", err
		}
		return false, fmt.Sprintf("max daily loss reached (%.2f)", stats.PnL), nil
	}
	return true, "", nil
}

// RecordTrade bumps the day's counters after a trade closes and arms the
// kill switch when the loss cap is breached.
func (e *Engine) RecordTrade(ctx context.Context, pnl float64) error {
	if _, err := e.store.Increment(ctx, e.key("trades")); err != nil {
		return fmt.Errorf("risk record trade count: %w", err)
	}
	newPnL, err := e.store.IncrementByFloat(ctx, e.key("pnl"), pnl)
	if err != nil {
		return fmt.Errorf("risk record pnl: %w", err)
	}
	if newPnL <= -e.limits.MaxLossAmt {
		return e.Lock(ctx, fmt.Sprintf("loss limit hit: %.2f", newPnL))
	}
	return nil
}

// Lock arms the kill switch for the rest of the trading day.
func (e *Engine) Lock(ctx context.Context, reason string) error {
	if err := e.store.Set(ctx, e.key("locked"), "1", 48*time.Hour); err != nil {
		return fmt.Errorf("risk lock: %w", err)
	}
	e.log.Warn("trading locked",
		logger.String("user_id", e.userID),
		logger.String("reason", reason))
	return nil
}

// Reset clears the day's counters. Admin and test use only.
func (e *Engine) Reset(ctx context.Context) error {
	return e.store.Delete(ctx, e.key("trades"), e.key("pnl"), e.key("locked"))
}
