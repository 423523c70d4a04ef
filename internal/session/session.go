// Package session orchestrates per-user trading sessions: one feed
// connection, one decision engine, one context-poll loop per user, with all
// mutable state confined to the session's dispatch goroutine.
package session

import (
	"context"
	"time"

	"ScalpPulse/internal/domain/models"
	"ScalpPulse/internal/domain/repository"
	"ScalpPulse/internal/engine"
	"ScalpPulse/internal/trade"
	"ScalpPulse/pkg/logger"
)

// defaultLotSize is the frozen per-trade quantity for virtual fills.
const defaultLotSize = 15

// Session is one user's live trading run. Everything below the sync fields
// is owned by the dispatch goroutine and never touched from outside it.
type Session struct {
	userID    string
	indexKey  string
	cfg       models.StrategyConfig
	startedAt time.Time

	eng     *engine.Engine
	stream  repository.MarketStream
	bus     repository.EventBus
	audit   repository.AuditSink
	risk    repository.RiskGate
	log     *logger.Logger
	metrics repository.Metrics

	cancel    context.CancelFunc
	done      chan struct{}
	snapshots chan models.ContextSnapshot

	// dispatch-goroutine state
	subscribed  map[string]struct{}
	lastContext models.ContextSnapshot
	active      *trade.Context
	activeSig   *models.Signal
	activeQty   int
}

// alive reports whether the dispatch loop is still running.
func (s *Session) alive() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// dispatch is the session's single writer: every mutation of engine state,
// subscriptions, and the active trade happens here, in arrival order.
func (s *Session) dispatch(ctx context.Context, events <-chan models.MarketEvent, errs <-chan error) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-s.snapshots:
			s.applySnapshot(ctx, snap)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			s.onMarketEvent(ctx, ev)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			s.onFeedError(ctx, err)
			return
		}
	}
}

func (s *Session) onMarketEvent(ctx context.Context, ev models.MarketEvent) {
	switch {
	case ev.Candle != nil && ev.Instrument == s.indexKey:
		s.onIndexCandle(ctx, *ev.Candle)
	case ev.Tick != nil && ev.Instrument == s.indexKey:
		if s.metrics != nil {
			s.metrics.RecordSpot(s.indexKey, ev.Tick.LTP)
		}
	}
	// Option-leg quotes are subscribed for downstream consumers; the
	// strategy itself runs entirely on index candles.
}

func (s *Session) onIndexCandle(ctx context.Context, c models.Candle) {
	start := time.Now()
	sig := s.eng.OnCandle(c)
	if s.metrics != nil {
		s.metrics.RecordEvalLatency(time.Since(start).Seconds())
	}

	if s.active != nil {
		s.manageTrade(ctx, c)
	}
	if sig != nil {
		s.onSignal(ctx, sig)
	}
}

// signalNotice is the SIGNAL event payload: the raw signal plus the ATM
// option leg matching its direction, resolved from the latest chain context.
type signalNotice struct {
	*models.Signal
	OptionInstrument string `json:"option_instrument,omitempty"`
}

func (s *Session) onSignal(ctx context.Context, sig *models.Signal) {
	notice := signalNotice{Signal: sig, OptionInstrument: s.pickOption(sig.Direction)}

	if err := s.bus.Publish(ctx, models.Event{
		Type:      models.EventSignal,
		UserID:    s.userID,
		Payload:   notice,
		Timestamp: time.Now(),
	}); err != nil {
		s.log.Error("publish signal event", logger.Error(err))
	}
	_ = s.audit.Record(ctx, "SIGNAL", s.userID, notice)

	if s.active != nil {
		s.log.Debug("signal while trade active, not opening another",
			logger.String("action", sig.Action()))
		return
	}

	ok, reason, err := s.risk.CanTrade(ctx)
	if err != nil {
		s.log.Error("risk check failed", logger.Error(err))
		return
	}
	if !ok {
		s.log.Warn("signal blocked by risk guardrails",
			logger.String("action", sig.Action()),
			logger.String("reason", reason))
		_ = s.audit.Record(ctx, "SIGNAL_BLOCKED", s.userID, map[string]string{
			"action": sig.Action(),
			"reason": reason,
		})
		return
	}

	s.active = trade.NewContext(sig)
	s.activeSig = sig
	s.activeQty = defaultLotSize
	s.log.Info("virtual trade opened",
		logger.String("action", sig.Action()),
		logger.Float64("entry", sig.Entry),
		logger.Int("qty", s.activeQty))
	_ = s.audit.Record(ctx, "TRADE_OPENED", s.userID, notice)
}

// pickOption resolves the ATM leg for a direction from the latest snapshot.
func (s *Session) pickOption(dir models.Direction) string {
	side := models.SideCall
	if dir == models.DirectionPut {
		side = models.SidePut
	}
	for _, st := range s.lastContext.Strikes {
		if st.Side == side && st.Type == models.StrikeATM {
			return st.InstrumentKey
		}
	}
	return ""
}

func (s *Session) manageTrade(ctx context.Context, c models.Candle) {
	adv := s.active.Update(c.Close, c.High, c.Low)

	if adv.ExitAll {
		pnl := adv.ExitPrice - s.activeSig.Entry
		if s.activeSig.Direction == models.DirectionPut {
			pnl = s.activeSig.Entry - adv.ExitPrice
		}
		pnlAmt := pnl * float64(s.activeQty)

		s.log.Info("trade closed",
			logger.String("reason", adv.ExitReason),
			logger.Float64("exit", adv.ExitPrice),
			logger.Float64("pnl", pnlAmt))
		if err := s.risk.RecordTrade(ctx, pnlAmt); err != nil {
			s.log.Error("record trade", logger.Error(err))
		}
		_ = s.audit.Record(ctx, "TRADE_CLOSED", s.userID, map[string]interface{}{
			"reason": adv.ExitReason,
			"exit":   adv.ExitPrice,
			"pnl":    pnlAmt,
		})

		s.active = nil
		s.activeSig = nil
		s.activeQty = 0
		return
	}

	if adv.PartialExit > 0 {
		s.log.Info("partial profit booked", logger.Float64("fraction", adv.PartialExit))
		_ = s.audit.Record(ctx, "PARTIAL_EXIT", s.userID, map[string]float64{
			"fraction": adv.PartialExit,
			"price":    c.Close,
		})
	}
	if adv.SLMoved {
		s.log.Debug("stop updated",
			logger.Float64("sl", adv.NewSL),
			logger.String("note", adv.Note))
	}
}

// applySnapshot installs a fresh chain context and reconciles subscriptions
// against its target strikes. The index instrument is never unsubscribed.
func (s *Session) applySnapshot(ctx context.Context, snap models.ContextSnapshot) {
	s.lastContext = snap

	want := map[string]struct{}{s.indexKey: {}}
	for _, key := range snap.InstrumentKeys() {
		want[key] = struct{}{}
	}

	var adds, removals []string
	for key := range want {
		if _, ok := s.subscribed[key]; !ok {
			adds = append(adds, key)
		}
	}
	for key := range s.subscribed {
		if _, ok := want[key]; !ok && key != s.indexKey {
			removals = append(removals, key)
		}
	}

	if len(adds) > 0 {
		if err := s.stream.Subscribe(ctx, adds); err != nil {
			s.log.Error("subscribe strikes", logger.Error(err))
		} else {
			for _, key := range adds {
				s.subscribed[key] = struct{}{}
			}
		}
	}
	if len(removals) > 0 {
		if err := s.stream.Unsubscribe(ctx, removals); err != nil {
			s.log.Error("unsubscribe strikes", logger.Error(err))
		} else {
			for _, key := range removals {
				delete(s.subscribed, key)
			}
		}
	}

	s.log.Debug("context refreshed",
		logger.Float64("spot", snap.SpotPrice),
		logger.Float64("pcr", snap.PCR),
		logger.Int("strikes", len(snap.Strikes)),
		logger.Int("added", len(adds)),
		logger.Int("removed", len(removals)))
}

func (s *Session) onFeedError(ctx context.Context, err error) {
	s.log.Error("market feed failed, ending session loop",
		logger.String("user_id", s.userID),
		logger.Error(err))
	if s.metrics != nil {
		s.metrics.RecordError("feed")
	}
	_ = s.bus.Publish(ctx, models.Event{
		Type:      models.EventError,
		UserID:    s.userID,
		Payload:   map[string]string{"error": err.Error()},
		Timestamp: time.Now(),
	})
	_ = s.audit.Record(ctx, "FEED_FAILED", s.userID, map[string]string{"error": err.Error()})
}
