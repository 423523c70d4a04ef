// Package chain maintains the derivative-market context for a session: spot
// price, put/call ratio and the tradeable strike window around ATM, refreshed
// on a fixed poll period independent of tick cadence.
package chain

import (
	"context"
	"fmt"
	"math"
	"time"

	"ScalpPulse/internal/domain/models"
	"ScalpPulse/internal/domain/repository"
	"ScalpPulse/pkg/logger"
)

// Config tunes one context service instance.
type Config struct {
	IndexKey     string
	Expiry       string
	StrikeStep   float64
	PollInterval time.Duration
}

// Service polls the option chain and publishes fresh snapshots. A failed
// poll keeps the previous snapshot authoritative; the loop never crashes.
type Service struct {
	cfg     Config
	fetcher repository.ChainFetcher
	log     *logger.Logger
	metrics repository.Metrics
}

func New(cfg Config, fetcher repository.ChainFetcher, log *logger.Logger, m repository.Metrics) *Service {
	if cfg.StrikeStep <= 0 {
		cfg.StrikeStep = 100
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Minute
	}
	return &Service{cfg: cfg, fetcher: fetcher, log: log, metrics: m}
}

// FetchSnapshot performs one synchronous fetch-and-derive cycle.
func (s *Service) FetchSnapshot(ctx context.Context) (models.ContextSnapshot, error) {
	spot, err := s.fetcher.SpotPrice(ctx, s.cfg.IndexKey)
	if err != nil {
		return models.ContextSnapshot{}, fmt.Errorf("fetch spot price: %w", err)
	}
	if spot <= 0 {
		return models.ContextSnapshot{}, fmt.Errorf("fetch spot price: non-positive spot %v", spot)
	}

	entries, err := s.fetcher.OptionChain(ctx, s.cfg.IndexKey, s.cfg.Expiry)
	if err != nil {
		return models.ContextSnapshot{}, fmt.Errorf("fetch option chain: %w", err)
	}

	snap := BuildSnapshot(spot, entries, s.cfg.StrikeStep, time.Now())
	if s.metrics != nil {
		s.metrics.RecordSpot(s.cfg.IndexKey, spot)
	}
	return snap, nil
}

// Run polls until ctx is cancelled, pushing each successful snapshot to out.
// The first poll fires after one full period; callers wanting an immediate
// snapshot use FetchSnapshot directly.
func (s *Service) Run(ctx context.Context, out chan<- models.ContextSnapshot) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		snap, err := s.FetchSnapshot(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.Warn("context poll failed, keeping last snapshot",
				logger.String("index", s.cfg.IndexKey),
				logger.Error(err))
			if s.metrics != nil {
				s.metrics.RecordError("chain_fetch")
			}
			continue
		}

		select {
		case out <- snap:
		case <-ctx.Done():
			return
		}
	}
}

// BuildSnapshot derives the context snapshot from one raw chain read. Pure:
// no I/O, no clock beyond the passed timestamp, so replay tests can drive it
// with canned chains.
func BuildSnapshot(spot float64, entries []models.ChainEntry, step float64, at time.Time) models.ContextSnapshot {
	snap := models.ContextSnapshot{SpotPrice: spot, FetchedAt: at}

	// Global PCR over strikes quoted on both sides.
	for _, e := range entries {
		if e.Call == nil || e.Put == nil {
			continue
		}
		snap.CallOI += e.Call.OpenInterest
		snap.PutOI += e.Put.OpenInterest
	}
	if snap.CallOI > 0 {
		snap.PCR = snap.PutOI / snap.CallOI
	}

	atm := math.Round(spot/step) * step
	byStrike := make(map[float64]models.ChainEntry, len(entries))
	for _, e := range entries {
		byStrike[e.StrikePrice] = e
	}

	for _, strike := range []float64{atm - step, atm, atm + step} {
		e, ok := byStrike[strike]
		if !ok {
			continue
		}
		if e.Call != nil {
			snap.Strikes = append(snap.Strikes, models.Strike{
				Strike:        strike,
				Side:          models.SideCall,
				Type:          strikeType(strike, atm, models.SideCall),
				InstrumentKey: e.Call.InstrumentKey,
				LTP:           e.Call.LTP,
				OpenInterest:  e.Call.OpenInterest,
			})
		}
		if e.Put != nil {
			snap.Strikes = append(snap.Strikes, models.Strike{
				Strike:        strike,
				Side:          models.SidePut,
				Type:          strikeType(strike, atm, models.SidePut),
				InstrumentKey: e.Put.InstrumentKey,
				LTP:           e.Put.LTP,
				OpenInterest:  e.Put.OpenInterest,
			})
		}
	}
	return snap
}

func strikeType(strike, atm float64, side models.OptionSide) models.StrikeType {
	switch {
	case strike == atm:
		return models.StrikeATM
	case strike < atm:
		if side == models.SideCall {
			return models.StrikeITM
		}
		return models.StrikeOTM
	default:
		if side == models.SideCall {
			return models.StrikeOTM
		}
		return models.StrikeITM
	}
}
