package repository

import (
	"context"

	"ScalpPulse/internal/domain/models"
)

// MarketStream is one live feed connection. A session owns exactly one.
// Subscription state pushed through Subscribe/Unsubscribe is the
// orchestrator's source of truth; the stream re-issues it after reconnects.
type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, instruments []string) error
	Unsubscribe(ctx context.Context, instruments []string) error
	Read(ctx context.Context) (<-chan models.MarketEvent, <-chan error)
	Close() error
	IsConnected() bool
}

// StreamFactory builds a MarketStream for one session. Sessions never share
// connections.
type StreamFactory func(accessToken string) MarketStream

// ChainFetcher is the read-only REST contract with the broker's option-chain
// API. Calls are idempotent GETs.
type ChainFetcher interface {
	SpotPrice(ctx context.Context, instrumentKey string) (float64, error)
	OptionChain(ctx context.Context, instrumentKey, expiry string) ([]models.ChainEntry, error)
}

// FetcherFactory builds a ChainFetcher authenticated with one session's
// access token.
type FetcherFactory func(accessToken string) ChainFetcher

// EventBus publishes outbound session events (SIGNAL, SESSION_*, ERROR).
type EventBus interface {
	Publish(ctx context.Context, ev models.Event) error
}

// CommandHandler consumes one inbound command.
type CommandHandler func(ctx context.Context, cmd models.Command)

// CommandSource delivers inbound commands until ctx is cancelled.
type CommandSource interface {
	Listen(ctx context.Context, handle CommandHandler) error
}

// AuditSink records signals and lifecycle events on the audit stream.
// Failures are transient and must never affect the trading path.
type AuditSink interface {
	Record(ctx context.Context, kind, userID string, payload interface{}) error
	Close() error
}

// RiskGate is the pre-trade guardrail consulted before acting on a signal.
type RiskGate interface {
	CanTrade(ctx context.Context) (bool, string, error)
	RecordTrade(ctx context.Context, pnl float64) error
}

// Metrics is the observability contract implemented by pkg/metrics.
type Metrics interface {
	RecordSignal(direction string, tier string)
	RecordError(kind string)
	RecordSpot(instrument string, price float64)
	RecordEvalLatency(seconds float64)
	SetActiveSessions(n int)
}
