package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ScalpPulse/internal/chain"
	"ScalpPulse/internal/domain/models"
	"ScalpPulse/internal/domain/repository"
	"ScalpPulse/internal/engine"
	"ScalpPulse/pkg/logger"
	"ScalpPulse/pkg/util"
)

var (
	ErrAlreadyActive = errors.New("session: already active")
	ErrNotFound      = errors.New("session: not found")
	ErrInitTimeout   = errors.New("session: initialization timed out")
)

// Config tunes the manager.
type Config struct {
	InitTimeout       time.Duration
	ChainPollInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.InitTimeout <= 0 {
		c.InitTimeout = 15 * time.Second
	}
	if c.ChainPollInterval <= 0 {
		c.ChainPollInterval = 5 * time.Minute
	}
}

// RiskFactory builds the per-user guardrail gate.
type RiskFactory func(userID string) repository.RiskGate

// Manager is the process-wide registry of live sessions, keyed by user.
// Explicit lifecycle: constructed at startup, StopAll on shutdown.
type Manager struct {
	cfg      Config
	streams  repository.StreamFactory
	fetchers repository.FetcherFactory
	bus      repository.EventBus
	audit    repository.AuditSink
	riskFor  RiskFactory
	log      *logger.Logger
	metrics  repository.Metrics

	mu       sync.Mutex
	sessions map[string]*Session
	starting map[string]struct{}
}

func NewManager(
	cfg Config,
	streams repository.StreamFactory,
	fetchers repository.FetcherFactory,
	bus repository.EventBus,
	audit repository.AuditSink,
	riskFor RiskFactory,
	log *logger.Logger,
	metrics repository.Metrics,
) *Manager {
	cfg.applyDefaults()
	return &Manager{
		cfg:      cfg,
		streams:  streams,
		fetchers: fetchers,
		bus:      bus,
		audit:    audit,
		riskFor:  riskFor,
		log:      log,
		metrics:  metrics,
		sessions: make(map[string]*Session),
		starting: make(map[string]struct{}),
	}
}

// HandleCommand routes one inbound control-plane command. Failures surface
// as outbound ERROR events, never as crashes.
func (m *Manager) HandleCommand(ctx context.Context, cmd models.Command) {
	m.log.Info("command received",
		logger.String("action", cmd.Action),
		logger.String("user_id", cmd.UserID))

	switch cmd.Action {
	case models.ActionStartTrading:
		if err := m.Start(ctx, cmd.UserID, cmd.Data.StrategyConfig, cmd.Data.AccessToken); err != nil {
			m.publishError(ctx, cmd.UserID, err)
		}
	case models.ActionStopTrading:
		if err := m.Stop(ctx, cmd.UserID); err != nil {
			m.publishError(ctx, cmd.UserID, err)
		}
	default:
		m.log.Warn("unknown command action", logger.String("action", cmd.Action))
	}
}

// Start brings up a session for the user: normalize config, fetch the
// initial chain context synchronously (bounded by InitTimeout), connect and
// arm the feed, then launch the dispatch and poll loops.
func (m *Manager) Start(ctx context.Context, userID string, cfg models.StrategyConfig, accessToken string) error {
	if userID == "" {
		return fmt.Errorf("start: empty user_id")
	}
	if err := cfg.Normalize(); err != nil {
		return err
	}

	// Reserve the user before the slow init below; a concurrent Start for
	// the same user must never open a second feed connection.
	m.mu.Lock()
	if existing, ok := m.sessions[userID]; ok {
		if existing.alive() {
			m.mu.Unlock()
			return ErrAlreadyActive
		}
		// A dead session (feed gave up) may be replaced.
		delete(m.sessions, userID)
	}
	if _, ok := m.starting[userID]; ok {
		m.mu.Unlock()
		return ErrAlreadyActive
	}
	m.starting[userID] = struct{}{}
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.starting, userID)
		m.mu.Unlock()
	}()

	initCtx, cancelInit := context.WithTimeout(ctx, m.cfg.InitTimeout)
	defer cancelInit()

	chainSvc := chain.New(chain.Config{
		IndexKey:     cfg.Symbol,
		Expiry:       util.NextWeeklyExpiry(time.Now()),
		StrikeStep:   cfg.StrikeStep,
		PollInterval: m.cfg.ChainPollInterval,
	}, m.fetchers(accessToken), m.log, m.metrics)

	snap, err := chainSvc.FetchSnapshot(initCtx)
	if err != nil {
		return m.initErr("initial context fetch", initCtx, err)
	}

	stream := m.streams(accessToken)
	if err := stream.Connect(initCtx); err != nil {
		return m.initErr("feed connect", initCtx, err)
	}
	keys := append([]string{cfg.Symbol}, snap.InstrumentKeys()...)
	if err := stream.Subscribe(initCtx, keys); err != nil {
		_ = stream.Close()
		return m.initErr("initial subscribe", initCtx, err)
	}

	// The session outlives the command that started it.
	sctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		userID:     userID,
		indexKey:   cfg.Symbol,
		cfg:        cfg,
		startedAt:  time.Now(),
		eng:        engine.New(engine.FromStrategy(cfg), m.log, m.metrics),
		stream:     stream,
		bus:        m.bus,
		audit:      m.audit,
		risk:       m.riskFor(userID),
		log:        m.log,
		metrics:    m.metrics,
		cancel:     cancel,
		done:       make(chan struct{}),
		snapshots:  make(chan models.ContextSnapshot, 1),
		subscribed: make(map[string]struct{}, len(keys)),
	}
	s.lastContext = snap
	for _, key := range keys {
		s.subscribed[key] = struct{}{}
	}

	events, errs := stream.Read(sctx)
	go chainSvc.Run(sctx, s.snapshots)
	go s.dispatch(sctx, events, errs)

	m.mu.Lock()
	m.sessions[userID] = s
	n := len(m.sessions)
	m.mu.Unlock()
	if m.metrics != nil {
		m.metrics.SetActiveSessions(n)
	}

	m.log.Info("session started",
		logger.String("user_id", userID),
		logger.String("symbol", cfg.Symbol),
		logger.String("mode", cfg.TradeMode),
		logger.Int("instruments", len(keys)))

	m.publish(ctx, models.Event{
		Type:   models.EventSessionStarted,
		UserID: userID,
		Payload: map[string]interface{}{
			"symbol":     cfg.Symbol,
			"trade_mode": cfg.TradeMode,
			"pcr":        snap.PCR,
			"spot":       snap.SpotPrice,
		},
		Timestamp: time.Now(),
	})
	_ = m.audit.Record(ctx, "SESSION_STARTED", userID, cfg)
	return nil
}

func (m *Manager) initErr(stage string, initCtx context.Context, err error) error {
	if errors.Is(initCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %v", ErrInitTimeout, stage, err)
	}
	return fmt.Errorf("%s: %w", stage, err)
}

// Stop tears a session down. It returns only after the dispatch loop has
// exited, so no signal can be emitted for this user afterwards.
func (m *Manager) Stop(ctx context.Context, userID string) error {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	delete(m.sessions, userID)
	n := len(m.sessions)
	m.mu.Unlock()

	s.cancel()
	<-s.done
	_ = s.stream.Close()

	if m.metrics != nil {
		m.metrics.SetActiveSessions(n)
	}
	m.log.Info("session stopped", logger.String("user_id", userID))

	m.publish(ctx, models.Event{
		Type:      models.EventSessionStopped,
		UserID:    userID,
		Timestamp: time.Now(),
	})
	_ = m.audit.Record(ctx, "SESSION_STOPPED", userID, nil)
	return nil
}

// StopAll tears down every live session; used on process shutdown.
func (m *Manager) StopAll(ctx context.Context) {
	m.mu.Lock()
	users := make([]string, 0, len(m.sessions))
	for userID := range m.sessions {
		users = append(users, userID)
	}
	m.mu.Unlock()

	for _, userID := range users {
		if err := m.Stop(ctx, userID); err != nil && !errors.Is(err, ErrNotFound) {
			m.log.Error("stop session on shutdown",
				logger.String("user_id", userID),
				logger.Error(err))
		}
	}
}

// Status is a point-in-time view of one session for the ops surface.
type Status struct {
	UserID    string    `json:"user_id"`
	Symbol    string    `json:"symbol"`
	TradeMode string    `json:"trade_mode"`
	StartedAt time.Time `json:"started_at"`
	Healthy   bool      `json:"healthy"`
}

// Statuses lists live sessions.
func (m *Manager) Statuses() []Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Status, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, Status{
			UserID:    s.userID,
			Symbol:    s.indexKey,
			TradeMode: s.cfg.TradeMode,
			StartedAt: s.startedAt,
			Healthy:   s.alive(),
		})
	}
	return out
}

func (m *Manager) publish(ctx context.Context, ev models.Event) {
	if err := m.bus.Publish(ctx, ev); err != nil {
		m.log.Error("publish event",
			logger.String("type", ev.Type),
			logger.Error(err))
	}
}

func (m *Manager) publishError(ctx context.Context, userID string, err error) {
	m.log.Error("command failed",
		logger.String("user_id", userID),
		logger.Error(err))
	if m.metrics != nil {
		m.metrics.RecordError("command")
	}
	m.publish(ctx, models.Event{
		Type:      models.EventError,
		UserID:    userID,
		Payload:   map[string]string{"error": err.Error()},
		Timestamp: time.Now(),
	})
}
