// Package feed implements the per-session market data connection: one
// websocket per session carrying typed tick and candle frames, with an
// explicit reconnect state machine and orchestrator-owned subscriptions.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"ScalpPulse/internal/domain/models"
	"ScalpPulse/internal/domain/repository"
	"ScalpPulse/pkg/logger"
)

// ConnState is the connection lifecycle phase.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnected
	StateReconnecting
	StateFailed
)

func (s ConnState) String() string {
	switch s {
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateFailed:
		return "FAILED"
	}
	return "DISCONNECTED"
}

// Config tunes one feed connection.
type Config struct {
	URL                  string
	ReconnectDelay       time.Duration
	MaxReconnectDelay    time.Duration
	MaxReconnectAttempts int
	PingInterval         time.Duration
}

func (c *Config) applyDefaults() {
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = time.Second
	}
	if c.MaxReconnectDelay <= 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = 5
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 25 * time.Second
	}
}

// Client implements repository.MarketStream over a websocket. The
// subscription set pushed through Subscribe/Unsubscribe is retained and
// re-issued after every reconnect.
type Client struct {
	cfg         Config
	accessToken string
	log         *logger.Logger

	mu    sync.Mutex
	conn  *websocket.Conn
	state ConnState
	subs  map[string]struct{}
}

// New creates a feed client for one session.
func New(cfg Config, accessToken string, log *logger.Logger) *Client {
	cfg.applyDefaults()
	return &Client{
		cfg:         cfg,
		accessToken: accessToken,
		log:         log,
		subs:        make(map[string]struct{}),
	}
}

// NewFactory returns a StreamFactory binding the shared feed config; each
// session gets its own connection under its own access token.
func NewFactory(cfg Config, log *logger.Logger) repository.StreamFactory {
	return func(accessToken string) repository.MarketStream {
		return New(cfg, accessToken, log)
	}
}

// Connect dials the feed endpoint.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dialLocked(ctx)
}

func (c *Client) dialLocked(ctx context.Context) error {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.accessToken)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return fmt.Errorf("feed connect: %w", err)
	}
	c.conn = conn
	c.state = StateConnected
	c.log.Info("feed connected", logger.String("url", c.cfg.URL))
	return nil
}

type controlFrame struct {
	Action      string   `json:"action"`
	Instruments []string `json:"instruments"`
}

// Subscribe adds instruments to the tracked set and announces them.
func (c *Client) Subscribe(ctx context.Context, instruments []string) error {
	if len(instruments) == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range instruments {
		c.subs[key] = struct{}{}
	}
	return c.sendControlLocked("subscribe", instruments)
}

// Unsubscribe drops instruments from the tracked set and announces it.
func (c *Client) Unsubscribe(ctx context.Context, instruments []string) error {
	if len(instruments) == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range instruments {
		delete(c.subs, key)
	}
	return c.sendControlLocked("unsubscribe", instruments)
}

func (c *Client) sendControlLocked(action string, instruments []string) error {
	if c.conn == nil || c.state != StateConnected {
		return fmt.Errorf("feed %s: not connected", action)
	}
	if err := c.conn.WriteJSON(controlFrame{Action: action, Instruments: instruments}); err != nil {
		return fmt.Errorf("feed %s: %w", action, err)
	}
	c.log.Debug("feed "+action, logger.Strings("instruments", instruments))
	return nil
}

// wireFrame is the decoded feed message. Type selects which fields apply.
type wireFrame struct {
	Type          string  `json:"type"` // tick or candle
	InstrumentKey string  `json:"instrument_key"`
	LTP           float64 `json:"ltp"`
	Open          float64 `json:"open"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	Close         float64 `json:"close"`
	Volume        float64 `json:"volume"`
	Interval      string  `json:"interval"`
	TS            int64   `json:"ts"` // ms
}

// Read streams typed market events and terminal errors. The read loop
// survives broken connections by reconnecting with bounded backoff and
// re-issuing the tracked subscription set; it gives up (state FAILED) after
// the configured attempt budget and reports once on the error channel.
func (c *Client) Read(ctx context.Context) (<-chan models.MarketEvent, <-chan error) {
	events := make(chan models.MarketEvent, 1024)
	errs := make(chan error, 1)

	go func() {
		ticker := time.NewTicker(c.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.mu.Lock()
				if c.conn != nil && c.state == StateConnected {
					_ = c.conn.WriteMessage(websocket.PingMessage, nil)
				}
				c.mu.Unlock()
			}
		}
	}()

	go func() {
		defer close(events)
		defer close(errs)
		for {
			conn := c.current()
			if conn == nil {
				errs <- fmt.Errorf("feed read: no connection")
				return
			}
			_, b, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if rerr := c.reconnect(ctx); rerr != nil {
					errs <- rerr
					return
				}
				continue
			}

			var frame wireFrame
			if err := json.Unmarshal(b, &frame); err != nil {
				c.log.Warn("dropping malformed feed frame", logger.Error(err))
				continue
			}

			ev, ok := frame.toEvent()
			if !ok {
				c.log.Debug("dropping unknown feed frame", logger.String("type", frame.Type))
				continue
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, errs
}

func (f wireFrame) toEvent() (models.MarketEvent, bool) {
	if f.InstrumentKey == "" {
		return models.MarketEvent{}, false
	}
	ts := time.UnixMilli(f.TS)
	switch f.Type {
	case "tick":
		return models.MarketEvent{
			Instrument: f.InstrumentKey,
			Tick:       &models.Tick{Instrument: f.InstrumentKey, LTP: f.LTP, Timestamp: ts},
		}, true
	case "candle":
		interval := f.Interval
		if interval == "" {
			interval = "1m"
		}
		return models.MarketEvent{
			Instrument: f.InstrumentKey,
			Candle: &models.Candle{
				Instrument: f.InstrumentKey,
				Open:       f.Open,
				High:       f.High,
				Low:        f.Low,
				Close:      f.Close,
				Volume:     f.Volume,
				Timestamp:  ts,
				Interval:   interval,
			},
		}, true
	}
	return models.MarketEvent{}, false
}

func (c *Client) current() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// reconnect runs the RECONNECTING phase: close, backoff, redial, re-issue
// subscriptions. Exhausting the attempt budget transitions to FAILED.
func (c *Client) reconnect(ctx context.Context) error {
	c.mu.Lock()
	c.state = StateReconnecting
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	delay := c.cfg.ReconnectDelay
	for attempt := 1; attempt <= c.cfg.MaxReconnectAttempts; attempt++ {
		c.log.Warn("feed reconnecting",
			logger.Int("attempt", attempt),
			logger.Duration("delay", delay))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		c.mu.Lock()
		err := c.dialLocked(ctx)
		if err == nil {
			keys := make([]string, 0, len(c.subs))
			for key := range c.subs {
				keys = append(keys, key)
			}
			if len(keys) > 0 {
				err = c.sendControlLocked("subscribe", keys)
			}
		}
		c.mu.Unlock()
		if err == nil {
			return nil
		}
		c.log.Warn("feed reconnect attempt failed", logger.Error(err))

		delay *= 2
		if delay > c.cfg.MaxReconnectDelay {
			delay = c.cfg.MaxReconnectDelay
		}
	}

	c.mu.Lock()
	c.state = StateFailed
	c.mu.Unlock()
	return fmt.Errorf("feed reconnect: gave up after %d attempts", c.cfg.MaxReconnectAttempts)
}

// Close tears the connection down.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateDisconnected
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// State reports the lifecycle phase.
func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether the link is currently up.
func (c *Client) IsConnected() bool { return c.State() == StateConnected }
