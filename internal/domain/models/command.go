package models

import (
	"fmt"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

// Command actions accepted on the inbound channel. Unknown actions are
// logged and ignored, never fatal.
const (
	ActionStartTrading = "START_TRADING"
	ActionStopTrading  = "STOP_TRADING"
)

// Outbound event types.
const (
	EventSignal         = "SIGNAL"
	EventSessionStarted = "SESSION_STARTED"
	EventSessionStopped = "SESSION_STOPPED"
	EventError          = "ERROR"
)

// StrategyConfig is the per-session tuning block carried by a START_TRADING
// command. Percent fields are expressed in percent, not fractions (0.3 means
// 0.3%).
type StrategyConfig struct {
	Symbol          string  `json:"symbol" validate:"required"`
	TradeMode       string  `json:"trade_mode" default:"VIRTUAL" validate:"oneof=LIVE VIRTUAL"`
	Capital         float64 `json:"capital" default:"100000" validate:"gte=0"`
	CooldownSeconds int     `json:"cooldown_duration_seconds" default:"300" validate:"gt=0"`
	TargetPercent   float64 `json:"target_percent" default:"0.3" validate:"gt=0"`
	StopLossPercent float64 `json:"stop_loss_percent" default:"0.2" validate:"gt=0"`
	MinVolumeRatio  float64 `json:"min_volume_ratio" default:"0.8" validate:"gt=0"`
	MinConfidence   float64 `json:"min_confidence" default:"40" validate:"gte=0,lte=100"`
	StrikeStep      float64 `json:"strike_step" default:"100" validate:"gt=0"`
}

// Cooldown returns the trade-lock duration.
func (c StrategyConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownSeconds) * time.Second
}

var validate = validator.New()

// Normalize fills defaults and validates the config. Invalid configs reject
// the START command before any session state is created.
func (c *StrategyConfig) Normalize() error {
	if err := defaults.Set(c); err != nil {
		return fmt.Errorf("apply defaults: %w", err)
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("validate strategy config: %w", err)
	}
	return nil
}

// CommandData is the payload of an inbound command.
type CommandData struct {
	AccessToken    string         `json:"access_token"`
	StrategyConfig StrategyConfig `json:"strategy_config"`
}

// Command is one message consumed from the command channel.
type Command struct {
	Action string      `json:"action"`
	UserID string      `json:"user_id"`
	Data   CommandData `json:"data"`
}

// Event is one message published to the events channel.
type Event struct {
	Type      string      `json:"type"`
	UserID    string      `json:"user_id"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}
