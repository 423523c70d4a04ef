// Package bus carries the external control-plane contract: trading commands
// in and session events out, both as JSON over redis pub/sub.
package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"ScalpPulse/internal/domain/models"
	"ScalpPulse/internal/domain/repository"
	"ScalpPulse/pkg/logger"
)

// Channel names shared with the upstream application.
const (
	CommandChannel = "trading:commands"
	EventChannel   = "trading:events"
)

// Redis implements both the command source and the event publisher over one
// shared client.
type Redis struct {
	client         *redis.Client
	log            *logger.Logger
	commandChannel string
	eventChannel   string
}

func NewRedis(client *redis.Client, log *logger.Logger) *Redis {
	return &Redis{
		client:         client,
		log:            log,
		commandChannel: CommandChannel,
		eventChannel:   EventChannel,
	}
}

// Publish sends one outbound session event.
func (b *Redis) Publish(ctx context.Context, ev models.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, b.eventChannel, data).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Listen consumes inbound commands until ctx is cancelled. Undecodable
// payloads are logged and skipped; they never stop the subscription.
func (b *Redis) Listen(ctx context.Context, handle repository.CommandHandler) error {
	sub := b.client.Subscribe(ctx, b.commandChannel)
	defer sub.Close()

	// Fail fast when the subscription itself cannot be established.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.commandChannel, err)
	}
	b.log.Info("listening for commands", logger.String("channel", b.commandChannel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var cmd models.Command
			if err := json.Unmarshal([]byte(msg.Payload), &cmd); err != nil {
				b.log.Error("failed to decode command", logger.Error(err))
				continue
			}
			handle(ctx, cmd)
		}
	}
}

var (
	_ repository.EventBus      = (*Redis)(nil)
	_ repository.CommandSource = (*Redis)(nil)
)
