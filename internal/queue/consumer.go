package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Consumer delivers reset mails published on a durable queue.
type Consumer struct {
	URL    string
	Queue  string
	Sender Sender
	Log    zerolog.Logger
}

// Run connects to RabbitMQ, declares the queue and consumes until ctx is
// cancelled. Broker failures trigger a reconnect with exponential backoff;
// a message that cannot be delivered is logged and rejected without requeue
// so the worker keeps going.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			c.Log.Warn().Err(err).Dur("retry_in", backoff).Msg("mail-consumer: dial broker failed")
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.Log.Warn().Err(err).Msg("mail-consumer: consume loop ended, reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(10, 0, false); err != nil {
		c.Log.Warn().Err(err).Msg("mail-consumer: set QoS failed")
	}
	if _, err := ch.QueueDeclare(c.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.ConsumeWithContext(ctx, c.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.Handle(ctx, d.Body); err != nil {
				c.Log.Error().Err(err).Msg("mail-consumer: handle message failed")
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// Handle decodes one message and hands it to the sender.
func (c *Consumer) Handle(ctx context.Context, body []byte) error {
	var m PasswordResetMail
	if err := json.Unmarshal(body, &m); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if strings.TrimSpace(m.To) == "" || m.ResetURL == "" {
		return errors.New("incomplete mail event")
	}
	if err := c.Sender.Send(ctx, m); err != nil {
		return err
	}
	c.Log.Info().Str("to", m.To).Msg("mail-consumer: reset mail delivered")
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
