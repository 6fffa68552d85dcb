package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/ravskel/conveyor/internal/events"
)

// Publisher — events.Sink, публикующий события в conveyor.events.
//
// Сообщения персистентные и переживают рестарт RabbitMQ; routing key —
// вид события, поэтому подписчики могут фильтровать поток паттерном
// (например, только task.* или только gate.warning).
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт Publisher поверх соединения.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Emit реализует events.Sink.
func (p *Publisher) Emit(ctx context.Context, ev events.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	routingKey := string(ev.Kind)

	return p.conn.withChannel(func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			ExchangeEvents,
			routingKey,
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    ev.RunID.String() + "/" + strconv.FormatUint(ev.Seq, 10),
				Timestamp:    ev.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", ExchangeEvents, routingKey, err)
		}

		p.logger.Debug("published event",
			"routing_key", routingKey,
			"run_id", ev.RunID,
			"task_id", ev.TaskID,
			"seq", ev.Seq,
		)

		return nil
	})
}
