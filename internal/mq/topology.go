package mq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Имена топологии.
const (
	// ExchangeEvents — topic-exchange всех событий жизненного цикла.
	// Routing key — вид события: run.status, task.status, task.retry,
	// gate.warning.
	ExchangeEvents = "conveyor.events"

	// QueueAudit — durable-очередь, подписанная на все события.
	// Потребитель — аудит или conveyor-cli events tail.
	QueueAudit = "conveyor.events.audit"

	// BindingAll — паттерн подписки на все виды событий.
	BindingAll = "#"
)

// SetupTopology объявляет exchange, очередь и binding.
// Идемпотентен: повторное объявление существующей топологии — no-op.
func SetupTopology(conn *Connection) error {
	return conn.withChannel(func(ch *amqp.Channel) error {
		err := ch.ExchangeDeclare(
			ExchangeEvents, // name
			"topic",        // type
			true,           // durable
			false,          // auto-deleted
			false,          // internal
			false,          // no-wait
			nil,            // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ExchangeEvents, err)
		}

		_, err = ch.QueueDeclare(
			QueueAudit, // name
			true,       // durable
			false,      // delete when unused
			false,      // exclusive
			false,      // no-wait
			nil,        // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", QueueAudit, err)
		}

		if err := ch.QueueBind(QueueAudit, BindingAll, ExchangeEvents, false, nil); err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", QueueAudit, ExchangeEvents, err)
		}

		return nil
	})
}
