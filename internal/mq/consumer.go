package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/ravskel/conveyor/internal/events"
)

// EventHandler — обработчик одного события из очереди.
// Ошибка возвращает сообщение в очередь (nack + requeue).
type EventHandler func(ctx context.Context, ev events.Event) error

// Tailer потребляет поток событий из очереди RabbitMQ.
// Используется conveyor-cli events tail и внешними аудит-потребителями.
type Tailer struct {
	conn     *Connection
	logger   *slog.Logger
	queue    string
	pattern  string
	handler  EventHandler
	prefetch int
}

// TailerConfig — конфигурация Tailer'а.
type TailerConfig struct {
	// Queue — имя очереди. Пустое — эксклюзивная авто-очередь
	// (живёт, пока жив подписчик).
	Queue string

	// Pattern — паттерн routing key (task.*, gate.warning, # и т.п.).
	// Пустой эквивалентен #.
	Pattern string

	// Handler — обработчик событий.
	Handler EventHandler

	// Prefetch — количество неподтверждённых сообщений в полёте.
	Prefetch int
}

// NewTailer создаёт Tailer.
func NewTailer(conn *Connection, logger *slog.Logger, cfg TailerConfig) *Tailer {
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 16
	}
	pattern := cfg.Pattern
	if pattern == "" {
		pattern = BindingAll
	}

	return &Tailer{
		conn:     conn,
		logger:   logger,
		queue:    cfg.Queue,
		pattern:  pattern,
		handler:  cfg.Handler,
		prefetch: prefetch,
	}
}

// Run потребляет события до отмены контекста.
// Разрыв соединения переживается: после reconnect подписка
// восстанавливается заново.
func (t *Tailer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		deliveries, err := t.subscribe()
		if err != nil {
			t.logger.Error("failed to subscribe", "queue", t.queue, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.conn.ReconnectNotify():
				t.logger.Info("reconnected, resubscribing", "queue", t.queue)
				continue
			}
		}

		t.logger.Info("tailing events", "queue", t.queue, "pattern", t.pattern)

		if err := t.drain(ctx, deliveries); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			t.logger.Warn("deliveries channel closed, reconnecting", "queue", t.queue)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.conn.ReconnectNotify():
				continue
			}
		}
	}
}

// subscribe объявляет очередь, binding и начинает потребление.
func (t *Tailer) subscribe() (<-chan amqp.Delivery, error) {
	ch := t.conn.Channel()
	if ch == nil {
		return nil, fmt.Errorf("no channel available")
	}

	if err := ch.Qos(t.prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}

	queue := t.queue
	if queue == "" {
		q, err := ch.QueueDeclare(
			"",    // auto-generated name
			false, // durable
			true,  // delete when unused
			true,  // exclusive
			false, // no-wait
			nil,   // arguments
		)
		if err != nil {
			return nil, fmt.Errorf("declare tail queue: %w", err)
		}
		queue = q.Name
	}

	if err := ch.QueueBind(queue, t.pattern, ExchangeEvents, false, nil); err != nil {
		return nil, fmt.Errorf("bind %s to %s: %w", queue, ExchangeEvents, err)
	}

	deliveries, err := ch.Consume(
		queue, // queue
		"",    // consumer tag (auto-generated)
		false, // auto-ack (ack вручную)
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}

	return deliveries, nil
}

// drain обрабатывает сообщения до отмены контекста или закрытия канала.
func (t *Tailer) drain(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case raw, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("deliveries channel closed")
			}
			t.handleDelivery(ctx, raw)
		}
	}
}

// handleDelivery парсит и обрабатывает одно сообщение.
func (t *Tailer) handleDelivery(ctx context.Context, raw amqp.Delivery) {
	var ev events.Event
	if err := json.Unmarshal(raw.Body, &ev); err != nil {
		t.logger.Error("failed to unmarshal event",
			"queue", t.queue,
			"error", err,
			"body", string(raw.Body),
		)
		// Некорректное событие повторять бессмысленно.
		raw.Nack(false, false)
		return
	}

	if err := t.handler(ctx, ev); err != nil {
		t.logger.Error("event handler failed",
			"queue", t.queue,
			"kind", ev.Kind,
			"run_id", ev.RunID,
			"error", err,
		)
		raw.Nack(false, true)
		return
	}

	raw.Ack(false)
}
