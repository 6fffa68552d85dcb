package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Kind — вид события жизненного цикла.
type Kind string

// Виды событий.
const (
	// KindRunStatus — переход статуса run.
	KindRunStatus Kind = "run.status"

	// KindTaskStatus — переход статуса задачи.
	KindTaskStatus Kind = "task.status"

	// KindTaskRetry — запланирован повтор задачи.
	KindTaskRetry Kind = "task.retry"

	// KindGateWarning — quality gate в режиме advisory сообщил о fail/warn.
	KindGateWarning Kind = "gate.warning"
)

// Event — одно событие жизненного цикла.
//
// Для переходов статуса заполняются OldStatus/NewStatus; Seq задаёт
// тотальный порядок в пределах одного эмиттера.
type Event struct {
	// Seq — порядковый номер события.
	Seq uint64 `json:"seq"`

	// Kind — вид события.
	Kind Kind `json:"kind"`

	// RunID — run, к которому относится событие.
	RunID uuid.UUID `json:"run_id"`

	// Pipeline — имя пайплайна.
	Pipeline string `json:"pipeline,omitempty"`

	// TaskID — задача (пусто для run-уровневых событий).
	TaskID string `json:"task_id,omitempty"`

	// OldStatus, NewStatus — переход статуса.
	OldStatus string `json:"old_status,omitempty"`
	NewStatus string `json:"new_status,omitempty"`

	// Attempt — номер попытки (для task-событий).
	Attempt int `json:"attempt,omitempty"`

	// Error — текст ошибки, если переход вызван ошибкой.
	Error string `json:"error,omitempty"`

	// Detail — дополнительное пояснение (причина retry, текст warning'а).
	Detail string `json:"detail,omitempty"`

	// Timestamp — время события.
	Timestamp time.Time `json:"timestamp"`
}

// Sink принимает поток событий.
//
// Реализации: лог, Prometheus-метрики, публикация в RabbitMQ,
// запись в память для тестов. Ошибка sink'а не должна валить run —
// эмиттер логирует её и продолжает.
type Sink interface {
	Emit(ctx context.Context, ev Event) error
}

// SinkFunc — адаптер функции к интерфейсу Sink.
type SinkFunc func(ctx context.Context, ev Event) error

// Emit реализует Sink.
func (f SinkFunc) Emit(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// Discard — sink, молча отбрасывающий события.
var Discard Sink = SinkFunc(func(context.Context, Event) error { return nil })
