package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ravskel/conveyor/internal/domain"
)

// Fanout рассылает каждое событие во все sink'и.
// Ошибки отдельных sink'ов собираются, но не прерывают рассылку.
type Fanout []Sink

// Emit реализует Sink.
func (f Fanout) Emit(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range f {
		if err := s.Emit(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Memory — sink, накапливающий события в памяти.
// Используется в тестах и для аудита в рамках процесса.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

// NewMemory создаёт пустой Memory-sink.
func NewMemory() *Memory {
	return &Memory{}
}

// Emit реализует Sink.
func (m *Memory) Emit(_ context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

// Events возвращает копию накопленных событий в порядке эмиссии.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// Emitter присваивает событиям порядковые номера и отправляет их в Sink.
//
// Единственная точка эмиссии для планировщика, Runner'а и gate:
// Seq растёт монотонно, поэтому поток упорядочен независимо от того,
// из какого воркера пришло событие.
type Emitter struct {
	sink   Sink
	logger *slog.Logger
	seq    atomic.Uint64
}

// NewEmitter создаёт Emitter поверх sink'а.
// Nil sink эквивалентен Discard.
func NewEmitter(sink Sink, logger *slog.Logger) *Emitter {
	if sink == nil {
		sink = Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{sink: sink, logger: logger}
}

// Emit отправляет событие, проставив Seq и Timestamp.
// Ошибка sink'а логируется и не возвращается: наблюдаемость
// не должна влиять на выполнение.
func (e *Emitter) Emit(ctx context.Context, ev Event) {
	ev.Seq = e.seq.Add(1)
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	if err := e.sink.Emit(ctx, ev); err != nil {
		e.logger.Warn("event sink failed",
			"kind", ev.Kind,
			"run_id", ev.RunID,
			"task_id", ev.TaskID,
			"error", err,
		)
	}
}

// RunStatus эмитит переход статуса run.
func (e *Emitter) RunStatus(ctx context.Context, runID uuid.UUID, pipeline string, old, new domain.RunStatus, errMsg string) {
	e.Emit(ctx, Event{
		Kind:      KindRunStatus,
		RunID:     runID,
		Pipeline:  pipeline,
		OldStatus: string(old),
		NewStatus: string(new),
		Error:     errMsg,
	})
}

// TaskStatus эмитит переход статуса задачи.
func (e *Emitter) TaskStatus(ctx context.Context, runID uuid.UUID, taskID string, old, new domain.TaskStatus, attempt int, errMsg string) {
	e.Emit(ctx, Event{
		Kind:      KindTaskStatus,
		RunID:     runID,
		TaskID:    taskID,
		OldStatus: string(old),
		NewStatus: string(new),
		Attempt:   attempt,
		Error:     errMsg,
	})
}

// TaskRetry эмитит событие о запланированном повторе.
func (e *Emitter) TaskRetry(ctx context.Context, runID uuid.UUID, taskID string, attempt int, delay time.Duration, reason string) {
	e.Emit(ctx, Event{
		Kind:    KindTaskRetry,
		RunID:   runID,
		TaskID:  taskID,
		Attempt: attempt,
		Detail:  delay.String(),
		Error:   reason,
	})
}

// GateWarning эмитит advisory-предупреждение quality gate.
func (e *Emitter) GateWarning(ctx context.Context, runID uuid.UUID, taskID, detail string) {
	e.Emit(ctx, Event{
		Kind:   KindGateWarning,
		RunID:  runID,
		TaskID: taskID,
		Detail: detail,
	})
}
