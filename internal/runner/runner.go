package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ravskel/conveyor/internal/connector"
	"github.com/ravskel/conveyor/internal/domain"
	"github.com/ravskel/conveyor/internal/events"
	"github.com/ravskel/conveyor/internal/gate"
	"github.com/ravskel/conveyor/internal/state"
	"github.com/ravskel/conveyor/internal/telemetry"
)

// Ошибки Runner'а.
var (
	// ErrNoInputDataset — ни одна зависимость не произвела Dataset,
	// а операция требует входных данных.
	ErrNoInputDataset = errors.New("no input dataset produced by dependencies")
)

// Runner выполняет одну задачу от READY до терминального статуса.
type Runner struct {
	registry *connector.Registry
	store    state.Store
	gate     *gate.Gate
	emitter  *events.Emitter
	logger   *slog.Logger
}

// Config — конфигурация Runner'а.
type Config struct {
	Registry *connector.Registry
	Store    state.Store
	Gate     *gate.Gate
	Emitter  *events.Emitter
	Logger   *slog.Logger
}

// New создаёт Runner.
func New(cfg Config) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	g := cfg.Gate
	if g == nil {
		g = gate.New(nil)
	}
	return &Runner{
		registry: cfg.Registry,
		store:    cfg.Store,
		gate:     g,
		emitter:  cfg.Emitter,
		logger:   logger,
	}
}

// attemptOutcome — классифицированный исход одной попытки.
type attemptOutcome int

const (
	outcomeSuccess attemptOutcome = iota
	outcomeRetryable
	outcomeFatal
	outcomeTimeout
)

// Execute выполняет задачу целиком: все попытки, backoff между ними,
// quality gate после успеха. Record задачи обязан быть в READY.
//
// Ошибка возвращается только на инфраструктурные сбои state store;
// ошибки самой задачи оседают в её record'е.
func (r *Runner) Execute(ctx context.Context, runID uuid.UUID, task *domain.TaskDef, input *domain.Dataset) (*domain.TaskRecord, error) {
	maxAttempts := task.MaxAttempts()
	log := r.taskLog(runID, task.ID)

	for {
		// Переход в RUNNING: увеличивает счётчик попыток.
		rec, err := r.transition(ctx, runID, task.ID, domain.TaskStatusReady, func(rec *domain.TaskRecord) {
			rec.MarkRunning()
		})
		if err != nil {
			return nil, err
		}

		log.Info("task attempt started", "kind", task.Kind, "attempt", rec.Attempt)

		ds, invokeErr := r.invoke(ctx, task, input)

		if invokeErr == nil {
			return r.finishSuccess(ctx, runID, task, ds)
		}

		// Отмена контекста run — не ошибка задачи: возвращаем её в PENDING,
		// прерванная попытка не тратится, resume запустит её заново.
		if errors.Is(invokeErr, context.Canceled) && ctx.Err() != nil {
			return r.transition(context.WithoutCancel(ctx), runID, task.ID, domain.TaskStatusRunning, func(rec *domain.TaskRecord) {
				rec.Status = domain.TaskStatusPending
				if rec.Attempt > 0 {
					rec.Attempt--
				}
			})
		}

		outcome := classify(invokeErr)
		errMsg := invokeErr.Error()

		// Retryable и timeout повторяются до исчерпания попыток;
		// всё остальное фатально сразу.
		retry := (outcome == outcomeRetryable || outcome == outcomeTimeout) &&
			rec.CanRetry(maxAttempts)

		if !retry {
			if outcome != outcomeFatal {
				errMsg = fmt.Sprintf("%s (attempts exhausted: %d/%d)", errMsg, rec.Attempt, maxAttempts)
			}
			failed, err := r.transition(ctx, runID, task.ID, domain.TaskStatusRunning, func(rec *domain.TaskRecord) {
				rec.MarkFailed(errMsg)
			})
			if err != nil {
				return nil, err
			}
			log.Warn("task failed", "attempt", failed.Attempt, "error", errMsg)
			return failed, nil
		}

		// Re-queue: RUNNING → PENDING → READY, затем backoff.
		if _, err := r.transition(ctx, runID, task.ID, domain.TaskStatusRunning, func(rec *domain.TaskRecord) {
			rec.MarkRequeued(errMsg)
		}); err != nil {
			return nil, err
		}
		if _, err := r.transition(ctx, runID, task.ID, domain.TaskStatusPending, func(rec *domain.TaskRecord) {
			rec.Status = domain.TaskStatusReady
		}); err != nil {
			return nil, err
		}

		delay := NextDelay(rec.Attempt, task.Retry)
		r.emitter.TaskRetry(ctx, runID, task.ID, rec.Attempt, delay, errMsg)

		log.Debug("retrying task", "attempt", rec.Attempt, "delay", delay)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			// Run прерван во время ожидания: задача остаётся READY,
			// resume подхватит её свежей попыткой.
			requeued, err := r.store.Record(context.WithoutCancel(ctx), runID, task.ID)
			if err != nil {
				return nil, err
			}
			return requeued, nil
		}
	}
}

// finishSuccess прогоняет Dataset через quality gate и завершает задачу.
func (r *Runner) finishSuccess(ctx context.Context, runID uuid.UUID, task *domain.TaskDef, ds *domain.Dataset) (*domain.TaskRecord, error) {
	var gateResult *gate.Result
	if ds != nil {
		g, err := r.taskGate(task)
		if err == nil {
			gateResult, err = g.Evaluate(ctx, task, ds)
		}
		if err != nil {
			// Инфраструктурный сбой Checker'а — классифицируется как
			// обычная ошибка коннектора, но попытки уже потрачены на
			// произведённый Dataset; фиксируем провал.
			return r.transition(ctx, runID, task.ID, domain.TaskStatusRunning, func(rec *domain.TaskRecord) {
				rec.MarkFailed(err.Error())
			})
		}
	}

	if gateResult != nil {
		for _, warning := range gateResult.Warnings {
			r.emitter.GateWarning(ctx, runID, task.ID, warning)
		}

		switch gateResult.Decision {
		case gate.DecisionFail:
			// Dataset отбрасывается; вниз по графу пойдёт skip-каскад.
			return r.transition(ctx, runID, task.ID, domain.TaskStatusRunning, func(rec *domain.TaskRecord) {
				rec.MarkFailed(gateResult.Reason)
			})
		case gate.DecisionQuarantine:
			// Карантин не тратит retry-попытки и не повторяется.
			return r.transition(ctx, runID, task.ID, domain.TaskStatusRunning, func(rec *domain.TaskRecord) {
				rec.MarkQuarantined(ds, gateResult.Reason)
			})
		}
	}

	succeeded, err := r.transition(ctx, runID, task.ID, domain.TaskStatusRunning, func(rec *domain.TaskRecord) {
		rec.MarkSucceeded(ds)
	})
	if err != nil {
		return nil, err
	}

	r.taskLog(runID, task.ID).Info("task succeeded", "attempt", succeeded.Attempt)
	return succeeded, nil
}

// taskLog возвращает логгер, скоупированный на задачу run'а.
func (r *Runner) taskLog(runID uuid.UUID, taskID string) *slog.Logger {
	return telemetry.WithTaskID(telemetry.WithRunID(r.logger, runID), taskID)
}

// taskGate возвращает gate для задачи: check-задача валидируется
// Checker'ом собственного коннектора, остальные виды — общим Checker'ом
// контроллера.
func (r *Runner) taskGate(task *domain.TaskDef) (*gate.Gate, error) {
	if task.Kind != domain.TaskKindCheck || r.registry == nil {
		return r.gate, nil
	}
	checker, err := r.registry.Checker(task.Connector)
	if err != nil {
		return nil, err
	}
	return gate.New(checker), nil
}

// invoke вызывает операцию коннектора под таймаутом попытки.
//
// Вызов выполняется в отдельной горутине: по истечении дедлайна Runner
// перестаёт ждать и освобождает воркер, а поздний результат брошенного
// вызова отбрасывается.
func (r *Runner) invoke(ctx context.Context, task *domain.TaskDef, input *domain.Dataset) (*domain.Dataset, error) {
	attemptCtx := ctx
	if timeout := task.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type result struct {
		ds  *domain.Dataset
		err error
	}
	done := make(chan result, 1)

	go func() {
		ds, err := r.invokeConnector(attemptCtx, task, input)
		done <- result{ds: ds, err: err}
	}()

	select {
	case res := <-done:
		return res.ds, res.err
	case <-attemptCtx.Done():
		// Поздний результат уйдёт в буферизованный канал и будет отброшен.
		return nil, attemptCtx.Err()
	}
}

// invokeConnector диспетчеризует вызов по виду задачи.
func (r *Runner) invokeConnector(ctx context.Context, task *domain.TaskDef, input *domain.Dataset) (*domain.Dataset, error) {
	cfg := connector.Config(task.Config)

	switch task.Kind {
	case domain.TaskKindExtract:
		ex, err := r.registry.Extractor(task.Connector)
		if err != nil {
			return nil, err
		}
		ds, err := ex.Extract(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return stamp(ds, task.ID), nil

	case domain.TaskKindTransform:
		tr, err := r.registry.Transformer(task.Connector)
		if err != nil {
			return nil, err
		}
		if input == nil {
			return nil, ErrNoInputDataset
		}
		ds, err := tr.Transform(ctx, input, cfg)
		if err != nil {
			return nil, err
		}
		return stamp(ds, task.ID), nil

	case domain.TaskKindLoad:
		ld, err := r.registry.Loader(task.Connector)
		if err != nil {
			return nil, err
		}
		if input == nil {
			return nil, ErrNoInputDataset
		}
		if _, err := ld.Load(ctx, input, cfg); err != nil {
			return nil, err
		}
		// Load не производит Dataset.
		return nil, nil

	case domain.TaskKindCheck:
		// Check-задача — это gate над входным Dataset: её правила
		// оценивает Checker объявленного коннектора (см. taskGate).
		// Отдельной операции у коннектора нет, Dataset транслируется вниз.
		if input == nil {
			return nil, ErrNoInputDataset
		}
		return stampCheck(input, task.ID), nil

	default:
		return nil, fmt.Errorf("unknown task kind %q", task.Kind)
	}
}

// stamp проставляет производителя и время производства Dataset.
func stamp(ds *domain.Dataset, taskID string) *domain.Dataset {
	if ds == nil {
		return nil
	}
	cp := *ds
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	cp.ProducedBy = taskID
	if cp.ProducedAt.IsZero() {
		cp.ProducedAt = time.Now()
	}
	return &cp
}

// stampCheck — check-задача транслирует входной Dataset вниз как свой
// результат, не копируя данные (Ref тот же).
func stampCheck(input *domain.Dataset, taskID string) *domain.Dataset {
	cp := *input
	cp.ID = uuid.New()
	cp.ProducedBy = taskID
	cp.ProducedAt = time.Now()
	return &cp
}

// classify сводит ошибку попытки к одному из исходов.
func classify(err error) attemptOutcome {
	switch {
	case connector.IsTimeout(err):
		return outcomeTimeout
	case connector.IsRetryable(err):
		return outcomeRetryable
	default:
		return outcomeFatal
	}
}

// transition применяет переход статуса и эмитит событие.
func (r *Runner) transition(ctx context.Context, runID uuid.UUID, taskID string, from domain.TaskStatus, mutate func(*domain.TaskRecord)) (*domain.TaskRecord, error) {
	rec, err := r.store.UpdateRecord(ctx, runID, taskID, from, mutate)
	if err != nil {
		return nil, fmt.Errorf("transition task %s from %s: %w", taskID, from, err)
	}
	r.emitter.TaskStatus(ctx, runID, taskID, from, rec.Status, rec.Attempt, rec.Error)
	return rec, nil
}
