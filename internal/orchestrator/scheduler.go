package orchestrator

import (
	"context"
	"log/slog"
	"sort"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/ravskel/conveyor/internal/domain"
	"github.com/ravskel/conveyor/internal/engine"
	"github.com/ravskel/conveyor/internal/events"
	"github.com/ravskel/conveyor/internal/runner"
	"github.com/ravskel/conveyor/internal/state"
)

// scheduler выполняет один run: держит FIFO-очередь готовых задач,
// диспатчит их в ограниченный пул воркеров и пересчитывает готовность
// по завершениям.
//
// Пересчёт локален: завершение задачи трогает только её прямых
// зависимых, поэтому суммарная стоимость за run — O(рёбер), а не
// O(задач²).
type scheduler struct {
	runID   uuid.UUID
	graph   *engine.Graph
	store   state.Store
	runner  *runner.Runner
	emitter *events.Emitter
	logger  *slog.Logger
	workers int

	// aborted выставляется контроллером: диспатч останавливается,
	// задачи в полёте дорабатывают сами.
	aborted *atomic.Bool

	// status — кэш статусов задач; единственный писатель — цикл run,
	// поэтому блокировка не нужна.
	status map[string]domain.TaskStatus
	queue  []string
}

// taskResult — результат одного вызова Runner'а.
type taskResult struct {
	taskID string
	rec    *domain.TaskRecord
	err    error
}

// run крутит цикл диспатча, пока есть что запускать или ждать.
// Возвращает только инфраструктурные ошибки state store; исходы
// самих задач оседают в их record'ах.
func (s *scheduler) run(ctx context.Context) error {
	if err := s.seed(ctx); err != nil {
		return err
	}

	results := make(chan taskResult)
	inFlight := 0
	var firstErr error

	for {
		for firstErr == nil && !s.halted(ctx) && inFlight < s.workers && len(s.queue) > 0 {
			id := s.queue[0]
			s.queue = s.queue[1:]
			if err := s.dispatch(ctx, id, results); err != nil {
				firstErr = err
				break
			}
			inFlight++
		}

		if inFlight == 0 {
			return firstErr
		}

		res := <-results
		inFlight--

		if res.err != nil {
			if firstErr == nil {
				firstErr = res.err
			}
			continue
		}

		s.status[res.taskID] = res.rec.Status

		// Нетерминальный record после Execute означает прерывание:
		// задача осталась PENDING/READY, её подхватит resume.
		if !res.rec.IsFinished() {
			continue
		}

		if firstErr == nil && !s.halted(ctx) {
			if err := s.advance(ctx, res.taskID); err != nil {
				firstErr = err
			}
		}
	}
}

// halted — диспатч остановлен: abort или отмена контекста run.
func (s *scheduler) halted(ctx context.Context) bool {
	return s.aborted.Load() || ctx.Err() != nil
}

// seed строит кэш статусов и начальную очередь.
//
// Обход идёт по топологическим слоям: зависимости размечаются раньше
// зависимых, поэтому skip-каскад от уже упавших задач (resume-сценарий)
// не требует рекурсии. Внутри слоя задачи отсортированы по ID —
// это задаёт детерминированный FIFO-порядок старта.
func (s *scheduler) seed(ctx context.Context) error {
	records, err := s.store.Records(ctx, s.runID)
	if err != nil {
		return err
	}
	s.status = make(map[string]domain.TaskStatus, len(records))
	for i := range records {
		s.status[records[i].TaskID] = records[i].Status
	}

	for _, layer := range s.graph.TopologicalLayers() {
		for _, id := range layer {
			switch s.status[id] {
			case domain.TaskStatusReady:
				// Осталась READY с прошлого запуска — сразу в очередь.
				s.queue = append(s.queue, id)
			case domain.TaskStatusPending:
				task := s.graph.Node(id).Def
				ready, skipReason := s.depState(task)
				switch {
				case skipReason != "":
					if err := s.markSkipped(ctx, id, skipReason); err != nil {
						return err
					}
				case ready:
					if err := s.markReady(ctx, id); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

// dispatch резолвит входной Dataset задачи и запускает Runner в воркере.
func (s *scheduler) dispatch(ctx context.Context, taskID string, results chan<- taskResult) error {
	task := s.graph.Node(taskID).Def

	input, err := s.inputDataset(ctx, task)
	if err != nil {
		return err
	}

	go func() {
		rec, err := s.runner.Execute(ctx, s.runID, task, input)
		results <- taskResult{taskID: taskID, rec: rec, err: err}
	}()
	return nil
}

// inputDataset возвращает входной Dataset задачи: результат первой
// по порядку объявления зависимости, которая его произвела.
// Карантинный Dataset сюда попадает только у толерантной задачи —
// иначе она была бы уже SKIPPED.
func (s *scheduler) inputDataset(ctx context.Context, task *domain.TaskDef) (*domain.Dataset, error) {
	for _, depID := range task.DependsOn {
		rec, err := s.store.Record(ctx, s.runID, depID)
		if err != nil {
			return nil, err
		}
		if rec.Dataset != nil {
			return rec.Dataset, nil
		}
	}
	return nil, nil
}

// advance пересчитывает готовность после терминального завершения задачи.
// Каскад пропусков обрабатывается worklist'ом: каждый новый SKIPPED
// добавляет в него своих зависимых.
func (s *scheduler) advance(ctx context.Context, completed string) error {
	work := []string{completed}

	for len(work) > 0 {
		id := work[0]
		work = work[1:]

		dependents := s.graph.Dependents(id)
		sort.Strings(dependents)

		for _, depID := range dependents {
			// READY/RUNNING/терминальные зависимые пересчитывать нечего:
			// их зависимости уже были терминальны в момент постановки.
			if s.status[depID] != domain.TaskStatusPending {
				continue
			}

			task := s.graph.Node(depID).Def
			ready, skipReason := s.depState(task)
			switch {
			case skipReason != "":
				if err := s.markSkipped(ctx, depID, skipReason); err != nil {
					return err
				}
				work = append(work, depID)
			case ready:
				if err := s.markReady(ctx, depID); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// depState классифицирует зависимости задачи.
//
// ready — все зависимости терминальны и удовлетворяют задачу.
// skipReason непуст — хотя бы одна зависимость терминально
// неудовлетворима (упала/пропущена/в карантине, а задача не толерантна);
// ждать остальных нет смысла, задача пропускается сразу.
func (s *scheduler) depState(task *domain.TaskDef) (ready bool, skipReason string) {
	for _, depID := range task.DependsOn {
		switch s.status[depID] {
		case domain.TaskStatusSucceeded:
		case domain.TaskStatusFailed:
			if !task.AcceptSkipped {
				return false, "dependency " + depID + " failed"
			}
		case domain.TaskStatusSkipped:
			if !task.AcceptSkipped {
				return false, "dependency " + depID + " skipped"
			}
		case domain.TaskStatusQuarantined:
			if !task.AcceptQuarantined {
				return false, "dependency " + depID + " quarantined"
			}
		default:
			// PENDING/READY/RUNNING — ждём.
			return false, ""
		}
	}
	return true, ""
}

// markReady переводит задачу PENDING → READY и ставит её в очередь.
func (s *scheduler) markReady(ctx context.Context, taskID string) error {
	rec, err := s.store.UpdateRecord(ctx, s.runID, taskID, domain.TaskStatusPending, func(rec *domain.TaskRecord) {
		rec.Status = domain.TaskStatusReady
	})
	if err != nil {
		return err
	}
	s.emitter.TaskStatus(ctx, s.runID, taskID, domain.TaskStatusPending, rec.Status, rec.Attempt, "")
	s.status[taskID] = rec.Status
	s.queue = append(s.queue, taskID)
	return nil
}

// markSkipped переводит задачу PENDING → SKIPPED, не запуская её.
func (s *scheduler) markSkipped(ctx context.Context, taskID, reason string) error {
	rec, err := s.store.UpdateRecord(ctx, s.runID, taskID, domain.TaskStatusPending, func(rec *domain.TaskRecord) {
		rec.MarkSkipped(reason)
	})
	if err != nil {
		return err
	}
	s.emitter.TaskStatus(ctx, s.runID, taskID, domain.TaskStatusPending, rec.Status, rec.Attempt, rec.Error)
	s.status[taskID] = rec.Status

	s.logger.Info("task skipped",
		"task_id", taskID,
		"reason", reason,
	)
	return nil
}
