package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ravskel/conveyor/internal/connector"
	"github.com/ravskel/conveyor/internal/domain"
	"github.com/ravskel/conveyor/internal/engine"
	"github.com/ravskel/conveyor/internal/events"
	"github.com/ravskel/conveyor/internal/gate"
	"github.com/ravskel/conveyor/internal/runner"
	"github.com/ravskel/conveyor/internal/state"
	"github.com/ravskel/conveyor/internal/telemetry"
)

// defaultMaxWorkers — размер пула воркеров по умолчанию.
const defaultMaxWorkers = 4

// Controller — внешний контракт ядра: Submit / Status / Abort / Resume.
//
// Машина состояний run'а:
//
//	INITIALIZING → RUNNING → {SUCCEEDED, FAILED, ABORTED}
//
// Ошибка валидации на Initializing переводит run сразу в FAILED,
// не запуская ни одной задачи. Терминальные статусы финальны:
// resume никогда не мутирует терминальный run.
type Controller struct {
	store    state.Store
	registry *connector.Registry
	runner   *runner.Runner
	emitter  *events.Emitter
	logger   *slog.Logger
	workers  int

	mu     sync.Mutex
	active map[uuid.UUID]*activeRun
	wg     sync.WaitGroup
}

// activeRun — run, выполняющийся в этом процессе.
type activeRun struct {
	cancel  context.CancelFunc
	aborted atomic.Bool
	done    chan struct{}
}

// Config — конфигурация контроллера.
type Config struct {
	// Store — state store (память или Postgres).
	Store state.Store

	// Registry — реестр коннекторов.
	Registry *connector.Registry

	// Checker — внешний Checker для gate-правил extract-, transform-
	// и load-задач. Check-задачи валидируются Checker'ом собственного
	// коннектора из Registry. Nil допустим, если gate-правила объявляют
	// только check-задачи либо никто.
	Checker connector.Checker

	// Emitter — эмиттер событий жизненного цикла. Nil — события
	// отбрасываются.
	Emitter *events.Emitter

	// Logger — структурный логгер. Nil — slog.Default().
	Logger *slog.Logger

	// MaxWorkers — максимум одновременно выполняющихся задач.
	MaxWorkers int
}

// New создаёт Controller.
func New(cfg Config) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	emitter := cfg.Emitter
	if emitter == nil {
		emitter = events.NewEmitter(nil, logger)
	}
	workers := cfg.MaxWorkers
	if workers <= 0 {
		workers = defaultMaxWorkers
	}

	r := runner.New(runner.Config{
		Registry: cfg.Registry,
		Store:    cfg.Store,
		Gate:     gate.New(cfg.Checker),
		Emitter:  emitter,
		Logger:   logger,
	})

	return &Controller{
		store:    cfg.Store,
		registry: cfg.Registry,
		runner:   r,
		emitter:  emitter,
		logger:   logger,
		workers:  workers,
		active:   make(map[uuid.UUID]*activeRun),
	}
}

// Submit создаёт run из PipelineSpec и запускает его выполнение.
//
// Run создаётся в INITIALIZING до валидации: невалидный пайплайн
// оставляет в store терминальный FAILED-run с текстом ошибки
// (след для аудита), а вызывающему возвращается ErrInvalidPipeline
// вместе с ID этого run'а.
func (c *Controller) Submit(ctx context.Context, spec *domain.PipelineSpec) (uuid.UUID, error) {
	if spec == nil || len(spec.Tasks) == 0 {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrInvalidPipeline, engine.ErrEmptyPipeline)
	}

	fp, err := state.Fingerprint(spec)
	if err != nil {
		return uuid.Nil, err
	}

	run := &domain.Run{
		ID:          uuid.New(),
		Pipeline:    spec.Name,
		Fingerprint: fp,
		Status:      domain.RunStatusInitializing,
		CreatedAt:   time.Now(),
	}
	if _, err := c.store.CreateRun(ctx, run, spec); err != nil {
		return uuid.Nil, err
	}

	graph, err := c.validate(spec)
	if err != nil {
		c.failInitializing(ctx, run, err)
		return run.ID, fmt.Errorf("%w: %v", ErrInvalidPipeline, err)
	}

	c.start(run, graph)
	return run.ID, nil
}

// Status возвращает снимок run'а: статус, record'ы задач, счётчики.
// Store — единственный источник истины, поэтому Status отражает
// последнее известное состояние и после падения процесса.
func (c *Controller) Status(ctx context.Context, runID uuid.UUID) (*domain.RunSnapshot, error) {
	return c.store.Snapshot(ctx, runID)
}

// Abort запрашивает прерывание run'а.
//
// Abort советующий: новые задачи перестают диспатчиться немедленно,
// задачи в полёте дорабатывают до своего терминального статуса или
// таймаута. Недиспатченные задачи остаются PENDING либо READY.
// Для терминального run'а Abort — no-op.
func (c *Controller) Abort(ctx context.Context, runID uuid.UUID) error {
	c.mu.Lock()
	ar, isActive := c.active[runID]
	c.mu.Unlock()

	if isActive {
		ar.aborted.Store(true)
		telemetry.WithRunID(c.logger, runID).Info("run abort requested")
		return nil
	}

	// Run не выполняется в этом процессе: осиротевший после падения
	// нетерминальный run помечается ABORTED напрямую.
	run, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.IsFinished() {
		return nil
	}
	c.finishRun(ctx, run, func(r *domain.Run) { r.MarkAborted() })
	return nil
}

// Resume возобновляет нетерминальный run.
//
// Уже завершившийся run не перезапускается — возвращается его же ID
// без выполнения каких-либо задач (идемпотентность resume). SUCCEEDED
// задачи остаются на месте, застрявшие в RUNNING после падения процесса
// возвращаются в PENDING без расхода попытки, выполняются только
// незавершённые.
//
// spec необязателен: nil означает «взять сохранённый при Submit».
// Переданный spec сверяется по отпечатку — дрейф графа между
// запусками возвращает ErrGraphMismatch.
func (c *Controller) Resume(ctx context.Context, runID uuid.UUID, spec *domain.PipelineSpec) (uuid.UUID, error) {
	c.mu.Lock()
	_, isActive := c.active[runID]
	c.mu.Unlock()
	if isActive {
		return runID, fmt.Errorf("%w: %s", ErrRunAlreadyActive, runID)
	}

	run, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return uuid.Nil, err
	}
	if run.IsFinished() {
		return runID, nil
	}

	if spec == nil {
		spec, err = c.store.Spec(ctx, runID)
		if err != nil {
			return uuid.Nil, err
		}
	} else {
		fp, err := state.Fingerprint(spec)
		if err != nil {
			return uuid.Nil, err
		}
		if fp != run.Fingerprint {
			return uuid.Nil, fmt.Errorf("%w: run %s", ErrGraphMismatch, runID)
		}
	}

	graph, err := c.validate(spec)
	if err != nil {
		c.failInitializing(ctx, run, err)
		return runID, fmt.Errorf("%w: %v", ErrInvalidPipeline, err)
	}

	// Crash-recovery: RUNNING в store без живого процесса — прерванная
	// попытка. Возвращаем её в PENDING, не тратя счётчик попыток.
	records, err := c.store.Records(ctx, runID)
	if err != nil {
		return uuid.Nil, err
	}
	for i := range records {
		if records[i].Status != domain.TaskStatusRunning {
			continue
		}
		if _, err := c.store.UpdateRecord(ctx, runID, records[i].TaskID, domain.TaskStatusRunning, func(rec *domain.TaskRecord) {
			rec.Status = domain.TaskStatusPending
			if rec.Attempt > 0 {
				rec.Attempt--
			}
		}); err != nil {
			return uuid.Nil, err
		}
	}

	c.runLog(run).Info("run resumed")
	c.start(run, graph)
	return runID, nil
}

// Wait блокирует до завершения run'а в этом процессе.
// Для неактивного run возвращается сразу.
func (c *Controller) Wait(runID uuid.UUID) {
	c.mu.Lock()
	ar, ok := c.active[runID]
	c.mu.Unlock()
	if !ok {
		return
	}
	<-ar.done
}

// Stop отменяет контексты всех активных run'ов и ждёт их горутины.
// Статусы run'ов остаются RUNNING в store; после рестарта процесса
// Resume продолжит их с места остановки.
func (c *Controller) Stop() {
	c.mu.Lock()
	for _, ar := range c.active {
		ar.cancel()
	}
	c.mu.Unlock()
	c.wg.Wait()
}

// validate строит граф и проверяет, что реестр знает каждый коннектор.
func (c *Controller) validate(spec *domain.PipelineSpec) (*engine.Graph, error) {
	graph, err := engine.Build(spec)
	if err != nil {
		return nil, err
	}
	if c.registry != nil {
		for i := range spec.Tasks {
			task := &spec.Tasks[i]
			if err := c.registry.Supports(task.Connector, task.Kind); err != nil {
				return nil, fmt.Errorf("task %s: %w", task.ID, err)
			}
		}
	}
	return graph, nil
}

// start регистрирует run активным и запускает его горутину.
func (c *Controller) start(run *domain.Run, graph *engine.Graph) {
	runCtx, cancel := context.WithCancel(context.Background())
	ar := &activeRun{cancel: cancel, done: make(chan struct{})}

	c.mu.Lock()
	c.active[run.ID] = ar
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()
		defer close(ar.done)
		defer func() {
			c.mu.Lock()
			delete(c.active, run.ID)
			c.mu.Unlock()
		}()
		c.execute(runCtx, run, graph, ar)
	}()
}

// runLog возвращает логгер, скоупированный на run.
func (c *Controller) runLog(run *domain.Run) *slog.Logger {
	return telemetry.WithPipeline(telemetry.WithRunID(c.logger, run.ID), run.Pipeline)
}

// execute ведёт run от RUNNING до терминального статуса.
func (c *Controller) execute(ctx context.Context, run *domain.Run, graph *engine.Graph, ar *activeRun) {
	log := c.runLog(run)

	old := run.Status
	run.MarkRunning()
	if err := c.store.UpdateRun(ctx, run); err != nil {
		log.Error("mark run running", "error", err)
		return
	}
	if old != run.Status {
		c.emitter.RunStatus(ctx, run.ID, run.Pipeline, old, run.Status, "")
	}

	log.Info("run started", "tasks", graph.Size(), "workers", c.workers)

	s := &scheduler{
		runID:   run.ID,
		graph:   graph,
		store:   c.store,
		runner:  c.runner,
		emitter: c.emitter,
		logger:  log,
		workers: c.workers,
		aborted: &ar.aborted,
	}
	if err := s.run(ctx); err != nil {
		log.Error("scheduler loop failed", "error", err)
	}

	c.finalize(ctx, run, graph, ar)
}

// finalize выводит run в терминальный статус по record'ам задач.
//
// Run SUCCEEDED, только если каждая задача SUCCEEDED либо её провал
// толерируется критичностью skip. Незавершённые record'ы означают
// остановку процесса (Stop): run остаётся RUNNING для будущего resume.
func (c *Controller) finalize(ctx context.Context, run *domain.Run, graph *engine.Graph, ar *activeRun) {
	// Терминализация должна пройти и после отмены контекста run.
	ctx = context.WithoutCancel(ctx)

	if ar.aborted.Load() {
		c.finishRun(ctx, run, func(r *domain.Run) { r.MarkAborted() })
		return
	}

	records, err := c.store.Records(ctx, run.ID)
	if err != nil {
		c.runLog(run).Error("load records for finalize", "error", err)
		return
	}

	var failing []string
	for i := range records {
		rec := &records[i]
		if !rec.IsFinished() {
			return
		}
		if rec.Status == domain.TaskStatusSucceeded {
			continue
		}
		if node := graph.Node(rec.TaskID); node != nil && node.Def.IsFatal() {
			failing = append(failing, fmt.Sprintf("%s (%s)", rec.TaskID, rec.Status))
		}
	}

	if len(failing) == 0 {
		c.finishRun(ctx, run, func(r *domain.Run) { r.MarkSucceeded() })
		return
	}
	c.finishRun(ctx, run, func(r *domain.Run) {
		r.MarkFailed("tasks did not succeed: " + strings.Join(failing, ", "))
	})
}

// failInitializing фиксирует провал валидации терминальным FAILED.
func (c *Controller) failInitializing(ctx context.Context, run *domain.Run, cause error) {
	old := run.Status
	run.MarkFailed(cause.Error())
	log := c.runLog(run)
	if err := c.store.UpdateRun(ctx, run); err != nil {
		log.Error("persist failed run", "error", err)
		return
	}
	c.emitter.RunStatus(ctx, run.ID, run.Pipeline, old, run.Status, run.Error)

	log.Warn("pipeline validation failed", "error", cause)
}

// finishRun применяет терминальный переход run'а и эмитит событие.
func (c *Controller) finishRun(ctx context.Context, run *domain.Run, mark func(*domain.Run)) {
	log := c.runLog(run)

	old := run.Status
	mark(run)
	if err := c.store.UpdateRun(ctx, run); err != nil {
		log.Error("persist run status", "status", run.Status, "error", err)
		return
	}
	c.emitter.RunStatus(ctx, run.ID, run.Pipeline, old, run.Status, run.Error)

	log.Info("run finished", "status", run.Status, "duration", run.Duration())
}
