package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ravskel/conveyor/internal/connector"
	"github.com/ravskel/conveyor/internal/domain"
	"github.com/ravskel/conveyor/internal/events"
	"github.com/ravskel/conveyor/internal/state"
)

// behaviorFunc — поведение fake-коннектора для одной задачи.
// call — номер вызова, начиная с 0.
type behaviorFunc func(call int, input *domain.Dataset) (*domain.Dataset, error)

// fakeHub — один fake-коннектор на все операции. Задача выбирает своё
// поведение ключом в Config; по умолчанию любая операция успешна.
type fakeHub struct {
	mu       sync.Mutex
	calls    map[string]int
	inputs   map[string]*domain.Dataset
	behavior map[string]behaviorFunc
	block    map[string]chan struct{}
	starts   []string
	cur      int
	maxConc  int
}

func newFakeHub() *fakeHub {
	return &fakeHub{
		calls:    make(map[string]int),
		inputs:   make(map[string]*domain.Dataset),
		behavior: make(map[string]behaviorFunc),
		block:    make(map[string]chan struct{}),
	}
}

func (h *fakeHub) Extract(ctx context.Context, cfg connector.Config) (*domain.Dataset, error) {
	return h.invoke(ctx, cfg, nil)
}

func (h *fakeHub) Transform(ctx context.Context, in *domain.Dataset, cfg connector.Config) (*domain.Dataset, error) {
	return h.invoke(ctx, cfg, in)
}

func (h *fakeHub) Load(ctx context.Context, in *domain.Dataset, cfg connector.Config) (*domain.LoadResult, error) {
	if _, err := h.invoke(ctx, cfg, in); err != nil {
		return nil, err
	}
	return &domain.LoadResult{Target: "fake"}, nil
}

func (h *fakeHub) Check(_ context.Context, _ *domain.Dataset, rules []domain.Rule) ([]domain.RuleOutcome, error) {
	out := make([]domain.RuleOutcome, len(rules))
	for i, rule := range rules {
		out[i] = domain.RuleOutcome{Rule: rule.Name, Status: domain.RulePass}
	}
	return out, nil
}

func (h *fakeHub) invoke(ctx context.Context, cfg connector.Config, in *domain.Dataset) (*domain.Dataset, error) {
	key, _ := cfg["key"].(string)

	h.mu.Lock()
	call := h.calls[key]
	h.calls[key]++
	h.starts = append(h.starts, key)
	h.inputs[key] = in
	h.cur++
	if h.cur > h.maxConc {
		h.maxConc = h.cur
	}
	b := h.behavior[key]
	gate := h.block[key]
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		h.cur--
		h.mu.Unlock()
	}()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if ms, ok := cfg["sleep_ms"].(int); ok && ms > 0 {
		select {
		case <-time.After(time.Duration(ms) * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if b == nil {
		return &domain.Dataset{Ref: "mem://" + key, Rows: 1}, nil
	}
	return b(call, in)
}

func (h *fakeHub) callCount(key string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls[key]
}

func (h *fakeHub) startOrder() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.starts))
	copy(out, h.starts)
	return out
}

// ruleChecker возвращает каждый Rule с заданным статусом.
type ruleChecker struct {
	status domain.RuleStatus
}

func (c ruleChecker) Check(_ context.Context, _ *domain.Dataset, rules []domain.Rule) ([]domain.RuleOutcome, error) {
	out := make([]domain.RuleOutcome, len(rules))
	for i, rule := range rules {
		out[i] = domain.RuleOutcome{Rule: rule.Name, Status: c.status, Detail: "detail"}
	}
	return out, nil
}

type env struct {
	ctrl  *Controller
	store *state.MemoryStore
	sink  *events.Memory
	hub   *fakeHub
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEnv(t *testing.T, checker connector.Checker, workers int) *env {
	t.Helper()

	hub := newFakeHub()
	registry := connector.NewRegistry()
	registry.MustRegister("fake", hub)

	store := state.NewMemoryStore()
	sink := events.NewMemory()
	logger := quietLogger()

	ctrl := New(Config{
		Store:      store,
		Registry:   registry,
		Checker:    checker,
		Emitter:    events.NewEmitter(sink, logger),
		Logger:     logger,
		MaxWorkers: workers,
	})

	return &env{ctrl: ctrl, store: store, sink: sink, hub: hub}
}

func task(id string, kind domain.TaskKind, deps ...string) domain.TaskDef {
	return domain.TaskDef{
		ID:        id,
		Kind:      kind,
		Connector: "fake",
		Config:    map[string]any{"key": id},
		DependsOn: deps,
	}
}

// submitAndWait отправляет пайплайн и дожидается терминального статуса.
func (e *env) submitAndWait(t *testing.T, spec *domain.PipelineSpec) *domain.RunSnapshot {
	t.Helper()

	runID, err := e.ctrl.Submit(context.Background(), spec)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	e.ctrl.Wait(runID)

	snap, err := e.ctrl.Status(context.Background(), runID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	return snap
}

func recordOf(t *testing.T, snap *domain.RunSnapshot, taskID string) *domain.TaskRecord {
	t.Helper()
	for i := range snap.Records {
		if snap.Records[i].TaskID == taskID {
			return &snap.Records[i]
		}
	}
	t.Fatalf("record %s not found", taskID)
	return nil
}

func TestSubmit_ChainSucceeds(t *testing.T) {
	e := newEnv(t, nil, 2)

	snap := e.submitAndWait(t, &domain.PipelineSpec{
		Name: "orders",
		Tasks: []domain.TaskDef{
			task("extract", domain.TaskKindExtract),
			task("transform", domain.TaskKindTransform, "extract"),
			task("load", domain.TaskKindLoad, "transform"),
		},
	})

	if snap.Run.Status != domain.RunStatusSucceeded {
		t.Fatalf("run status = %s (%s), want SUCCEEDED", snap.Run.Status, snap.Run.Error)
	}
	for _, id := range []string{"extract", "transform", "load"} {
		if rec := recordOf(t, snap, id); rec.Status != domain.TaskStatusSucceeded {
			t.Errorf("task %s = %s, want SUCCEEDED", id, rec.Status)
		}
	}

	// Входной Dataset течёт по графу: transform получил результат extract.
	in := e.hub.inputs["transform"]
	if in == nil || in.Ref != "mem://extract" {
		t.Errorf("transform input = %+v, want dataset from extract", in)
	}
	if in != nil && in.ProducedBy != "extract" {
		t.Errorf("transform input producedBy = %s, want extract", in.ProducedBy)
	}
}

func TestSubmit_InvalidPipelinePersistsFailedRun(t *testing.T) {
	e := newEnv(t, nil, 1)

	// Цикл a → b → a.
	spec := &domain.PipelineSpec{
		Name: "cyclic",
		Tasks: []domain.TaskDef{
			task("a", domain.TaskKindExtract, "b"),
			task("b", domain.TaskKindTransform, "a"),
		},
	}

	runID, err := e.ctrl.Submit(context.Background(), spec)
	if !errors.Is(err, ErrInvalidPipeline) {
		t.Fatalf("expected ErrInvalidPipeline, got %v", err)
	}
	if runID == uuid.Nil {
		t.Fatal("expected run ID for audit trail")
	}

	// Run сохранён терминальным FAILED, ни одна задача не стартовала.
	run, err := e.store.GetRun(context.Background(), runID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if run.Status != domain.RunStatusFailed {
		t.Errorf("run status = %s, want FAILED", run.Status)
	}
	if run.Error == "" {
		t.Error("expected validation error recorded on run")
	}
	if len(e.hub.startOrder()) != 0 {
		t.Errorf("no task should start, got %v", e.hub.startOrder())
	}
}

func TestSubmit_UnknownConnector(t *testing.T) {
	e := newEnv(t, nil, 1)

	spec := &domain.PipelineSpec{
		Name: "bad",
		Tasks: []domain.TaskDef{
			{ID: "a", Kind: domain.TaskKindExtract, Connector: "ghost"},
		},
	}

	runID, err := e.ctrl.Submit(context.Background(), spec)
	if !errors.Is(err, ErrInvalidPipeline) {
		t.Fatalf("expected ErrInvalidPipeline, got %v", err)
	}
	if !strings.Contains(err.Error(), "ghost") {
		t.Errorf("error does not name the connector: %v", err)
	}

	run, err := e.store.GetRun(context.Background(), runID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if run.Status != domain.RunStatusFailed {
		t.Errorf("run status = %s, want FAILED", run.Status)
	}
}

func TestSubmit_EmptyPipeline(t *testing.T) {
	e := newEnv(t, nil, 1)

	if _, err := e.ctrl.Submit(context.Background(), nil); !errors.Is(err, ErrInvalidPipeline) {
		t.Errorf("nil spec: expected ErrInvalidPipeline, got %v", err)
	}
}

func TestRun_ConcurrencyBound(t *testing.T) {
	e := newEnv(t, nil, 2)

	tasks := make([]domain.TaskDef, 4)
	for i, id := range []string{"a", "b", "c", "d"} {
		def := task(id, domain.TaskKindExtract)
		def.Config["sleep_ms"] = 30
		tasks[i] = def
	}

	snap := e.submitAndWait(t, &domain.PipelineSpec{Name: "wide", Tasks: tasks})

	if snap.Run.Status != domain.RunStatusSucceeded {
		t.Fatalf("run status = %s, want SUCCEEDED", snap.Run.Status)
	}
	if e.hub.maxConc > 2 {
		t.Errorf("max concurrency = %d, want <= 2", e.hub.maxConc)
	}
}

func TestRun_FIFOOrderByTaskID(t *testing.T) {
	e := newEnv(t, nil, 1)

	// Независимые корни стартуют в порядке ID.
	snap := e.submitAndWait(t, &domain.PipelineSpec{
		Name: "roots",
		Tasks: []domain.TaskDef{
			task("charlie", domain.TaskKindExtract),
			task("alpha", domain.TaskKindExtract),
			task("bravo", domain.TaskKindExtract),
		},
	})

	if snap.Run.Status != domain.RunStatusSucceeded {
		t.Fatalf("run status = %s, want SUCCEEDED", snap.Run.Status)
	}
	want := []string{"alpha", "bravo", "charlie"}
	if got := e.hub.startOrder(); !reflect.DeepEqual(got, want) {
		t.Errorf("start order = %v, want %v", got, want)
	}
}

func TestRun_SkipCascadeOnFatalFailure(t *testing.T) {
	e := newEnv(t, nil, 2)
	e.hub.behavior["extract"] = func(int, *domain.Dataset) (*domain.Dataset, error) {
		return nil, connector.Fatal(connector.ErrConnection)
	}

	snap := e.submitAndWait(t, &domain.PipelineSpec{
		Name: "cascade",
		Tasks: []domain.TaskDef{
			task("extract", domain.TaskKindExtract),
			task("transform", domain.TaskKindTransform, "extract"),
			task("load", domain.TaskKindLoad, "transform"),
		},
	})

	if snap.Run.Status != domain.RunStatusFailed {
		t.Fatalf("run status = %s, want FAILED", snap.Run.Status)
	}
	if rec := recordOf(t, snap, "extract"); rec.Status != domain.TaskStatusFailed {
		t.Errorf("extract = %s, want FAILED", rec.Status)
	}
	for _, id := range []string{"transform", "load"} {
		rec := recordOf(t, snap, id)
		if rec.Status != domain.TaskStatusSkipped {
			t.Errorf("task %s = %s, want SKIPPED", id, rec.Status)
		}
		if rec.Error == "" {
			t.Errorf("task %s skipped without reason", id)
		}
	}
	// Пропущенные задачи не вызывались.
	if e.hub.callCount("transform") != 0 || e.hub.callCount("load") != 0 {
		t.Error("skipped tasks must not execute")
	}
}

func TestRun_ToleratedSkipStillSucceeds(t *testing.T) {
	e := newEnv(t, nil, 2)
	e.hub.behavior["enrich"] = func(int, *domain.Dataset) (*domain.Dataset, error) {
		return nil, connector.Fatal(errors.New("enrichment api down"))
	}

	// enrich и его потребитель некритичны; основная ветка доезжает.
	enrich := task("enrich", domain.TaskKindExtract)
	enrich.Criticality = domain.CriticalitySkip
	report := task("report", domain.TaskKindLoad, "enrich")
	report.Criticality = domain.CriticalitySkip

	snap := e.submitAndWait(t, &domain.PipelineSpec{
		Name: "tolerated",
		Tasks: []domain.TaskDef{
			task("extract", domain.TaskKindExtract),
			task("load", domain.TaskKindLoad, "extract"),
			enrich,
			report,
		},
	})

	if snap.Run.Status != domain.RunStatusSucceeded {
		t.Fatalf("run status = %s (%s), want SUCCEEDED", snap.Run.Status, snap.Run.Error)
	}
	if rec := recordOf(t, snap, "enrich"); rec.Status != domain.TaskStatusFailed {
		t.Errorf("enrich = %s, want FAILED", rec.Status)
	}
	if rec := recordOf(t, snap, "report"); rec.Status != domain.TaskStatusSkipped {
		t.Errorf("report = %s, want SKIPPED", rec.Status)
	}
}

func TestRun_AcceptSkippedConsumerRuns(t *testing.T) {
	e := newEnv(t, nil, 2)
	e.hub.behavior["optional"] = func(int, *domain.Dataset) (*domain.Dataset, error) {
		return nil, connector.Fatal(errors.New("boom"))
	}

	optional := task("optional", domain.TaskKindExtract)
	optional.Criticality = domain.CriticalitySkip
	summary := task("summary", domain.TaskKindLoad, "extract", "optional")
	summary.AcceptSkipped = true

	snap := e.submitAndWait(t, &domain.PipelineSpec{
		Name: "tolerant",
		Tasks: []domain.TaskDef{
			task("extract", domain.TaskKindExtract),
			optional,
			summary,
		},
	})

	if snap.Run.Status != domain.RunStatusSucceeded {
		t.Fatalf("run status = %s (%s), want SUCCEEDED", snap.Run.Status, snap.Run.Error)
	}
	if rec := recordOf(t, snap, "summary"); rec.Status != domain.TaskStatusSucceeded {
		t.Errorf("summary = %s, want SUCCEEDED", rec.Status)
	}
	// Вход summary — результат первой объявленной зависимости.
	if in := e.hub.inputs["summary"]; in == nil || in.ProducedBy != "extract" {
		t.Errorf("summary input = %+v, want dataset from extract", in)
	}
}

func TestRun_StrictGateFailureCascades(t *testing.T) {
	e := newEnv(t, ruleChecker{status: domain.RuleFail}, 2)

	extract := task("extract", domain.TaskKindExtract)
	extract.Gate = &domain.GateSpec{Rules: []domain.Rule{{Name: "rows", Type: "min_rows"}}}

	snap := e.submitAndWait(t, &domain.PipelineSpec{
		Name: "gated",
		Tasks: []domain.TaskDef{
			extract,
			task("load", domain.TaskKindLoad, "extract"),
		},
	})

	if snap.Run.Status != domain.RunStatusFailed {
		t.Fatalf("run status = %s, want FAILED", snap.Run.Status)
	}
	if rec := recordOf(t, snap, "extract"); rec.Status != domain.TaskStatusFailed {
		t.Errorf("extract = %s, want FAILED", rec.Status)
	}
	if rec := recordOf(t, snap, "load"); rec.Status != domain.TaskStatusSkipped {
		t.Errorf("load = %s, want SKIPPED", rec.Status)
	}
}

func TestRun_QuarantineTolerance(t *testing.T) {
	e := newEnv(t, ruleChecker{status: domain.RuleFail}, 2)

	extract := task("extract", domain.TaskKindExtract)
	extract.Gate = &domain.GateSpec{
		Policy: domain.GateQuarantine,
		Rules:  []domain.Rule{{Name: "rows", Type: "min_rows"}},
	}
	strict := task("strict", domain.TaskKindLoad, "extract")
	tolerant := task("tolerant", domain.TaskKindLoad, "extract")
	tolerant.AcceptQuarantined = true

	snap := e.submitAndWait(t, &domain.PipelineSpec{
		Name:  "quarantine",
		Tasks: []domain.TaskDef{extract, strict, tolerant},
	})

	// extract фатален и в карантине — run падает, но толерантный
	// потребитель успевает отработать с помеченным Dataset.
	if snap.Run.Status != domain.RunStatusFailed {
		t.Fatalf("run status = %s, want FAILED", snap.Run.Status)
	}
	if rec := recordOf(t, snap, "extract"); rec.Status != domain.TaskStatusQuarantined {
		t.Errorf("extract = %s, want QUARANTINED", rec.Status)
	}
	if rec := recordOf(t, snap, "strict"); rec.Status != domain.TaskStatusSkipped {
		t.Errorf("strict = %s, want SKIPPED", rec.Status)
	}
	if rec := recordOf(t, snap, "tolerant"); rec.Status != domain.TaskStatusSucceeded {
		t.Errorf("tolerant = %s, want SUCCEEDED", rec.Status)
	}
	if in := e.hub.inputs["tolerant"]; in == nil || !in.Quarantined {
		t.Errorf("tolerant input = %+v, want quarantined dataset", in)
	}
}

func TestAbort_StopsDispatchKeepsInFlight(t *testing.T) {
	e := newEnv(t, nil, 1)

	gate := make(chan struct{})
	e.hub.block["alpha"] = gate

	spec := &domain.PipelineSpec{
		Name: "abortable",
		Tasks: []domain.TaskDef{
			task("alpha", domain.TaskKindExtract),
			task("beta", domain.TaskKindExtract),
		},
	}

	runID, err := e.ctrl.Submit(context.Background(), spec)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	// Ждём старта alpha, затем прерываем и отпускаем её.
	for e.hub.callCount("alpha") == 0 {
		time.Sleep(time.Millisecond)
	}
	if err := e.ctrl.Abort(context.Background(), runID); err != nil {
		t.Fatalf("abort: %v", err)
	}
	close(gate)
	e.ctrl.Wait(runID)

	snap, err := e.ctrl.Status(context.Background(), runID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if snap.Run.Status != domain.RunStatusAborted {
		t.Fatalf("run status = %s, want ABORTED", snap.Run.Status)
	}
	// Задача в полёте доработала; недиспатченная осталась READY,
	// её подхватит будущий resume.
	if rec := recordOf(t, snap, "alpha"); rec.Status != domain.TaskStatusSucceeded {
		t.Errorf("alpha = %s, want SUCCEEDED", rec.Status)
	}
	if rec := recordOf(t, snap, "beta"); rec.Status != domain.TaskStatusReady {
		t.Errorf("beta = %s, want READY", rec.Status)
	}
	if e.hub.callCount("beta") != 0 {
		t.Error("beta must not start after abort")
	}
}

func TestAbort_TerminalRunIsNoop(t *testing.T) {
	e := newEnv(t, nil, 1)

	snap := e.submitAndWait(t, &domain.PipelineSpec{
		Name:  "done",
		Tasks: []domain.TaskDef{task("extract", domain.TaskKindExtract)},
	})
	if snap.Run.Status != domain.RunStatusSucceeded {
		t.Fatalf("run status = %s, want SUCCEEDED", snap.Run.Status)
	}

	if err := e.ctrl.Abort(context.Background(), snap.Run.ID); err != nil {
		t.Fatalf("abort terminal run: %v", err)
	}

	run, err := e.store.GetRun(context.Background(), snap.Run.ID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if run.Status != domain.RunStatusSucceeded {
		t.Errorf("terminal run mutated to %s", run.Status)
	}
}

func TestAbort_OrphanedRunMarkedAborted(t *testing.T) {
	e := newEnv(t, nil, 1)
	ctx := context.Background()

	// Run RUNNING в store, но не активен в процессе (осиротел после падения).
	spec := &domain.PipelineSpec{
		Name:  "orphan",
		Tasks: []domain.TaskDef{task("extract", domain.TaskKindExtract)},
	}
	run := &domain.Run{ID: uuid.New(), Pipeline: "orphan", Status: domain.RunStatusRunning}
	if _, err := e.store.CreateRun(ctx, run, spec); err != nil {
		t.Fatalf("create run: %v", err)
	}

	if err := e.ctrl.Abort(ctx, run.ID); err != nil {
		t.Fatalf("abort: %v", err)
	}

	stored, err := e.store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if stored.Status != domain.RunStatusAborted {
		t.Errorf("run status = %s, want ABORTED", stored.Status)
	}
}

func TestResume_TerminalRunIsIdempotent(t *testing.T) {
	e := newEnv(t, nil, 1)

	snap := e.submitAndWait(t, &domain.PipelineSpec{
		Name:  "done",
		Tasks: []domain.TaskDef{task("extract", domain.TaskKindExtract)},
	})
	calls := e.hub.callCount("extract")

	gotID, err := e.ctrl.Resume(context.Background(), snap.Run.ID, nil)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if gotID != snap.Run.ID {
		t.Errorf("resume returned %s, want %s", gotID, snap.Run.ID)
	}
	if e.hub.callCount("extract") != calls {
		t.Error("terminal run must not re-execute tasks")
	}
}

func TestResume_GraphMismatch(t *testing.T) {
	e := newEnv(t, nil, 1)
	ctx := context.Background()

	spec := &domain.PipelineSpec{
		Name:  "orig",
		Tasks: []domain.TaskDef{task("extract", domain.TaskKindExtract)},
	}
	fp, err := state.Fingerprint(spec)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	run := &domain.Run{ID: uuid.New(), Pipeline: "orig", Fingerprint: fp, Status: domain.RunStatusRunning}
	if _, err := e.store.CreateRun(ctx, run, spec); err != nil {
		t.Fatalf("create run: %v", err)
	}

	changed := &domain.PipelineSpec{
		Name: "orig",
		Tasks: []domain.TaskDef{
			task("extract", domain.TaskKindExtract),
			task("extra", domain.TaskKindTransform, "extract"),
		},
	}
	if _, err := e.ctrl.Resume(ctx, run.ID, changed); !errors.Is(err, ErrGraphMismatch) {
		t.Errorf("expected ErrGraphMismatch, got %v", err)
	}
}

// seedRecord прогоняет record через цепочку легальных переходов.
func seedRecord(t *testing.T, store *state.MemoryStore, runID uuid.UUID, taskID string, mutations ...func(*domain.TaskRecord)) {
	t.Helper()
	froms := []domain.TaskStatus{domain.TaskStatusPending, domain.TaskStatusReady, domain.TaskStatusRunning}
	for i, mutate := range mutations {
		if _, err := store.UpdateRecord(context.Background(), runID, taskID, froms[i], mutate); err != nil {
			t.Fatalf("seed %s step %d: %v", taskID, i, err)
		}
	}
}

func TestResume_ContinuesPartialRun(t *testing.T) {
	e := newEnv(t, nil, 2)
	ctx := context.Background()

	spec := &domain.PipelineSpec{
		Name: "partial",
		Tasks: []domain.TaskDef{
			task("extract", domain.TaskKindExtract),
			task("transform", domain.TaskKindTransform, "extract"),
			task("load", domain.TaskKindLoad, "transform"),
		},
	}
	fp, err := state.Fingerprint(spec)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	run := &domain.Run{ID: uuid.New(), Pipeline: "partial", Fingerprint: fp, Status: domain.RunStatusRunning}
	if _, err := e.store.CreateRun(ctx, run, spec); err != nil {
		t.Fatalf("create run: %v", err)
	}

	// extract уже SUCCEEDED до падения процесса.
	seedRecord(t, e.store, run.ID, "extract",
		func(r *domain.TaskRecord) { r.Status = domain.TaskStatusReady },
		func(r *domain.TaskRecord) { r.MarkRunning() },
		func(r *domain.TaskRecord) { r.MarkSucceeded(&domain.Dataset{Ref: "mem://extract", ProducedBy: "extract"}) },
	)

	gotID, err := e.ctrl.Resume(ctx, run.ID, nil)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	e.ctrl.Wait(gotID)

	snap, err := e.ctrl.Status(ctx, run.ID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if snap.Run.Status != domain.RunStatusSucceeded {
		t.Fatalf("run status = %s (%s), want SUCCEEDED", snap.Run.Status, snap.Run.Error)
	}
	// SUCCEEDED задача не перевыполнялась; остальные доехали.
	if e.hub.callCount("extract") != 0 {
		t.Errorf("extract re-executed %d times", e.hub.callCount("extract"))
	}
	if e.hub.callCount("transform") != 1 || e.hub.callCount("load") != 1 {
		t.Errorf("transform/load calls = %d/%d, want 1/1",
			e.hub.callCount("transform"), e.hub.callCount("load"))
	}
	// Вход transform взят из record'а extract.
	if in := e.hub.inputs["transform"]; in == nil || in.Ref != "mem://extract" {
		t.Errorf("transform input = %+v, want persisted extract dataset", in)
	}
}

func TestResume_RequeuesInterruptedRunning(t *testing.T) {
	e := newEnv(t, nil, 1)
	ctx := context.Background()

	spec := &domain.PipelineSpec{
		Name:  "crashed",
		Tasks: []domain.TaskDef{task("extract", domain.TaskKindExtract)},
	}
	fp, err := state.Fingerprint(spec)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	run := &domain.Run{ID: uuid.New(), Pipeline: "crashed", Fingerprint: fp, Status: domain.RunStatusRunning}
	if _, err := e.store.CreateRun(ctx, run, spec); err != nil {
		t.Fatalf("create run: %v", err)
	}

	// extract застрял в RUNNING на попытке 1 (процесс упал).
	seedRecord(t, e.store, run.ID, "extract",
		func(r *domain.TaskRecord) { r.Status = domain.TaskStatusReady },
		func(r *domain.TaskRecord) { r.MarkRunning() },
	)

	gotID, err := e.ctrl.Resume(ctx, run.ID, nil)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	e.ctrl.Wait(gotID)

	snap, err := e.ctrl.Status(ctx, run.ID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if snap.Run.Status != domain.RunStatusSucceeded {
		t.Fatalf("run status = %s, want SUCCEEDED", snap.Run.Status)
	}
	// Прерванная попытка не потрачена: после перезапуска attempt снова 1.
	if rec := recordOf(t, snap, "extract"); rec.Attempt != 1 {
		t.Errorf("attempt = %d, want 1", rec.Attempt)
	}
}

func TestResume_ActiveRunRejected(t *testing.T) {
	e := newEnv(t, nil, 1)

	gate := make(chan struct{})
	e.hub.block["extract"] = gate

	runID, err := e.ctrl.Submit(context.Background(), &domain.PipelineSpec{
		Name:  "busy",
		Tasks: []domain.TaskDef{task("extract", domain.TaskKindExtract)},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	_, err = e.ctrl.Resume(context.Background(), runID, nil)
	if !errors.Is(err, ErrRunAlreadyActive) {
		t.Errorf("expected ErrRunAlreadyActive, got %v", err)
	}

	close(gate)
	e.ctrl.Wait(runID)
}

func TestRun_RetryWithAdvisoryGate(t *testing.T) {
	// Advisory gate предупреждает, retryable load доезжает с третьей
	// попытки; run в итоге SUCCEEDED.
	e := newEnv(t, ruleChecker{status: domain.RuleFail}, 2)
	e.hub.behavior["load"] = func(call int, _ *domain.Dataset) (*domain.Dataset, error) {
		if call < 2 {
			return nil, connector.Retryablef("warehouse busy")
		}
		return nil, nil
	}

	transform := task("transform", domain.TaskKindTransform, "extract")
	transform.Gate = &domain.GateSpec{
		Policy: domain.GateAdvisory,
		Rules:  []domain.Rule{{Name: "freshness", Type: "custom"}},
	}
	load := task("load", domain.TaskKindLoad, "transform")
	load.Retry = &domain.RetryPolicy{MaxAttempts: 3, InitialDelayMs: 1}

	snap := e.submitAndWait(t, &domain.PipelineSpec{
		Name: "retrying",
		Tasks: []domain.TaskDef{
			task("extract", domain.TaskKindExtract),
			transform,
			load,
		},
	})

	if snap.Run.Status != domain.RunStatusSucceeded {
		t.Fatalf("run status = %s (%s), want SUCCEEDED", snap.Run.Status, snap.Run.Error)
	}
	if rec := recordOf(t, snap, "load"); rec.Attempt != 3 {
		t.Errorf("load attempt = %d, want 3", rec.Attempt)
	}

	warnings := 0
	for _, ev := range e.sink.Events() {
		if ev.Kind == events.KindGateWarning {
			warnings++
		}
	}
	if warnings == 0 {
		t.Error("expected advisory gate warning events")
	}
}

func TestRun_RetriesExhaustedFailsRun(t *testing.T) {
	e := newEnv(t, nil, 2)
	e.hub.behavior["load"] = func(int, *domain.Dataset) (*domain.Dataset, error) {
		return nil, connector.Retryablef("warehouse down")
	}

	load := task("load", domain.TaskKindLoad, "extract")
	load.Retry = &domain.RetryPolicy{MaxAttempts: 2, InitialDelayMs: 1}

	snap := e.submitAndWait(t, &domain.PipelineSpec{
		Name: "exhausted",
		Tasks: []domain.TaskDef{
			task("extract", domain.TaskKindExtract),
			load,
		},
	})

	if snap.Run.Status != domain.RunStatusFailed {
		t.Fatalf("run status = %s, want FAILED", snap.Run.Status)
	}
	if rec := recordOf(t, snap, "extract"); rec.Status != domain.TaskStatusSucceeded {
		t.Errorf("extract = %s, want SUCCEEDED", rec.Status)
	}
	rec := recordOf(t, snap, "load")
	if rec.Status != domain.TaskStatusFailed {
		t.Errorf("load = %s, want FAILED", rec.Status)
	}
	if rec.Attempt != 2 {
		t.Errorf("load attempt = %d, want 2", rec.Attempt)
	}
}
