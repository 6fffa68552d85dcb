package state

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ravskel/conveyor/internal/domain"
)

// MemoryStore — in-memory реализация Store.
//
// Используется в тестах и в embedded-режиме без Postgres.
// Атомарность переходов обеспечивает один мьютекс; наружу всегда
// отдаются копии, чтобы читатели не видели частичных мутаций.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]*memoryRun
}

type memoryRun struct {
	run     domain.Run
	spec    *domain.PipelineSpec
	records map[string]*domain.TaskRecord
}

// NewMemoryStore создаёт пустой MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[uuid.UUID]*memoryRun)}
}

// CreateRun реализует Store.
func (s *MemoryStore) CreateRun(_ context.Context, run *domain.Run, spec *domain.PipelineSpec) (*domain.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.runs[run.ID]; ok {
		// Идемпотентность: существующие record'ы не сбрасываются.
		cp := existing.run
		return &cp, nil
	}

	entry := &memoryRun{
		run:     *run,
		spec:    spec,
		records: make(map[string]*domain.TaskRecord, len(spec.Tasks)),
	}
	now := time.Now()
	for i := range spec.Tasks {
		task := &spec.Tasks[i]
		entry.records[task.ID] = &domain.TaskRecord{
			RunID:     run.ID,
			TaskID:    task.ID,
			Status:    domain.TaskStatusPending,
			CreatedAt: now,
		}
	}
	s.runs[run.ID] = entry

	cp := entry.run
	return &cp, nil
}

// GetRun реализует Store.
func (s *MemoryStore) GetRun(_ context.Context, id uuid.UUID) (*domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: run %s", ErrNotFound, id)
	}
	cp := entry.run
	return &cp, nil
}

// UpdateRun реализует Store.
func (s *MemoryStore) UpdateRun(_ context.Context, run *domain.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.runs[run.ID]
	if !ok {
		return fmt.Errorf("%w: run %s", ErrNotFound, run.ID)
	}
	if entry.run.Status.IsTerminal() {
		return fmt.Errorf("%w: run %s is %s", ErrRunTerminal, run.ID, entry.run.Status)
	}
	entry.run = *run
	return nil
}

// Spec реализует Store.
func (s *MemoryStore) Spec(_ context.Context, runID uuid.UUID) (*domain.PipelineSpec, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: run %s", ErrNotFound, runID)
	}
	return entry.spec, nil
}

// Record реализует Store.
func (s *MemoryStore) Record(_ context.Context, runID uuid.UUID, taskID string) (*domain.TaskRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, err := s.record(runID, taskID)
	if err != nil {
		return nil, err
	}
	cp := *rec
	return &cp, nil
}

// Records реализует Store.
func (s *MemoryStore) Records(_ context.Context, runID uuid.UUID) ([]domain.TaskRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: run %s", ErrNotFound, runID)
	}
	return copyRecords(entry.records), nil
}

// UpdateRecord реализует Store.
func (s *MemoryStore) UpdateRecord(_ context.Context, runID uuid.UUID, taskID string, from domain.TaskStatus, mutate func(*domain.TaskRecord)) (*domain.TaskRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.record(runID, taskID)
	if err != nil {
		return nil, err
	}
	if rec.Status != from {
		return nil, fmt.Errorf("%w: task %s is %s, expected %s", ErrConflict, taskID, rec.Status, from)
	}

	// Мутируем копию: читатели не видят частичных записей,
	// а запрещённый переход не ломает хранимый record.
	cp := *rec
	mutate(&cp)
	if err := checkTransition(from, cp.Status); err != nil {
		return nil, err
	}

	s.runs[runID].records[taskID] = &cp
	out := cp
	return &out, nil
}

// Snapshot реализует Store.
func (s *MemoryStore) Snapshot(_ context.Context, runID uuid.UUID) (*domain.RunSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: run %s", ErrNotFound, runID)
	}

	records := copyRecords(entry.records)
	return &domain.RunSnapshot{
		Run:     entry.run,
		Records: records,
		Counts:  snapshotCounts(records),
	}, nil
}

func (s *MemoryStore) record(runID uuid.UUID, taskID string) (*domain.TaskRecord, error) {
	entry, ok := s.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: run %s", ErrNotFound, runID)
	}
	rec, ok := entry.records[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: task %s in run %s", ErrNotFound, taskID, runID)
	}
	return rec, nil
}

func copyRecords(records map[string]*domain.TaskRecord) []domain.TaskRecord {
	out := make([]domain.TaskRecord, 0, len(records))
	for _, rec := range records {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaskID < out[j].TaskID })
	return out
}
