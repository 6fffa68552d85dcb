package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ravskel/conveyor/internal/domain"
)

// Ошибки state store.
var (
	// ErrNotFound — run или record не найден.
	ErrNotFound = errors.New("not found")

	// ErrConflict — переход не применён: статус record'а уже не тот,
	// который ожидал вызывающий (CAS-конфликт).
	ErrConflict = errors.New("status conflict")

	// ErrIllegalTransition — переход запрещён жизненным циклом статусов.
	ErrIllegalTransition = errors.New("illegal status transition")

	// ErrRunTerminal — run уже в терминальном статусе и не мутируется.
	ErrRunTerminal = errors.New("run is terminal")
)

// Store — контракт state store.
//
// Store хранит run'ы и per-task record'ы и переживает рестарт процесса
// (для персистентных реализаций). Вся мутация статусов идёт через
// UpdateRecord/UpdateRun; читатели никогда не видят частичных записей.
type Store interface {
	// CreateRun создаёт run и инициализирует record каждой задачи в PENDING.
	// Идемпотентен по run.ID: существующий run возвращается как есть,
	// record'ы не сбрасываются (основа crash-resume).
	CreateRun(ctx context.Context, run *domain.Run, spec *domain.PipelineSpec) (*domain.Run, error)

	// GetRun возвращает run по ID.
	GetRun(ctx context.Context, id uuid.UUID) (*domain.Run, error)

	// UpdateRun применяет переход статуса run.
	// Терминальный run не мутируется (ErrRunTerminal).
	UpdateRun(ctx context.Context, run *domain.Run) error

	// Spec возвращает сохранённый PipelineSpec run'а.
	Spec(ctx context.Context, runID uuid.UUID) (*domain.PipelineSpec, error)

	// Record возвращает record задачи.
	Record(ctx context.Context, runID uuid.UUID, taskID string) (*domain.TaskRecord, error)

	// Records возвращает все record'ы run'а, отсортированные по TaskID.
	Records(ctx context.Context, runID uuid.UUID) ([]domain.TaskRecord, error)

	// UpdateRecord атомарно применяет один переход статуса задачи.
	// from — ожидаемый текущий статус; mutate получает копию record'а
	// и выставляет новый статус и сопутствующие поля.
	// Возвращает record после перехода.
	UpdateRecord(ctx context.Context, runID uuid.UUID, taskID string, from domain.TaskStatus, mutate func(*domain.TaskRecord)) (*domain.TaskRecord, error)

	// Snapshot возвращает снимок run'а со счётчиками по статусам.
	Snapshot(ctx context.Context, runID uuid.UUID) (*domain.RunSnapshot, error)
}

// legalTransitions — допустимые переходы статуса задачи.
// Статус монотонен, кроме RUNNING → PENDING (retry-повтор).
var legalTransitions = map[domain.TaskStatus][]domain.TaskStatus{
	domain.TaskStatusPending: {
		domain.TaskStatusReady,
		domain.TaskStatusSkipped,
	},
	domain.TaskStatusReady: {
		domain.TaskStatusRunning,
		domain.TaskStatusSkipped,
	},
	domain.TaskStatusRunning: {
		domain.TaskStatusPending, // re-queue при retry
		domain.TaskStatusSucceeded,
		domain.TaskStatusFailed,
		domain.TaskStatusQuarantined,
	},
}

// ValidTransition проверяет допустимость перехода from → to.
func ValidTransition(from, to domain.TaskStatus) bool {
	for _, allowed := range legalTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// checkTransition валидирует переход, применённый mutate-функцией.
func checkTransition(from, to domain.TaskStatus) error {
	if from == to {
		return nil
	}
	if !ValidTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	return nil
}

// snapshotCounts считает record'ы по статусам.
func snapshotCounts(records []domain.TaskRecord) map[domain.TaskStatus]int {
	counts := make(map[domain.TaskStatus]int)
	for i := range records {
		counts[records[i].Status]++
	}
	return counts
}
