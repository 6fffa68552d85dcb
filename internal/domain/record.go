package domain

import (
	"time"

	"github.com/google/uuid"
)

// TaskRecord — состояние одной задачи в рамках одного run.
//
// Record создаётся state store при создании run (все задачи PENDING),
// мутируется только Runner'ом и Quality Gate через state store
// и никогда не удаляется в течение run (остаётся для аудита и resume).
type TaskRecord struct {
	// RunID — ссылка на родительский run.
	RunID uuid.UUID `json:"run_id"`

	// TaskID — ID задачи из PipelineSpec.
	TaskID string `json:"task_id"`

	// Status — текущий статус задачи.
	Status TaskStatus `json:"status"`

	// Attempt — номер попытки (начиная с 1). Увеличивается при retry.
	Attempt int `json:"attempt"`

	// Error — текст последней ошибки.
	Error string `json:"error,omitempty"`

	// StartedAt — время начала первой попытки.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время достижения терминального статуса.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// Dataset — произведённый Dataset (для SUCCEEDED и QUARANTINED).
	Dataset *Dataset `json:"dataset,omitempty"`

	// CreatedAt — время создания record.
	CreatedAt time.Time `json:"created_at"`
}

// Duration возвращает продолжительность выполнения.
func (r *TaskRecord) Duration() time.Duration {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(*r.StartedAt)
}

// IsFinished возвращает true, если задача достигла терминального статуса.
func (r *TaskRecord) IsFinished() bool {
	return r.Status.IsTerminal()
}

// MarkRunning переводит record в RUNNING и увеличивает счётчик попыток.
func (r *TaskRecord) MarkRunning() {
	now := time.Now()
	r.Status = TaskStatusRunning
	if r.StartedAt == nil {
		r.StartedAt = &now
	}
	r.Attempt++
}

// MarkRequeued возвращает record в PENDING для повторной попытки.
// Счётчик попыток сохраняется; FinishedAt не трогается.
func (r *TaskRecord) MarkRequeued(errMsg string) {
	r.Status = TaskStatusPending
	r.Error = errMsg
}

// MarkSucceeded переводит record в SUCCEEDED с произведённым Dataset.
func (r *TaskRecord) MarkSucceeded(ds *Dataset) {
	now := time.Now()
	r.Status = TaskStatusSucceeded
	r.FinishedAt = &now
	r.Dataset = ds
	r.Error = ""
}

// MarkFailed переводит record в FAILED с ошибкой.
func (r *TaskRecord) MarkFailed(errMsg string) {
	now := time.Now()
	r.Status = TaskStatusFailed
	r.FinishedAt = &now
	r.Error = errMsg
}

// MarkSkipped переводит record в SKIPPED с причиной.
func (r *TaskRecord) MarkSkipped(reason string) {
	now := time.Now()
	r.Status = TaskStatusSkipped
	r.FinishedAt = &now
	r.Error = reason
}

// MarkQuarantined переводит record в QUARANTINED.
// Dataset сохраняется с флагом карантина.
func (r *TaskRecord) MarkQuarantined(ds *Dataset, reason string) {
	now := time.Now()
	r.Status = TaskStatusQuarantined
	r.FinishedAt = &now
	r.Dataset = ds.WithQuarantine()
	r.Error = reason
}

// CanRetry проверяет, остались ли попытки.
func (r *TaskRecord) CanRetry(maxAttempts int) bool {
	return r.Attempt < maxAttempts
}
