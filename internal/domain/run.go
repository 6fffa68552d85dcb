package domain

import (
	"time"

	"github.com/google/uuid"
)

// Run — одна попытка выполнения пайплайна.
//
// Run создаётся когда:
//   - Пользователь запускает пайплайн вручную (через API/CLI)
//   - Cron-триггер отправляет пайплайн по расписанию
//
// Каждый run держит отпечаток (fingerprint) своего PipelineSpec:
// resume против изменившегося графа завершается ошибкой GraphMismatch.
type Run struct {
	// ID — уникальный идентификатор run.
	ID uuid.UUID `json:"id"`

	// Pipeline — имя пайплайна.
	Pipeline string `json:"pipeline"`

	// Fingerprint — sha256 канонического JSON-представления PipelineSpec.
	Fingerprint string `json:"fingerprint"`

	// Status — текущий статус выполнения.
	Status RunStatus `json:"status"`

	// StartedAt — время перехода в RUNNING.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время достижения терминального статуса.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// Error — текст ошибки, если run завершился FAILED.
	Error string `json:"error,omitempty"`

	// CreatedAt — время создания run.
	CreatedAt time.Time `json:"created_at"`
}

// Duration возвращает продолжительность выполнения.
func (r *Run) Duration() time.Duration {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(*r.StartedAt)
}

// IsFinished возвращает true, если run завершён.
func (r *Run) IsFinished() bool {
	return r.Status.IsTerminal()
}

// MarkRunning переводит run в статус RUNNING.
func (r *Run) MarkRunning() {
	now := time.Now()
	r.Status = RunStatusRunning
	if r.StartedAt == nil {
		r.StartedAt = &now
	}
}

// MarkSucceeded переводит run в статус SUCCEEDED.
func (r *Run) MarkSucceeded() {
	now := time.Now()
	r.Status = RunStatusSucceeded
	r.FinishedAt = &now
}

// MarkFailed переводит run в статус FAILED с ошибкой.
func (r *Run) MarkFailed(errMsg string) {
	now := time.Now()
	r.Status = RunStatusFailed
	r.FinishedAt = &now
	r.Error = errMsg
}

// MarkAborted переводит run в статус ABORTED.
func (r *Run) MarkAborted() {
	now := time.Now()
	r.Status = RunStatusAborted
	r.FinishedAt = &now
}

// RunSnapshot — снимок состояния run для отчёта о прогрессе.
type RunSnapshot struct {
	// Run — данные run.
	Run Run `json:"run"`

	// Records — record'ы задач, отсортированные по TaskID.
	Records []TaskRecord `json:"records"`

	// Counts — количество задач по статусам.
	Counts map[TaskStatus]int `json:"counts"`
}
