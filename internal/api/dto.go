package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/ravskel/conveyor/internal/domain"
)

// Run DTOs

// SubmitRunRequest — запрос на запуск пайплайна.
// Тело — PipelineSpec целиком.
type SubmitRunRequest struct {
	Pipeline domain.PipelineSpec `json:"pipeline"`
}

// SubmitRunResponse — ответ на submit.
type SubmitRunResponse struct {
	RunID uuid.UUID `json:"run_id"`
}

// RunResponse — ответ с run.
type RunResponse struct {
	ID          uuid.UUID  `json:"id"`
	Pipeline    string     `json:"pipeline"`
	Status      string     `json:"status"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	Fingerprint string     `json:"fingerprint"`
}

// RunFromDomain конвертирует domain.Run в RunResponse.
func RunFromDomain(r domain.Run) RunResponse {
	return RunResponse{
		ID:          r.ID,
		Pipeline:    r.Pipeline,
		Status:      string(r.Status),
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
		Error:       r.Error,
		CreatedAt:   r.CreatedAt,
		Fingerprint: r.Fingerprint,
	}
}

// TaskRecordResponse — ответ с record'ом задачи.
type TaskRecordResponse struct {
	TaskID     string     `json:"task_id"`
	Status     string     `json:"status"`
	Attempt    int        `json:"attempt"`
	Error      string     `json:"error,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	DatasetRef string     `json:"dataset_ref,omitempty"`
}

// TaskRecordFromDomain конвертирует domain.TaskRecord в TaskRecordResponse.
func TaskRecordFromDomain(r domain.TaskRecord) TaskRecordResponse {
	resp := TaskRecordResponse{
		TaskID:     r.TaskID,
		Status:     string(r.Status),
		Attempt:    r.Attempt,
		Error:      r.Error,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
	if r.Dataset != nil {
		resp.DatasetRef = r.Dataset.Ref
	}
	return resp
}

// SnapshotResponse — снимок run'а: статус плюс record'ы задач.
type SnapshotResponse struct {
	Run     RunResponse          `json:"run"`
	Records []TaskRecordResponse `json:"records"`
	Counts  map[string]int       `json:"counts"`
}

// SnapshotFromDomain конвертирует domain.RunSnapshot в SnapshotResponse.
func SnapshotFromDomain(s *domain.RunSnapshot) SnapshotResponse {
	records := make([]TaskRecordResponse, len(s.Records))
	for i, rec := range s.Records {
		records[i] = TaskRecordFromDomain(rec)
	}
	counts := make(map[string]int, len(s.Counts))
	for status, n := range s.Counts {
		counts[string(status)] = n
	}
	return SnapshotResponse{
		Run:     RunFromDomain(s.Run),
		Records: records,
		Counts:  counts,
	}
}

// ResumeRunRequest — запрос на возобновление run.
// Pipeline необязателен: nil означает сохранённый при submit spec.
type ResumeRunRequest struct {
	Pipeline *domain.PipelineSpec `json:"pipeline,omitempty"`
}
