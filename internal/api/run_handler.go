package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/ravskel/conveyor/internal/domain"
	"github.com/ravskel/conveyor/internal/orchestrator"
)

// SubmitRun создаёт run из PipelineSpec и запускает его.
// POST /api/v1/runs
func (h *Handler) SubmitRun(w http.ResponseWriter, r *http.Request) {
	var req SubmitRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	spec := req.Pipeline
	spec.ApplyDefaults()

	runID, err := h.controller.Submit(r.Context(), &spec)
	if err != nil {
		// Невалидный пайплайн оставляет FAILED-run — отдаём его ID
		// вместе с ошибкой валидации.
		if errors.Is(err, orchestrator.ErrInvalidPipeline) && runID != uuid.Nil {
			JSON(w, http.StatusBadRequest, ErrorResponse{
				Error: ErrorDetail{Code: ErrCodeBadRequest, Message: err.Error()},
			})
			return
		}
		HandleCoreError(w, h.logger, err, "")
		return
	}

	Created(w, SubmitRunResponse{RunID: runID})
}

// GetRun возвращает снимок run по ID.
// GET /api/v1/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}

	snap, err := h.controller.Status(r.Context(), id)
	if HandleCoreError(w, h.logger, err, "run not found") {
		return
	}

	Success(w, SnapshotFromDomain(snap))
}

// ListRunTasks возвращает record'ы задач run.
// GET /api/v1/runs/{id}/tasks
func (h *Handler) ListRunTasks(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}

	snap, err := h.controller.Status(r.Context(), id)
	if HandleCoreError(w, h.logger, err, "run not found") {
		return
	}

	result := make([]TaskRecordResponse, len(snap.Records))
	for i, rec := range snap.Records {
		result[i] = TaskRecordFromDomain(rec)
	}

	List(w, result, len(result))
}

// AbortRun запрашивает прерывание run.
// POST /api/v1/runs/{id}/abort
func (h *Handler) AbortRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}

	if err := h.controller.Abort(r.Context(), id); err != nil {
		HandleCoreError(w, h.logger, err, "run not found")
		return
	}

	snap, err := h.controller.Status(r.Context(), id)
	if HandleCoreError(w, h.logger, err, "run not found") {
		return
	}

	Success(w, RunFromDomain(snap.Run))
}

// ResumeRun возобновляет нетерминальный run.
// POST /api/v1/runs/{id}/resume
func (h *Handler) ResumeRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}

	var spec *domain.PipelineSpec
	var req ResumeRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		BadRequest(w, "invalid request body")
		return
	}
	if req.Pipeline != nil {
		req.Pipeline.ApplyDefaults()
		spec = req.Pipeline
	}

	runID, err := h.controller.Resume(r.Context(), id, spec)
	if err != nil {
		HandleCoreError(w, h.logger, err, "run not found")
		return
	}

	Success(w, SubmitRunResponse{RunID: runID})
}
