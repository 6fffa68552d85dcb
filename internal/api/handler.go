package api

import (
	"log/slog"

	"github.com/ravskel/conveyor/internal/orchestrator"
)

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	controller *orchestrator.Controller
	logger     *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Controller *orchestrator.Controller
	Logger     *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	return &Handler{
		controller: cfg.Controller,
		logger:     cfg.Logger,
	}
}
