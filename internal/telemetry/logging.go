package telemetry

import (
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
)

// SetupLogger настраивает глобальный slog-логгер процесса и возвращает
// его с атрибутом service (conveyor-server, conveyor-scheduler, ...).
//
// Уровень и формат берутся из окружения:
//   - LOG_LEVEL: DEBUG, INFO, WARN, ERROR (по умолчанию INFO)
//   - LOG_FORMAT: "json" (по умолчанию) или "text" для разработки
//
// На уровне DEBUG к записям добавляется источник вызова.
func SetupLogger(service string) *slog.Logger {
	level := parseLevel(os.Getenv("LOG_LEVEL"))

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if os.Getenv("LOG_FORMAT") == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler).With("service", service)
	slog.SetDefault(logger)

	return logger
}

// parseLevel переводит значение LOG_LEVEL в уровень slog.
// Неизвестное или пустое значение — INFO.
func parseLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Хелперы скоупированных логгеров. Контроллер и Runner помечают все
// записи run'а и задачи одними и теми же ключами (run_id, task_id,
// pipeline), по которым записи склеиваются при анализе логов.

// WithRunID возвращает логгер с атрибутом run_id.
func WithRunID(logger *slog.Logger, runID uuid.UUID) *slog.Logger {
	return logger.With("run_id", runID)
}

// WithTaskID возвращает логгер с атрибутом task_id.
func WithTaskID(logger *slog.Logger, taskID string) *slog.Logger {
	return logger.With("task_id", taskID)
}

// WithPipeline возвращает логгер с атрибутом pipeline.
func WithPipeline(logger *slog.Logger, pipeline string) *slog.Logger {
	return logger.With("pipeline", pipeline)
}
