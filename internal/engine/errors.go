package engine

import (
	"errors"
	"strings"
)

// Ошибки валидации графа задач.
var (
	// ErrEmptyPipeline — пайплайн не содержит задач.
	ErrEmptyPipeline = errors.New("pipeline has no tasks")

	// ErrEmptyTaskID — задача не имеет ID.
	ErrEmptyTaskID = errors.New("task has empty ID")

	// ErrDuplicateTaskID — несколько задач с одинаковым ID.
	ErrDuplicateTaskID = errors.New("duplicate task ID")

	// ErrUnknownTaskKind — неизвестный вид задачи.
	ErrUnknownTaskKind = errors.New("unknown task kind")

	// ErrUnknownDependency — задача зависит от несуществующей задачи.
	ErrUnknownDependency = errors.New("task depends on unknown task")

	// ErrSelfDependency — задача зависит от самой себя.
	ErrSelfDependency = errors.New("task depends on itself")

	// ErrCycleDetected — обнаружен цикл в зависимостях.
	ErrCycleDetected = errors.New("cyclic dependency detected")

	// ErrEmptyConnector — задача не указывает коннектор.
	ErrEmptyConnector = errors.New("task has empty connector")
)

// ValidationError — ошибка валидации с контекстом задачи.
type ValidationError struct {
	TaskID  string // ID задачи, где произошла ошибка
	Field   string // поле, вызвавшее ошибку
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.TaskID != "" {
		return "task " + e.TaskID + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(taskID, field, message string, err error) *ValidationError {
	return &ValidationError{
		TaskID:  taskID,
		Field:   field,
		Message: message,
		Err:     err,
	}
}

// CycleError — обнаруженный цикл с полным путём.
type CycleError struct {
	// Path — задачи цикла в порядке обхода; последняя совпадает с первой.
	Path []string
}

// Error реализует интерфейс error.
func (e *CycleError) Error() string {
	return "cyclic dependency detected: " + strings.Join(e.Path, " -> ")
}

// Unwrap позволяет errors.Is(err, ErrCycleDetected).
func (e *CycleError) Unwrap() error {
	return ErrCycleDetected
}
