package orchestrator

import "errors"

// Ошибки контроллера.
var (
	// ErrInvalidPipeline — пайплайн не прошёл валидацию на Initializing
	// (цикл, неизвестная зависимость, дубликат ID, неизвестный коннектор).
	ErrInvalidPipeline = errors.New("invalid pipeline")

	// ErrGraphMismatch — resume с PipelineSpec, отпечаток которого
	// не совпадает с сохранённым у run.
	ErrGraphMismatch = errors.New("pipeline graph changed since run was created")

	// ErrRunAlreadyActive — run уже выполняется в этом процессе.
	ErrRunAlreadyActive = errors.New("run is already active")
)
