package domain

// RunStatus — статус выполнения run.
//
// Жизненный цикл:
//
//	INITIALIZING → RUNNING → SUCCEEDED
//	                       ↘ FAILED
//	             (или) → ABORTED (по внешнему запросу)
//
// Ошибка валидации графа переводит run из INITIALIZING сразу в FAILED,
// не запуская ни одной задачи.
type RunStatus string

const (
	// RunStatusInitializing — run создан, идёт валидация графа и подготовка state store.
	RunStatusInitializing RunStatus = "INITIALIZING"

	// RunStatusRunning — run в процессе выполнения.
	RunStatusRunning RunStatus = "RUNNING"

	// RunStatusSucceeded — run успешно завершён.
	RunStatusSucceeded RunStatus = "SUCCEEDED"

	// RunStatusFailed — run завершился с ошибкой.
	RunStatusFailed RunStatus = "FAILED"

	// RunStatusAborted — run прерван внешним запросом abort.
	RunStatusAborted RunStatus = "ABORTED"
)

// IsTerminal возвращает true, если статус финальный (run завершён).
// Терминальный run никогда не мутируется и не возобновляется.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusSucceeded, RunStatusFailed, RunStatusAborted:
		return true
	default:
		return false
	}
}

// TaskStatus — статус выполнения задачи внутри run.
//
// Жизненный цикл:
//
//	PENDING → READY → RUNNING → SUCCEEDED
//	                          ↘ FAILED
//	                          ↘ QUARANTINED (quality gate)
//	        ↘ SKIPPED (зависимость упала)
//
// Статус монотонен, кроме retryable-перехода RUNNING → PENDING
// (повторная постановка в очередь до исчерпания попыток).
type TaskStatus string

const (
	// TaskStatusPending — задача ждёт выполнения зависимостей.
	TaskStatusPending TaskStatus = "PENDING"

	// TaskStatusReady — все зависимости выполнены, задача в очереди на диспатч.
	TaskStatusReady TaskStatus = "READY"

	// TaskStatusRunning — задача выполняется.
	TaskStatusRunning TaskStatus = "RUNNING"

	// TaskStatusSucceeded — задача успешно завершена, Dataset доступен потребителям.
	TaskStatusSucceeded TaskStatus = "SUCCEEDED"

	// TaskStatusFailed — задача завершилась с ошибкой (после всех retry).
	TaskStatusFailed TaskStatus = "FAILED"

	// TaskStatusSkipped — задача не выполнялась: упала её зависимость.
	TaskStatusSkipped TaskStatus = "SKIPPED"

	// TaskStatusQuarantined — quality gate пометил Dataset как подозрительный.
	// Dataset сохранён, но доступен только толерантным потребителям.
	TaskStatusQuarantined TaskStatus = "QUARANTINED"
)

// IsTerminal возвращает true, если статус финальный.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusSucceeded, TaskStatusFailed, TaskStatusSkipped, TaskStatusQuarantined:
		return true
	default:
		return false
	}
}
