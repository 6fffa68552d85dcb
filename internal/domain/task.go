package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// TaskKind — вид операции, которую выполняет задача.
type TaskKind string

// Виды задач.
const (
	TaskKindExtract   TaskKind = "extract"
	TaskKindTransform TaskKind = "transform"
	TaskKindLoad      TaskKind = "load"
	TaskKindCheck     TaskKind = "check"
)

// ValidTaskKind проверяет, что вид задачи известен.
func ValidTaskKind(k TaskKind) bool {
	switch k {
	case TaskKindExtract, TaskKindTransform, TaskKindLoad, TaskKindCheck:
		return true
	default:
		return false
	}
}

// Criticality — критичность задачи для результата run.
type Criticality string

const (
	// CriticalityFatal — провал задачи (или её пропуск) делает весь run FAILED.
	CriticalityFatal Criticality = "fatal"

	// CriticalitySkip — провал/пропуск задачи толерируется,
	// run может завершиться SUCCEEDED без неё.
	CriticalitySkip Criticality = "skip"
)

// TaskDef — определение одной задачи ETL-пайплайна.
//
// TaskDef неизменяем в течение run. Статус выполнения хранится
// отдельно — в TaskRecord внутри state store, не на графе.
type TaskDef struct {
	// ID — уникальный идентификатор задачи внутри пайплайна.
	ID string `json:"id"`

	// Kind — вид операции: extract, transform, load, check.
	Kind TaskKind `json:"kind"`

	// Connector — имя коннектора в реестре, выполняющего операцию.
	Connector string `json:"connector"`

	// Config — непрозрачная конфигурация коннектора (запрос, путь, URL и т.д.).
	Config map[string]any `json:"config,omitempty"`

	// DependsOn — упорядоченный список ID задач-зависимостей.
	// Порядок значим: входным Dataset'ом считается результат первой
	// зависимости, которая его произвела.
	DependsOn []string `json:"depends_on,omitempty"`

	// Retry — политика повторов. Nil — одна попытка.
	Retry *RetryPolicy `json:"retry,omitempty"`

	// TimeoutSec — таймаут одной попытки в секундах.
	// Каждая повторная попытка получает свежее окно таймаута.
	TimeoutSec int `json:"timeout_sec,omitempty"`

	// Criticality — критичность для результата run (default: fatal).
	Criticality Criticality `json:"criticality,omitempty"`

	// Gate — правила quality gate для произведённого Dataset.
	Gate *GateSpec `json:"gate,omitempty"`

	// AcceptSkipped — задача готова выполняться, даже если зависимость
	// завершилась SKIPPED или FAILED (skip-толерантный потребитель;
	// вход берётся из первой зависимости, произведшей Dataset).
	AcceptSkipped bool `json:"accept_skipped,omitempty"`

	// AcceptQuarantined — задача готова потреблять Dataset,
	// помеченный quality gate как QUARANTINED.
	AcceptQuarantined bool `json:"accept_quarantined,omitempty"`
}

// Timeout возвращает таймаут одной попытки.
// Ноль — таймаут не задан, попытка ограничена только контекстом run.
func (t *TaskDef) Timeout() time.Duration {
	return time.Duration(t.TimeoutSec) * time.Second
}

// IsFatal возвращает true, если провал задачи фатален для run.
func (t *TaskDef) IsFatal() bool {
	return t.Criticality != CriticalitySkip
}

// MaxAttempts возвращает максимальное число попыток с учётом политики.
func (t *TaskDef) MaxAttempts() int {
	if t.Retry == nil || t.Retry.MaxAttempts <= 0 {
		return 1
	}
	return t.Retry.MaxAttempts
}

// PipelineSpec — декларация графа задач одного пайплайна.
//
// PipelineSpec строится один раз до старта run и не мутируется
// во время выполнения.
type PipelineSpec struct {
	// Name — имя пайплайна (для логов и событий).
	Name string `json:"name"`

	// Defaults — значения по умолчанию для всех задач.
	Defaults *Defaults `json:"defaults,omitempty"`

	// Tasks — задачи пайплайна.
	Tasks []TaskDef `json:"tasks"`
}

// Defaults — значения по умолчанию, применяемые к задачам без
// собственной политики.
type Defaults struct {
	Retry      *RetryPolicy `json:"retry,omitempty"`
	TimeoutSec int          `json:"timeout_sec,omitempty"`
}

// TaskByID возвращает определение задачи по ID.
func (p *PipelineSpec) TaskByID(id string) *TaskDef {
	for i := range p.Tasks {
		if p.Tasks[i].ID == id {
			return &p.Tasks[i]
		}
	}
	return nil
}

// ApplyDefaults подставляет Defaults в задачи, где политика не задана явно.
func (p *PipelineSpec) ApplyDefaults() {
	if p.Defaults == nil {
		return
	}
	for i := range p.Tasks {
		task := &p.Tasks[i]
		if task.Retry == nil {
			task.Retry = p.Defaults.Retry
		}
		if task.TimeoutSec == 0 {
			task.TimeoutSec = p.Defaults.TimeoutSec
		}
	}
}

// ParsePipelineSpec парсит PipelineSpec из JSON и применяет Defaults.
func ParsePipelineSpec(data []byte) (*PipelineSpec, error) {
	var spec PipelineSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parse pipeline spec: %w", err)
	}
	spec.ApplyDefaults()
	return &spec, nil
}
