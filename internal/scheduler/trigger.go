package scheduler

import (
	"encoding/json"
	"fmt"
	"os"
)

// Trigger — декларация периодического запуска пайплайна.
//
// Триггеры объявляются в JSON-файле (TRIGGERS_FILE) и загружаются
// при старте conveyor-scheduler. Каждый триггер указывает на файл
// PipelineSpec и расписание: cron-выражение или интервал в секундах.
type Trigger struct {
	// Name — имя триггера (для логов).
	Name string `json:"name"`

	// SpecFile — путь к JSON-файлу PipelineSpec.
	SpecFile string `json:"spec_file"`

	// CronExpr — стандартное 5-польное cron-выражение.
	CronExpr string `json:"cron_expr,omitempty"`

	// IntervalSec — альтернатива cron: запуск каждые N секунд.
	IntervalSec int `json:"interval_sec,omitempty"`

	// Timezone — timezone для cron-расчёта (default: UTC).
	Timezone string `json:"timezone,omitempty"`

	// Disabled — триггер объявлен, но не срабатывает.
	Disabled bool `json:"disabled,omitempty"`
}

// IsCron возвращает true, если расписание задано cron-выражением.
func (t *Trigger) IsCron() bool {
	return t.CronExpr != ""
}

// IsInterval возвращает true, если расписание задано интервалом.
func (t *Trigger) IsInterval() bool {
	return t.IntervalSec > 0
}

// Validate проверяет корректность декларации триггера.
func (t *Trigger) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("trigger has empty name")
	}
	if t.SpecFile == "" {
		return fmt.Errorf("trigger %q has empty spec_file", t.Name)
	}
	if !t.IsCron() && !t.IsInterval() {
		return fmt.Errorf("trigger %q has neither cron_expr nor interval_sec", t.Name)
	}
	if t.IsCron() {
		if err := ValidateCronExpr(t.CronExpr); err != nil {
			return fmt.Errorf("trigger %q: %w", t.Name, err)
		}
	}
	return nil
}

// LoadTriggers читает и валидирует файл триггеров.
func LoadTriggers(path string) ([]Trigger, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read triggers file: %w", err)
	}

	var triggers []Trigger
	if err := json.Unmarshal(data, &triggers); err != nil {
		return nil, fmt.Errorf("parse triggers file: %w", err)
	}

	for i := range triggers {
		if err := triggers[i].Validate(); err != nil {
			return nil, err
		}
	}

	return triggers, nil
}
