package domain

import (
	"time"

	"github.com/google/uuid"
)

// Column — описание одной колонки схемы Dataset.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Dataset — неизменяемый handle на табличные данные, произведённые задачей.
//
// Dataset не содержит сами строки — только ссылку на место их
// материализации (Ref) и метаданные. Производится ровно одной задачей,
// потребляется read-only нулём и более задачами ниже по графу.
// Трансформация создаёт новый Dataset, а не правит существующий.
type Dataset struct {
	// ID — уникальный идентификатор Dataset.
	ID uuid.UUID `json:"id"`

	// Ref — ссылка на материализованные данные.
	// Например: "file:///tmp/out.parquet" или "table://dwh.orders_clean".
	Ref string `json:"ref,omitempty"`

	// Source — источник данных (database:crm, api:billing, file:orders.csv).
	Source string `json:"source,omitempty"`

	// Rows — количество строк.
	Rows int64 `json:"rows"`

	// Schema — схема данных.
	Schema []Column `json:"schema,omitempty"`

	// ProducedBy — ID задачи, произведшей Dataset.
	ProducedBy string `json:"produced_by"`

	// ProducedAt — время производства.
	ProducedAt time.Time `json:"produced_at"`

	// Quarantined — Dataset помечен quality gate как подозрительный.
	Quarantined bool `json:"quarantined,omitempty"`

	// Profile — summary-статистики внешнего профайлера.
	// Чисто наблюдательные метаданные, на pass/fail не влияют.
	Profile map[string]any `json:"profile,omitempty"`
}

// WithQuarantine возвращает копию Dataset с выставленным флагом карантина.
// Сам Dataset не мутируется.
func (d *Dataset) WithQuarantine() *Dataset {
	cp := *d
	cp.Quarantined = true
	return &cp
}

// LoadResult — результат операции load.
type LoadResult struct {
	// Target — куда записаны данные.
	Target string `json:"target"`

	// RowsWritten — количество записанных строк.
	RowsWritten int64 `json:"rows_written"`

	// Detail — дополнительные сведения загрузчика.
	Detail map[string]any `json:"detail,omitempty"`
}
