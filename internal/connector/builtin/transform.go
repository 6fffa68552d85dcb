package builtin

import (
	"context"

	"github.com/ravskel/conveyor/internal/connector"
	"github.com/ravskel/conveyor/internal/domain"
)

// MappingTransformer — трансформер переименования и фильтрации колонок.
//
// Конфигурация:
//
//	{
//	    "drop_null": ["id"],
//	    "rename": {"amt": "amount"},
//	    "select": ["id", "amount", "created_at"]
//	}
//
// Шаги применяются в этом порядке: строки с null в drop_null-колонках
// отбрасываются, затем колонки переименовываются, затем select
// оставляет только перечисленные (имена после переименования).
// Все три шага опциональны; пустая конфигурация — копия входа.
type MappingTransformer struct {
	staging *Staging
}

// NewMappingTransformer создаёт трансформер поверх staging.
func NewMappingTransformer(staging *Staging) *MappingTransformer {
	return &MappingTransformer{staging: staging}
}

// Transform производит новый Dataset; входной не мутируется.
func (t *MappingTransformer) Transform(ctx context.Context, in *domain.Dataset, cfg connector.Config) (*domain.Dataset, error) {
	dropNull := configStringSlice(cfg, "drop_null")
	rename := configStringMap(cfg, "rename")
	selected := configStringSlice(cfg, "select")

	rows, err := ReadRef(in.Ref)
	if err != nil {
		return nil, err
	}

	out := make([]Row, 0, len(rows))
	for _, row := range rows {
		if hasNull(row, dropNull) {
			continue
		}
		out = append(out, mapRow(row, rename, selected))
	}

	ref, err := t.staging.Write(out)
	if err != nil {
		return nil, err
	}

	return &domain.Dataset{
		Ref:    ref,
		Source: in.Source,
		Rows:   int64(len(out)),
		Schema: InferSchema(out),
	}, nil
}

// hasNull возвращает true, если хотя бы одна из колонок отсутствует
// или равна null.
func hasNull(row Row, columns []string) bool {
	for _, name := range columns {
		if v, ok := row[name]; !ok || v == nil {
			return true
		}
	}
	return false
}

// mapRow строит новую строку с учётом rename и select.
func mapRow(row Row, rename map[string]string, selected []string) Row {
	mapped := make(Row, len(row))
	for name, val := range row {
		if newName, ok := rename[name]; ok {
			name = newName
		}
		mapped[name] = val
	}

	if len(selected) == 0 {
		return mapped
	}
	narrowed := make(Row, len(selected))
	for _, name := range selected {
		if val, ok := mapped[name]; ok {
			narrowed[name] = val
		}
	}
	return narrowed
}
