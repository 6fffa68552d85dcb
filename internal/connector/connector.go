package connector

import (
	"context"

	"github.com/ravskel/conveyor/internal/domain"
)

// Config — непрозрачная конфигурация операции коннектора.
// Ядро передаёт её как есть из TaskDef.Config.
type Config map[string]any

// Extractor извлекает данные из источника и материализует их в Dataset.
type Extractor interface {
	Extract(ctx context.Context, cfg Config) (*domain.Dataset, error)
}

// Transformer производит новый Dataset из входного.
// Входной Dataset read-only; реализация обязана не мутировать его.
type Transformer interface {
	Transform(ctx context.Context, in *domain.Dataset, cfg Config) (*domain.Dataset, error)
}

// Loader записывает Dataset во внешнюю систему.
type Loader interface {
	Load(ctx context.Context, in *domain.Dataset, cfg Config) (*domain.LoadResult, error)
}

// Checker оценивает правила валидации против Dataset.
//
// Checker возвращает результат по каждому правилу; интерпретация
// статусов (strict/quarantine/advisory) — дело quality gate, не Checker'а.
type Checker interface {
	Check(ctx context.Context, in *domain.Dataset, rules []domain.Rule) ([]domain.RuleOutcome, error)
}
