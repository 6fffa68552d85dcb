package builtin

import (
	"context"
	"time"

	"github.com/ravskel/conveyor/internal/connector"
	"github.com/ravskel/conveyor/internal/domain"
)

// SleepTransformer — pass-through трансформер с задержкой.
//
// Конфигурация:
//
//	{"duration_ms": 500}
//
// Возвращает входной Dataset без изменений после паузы. Полезен для
// отладки таймаутов, backoff и abort на живом пайплайне.
type SleepTransformer struct{}

// NewSleepTransformer создаёт трансформер.
func NewSleepTransformer() *SleepTransformer {
	return &SleepTransformer{}
}

// Transform ждёт и возвращает копию входа.
func (t *SleepTransformer) Transform(ctx context.Context, in *domain.Dataset, cfg connector.Config) (*domain.Dataset, error) {
	duration := time.Duration(configInt(cfg, "duration_ms")) * time.Millisecond
	if sec := configInt(cfg, "duration_sec"); duration == 0 && sec > 0 {
		duration = time.Duration(sec) * time.Second
	}
	if duration <= 0 {
		return nil, connector.Fatalf("sleep: duration_ms or duration_sec required")
	}

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}

	cp := *in
	return &cp, nil
}
