package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/ravskel/conveyor/internal/domain"
)

// Submitter отправляет пайплайн на выполнение.
// Реализуется orchestrator.Controller.
type Submitter interface {
	Submit(ctx context.Context, spec *domain.PipelineSpec) (uuid.UUID, error)
}

// Scheduler срабатывает по триггерам и отправляет их пайплайны
// контроллеру.
type Scheduler struct {
	submitter Submitter
	logger    *slog.Logger
	triggers  []*armedTrigger
}

// armedTrigger — триггер с вычисленным временем срабатывания.
type armedTrigger struct {
	Trigger
	nextDue   time.Time
	lastRunID uuid.UUID
}

// Config — конфигурация Scheduler.
type Config struct {
	Submitter Submitter
	Triggers  []Trigger
	Logger    *slog.Logger
}

// New создаёт Scheduler и взводит триггеры.
// Невалидный триггер — ошибка конструктора, а не тика.
func New(cfg Config) (*Scheduler, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Scheduler{
		submitter: cfg.Submitter,
		logger:    logger,
	}

	now := time.Now()
	for i := range cfg.Triggers {
		trig := cfg.Triggers[i]
		if trig.Disabled {
			logger.Info("trigger disabled", "trigger", trig.Name)
			continue
		}
		if err := trig.Validate(); err != nil {
			return nil, err
		}

		nextDue, err := CalculateNextDue(&trig, now)
		if err != nil {
			return nil, err
		}

		s.triggers = append(s.triggers, &armedTrigger{Trigger: trig, nextDue: nextDue})
		logger.Info("trigger armed",
			"trigger", trig.Name,
			"spec_file", trig.SpecFile,
			"next_due", nextDue,
		)
	}

	return s, nil
}

// Run крутит тики до отмены контекста.
// interval — период проверки (обычно секунда).
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick обрабатывает сработавшие триггеры.
// Ошибка одного триггера не блокирует остальные.
func (s *Scheduler) Tick(ctx context.Context) {
	now := time.Now()

	for _, trig := range s.triggers {
		if trig.nextDue.After(now) {
			continue
		}

		runID, err := s.fire(ctx, trig)
		if err != nil {
			s.logger.Error("trigger failed",
				"trigger", trig.Name,
				"error", err,
			)
		} else {
			trig.lastRunID = runID
			s.logger.Info("trigger fired",
				"trigger", trig.Name,
				"run_id", runID,
			)
		}

		nextDue, err := CalculateNextDue(&trig.Trigger, now)
		if err != nil {
			// Validate в конструкторе делает это недостижимым.
			s.logger.Error("failed to calculate next due", "trigger", trig.Name, "error", err)
			continue
		}
		trig.nextDue = nextDue
	}
}

// fire читает PipelineSpec триггера и отправляет его контроллеру.
// Файл перечитывается на каждое срабатывание: правка спеки
// подхватывается без рестарта процесса.
func (s *Scheduler) fire(ctx context.Context, trig *armedTrigger) (uuid.UUID, error) {
	data, err := os.ReadFile(trig.SpecFile)
	if err != nil {
		return uuid.Nil, fmt.Errorf("read spec file: %w", err)
	}

	spec, err := domain.ParsePipelineSpec(data)
	if err != nil {
		return uuid.Nil, err
	}

	return s.submitter.Submit(ctx, spec)
}
