package gate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ravskel/conveyor/internal/connector"
	"github.com/ravskel/conveyor/internal/domain"
)

// ErrNoChecker — у задачи объявлен gate, но Checker не сконфигурирован.
var ErrNoChecker = errors.New("gate declared but no checker configured")

// Decision — вердикт quality gate по Dataset.
type Decision int

const (
	// DecisionPass — Dataset допущен вниз по графу.
	DecisionPass Decision = iota

	// DecisionQuarantine — Dataset сохраняется с флагом карантина;
	// потреблять его могут только толерантные задачи.
	DecisionQuarantine

	// DecisionFail — Dataset отбрасывается, задача считается упавшей.
	DecisionFail
)

// String возвращает строковое представление Decision.
func (d Decision) String() string {
	switch d {
	case DecisionPass:
		return "pass"
	case DecisionQuarantine:
		return "quarantine"
	case DecisionFail:
		return "fail"
	default:
		return "unknown"
	}
}

// Result — результат оценки gate.
type Result struct {
	// Decision — итоговый вердикт по политике задачи.
	Decision Decision

	// Outcomes — результаты всех правил, как их вернул Checker.
	Outcomes []domain.RuleOutcome

	// Warnings — человекочитаемые предупреждения: warn-правила
	// плюс fail-правила при политике advisory.
	Warnings []string

	// Reason — сводка упавших правил (для записи в record).
	Reason string
}

// Gate применяет правила валидации задач к произведённым Dataset'ам.
type Gate struct {
	checker connector.Checker
}

// New создаёт Gate поверх внешнего Checker'а.
// Nil checker допустим для пайплайнов без gate-правил.
func New(checker connector.Checker) *Gate {
	return &Gate{checker: checker}
}

// Evaluate оценивает Dataset задачи по её GateSpec.
//
// Без объявленного gate (или с пустым списком правил) Dataset проходит
// автоматически. Инфраструктурная ошибка Checker'а возвращается как
// ошибка коннектора — её классифицирует Runner по общим правилам.
func (g *Gate) Evaluate(ctx context.Context, task *domain.TaskDef, ds *domain.Dataset) (*Result, error) {
	if task.Gate == nil || len(task.Gate.Rules) == 0 {
		return &Result{Decision: DecisionPass}, nil
	}
	if g.checker == nil {
		return nil, fmt.Errorf("%w: task %s", ErrNoChecker, task.ID)
	}

	outcomes, err := g.checker.Check(ctx, ds, task.Gate.Rules)
	if err != nil {
		return nil, fmt.Errorf("check task %s: %w", task.ID, err)
	}

	result := &Result{Outcomes: outcomes}
	var failed []string

	for _, out := range outcomes {
		switch out.Status {
		case domain.RuleWarn:
			result.Warnings = append(result.Warnings, ruleDetail(out))
		case domain.RuleFail:
			failed = append(failed, ruleDetail(out))
		}
	}

	if len(failed) == 0 {
		result.Decision = DecisionPass
		return result, nil
	}

	result.Reason = "quality gate: " + strings.Join(failed, "; ")

	switch task.Gate.EffectivePolicy() {
	case domain.GateAdvisory:
		// Fail лишь предупреждает; задача всё равно успешна.
		result.Decision = DecisionPass
		result.Warnings = append(result.Warnings, failed...)
	case domain.GateQuarantine:
		result.Decision = DecisionQuarantine
	default: // strict
		result.Decision = DecisionFail
	}

	return result, nil
}

func ruleDetail(out domain.RuleOutcome) string {
	if out.Detail == "" {
		return out.Rule
	}
	return out.Rule + ": " + out.Detail
}
