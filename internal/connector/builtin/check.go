package builtin

import (
	"context"
	"fmt"

	"github.com/ravskel/conveyor/internal/domain"
)

// RulesChecker — встроенный Checker.
//
// Поддерживаемые типы правил:
//
//   - not_null: колонка Column не содержит null/отсутствующих значений
//   - range: числовые значения Column в границах params.min..params.max
//   - min_rows: в Dataset не меньше params.min строк
//   - schema: схема содержит колонки params.columns (map имя -> тип)
//
// Правило с params.severity = "warn" при нарушении даёт warn вместо
// fail: advisory-сигнал, не влияющий на судьбу задачи даже при strict.
type RulesChecker struct{}

// NewRulesChecker создаёт checker.
func NewRulesChecker() *RulesChecker {
	return &RulesChecker{}
}

// Check оценивает правила против Dataset. Строки читаются по Ref один
// раз на все правила. Неизвестный тип правила — fail, не ошибка:
// опечатка в декларации не должна выглядеть как сбой инфраструктуры.
func (c *RulesChecker) Check(ctx context.Context, in *domain.Dataset, rules []domain.Rule) ([]domain.RuleOutcome, error) {
	rows, err := ReadRef(in.Ref)
	if err != nil {
		return nil, err
	}

	outcomes := make([]domain.RuleOutcome, len(rules))
	for i, rule := range rules {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		outcomes[i] = evaluateRule(rule, in, rows)
	}
	return outcomes, nil
}

// evaluateRule оценивает одно правило.
func evaluateRule(rule domain.Rule, ds *domain.Dataset, rows []Row) domain.RuleOutcome {
	outcome := domain.RuleOutcome{Rule: rule.Name, Status: domain.RulePass}

	var detail string
	switch rule.Type {
	case "not_null":
		detail = checkNotNull(rule, rows)
	case "range":
		detail = checkRange(rule, rows)
	case "min_rows":
		detail = checkMinRows(rule, rows)
	case "schema":
		detail = checkSchema(rule, ds.Schema)
	default:
		detail = fmt.Sprintf("unknown rule type %q", rule.Type)
	}

	if detail != "" {
		outcome.Status = domain.RuleFail
		if severity, _ := rule.Params["severity"].(string); severity == "warn" {
			outcome.Status = domain.RuleWarn
		}
		outcome.Detail = detail
	}
	return outcome
}

// checkNotNull возвращает описание нарушения или пустую строку.
func checkNotNull(rule domain.Rule, rows []Row) string {
	if rule.Column == "" {
		return "not_null: column is required"
	}
	violations := 0
	for _, row := range rows {
		if v, ok := row[rule.Column]; !ok || v == nil {
			violations++
		}
	}
	if violations > 0 {
		return fmt.Sprintf("%d of %d rows have null %s", violations, len(rows), rule.Column)
	}
	return ""
}

func checkRange(rule domain.Rule, rows []Row) string {
	if rule.Column == "" {
		return "range: column is required"
	}
	min, hasMin := configFloat(rule.Params, "min")
	max, hasMax := configFloat(rule.Params, "max")
	if !hasMin && !hasMax {
		return "range: min or max is required"
	}

	violations := 0
	for _, row := range rows {
		v, ok := row[rule.Column]
		if !ok || v == nil {
			continue
		}
		n, ok := asNumber(v)
		if !ok {
			violations++
			continue
		}
		if (hasMin && n < min) || (hasMax && n > max) {
			violations++
		}
	}
	if violations > 0 {
		return fmt.Sprintf("%d of %d rows have %s out of range", violations, len(rows), rule.Column)
	}
	return ""
}

func checkMinRows(rule domain.Rule, rows []Row) string {
	min := configInt(rule.Params, "min")
	if min <= 0 {
		return "min_rows: min is required"
	}
	if len(rows) < min {
		return fmt.Sprintf("%d rows, expected at least %d", len(rows), min)
	}
	return ""
}

// checkSchema проверяет наличие и типы колонок из params.columns.
// Пустой ожидаемый тип означает "колонка должна просто существовать".
func checkSchema(rule domain.Rule, schema []domain.Column) string {
	expected := configStringMap(rule.Params, "columns")
	if len(expected) == 0 {
		return "schema: columns is required"
	}

	byName := make(map[string]string, len(schema))
	for _, col := range schema {
		byName[col.Name] = col.Type
	}

	for name, wantType := range expected {
		gotType, ok := byName[name]
		if !ok {
			return fmt.Sprintf("missing column %s", name)
		}
		if wantType != "" && gotType != "null" && gotType != wantType {
			return fmt.Sprintf("column %s has type %s, expected %s", name, gotType, wantType)
		}
	}
	return ""
}

// asNumber приводит значение к float64.
func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
