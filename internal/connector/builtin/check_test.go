package builtin

import (
	"context"
	"errors"
	"testing"

	"github.com/ravskel/conveyor/internal/connector"
	"github.com/ravskel/conveyor/internal/domain"
)

func checkOne(t *testing.T, rows []Row, rule domain.Rule) domain.RuleOutcome {
	t.Helper()
	staging := newStaging(t)
	in := stagedDataset(t, staging, rows)

	outcomes, err := NewRulesChecker().Check(context.Background(), in, []domain.Rule{rule})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(outcomes) != 1 {
		t.Fatalf("expected 1 outcome, got %d", len(outcomes))
	}
	return outcomes[0]
}

func TestRules_NotNull(t *testing.T) {
	rows := []Row{
		{"id": float64(1)},
		{"id": nil},
		{"other": "x"},
	}

	out := checkOne(t, rows, domain.Rule{Name: "id_set", Type: "not_null", Column: "id"})
	if out.Status != domain.RuleFail {
		t.Errorf("status = %s, want fail", out.Status)
	}
	if out.Detail == "" {
		t.Error("expected detail with violation count")
	}

	out = checkOne(t, rows[:1], domain.Rule{Name: "id_set", Type: "not_null", Column: "id"})
	if out.Status != domain.RulePass {
		t.Errorf("status = %s, want pass", out.Status)
	}
}

func TestRules_Range(t *testing.T) {
	rows := []Row{
		{"amount": 10.0},
		{"amount": -5.0},
		{"amount": nil}, // null не участвует в range
	}

	out := checkOne(t, rows, domain.Rule{
		Name:   "positive",
		Type:   "range",
		Column: "amount",
		Params: map[string]any{"min": 0},
	})
	if out.Status != domain.RuleFail {
		t.Errorf("status = %s, want fail", out.Status)
	}

	out = checkOne(t, rows, domain.Rule{
		Name:   "bounded",
		Type:   "range",
		Column: "amount",
		Params: map[string]any{"min": -10, "max": 100},
	})
	if out.Status != domain.RulePass {
		t.Errorf("status = %s, want pass", out.Status)
	}
}

func TestRules_MinRows(t *testing.T) {
	rows := []Row{{"id": float64(1)}}

	out := checkOne(t, rows, domain.Rule{
		Name:   "enough",
		Type:   "min_rows",
		Params: map[string]any{"min": 10},
	})
	if out.Status != domain.RuleFail {
		t.Errorf("status = %s, want fail", out.Status)
	}

	out = checkOne(t, rows, domain.Rule{
		Name:   "enough",
		Type:   "min_rows",
		Params: map[string]any{"min": 1},
	})
	if out.Status != domain.RulePass {
		t.Errorf("status = %s, want pass", out.Status)
	}
}

func TestRules_Schema(t *testing.T) {
	rows := []Row{{"id": float64(1), "name": "alpha"}}

	out := checkOne(t, rows, domain.Rule{
		Name:   "shape",
		Type:   "schema",
		Params: map[string]any{"columns": map[string]any{"id": "number", "name": ""}},
	})
	if out.Status != domain.RulePass {
		t.Errorf("status = %s, want pass: %s", out.Status, out.Detail)
	}

	out = checkOne(t, rows, domain.Rule{
		Name:   "shape",
		Type:   "schema",
		Params: map[string]any{"columns": map[string]any{"id": "string"}},
	})
	if out.Status != domain.RuleFail {
		t.Errorf("status = %s, want fail on type mismatch", out.Status)
	}

	out = checkOne(t, rows, domain.Rule{
		Name:   "shape",
		Type:   "schema",
		Params: map[string]any{"columns": map[string]any{"missing": ""}},
	})
	if out.Status != domain.RuleFail {
		t.Errorf("status = %s, want fail on missing column", out.Status)
	}
}

func TestRules_SeverityWarnDowngradesFail(t *testing.T) {
	rows := []Row{{"id": nil}}

	out := checkOne(t, rows, domain.Rule{
		Name:   "soft",
		Type:   "not_null",
		Column: "id",
		Params: map[string]any{"severity": "warn"},
	})
	if out.Status != domain.RuleWarn {
		t.Errorf("status = %s, want warn", out.Status)
	}
}

func TestRules_UnknownTypeFails(t *testing.T) {
	out := checkOne(t, []Row{{"id": float64(1)}}, domain.Rule{Name: "typo", Type: "not_nul"})
	if out.Status != domain.RuleFail {
		t.Errorf("status = %s, want fail for unknown rule type", out.Status)
	}
}

func TestRules_UnreadableDatasetIsError(t *testing.T) {
	in := &domain.Dataset{Ref: "file:///nowhere/absent.json"}

	_, err := NewRulesChecker().Check(context.Background(), in, []domain.Rule{
		{Name: "rows", Type: "min_rows", Params: map[string]any{"min": 1}},
	})
	if !errors.Is(err, connector.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
