package builtin

import (
	"context"
	"testing"

	"github.com/ravskel/conveyor/internal/connector"
	"github.com/ravskel/conveyor/internal/domain"
)

func stagedDataset(t *testing.T, staging *Staging, rows []Row) *domain.Dataset {
	t.Helper()
	ref, err := staging.Write(rows)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return &domain.Dataset{
		Ref:    ref,
		Source: "api:billing",
		Rows:   int64(len(rows)),
		Schema: InferSchema(rows),
	}
}

func TestMapping_DropNullRenameSelect(t *testing.T) {
	staging := newStaging(t)
	tr := NewMappingTransformer(staging)

	in := stagedDataset(t, staging, []Row{
		{"id": float64(1), "amt": 10.5, "debug": "x"},
		{"id": nil, "amt": 3.0, "debug": "y"},
		{"id": float64(3), "amt": 7.0, "debug": "z"},
	})

	out, err := tr.Transform(context.Background(), in, connector.Config{
		"drop_null": []any{"id"},
		"rename":    map[string]any{"amt": "amount"},
		"select":    []any{"id", "amount"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if out.Rows != 2 {
		t.Errorf("rows = %d, want 2 (null id dropped)", out.Rows)
	}
	if out.Source != in.Source {
		t.Errorf("source = %s, want %s", out.Source, in.Source)
	}
	if out.Ref == in.Ref {
		t.Error("transform must produce a new dataset, not reuse the input ref")
	}

	rows, err := ReadRef(out.Ref)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first := rows[0]
	if first["amount"] != 10.5 {
		t.Errorf("rename lost: %v", first)
	}
	if _, ok := first["debug"]; ok {
		t.Errorf("select kept extra column: %v", first)
	}
}

func TestMapping_EmptyConfigCopiesInput(t *testing.T) {
	staging := newStaging(t)
	tr := NewMappingTransformer(staging)

	in := stagedDataset(t, staging, []Row{{"id": float64(1)}})

	out, err := tr.Transform(context.Background(), in, connector.Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Rows != 1 {
		t.Errorf("rows = %d, want 1", out.Rows)
	}

	rows, err := ReadRef(out.Ref)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rows[0]["id"] != float64(1) {
		t.Errorf("row = %v", rows[0])
	}
}

func TestSleep_RequiresDuration(t *testing.T) {
	tr := NewSleepTransformer()

	_, err := tr.Transform(context.Background(), &domain.Dataset{}, connector.Config{})
	if err == nil {
		t.Error("expected error without duration")
	}
}

func TestSleep_PassesInputThrough(t *testing.T) {
	tr := NewSleepTransformer()

	in := &domain.Dataset{Ref: "file:///tmp/x.json", Rows: 5}
	out, err := tr.Transform(context.Background(), in, connector.Config{"duration_ms": 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out == in {
		t.Error("expected a copy, got the same pointer")
	}
	if out.Ref != in.Ref || out.Rows != in.Rows {
		t.Errorf("output = %+v, want copy of input", out)
	}
}

func TestSleep_CancelledContext(t *testing.T) {
	tr := NewSleepTransformer()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tr.Transform(ctx, &domain.Dataset{}, connector.Config{"duration_sec": 60})
	if err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
