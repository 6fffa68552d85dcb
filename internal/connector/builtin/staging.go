package builtin

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/ravskel/conveyor/internal/connector"
	"github.com/ravskel/conveyor/internal/domain"
)

// Row — одна строка табличных данных.
type Row map[string]any

// refScheme — схема ссылок на материализованные данные staging-директории.
const refScheme = "file://"

// Staging — локальная директория, где builtin-коннекторы материализуют
// Dataset'ы как JSON-файлы (массив объектов-строк).
//
// Dataset.Ref имеет вид "file:///path/to/<uuid>.json". Читать по такой
// ссылке может любой коннектор, не только тот, что её записал.
type Staging struct {
	dir string
}

// NewStaging создаёт staging поверх директории dir.
// Директория создаётся при необходимости.
func NewStaging(dir string) (*Staging, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "conveyor-staging")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	return &Staging{dir: dir}, nil
}

// Dir возвращает путь staging-директории.
func (s *Staging) Dir() string {
	return s.dir
}

// Write материализует строки и возвращает ссылку для Dataset.Ref.
func (s *Staging) Write(rows []Row) (string, error) {
	data, err := json.Marshal(rows)
	if err != nil {
		return "", connector.Fatalf("encode rows: %w", err)
	}

	path := filepath.Join(s.dir, uuid.NewString()+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", connector.Fatal(fmt.Errorf("%w: %v", connector.ErrWrite, err))
	}
	return refScheme + path, nil
}

// ReadRef читает строки по ссылке Dataset.Ref.
func ReadRef(ref string) ([]Row, error) {
	path, ok := strings.CutPrefix(ref, refScheme)
	if !ok || path == "" {
		return nil, connector.Fatalf("unsupported dataset ref %q", ref)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, connector.Fatal(fmt.Errorf("%w: %s", connector.ErrNotFound, ref))
		}
		return nil, connector.Retryablef("read dataset %s: %w", ref, err)
	}

	var rows []Row
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, connector.Fatal(fmt.Errorf("%w: decode %s: %v", connector.ErrSchema, ref, err))
	}
	return rows, nil
}

// InferSchema выводит схему из строк: колонки — объединение ключей,
// тип — по первому не-nil значению колонки.
func InferSchema(rows []Row) []domain.Column {
	types := make(map[string]string)
	for _, row := range rows {
		for name, val := range row {
			if t, seen := types[name]; seen && t != "null" {
				continue
			}
			types[name] = valueType(val)
		}
	}

	names := make([]string, 0, len(types))
	for name := range types {
		names = append(names, name)
	}
	sort.Strings(names)

	schema := make([]domain.Column, len(names))
	for i, name := range names {
		schema[i] = domain.Column{Name: name, Type: types[name]}
	}
	return schema
}

// valueType возвращает JSON-тип значения.
func valueType(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "bool"
	case float64, int, int64, json.Number:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	default:
		return "object"
	}
}
