package builtin

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ravskel/conveyor/internal/connector"
	"github.com/ravskel/conveyor/internal/domain"
)

// FileConnector читает и пишет локальные файлы с табличными данными.
// Реализует Extractor и Loader.
//
// Конфигурация extract:
//
//	{"path": "/data/orders.csv", "format": "csv"}
//
// Конфигурация load:
//
//	{"path": "/out/orders_clean.json", "format": "json"}
//
// Формат выводится из расширения, если не задан явно.
// Поддерживаются json (массив объектов) и csv (первая строка — заголовок).
type FileConnector struct {
	staging *Staging
}

// NewFileConnector создаёт файловый коннектор поверх staging.
func NewFileConnector(staging *Staging) *FileConnector {
	return &FileConnector{staging: staging}
}

// Extract читает файл и материализует его строки в staging.
func (c *FileConnector) Extract(ctx context.Context, cfg connector.Config) (*domain.Dataset, error) {
	path := configString(cfg, "path")
	if path == "" {
		return nil, connector.Fatalf("file: path is required")
	}
	format, err := resolveFormat(cfg, path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, connector.Fatal(fmt.Errorf("%w: %s", connector.ErrNotFound, path))
		}
		return nil, connector.Retryablef("file: read %s: %w", path, err)
	}

	var rows []Row
	switch format {
	case "json":
		if err := json.Unmarshal(data, &rows); err != nil {
			return nil, connector.Fatal(fmt.Errorf("%w: %s is not an array of objects: %v", connector.ErrSchema, path, err))
		}
	case "csv":
		rows, err = parseCSV(data)
		if err != nil {
			return nil, err
		}
	}

	ref, err := c.staging.Write(rows)
	if err != nil {
		return nil, err
	}

	return &domain.Dataset{
		Ref:    ref,
		Source: "file:" + path,
		Rows:   int64(len(rows)),
		Schema: InferSchema(rows),
	}, nil
}

// Load записывает входной Dataset в файл.
func (c *FileConnector) Load(ctx context.Context, in *domain.Dataset, cfg connector.Config) (*domain.LoadResult, error) {
	path := configString(cfg, "path")
	if path == "" {
		return nil, connector.Fatalf("file: path is required")
	}
	format, err := resolveFormat(cfg, path)
	if err != nil {
		return nil, err
	}

	rows, err := ReadRef(in.Ref)
	if err != nil {
		return nil, err
	}

	var data []byte
	switch format {
	case "json":
		data, err = json.MarshalIndent(rows, "", "  ")
		if err != nil {
			return nil, connector.Fatalf("file: encode rows: %w", err)
		}
	case "csv":
		data, err = encodeCSV(rows, in.Schema)
		if err != nil {
			return nil, err
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, connector.Retryable(fmt.Errorf("%w: %v", connector.ErrWrite, err))
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, connector.Retryable(fmt.Errorf("%w: %v", connector.ErrWrite, err))
	}

	return &domain.LoadResult{
		Target:      "file:" + path,
		RowsWritten: int64(len(rows)),
	}, nil
}

// resolveFormat определяет формат файла из конфига или расширения.
func resolveFormat(cfg connector.Config, path string) (string, error) {
	format := strings.ToLower(configString(cfg, "format"))
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	}
	switch format {
	case "json", "csv":
		return format, nil
	default:
		return "", connector.Fatalf("file: unsupported format %q", format)
	}
}

// parseCSV превращает CSV в строки; первая запись — заголовок.
// Значения, похожие на числа и булевы, типизируются.
func parseCSV(data []byte) ([]Row, error) {
	reader := csv.NewReader(strings.NewReader(string(data)))
	records, err := reader.ReadAll()
	if err != nil {
		return nil, connector.Fatal(fmt.Errorf("%w: parse csv: %v", connector.ErrSchema, err))
	}
	if len(records) == 0 {
		return nil, nil
	}

	header := records[0]
	rows := make([]Row, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make(Row, len(header))
		for i, name := range header {
			if i < len(record) {
				row[name] = typedValue(record[i])
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// typedValue превращает CSV-строку в число/булево, где это возможно.
func typedValue(s string) any {
	if s == "" {
		return nil
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return n
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}

// encodeCSV сериализует строки в CSV. Порядок колонок берётся из схемы
// Dataset, а при её отсутствии — отсортированное объединение ключей.
func encodeCSV(rows []Row, schema []domain.Column) ([]byte, error) {
	var header []string
	if len(schema) > 0 {
		header = make([]string, len(schema))
		for i, col := range schema {
			header[i] = col.Name
		}
	} else {
		seen := make(map[string]bool)
		for _, row := range rows {
			for name := range row {
				if !seen[name] {
					seen[name] = true
					header = append(header, name)
				}
			}
		}
		sort.Strings(header)
	}

	var sb strings.Builder
	writer := csv.NewWriter(&sb)
	if err := writer.Write(header); err != nil {
		return nil, connector.Fatalf("file: write csv header: %w", err)
	}
	record := make([]string, len(header))
	for _, row := range rows {
		for i, name := range header {
			record[i] = cellString(row[name])
		}
		if err := writer.Write(record); err != nil {
			return nil, connector.Fatalf("file: write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, connector.Fatalf("file: flush csv: %w", err)
	}
	return []byte(sb.String()), nil
}

// cellString сериализует значение ячейки для CSV.
func cellString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		data, _ := json.Marshal(val)
		return string(data)
	}
}
