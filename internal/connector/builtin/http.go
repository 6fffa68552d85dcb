package builtin

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ravskel/conveyor/internal/connector"
	"github.com/ravskel/conveyor/internal/domain"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	maxResponseBody    = 10 * 1024 * 1024 // 10 MB
	maxPages           = 1000
)

// HTTPExtractor выкачивает JSON-строки из REST API.
//
// Конфигурация:
//
//	{
//	    "url": "https://api.example.com/orders",
//	    "method": "GET",
//	    "headers": {"Authorization": "Bearer ..."},
//	    "data_key": "items",
//	    "cursor_key": "next_cursor",
//	    "validate_ssl": true,
//	    "timeout_sec": 30
//	}
//
// Ответ — JSON-массив объектов либо объект, где массив лежит под
// data_key (по умолчанию пробуются "data", "items", "results").
// Если задан cursor_key, извлечение идёт постранично: значение курсора
// из ответа подставляется в query-параметр "cursor" следующего запроса.
type HTTPExtractor struct {
	staging *Staging
	client  *http.Client
}

// NewHTTPExtractor создаёт HTTP extractor поверх staging.
func NewHTTPExtractor(staging *Staging) *HTTPExtractor {
	return &HTTPExtractor{
		staging: staging,
		client:  &http.Client{Timeout: defaultHTTPTimeout},
	}
}

// Extract выполняет запрос(ы) и материализует строки в staging.
func (e *HTTPExtractor) Extract(ctx context.Context, cfg connector.Config) (*domain.Dataset, error) {
	rawURL := configString(cfg, "url")
	if rawURL == "" {
		return nil, connector.Fatalf("http: url is required")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, connector.Fatalf("http: invalid url %q: %w", rawURL, err)
	}

	method := strings.ToUpper(configString(cfg, "method"))
	if method == "" {
		method = http.MethodGet
	}
	headers := configStringMap(cfg, "headers")
	dataKey := configString(cfg, "data_key")
	cursorKey := configString(cfg, "cursor_key")

	client := e.buildClient(cfg)

	var rows []Row
	cursor := ""
	for page := 0; page < maxPages; page++ {
		pageRows, nextCursor, err := e.fetchPage(ctx, client, method, parsed, headers, dataKey, cursorKey, cursor)
		if err != nil {
			return nil, err
		}
		rows = append(rows, pageRows...)

		if cursorKey == "" || nextCursor == "" {
			break
		}
		cursor = nextCursor
	}

	ref, err := e.staging.Write(rows)
	if err != nil {
		return nil, err
	}

	return &domain.Dataset{
		Ref:    ref,
		Source: "api:" + parsed.Host,
		Rows:   int64(len(rows)),
		Schema: InferSchema(rows),
	}, nil
}

// buildClient настраивает клиент под конфигурацию задачи.
func (e *HTTPExtractor) buildClient(cfg connector.Config) *http.Client {
	timeout := defaultHTTPTimeout
	if sec := configInt(cfg, "timeout_sec"); sec > 0 {
		timeout = time.Duration(sec) * time.Second
	}
	validateSSL := configBool(cfg, "validate_ssl", true)

	if timeout == e.client.Timeout && validateSSL {
		return e.client
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: !validateSSL},
		},
	}
}

// fetchPage выполняет один запрос и возвращает строки страницы
// плюс курсор следующей (если cursorKey задан и присутствует в ответе).
func (e *HTTPExtractor) fetchPage(ctx context.Context, client *http.Client, method string, base *url.URL, headers map[string]string, dataKey, cursorKey, cursor string) ([]Row, string, error) {
	reqURL := *base
	if cursor != "" {
		q := reqURL.Query()
		q.Set("cursor", cursor)
		reqURL.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), nil)
	if err != nil {
		return nil, "", connector.Fatalf("http: build request: %w", err)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		return nil, "", connector.Retryable(fmt.Errorf("%w: %v", connector.ErrConnection, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, "", connector.Retryablef("http: read response: %w", err)
	}

	if err := classifyStatus(resp.StatusCode); err != nil {
		return nil, "", err
	}

	return parsePayload(body, dataKey, cursorKey)
}

// classifyStatus переводит HTTP-статус в классифицированную ошибку.
// 5xx и 429 имеет смысл повторять, остальные 4xx — нет.
func classifyStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return connector.Fatal(fmt.Errorf("%w: HTTP %d", connector.ErrAuth, status))
	case status == http.StatusNotFound:
		return connector.Fatal(fmt.Errorf("%w: HTTP %d", connector.ErrNotFound, status))
	case status == http.StatusTooManyRequests || status >= 500:
		return connector.Retryablef("HTTP %d", status)
	default:
		return connector.Fatalf("HTTP %d", status)
	}
}

// Ключи, под которыми API обычно прячут список строк.
var defaultDataKeys = []string{"data", "items", "results"}

// parsePayload извлекает строки из JSON-ответа.
func parsePayload(body []byte, dataKey, cursorKey string) ([]Row, string, error) {
	var asList []Row
	if err := json.Unmarshal(body, &asList); err == nil {
		return asList, "", nil
	}

	var asObject map[string]json.RawMessage
	if err := json.Unmarshal(body, &asObject); err != nil {
		return nil, "", connector.Fatal(fmt.Errorf("%w: response is neither array nor object", connector.ErrSchema))
	}

	keys := defaultDataKeys
	if dataKey != "" {
		keys = []string{dataKey}
	}

	var rows []Row
	found := false
	for _, key := range keys {
		raw, ok := asObject[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, &rows); err != nil {
			return nil, "", connector.Fatal(fmt.Errorf("%w: %q is not an array of objects", connector.ErrSchema, key))
		}
		found = true
		break
	}
	if !found {
		return nil, "", connector.Fatal(fmt.Errorf("%w: no data key in response", connector.ErrSchema))
	}

	cursor := ""
	if cursorKey != "" {
		if raw, ok := asObject[cursorKey]; ok {
			_ = json.Unmarshal(raw, &cursor)
		}
	}
	return rows, cursor, nil
}
