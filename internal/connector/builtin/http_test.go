package builtin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ravskel/conveyor/internal/connector"
)

func TestHTTPExtract_ArrayResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"id": 1}, {"id": 2}]`)
	}))
	defer server.Close()

	e := NewHTTPExtractor(newStaging(t))
	ds, err := e.Extract(context.Background(), connector.Config{"url": server.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ds.Rows != 2 {
		t.Errorf("rows = %d, want 2", ds.Rows)
	}

	rows, err := ReadRef(ds.Ref)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rows[0]["id"] != float64(1) {
		t.Errorf("first row = %v", rows[0])
	}
}

func TestHTTPExtract_ObjectWithDataKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"total": 1, "payload": [{"id": 7}]}`)
	}))
	defer server.Close()

	e := NewHTTPExtractor(newStaging(t))
	ds, err := e.Extract(context.Background(), connector.Config{
		"url":      server.URL,
		"data_key": "payload",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ds.Rows != 1 {
		t.Errorf("rows = %d, want 1", ds.Rows)
	}
}

func TestHTTPExtract_DefaultDataKeys(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"items": [{"id": 1}], "meta": {}}`)
	}))
	defer server.Close()

	e := NewHTTPExtractor(newStaging(t))
	ds, err := e.Extract(context.Background(), connector.Config{"url": server.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ds.Rows != 1 {
		t.Errorf("rows = %d, want 1 via default data key", ds.Rows)
	}
}

func TestHTTPExtract_CursorPagination(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("cursor") {
		case "":
			fmt.Fprint(w, `{"data": [{"id": 1}], "next": "p2"}`)
		case "p2":
			fmt.Fprint(w, `{"data": [{"id": 2}], "next": ""}`)
		default:
			t.Errorf("unexpected cursor %q", r.URL.Query().Get("cursor"))
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer server.Close()

	e := NewHTTPExtractor(newStaging(t))
	ds, err := e.Extract(context.Background(), connector.Config{
		"url":        server.URL,
		"cursor_key": "next",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ds.Rows != 2 {
		t.Errorf("rows = %d, want 2 across pages", ds.Rows)
	}
}

func TestHTTPExtract_HeadersForwarded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `[]`)
	}))
	defer server.Close()

	e := NewHTTPExtractor(newStaging(t))
	_, err := e.Extract(context.Background(), connector.Config{
		"url":     server.URL,
		"headers": map[string]any{"Authorization": "Bearer token"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestHTTPExtract_ServerErrorIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	e := NewHTTPExtractor(newStaging(t))
	_, err := e.Extract(context.Background(), connector.Config{"url": server.URL})
	if err == nil {
		t.Fatal("expected error")
	}
	if !connector.IsRetryable(err) {
		t.Errorf("HTTP 503 must be retryable: %v", err)
	}
}

func TestHTTPExtract_AuthErrorIsFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	e := NewHTTPExtractor(newStaging(t))
	_, err := e.Extract(context.Background(), connector.Config{"url": server.URL})
	if !errors.Is(err, connector.ErrAuth) {
		t.Errorf("expected ErrAuth, got %v", err)
	}
	if connector.IsRetryable(err) {
		t.Error("HTTP 403 must not be retryable")
	}
}

func TestHTTPExtract_URLRequired(t *testing.T) {
	e := NewHTTPExtractor(newStaging(t))

	if _, err := e.Extract(context.Background(), connector.Config{}); err == nil {
		t.Error("expected error without url")
	}
}

func TestClassifyStatus(t *testing.T) {
	cases := []struct {
		status    int
		wantErr   bool
		retryable bool
	}{
		{200, false, false},
		{204, false, false},
		{401, true, false},
		{404, true, false},
		{409, true, false},
		{429, true, true},
		{500, true, true},
		{503, true, true},
	}

	for _, c := range cases {
		err := classifyStatus(c.status)
		if c.wantErr != (err != nil) {
			t.Errorf("status %d: err = %v, wantErr %v", c.status, err, c.wantErr)
			continue
		}
		if err != nil && connector.IsRetryable(err) != c.retryable {
			t.Errorf("status %d: retryable = %v, want %v", c.status, connector.IsRetryable(err), c.retryable)
		}
	}
}

func TestParsePayload_MalformedResponse(t *testing.T) {
	_, _, err := parsePayload([]byte(`"just a string"`), "", "")
	if !errors.Is(err, connector.ErrSchema) {
		t.Errorf("expected ErrSchema, got %v", err)
	}

	_, _, err = parsePayload([]byte(`{"other": 1}`), "", "")
	if !errors.Is(err, connector.ErrSchema) {
		t.Errorf("expected ErrSchema for missing data key, got %v", err)
	}
}

func TestParsePayload_Cursor(t *testing.T) {
	body, _ := json.Marshal(map[string]any{
		"data": []map[string]any{{"id": 1}},
		"next": "abc",
	})

	rows, cursor, err := parsePayload(body, "", "next")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 || cursor != "abc" {
		t.Errorf("rows = %v, cursor = %q", rows, cursor)
	}
}
