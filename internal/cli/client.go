package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// RunResponse — run из API.
type RunResponse struct {
	ID          string `json:"id"`
	Pipeline    string `json:"pipeline"`
	Status      string `json:"status"`
	StartedAt   string `json:"started_at,omitempty"`
	FinishedAt  string `json:"finished_at,omitempty"`
	Error       string `json:"error,omitempty"`
	CreatedAt   string `json:"created_at"`
	Fingerprint string `json:"fingerprint"`
}

// TaskRecordResponse — record задачи из API.
type TaskRecordResponse struct {
	TaskID     string `json:"task_id"`
	Status     string `json:"status"`
	Attempt    int    `json:"attempt"`
	Error      string `json:"error,omitempty"`
	StartedAt  string `json:"started_at,omitempty"`
	FinishedAt string `json:"finished_at,omitempty"`
	DatasetRef string `json:"dataset_ref,omitempty"`
}

// SnapshotResponse — снимок run из API.
type SnapshotResponse struct {
	Run     RunResponse          `json:"run"`
	Records []TaskRecordResponse `json:"records"`
	Counts  map[string]int       `json:"counts"`
}

// SubmitRunResponse — ответ на submit/resume.
type SubmitRunResponse struct {
	RunID string `json:"run_id"`
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для Conveyor API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SubmitRun отправляет PipelineSpec на выполнение.
// spec — сырой JSON файла пайплайна.
func (c *Client) SubmitRun(spec json.RawMessage) (*SubmitRunResponse, error) {
	body := map[string]json.RawMessage{"pipeline": spec}
	var resp SubmitRunResponse
	err := c.post("/api/v1/runs", body, &resp)
	return &resp, err
}

// GetRun возвращает снимок run по ID.
func (c *Client) GetRun(id string) (*SnapshotResponse, error) {
	var snap SnapshotResponse
	err := c.get("/api/v1/runs/"+id, &snap)
	return &snap, err
}

// ListTasks возвращает record'ы задач run.
func (c *Client) ListTasks(runID string) ([]TaskRecordResponse, error) {
	var records []TaskRecordResponse
	err := c.list("/api/v1/runs/"+runID+"/tasks", &records)
	return records, err
}

// AbortRun запрашивает прерывание run.
func (c *Client) AbortRun(id string) (*RunResponse, error) {
	var run RunResponse
	err := c.post("/api/v1/runs/"+id+"/abort", nil, &run)
	return &run, err
}

// ResumeRun возобновляет run. spec необязателен (nil — сохранённый).
func (c *Client) ResumeRun(id string, spec json.RawMessage) (*SubmitRunResponse, error) {
	var body any
	if spec != nil {
		body = map[string]json.RawMessage{"pipeline": spec}
	}
	var resp SubmitRunResponse
	err := c.post("/api/v1/runs/"+id+"/resume", body, &resp)
	return &resp, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) list(path string, result any) error {
	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
