package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mshogin/reasonguard/internal/application/services"
	"github.com/mshogin/reasonguard/internal/domain/models"
	domainServices "github.com/mshogin/reasonguard/internal/domain/services"
	"github.com/mshogin/reasonguard/internal/domain/services/robustness"
	"github.com/mshogin/reasonguard/internal/infrastructure/config"
	"github.com/mshogin/reasonguard/internal/infrastructure/logging"
	"github.com/mshogin/reasonguard/internal/infrastructure/metrics"
	"github.com/mshogin/reasonguard/internal/infrastructure/storage"
	"github.com/mshogin/reasonguard/internal/testutil/fixtures"
)

// syncBuffer is a bytes.Buffer safe for the server's logging goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type testServer struct {
	*httptest.Server
	store *storage.MemoryStore
	logs  *syncBuffer
}

func newTestServer(t *testing.T, withGenerator bool) *testServer {
	t.Helper()

	cfg := config.Default()
	cfg.Security.CORSEnabled = true
	cfg.Security.CORSOrigins = []string{"http://localhost:3000"}

	logs := &syncBuffer{}
	logger := logging.NewStructuredLogger(logs, logging.InfoLevel)
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	analyzer, err := robustness.NewAnalyzer(cfg.Clustering.ToClustering(), cfg.Gate.Strict)
	require.NoError(t, err)

	var generator *services.Generator
	if withGenerator {
		provider := &fixtures.MockProvider{
			ProviderName: "openai",
			Respond: func(ctx context.Context, req *models.CompletionRequest) (string, error) {
				content := req.Messages[0].Content
				role := strings.TrimPrefix(content, "You are the ")
				role = role[:strings.Index(role, ".")]
				start := strings.Index(content, "Task ID: ") + len("Task ID: ")
				taskID := content[start : start+strings.Index(content[start:], "\n")]
				return fixtures.SummaryJSON(taskID, role, "Use blue-green"), nil
			},
		}
		selector := services.NewProviderSelector(map[string]domainServices.LLMProvider{"openai": provider})
		generator, err = services.NewGenerator(selector, nil, services.GeneratorConfig{Model: "gpt-4o-mini"},
			services.WithGeneratorMetrics(collector))
		require.NoError(t, err)
	}

	store := storage.NewMemoryStore()
	orchestrator := services.NewOrchestrator(store, generator, analyzer,
		services.WithLogger(logger), services.WithMetrics(collector))

	server := httptest.NewServer(NewRouter(NewHandler(orchestrator, cfg, logger), registry))
	t.Cleanup(server.Close)
	return &testServer{Server: server, store: store, logs: logs}
}

func (s *testServer) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func TestHandler_TaskLifecycle(t *testing.T) {
	s := newTestServer(t, true)

	resp, body := s.do(t, http.MethodPost, "/tasks", map[string]any{"prompt": "Migrate the database", "num_agents": 3})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	task := body["task"].(map[string]any)
	taskID := task["task_id"].(string)
	assert.Equal(t, "COMPLETED", task["status"])
	assert.Equal(t, "FRAGILE", task["classification"])
	assert.Equal(t, "BLOCK", task["gate"].(map[string]any)["decision"])
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))

	resp, body = s.do(t, http.MethodGet, "/tasks/"+taskID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "FRAGILE", body["robustness"].(map[string]any)["classification"])

	resp, body = s.do(t, http.MethodGet, "/tasks/"+taskID+"/runs", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["runs"], 3)

	resp, body = s.do(t, http.MethodGet, "/tasks/"+taskID+"/families", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["families"], 1)

	resp, body = s.do(t, http.MethodPost, "/tasks/"+taskID+"/override", map[string]any{"confirmation": "ship it"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	gate := body["gate"].(map[string]any)
	assert.Equal(t, "ALLOW", gate["decision"])
	assert.Equal(t, true, gate["overridden"])

	resp, body = s.do(t, http.MethodPost, "/tasks/"+taskID+"/resume", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "BLOCK", body["task"].(map[string]any)["gate"].(map[string]any)["decision"])

	resp, body = s.do(t, http.MethodGet, "/tasks?limit=5", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["tasks"], 1)

	resp, body = s.do(t, http.MethodGet, "/patterns", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	patterns := body["patterns"].([]any)
	require.Len(t, patterns, 1)
	assert.Equal(t, "Migrate the database", patterns[0].(map[string]any)["prompt"])
}

func TestHandler_ErrorStatuses(t *testing.T) {
	s := newTestServer(t, true)
	pending, err := s.store.CreateTask(context.Background(), "pending")
	require.NoError(t, err)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"blank prompt", http.MethodPost, "/tasks", map[string]any{"prompt": "  "}, http.StatusBadRequest},
		{"too few agents", http.MethodPost, "/tasks", map[string]any{"prompt": "p", "num_agents": 2}, http.StatusBadRequest},
		{"unknown task", http.MethodGet, "/tasks/task_missing", nil, http.StatusNotFound},
		{"unknown runs", http.MethodGet, "/tasks/task_missing/runs", nil, http.StatusNotFound},
		{"bad limit", http.MethodGet, "/tasks?limit=500", nil, http.StatusBadRequest},
		{"blank confirmation", http.MethodPost, "/tasks/" + pending.ID + "/override", map[string]any{"confirmation": ""}, http.StatusBadRequest},
		{"override without gate", http.MethodPost, "/tasks/" + pending.ID + "/override", map[string]any{"confirmation": "go"}, http.StatusConflict},
		{"empty analyze", http.MethodPost, "/analyze", map[string]any{"runs": []any{}}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := s.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.NotEmpty(t, body["error"])
		})
	}

	req, err := http.NewRequest(http.MethodPost, s.URL+"/tasks", strings.NewReader("{not json"))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandler_GenerationDisabled(t *testing.T) {
	s := newTestServer(t, false)

	resp, body := s.do(t, http.MethodPost, "/tasks", map[string]any{"prompt": "p"})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, body["error"], "not configured")

	resp, body = s.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["generation"])
}

func TestHandler_Analyze(t *testing.T) {
	s := newTestServer(t, false)

	resp, body := s.do(t, http.MethodPost, "/analyze", map[string]any{"runs": fixtures.ModerateBatch()})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "MODERATE", body["classification"])
	assert.Len(t, body["families"], 2)
	assert.Equal(t, "WARN", body["gate"].(map[string]any)["decision"])
	assert.NotNil(t, body["diversity"])

	resp, body = s.do(t, http.MethodPost, "/analyze", map[string]any{"runs": fixtures.ModerateBatch(), "strict": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "BLOCK", body["gate"].(map[string]any)["decision"])

	mismatched := []models.AgentOutput{
		fixtures.EmbeddingOutput("run_1", 1, 0),
		fixtures.EmbeddingOutput("run_2", 1, 0, 0),
	}
	resp, body = s.do(t, http.MethodPost, "/analyze", map[string]any{"runs": mismatched})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ERROR", body["classification"])
	assert.Contains(t, body["error"], "different lengths")
}

func TestHandler_Stream(t *testing.T) {
	s := newTestServer(t, true)

	resp, err := http.Post(s.URL+"/tasks?stream=true", "application/json", strings.NewReader(`{"prompt":"stream me"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	stream := string(data)
	assert.Contains(t, stream, "event: task\n")
	assert.Contains(t, stream, "event: report\n")
	assert.True(t, strings.HasSuffix(stream, "event: done\ndata: {\"type\":\"done\",\"data\":{\"status\":\"complete\"}}\n\n"))
}

func TestHandler_MetricsAndLogging(t *testing.T) {
	s := newTestServer(t, false)

	resp, _ := s.do(t, http.MethodPost, "/analyze", map[string]any{"runs": fixtures.FragileBatch()})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err := http.Get(s.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), `reasonguard_analyses_total{classification="FRAGILE"} 1`)
	assert.Contains(t, string(data), `reasonguard_gate_decisions_total{decision="BLOCK"} 1`)

	assert.Contains(t, s.logs.String(), `"message":"http request"`)
	assert.Contains(t, s.logs.String(), `"path":"/analyze"`)
}

func TestCORSMiddleware(t *testing.T) {
	s := newTestServer(t, false)

	req, err := http.NewRequest(http.MethodOptions, s.URL+"/tasks", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))

	req, err = http.NewRequest(http.MethodGet, s.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://evil.example")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{models.ErrInvalidRequest, http.StatusBadRequest},
		{models.ErrConfirmationRequired, http.StatusBadRequest},
		{models.ErrTaskNotFound, http.StatusNotFound},
		{models.ErrNoGateDecision, http.StatusConflict},
		{models.ErrGenerationDisabled, http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
