package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"miyako-bot/config"
	"miyako-bot/internal/command"

	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type stubRouter struct{ stats command.Stats }

func (s stubRouter) Stats() command.Stats { return s.stats }

type stubPanels int

func (s stubPanels) ActiveRefreshes() int { return int(s) }

type stubSink struct{ sent, dropped int64 }

func (s stubSink) Stats() (int64, int64) { return s.sent, s.dropped }

type stubVoice int

func (s stubVoice) Sessions() int { return int(s) }

func setupTestServer(t *testing.T) (*Server, *gorm.DB) {
	// Create in-memory database
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	cfg := &config.Config{
		Health: config.HealthConfig{
			Enabled: true,
			Port:    freePort(t),
			Path:    "/health",
		},
		Discord: config.DiscordConfig{
			Token: "test-token",
		},
		AI: config.AIConfig{
			APIKey: "sk-test",
		},
	}

	sources := Sources{
		Router: stubRouter{command.Stats{Handled: 12, Failed: 2, Dropped: 1}},
		Panels: map[string]PanelStats{"music": stubPanels(3), "consult": stubPanels(0)},
		Sink:   stubSink{sent: 40, dropped: 5},
		Voice:  stubVoice(2),
	}

	logger := zaptest.NewLogger(t)
	server := NewServer(cfg, db, logger, sources)

	return server, db
}

func freePort(t *testing.T) int {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to find a free port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestHealthHandler(t *testing.T) {
	server, _ := setupTestServer(t)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	server.Routes().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var response HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}

	if response.Status != "healthy" {
		t.Errorf("Expected status 'healthy', got '%s'", response.Status)
	}

	if response.Services["database"] != "healthy" {
		t.Errorf("Expected database service to be healthy, got '%s'", response.Services["database"])
	}

	if response.Services["discord"] != "configured" {
		t.Errorf("Expected discord service to be configured, got '%s'", response.Services["discord"])
	}

	if response.Metrics.Interactions != 12 || response.Metrics.Failures != 2 {
		t.Errorf("Expected router stats 12/2, got %d/%d", response.Metrics.Interactions, response.Metrics.Failures)
	}

	if response.Metrics.PanelRefreshes["music"] != 3 {
		t.Errorf("Expected 3 music panel refreshes, got %d", response.Metrics.PanelRefreshes["music"])
	}

	if response.Metrics.VoiceSessions != 2 {
		t.Errorf("Expected 2 voice sessions, got %d", response.Metrics.VoiceSessions)
	}
}

func TestHealthHandlerDegraded(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		service string
	}{
		{"no discord token", func(c *config.Config) { c.Discord.Token = "" }, "discord"},
		{"no ai key", func(c *config.Config) { c.AI.APIKey = "" }, "ai"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := setupTestServer(t)
			tt.mutate(server.config)

			w := httptest.NewRecorder()
			server.healthHandler(w, httptest.NewRequest("GET", "/health", nil))

			if w.Code != http.StatusPartialContent {
				t.Errorf("Expected status %d, got %d", http.StatusPartialContent, w.Code)
			}

			var response HealthResponse
			if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
				t.Fatalf("Failed to unmarshal response: %v", err)
			}

			if response.Status != "degraded" {
				t.Errorf("Expected status 'degraded', got '%s'", response.Status)
			}

			if response.Services[tt.service] != "not configured" {
				t.Errorf("Expected %s to be 'not configured', got '%s'", tt.service, response.Services[tt.service])
			}
		})
	}
}

func TestHealthHandlerDatabaseDown(t *testing.T) {
	server, db := setupTestServer(t)

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get sql db: %v", err)
	}
	sqlDB.Close()

	w := httptest.NewRecorder()
	server.healthHandler(w, httptest.NewRequest("GET", "/health", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
	}
	if !strings.Contains(w.Body.String(), `"status":"unhealthy"`) {
		t.Errorf("Expected unhealthy status, got %s", w.Body.String())
	}
}

func TestMetricsHandler(t *testing.T) {
	server, _ := setupTestServer(t)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	server.Routes().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	body := w.Body.String()
	expected := []string{
		"miyako_uptime_seconds",
		"miyako_goroutines",
		"miyako_interactions_total 12",
		"miyako_interaction_failures_total 2",
		"miyako_interactions_dropped_total 1",
		"miyako_voice_sessions 2",
		"miyako_log_lines_dropped_total 5",
		`miyako_panel_refreshes{kind="music"} 3`,
	}

	for _, metric := range expected {
		if !strings.Contains(body, metric) {
			t.Errorf("Expected metric %q not found in response", metric)
		}
	}
}

func TestMetricsWithoutSources(t *testing.T) {
	server, _ := setupTestServer(t)
	server.sources = Sources{}

	w := httptest.NewRecorder()
	server.metricsHandler(w, httptest.NewRequest("GET", "/metrics", nil))

	if !strings.Contains(w.Body.String(), "miyako_interactions_total 0") {
		t.Errorf("Expected zero interactions, got %s", w.Body.String())
	}
}

func TestReadinessHandler(t *testing.T) {
	server, _ := setupTestServer(t)

	req := httptest.NewRequest("GET", "/ready", nil)
	w := httptest.NewRecorder()

	server.Routes().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var response map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}

	if ready, ok := response["ready"].(bool); !ok || !ready {
		t.Error("Expected service to be ready")
	}
}

func TestReadinessHandlerNotReady(t *testing.T) {
	server, _ := setupTestServer(t)
	server.config.Discord.Token = ""

	w := httptest.NewRecorder()
	server.readinessHandler(w, httptest.NewRequest("GET", "/ready", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
	}

	var response map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}

	checks := response["checks"].(map[string]interface{})
	if checks["configuration"] != false {
		t.Error("Expected configuration check to fail")
	}
	if checks["database"] != true {
		t.Error("Expected database check to pass")
	}
}

func TestUnknownRoute(t *testing.T) {
	server, _ := setupTestServer(t)

	w := httptest.NewRecorder()
	server.Routes().ServeHTTP(w, httptest.NewRequest("GET", "/nope", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}
}

func TestServerStartAndStop(t *testing.T) {
	server, _ := setupTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := server.Start(ctx); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}

	url := fmt.Sprintf("http://127.0.0.1:%d/health", server.config.Health.Port)

	var resp *http.Response
	var err error
	for i := 0; i < 20; i++ {
		resp, err = http.Get(url)
		if err == nil {
			break
		}
		time.Sleep(25 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("Failed to make health request: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}

	cancel()
	time.Sleep(100 * time.Millisecond)
}

func TestServerDisabled(t *testing.T) {
	server, _ := setupTestServer(t)
	server.config.Health.Enabled = false

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := server.Start(ctx); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}

	// Server should not be listening since it's disabled
	_, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/health", server.config.Health.Port))
	if err == nil {
		t.Error("Expected connection error since server should be disabled")
	}
}
