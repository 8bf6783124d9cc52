package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"time"

	"miyako-bot/config"
	"miyako-bot/internal/command"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RouterStats reports interaction counters
type RouterStats interface {
	Stats() command.Stats
}

// PanelStats reports live panel refresh timers
type PanelStats interface {
	ActiveRefreshes() int
}

// SinkStats reports log channel delivery counters
type SinkStats interface {
	Stats() (sent, dropped int64)
}

// VoiceStats reports connected voice sessions
type VoiceStats interface {
	Sessions() int
}

// Sources are the runtime components the server reports on. Nil sources
// are reported as zero.
type Sources struct {
	Router RouterStats
	Panels map[string]PanelStats // panel kind -> manager
	Sink   SinkStats
	Voice  VoiceStats
}

// Server represents the health check server
type Server struct {
	config    *config.Config
	db        *gorm.DB
	logger    *zap.Logger
	sources   Sources
	server    *http.Server
	startTime time.Time
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status      string            `json:"status"`
	Timestamp   time.Time         `json:"timestamp"`
	Uptime      string            `json:"uptime"`
	Services    map[string]string `json:"services"`
	Metrics     HealthMetrics     `json:"metrics"`
	Environment map[string]string `json:"environment"`
}

// HealthMetrics represents runtime and bot metrics
type HealthMetrics struct {
	GoRoutines      int            `json:"goroutines"`
	MemoryMB        int            `json:"memory_mb"`
	Interactions    int64          `json:"interactions"`
	Failures        int64          `json:"failures"`
	Dropped         int64          `json:"dropped"`
	PanelRefreshes  map[string]int `json:"panel_refreshes"`
	VoiceSessions   int            `json:"voice_sessions"`
	LogLinesSent    int64          `json:"log_lines_sent"`
	LogLinesDropped int64          `json:"log_lines_dropped"`
}

// NewServer creates a new health check server
func NewServer(config *config.Config, db *gorm.DB, logger *zap.Logger, sources Sources) *Server {
	return &Server{
		config:    config,
		db:        db,
		logger:    logger,
		sources:   sources,
		startTime: time.Now(),
	}
}

// Routes builds the HTTP handler
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)

	r.Get(s.config.Health.Path, s.healthHandler)
	r.Get("/ready", s.readinessHandler)
	r.Get("/metrics", s.metricsHandler)
	return r
}

// Start starts the health check server
func (s *Server) Start(ctx context.Context) error {
	if !s.config.Health.Enabled {
		s.logger.Info("Health check server disabled")
		return nil
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Health.Port),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.logger.Info("Starting health check server",
		zap.Int("port", s.config.Health.Port),
		zap.String("path", s.config.Health.Path),
	)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Health server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		s.logger.Info("Shutting down health server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Health server shutdown error", zap.Error(err))
		}
	}()

	return nil
}

func (s *Server) pingDatabase() error {
	if s.db == nil {
		return fmt.Errorf("database not configured")
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

func (s *Server) metrics() HealthMetrics {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	out := HealthMetrics{
		GoRoutines:     runtime.NumGoroutine(),
		MemoryMB:       int(m.Alloc / 1024 / 1024),
		PanelRefreshes: make(map[string]int),
	}
	if s.sources.Router != nil {
		st := s.sources.Router.Stats()
		out.Interactions, out.Failures, out.Dropped = st.Handled, st.Failed, st.Dropped
	}
	for kind, p := range s.sources.Panels {
		out.PanelRefreshes[kind] = p.ActiveRefreshes()
	}
	if s.sources.Sink != nil {
		out.LogLinesSent, out.LogLinesDropped = s.sources.Sink.Stats()
	}
	if s.sources.Voice != nil {
		out.VoiceSessions = s.sources.Voice.Sessions()
	}
	return out
}

// healthHandler handles the main health check endpoint
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	status := "healthy"
	statusCode := http.StatusOK
	services := make(map[string]string)

	if err := s.pingDatabase(); err != nil {
		services["database"] = "error: " + err.Error()
		status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	} else {
		services["database"] = "healthy"
	}

	degrade := func(service, state string) {
		services[service] = state
		if status == "healthy" {
			status = "degraded"
		}
		if statusCode == http.StatusOK {
			statusCode = http.StatusPartialContent
		}
	}

	if s.config.Discord.Token == "" {
		degrade("discord", "not configured")
	} else {
		services["discord"] = "configured"
	}

	if s.config.AI.APIKey == "" {
		degrade("ai", "not configured")
	} else {
		services["ai"] = "configured"
	}

	if s.config.Logger.ChannelID == "" {
		services["log_channel"] = "disabled"
	} else {
		services["log_channel"] = "configured"
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Uptime:    time.Since(s.startTime).String(),
		Services:  services,
		Metrics:   s.metrics(),
		Environment: map[string]string{
			"go_version": runtime.Version(),
			"os":         runtime.GOOS,
			"arch":       runtime.GOARCH,
		},
	}

	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(response)
}

// metricsHandler provides Prometheus-style metrics
func (s *Server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")

	m := s.metrics()
	var b strings.Builder

	write := func(name, help, kind string, value any) {
		fmt.Fprintf(&b, "# HELP miyako_%s %s\n# TYPE miyako_%s %s\nmiyako_%s %v\n\n", name, help, name, kind, name, value)
	}

	write("uptime_seconds", "Total uptime in seconds", "counter", fmt.Sprintf("%f", time.Since(s.startTime).Seconds()))
	write("goroutines", "Number of goroutines", "gauge", m.GoRoutines)
	write("interactions_total", "Interactions dispatched to a handler", "counter", m.Interactions)
	write("interaction_failures_total", "Handlers that returned an error", "counter", m.Failures)
	write("interactions_dropped_total", "Interactions without a registered handler", "counter", m.Dropped)
	write("voice_sessions", "Connected voice sessions", "gauge", m.VoiceSessions)
	write("log_lines_sent_total", "Lines delivered to the log channel", "counter", m.LogLinesSent)
	write("log_lines_dropped_total", "Lines dropped by the log channel queue", "counter", m.LogLinesDropped)

	b.WriteString("# HELP miyako_panel_refreshes Active panel refresh timers\n# TYPE miyako_panel_refreshes gauge\n")
	for kind, n := range m.PanelRefreshes {
		fmt.Fprintf(&b, "miyako_panel_refreshes{kind=%q} %d\n", kind, n)
	}

	w.Write([]byte(b.String()))
}

// readinessHandler checks if the service is ready to serve traffic
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	checks := map[string]bool{
		"database":      s.pingDatabase() == nil,
		"configuration": s.config.Discord.Token != "",
	}
	ready := checks["database"] && checks["configuration"]

	response := map[string]interface{}{
		"ready":     ready,
		"checks":    checks,
		"timestamp": time.Now(),
	}

	if ready {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	json.NewEncoder(w).Encode(response)
}
