// Package server provides the HTTP status/control surface (§6: /healthz,
// /api/system/status, /api/system/control).
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/swarmtrader/internal/bus"
	"github.com/aristath/swarmtrader/internal/database"
	"github.com/aristath/swarmtrader/internal/domain"
	"github.com/aristath/swarmtrader/internal/prospector"
	"github.com/aristath/swarmtrader/internal/registry"
	"github.com/aristath/swarmtrader/internal/risk"
	"github.com/aristath/swarmtrader/internal/scheduler"
)

// Config bundles everything the status surface reads.
type Config struct {
	Port       int
	Log        zerolog.Logger
	Bus        *bus.Bus
	Scheduler  *scheduler.Scheduler
	Registry   *registry.Registry
	Risk       *risk.Manager
	Builder    *prospector.Builder
	PatternsDB *database.DB
	TradesDB   *database.DB
	DevMode    bool
}

// Server is the status/control HTTP surface.
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger

	startupTime time.Time
	bus         *bus.Bus
	sched       *scheduler.Scheduler
	reg         *registry.Registry
	riskMgr     *risk.Manager
	builder     *prospector.Builder
	patternsDB  *database.DB
	tradesDB    *database.DB
}

// New builds the server and registers its routes.
func New(cfg Config) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		log:         cfg.Log.With().Str("component", "server").Logger(),
		startupTime: time.Now(),
		bus:         cfg.Bus,
		sched:       cfg.Scheduler,
		reg:         cfg.Registry,
		riskMgr:     cfg.Risk,
		builder:     cfg.Builder,
		patternsDB:  cfg.PatternsDB,
		tradesDB:    cfg.TradesDB,
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(30 * time.Second))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealthz)

	s.router.Route("/api/system", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Post("/control", s.handleControl)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration_ms", time.Since(start)).
			Msg("http request")
	})
}

// Start serves until the process exits or Shutdown is called.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("starting status server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type healthzResponse struct {
	Status        string `json:"status"`
	BusHealthy    bool   `json:"bus_healthy"`
	Running       bool   `json:"scheduler_running"`
	PatternsDBOK  bool   `json:"patterns_db_ok"`
	TradesDBOK    bool   `json:"trades_db_ok"`
	UptimeHours   float64 `json:"uptime_hours"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	patternsOK := s.patternsDB.HealthCheck(r.Context()) == nil
	tradesOK := s.tradesDB.HealthCheck(r.Context()) == nil

	resp := healthzResponse{
		Status:       "ok",
		BusHealthy:   s.bus.Healthy(),
		Running:      s.sched.Running(),
		PatternsDBOK: patternsOK,
		TradesDBOK:   tradesOK,
		UptimeHours:  time.Since(s.startupTime).Hours(),
	}
	if !resp.BusHealthy || !resp.Running || !patternsOK || !tradesOK {
		resp.Status = "degraded"
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	s.writeJSON(w, resp)
}

type dbStatus struct {
	SizeBytes     int64 `json:"size_bytes"`
	WALSizeBytes  int64 `json:"wal_size_bytes"`
	FreelistCount int64 `json:"freelist_count"`
}

type statusResponse struct {
	StepCounter         uint64   `json:"step_counter"`
	AgentCount          int      `json:"agent_count"`
	ActiveAssets        int      `json:"active_assets"`
	ActivePairs         []string `json:"active_pairs"`
	RiskHalted          bool     `json:"risk_halted"`
	Drawdown            float64  `json:"drawdown"`
	RejectedDeployments int      `json:"rejected_deployments"`
	CPUPercent          float64  `json:"cpu_percent"`
	RAMPercent          float64  `json:"ram_percent"`
	UptimeHours         float64  `json:"uptime_hours"`
	PatternsDB          *dbStatus `json:"patterns_db,omitempty"`
	TradesDB            *dbStatus `json:"trades_db,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	cpuPct, ramPct := s.systemStats()

	resp := statusResponse{
		StepCounter:         s.sched.StepCounter(),
		AgentCount:          s.sched.AgentCount(),
		ActiveAssets:        s.reg.Count(),
		ActivePairs:         s.reg.Pairs(),
		RiskHalted:          s.riskMgr.IsHalted(),
		Drawdown:            s.riskMgr.Drawdown(),
		RejectedDeployments: s.builder.RejectedDeployments(),
		CPUPercent:          cpuPct,
		RAMPercent:          ramPct,
		UptimeHours:         time.Since(s.startupTime).Hours(),
		PatternsDB:          s.dbStatus(s.patternsDB),
		TradesDB:            s.dbStatus(s.tradesDB),
	}
	s.writeJSON(w, resp)
}

func (s *Server) dbStatus(db *database.DB) *dbStatus {
	stats, err := db.GetStats()
	if err != nil {
		s.log.Warn().Err(err).Str("db", db.Name()).Msg("failed to collect database stats")
		return nil
	}
	return &dbStatus{
		SizeBytes:     stats.SizeBytes,
		WALSizeBytes:  stats.WALSizeBytes,
		FreelistCount: stats.FreelistCount,
	}
}

func (s *Server) systemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil || len(cpuPercent) == 0 {
		cpuPercent = []float64{0}
	}
	memStat, err := mem.VirtualMemory()
	ram := 0.0
	if err == nil {
		ram = memStat.UsedPercent
	}
	return cpuPercent[0], ram
}

type controlRequest struct {
	Command domain.SystemControlCommand `json:"command"`
	Reason  string                       `json:"reason,omitempty"`
}

// handleControl lets an operator publish a system-control message (e.g. a
// manual EMERGENCY_SHUTDOWN) without going through an agent.
func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	var req controlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	switch req.Command {
	case domain.CommandHaltTrading, domain.CommandEmergencyShutdown, domain.CommandForceShare:
	default:
		http.Error(w, "unknown command", http.StatusBadRequest)
		return
	}

	s.bus.Publish(domain.TopicSystemControl, domain.SystemControl{
		Command: req.Command,
		Reason:  req.Reason,
		Source:  "api",
	})
	s.writeJSON(w, map[string]string{"status": "accepted"})
}

func (s *Server) writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("failed to encode json response")
	}
}
