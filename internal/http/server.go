// Package http exposes the dashboard, status and import operations as a JSON
// API. Responses for a period are cached briefly and dropped whenever a
// write lands through the API or the refresh worker.
package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"fintrack/internal/cache"
	"fintrack/internal/config"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/period"
	"fintrack/internal/services"
)

const (
	readHeaderTimeout = 5 * time.Second
	requestTimeout    = 30 * time.Second

	dashboardCacheSize = 128

	rateLimitPerMinute = 60
	rateLimitWindow    = time.Minute
	rateLimitCleanup   = 5 * time.Minute
)

// Server serves the fintrack API for a single workspace.
type Server struct {
	httpServer *http.Server
	logger     *log.Logger

	dashboards *services.DashboardService
	imports    *services.ImportService

	interval   period.Interval
	customDays int

	dashboardCache *cache.LRU[core.DashboardData]
	limiter        *rateLimiter

	readyCheck func(context.Context) error

	stopCleanup  chan struct{}
	shutdownOnce sync.Once
}

// NewServer wires the services into an http.Server. readyCheck probes the
// storage backend for the readiness endpoint; nil means always ready.
func NewServer(cfg *config.Config, dashboards *services.DashboardService,
	imports *services.ImportService, logger *log.Logger,
	readyCheck func(context.Context) error) *Server {

	s := &Server{
		logger:         logger,
		dashboards:     dashboards,
		imports:        imports,
		interval:       cfg.ParsedInterval(),
		customDays:     cfg.CustomIntervalDays,
		dashboardCache: cache.NewLRU[core.DashboardData](dashboardCacheSize, cfg.ResponseCacheTTL),
		limiter:        newRateLimiter(rateLimitPerMinute, rateLimitWindow),
		readyCheck:     readyCheck,
		stopCleanup:    make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /api/dashboard", s.handleDashboard)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/periods", s.handlePeriods)
	mux.HandleFunc("GET /api/projection", s.handleProjection)
	mux.HandleFunc("GET /api/imports", s.handleImportHistory)
	mux.HandleFunc("POST /api/imports/reset", s.handleResetImport)
	mux.HandleFunc("POST /api/plans", s.handleSavePlan)

	handler := log.Middleware(logger)(s.withObservability(mux))
	s.httpServer = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           http.TimeoutHandler(handler, requestTimeout, "request timed out"),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go s.cleanupLoop()
	return s
}

// Handler exposes the full middleware stack for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start blocks serving requests until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	s.logger.Info("API server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops background maintenance. Safe
// to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		close(s.stopCleanup)
		err = s.httpServer.Shutdown(ctx)
	})
	return err
}

// InvalidateViews drops every cached response. Called after any write that
// changes what the read endpoints would return.
func (s *Server) InvalidateViews() {
	s.dashboardCache.Clear()
	s.dashboards.InvalidatePlans()
}

func (s *Server) cleanupLoop() {
	ticker := time.NewTicker(rateLimitCleanup)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.dashboardCache.CleanExpired()
			s.limiter.cleanup()
		case <-s.stopCleanup:
			return
		}
	}
}

// withObservability tags the request with an ID, rate limits writes, sets
// security headers and logs one line per completed request.
func (s *Server) withObservability(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := newRequestID()
		clientIP := clientIP(r)

		logger := log.FromContext(r.Context()).With(
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"client_ip", clientIP)
		ctx := log.IntoContext(r.Context(), logger)

		w.Header().Set("X-Request-ID", requestID)
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		if r.Method == http.MethodPost && !s.limiter.allow(clientIP) {
			logger.Warn("Rate limit exceeded")
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r.WithContext(ctx))

		logger.Info("Request completed",
			"status", rw.status,
			"duration_ms", time.Since(start).Milliseconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func newRequestID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "unknown"
	}
	return hex.EncodeToString(b)
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// rateLimiter tracks request timestamps per client in a sliding window.
type rateLimiter struct {
	mu       sync.Mutex
	limit    int
	window   time.Duration
	requests map[string][]time.Time
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		limit:    limit,
		window:   window,
		requests: make(map[string][]time.Time),
	}
}

func (rl *rateLimiter) allow(client string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-rl.window)
	recent := rl.requests[client][:0]
	for _, ts := range rl.requests[client] {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}
	if len(recent) >= rl.limit {
		rl.requests[client] = recent
		return false
	}
	rl.requests[client] = append(recent, time.Now())
	return true
}

func (rl *rateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-rl.window)
	for client, stamps := range rl.requests {
		var recent []time.Time
		for _, ts := range stamps {
			if ts.After(cutoff) {
				recent = append(recent, ts)
			}
		}
		if len(recent) == 0 {
			delete(rl.requests, client)
		} else {
			rl.requests[client] = recent
		}
	}
}
