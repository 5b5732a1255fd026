package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"grimm.is/ruleaudit/internal/analyzer"
	"grimm.is/ruleaudit/internal/audit"
	"grimm.is/ruleaudit/internal/brand"
	"grimm.is/ruleaudit/internal/clock"
	"grimm.is/ruleaudit/internal/config"
	"grimm.is/ruleaudit/internal/health"
	"grimm.is/ruleaudit/internal/i18n"
	"grimm.is/ruleaudit/internal/logging"
	"grimm.is/ruleaudit/internal/metrics"
	"grimm.is/ruleaudit/internal/ratelimit"
	"grimm.is/ruleaudit/internal/recommend"
	"grimm.is/ruleaudit/internal/state"
	"grimm.is/ruleaudit/internal/validation"
)

// ServerConfig holds HTTP server timeouts and limits.
// Mitigation: OWASP A05:2021-Security Misconfiguration
type ServerConfig struct {
	ReadHeaderTimeout time.Duration // Slowloris prevention
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	ShutdownTimeout   time.Duration
}

// DefaultServerConfig returns secure default server configuration.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 16, // 64KB
		ShutdownTimeout:   10 * time.Second,
	}
}

// HistoryStore is the run history the server records to and reads from.
// *state.SQLiteStore implements it.
type HistoryStore interface {
	audit.Recorder
	List(ctx context.Context, limit int) ([]state.Run, error)
	Get(ctx context.Context, id string) (state.Run, error)
}

// ServerOptions holds dependencies for the API server.
type ServerOptions struct {
	Config   *config.Config
	Logger   *logging.Logger
	History  HistoryStore        // Optional: nil disables the history endpoints
	Metrics  *metrics.Registry   // Defaults to metrics.Get()
	Gatherer prometheus.Gatherer // Served on /metrics; defaults to prometheus.DefaultGatherer
	Logs     logBuffer           // Served on /api/v1/logs; defaults to the process log buffer
	Server   *ServerConfig
	Clock    clock.Clock         // Drives rate limiting; defaults to the process clock
}

// Server handles API requests.
type Server struct {
	cfg      *config.Config
	http     *ServerConfig
	auditor  *audit.Auditor
	history  HistoryStore
	metrics  *metrics.Registry
	gatherer prometheus.Gatherer
	logs     logBuffer
	logger   *logging.Logger
	health   *health.Checker
	limiter  *ratelimit.Limiter // nil when api.rate_limit is 0
	proxies  []netip.Prefix     // peers whose forwarding headers are honored
	mux      *http.ServeMux
}

// NewServer creates a new API server with the provided options.
func NewServer(opts ServerOptions) (*Server, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	reg := opts.Metrics
	if reg == nil {
		reg = metrics.Get()
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	var logs logBuffer = logging.GetAppLogBuffer()
	if opts.Logs != nil {
		logs = opts.Logs
	}
	httpCfg := opts.Server
	if httpCfg == nil {
		httpCfg = DefaultServerConfig()
	}

	proxies, err := parseTrustedProxies(cfg.API.TrustedProxies)
	if err != nil {
		return nil, err
	}

	aopts := audit.Options{Config: cfg, Logger: logger, Metrics: reg}
	if opts.History != nil {
		aopts.History = opts.History
	}
	auditor, err := audit.New(aopts)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:      cfg,
		http:     httpCfg,
		auditor:  auditor,
		history:  opts.History,
		metrics:  reg,
		gatherer: gatherer,
		logs:     logs,
		logger:   logger.WithComponent("api"),
		health:   health.NewChecker(brand.Version),
		proxies:  proxies,
		mux:      http.NewServeMux(),
	}
	if p, ok := opts.History.(health.Pinger); ok {
		s.health.Register("history", health.PingCheck(p))
	}
	if cfg.API.RateLimit > 0 {
		s.limiter = ratelimit.NewLimiter(cfg.API.RateLimit, time.Minute, opts.Clock)
	}
	s.initRoutes()
	return s, nil
}

func (s *Server) initRoutes() {
	routes := []struct {
		pattern string
		handler http.HandlerFunc
	}{
		{"POST /api/v1/analyze", s.rateLimited(s.handleAnalyze)},
		{"POST /api/v1/recommend", s.rateLimited(s.handleRecommend)},
		{"POST /api/v1/optimize", s.rateLimited(s.handleOptimize)},
		{"GET /api/v1/history", s.handleHistory},
		{"GET /api/v1/history/{id}", s.handleHistoryRun},
		{"GET /api/v1/logs", s.handleLogs},
		{"GET /healthz", s.health.Handler()},
		{"GET /readyz", s.health.ReadinessHandler()},
	}
	for _, rt := range routes {
		s.mux.Handle(rt.pattern, s.instrument(rt.pattern, rt.handler))
	}
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
}

// Handler returns the HTTP handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.accessLogger(withServerHeader(i18n.Middleware(s.mux)))
}

// Serve accepts connections on ln until ctx is canceled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.http.ReadHeaderTimeout,
		ReadTimeout:       s.http.ReadTimeout,
		WriteTimeout:      s.http.WriteTimeout,
		IdleTimeout:       s.http.IdleTimeout,
		MaxHeaderBytes:    s.http.MaxHeaderBytes,
	}

	if s.limiter != nil {
		s.limiter.StartCleanup(ctx, 10*time.Minute, time.Hour)
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("API server listening", "addr", ln.Addr().String())
		errc <- server.Serve(ln)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("API server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.http.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on addr and serves until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	if addr == "" {
		addr = s.cfg.API.Listen
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

type analyzeResponse struct {
	RunID    string           `json:"run_id"`
	Result   *analyzer.Result `json:"result"`
	Plan     *recommend.Plan  `json:"plan,omitempty"`
	Warnings []string         `json:"warnings,omitempty"`
}

type optimizeResponse struct {
	RunID string `json:"run_id"`
	*audit.Optimization
	Warnings []string `json:"warnings,omitempty"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	run, ok := s.audit(w, r, false)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, analyzeResponse{RunID: run.ID, Result: run.Result, Warnings: run.Warnings()})
}

func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	run, ok := s.audit(w, r, true)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, analyzeResponse{RunID: run.ID, Result: run.Result, Plan: run.Plan, Warnings: run.Warnings()})
}

func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	run, ok := s.audit(w, r, true)
	if !ok {
		return
	}
	opt, err := run.Optimize()
	if err != nil {
		s.logger.Error("optimize failed", "run", run.ID, "error", err)
		WriteErrorCtx(w, r, http.StatusInternalServerError, err.Error(), "optimization failed")
		return
	}
	WriteJSON(w, http.StatusOK, optimizeResponse{RunID: run.ID, Optimization: opt, Warnings: run.Warnings()})
}

// audit reads the request body and runs an audit. When it returns false an
// error response has been written.
//
// The source label comes from ?source=. Invalid rules fail the request with
// 422 in strict mode, set by the config or ?strict=true.
func (s *Server) audit(w http.ResponseWriter, r *http.Request, plan bool) (*audit.Run, bool) {
	strict := s.cfg.Analysis.Strict
	if v := r.URL.Query().Get("strict"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			WriteErrorCtx(w, r, http.StatusBadRequest, v, "invalid strict flag")
			return nil, false
		}
		strict = b
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.API.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteErrorCtx(w, r, http.StatusRequestEntityTooLarge, "", "request body exceeds %d bytes", tooLarge.Limit)
			return nil, false
		}
		WriteErrorCtx(w, r, http.StatusBadRequest, err.Error(), "failed to read request body")
		return nil, false
	}

	source := validation.SanitizeString(r.URL.Query().Get("source"))
	run, err := s.auditor.Audit(r.Context(), source, bytes.NewReader(body), audit.Mode{Plan: plan, Strict: strict})
	switch {
	case run == nil:
		if r.Context().Err() != nil {
			s.logger.Warn("audit canceled", "error", err)
			WriteErrorCtx(w, r, http.StatusServiceUnavailable, err.Error(), "analysis canceled")
			return nil, false
		}
		WriteErrorCtx(w, r, http.StatusBadRequest, err.Error(), "failed to import rules")
		return nil, false
	case err != nil && strict:
		var inv *analyzer.InvalidInputError
		if errors.As(err, &inv) {
			WriteJSON(w, http.StatusUnprocessableEntity, invalidResponse{
				ErrorResponse: ErrorResponse{
					Error:   i18n.GetPrinter(r.Context()).Sprintf("%d rules excluded as invalid", len(inv.Diagnostics)),
					Details: err.Error(),
				},
				Diagnostics: inv.Diagnostics,
			})
			return nil, false
		}
		WriteErrorCtx(w, r, http.StatusUnprocessableEntity, err.Error(), "invalid rules")
		return nil, false
	}
	return run, true
}

// rateLimited rejects requests beyond api.rate_limit per client with 429.
func (s *Server) rateLimited(next http.HandlerFunc) http.HandlerFunc {
	if s.limiter == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		client := getClientIP(r, s.proxies)
		if !s.limiter.Allow(client) {
			wait := s.limiter.RetryAfter(client)
			w.Header().Set("Retry-After", strconv.Itoa(max(1, int(math.Ceil(wait.Seconds())))))
			s.logger.Warn("rate limit exceeded", "client", client)
			WriteErrorCtx(w, r, http.StatusTooManyRequests, "", "rate limit exceeded")
			return
		}
		next(w, r)
	}
}

type invalidResponse struct {
	ErrorResponse
	Diagnostics []analyzer.Diagnostic `json:"diagnostics"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		WriteErrorCtx(w, r, http.StatusNotFound, "", "history is disabled")
		return
	}
	limit := state.DefaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			WriteErrorCtx(w, r, http.StatusBadRequest, v, "invalid limit")
			return
		}
		limit = n
	}

	runs, err := s.history.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list runs", "error", err)
		WriteErrorCtx(w, r, http.StatusInternalServerError, err.Error(), "failed to read history")
		return
	}
	WriteJSON(w, http.StatusOK, runs)
}

func (s *Server) handleHistoryRun(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		WriteErrorCtx(w, r, http.StatusNotFound, "", "history is disabled")
		return
	}
	id := r.PathValue("id")
	run, err := s.history.Get(r.Context(), id)
	if errors.Is(err, state.ErrNotFound) {
		WriteErrorCtx(w, r, http.StatusNotFound, id, "run not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to read run", "run", id, "error", err)
		WriteErrorCtx(w, r, http.StatusInternalServerError, err.Error(), "failed to read history")
		return
	}
	WriteJSON(w, http.StatusOK, run)
}
