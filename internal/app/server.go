package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"supply-controller/internal/observability"
	"supply-controller/internal/orchestrator"
	"supply-controller/internal/reporting"
)

// Runner runs one orchestrated cycle.
type Runner interface {
	Run(ctx context.Context, mode orchestrator.Mode) (*orchestrator.RunResult, error)
}

// Server runs the controller on a cron schedule and serves the admin API.
type Server struct {
	runner    Runner
	generator *reporting.Generator
	spec      string
	timeout   time.Duration
	logger    *zap.Logger

	cron *cron.Cron
	http *http.Server

	mu       sync.Mutex
	started  time.Time
	lastRun  time.Time
	lastErr  string
	lastSkip string
	runs     int
	failures int
	running  bool
}

// ServerOptions configures a Server.
type ServerOptions struct {
	Runner     Runner
	Generator  *reporting.Generator // optional, enables /report
	Schedule   string               // standard 5-field cron spec, UTC
	ListenAddr string
	RunTimeout time.Duration // Default: 30m
	Logger     *zap.Logger
}

// StatusResponse is the /status payload.
type StatusResponse struct {
	Status      string    `json:"status"`
	Schedule    string    `json:"schedule"`
	Uptime      string    `json:"uptime"`
	LastRun     time.Time `json:"last_run"`
	LastError   string    `json:"last_error,omitempty"`
	LastSkipped string    `json:"last_skipped,omitempty"`
	Runs        int       `json:"runs"`
	Failures    int       `json:"failures"`
	Running     bool      `json:"running"`
}

// NewServer validates the schedule and builds the router.
func NewServer(opts ServerOptions) (*Server, error) {
	if opts.Runner == nil {
		return nil, errors.New("server: runner is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("server")

	timeout := opts.RunTimeout
	if timeout == 0 {
		timeout = 30 * time.Minute
	}

	s := &Server{
		runner:    opts.Runner,
		generator: opts.Generator,
		spec:      opts.Schedule,
		timeout:   timeout,
		logger:    logger,
		started:   time.Now(),
	}

	cl := cronLogger{logger}
	s.cron = cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := s.cron.AddFunc(opts.Schedule, func() { s.RunOnce(context.Background()) }); err != nil {
		return nil, err
	}

	s.http = &http.Server{
		Addr:              opts.ListenAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Router returns the admin routes.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.Handle("/metrics", observability.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/report", s.handleReport).Methods(http.MethodGet)
	r.HandleFunc("/run", s.handleRun).Methods(http.MethodPost)
	return r
}

// Serve starts the scheduler and the HTTP server and blocks until ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	s.cron.Start()
	s.logger.Info("Scheduler started", zap.String("schedule", s.spec))

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Admin server listening", zap.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	// wait for an in-flight run before returning
	<-s.cron.Stop().Done()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("Admin server shutdown", zap.Error(err))
	}
	return serveErr
}

// RunOnce executes one full run unless one is already in progress.
func (s *Server) RunOnce(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Warn("Run already in progress, skipping")
		return
	}
	s.running = true
	s.mu.Unlock()

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	res, err := s.runner.Run(runCtx, orchestrator.ModeRun)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.runs++
	s.lastRun = time.Now().UTC()
	s.lastErr = ""
	s.lastSkip = ""
	if err != nil {
		s.failures++
		s.lastErr = err.Error()
		s.logger.Error("Scheduled run failed", zap.Error(err))
		return
	}
	s.lastSkip = res.Skipped
	LogResult(s.logger, res)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	resp := StatusResponse{
		Status:      "running",
		Schedule:    s.spec,
		Uptime:      time.Since(s.started).Round(time.Second).String(),
		LastRun:     s.lastRun,
		LastError:   s.lastErr,
		LastSkipped: s.lastSkip,
		Runs:        s.runs,
		Failures:    s.failures,
		Running:     s.running,
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("Encode status", zap.Error(err))
	}
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if s.generator == nil {
		http.Error(w, "report not configured", http.StatusNotFound)
		return
	}
	days := 7
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "days must be a positive integer", http.StatusBadRequest)
			return
		}
		days = n
	}

	report, err := s.generator.Generate(r.Context(), days)
	if err != nil {
		s.logger.Error("Generate report", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		_, _ = w.Write([]byte(reporting.RenderCSV(report.Days)))
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	_, _ = w.Write([]byte(reporting.RenderMarkdown(report)))
}

// handleRun triggers a run outside the schedule and waits for it.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	s.RunOnce(r.Context())
	s.handleStatus(w, r)
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Infow(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().With(zap.Error(err)).Errorw(msg, keysAndValues...)
}
