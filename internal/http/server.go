package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"spndr/internal/core"
	"spndr/internal/log"
	"spndr/internal/middleware/ratelimit"
	"spndr/internal/middleware/security"
	"spndr/internal/middleware/trace"
	"spndr/internal/storage"
)

// TransactionService is what the routes need from the service layer.
type TransactionService interface {
	List(ctx context.Context, filter storage.ListFilter) ([]core.Transaction, error)
	Create(ctx context.Context, tx core.Transaction) (core.Transaction, error)
	Update(ctx context.Context, id string, patch core.TransactionPatch) (core.Transaction, error)
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context) (int64, error)
	Summary(ctx context.Context, userID string) (core.TransactionSummary, error)
	Categories(ctx context.Context, userID string, top int) ([]core.CategorySummary, error)
}

// Options configures NewServer. Zero values take defaults.
type Options struct {
	Addr               string
	Service            TransactionService
	Ping               func(context.Context) error
	RateLimitPerMinute int
	CORSAllowedOrigins []string
	Logger             *log.Logger

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type Server struct {
	http.Server
	svc      TransactionService
	ping     func(context.Context) error
	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware
	logger   *log.Logger
	started  time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 15 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 15 * time.Second
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 60 * time.Second
	}

	detector := security.NewDetector()
	s := &Server{
		svc:      opts.Service,
		ping:     opts.Ping,
		limiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerWindow: opts.RateLimitPerMinute, Window: time.Minute}),
		detector: detector,
		tracer:   trace.NewMiddleware(detector.ExtractClientIP, logger),
		logger:   logger.WithComponent(log.ComponentHTTP),
		started:  time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)

	mux.HandleFunc("GET /api/transactions", s.handleList)
	mux.HandleFunc("POST /api/transactions", s.handleCreate)
	mux.HandleFunc("DELETE /api/transactions", s.handleClear)
	mux.HandleFunc("GET /api/transactions/summary", s.handleSummary)
	mux.HandleFunc("GET /api/transactions/categories", s.handleCategories)
	mux.HandleFunc("PUT /api/transactions/{id}", s.handleUpdate)
	mux.HandleFunc("DELETE /api/transactions/{id}", s.handleDelete)

	// Outermost first.
	chain := []func(http.Handler) http.Handler{
		s.tracer.Middleware,
		log.Middleware(s.logger, trace.RequestID),
		detector.Middleware(logger),
		security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware,
		security.CORS(security.DefaultCORSConfig(opts.CORSAllowedOrigins)),
		ratelimit.Middleware(s.limiter, detector.ExtractClientIP, logger),
	}
	var handler http.Handler = mux
	for i := len(chain) - 1; i >= 0; i-- {
		handler = chain[i](handler)
	}

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadTimeout:       opts.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      opts.WriteTimeout,
		IdleTimeout:       opts.IdleTimeout,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelError),
	}
	return s
}

// Metrics returns the request counters collected by the trace middleware.
func (s *Server) Metrics() trace.Metrics {
	return s.tracer.GetMetrics()
}

// Shutdown gracefully shuts down the server and its background goroutines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
		s.logger.InfoContext(ctx, "HTTP server stopped", log.FieldOperation, log.OpShutdown)
	})
	return shutdownErr
}
