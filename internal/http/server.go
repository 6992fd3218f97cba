package http

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"chantier/internal/log"
	"chantier/internal/middleware/ratelimit"
	"chantier/internal/middleware/trace"
	"chantier/internal/services"
)

// Checker reports whether a dependency is usable. The storage and queue
// clients satisfy it with their Ping methods.
type Checker interface {
	Ping(ctx context.Context) error
}

// CheckFunc adapts a function to Checker.
type CheckFunc func(ctx context.Context) error

func (f CheckFunc) Ping(ctx context.Context) error { return f(ctx) }

// Options configures the optional parts of the server.
type Options struct {
	Logger *log.Logger
	// Limiter throttles requests per owner, or per client IP for anonymous
	// requests. Nil disables rate limiting.
	Limiter *ratelimit.Limiter
	// IPLimiter throttles every request per client IP, so rotating the
	// owner header does not buy fresh buckets. Nil disables it.
	IPLimiter *ratelimit.Limiter
	// Checks are probed by /readyz, keyed by dependency name.
	Checks map[string]Checker
}

type Server struct {
	http.Server
	svc       *services.SiteService
	logger    *log.Logger
	limiter   *ratelimit.Limiter
	ipLimiter *ratelimit.Limiter
	checks    map[string]Checker
	tracer    *trace.Middleware
	started   time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(addr string, svc *services.SiteService, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.Config{Component: log.ComponentHTTP})
	}

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		svc:       svc,
		logger:    logger,
		limiter:   opts.Limiter,
		ipLimiter: opts.IPLimiter,
		checks:    opts.Checks,
		tracer:    trace.NewMiddleware(logger.Logger),
		started:   time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /sites", s.handleListSites)
	mux.HandleFunc("POST /sites", s.handleCreateSite)
	mux.HandleFunc("GET /sites/{id}", s.handleSiteDetail)
	mux.HandleFunc("DELETE /sites/{id}", s.handleDeleteSite)
	mux.HandleFunc("PUT /sites/{id}/rate", s.handleSetRate)

	mux.HandleFunc("POST /sites/{id}/entries", s.handleCreateEntry)
	mux.HandleFunc("DELETE /sites/{id}/entries/{entryID}", s.handleDeleteEntry)
	mux.HandleFunc("POST /sites/{id}/expenses", s.handleCreateExpense)
	mux.HandleFunc("DELETE /sites/{id}/expenses/{expenseID}", s.handleDeleteExpense)
	mux.HandleFunc("POST /sites/{id}/expenses/{expenseID}/file", s.handleAttachFile)
	mux.HandleFunc("GET /sites/{id}/expenses/{expenseID}/file", s.handleGetFile)

	mux.HandleFunc("GET /sites/{id}/days", s.handleDays)
	mux.HandleFunc("GET /sites/{id}/days/{date}", s.handleDaySummary)
	mux.HandleFunc("GET /sites/{id}/export.csv", s.handleExportCSV)
	mux.HandleFunc("POST /sites/{id}/export", s.handleRequestExport)

	var h http.Handler = mux
	if s.limiter != nil {
		h = s.limiter.Middleware(rateLimitKey)(h)
	}
	if s.ipLimiter != nil {
		h = s.ipLimiter.Middleware(ipKey)(h)
	}
	h = log.Middleware(logger, trace.GetRequestID)(h)
	h = s.tracer.Middleware(h)
	s.Handler = h

	return s
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// rateLimitKey buckets requests by owner, falling back to the client IP.
func rateLimitKey(r *http.Request) string {
	if owner := strings.TrimSpace(r.Header.Get(HeaderUserID)); owner != "" {
		return "owner:" + owner
	}
	return "ip:" + clientIP(r)
}

func ipKey(r *http.Request) string {
	return "ip:" + clientIP(r)
}

// clientIP extracts the caller address, considering proxies.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
