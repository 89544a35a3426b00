// Package web provides the HTTP server and JSON handlers for the fact
// pipeline: uploads, structure analysis, dimension mappings and processing
// jobs.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/factflow/internal/core"
	appmw "github.com/JonMunkholm/factflow/internal/web/middleware"
)

// Options tunes the HTTP layer.
type Options struct {
	RequestTimeout    time.Duration // Applied to every route except the SSE stream
	RateLimitEnabled  bool
	RequestsPerMinute int
	UploadLimit       int      // Requests per minute for upload and process endpoints
	TrustedProxies    []string // CIDRs allowed to set X-Real-IP / X-Forwarded-For
	APIKeys           []string // When non-empty, mutating requests need X-API-Key
	MaxUploadSize     int64

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

func (o Options) withDefaults() Options {
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 60 * time.Second
	}
	if o.RequestsPerMinute <= 0 {
		o.RequestsPerMinute = 100
	}
	if o.UploadLimit <= 0 {
		o.UploadLimit = 10
	}
	if o.MaxUploadSize <= 0 {
		o.MaxUploadSize = core.DefaultMaxFileSize
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 15 * time.Second
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 60 * time.Second
	}
	return o
}

// Server is the HTTP server for the fact pipeline.
type Server struct {
	service *core.Service
	router  *chi.Mux
	server  *http.Server
	opts    Options
}

// NewServer creates a new Server instance.
func NewServer(service *core.Service, opts Options) *Server {
	s := &Server{
		service: service,
		router:  chi.NewRouter(),
		opts:    opts.withDefaults(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(appmw.TrustedRealIP(s.opts.TrustedProxies))
	s.router.Use(appmw.Logger)
	s.router.Use(appmw.Tracing)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5, "application/json"))

	// Security hardening
	s.router.Use(securityHeaders)
	s.router.Use(appmw.APIKeyAuth(s.opts.APIKeys))

	if s.opts.RateLimitEnabled {
		s.router.Use(newRateLimiter(s.opts.RequestsPerMinute, time.Minute).middleware)
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// The progress stream stays open for the life of a job.
		r.Get("/jobs/{jobID}/events", s.handleJobEvents)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.opts.RequestTimeout))

			// Uploads and analysis
			r.Group(func(r chi.Router) {
				if s.opts.RateLimitEnabled {
					r.Use(newRateLimiter(s.opts.UploadLimit, time.Minute).middleware)
				}
				r.Post("/uploads", s.handleUpload)
				r.Post("/uploads/{uploadID}/process", s.handleStartProcessing)
			})
			r.Get("/uploads/{uploadID}", s.handleGetUpload)
			r.Post("/uploads/{uploadID}/analysis", s.handleAnalyze)
			r.Get("/uploads/{uploadID}/jobs", s.handleListJobs)

			// Mappings
			r.Get("/analyses/{analysisID}", s.handleGetAnalysis)
			r.Get("/analyses/{analysisID}/suggestions", s.handleSuggestMappings)
			r.Get("/analyses/{analysisID}/mappings", s.handleListMappings)
			r.Put("/analyses/{analysisID}/mappings/{columnIndex}", s.handleSaveMapping)
			r.Delete("/analyses/{analysisID}/mappings/{columnIndex}", s.handleDeleteMapping)
			r.Get("/analyses/{analysisID}/validation", s.handleValidateMappings)

			// Jobs
			r.Get("/jobs/{jobID}", s.handleJobStatus)
			r.Get("/jobs/{jobID}/errors", s.handleJobErrors)
			r.Post("/jobs/{jobID}/errors/{errorID}/resolve", s.handleResolveError)
			r.Get("/jobs/{jobID}/facts", s.handleJobFacts)
		})
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout, // Zero keeps SSE streams open
		IdleTimeout:  s.opts.IdleTimeout,
	}

	slog.Info("starting server", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		// JSON API only: nothing may be loaded or framed.
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

var errRateLimited = errors.New("rate limit exceeded")

// rateLimiter implements a simple token bucket rate limiter per IP.
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     int           // requests per window
	window   time.Duration // time window
	now      func() time.Time
}

type visitor struct {
	tokens    int
	lastReset time.Time
}

// newRateLimiter creates a rate limiter with the specified rate per window.
func newRateLimiter(rate int, window time.Duration) *rateLimiter {
	rl := &rateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		window:   window,
		now:      time.Now,
	}
	go rl.cleanup()
	return rl
}

// cleanup removes stale visitor entries once per window.
func (rl *rateLimiter) cleanup() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()
	for range ticker.C {
		rl.mu.Lock()
		for ip, v := range rl.visitors {
			if rl.now().Sub(v.lastReset) > rl.window*2 {
				delete(rl.visitors, ip)
			}
		}
		rl.mu.Unlock()
	}
}

// allow checks if the request should be allowed and consumes a token if so.
func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v, exists := rl.visitors[ip]
	if !exists || now.Sub(v.lastReset) > rl.window {
		rl.visitors[ip] = &visitor{tokens: rl.rate - 1, lastReset: now}
		return true
	}

	if v.tokens <= 0 {
		return false
	}
	v.tokens--
	return true
}

// middleware returns an HTTP middleware that rate limits by client IP.
// TrustedRealIP has already rewritten RemoteAddr for proxied requests.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(appmw.ClientIP(r)) {
			w.Header().Set("Retry-After", fmt.Sprint(int(rl.window.Seconds())))
			msg := core.MapError(errRateLimited)
			writeJSONStatus(w, http.StatusTooManyRequests, ErrorResponse{
				Error:   msg.Message,
				Message: msg.Message,
				Action:  msg.Action,
				Code:    msg.Code,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as JSON with a 200 status.
func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

// writeJSONStatus encodes v as JSON with the given status.
// Encoding errors are only logged since headers are already sent.
func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("json encode error", "error", err)
	}
}
