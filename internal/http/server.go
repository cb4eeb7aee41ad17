// Package http serves the insights API: health and readiness probes,
// Prometheus metrics, and the authenticated agent routes.
package http

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"budgetagent/internal/core"
	"budgetagent/internal/ledger"
	"budgetagent/internal/log"
	"budgetagent/internal/metrics"
	"budgetagent/internal/middleware/ratelimit"
	"budgetagent/internal/middleware/security"
	"budgetagent/internal/middleware/trace"
	"budgetagent/internal/services"

	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// InsightsService is the part of services.InsightService the routes use.
type InsightsService interface {
	Monthly(ctx context.Context, req services.MonthlyRequest) (*core.Envelope, error)
	Weekly(ctx context.Context, req services.WeeklyRequest) (*core.Envelope, error)
	OnEntryCreated(ctx context.Context, req services.EntryCreatedRequest) (*core.Envelope, error)
}

// Options configures NewServer.
type Options struct {
	APIKey       string
	RateLimitRPM int
	CORSOrigins  []string
	Logger       *log.Logger
	// Ready backs /readyz; nil always reports ready.
	Ready ledger.Pinger
}

type Server struct {
	http.Server
	svc      InsightsService
	ready    ledger.Pinger
	limiter  *ratelimit.Limiter
	clientIP *security.ClientIP
	logger   *log.Logger

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(addr string, svc InsightsService, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentHTTP)
	}
	rlCfg := ratelimit.DefaultConfig()
	if opts.RateLimitRPM > 0 {
		rlCfg.RequestsPerMinute = opts.RateLimitRPM
	}

	s := &Server{
		svc:      svc,
		ready:    opts.Ready,
		limiter:  ratelimit.NewLimiter(rlCfg),
		clientIP: security.NewClientIP(),
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.Handle("GET /health", instrument("/health", http.HandlerFunc(handleHealth)))
	mux.Handle("GET /readyz", instrument("/readyz", http.HandlerFunc(s.handleReady)))
	mux.Handle("GET /metrics", promhttp.Handler())

	agent := func(route string, h http.HandlerFunc) http.Handler {
		limited := s.limiter.Middleware(s.clientIP.Extract, func(w http.ResponseWriter, r *http.Request) {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
				log.FieldClientIP, s.clientIP.Extract(r), log.FieldPath, r.URL.Path)
			TooManyRequestsError().Write(w)
		})
		return instrument(route, limited(requireAPIKey(opts.APIKey)(h)))
	}
	mux.Handle("POST /agent/monthly", agent("/agent/monthly", s.handleMonthly))
	mux.Handle("POST /agent/weekly", agent("/agent/weekly", s.handleWeekly))
	mux.Handle("POST /agent/on-entry-created", agent("/agent/on-entry-created", s.handleEntryCreated))

	var handler http.Handler = mux
	if len(opts.CORSOrigins) > 0 {
		handler = cors.Handler(cors.Options{
			AllowedOrigins: opts.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", HeaderAPIKey, trace.HeaderRequestID},
			ExposedHeaders: []string{trace.HeaderRequestID, "Retry-After"},
			MaxAge:         300,
		})(handler)
	}
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = trace.NewMiddleware(s.clientIP.Extract).Middleware(handler)
	handler = log.Middleware(logger)(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Shutdown stops the rate limiter and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.logger.InfoContext(ctx, "HTTP server shutting down", log.FieldOperation, log.OpShutdown)
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// instrument records request count and latency under a fixed route label.
func instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		metrics.HTTPDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(rw.status)).Inc()
	})
}

// statusRecorder wraps http.ResponseWriter to capture the status code
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (rw *statusRecorder) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.status = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}
