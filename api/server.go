/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client IP from X-Forwarded-For / X-Real-IP
  3. Logger:     Structured request logging (zap)
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests
  6. Rate limit: Per-IP request budget (httprate), API routes only

ROUTE GROUPS:
  /api/listings/*   Listing operations
  /api/remote/*     Remote platform simulation
  /api/scenarios/*  Demo scenarios
  /metrics          Prometheus scrape endpoint
  /healthz          Liveness and store check

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// RouterOptions configures the cross-cutting parts of the router.
type RouterOptions struct {
	// CORSOrigins defaults to any origin when empty.
	CORSOrigins []string

	// RateLimit is the number of API requests per minute per client IP.
	// Zero disables rate limiting.
	RateLimit int

	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(h.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", h.Healthz)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		if opts.RateLimit > 0 {
			r.Use(httprate.Limit(opts.RateLimit, time.Minute,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
					writeError(w, http.StatusTooManyRequests, "Rate limit exceeded", nil)
				})))
		}

		// Listing routes
		r.Route("/listings", func(r chi.Router) {
			r.Get("/", h.ListListings)
			r.Get("/{sku}", h.GetListing)
			r.Post("/{sku}/adjustments", h.RecordAdjustment)
			r.Get("/{sku}/adjustments", h.ListAdjustments)
			r.Post("/{sku}/sync", h.Sync)
			r.Post("/{sku}/pull", h.PullOrders)
			r.Post("/{sku}/reconcile", h.Reconcile)
			r.Get("/{sku}/runs", h.ListReconciliationRuns)
		})

		// Remote simulation routes
		r.Route("/remote", func(r chi.Router) {
			r.Post("/{sku}/orders", h.PlaceOrder)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}

// RequestLogger logs one line per request with status and latency.
// 5xx responses log at error level, 4xx at warn.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			fields := []zap.Field{
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("client_ip", r.RemoteAddr),
				zap.Int("body_size", ww.BytesWritten()),
			}
			if r.URL.RawQuery != "" {
				fields = append(fields, zap.String("query", r.URL.RawQuery))
			}

			level := zapcore.InfoLevel
			switch {
			case ww.Status() >= 500:
				level = zapcore.ErrorLevel
			case ww.Status() >= 400:
				level = zapcore.WarnLevel
			}
			if ce := logger.Check(level, "HTTP Request"); ce != nil {
				ce.Write(fields...)
			}
		})
	}
}
