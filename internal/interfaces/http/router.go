package http

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/klauspost/compress/gzip"

	"github.com/turtacn/keyip-combinator/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/keyip-combinator/internal/interfaces/http/handlers"
	"github.com/turtacn/keyip-combinator/internal/interfaces/http/middleware"
)

// RouterConfig aggregates the handlers and middleware of the route tree.
// Nil members are skipped.
type RouterConfig struct {
	HealthHandler       *handlers.HealthHandler
	SubstitutionHandler *handlers.SubstitutionHandler

	LoggingMiddleware   *middleware.LoggingMiddleware
	RateLimitMiddleware *middleware.RateLimitMiddleware

	MetricsCollector prometheus.MetricsCollector
}

// NewRouter builds the route tree.  Probes and /metrics sit outside the
// rate limit.  Unmatched routes answer with the JSON error body used by the
// handlers.  JSON replies are gzipped for clients that accept it, since
// variant lists compress well.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.CleanPath)
	r.Use(chimw.Recoverer)
	r.Use(jsonCompressor().Handler)
	if cfg.LoggingMiddleware != nil {
		r.Use(cfg.LoggingMiddleware.Handler)
	}
	r.NotFound(handlers.NotFound)
	r.MethodNotAllowed(handlers.MethodNotAllowed)

	if cfg.HealthHandler != nil {
		cfg.HealthHandler.RegisterRoutes(r)
	}
	if cfg.MetricsCollector != nil {
		r.Handle("/metrics", cfg.MetricsCollector.Handler())
	}

	r.Route("/api/v1", func(api chi.Router) {
		if cfg.RateLimitMiddleware != nil {
			api.Use(cfg.RateLimitMiddleware.Handler)
		}
		if cfg.SubstitutionHandler != nil {
			cfg.SubstitutionHandler.RegisterRoutes(api)
		}
	})

	return r
}

const compressionLevel = 5

func jsonCompressor() *chimw.Compressor {
	c := chimw.NewCompressor(compressionLevel, "application/json")
	c.SetEncoder("gzip", func(w io.Writer, level int) io.Writer {
		gw, err := gzip.NewWriterLevel(w, level)
		if err != nil {
			return nil
		}
		return gw
	})
	return c
}

//Personal.AI order the ending
