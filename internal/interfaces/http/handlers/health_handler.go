package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"
)

// HealthChecker is a backing store probed by /readyz, usually the one
// behind a variant sink or the result cache.
type HealthChecker interface {
	Name() string
	Check(ctx context.Context) error
}

// CheckFunc adapts a function to HealthChecker.
type CheckFunc struct {
	Component string
	Fn        func(ctx context.Context) error
}

func (c CheckFunc) Name() string                    { return c.Component }
func (c CheckFunc) Check(ctx context.Context) error { return c.Fn(ctx) }

const (
	statusUp   = "up"
	statusDown = "down"

	defaultProbeTimeout = 5 * time.Second
)

// HealthHandler serves the liveness, readiness and detail probes.
type HealthHandler struct {
	version      string
	checkers     []HealthChecker
	sinks        []string
	probeTimeout time.Duration
	startAt      time.Time
}

type HealthOption func(*HealthHandler)

// WithChecks adds backing stores to the readiness probe.
func WithChecks(checkers ...HealthChecker) HealthOption {
	return func(h *HealthHandler) { h.checkers = append(h.checkers, checkers...) }
}

// WithSinkNames lists the wired sinks in /healthz/detail.
func WithSinkNames(names ...string) HealthOption {
	return func(h *HealthHandler) { h.sinks = names }
}

// WithProbeTimeout bounds the whole readiness round.
func WithProbeTimeout(d time.Duration) HealthOption {
	return func(h *HealthHandler) {
		if d > 0 {
			h.probeTimeout = d
		}
	}
}

func NewHealthHandler(version string, opts ...HealthOption) *HealthHandler {
	h := &HealthHandler{
		version:      version,
		probeTimeout: defaultProbeTimeout,
		startAt:      time.Now(),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

func (h *HealthHandler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.Liveness)
	r.Get("/readyz", h.Readiness)
	r.Get("/healthz/detail", h.Detailed)
}

type LivenessResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

type ReadinessResponse struct {
	Status     string                    `json:"status"`
	Components map[string]ComponentCheck `json:"components,omitempty"`
}

// DetailResponse is ReadinessResponse plus build and sink information.
type DetailResponse struct {
	Status     string                    `json:"status"`
	Version    string                    `json:"version"`
	Uptime     string                    `json:"uptime"`
	Sinks      []string                  `json:"sinks"`
	Components map[string]ComponentCheck `json:"components"`
}

// ComponentCheck is the outcome of one probe.
type ComponentCheck struct {
	Status  string `json:"status"`
	Latency string `json:"latency"`
	Error   string `json:"error,omitempty"`
}

// Liveness answers 200 while the process serves requests; backing stores
// are not consulted.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, LivenessResponse{
		Status:  statusUp,
		Version: h.version,
		Uptime:  h.uptime(),
	})
}

// Readiness answers 503 when any backing store is down, so a replica that
// cannot reach its sinks is taken out of rotation.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	components, up := h.probe(r.Context())
	resp := ReadinessResponse{Status: statusUp, Components: components}
	code := http.StatusOK
	if !up {
		resp.Status = statusDown
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func (h *HealthHandler) Detailed(w http.ResponseWriter, r *http.Request) {
	components, up := h.probe(r.Context())
	sinks := h.sinks
	if sinks == nil {
		sinks = []string{}
	}
	resp := DetailResponse{
		Status:     statusUp,
		Version:    h.version,
		Uptime:     h.uptime(),
		Sinks:      sinks,
		Components: components,
	}
	code := http.StatusOK
	if !up {
		resp.Status = statusDown
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func (h *HealthHandler) uptime() string {
	return time.Since(h.startAt).Truncate(time.Second).String()
}

// probe runs every checker concurrently under one deadline.  A checker that
// overruns it reports the context error.
func (h *HealthHandler) probe(ctx context.Context) (map[string]ComponentCheck, bool) {
	ctx, cancel := context.WithTimeout(ctx, h.probeTimeout)
	defer cancel()

	checks := make([]ComponentCheck, len(h.checkers))
	var g errgroup.Group
	for i, c := range h.checkers {
		i, c := i, c
		g.Go(func() error {
			start := time.Now()
			err := c.Check(ctx)
			checks[i] = ComponentCheck{Status: statusUp, Latency: time.Since(start).Truncate(time.Microsecond).String()}
			if err != nil {
				checks[i].Status = statusDown
				checks[i].Error = err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()

	up := true
	out := make(map[string]ComponentCheck, len(checks))
	for i, c := range h.checkers {
		out[c.Name()] = checks[i]
		up = up && checks[i].Status == statusUp
	}
	return out, up
}

//Personal.AI order the ending
