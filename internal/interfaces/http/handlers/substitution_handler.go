package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/turtacn/keyip-combinator/internal/application/enumeration"
	"github.com/turtacn/keyip-combinator/internal/infrastructure/monitoring/logging"
)

// SubstitutionHandler serves enumeration runs, counts and site listings.
type SubstitutionHandler struct {
	svc          enumeration.Service
	logger       logging.Logger
	maxBodyBytes int64
}

func NewSubstitutionHandler(svc enumeration.Service, logger logging.Logger, maxBodyBytes int64) *SubstitutionHandler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &SubstitutionHandler{svc: svc, logger: logger.Named("http"), maxBodyBytes: maxBodyBytes}
}

func (h *SubstitutionHandler) RegisterRoutes(r chi.Router) {
	r.Post("/substitutions", h.Substitute)
	r.Post("/substitutions/count", h.Count)
	r.Post("/sites", h.Sites)
	r.Get("/sinks", h.Sinks)
}

// Substitute handles POST /api/v1/substitutions.
func (h *SubstitutionHandler) Substitute(w http.ResponseWriter, r *http.Request) {
	var req enumeration.Request
	if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		writeAppError(w, logging.FromContext(r.Context(), h.logger), err)
		return
	}
	res, err := h.svc.Run(r.Context(), &req)
	if err != nil {
		writeAppError(w, logging.FromContext(r.Context(), h.logger), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Count handles POST /api/v1/substitutions/count.
func (h *SubstitutionHandler) Count(w http.ResponseWriter, r *http.Request) {
	var req enumeration.CountRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		writeAppError(w, logging.FromContext(r.Context(), h.logger), err)
		return
	}
	res, err := h.svc.Count(r.Context(), &req)
	if err != nil {
		writeAppError(w, logging.FromContext(r.Context(), h.logger), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Sites handles POST /api/v1/sites.
func (h *SubstitutionHandler) Sites(w http.ResponseWriter, r *http.Request) {
	var req enumeration.SitesRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		writeAppError(w, logging.FromContext(r.Context(), h.logger), err)
		return
	}
	res, err := h.svc.Sites(r.Context(), &req)
	if err != nil {
		writeAppError(w, logging.FromContext(r.Context(), h.logger), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type sinksResponse struct {
	Sinks []string `json:"sinks"`
}

// Sinks lists the sink names a request may select.
func (h *SubstitutionHandler) Sinks(w http.ResponseWriter, r *http.Request) {
	names := h.svc.SinkNames()
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, sinksResponse{Sinks: names})
}

//Personal.AI order the ending
