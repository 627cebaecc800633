package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/turtacn/keyip-combinator/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/keyip-combinator/pkg/errors"
)

// DefaultMaxBodyBytes bounds request bodies when no limit is configured.
const DefaultMaxBodyBytes int64 = 1 << 20

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// ErrorResponse is the standard error response body.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// writeAppError maps err to the status registered for its code.  Server
// errors are masked and logged.
func writeAppError(w http.ResponseWriter, logger logging.Logger, err error) {
	code := errors.GetCode(err)
	status := errors.HTTPStatusForCode(code)

	resp := ErrorResponse{Code: string(code), Message: errors.DefaultMessageForCode(code)}
	var ae *errors.AppError
	if errors.As(err, &ae) {
		resp.Code = string(ae.Code)
		if status < 500 {
			resp.Message = ae.Message
			resp.Detail = ae.Detail
		}
	}
	if status >= 500 {
		if code == errors.CodeUnknown {
			resp.Code = string(errors.ErrCodeInternal)
			resp.Message = errors.DefaultMessageForCode(errors.ErrCodeInternal)
		}
		logger.Error("request failed", logging.Err(err), logging.String("code", resp.Code))
	}
	writeJSON(w, status, resp)
}

// NotFound answers unmatched routes with the standard error body.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, ErrorResponse{
		Code:    string(errors.ErrCodeNotFound),
		Message: "no route for " + r.URL.Path,
	})
}

// MethodNotAllowed answers a known path requested with the wrong method.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{
		Code:    string(errors.ErrCodeBadRequest),
		Message: r.Method + " not allowed on " + r.URL.Path,
	})
}

// decodeJSON reads a single JSON object of at most maxBytes into dst.
// Unknown fields are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, dst interface{}) error {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodyBytes
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errors.Newf(errors.ErrCodeBadRequest, "request body exceeds %d bytes", maxBytes)
		}
		return errors.Wrap(err, errors.ErrCodeBadRequest, "invalid request body")
	}
	if dec.More() {
		return errors.New(errors.ErrCodeBadRequest, "request body must hold a single JSON object")
	}
	return nil
}

//Personal.AI order the ending
