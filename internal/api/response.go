package api

import (
	"context"
	"errors"
	"net/http"

	"salonsched/internal/lock"
	"salonsched/internal/model"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

// Response wraps every error body.
type Response struct {
	Error *ErrorBody `json:"error,omitempty"`
}

type ErrorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
	// BlockingID names the record that caused a conflict.
	BlockingID string   `json:"blocking_id,omitempty"`
	Conflicts  []string `json:"conflicts,omitempty"`
}

func errorResponse(code, msg string, fields map[string]string) Response {
	return Response{Error: &ErrorBody{Code: code, Message: msg, Fields: fields}}
}

// Versioned is the envelope of every successful write.
type Versioned struct {
	Data    any   `json:"data"`
	Version int64 `json:"version"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	render.Status(r, status)
	render.JSON(w, r, v)
}

// writeError maps domain errors onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("path", r.URL.Path).
			Msg("request failed")
	}
	writeJSON(w, r, status, Response{Error: &body})
}

func classify(err error) (int, ErrorBody) {
	var (
		validation *model.ValidationError
		conflict   *model.ConflictError
		assignment *model.AssignmentConflictError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, ErrorBody{Code: "VALIDATION", Message: "request is invalid", Fields: validation.Fields}
	case errors.As(err, &conflict):
		return http.StatusConflict, ErrorBody{Code: string(conflict.Kind), Message: conflict.Detail, BlockingID: conflict.BlockingID}
	case errors.As(err, &assignment):
		return http.StatusConflict, ErrorBody{Code: "ASSIGNMENT_CONFLICT", Message: assignment.Error(), Conflicts: assignment.Conflicts}
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, ErrorBody{Code: "NOT_FOUND", Message: err.Error()}
	case errors.Is(err, model.ErrNoPolicy):
		return http.StatusNotFound, ErrorBody{Code: "NO_POLICY", Message: err.Error()}
	case errors.Is(err, model.ErrInvalidTransition):
		return http.StatusConflict, ErrorBody{Code: "INVALID_TRANSITION", Message: err.Error()}
	case errors.Is(err, model.ErrConcurrentModification):
		return http.StatusConflict, ErrorBody{Code: "CONCURRENT_MODIFICATION", Message: err.Error()}
	case errors.Is(err, model.ErrDuplicatePolicy):
		return http.StatusConflict, ErrorBody{Code: "DUPLICATE_POLICY", Message: err.Error()}
	case errors.Is(err, lock.ErrLockTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, ErrorBody{Code: "BUSY", Message: "resource is busy, retry later"}
	default:
		return http.StatusInternalServerError, ErrorBody{Code: "INTERNAL", Message: "internal error"}
	}
}

// decode reads a JSON body; malformed input is a validation error.
func decode(r *http.Request, v any) error {
	if err := render.DecodeJSON(r.Body, v); err != nil {
		return model.Invalid("body", "malformed JSON: "+err.Error())
	}
	return nil
}
