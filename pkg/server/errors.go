package server

import (
	"context"
	"errors"
	"net/http"

	"mercator-hq/verdict/pkg/decisionlog"
	"mercator-hq/verdict/pkg/dynamic"
	"mercator-hq/verdict/pkg/server/middleware"
	"mercator-hq/verdict/pkg/table"
	"mercator-hq/verdict/pkg/workspace"
)

// errorStatus maps domain errors to an HTTP status and a stable code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, workspace.ErrRuleNotFound):
		return http.StatusNotFound, "rule_not_found"
	case errors.Is(err, workspace.ErrVersionNotFound):
		return http.StatusNotFound, "version_not_found"
	case errors.Is(err, dynamic.ErrValueNotFound):
		return http.StatusNotFound, "value_not_found"
	case errors.Is(err, workspace.ErrPublishBlocked):
		return http.StatusConflict, "publish_blocked"
	case errors.Is(err, table.ErrTablePublished):
		return http.StatusConflict, "table_published"
	case errors.Is(err, dynamic.ErrStillReferenced):
		return http.StatusConflict, "value_referenced"
	case errors.Is(err, table.ErrSchemaValidation), errors.Is(err, table.ErrTypeMismatch):
		return http.StatusUnprocessableEntity, "invalid_request"
	case errors.Is(err, table.ErrNoMatch):
		return http.StatusUnprocessableEntity, "no_match"
	case errors.Is(err, table.ErrUnknownReference):
		return http.StatusUnprocessableEntity, "unknown_reference"
	case errors.Is(err, table.ErrInvalidTableStructure), errors.Is(err, table.ErrNotValidated):
		return http.StatusUnprocessableEntity, "invalid_table"
	case errors.Is(err, dynamic.ErrInvalidName), errors.Is(err, dynamic.ErrInvalidValue):
		return http.StatusBadRequest, "invalid_value"
	case errors.Is(err, decisionlog.ErrInvalidQuery):
		return http.StatusBadRequest, "invalid_query"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// writeError answers with the envelope for err. Internal errors are logged
// and their message hidden.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		message = "an internal error occurred"
	}

	var details any
	var blocked *workspace.PublishBlockedError
	if errors.As(err, &blocked) {
		details = blocked.Failures
	}
	middleware.WriteError(w, status, code, message, details)
}

func badRequest(w http.ResponseWriter, message string) {
	middleware.WriteError(w, http.StatusBadRequest, "bad_request", message, nil)
}
