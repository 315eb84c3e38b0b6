package http

import (
	"context"
	"errors"
	"net/http"

	"flowmoney/internal/core"
	flowlog "flowmoney/internal/log"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// classify maps the error taxonomy to a status, a stable code and the
// message shown to the client. Unclassified errors hide their text.
func classify(err error) (status int, detail errorDetail) {
	var verr *core.ValidationError
	var ierr *core.IntegrityError
	switch {
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity, errorDetail{Code: "validation", Message: verr.Message, Field: verr.Field}
	case errors.As(err, &ierr):
		return http.StatusConflict, errorDetail{Code: "integrity", Message: ierr.Reason}
	case errors.Is(err, core.ErrUnauthorized):
		return http.StatusUnauthorized, errorDetail{Code: "unauthorized", Message: "authentication required"}
	case errors.Is(err, core.ErrProRequired):
		return http.StatusPaymentRequired, errorDetail{Code: "pro_required", Message: core.ErrProRequired.Error()}
	case errors.Is(err, core.ErrValidation):
		return http.StatusUnprocessableEntity, errorDetail{Code: "validation", Message: err.Error()}
	case errors.Is(err, core.ErrIntegrity):
		return http.StatusConflict, errorDetail{Code: "integrity", Message: err.Error()}
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, errorDetail{Code: "not_found", Message: "resource not found"}
	case errors.Is(err, core.ErrTransientStore), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, errorDetail{Code: "unavailable", Message: "service temporarily unavailable, retry later"}
	default:
		return http.StatusInternalServerError, errorDetail{Code: "internal", Message: "internal error"}
	}
}

func errorType(status int) string {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return flowlog.ErrorTypeAuth
	case http.StatusPaymentRequired:
		return flowlog.ErrorTypeProRequired
	case http.StatusUnprocessableEntity, http.StatusBadRequest:
		return flowlog.ErrorTypeValidation
	case http.StatusNotFound:
		return flowlog.ErrorTypeNotFound
	case http.StatusConflict:
		return flowlog.ErrorTypeConflict
	case http.StatusServiceUnavailable:
		return flowlog.ErrorTypeUnavailable
	default:
		return flowlog.ErrorTypeInternal
	}
}

// writeError renders err as the JSON error envelope. Server-side failures
// are logged with the full error chain.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, component, op string, err error) {
	status, detail := classify(err)
	if status >= http.StatusInternalServerError {
		fields := flowlog.NewFields().WithErrorType(errorType(status))
		if id, ok := identityFrom(r); ok {
			fields.WithUser(id.UserID)
		}
		s.errLog.LogError(r.Context(), "Request failed", err, component, op, fields)
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	NewJSONResponse().Status(status).Data(errorBody{Error: detail}).Write(w)
}

func writeErrorCode(w http.ResponseWriter, status int, code, message, field string) {
	NewJSONResponse().
		Status(status).
		Data(errorBody{Error: errorDetail{Code: code, Message: message, Field: field}}).
		Write(w)
}
