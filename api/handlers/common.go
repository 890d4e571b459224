package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/Mathews-Tom/SubLLM/api"
	"github.com/Mathews-Tom/SubLLM/types"
)

// WriteJSON writes data as a JSON response body.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteError maps a typed error onto its HTTP status and writes the error
// body. Untyped errors become 500 INTERNAL_ERROR.
func WriteError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var typed *types.Error
	if !errors.As(err, &typed) {
		typed = types.NewError(types.ErrInternalError, "internal error").WithCause(err)
	}

	status := statusForCode(typed.Code)
	if logger != nil {
		logger.Warn("API error",
			zap.String("code", string(typed.Code)),
			zap.String("message", typed.Message),
			zap.Int("status", status),
			zap.Bool("retryable", typed.Retryable),
		)
	}

	WriteJSON(w, status, api.ErrorResponse{Error: ErrorDetail(typed)})
}

// ErrorDetail converts a typed error into its wire form.
func ErrorDetail(e *types.Error) api.ErrorDetail {
	return api.ErrorDetail{
		Code:      string(e.Code),
		Message:   e.Message,
		Backend:   e.Backend,
		Model:     e.Model,
		Retryable: e.Retryable,
	}
}

// statusForCode maps the error taxonomy onto HTTP statuses. Backend
// execution failures surface as 502: the proxy is fine, the upstream CLI
// is not.
func statusForCode(code types.ErrorCode) int {
	switch code {
	case types.ErrInvalidRequest:
		return http.StatusBadRequest
	case types.ErrUnknownBackend, types.ErrUnknownModelAlias:
		return http.StatusNotFound
	case types.ErrAuthNotConfigured:
		return http.StatusUnauthorized
	case types.ErrTimeout:
		return http.StatusGatewayTimeout
	case types.ErrSpawnFailure, types.ErrAbnormalExit, types.ErrMalformedOutput,
		types.ErrBrokenPipe, types.ErrPartialStream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// DecodeJSONBody decodes the request body into dst, writing the error
// response itself on failure.
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst any, logger *zap.Logger) error {
	if r.Body == nil {
		err := types.NewError(types.ErrInvalidRequest, "request body is empty")
		WriteError(w, err, logger)
		return err
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		apiErr := types.NewError(types.ErrInvalidRequest, "invalid JSON body").WithCause(err)
		WriteError(w, apiErr, logger)
		return apiErr
	}
	return nil
}

// RequireMethod writes 405 and returns false when the method mismatches.
func RequireMethod(w http.ResponseWriter, r *http.Request, method string, logger *zap.Logger) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		err := types.Errorf(types.ErrInvalidRequest, "method %s not allowed", r.Method)
		WriteJSON(w, http.StatusMethodNotAllowed, api.ErrorResponse{Error: ErrorDetail(err)})
		return false
	}
	return true
}

// ResponseWriter wraps http.ResponseWriter to capture the status code for
// logging and metrics middleware.
type ResponseWriter struct {
	http.ResponseWriter
	StatusCode int
	Written    bool
}

// NewResponseWriter wraps w with a 200 default status.
func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	return &ResponseWriter{ResponseWriter: w, StatusCode: http.StatusOK}
}

// WriteHeader records the first status code written.
func (rw *ResponseWriter) WriteHeader(code int) {
	if !rw.Written {
		rw.StatusCode = code
		rw.Written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

// Write marks the response as written.
func (rw *ResponseWriter) Write(b []byte) (int, error) {
	if !rw.Written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// Flush forwards to the underlying flusher so SSE works through the wrapper.
func (rw *ResponseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
