package api

import (
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
)

// AppError is an error with a user-facing status and message. Context holds
// extra fields merged into the JSON body (usage counters, tier names).
type AppError struct {
	Code    int
	Message string
	Context map[string]any
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// With returns a copy of e carrying the given context fields.
func (e *AppError) With(ctx map[string]any) *AppError {
	cp := *e
	cp.Context = ctx
	return &cp
}

// WithMessage returns a copy of e with a different user-facing message.
func (e *AppError) WithMessage(msg string) *AppError {
	cp := *e
	cp.Message = msg
	return &cp
}

// Wrap returns a copy of e that records cause for logs.
func (e *AppError) Wrap(cause error) *AppError {
	cp := *e
	cp.Err = cause
	return &cp
}

var (
	ErrBadRequest         = &AppError{Code: http.StatusBadRequest, Message: "bad request"}
	ErrUnauthorized       = &AppError{Code: http.StatusUnauthorized, Message: "authentication required"}
	ErrForbidden          = &AppError{Code: http.StatusForbidden, Message: "forbidden"}
	ErrNotFound           = &AppError{Code: http.StatusNotFound, Message: "not found"}
	ErrConflict           = &AppError{Code: http.StatusConflict, Message: "conflict"}
	ErrTooManyRequests    = &AppError{Code: http.StatusTooManyRequests, Message: "too many requests, try again in a minute"}
	ErrInternalServer     = &AppError{Code: http.StatusInternalServerError, Message: "internal server error"}
	ErrServiceUnavailable = &AppError{Code: http.StatusServiceUnavailable, Message: "service unavailable"}
	ErrInvalidCredentials = &AppError{Code: http.StatusUnauthorized, Message: "invalid email or password"}
	ErrEmailAlreadyExists = &AppError{Code: http.StatusConflict, Message: "email already registered"}
	ErrValidation         = &AppError{Code: http.StatusBadRequest, Message: "validation error"}
)

func NewBadRequestError(msg string) *AppError {
	return &AppError{Code: http.StatusBadRequest, Message: msg}
}

func NewNotFoundError(msg string) *AppError {
	return &AppError{Code: http.StatusNotFound, Message: msg}
}

func NewConflictError(msg string) *AppError {
	return &AppError{Code: http.StatusConflict, Message: msg}
}

func NewValidationError(msg string) *AppError {
	return &AppError{Code: http.StatusBadRequest, Message: msg}
}

var exposeDetail atomic.Bool

// ExposeErrorDetail controls whether 500 responses include the underlying
// error text. Only development deployments turn it on.
func ExposeErrorDetail(on bool) {
	exposeDetail.Store(on)
}

// Resolve maps err onto an AppError, falling back to a generic 500.
func Resolve(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return ErrInternalServer.Wrap(err)
}

func HandleError(w http.ResponseWriter, err error) {
	appErr := Resolve(err)

	body := make(map[string]any, len(appErr.Context)+3)
	for k, v := range appErr.Context {
		body[k] = v
	}
	body["success"] = false
	body["message"] = appErr.Message

	if appErr.Code >= http.StatusInternalServerError {
		slog.Error("request failed", "status", appErr.Code, "error", err)
		if exposeDetail.Load() && appErr.Err != nil {
			body["error"] = appErr.Err.Error()
		}
	}

	writeJSON(w, appErr.Code, body)
}
