package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinels classify failures independently of the layer that raised them.
// Domain and adapter errors unwrap to one of these so the HTTP edge can map
// them without importing the domain.
var (
	ErrNotFound       = errors.New("resource not found")
	ErrAlreadyExists  = errors.New("resource already exists")
	ErrInvalidInput   = errors.New("invalid input")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrConflict       = errors.New("conflict")
	ErrUnprocessable  = errors.New("unprocessable")
	ErrServiceUnavail = errors.New("service unavailable")
	ErrDependency     = errors.New("dependency failure")
)

type kind struct {
	sentinel error
	status   int
	code     string
}

// kinds is ordered by precedence. A dependency failure is matched first so a
// wrapped downstream cause never leaks its own status.
var kinds = []kind{
	{ErrDependency, http.StatusBadGateway, "DEPENDENCY_FAILURE"},
	{ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	{ErrAlreadyExists, http.StatusConflict, "ALREADY_EXISTS"},
	{ErrConflict, http.StatusConflict, "CONFLICT"},
	{ErrInvalidInput, http.StatusBadRequest, "INVALID_INPUT"},
	{ErrUnauthorized, http.StatusUnauthorized, "UNAUTHORIZED"},
	{ErrUnprocessable, http.StatusUnprocessableEntity, "UNPROCESSABLE"},
	{ErrServiceUnavail, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
}

var internalKind = kind{status: http.StatusInternalServerError, code: "INTERNAL_ERROR"}

func classify(err error) kind {
	for _, k := range kinds {
		if errors.Is(err, k.sentinel) {
			return k
		}
	}
	return internalKind
}

// AppError is an error with an explicit status, code and client message.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Code + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
}

func (e *AppError) Unwrap() error { return e.Err }

// ErrorCode lets AppError satisfy the same coded-error contract as domain errors.
func (e *AppError) ErrorCode() string { return e.Code }

func newAppError(sentinel error, message string) *AppError {
	k := classify(sentinel)
	return &AppError{Code: k.code, Message: message, Status: k.status, Err: sentinel}
}

// NotFound reports a missing resource as 404.
func NotFound(resource, id string) *AppError {
	return newAppError(ErrNotFound, fmt.Sprintf("%s with id %s not found", resource, id))
}

// Unauthorized reports a missing or unusable caller identity as 401.
func Unauthorized(message string) *AppError {
	return newAppError(ErrUnauthorized, message)
}

// HTTPStatus returns the response status for err. An AppError keeps its own
// status unless a dependency failure is also in the chain.
func HTTPStatus(err error) int {
	if errors.Is(err, ErrDependency) {
		return http.StatusBadGateway
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return classify(err).status
}

// Code returns the machine-readable code of err: its own when it implements
// ErrorCode, otherwise the code of its sentinel.
func Code(err error) string {
	var coded interface{ ErrorCode() string }
	if errors.As(err, &coded) {
		return coded.ErrorCode()
	}
	return classify(err).code
}

// Details returns the structured details of err when it carries any.
func Details(err error) map[string]any {
	var detailed interface{ ErrorDetails() map[string]any }
	if errors.As(err, &detailed) {
		return detailed.ErrorDetails()
	}
	return nil
}
