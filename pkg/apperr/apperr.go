// Package apperr holds the error taxonomy shared by the catalog engine and
// its HTTP/CLI surfaces.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrExhaustedOptions means every cover candidate for a game has already
// been tried.
var ErrExhaustedOptions = errors.New("no more cover options")

// ValidationError rejects malformed input before any work starts.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Msg
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Msg)
}

// ProviderError wraps a failed call to an external service.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ConflictError is returned when a job of the same type is already running.
// Progress carries the running job's latest snapshot.
type ConflictError struct {
	Job      string
	Progress any
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("job %s already running", e.Job)
}

// NotFoundError reports an id that does not exist.
type NotFoundError struct {
	Kind string
	ID   any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Kind, e.ID)
}

func NotFound(kind string, id any) error {
	return &NotFoundError{Kind: kind, ID: id}
}

func Validation(field, msg string) error {
	return &ValidationError{Field: field, Msg: msg}
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// HTTPStatus maps an error from the taxonomy to a response status.
func HTTPStatus(err error) int {
	var (
		ve *ValidationError
		nf *NotFoundError
		ce *ConflictError
		pe *ProviderError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.As(err, &nf):
		return http.StatusNotFound
	case errors.As(err, &ce):
		return http.StatusConflict
	case errors.Is(err, ErrExhaustedOptions):
		return http.StatusGone
	case errors.As(err, &pe):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
