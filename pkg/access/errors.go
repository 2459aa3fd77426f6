package access

import (
	"errors"
	"net/http"
)

// NotFoundError indicates the requested form does not exist, or that the
// caller must be told it does not exist. Entry points answer it with 404.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string {
	return e.Message
}

// AccessDeniedError indicates the caller is known to the organization but
// holds an insufficient permission level. Entry points answer it with 403.
type AccessDeniedError struct {
	Message string
}

func (e *AccessDeniedError) Error() string {
	return e.Message
}

// ValidationError indicates malformed or contradictory input, including
// attempts to mutate the owner's access. Entry points answer it with 400.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ErrFormNotFound is the canonical missing-form error. It is also the answer
// given to callers outside the form's organization, so that a denied caller
// cannot distinguish a form they may not see from one that does not exist.
func ErrFormNotFound() error {
	return &NotFoundError{Message: "form not found"}
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsAccessDenied reports whether err is (or wraps) an AccessDeniedError.
func IsAccessDenied(err error) bool {
	var ad *AccessDeniedError
	return errors.As(err, &ad)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// HTTPStatus maps an engine error onto the status code the transport layer
// should answer with. Unknown errors map to 500.
func HTTPStatus(err error) int {
	switch {
	case IsNotFound(err):
		return http.StatusNotFound
	case IsAccessDenied(err):
		return http.StatusForbidden
	case IsValidation(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
