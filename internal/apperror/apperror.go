// Package apperror defines the error taxonomy shared by services and HTTP handlers.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType categorises an application error.
type ErrorType int

const (
	// InternalError is an unexpected or storage failure.
	InternalError ErrorType = iota
	// ValidationError is missing or invalid input.
	ValidationError
	// UnauthenticatedError is a missing or unresolvable credential.
	UnauthenticatedError
	// InvalidCredentialError is a bad signature, an expired token or a login mismatch.
	InvalidCredentialError
	// ForbiddenError is an authenticated actor touching a resource it does not own.
	ForbiddenError
	// NotFoundError is a referenced entity that does not exist.
	NotFoundError
	// ConflictError is a duplicate registration, follow or retweet.
	ConflictError
	// SelfReferenceError is a follow/unfollow aimed at the acting user.
	SelfReferenceError
	// BadRequestError is a request that is well-formed but not applicable.
	BadRequestError
	// UnsupportedMediaTypeError is an upload outside the accepted image types.
	UnsupportedMediaTypeError
	// PayloadTooLargeError is an upload over the size limit.
	PayloadTooLargeError
	// RateLimitedError is a client over its request budget.
	RateLimitedError
)

// AppError carries a client-facing message and an optional underlying error.
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status code for the error type.
func (e *AppError) StatusCode() int {
	switch e.Type {
	case ValidationError, InvalidCredentialError, ConflictError, SelfReferenceError,
		BadRequestError, UnsupportedMediaTypeError, PayloadTooLargeError:
		return http.StatusBadRequest
	case UnauthenticatedError:
		return http.StatusUnauthorized
	case ForbiddenError:
		return http.StatusForbidden
	case NotFoundError:
		return http.StatusNotFound
	case RateLimitedError:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// ErrorResponse is the JSON body of every error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ToResponse exposes only the message, never the wrapped error.
func (e *AppError) ToResponse() ErrorResponse {
	return ErrorResponse{Error: e.Message}
}

func New(errType ErrorType, message string, err error) *AppError {
	return &AppError{Type: errType, Message: message, Err: err}
}

func NewInternal(message string, err error) *AppError {
	return New(InternalError, message, err)
}

func NewValidation(message string, err error) *AppError {
	return New(ValidationError, message, err)
}

func NewUnauthenticated(message string) *AppError {
	return New(UnauthenticatedError, message, nil)
}

func NewInvalidCredential(message string, err error) *AppError {
	return New(InvalidCredentialError, message, err)
}

func NewForbidden(message string) *AppError {
	return New(ForbiddenError, message, nil)
}

func NewNotFound(message string) *AppError {
	return New(NotFoundError, message, nil)
}

func NewConflict(message string) *AppError {
	return New(ConflictError, message, nil)
}

func NewSelfReference(message string) *AppError {
	return New(SelfReferenceError, message, nil)
}

func NewBadRequest(message string) *AppError {
	return New(BadRequestError, message, nil)
}

func NewUnsupportedMediaType(message string) *AppError {
	return New(UnsupportedMediaTypeError, message, nil)
}

func NewPayloadTooLarge(message string) *AppError {
	return New(PayloadTooLargeError, message, nil)
}

func NewRateLimited(message string) *AppError {
	return New(RateLimitedError, message, nil)
}

// From returns the first *AppError in err's chain.
func From(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Is reports whether err's chain holds an *AppError of the given type.
func Is(err error, errType ErrorType) bool {
	appErr, ok := From(err)
	return ok && appErr.Type == errType
}
