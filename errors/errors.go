package errors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("NOT FOUND")
	ErrInvalidInput = errors.New("INVALID INPUT")
	ErrAuth         = errors.New("UNAUTHORIZED")
	ErrConflict     = errors.New("CONFLICT")
	ErrDependency   = errors.New("DEPENDENCY")
	ErrInternal     = errors.New("INTERNAL")
)

// ErrorResponse carries a sentinel code plus the message shown to the client.
// It unwraps to its code so errors.Is works on wrapped and bare values alike.
type ErrorResponse struct {
	Code    error  `json:"-"`
	Message string `json:"message"`
}

func (e ErrorResponse) Error() string {
	return fmt.Sprintf("code: %v, message: %s", e.Code, e.Message)
}

func (e ErrorResponse) Unwrap() error {
	return e.Code
}
