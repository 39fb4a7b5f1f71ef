package domain

import "errors"

// Error kinds. Match them with errors.Is.
var (
	ErrValidation   = errors.New("validation")
	ErrConflict     = errors.New("conflict")
	ErrNotFound     = errors.New("not found")
	ErrAccessDenied = errors.New("access denied")
	ErrUnavailable  = errors.New("unavailable")
)

// Error carries a user-facing message next to its kind.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Is(target error) bool { return e.Kind == target }

func (e *Error) Unwrap() error { return e.Kind }

func Validation(msg string) error { return &Error{Kind: ErrValidation, Message: msg} }

func Conflict(msg string) error { return &Error{Kind: ErrConflict, Message: msg} }

func NotFound(msg string) error { return &Error{Kind: ErrNotFound, Message: msg} }

func AccessDenied() error { return &Error{Kind: ErrAccessDenied, Message: "Access denied"} }

// UserMessage returns the client-safe text of err, or fallback when err is
// not one of the domain kinds a client is allowed to see.
func UserMessage(err error, fallback string) string {
	var de *Error
	if errors.As(err, &de) && de.Kind != ErrUnavailable {
		return de.Message
	}
	return fallback
}
