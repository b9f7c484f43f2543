package verdant_errors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for retry and propagation decisions.
type Kind int

const (
	KindNetwork Kind = iota // transient transport failure, retryable
	KindAuth                // session invalid, propagate for re-login
	KindValidation
	KindNotFound
)

// Common errors
var (
	ErrNetwork      = errors.New("network failure")
	ErrAuth         = errors.New("session expired")
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrEmptyMessage = errors.New("message has no content or attachments")
	ErrTooLarge     = errors.New("attachment too large")
)

// Error carries a taxonomy kind alongside the underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Network wraps err as a transient transport failure.
func Network(op string, err error) error {
	if err == nil {
		err = ErrNetwork
	}
	return &Error{Kind: KindNetwork, Op: op, Err: err}
}

// Auth wraps err as an expired or rejected session.
func Auth(op string, err error) error {
	if err == nil {
		err = ErrAuth
	}
	return &Error{Kind: KindAuth, Op: op, Err: err}
}

// Validation wraps err as a caller mistake.
func Validation(op string, err error) error {
	if err == nil {
		err = ErrInvalidInput
	}
	return &Error{Kind: KindValidation, Op: op, Err: err}
}

// NotFound wraps err as a missing entity.
func NotFound(op string, err error) error {
	if err == nil {
		err = ErrNotFound
	}
	return &Error{Kind: KindNotFound, Op: op, Err: err}
}

func kindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// IsNetwork reports whether err is a transient transport failure.
func IsNetwork(err error) bool {
	if k, ok := kindOf(err); ok {
		return k == KindNetwork
	}
	return errors.Is(err, ErrNetwork)
}

// IsAuth reports whether err means the session must be re-established.
func IsAuth(err error) bool {
	if k, ok := kindOf(err); ok {
		return k == KindAuth
	}
	return errors.Is(err, ErrAuth)
}

func IsValidation(err error) bool {
	if k, ok := kindOf(err); ok {
		return k == KindValidation
	}
	return errors.Is(err, ErrInvalidInput)
}

func IsNotFound(err error) bool {
	if k, ok := kindOf(err); ok {
		return k == KindNotFound
	}
	return errors.Is(err, ErrNotFound)
}
