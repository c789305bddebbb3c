package syncerr

import (
	"context"
	"errors"
	"fmt"
	"net"
)

type Kind int

const (
	KindUnknown Kind = iota
	// KindConfiguration: no provider or ledger account connected.
	KindConfiguration
	// KindValidation: required source data is missing.
	KindValidation
	// KindUpstream: Stripe or QBO answered non-2xx or could not be reached.
	KindUpstream
	// KindPartial: the primary document was written, a follow-up was not.
	KindPartial
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindValidation:
		return "validation"
	case KindUpstream:
		return "upstream"
	case KindPartial:
		return "partial"
	}
	return "unknown"
}

var (
	// ErrDuplicate ends processing as skipped: the event was already synced.
	ErrDuplicate = errors.New("event already synchronized")
	// ErrBusy means another worker holds the event; try again later.
	ErrBusy = errors.New("event is being processed by another worker")
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
	Detail  map[string]any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Configuration(format string, args ...any) *Error {
	return &Error{Kind: KindConfiguration, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Upstream wraps a failed Stripe or QBO call.
func Upstream(err error, format string, args ...any) *Error {
	return &Error{Kind: KindUpstream, Message: fmt.Sprintf(format, args...), Err: err}
}

func Partial(err error, format string, args ...any) *Error {
	return &Error{Kind: KindPartial, Message: fmt.Sprintf(format, args...), Err: err}
}

// WithDetail attaches diagnostic values recorded in sync history.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Detail == nil {
		e.Detail = make(map[string]any)
	}
	e.Detail[key] = value
	return e
}

func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}

type temporary interface {
	Temporary() bool
}

// Retryable reports whether a failed attempt should be queued again.
// Validation, configuration and partial failures are final, as are
// upstream answers that are not temporary. Anything unclassified, such as
// a storage error, is retried.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrBusy) {
		return true
	}
	switch KindOf(err) {
	case KindValidation, KindConfiguration, KindPartial:
		return false
	}
	if errors.Is(err, ErrDuplicate) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var tmp temporary
	if errors.As(err, &tmp) {
		return tmp.Temporary()
	}
	return true
}
