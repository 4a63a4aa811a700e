package service

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidTicket marks input the ticket service refuses to store.
var ErrInvalidTicket = errors.New("invalid ticket")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidTicket, fmt.Sprintf(format, args...))
}

// DispatchFailure is one recipient whose digest could not be delivered.
type DispatchFailure struct {
	Recipient string
	Tickets   int
	Err       error
}

// DispatchErrors aggregates per-recipient failures of a fan-out run. The
// digests of every other recipient were still attempted.
type DispatchErrors struct {
	Attempted int
	Failures  []DispatchFailure
}

func (e *DispatchErrors) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.Recipient, f.Err))
	}
	return fmt.Sprintf("%d of %d digests failed: %s", len(e.Failures), e.Attempted, strings.Join(parts, "; "))
}

// Unwrap exposes the individual dispatch errors to errors.Is and errors.As.
func (e *DispatchErrors) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}
