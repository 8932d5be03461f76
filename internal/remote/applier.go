// Package remote defines the boundary to the hosted backend. The core does
// not assume any transport; it only requires that each call succeeds or
// fails distinguishably, and that failures carry a retryability flag.
package remote

import (
	"context"
	"errors"
	"fmt"
)

// Applier applies replayed mutations against the remote backend.
type Applier interface {
	Create(ctx context.Context, entityType, id string, payload []byte) error
	Update(ctx context.Context, entityType, id string, payload []byte) error
	Delete(ctx context.Context, entityType, id string) error
}

// Error is a failure reported by the remote backend.
type Error struct {
	Code      string
	Message   string
	Retryable bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("remote %s: %s", e.Code, e.Message)
}

// IsRetryable reports whether the error may succeed on a later attempt.
// Errors that are not *Error (plain network failures, timeouts) are treated
// as retryable; only an explicit non-retryable signal drops an action early.
func IsRetryable(err error) bool {
	var re *Error
	if errors.As(err, &re) {
		return re.Retryable
	}
	return true
}
