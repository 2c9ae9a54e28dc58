package distributor

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed ends a subscription: the distributor shut down and the buffer
	// is drained, or the subscription itself was closed.
	ErrClosed = errors.New("distributor: subscription closed")
	// ErrEmpty is returned by TryRecv when nothing is buffered.
	ErrEmpty = errors.New("distributor: no message buffered")
)

// LaggedError tells a subscriber its buffer overflowed and Missed of the
// oldest messages were overwritten. It is reported once; the following
// receives continue with the retained messages.
type LaggedError struct {
	Missed uint64
}

func (e *LaggedError) Error() string {
	return fmt.Sprintf("distributor: subscriber lagged, %d messages missed", e.Missed)
}

// PublishError reports a subscription that could not take a message because
// it was already closed. The distributor removes it from the active set.
type PublishError struct {
	SubscriptionID string
	Err            error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("distributor: publish to %s: %v", e.SubscriptionID, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }
