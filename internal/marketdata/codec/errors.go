package codec

import (
	"errors"
	"fmt"
)

var (
	ErrMalformed    = errors.New("codec: malformed payload")
	ErrMissingType  = errors.New("codec: missing type discriminator")
	ErrUnknownType  = errors.New("codec: unknown message type")
	ErrMissingField = errors.New("codec: missing field")
	ErrInvalidField = errors.New("codec: invalid field")
	ErrUnencodable  = errors.New("codec: message cannot be encoded")
)

const maxPayloadInErr = 512

// DecodeError carries the offending payload and why it was rejected.
// Err is one of the sentinels above so callers can errors.Is on it.
type DecodeError struct {
	Payload []byte
	Reason  string
	Err     error
}

func (e *DecodeError) Error() string {
	p := e.Payload
	if len(p) > maxPayloadInErr {
		p = p[:maxPayloadInErr]
	}
	return fmt.Sprintf("%s (payload=%q)", e.Reason, p)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Label is a short, bounded-cardinality name for metrics.
func (e *DecodeError) Label() string {
	switch {
	case errors.Is(e.Err, ErrMalformed):
		return "malformed"
	case errors.Is(e.Err, ErrMissingType):
		return "missing_type"
	case errors.Is(e.Err, ErrUnknownType):
		return "unknown_type"
	case errors.Is(e.Err, ErrMissingField):
		return "missing_field"
	case errors.Is(e.Err, ErrInvalidField):
		return "invalid_field"
	default:
		return "other"
	}
}

func newDecodeError(payload []byte, err error) *DecodeError {
	cp := make([]byte, len(payload))
	copy(cp, payload)
	return &DecodeError{Payload: cp, Reason: err.Error(), Err: err}
}
