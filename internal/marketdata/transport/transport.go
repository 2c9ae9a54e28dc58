// Package transport hides which websocket library carries the upstream feed.
// Both implementations answer pings on their own while Read is running.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"
)

type MessageType int

const (
	MessageText   MessageType = 1
	MessageBinary MessageType = 2
)

func (t MessageType) String() string {
	switch t {
	case MessageText:
		return "text"
	case MessageBinary:
		return "binary"
	default:
		return "unknown"
	}
}

// ErrClosed is returned (wrapped) by Read once the peer sent a close frame,
// the stream hit EOF, or Close was called locally.
var ErrClosed = errors.New("transport: connection closed")

// Conn is one upstream websocket connection. Read is called from a single
// goroutine; Write and Close may be called from any goroutine.
type Conn interface {
	Read(ctx context.Context) (MessageType, []byte, error)
	Write(ctx context.Context, typ MessageType, payload []byte) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

const (
	Gorilla = "gorilla"
	Coder   = "coder"
)

// Options are the dial settings shared by both implementations. Zero values
// keep the library defaults.
type Options struct {
	ReadLimit        int64
	HandshakeTimeout time.Duration
	// PongWait only applies to gorilla; coder answers pings on its own.
	PongWait time.Duration
}

// NewDialer picks an implementation by name ("" means gorilla).
func NewDialer(name string, opt Options) (Dialer, error) {
	switch strings.ToLower(name) {
	case "", Gorilla:
		return &GorillaDialer{ReadLimit: opt.ReadLimit, HandshakeTimeout: opt.HandshakeTimeout, PongWait: opt.PongWait}, nil
	case Coder:
		return &CoderDialer{ReadLimit: opt.ReadLimit, HandshakeTimeout: opt.HandshakeTimeout}, nil
	default:
		return nil, fmt.Errorf("transport: unknown dialer %q", name)
	}
}

// closedErr maps the end-of-stream errors both libraries produce onto ErrClosed.
func closedErr(err error, locallyClosed bool) error {
	if err == nil {
		return nil
	}
	if locallyClosed || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return err
}
