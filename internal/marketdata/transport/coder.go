package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
)

// CoderDialer dials with github.com/coder/websocket.
type CoderDialer struct {
	ReadLimit int64
	// HandshakeTimeout > 0 bounds the opening handshake on top of ctx.
	HandshakeTimeout time.Duration
	Header           http.Header
}

func (d *CoderDialer) Dial(ctx context.Context, url string) (Conn, error) {
	if d.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.HandshakeTimeout)
		defer cancel()
	}
	c, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: d.Header})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	if d.ReadLimit > 0 {
		c.SetReadLimit(d.ReadLimit)
	}
	return &coderConn{c: c}, nil
}

type coderConn struct {
	c         *websocket.Conn
	closed    atomic.Bool
	closeOnce sync.Once
}

func (cc *coderConn) Read(ctx context.Context) (MessageType, []byte, error) {
	typ, data, err := cc.c.Read(ctx)
	if err != nil {
		if code := websocket.CloseStatus(err); code != -1 {
			return 0, nil, fmt.Errorf("%w: code=%d", ErrClosed, code)
		}
		if ctx.Err() != nil && !cc.closed.Load() {
			return 0, nil, ctx.Err()
		}
		return 0, nil, closedErr(err, cc.closed.Load())
	}
	if typ == websocket.MessageBinary {
		return MessageBinary, data, nil
	}
	return MessageText, data, nil
}

func (cc *coderConn) Write(ctx context.Context, typ MessageType, payload []byte) error {
	wt := websocket.MessageText
	if typ == MessageBinary {
		wt = websocket.MessageBinary
	}
	if err := cc.c.Write(ctx, wt, payload); err != nil {
		return closedErr(err, cc.closed.Load())
	}
	return nil
}

// Close tears the connection down without waiting for the close handshake.
func (cc *coderConn) Close() error {
	var err error
	cc.closeOnce.Do(func() {
		cc.closed.Store(true)
		err = cc.c.CloseNow()
	})
	return err
}
