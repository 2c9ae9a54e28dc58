package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// GorillaDialer dials with github.com/gorilla/websocket.
type GorillaDialer struct {
	ReadLimit        int64
	HandshakeTimeout time.Duration
	Header           http.Header
	// PongWait > 0 fails Read when nothing (data, ping or pong) arrives for
	// that long. Pings from the server are answered and extend the deadline.
	PongWait time.Duration
}

const controlWriteWait = time.Second

func (d *GorillaDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := *websocket.DefaultDialer
	if d.HandshakeTimeout > 0 {
		dialer.HandshakeTimeout = d.HandshakeTimeout
	}
	c, resp, err := dialer.DialContext(ctx, url, d.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (http %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	if d.ReadLimit > 0 {
		c.SetReadLimit(d.ReadLimit)
	}
	gc := &gorillaConn{c: c, pongWait: d.PongWait}
	if d.PongWait > 0 {
		_ = c.SetReadDeadline(time.Now().Add(d.PongWait))
		c.SetPongHandler(func(string) error {
			return c.SetReadDeadline(time.Now().Add(d.PongWait))
		})
		c.SetPingHandler(func(appData string) error {
			if err := c.SetReadDeadline(time.Now().Add(d.PongWait)); err != nil {
				return err
			}
			err := c.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(controlWriteWait))
			if err == websocket.ErrCloseSent {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return nil
			}
			return err
		})
	}
	return gc, nil
}

type gorillaConn struct {
	c        *websocket.Conn
	pongWait time.Duration

	wmu       sync.Mutex // gorilla allows one concurrent writer
	closed    atomic.Bool
	closeOnce sync.Once
}

// Read does not watch ctx beyond its deadline; Close unblocks a pending Read.
func (g *gorillaConn) Read(ctx context.Context) (MessageType, []byte, error) {
	if dl, ok := ctx.Deadline(); ok {
		_ = g.c.SetReadDeadline(dl)
	} else if g.pongWait > 0 {
		_ = g.c.SetReadDeadline(time.Now().Add(g.pongWait))
	}
	typ, data, err := g.c.ReadMessage()
	if err != nil {
		var ce *websocket.CloseError
		if errors.As(err, &ce) {
			return 0, nil, fmt.Errorf("%w: code=%d %s", ErrClosed, ce.Code, ce.Text)
		}
		return 0, nil, closedErr(err, g.closed.Load())
	}
	if typ == websocket.BinaryMessage {
		return MessageBinary, data, nil
	}
	return MessageText, data, nil
}

func (g *gorillaConn) Write(ctx context.Context, typ MessageType, payload []byte) error {
	wt := websocket.TextMessage
	if typ == MessageBinary {
		wt = websocket.BinaryMessage
	}
	g.wmu.Lock()
	defer g.wmu.Unlock()
	if dl, ok := ctx.Deadline(); ok {
		_ = g.c.SetWriteDeadline(dl)
	} else {
		_ = g.c.SetWriteDeadline(time.Time{})
	}
	if err := g.c.WriteMessage(wt, payload); err != nil {
		return closedErr(err, g.closed.Load())
	}
	return nil
}

// Close sends a normal-closure frame if it can do so quickly, then drops the
// connection. Safe to call more than once.
func (g *gorillaConn) Close() error {
	var err error
	g.closeOnce.Do(func() {
		g.closed.Store(true)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = g.c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(100*time.Millisecond))
		err = g.c.Close()
	})
	return err
}
