package transport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoServer echoes frames back; a text frame "bye" makes it close normally.
func echoServer(t *testing.T) string {
	t.Helper()
	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		for {
			typ, data, err := c.ReadMessage()
			if err != nil {
				return
			}
			if string(data) == "bye" {
				_ = c.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"))
				return
			}
			if err := c.WriteMessage(typ, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dialers() map[string]Dialer {
	return map[string]Dialer{
		Gorilla: &GorillaDialer{ReadLimit: 1 << 20},
		Coder:   &CoderDialer{ReadLimit: 1 << 20},
	}
}

func TestConn_EchoAndServerClose(t *testing.T) {
	url := echoServer(t)
	for name, d := range dialers() {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			c, err := d.Dial(ctx, url)
			require.NoError(t, err)
			defer c.Close()

			require.NoError(t, c.Write(ctx, MessageText, []byte(`{"type":"Heartbeat"}`)))
			typ, data, err := c.Read(ctx)
			require.NoError(t, err)
			assert.Equal(t, MessageText, typ)
			assert.Equal(t, `{"type":"Heartbeat"}`, string(data))

			require.NoError(t, c.Write(ctx, MessageBinary, []byte{1, 2, 3}))
			typ, data, err = c.Read(ctx)
			require.NoError(t, err)
			assert.Equal(t, MessageBinary, typ)
			assert.Equal(t, []byte{1, 2, 3}, data)

			require.NoError(t, c.Write(ctx, MessageText, []byte("bye")))
			_, _, err = c.Read(ctx)
			assert.ErrorIs(t, err, ErrClosed)
		})
	}
}

func TestConn_LocalCloseUnblocksRead(t *testing.T) {
	url := echoServer(t)
	for name, d := range dialers() {
		t.Run(name, func(t *testing.T) {
			c, err := d.Dial(context.Background(), url)
			require.NoError(t, err)

			errCh := make(chan error, 1)
			go func() {
				_, _, err := c.Read(context.Background())
				errCh <- err
			}()
			time.Sleep(20 * time.Millisecond)
			_ = c.Close()
			assert.NotPanics(t, func() { _ = c.Close() })

			select {
			case err := <-errCh:
				assert.ErrorIs(t, err, ErrClosed)
			case <-time.After(2 * time.Second):
				t.Fatal("Read not unblocked by Close")
			}
		})
	}
}

func TestDial_Refused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	for name, d := range dialers() {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_, err := d.Dial(ctx, url)
			require.Error(t, err)
			assert.False(t, errors.Is(err, ErrClosed))
		})
	}
}

func TestNewDialer(t *testing.T) {
	opt := Options{ReadLimit: 10, HandshakeTimeout: time.Second, PongWait: 30 * time.Second}
	d, err := NewDialer("", opt)
	require.NoError(t, err)
	assert.Equal(t, &GorillaDialer{ReadLimit: 10, HandshakeTimeout: time.Second, PongWait: 30 * time.Second}, d)

	d, err = NewDialer("CODER", opt)
	require.NoError(t, err)
	assert.Equal(t, &CoderDialer{ReadLimit: 10, HandshakeTimeout: time.Second}, d)

	_, err = NewDialer("quic", Options{})
	assert.Error(t, err)
}

// pingServer sends only pings for quiet, then one text frame. It counts the
// pongs it gets back.
func pingServer(t *testing.T, every, quiet time.Duration, pongs *atomic.Int32) string {
	t.Helper()
	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		c.SetPongHandler(func(string) error { pongs.Add(1); return nil })
		go func() {
			for {
				if _, _, err := c.ReadMessage(); err != nil {
					return
				}
			}
		}()

		tick := time.NewTicker(every)
		defer tick.Stop()
		end := time.After(quiet)
		for {
			select {
			case <-tick.C:
				if err := c.WriteControl(websocket.PingMessage, []byte("hb"), time.Now().Add(time.Second)); err != nil {
					return
				}
			case <-end:
				_ = c.WriteMessage(websocket.TextMessage, []byte("hello"))
				time.Sleep(100 * time.Millisecond)
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestGorilla_PingsExtendReadDeadline(t *testing.T) {
	var pongs atomic.Int32
	url := pingServer(t, 50*time.Millisecond, 600*time.Millisecond, &pongs)

	d := &GorillaDialer{PongWait: 200 * time.Millisecond}
	c, err := d.Dial(context.Background(), url)
	require.NoError(t, err)
	defer c.Close()

	typ, data, err := c.Read(context.Background())
	require.NoError(t, err, "pings alone must keep the connection alive")
	assert.Equal(t, MessageText, typ)
	assert.Equal(t, "hello", string(data))
	assert.GreaterOrEqual(t, pongs.Load(), int32(5))
}

func TestGorilla_SilentUpstreamTimesOut(t *testing.T) {
	var pongs atomic.Int32
	url := pingServer(t, time.Hour, 2*time.Second, &pongs)

	d := &GorillaDialer{PongWait: 100 * time.Millisecond}
	c, err := d.Dial(context.Background(), url)
	require.NoError(t, err)
	defer c.Close()

	start := time.Now()
	_, _, err = c.Read(context.Background())
	require.Error(t, err)
	var ne net.Error
	require.True(t, errors.As(err, &ne), "%v", err)
	assert.True(t, ne.Timeout())
	assert.Less(t, time.Since(start), time.Second)
}

func TestMessageType_String(t *testing.T) {
	assert.Equal(t, "text", MessageText.String())
	assert.Equal(t, "binary", MessageBinary.String())
	assert.Equal(t, "unknown", MessageType(9).String())
}
