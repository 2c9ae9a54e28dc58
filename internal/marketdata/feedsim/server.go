// Package feedsim is a stand-in upstream venue: a websocket endpoint that
// waits for the subscribe request and then streams market data.
package feedsim

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"mdstream.com/internal/marketdata/codec"
	"mdstream.com/internal/marketdata/model"
	"mdstream.com/pkg/logger"
)

// Frame is one scripted server write.
type Frame struct {
	Payload []byte
	Binary  bool
	Delay   time.Duration // wait before sending
}

func Msg(m model.Message) Frame { return Frame{Payload: codec.MustEncode(m)} }

func Raw(s string) Frame { return Frame{Payload: []byte(s)} }

// Server streams Script to every connection that subscribes. With no script
// it streams Generator output every Interval until the client leaves.
type Server struct {
	Script []Frame
	// CloseAfterScript sends a normal close frame once the script is written.
	CloseAfterScript bool

	Symbols  []string
	Seed     int64
	Interval time.Duration

	// SkipSubscribe starts streaming without waiting for the subscribe request.
	SkipSubscribe bool

	conns  atomic.Int64
	active atomic.Int64

	mu   sync.Mutex
	subs [][]string
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	c, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer c.Close()
	s.conns.Add(1)
	s.active.Add(1)
	defer s.active.Add(-1)

	var channels []string
	if !s.SkipSubscribe {
		_, first, err := c.ReadMessage()
		if err != nil {
			return
		}
		channels, err = codec.DecodeSubscribe(first)
		if err != nil {
			logger.Warn(r.Context(), "feedsim: bad subscribe", zap.Error(err))
			return
		}
		s.mu.Lock()
		s.subs = append(s.subs, channels)
		s.mu.Unlock()
	}

	// Drain reads so control frames are processed and a client close is seen.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := c.NextReader(); err != nil {
				return
			}
		}
	}()

	if len(s.Script) > 0 || s.CloseAfterScript {
		for _, f := range s.Script {
			if !sleepCtx(ctx, f.Delay) {
				return
			}
			typ := websocket.TextMessage
			if f.Binary {
				typ = websocket.BinaryMessage
			}
			if err := c.WriteMessage(typ, f.Payload); err != nil {
				return
			}
		}
		if s.CloseAfterScript {
			_ = c.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "end of script"),
				time.Now().Add(time.Second))
			return
		}
		<-ctx.Done()
		return
	}

	s.stream(ctx, c, channels)
}

func (s *Server) stream(ctx context.Context, c *websocket.Conn, channels []string) {
	gen := NewGenerator(s.Symbols, s.Seed)
	interval := s.Interval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b, err := codec.Encode(gen.NextFor(channels))
			if err != nil {
				continue
			}
			if err := c.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		}
	}
}

// Connections is how many websocket handshakes completed so far.
func (s *Server) Connections() int { return int(s.conns.Load()) }

// Active is how many connections are currently open.
func (s *Server) Active() int { return int(s.active.Load()) }

// Subscriptions returns the channel lists received, one per connection.
func (s *Server) Subscriptions() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]string, len(s.subs))
	copy(out, s.subs)
	return out
}

// WSURL turns an http:// test server URL into its ws:// form.
func WSURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
