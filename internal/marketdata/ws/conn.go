package ws

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"
	"mdstream.com/internal/marketdata/mdmetrics"
	"mdstream.com/pkg/logger"
	"mdstream.com/pkg/safe"
)

// Conn is one downstream client. Its mailbox keeps only the newest payload
// per topic, so a slow client sees fewer updates, never stale ones.
type Conn struct {
	id  string
	ws  *websocket.Conn
	hub *Hub

	mu     sync.Mutex
	latest map[string][]byte // topic -> newest undelivered payload
	notify chan struct{}     // cap 1: coalesced wakeups
	closed atomic.Bool
	done   chan struct{} // closed when the read side ends
}

func NewConn(h *Hub, ws *websocket.Conn) *Conn {
	return &Conn{
		id:     uuid.NewString(),
		ws:     ws,
		hub:    h,
		latest: make(map[string][]byte, 64),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (c *Conn) ID() string { return c.id }

// Offer replaces any pending payload for topic. It reports false once the
// connection is closed.
func (c *Conn) Offer(topic string, payload []byte) bool {
	if c.closed.Load() {
		return false
	}
	c.mu.Lock()
	if _, pending := c.latest[topic]; pending {
		mdmetrics.WSDroppedTotal.WithLabelValues("superseded").Inc()
	}
	c.latest[topic] = payload
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
	return true
}

func (c *Conn) flushLatest(max int) [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.latest) == 0 {
		return nil
	}
	out := make([][]byte, 0, min(len(c.latest), max))
	for k, v := range c.latest {
		out = append(out, v)
		delete(c.latest, k)
		if len(out) >= max {
			break
		}
	}
	return out
}

type Server struct {
	Hub      *Hub
	Upgrader websocket.Upgrader
	ctx      context.Context

	PongWait   time.Duration
	PingPeriod time.Duration
	PingJitter time.Duration
	WriteWait  time.Duration
	ReadLimit  int64
}

func NewServer(ctx context.Context, h *Hub) *Server {
	return &Server{
		Hub: h,
		ctx: ctx,
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		PongWait:   60 * time.Second,
		PingPeriod: 30 * time.Second,
		PingJitter: 100 * time.Millisecond,
		WriteWait:  5 * time.Second,
		ReadLimit:  4 << 10,
	}
}

func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	wsConn, err := s.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := NewConn(s.Hub, wsConn)
	mdmetrics.OnWSOpen()
	logger.Debug(r.Context(), "ws client connected", zap.String("conn", c.id), zap.String("remote", r.RemoteAddr))
	safe.Go(func() { s.writePump(c) })
	safe.Go(func() { s.readPump(c) })
}

func (s *Server) readPump(c *Conn) {
	closeCode := websocket.CloseAbnormalClosure
	reason := "read_error"
	defer func() {
		c.closed.Store(true)
		c.hub.RemoveConn(c)
		close(c.done)
		_ = c.ws.Close()
		mdmetrics.OnWSClose(closeCode, reason)
	}()

	c.ws.SetReadLimit(s.ReadLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(s.PongWait))
	c.ws.SetPongHandler(func(string) error {
		mdmetrics.WSPongRecvTotal.Inc()
		return c.ws.SetReadDeadline(time.Now().Add(s.PongWait))
	})

	for {
		if s.ctx.Err() != nil {
			reason = "server_shutdown"
			return
		}
		_, b, err := c.ws.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			var ne net.Error
			switch {
			case errors.As(err, &ce):
				closeCode, reason = ce.Code, "client_close"
			case errors.As(err, &ne) && ne.Timeout():
				reason = "pong_timeout"
			}
			return
		}
		var msg ClientMsg
		if json.Unmarshal(b, &msg) != nil {
			continue
		}
		topics := normalizeTopics(msg.Topics)
		switch msg.Type {
		case "sub":
			c.hub.Subscribe(c, topics)
		case "unsub":
			c.hub.Unsubscribe(c, topics)
		}
	}
}

const maxFlush = 256 // payloads written per wakeup

func (s *Server) writePump(c *Conn) {
	// Spread pings of clients that connected together.
	if s.PingJitter > 0 {
		t := time.NewTimer(time.Duration(rand.Int63n(int64(s.PingJitter))))
		select {
		case <-t.C:
		case <-s.ctx.Done():
			t.Stop()
			return
		case <-c.done:
			t.Stop()
			return
		}
	}

	ticker := time.NewTicker(s.PingPeriod)
	defer func() {
		ticker.Stop()
		c.closed.Store(true)
		_ = c.ws.Close()
	}()

	for {
		select {
		case <-c.notify:
			for _, payload := range c.flushLatest(maxFlush) {
				start := time.Now()
				_ = c.ws.SetWriteDeadline(start.Add(s.WriteWait))
				err := c.ws.WriteMessage(websocket.TextMessage, payload)
				mdmetrics.ObserveWSWrite(len(payload), time.Since(start), err)
				if err != nil {
					return
				}
			}
		case <-c.done:
			return
		case <-ticker.C:
			mdmetrics.WSPingSentTotal.Inc()
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.WriteWait)); err != nil {
				return
			}
		case <-s.ctx.Done():
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"),
				time.Now().Add(time.Second))
			return
		}
	}
}
