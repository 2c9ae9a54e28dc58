package feedsim

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mdstream.com/internal/marketdata/codec"
	"mdstream.com/internal/marketdata/model"
)

func TestGenerator_DeterministicPerSeed(t *testing.T) {
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a := NewGenerator([]string{"BTCUSD", "ETHUSD"}, 7)
	b := NewGenerator([]string{"BTCUSD", "ETHUSD"}, 7)
	a.now = func() time.Time { return fixed }
	b.now = func() time.Time { return fixed }

	for i := 0; i < 50; i++ {
		assert.Equal(t, a.Next(), b.Next())
	}
}

func TestGenerator_MessagesAreEncodable(t *testing.T) {
	g := NewGenerator(nil, 1)
	kinds := map[model.Kind]int{}
	for i := 0; i < 500; i++ {
		m := g.Next()
		kinds[m.Kind]++
		_, err := codec.Encode(m)
		require.NoError(t, err)
		if b, ok := m.AsOrderBook(); ok {
			bid, _ := b.BestBid()
			ask, _ := b.BestAsk()
			assert.Less(t, bid.Price, ask.Price)
		}
	}
	for _, k := range []model.Kind{model.KindTrade, model.KindQuote, model.KindOrderBook, model.KindHeartbeat} {
		assert.Positive(t, kinds[k], "kind %s never generated", k)
	}
}

func TestGenerator_NextForFiltersKinds(t *testing.T) {
	g := NewGenerator([]string{"ETHUSD"}, 3)
	for i := 0; i < 100; i++ {
		m := g.NextFor([]string{ChannelTrades})
		require.Equal(t, model.KindTrade, m.Kind)
		assert.Equal(t, "ETHUSD", m.Symbol())
	}
	assert.NotPanics(t, func() { g.NextFor([]string{"nonsense"}) })
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.DefaultDialer.Dial(WSURL(srv.URL), nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestServer_ScriptAfterSubscribe(t *testing.T) {
	fs := &Server{
		Script: []Frame{
			Raw(`{"type":"Mystery"}`),
			Msg(model.NewHeartbeat()),
		},
		CloseAfterScript: true,
	}
	srv := httptest.NewServer(fs)
	defer srv.Close()

	c := dial(t, srv)
	sub, err := codec.EncodeSubscribe([]string{"trades"})
	require.NoError(t, err)
	require.NoError(t, c.WriteMessage(websocket.TextMessage, sub))

	_, first, err := c.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"Mystery"}`, string(first))

	_, second, err := c.ReadMessage()
	require.NoError(t, err)
	m, err := codec.Decode(second)
	require.NoError(t, err)
	assert.True(t, m.IsHeartbeat())

	_, _, err = c.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))

	assert.Equal(t, 1, fs.Connections())
	assert.Equal(t, [][]string{{"trades"}}, fs.Subscriptions())
}

func TestServer_GeneratedStream(t *testing.T) {
	fs := &Server{Symbols: []string{"BTCUSD"}, Interval: time.Millisecond, Seed: 5}
	srv := httptest.NewServer(fs)
	defer srv.Close()

	c := dial(t, srv)
	sub, _ := codec.EncodeSubscribe([]string{ChannelQuotes})
	require.NoError(t, c.WriteMessage(websocket.TextMessage, sub))

	for i := 0; i < 5; i++ {
		_, b, err := c.ReadMessage()
		require.NoError(t, err)
		m, err := codec.Decode(b)
		require.NoError(t, err)
		assert.Equal(t, model.KindQuote, m.Kind)
	}
	c.Close()
	require.Eventually(t, func() bool { return fs.Active() == 0 }, time.Second, 5*time.Millisecond)
}

func TestServer_RejectsBadSubscribe(t *testing.T) {
	fs := &Server{CloseAfterScript: true}
	srv := httptest.NewServer(fs)
	defer srv.Close()

	c := dial(t, srv)
	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(`{"type":"hello"}`)))
	_, _, err := c.ReadMessage()
	assert.Error(t, err)
	assert.Empty(t, fs.Subscriptions())
}
