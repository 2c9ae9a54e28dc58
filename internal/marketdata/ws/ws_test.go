package ws

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mdstream.com/internal/marketdata/codec"
	"mdstream.com/internal/marketdata/distributor"
	"mdstream.com/internal/marketdata/mdmetrics"
	"mdstream.com/internal/marketdata/model"
	"mdstream.com/internal/marketdata/stats"
)

var ts = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func btcTrade(price float64) model.Message {
	return model.NewTrade(model.Trade{Symbol: "BTCUSD", Price: price, Quantity: 1, Side: model.SideBuy, Timestamp: ts, TradeID: "1"})
}

func TestTopicFor(t *testing.T) {
	ch, topic, ok := TopicFor(btcTrade(1))
	require.True(t, ok)
	assert.Equal(t, ChanTrade, ch)
	assert.Equal(t, "trade:BTCUSD", topic)

	_, topic, _ = TopicFor(model.NewOrderBook(model.OrderBookSnapshot{Symbol: "ethusd"}))
	assert.Equal(t, "book:ETHUSD", topic)

	_, _, ok = TopicFor(model.NewHeartbeat())
	assert.False(t, ok)

	assert.Equal(t, []string{"trade:BTCUSD", "stats:ETHUSD"}, normalizeTopics([]string{"Trade:btcusd", "stats: ethusd ", "bogus", "quote:", "candles:BTCUSD"}))
}

func TestConn_LatestOnly(t *testing.T) {
	c := NewConn(NewHub(), nil)
	assert.True(t, c.Offer("trade:BTCUSD", []byte("1")))
	assert.True(t, c.Offer("trade:BTCUSD", []byte("2")))
	assert.True(t, c.Offer("quote:BTCUSD", []byte("q")))

	batch := c.flushLatest(10)
	require.Len(t, batch, 2)
	assert.ElementsMatch(t, [][]byte{[]byte("2"), []byte("q")}, batch)
	assert.Nil(t, c.flushLatest(10))

	c.closed.Store(true)
	assert.False(t, c.Offer("trade:BTCUSD", []byte("3")))
}

func TestHub_SnapshotOnSubscribe(t *testing.T) {
	h := NewHub()
	h.Publish("trade:BTCUSD", []byte("old"))
	h.Publish("trade:BTCUSD", []byte("new"))

	c := NewConn(h, nil)
	h.Subscribe(c, []string{"trade:BTCUSD", "quote:BTCUSD"})
	assert.Equal(t, [][]byte{[]byte("new")}, c.flushLatest(10))
	assert.Equal(t, 1, h.Subscribers("trade:BTCUSD"))

	h.Unsubscribe(c, []string{"trade:BTCUSD"})
	assert.Equal(t, 0, h.Subscribers("trade:BTCUSD"))
	h.RemoveConn(c)
	assert.Equal(t, 0, h.Subscribers("quote:BTCUSD"))

	last, ok := h.Last("trade:BTCUSD")
	require.True(t, ok)
	assert.Equal(t, "new", string(last))
}

func readServerMsg(t *testing.T, c *websocket.Conn) ServerMsg {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, b, err := c.ReadMessage()
	require.NoError(t, err)
	var m ServerMsg
	require.NoError(t, json.Unmarshal(b, &m))
	return m
}

func TestWS_E2E_StreamToClient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub()
	srv := NewServer(ctx, hub)
	bridge := NewBridge(hub)

	httpSrv := httptest.NewServer(http.HandlerFunc(srv.ServeWS))
	defer httpSrv.Close()

	c, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(httpSrv.URL, "http"), nil)
	require.NoError(t, err)
	defer c.Close()

	sub, _ := json.Marshal(ClientMsg{Type: "sub", Topics: []string{"trade:btcusd", "stats:BTCUSD"}})
	require.NoError(t, c.WriteMessage(websocket.TextMessage, sub))
	require.Eventually(t, func() bool { return hub.Subscribers("stats:BTCUSD") == 1 }, time.Second, 5*time.Millisecond)

	d := distributor.New(16)
	agg := stats.NewAggregator(stats.WithOnUpdate(bridge.PublishStats))
	go func() { _ = bridge.Run(ctx, d.Subscribe()) }()
	go func() { _ = agg.Run(ctx, d.Subscribe()) }()

	d.Publish(btcTrade(50000))

	got := map[string]ServerMsg{}
	for len(got) < 2 {
		m := readServerMsg(t, c)
		got[m.Type] = m
	}

	tm := got[ChanTrade]
	assert.Equal(t, "trade:BTCUSD", tm.Topic)
	msg, err := codec.Decode(tm.Data)
	require.NoError(t, err)
	assert.Equal(t, btcTrade(50000), msg)

	sm := got[ChanStats]
	var view codec.StatsView
	require.NoError(t, json.Unmarshal(sm.Data, &view))
	assert.Equal(t, uint64(1), view.TradeCount)
	assert.Equal(t, 50000.0, view.VWAP)
}

func TestWS_ClientDisconnectRemovesSubscriptions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub()
	httpSrv := httptest.NewServer(http.HandlerFunc(NewServer(ctx, hub).ServeWS))
	defer httpSrv.Close()

	c, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(httpSrv.URL, "http"), nil)
	require.NoError(t, err)
	sub, _ := json.Marshal(ClientMsg{Type: "sub", Topics: []string{"quote:BTCUSD"}})
	require.NoError(t, c.WriteMessage(websocket.TextMessage, sub))
	require.Eventually(t, func() bool { return hub.Subscribers("quote:BTCUSD") == 1 }, time.Second, 5*time.Millisecond)

	_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.Close()
	require.Eventually(t, func() bool { return hub.Subscribers("quote:BTCUSD") == 0 }, time.Second, 5*time.Millisecond)
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestBridge_EncodeFailuresAreCounted(t *testing.T) {
	hub := NewHub()
	b := NewBridge(hub)
	dropped := mdmetrics.WSDroppedTotal.WithLabelValues("encode_error")
	before := counterValue(t, dropped)

	bad := model.NewMarketStats("NANUSD")
	bad.ApplyTrade(model.Trade{Symbol: "NANUSD", Price: math.NaN(), Quantity: 1, Timestamp: ts})
	b.PublishStats(bad)
	require.Error(t, b.PublishMessage(model.Message{Kind: model.KindTrade}))

	assert.Equal(t, before+1, counterValue(t, dropped))
	_, ok := hub.Last("stats:NANUSD")
	assert.False(t, ok)

	good := model.NewMarketStats("BTCUSD")
	good.ApplyTrade(model.Trade{Symbol: "BTCUSD", Price: 10, Quantity: 1, Timestamp: ts})
	b.PublishStats(good)
	_, ok = hub.Last("stats:BTCUSD")
	assert.True(t, ok)
	assert.Equal(t, before+1, counterValue(t, dropped))
}
