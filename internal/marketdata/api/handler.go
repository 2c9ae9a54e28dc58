package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"mdstream.com/internal/marketdata/codec"
	"mdstream.com/internal/marketdata/model"
	"mdstream.com/internal/marketdata/session"
	"mdstream.com/pkg/common"
)

// Market is the part of a session the HTTP API reads and controls.
type Market interface {
	Start(ctx context.Context) error
	Stop()
	State() session.State
	URL() string
	Channels() []string
	Err() error
	DecodeErrors() uint64
	SubscriberCount() int
	Statistics(symbol string) model.MarketStats
	AllStatistics() []model.MarketStats
}

type SessionInfo struct {
	State        string   `json:"state"`
	Running      bool     `json:"running"`
	URL          string   `json:"url"`
	Channels     []string `json:"channels"`
	Subscribers  int      `json:"subscribers"`
	DecodeErrors uint64   `json:"decode_errors"`
	LastError    string   `json:"last_error,omitempty"`
}

type Handler struct {
	Market       Market
	StartTimeout time.Duration
}

func (h *Handler) info() SessionInfo {
	st := h.Market.State()
	info := SessionInfo{
		State:        st.String(),
		Running:      st == session.StateRunning,
		URL:          h.Market.URL(),
		Channels:     h.Market.Channels(),
		Subscribers:  h.Market.SubscriberCount(),
		DecodeErrors: h.Market.DecodeErrors(),
	}
	if err := h.Market.Err(); err != nil {
		info.LastError = err.Error()
	}
	return info
}

func (h *Handler) Session(c *gin.Context) {
	common.Success(c, h.info())
}

// Start is idempotent: a running session is reported as is.
func (h *Handler) Start(c *gin.Context) {
	timeout := h.StartTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()

	if err := h.Market.Start(ctx); err != nil {
		var ce *session.ConnectionError
		switch {
		case errors.As(err, &ce):
			common.FailLogged(c, http.StatusBadGateway, common.CodeUnavailable, "upstream unavailable", err)
		case errors.Is(err, session.ErrStopped):
			common.FailLogged(c, http.StatusConflict, common.CodeUnavailable, "session stopped while starting", err)
		default:
			common.FailLogged(c, http.StatusInternalServerError, common.CodeInternal, "start failed", err)
		}
		return
	}
	common.Success(c, h.info())
}

func (h *Handler) Stop(c *gin.Context) {
	h.Market.Stop()
	common.Success(c, h.info())
}

func (h *Handler) AllStats(c *gin.Context) {
	all := h.Market.AllStatistics()
	out := make([]codec.StatsView, 0, len(all))
	for _, s := range all {
		out = append(out, codec.NewStatsView(s))
	}
	common.Success(c, out)
}

func (h *Handler) Stats(c *gin.Context) {
	sym := c.Param("symbol")
	s := h.Market.Statistics(sym)
	if !s.HasTrades() {
		common.Fail(c, http.StatusNotFound, common.CodeNotFound, "no trades for symbol")
		return
	}
	common.Success(c, codec.NewStatsView(s))
}
