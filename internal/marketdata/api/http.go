package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	ginprom "github.com/zsais/go-gin-prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	oteltrace "go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
	"mdstream.com/internal/marketdata/conf"
	"mdstream.com/pkg/middleware"
	"mdstream.com/pkg/ratelimit"
)

type Options struct {
	Market Market
	// WS serves /ws when set.
	WS http.HandlerFunc
	// Prom mounts /metrics. Registering twice in one process panics, so
	// tests leave it off.
	Prom bool
	// TracerProvider for request spans; nil uses the global one.
	TracerProvider oteltrace.TracerProvider
}

// NewRouter builds the gin engine. ctx bounds the rate limiter janitor.
func NewRouter(ctx context.Context, cfg conf.HTTPConf, opt Options) *gin.Engine {
	store := ratelimit.NewStore(rate.Limit(cfg.RateLimit), cfg.RateBurst, 10*time.Minute)
	store.StartJanitor(ctx, time.Minute)

	r := gin.New()
	if opt.Prom {
		p := ginprom.NewPrometheus("mdstream")
		p.Use(r)
	}

	corsCfg := cors.DefaultConfig()
	if len(cfg.CORSOrigins) == 0 || (len(cfg.CORSOrigins) == 1 && cfg.CORSOrigins[0] == "*") {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.CORSOrigins
	}
	var traceOpts []otelgin.Option
	if opt.TracerProvider != nil {
		traceOpts = append(traceOpts, otelgin.WithTracerProvider(opt.TracerProvider))
	}
	r.Use(
		otelgin.Middleware("mdstream", traceOpts...),
		middleware.ReqId(),
		cors.New(corsCfg),
		middleware.Recover(),
	)

	if opt.WS != nil {
		// Long-lived; kept out of the rate limited group.
		r.GET("/ws", gin.WrapF(opt.WS))
	}

	api := r.Group("/api", middleware.RateLimit(store))
	Routes(api, &Handler{Market: opt.Market})
	return r
}

func Routes(api *gin.RouterGroup, h *Handler) {
	sess := api.Group("/session")
	{
		sess.GET("", h.Session)
		sess.POST("/start", h.Start)
		sess.POST("/stop", h.Stop)
	}
	st := api.Group("/stats")
	{
		st.GET("", h.AllStats)
		st.GET("/:symbol", h.Stats)
	}
}

func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
}
