package conf

import (
	"time"

	"github.com/spf13/viper"
	"mdstream.com/pkg/config"
)

// Service is the config file base name and env prefix (MDSTREAM_*).
const Service = "mdstream"

type Config struct {
	Log        LogConf        `mapstructure:"log"`
	Session    SessionConf    `mapstructure:"session"`
	HTTP       HTTPConf       `mapstructure:"http"`
	Gateway    GatewayConf    `mapstructure:"gateway"`
	Relay      RelayConf      `mapstructure:"relay"`
	StatsCache StatsCacheConf `mapstructure:"stats_cache"`
	Feed       FeedConf       `mapstructure:"feed"`
	Trace      TraceConf      `mapstructure:"trace"`
}

type LogConf struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

type SessionConf struct {
	URL       string   `mapstructure:"url"`
	Channels  []string `mapstructure:"channels"`
	Transport string   `mapstructure:"transport"` // gorilla | coder
	// Per-subscriber ring buffer size.
	BufferSize int   `mapstructure:"buffer_size"`
	ReadLimit  int64 `mapstructure:"read_limit"`
	// Read fails when neither data nor a ping arrives for PongWait (gorilla).
	PongWait         time.Duration `mapstructure:"pong_wait"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	// Decode failures logged per second; the rest are only counted.
	DecodeLogRate  float64 `mapstructure:"decode_log_rate"`
	DecodeLogBurst int     `mapstructure:"decode_log_burst"`
}

type HTTPConf struct {
	Addr        string        `mapstructure:"addr"`
	RateLimit   float64       `mapstructure:"rate_limit"`
	RateBurst   int           `mapstructure:"rate_burst"`
	CORSOrigins []string      `mapstructure:"cors_origins"`
	ShutdownTTL time.Duration `mapstructure:"shutdown_timeout"`
}

type GatewayConf struct {
	Enabled    bool          `mapstructure:"enabled"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	PongWait   time.Duration `mapstructure:"pong_wait"`
	WriteWait  time.Duration `mapstructure:"write_wait"`
}

type RelayConf struct {
	Enabled       bool          `mapstructure:"enabled"`
	Broker        string        `mapstructure:"broker"` // mem | nats
	NatsURL       string        `mapstructure:"nats_url"`
	SubjectPrefix string        `mapstructure:"subject_prefix"`
	BreakerTTL    time.Duration `mapstructure:"breaker_timeout"`
	TripFailures  uint32        `mapstructure:"trip_failures"`
}

type StatsCacheConf struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
	Interval time.Duration `mapstructure:"interval"`
}

// TraceConf selects the span exporter: OTLP gRPC when Endpoint is set,
// stdout otherwise. Disabled leaves the global no-op provider in place.
type TraceConf struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	Insecure    bool    `mapstructure:"insecure"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// FeedConf drives the simulated upstream (cmd/mdfeed).
type FeedConf struct {
	Addr     string        `mapstructure:"addr"`
	Symbols  []string      `mapstructure:"symbols"`
	Interval time.Duration `mapstructure:"interval"`
	Seed     int64         `mapstructure:"seed"`
}

func (c *Config) SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")

	v.SetDefault("session.url", "ws://127.0.0.1:9100/feed")
	v.SetDefault("session.channels", []string{"trades", "quotes", "orderbook"})
	v.SetDefault("session.transport", "gorilla")
	v.SetDefault("session.buffer_size", 1024)
	v.SetDefault("session.read_limit", 1<<20)
	v.SetDefault("session.pong_wait", 60*time.Second)
	v.SetDefault("session.handshake_timeout", 10*time.Second)
	v.SetDefault("session.decode_log_rate", 1.0)
	v.SetDefault("session.decode_log_burst", 5)

	v.SetDefault("http.addr", ":8090")
	v.SetDefault("http.rate_limit", 20.0)
	v.SetDefault("http.rate_burst", 40)
	v.SetDefault("http.cors_origins", []string{"*"})
	v.SetDefault("http.shutdown_timeout", 5*time.Second)

	v.SetDefault("gateway.enabled", true)
	v.SetDefault("gateway.ping_period", 30*time.Second)
	v.SetDefault("gateway.pong_wait", 60*time.Second)
	v.SetDefault("gateway.write_wait", 5*time.Second)

	v.SetDefault("relay.enabled", false)
	v.SetDefault("relay.broker", "mem")
	v.SetDefault("relay.nats_url", "nats://127.0.0.1:4222")
	v.SetDefault("relay.subject_prefix", "md")
	v.SetDefault("relay.breaker_timeout", 5*time.Second)
	v.SetDefault("relay.trip_failures", 5)

	v.SetDefault("stats_cache.enabled", false)
	v.SetDefault("stats_cache.addr", "127.0.0.1:6379")
	v.SetDefault("stats_cache.password", "")
	v.SetDefault("stats_cache.db", 0)
	v.SetDefault("stats_cache.prefix", "md")
	v.SetDefault("stats_cache.ttl", time.Minute)
	v.SetDefault("stats_cache.interval", time.Second)

	v.SetDefault("trace.enabled", true)
	v.SetDefault("trace.endpoint", "")
	v.SetDefault("trace.insecure", true)
	v.SetDefault("trace.sample_ratio", 1.0)

	v.SetDefault("feed.addr", ":9100")
	v.SetDefault("feed.symbols", []string{"BTCUSD", "ETHUSD"})
	v.SetDefault("feed.interval", 100*time.Millisecond)
	v.SetDefault("feed.seed", 1)
}

// Load reads the service config, applying defaults and MDSTREAM_* overrides.
func Load() (*Config, error) {
	var c Config
	if _, err := config.Load(Service, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadAndWatch is Load with hot reload. Only fields read per use (such as
// log level) pick up changes; wiring done at startup stays as is.
func LoadAndWatch(onChange func(*Config)) (*Config, error) {
	c := new(Config)
	_, err := config.LoadAndWatch(Service, c, func() {
		if onChange != nil {
			onChange(c)
		}
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}
