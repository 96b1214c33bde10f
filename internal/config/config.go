// Package config loads the engine's configuration with spf13/viper:
// programmatic defaults, an optional YAML file, then APP_-prefixed
// environment variables, each layer overriding the last.
//
// Grounded on 0xtitan6-polymarket-mm/internal/config/config.go's
// mapstructure-tagged struct + env-prefix pattern, which this generalizes
// to spec.md §6.2's full option table plus SPEC_FULL.md's domain-stack
// additions.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ingestd/marketfeed/internal/model"
)

// AppConfig is the engine's complete configuration surface.
type AppConfig struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	DefaultSymbols []string `mapstructure:"default_symbols"`

	BroadcastBufferSize int `mapstructure:"broadcast_buffer_size"`
	TradeHistoryLimit   int `mapstructure:"trade_history_limit"`
	CandleHistoryLimit  int `mapstructure:"candle_history_limit"`

	BinanceSpotWSURL          string `mapstructure:"binance_spot_ws_url"`
	BinanceLinearFutureWSURL  string `mapstructure:"binance_linear_future_ws_url"`
	BinanceInverseFutureWSURL string `mapstructure:"binance_inverse_future_ws_url"`
	BinanceReconnectDelay     int    `mapstructure:"binance_reconnect_delay"`

	BybitLinearWSURL string `mapstructure:"bybit_linear_ws_url"`
	BybitSpotWSURL   string `mapstructure:"bybit_spot_ws_url"`
	CoinbaseWSURL    string `mapstructure:"coinbase_ws_url"`

	// <Venue>RESTURL is the full historical-klines REST endpoint for that
	// venue (internal/history.Fetcher issues a bare GET against it plus
	// query parameters, so this must include the klines path, not just the
	// API host).
	BinanceRESTURL  string `mapstructure:"binance_rest_url"`
	BybitRESTURL    string `mapstructure:"bybit_rest_url"`
	CoinbaseRESTURL string `mapstructure:"coinbase_rest_url"`

	BinanceOpenInterestURL string        `mapstructure:"binance_open_interest_url"`
	BybitOpenInterestURL   string        `mapstructure:"bybit_open_interest_url"`
	OpenInterestPollPeriod time.Duration `mapstructure:"open_interest_poll_period"`

	OrderBookDepth int `mapstructure:"order_book_depth"`

	DefaultRawTrades      bool     `mapstructure:"default_raw_trades"`
	DefaultAggTrades      bool     `mapstructure:"default_agg_trades"`
	DefaultOrderBook      bool     `mapstructure:"default_order_book"`
	DefaultTicker         bool     `mapstructure:"default_ticker"`
	DefaultBookTicker     bool     `mapstructure:"default_book_ticker"`
	DefaultMarkPrice      bool     `mapstructure:"default_mark_price"`
	DefaultIndexPrice     bool     `mapstructure:"default_index_price"`
	DefaultLiquidation    bool     `mapstructure:"default_liquidation"`
	DefaultFundingRate    bool     `mapstructure:"default_funding_rate"`
	DefaultOpenInterest   bool     `mapstructure:"default_open_interest"`
	DefaultGreeks         bool     `mapstructure:"default_greeks"`
	DefaultKlineIntervals []string `mapstructure:"default_kline_intervals"`

	ServerBindAddress       string `mapstructure:"server_bind_address"`
	ServerHistoryFetchLimit int    `mapstructure:"server_history_fetch_limit"`

	RESTRequestTimeout   time.Duration `mapstructure:"rest_request_timeout"`
	RESTRateLimitPerSec  float64       `mapstructure:"rest_rate_limit_per_sec"`

	MongoURI string `mapstructure:"mongo_uri"`

	S3Bucket             string `mapstructure:"s3_bucket"`
	S3Region             string `mapstructure:"s3_region"`
	S3Prefix             string `mapstructure:"s3_prefix"`
	ArchiveAfterHours    int    `mapstructure:"archive_after_hours"`
	ArchiveIntervalHours int    `mapstructure:"archive_interval_hours"`

	RedisURL string `mapstructure:"redis_url"`

	MetricsBindAddress string `mapstructure:"metrics_bind_address"`
}

// DefaultStreamConfig builds the StreamConfig startup connectors use from
// the default_<family> flags.
func (c AppConfig) DefaultStreamConfig() model.StreamConfig {
	return model.StreamConfig{
		RawTrades:      c.DefaultRawTrades,
		AggTrades:      c.DefaultAggTrades,
		OrderBook:      c.DefaultOrderBook,
		Ticker:         c.DefaultTicker,
		BookTicker:     c.DefaultBookTicker,
		MarkPrice:      c.DefaultMarkPrice,
		IndexPrice:     c.DefaultIndexPrice,
		Liquidation:    c.DefaultLiquidation,
		FundingRate:    c.DefaultFundingRate,
		OpenInterest:   c.DefaultOpenInterest,
		Greeks:         c.DefaultGreeks,
		KlineIntervals: c.DefaultKlineIntervals,
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")

	v.SetDefault("default_symbols", []string{"BTCUSDT"})

	v.SetDefault("broadcast_buffer_size", 1024)
	v.SetDefault("trade_history_limit", 200)
	v.SetDefault("candle_history_limit", 500)

	v.SetDefault("binance_spot_ws_url", "wss://stream.binance.com:9443")
	v.SetDefault("binance_linear_future_ws_url", "wss://fstream.binance.com")
	v.SetDefault("binance_inverse_future_ws_url", "wss://dstream.binance.com")
	v.SetDefault("binance_reconnect_delay", 60)

	v.SetDefault("bybit_linear_ws_url", "wss://stream.bybit.com/v5/public/linear")
	v.SetDefault("bybit_spot_ws_url", "wss://stream.bybit.com/v5/public/spot")
	v.SetDefault("coinbase_ws_url", "wss://advanced-trade-ws.coinbase.com")

	v.SetDefault("binance_rest_url", "https://api.binance.com/api/v3/klines")
	v.SetDefault("bybit_rest_url", "https://api.bybit.com/v5/market/kline")
	v.SetDefault("coinbase_rest_url", "https://api.exchange.coinbase.com/products/candles")

	v.SetDefault("binance_open_interest_url", "https://fapi.binance.com/fapi/v1/openInterest")
	v.SetDefault("bybit_open_interest_url", "https://api.bybit.com/v5/market/open-interest")
	v.SetDefault("open_interest_poll_period", 30*time.Second)

	v.SetDefault("order_book_depth", 20)

	v.SetDefault("default_raw_trades", true)
	v.SetDefault("default_order_book", true)
	v.SetDefault("default_kline_intervals", []string{"1m"})

	v.SetDefault("server_bind_address", ":8080")
	v.SetDefault("server_history_fetch_limit", 500)

	v.SetDefault("rest_request_timeout", 10*time.Second)
	v.SetDefault("rest_rate_limit_per_sec", 5.0)

	v.SetDefault("mongo_uri", "")

	v.SetDefault("s3_bucket", "")
	v.SetDefault("s3_region", "us-east-1")
	v.SetDefault("s3_prefix", "marketfeed-history/")
	v.SetDefault("archive_after_hours", 168)
	v.SetDefault("archive_interval_hours", 24)

	v.SetDefault("redis_url", "")

	v.SetDefault("metrics_bind_address", ":9090")
}

// Load builds an AppConfig: defaults, then an optional file named
// config.* on configPaths, then APP_-prefixed environment variables, each
// overriding the last (spec.md §6.2).
func Load(configPaths ...string) (AppConfig, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	for _, p := range configPaths {
		v.AddConfigPath(p)
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return AppConfig{}, fmt.Errorf("config: read config file: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return AppConfig{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}
