package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ingestd/marketfeed/internal/broadcast"
	"github.com/ingestd/marketfeed/internal/config"
	"github.com/ingestd/marketfeed/internal/connector"
	"github.com/ingestd/marketfeed/internal/connector/binance"
	"github.com/ingestd/marketfeed/internal/connector/bybit"
	"github.com/ingestd/marketfeed/internal/connector/coinbase"
	"github.com/ingestd/marketfeed/internal/history"
	"github.com/ingestd/marketfeed/internal/historycache"
	"github.com/ingestd/marketfeed/internal/logging"
	"github.com/ingestd/marketfeed/internal/metrics"
	"github.com/ingestd/marketfeed/internal/model"
	"github.com/ingestd/marketfeed/internal/registry"
	"github.com/ingestd/marketfeed/internal/session"
)

func newServeCommand() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the ingestion and fan-out engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", ".", "directory to search for config.yaml")
	return cmd
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("serve: load config: %w", err)
	}

	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	promReg := prometheus.NewRegistry()

	var mgr *session.Manager
	m := metrics.New(promReg, func() float64 {
		if mgr == nil {
			return 0
		}
		return float64(mgr.ClientCount())
	})

	bus := broadcast.New(cfg.BroadcastBufferSize, log, broadcast.WithLagRecorder(m))
	reg := registry.New(bus, cfg.TradeHistoryLimit, cfg.CandleHistoryLimit, registry.WithOccupancyRecorder(m))

	venues := map[model.Exchange]connector.Connector{
		model.ExchangeBinance: binance.Connector{
			SpotWSURL:          cfg.BinanceSpotWSURL,
			LinearFutureWSURL:  cfg.BinanceLinearFutureWSURL,
			InverseFutureWSURL: cfg.BinanceInverseFutureWSURL,
			OrderBookDepth:     cfg.OrderBookDepth,
		},
		model.ExchangeBybit: bybit.Connector{
			LinearWSURL: cfg.BybitLinearWSURL,
			SpotWSURL:   cfg.BybitSpotWSURL,
		},
		model.ExchangeCoinbase: coinbase.Connector{WSURL: cfg.CoinbaseWSURL},
	}

	var connOpts []connector.Option
	if lock := connector.NewRedisLock(cfg.RedisURL, 30*time.Second, log); lock != nil {
		connOpts = append(connOpts, connector.WithIngestionLock(lock))
	}
	connOpts = append(connOpts, connector.WithStateObserver(m.Observer()))

	oiPoller := connector.NewOpenInterestPoller(reg, map[model.Exchange]string{
		model.ExchangeBinance: cfg.BinanceOpenInterestURL,
		model.ExchangeBybit:   cfg.BybitOpenInterestURL,
	}, cfg.OpenInterestPollPeriod, log)
	connOpts = append(connOpts, connector.WithOpenInterestPoller(oiPoller))

	maxBackoff := time.Duration(cfg.BinanceReconnectDelay) * time.Second
	supervisor := connector.New(reg, venues, maxBackoff, log, connOpts...)

	cache, err := historycache.New(ctx, cfg.MongoURI, log)
	if err != nil {
		log.Warn().Err(err).Msg("failed to connect history cache, continuing without it")
		cache = nil
	}
	if archiver, err := historycache.NewArchiver(ctx, cache, cfg.S3Bucket, cfg.S3Region, cfg.S3Prefix, cfg.ArchiveAfterHours, cfg.ArchiveIntervalHours, log); err != nil {
		log.Warn().Err(err).Msg("failed to start history archiver")
	} else if archiver != nil {
		go archiver.Run(ctx)
	}

	fetcher := history.New(map[model.Exchange]history.VenueEndpoint{
		model.ExchangeBinance:  {BaseURL: cfg.BinanceRESTURL},
		model.ExchangeBybit:    {BaseURL: cfg.BybitRESTURL},
		model.ExchangeCoinbase: {BaseURL: cfg.CoinbaseRESTURL},
	}, cfg.RESTRequestTimeout, cfg.RESTRateLimitPerSec, cache, log)

	mgr = session.NewManager(reg, bus, supervisor, fetcher, session.Config{
		DefaultStreamConfig:  cfg.DefaultStreamConfig(),
		HistoryFetchLimit:    cfg.ServerHistoryFetchLimit,
		DefaultKlineInterval: firstOr(cfg.DefaultKlineIntervals, "1m"),
	}, log)

	for _, symbol := range cfg.DefaultSymbols {
		supervisor.Spawn(ctx, model.ExchangeBinance, model.MarketSpot, symbol, cfg.DefaultStreamConfig())
	}

	router := mux.NewRouter()
	router.Handle("/", mgr)
	router.Handle("/metrics", metrics.Handler(promReg))
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	srv := &http.Server{Addr: cfg.ServerBindAddress, Handler: router}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	metricsRouter := mux.NewRouter()
	metricsRouter.Handle("/metrics", metrics.Handler(promReg))
	metricsSrv := &http.Server{Addr: cfg.MetricsBindAddress, Handler: metricsRouter}
	go func() { errCh <- metricsSrv.ListenAndServe() }()

	go readStdinIngestions(ctx, supervisor, cfg.DefaultStreamConfig(), log)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("serve: bind failed: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
	metricsSrv.Shutdown(shutdownCtx)
	return nil
}

// readStdinIngestions implements spec.md §4.6's "optionally spawning
// additional ingestions from stdin": newline-delimited VENUE:MARKET:SYMBOL
// triples.
func readStdinIngestions(ctx context.Context, supervisor *connector.Supervisor, defaultCfg model.StreamConfig, log zerolog.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.Split(line, ":")
		if len(parts) != 3 {
			log.Debug().Str("line", line).Msg("ignoring malformed stdin ingestion request, expected VENUE:MARKET:SYMBOL")
			continue
		}
		exchange := model.ParseExchange(parts[0])
		market := model.ParseMarketType(parts[1])
		supervisor.Spawn(ctx, exchange, market, parts[2], defaultCfg)
	}
}

func firstOr(items []string, fallback string) string {
	if len(items) == 0 {
		return fallback
	}
	return items[0]
}
