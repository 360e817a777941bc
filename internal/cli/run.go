package cli

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"SpotTradeBot/internal/api"
	"SpotTradeBot/internal/handlers"
	"SpotTradeBot/internal/metrics"
	"SpotTradeBot/internal/operations/paper"
	"SpotTradeBot/internal/operations/position"
	"SpotTradeBot/internal/operations/price"
	"SpotTradeBot/internal/operations/tradelog"
	"SpotTradeBot/internal/services/regime"
	"SpotTradeBot/internal/services/risk"
	"SpotTradeBot/internal/services/strategy"
)

const (
	backfillLookback = 30 * 24 * time.Hour
	shutdownTimeout  = 10 * time.Second
)

// runBot wires the live or paper bot, starts the configured symbols and
// serves the control API until ctx is cancelled.
func runBot(ctx context.Context, a *app) error {
	cfg := a.cfg
	log := a.log

	market := a.marketData()

	var (
		account position.AccountProvider = a.exchange
		exec    position.OrderExecution  = a.exchange
	)
	if cfg.Trading.Mode == "paper" {
		px := paper.NewExchange(market, cfg.Trading.PaperCapital, cfg.Trading.PaperFeeRate, log)
		account, exec = px, px
		log.Info().Float64("capital", cfg.Trading.PaperCapital).Msg("paper trading enabled")
	}

	sink := tradelog.NewMultiSink(log).Add("database", a.trades)
	if len(cfg.Kafka.Brokers) > 0 {
		publisher, err := tradelog.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return fmt.Errorf("kafka publisher: %w", err)
		}
		a.onClose(publisher.Close)
		sink.Add("kafka", publisher)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.New(registry)

	classifier := regime.NewClassifier(regimeConfig(cfg.Strategy), log)
	engine := strategy.NewSignalEngine(classifier, strategyParams(cfg.Strategy), log)
	sizer := risk.NewSizer(riskConfig(cfg.Trading))

	runnerCfg := handlers.RunnerConfig{
		Interval:         cfg.Exchange.Interval,
		CandleCount:      cfg.Exchange.CandleCount,
		CycleInterval:    cfg.Loop.CycleInterval,
		PositionInterval: cfg.Loop.PositionInterval,
		Retry: handlers.RetryPolicy{
			Backoff:     cfg.Loop.RetryBackoff,
			MaxAttempts: cfg.Loop.MaxAttempts,
		},
	}
	history := price.NewRecorder(price.NewFetcher(a.exchange, log), a.candles, cfg.Trading.Symbols, cfg.Exchange.Interval, backfillLookback, log)
	prices := handlers.NewPriceHandler(history, cfg.Trading.Symbols, log)
	if err := prices.Start(ctx); err != nil {
		return err
	}

	quote := strings.ToUpper(cfg.Exchange.QuoteAsset)
	entryLock := &sync.Mutex{}

	factory := func(symbol string) (*handlers.SymbolRunner, error) {
		if !strings.HasSuffix(symbol, quote) || symbol == quote {
			return nil, fmt.Errorf("%s is not a %s market", symbol, quote)
		}
		// symbols started through the API get candles recorded too
		prices.Track(ctx, symbol)
		manager := position.NewManager(
			symbol,
			position.Config{
				MinOrderNotional: cfg.Trading.MinOrderNotional,
				SettlementDelay:  cfg.Trading.SettlementDelay,
			},
			market, account, exec, sink, classifier, log,
			position.WithMetrics(recorder),
		)
		return handlers.NewSymbolRunner(symbol, runnerCfg, market, account, engine, sizer, manager, entryLock, recorder, log), nil
	}
	bots := handlers.NewBotManager(ctx, factory, log)

	server := api.NewServer(
		api.ServerConfig{
			Addr:           cfg.HTTP.Addr,
			AllowedOrigins: cfg.HTTP.AllowedOrigins,
			ProductionMode: cfg.Trading.Mode == "live",
			TimeFrame:      cfg.Exchange.Interval,
		},
		bots,
		a.trades,
		a.exchange,
		a.candles,
		promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		log,
	)

	res := bots.Start(cfg.Trading.Symbols...)
	log.Info().
		Str("mode", cfg.Trading.Mode).
		Strs("started", res.Started).
		Interface("failed", res.Failed).
		Msg("bot running")

	serverErr := make(chan error, 1)
	go func() { serverErr <- server.Start() }()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case runErr = <-serverErr:
		if runErr != nil {
			log.Error().Err(runErr).Msg("control API stopped")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP shutdown incomplete")
	}

	stopped := bots.StopAll()
	bots.Wait()
	for _, p := range bots.Positions() {
		log.Warn().Str("symbol", p.Symbol).Float64("quantity", p.Quantity).Msg("position still open at shutdown")
	}
	log.Info().Strs("stopped", stopped).Msg("shutdown complete")
	return runErr
}
