package cli

import (
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"SpotTradeBot/config"
	"SpotTradeBot/internal/logger"
	"SpotTradeBot/internal/models"
	"SpotTradeBot/internal/operations/binance"
	"SpotTradeBot/internal/operations/position"
	"SpotTradeBot/internal/operations/price"
	"SpotTradeBot/internal/repositories"
	"SpotTradeBot/internal/services/regime"
	"SpotTradeBot/internal/services/risk"
	"SpotTradeBot/internal/services/strategy"
)

// app holds the dependencies shared by every command.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	db       *gorm.DB
	exchange *binance.BinanceClient
	candles  *repositories.CandleRepository
	trades   *repositories.TradeLogRepository
	closers  []func() error
}

func newApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	db, err := setupDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		log:      log,
		db:       db,
		exchange: binance.NewBinanceClient(cfg.Exchange, log),
		candles:  repositories.NewCandleRepository(db),
		trades:   repositories.NewTradeLogRepository(db),
	}
	if sqlDB, err := db.DB(); err == nil {
		a.onClose(sqlDB.Close)
	}
	return a, nil
}

func (a *app) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// marketData wraps the exchange in the Redis candle cache when one is
// configured.
func (a *app) marketData() position.MarketDataProvider {
	if a.cfg.Redis.Addr == "" {
		return a.exchange
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	a.onClose(rdb.Close)
	a.log.Info().Str("addr", a.cfg.Redis.Addr).Dur("ttl", a.cfg.Redis.TTL).Msg("candle cache enabled")
	return price.NewCachingMarketData(rdb, a.cfg.Redis.TTL, a.exchange, a.cfg.Redis.Namespace, a.log)
}

func setupDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			cfg.Host,
			cfg.Port,
			cfg.User,
			cfg.Password,
			cfg.DBName)
		dialector = postgres.Open(dsn)
	default:
		dialector = sqlite.Open(cfg.SQLitePath)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Error),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Auto migrate database schemas
	if err := db.AutoMigrate(&models.Candle{}, &models.TradeLog{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return db, nil
}

func regimeConfig(s config.StrategyConfig) regime.Config {
	return regime.Config{
		EMAPeriod:        s.EMAPeriod,
		BBPeriod:         s.BBPeriod,
		BBDeviations:     s.BBDeviations,
		MinBars:          s.MinBars,
		SqueezeThreshold: s.SqueezeThreshold,
		FlatSlope:        s.FlatSlope,
	}
}

func strategyParams(s config.StrategyConfig) strategy.Params {
	return strategy.Params{
		MinBars:         s.MinBars,
		RSIPeriod:       s.RSIPeriod,
		BBPeriod:        s.BBPeriod,
		BBDeviations:    s.BBDeviations,
		OBLookback:      s.OBLookback,
		PatternLookback: s.PatternLookback,
		PivotLeft:       s.PivotLeft,
		PivotRight:      s.PivotRight,
		DivergenceSpan:  s.DivergenceSpan,
		MinScore:        s.MinScore,
	}
}

func riskConfig(t config.TradingConfig) risk.Config {
	return risk.Config{
		TotalCapital:     t.TotalCapital,
		BaseRiskPct:      t.BaseRiskPct,
		MinOrderNotional: t.MinOrderNotional,
		FeeBuffer:        t.FeeBuffer,
	}
}
