package config

import "time"

type Config struct {
	Exchange ExchangeConfig `yaml:"exchange"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Log      LogConfig      `yaml:"log"`
	HTTP     HTTPConfig     `yaml:"http"`
	Trading  TradingConfig  `yaml:"trading"`
	Strategy StrategyConfig `yaml:"strategy"`
	Loop     LoopConfig     `yaml:"loop"`
}

type ExchangeConfig struct {
	APIKey      string  `yaml:"api_key"`
	SecretKey   string  `yaml:"secret_key"`
	BaseURL     string  `yaml:"base_url"`
	QuoteAsset  string  `yaml:"quote_asset" default:"USDT" validate:"required"`
	Interval    string  `yaml:"interval" default:"1h" validate:"required"`
	CandleCount int     `yaml:"candle_count" default:"200" validate:"gte=50,lte=1000"`
	RateLimit   float64 `yaml:"rate_limit" default:"10" validate:"gt=0"`
	RateBurst   int     `yaml:"rate_burst" default:"20" validate:"gt=0"`
	MaxRetries  int     `yaml:"max_retries" default:"3" validate:"gte=0"`
}

type DatabaseConfig struct {
	Driver     string `yaml:"driver" default:"sqlite" validate:"oneof=sqlite postgres"`
	Host       string `yaml:"host" default:"localhost"`
	Port       int    `yaml:"port" default:"5432"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	DBName     string `yaml:"db_name" default:"spot_trade_bot"`
	SQLitePath string `yaml:"sqlite_path" default:"trade_history.db"`
}

// RedisConfig enables the candle cache when Addr is set.
type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	TTL       time.Duration `yaml:"ttl" default:"30s"`
	Namespace string        `yaml:"namespace" default:"candles"`
}

// KafkaConfig enables trade event publishing when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic" default:"trade-logs"`
}

type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=trace debug info warn error"`
	Format string `yaml:"format" default:"console" validate:"oneof=console json"`
	Output string `yaml:"output" default:"stdout"`
}

type HTTPConfig struct {
	Addr           string   `yaml:"addr" default:":8080"`
	AllowedOrigins []string `yaml:"allowed_origins" default:"[\"http://localhost:3000\"]"`
}

type TradingConfig struct {
	Mode             string        `yaml:"mode" default:"paper" validate:"oneof=live paper"`
	Symbols          []string      `yaml:"symbols" default:"[\"BTCUSDT\",\"ETHUSDT\"]" validate:"min=1,dive,required"`
	TotalCapital     float64       `yaml:"total_capital" default:"1000000" validate:"gt=0"`
	BaseRiskPct      float64       `yaml:"base_risk_pct" default:"0.5" validate:"gt=0,lte=100"`
	MinOrderNotional float64       `yaml:"min_order_notional" default:"5000" validate:"gte=0"`
	FeeBuffer        float64       `yaml:"fee_buffer" default:"0.001" validate:"gte=0,lt=1"`
	PaperCapital     float64       `yaml:"paper_capital" default:"10000000" validate:"gt=0"`
	PaperFeeRate     float64       `yaml:"paper_fee_rate" default:"0.0005" validate:"gte=0,lt=1"`
	SettlementDelay  time.Duration `yaml:"settlement_delay" default:"5s"`
}

type StrategyConfig struct {
	EMAPeriod        int     `yaml:"ema_period" default:"50" validate:"gt=1"`
	BBPeriod         int     `yaml:"bb_period" default:"20" validate:"gt=1"`
	BBDeviations     float64 `yaml:"bb_deviations" default:"2" validate:"gt=0"`
	RSIPeriod        int     `yaml:"rsi_period" default:"14" validate:"gt=1"`
	MinBars          int     `yaml:"min_bars" default:"50" validate:"gt=1"`
	SqueezeThreshold float64 `yaml:"squeeze_threshold" default:"5.0"`
	FlatSlope        float64 `yaml:"flat_slope" default:"0.0001"`
	OBLookback       int     `yaml:"ob_lookback" default:"10" validate:"gte=2"`
	PatternLookback  int     `yaml:"pattern_lookback" default:"30" validate:"gte=5"`
	PivotLeft        int     `yaml:"pivot_left" default:"10" validate:"gte=1"`
	PivotRight       int     `yaml:"pivot_right" default:"5" validate:"gte=1"`
	DivergenceSpan   int     `yaml:"divergence_span" default:"2" validate:"gte=1"`
	MinScore         int     `yaml:"min_score" default:"12"`
}

type LoopConfig struct {
	CycleInterval    time.Duration `yaml:"cycle_interval" default:"10m" validate:"gt=0"`
	PositionInterval time.Duration `yaml:"position_interval" default:"1m" validate:"gt=0"`
	RetryBackoff     time.Duration `yaml:"retry_backoff" default:"60s" validate:"gt=0"`
	MaxAttempts      int           `yaml:"max_attempts" validate:"gte=0"`
}
