package backtest

import (
	"time"

	"SpotTradeBot/internal/models"
)

// Trade is one completed round trip. PnL is net of fees.
type Trade struct {
	Symbol     string           `json:"symbol"`
	Tactic     string           `json:"tactic"`
	Score      int              `json:"score"`
	Direction  models.Direction `json:"direction"`
	EntryTime  time.Time        `json:"entry_time"`
	ExitTime   time.Time        `json:"exit_time"`
	EntryPrice float64          `json:"entry_price"`
	ExitPrice  float64          `json:"exit_price"`
	Quantity   float64          `json:"quantity"`
	StopLoss   float64          `json:"stop_loss"`
	TakeProfit float64          `json:"take_profit"`
	Fees       float64          `json:"fees"`
	PnL        float64          `json:"pnl"`
	Reason     string           `json:"reason"`
}

// EquityPoint is cash plus the marked value of holdings at a bar close.
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Balance   float64   `json:"balance"`
}

type BacktestResults struct {
	// Trade metrics
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"`
	AveragePnL    float64 `json:"average_pnl"`

	// Signal funnel
	Signals          int `json:"signals"`
	SizingRejections int `json:"sizing_rejections"`

	// Performance metrics
	MaxDrawdown  float64 `json:"max_drawdown"`
	FinalBalance float64 `json:"final_balance"`
	SharpeRatio  float64 `json:"sharpe_ratio"`

	// Detailed records
	Trades      []Trade       `json:"trades"`
	EquityCurve []EquityPoint `json:"equity_curve"`
}

// EndOfDataReason closes a position still open after the last bar.
const EndOfDataReason = "end_of_data"

type Config struct {
	Symbol   string
	Interval string

	// Simulated account
	InitialBalance   float64
	FeeRate          float64
	MinOrderNotional float64

	// Window is the number of candles each decision sees, like the live
	// candle count. Bars before Warmup are replayed but not traded.
	Window int
	Warmup int
}

// NewConfig returns the paper account defaults.
func NewConfig(symbol string) Config {
	return Config{
		Symbol:           symbol,
		Interval:         models.TimeFrame1h,
		InitialBalance:   10_000_000,
		FeeRate:          0.0005,
		MinOrderNotional: 5000,
		Window:           200,
		Warmup:           50,
	}
}
