package backtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"SpotTradeBot/internal/models"
)

// replayMarket serves a candle series up to a cursor, so the bot sees
// exactly what it would have seen live at that bar's close.
type replayMarket struct {
	symbol  string
	candles []models.Candle

	mu     sync.RWMutex
	cursor int
}

func newReplayMarket(symbol string, candles []models.Candle) *replayMarket {
	return &replayMarket{symbol: symbol, candles: candles}
}

func (r *replayMarket) advance(i int) {
	r.mu.Lock()
	r.cursor = i
	r.mu.Unlock()
}

func (r *replayMarket) current() models.Candle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.candles[r.cursor]
}

// window returns up to count candles ending at the cursor.
func (r *replayMarket) window(count int) []models.Candle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	end := r.cursor + 1
	start := end - count
	if count <= 0 || start < 0 {
		start = 0
	}
	return r.candles[start:end]
}

// now is the close time of the current bar.
func (r *replayMarket) now() time.Time {
	c := r.current()
	if c.CloseTime.IsZero() {
		return c.OpenTime
	}
	return c.CloseTime
}

func (r *replayMarket) Candles(_ context.Context, symbol, _ string, count int) ([]models.Candle, error) {
	if symbol != r.symbol {
		return nil, fmt.Errorf("no replay data for %s", symbol)
	}
	return r.window(count), nil
}

func (r *replayMarket) CurrentPrice(_ context.Context, symbol string) (float64, error) {
	if symbol != r.symbol {
		return 0, fmt.Errorf("no replay data for %s", symbol)
	}
	return r.current().Close, nil
}

// tradeCollector pairs the buy and sell logs of the position manager into
// round trips.
type tradeCollector struct {
	feeRate float64

	mu     sync.Mutex
	open   *Trade
	trades []Trade
}

func newTradeCollector(feeRate float64) *tradeCollector {
	return &tradeCollector{feeRate: feeRate, trades: []Trade{}}
}

func (c *tradeCollector) Append(_ context.Context, entry *models.TradeLog) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch entry.Side {
	case models.SideBuy:
		c.open = &Trade{
			Symbol:     entry.Symbol,
			Tactic:     entry.Strategy,
			Score:      entry.Score,
			Direction:  entry.Direction,
			EntryTime:  entry.Timestamp,
			EntryPrice: entry.Price,
			Quantity:   entry.Quantity,
		}
	case models.SideSell:
		if c.open == nil {
			return fmt.Errorf("sell of %s without a recorded entry", entry.Symbol)
		}
		t := *c.open
		t.ExitTime = entry.Timestamp
		t.ExitPrice = entry.Price
		t.Reason = entry.Reason
		t.Fees = (t.EntryPrice*t.Quantity + entry.Price*entry.Quantity) * c.feeRate
		t.PnL = entry.Profit - t.Fees
		c.trades = append(c.trades, t)
		c.open = nil
	}
	return nil
}

// setLevels stamps the stop and target of the open trade.
func (c *tradeCollector) setLevels(stop, target float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.open != nil {
		c.open.StopLoss = stop
		c.open.TakeProfit = target
	}
}

func (c *tradeCollector) completed() []Trade {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Trade, len(c.trades))
	copy(out, c.trades)
	return out
}
