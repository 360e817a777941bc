// Package paper simulates a spot exchange account against live or replayed
// prices. Balances are kept in decimal to avoid float drift across fills.
package paper

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"SpotTradeBot/internal/models"
	"SpotTradeBot/internal/operations/position"
)

// dustThreshold removes holdings too small to sell.
var dustThreshold = decimal.New(1, -8)

type holding struct {
	qty decimal.Decimal
	avg decimal.Decimal
}

// Holding is a read-only view of a simulated balance.
type Holding struct {
	Symbol   string  `json:"symbol"`
	Quantity float64 `json:"quantity"`
	AvgPrice float64 `json:"avg_price"`
}

// Exchange fills market orders instantly at the current price of market and
// charges feeRate on the traded notional.
type Exchange struct {
	market  position.MarketDataProvider
	feeRate decimal.Decimal
	log     zerolog.Logger

	mu       sync.Mutex
	cash     decimal.Decimal
	holdings map[string]*holding
}

func NewExchange(market position.MarketDataProvider, capital, feeRate float64, log zerolog.Logger) *Exchange {
	return &Exchange{
		market:   market,
		feeRate:  decimal.NewFromFloat(feeRate),
		log:      log.With().Str("component", "paper").Logger(),
		cash:     decimal.NewFromFloat(capital),
		holdings: make(map[string]*holding),
	}
}

func (e *Exchange) Candles(ctx context.Context, symbol, interval string, count int) ([]models.Candle, error) {
	return e.market.Candles(ctx, symbol, interval, count)
}

func (e *Exchange) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	return e.market.CurrentPrice(ctx, symbol)
}

func (e *Exchange) QuoteBalance(context.Context) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	f, _ := e.cash.Float64()
	return f, nil
}

func (e *Exchange) PositionBalance(_ context.Context, symbol string) (float64, float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	h, ok := e.holdings[symbol]
	if !ok {
		return 0, 0, nil
	}
	qty, _ := h.qty.Float64()
	avg, _ := h.avg.Float64()
	return qty, avg, nil
}

// Holdings lists every non-dust balance.
func (e *Exchange) Holdings() []Holding {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Holding, 0, len(e.holdings))
	for sym, h := range e.holdings {
		qty, _ := h.qty.Float64()
		avg, _ := h.avg.Float64()
		out = append(out, Holding{Symbol: sym, Quantity: qty, AvgPrice: avg})
	}
	return out
}

// SubmitMarketOrder fills the order in full or not at all. Insufficient cash
// or holdings yield (nil, nil), the same as a live funds rejection.
func (e *Exchange) SubmitMarketOrder(ctx context.Context, req position.OrderRequest) (*position.OrderResult, error) {
	if req.Side != models.SideBuy && req.Side != models.SideSell {
		return rejected("unsupported_side", fmt.Sprintf("unsupported order side %q", req.Side)), nil
	}

	p, err := e.market.CurrentPrice(ctx, req.Symbol)
	if err != nil || p <= 0 {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return rejected("price_unavailable", fmt.Sprintf("no price for %s: %v", req.Symbol, err)), nil
	}
	price := decimal.NewFromFloat(p)

	e.mu.Lock()
	defer e.mu.Unlock()

	switch req.Side {
	case models.SideBuy:
		return e.buy(req.Symbol, decimal.NewFromFloat(req.Notional), price), nil
	default:
		return e.sell(req.Symbol, decimal.NewFromFloat(req.Quantity), price), nil
	}
}

func (e *Exchange) buy(symbol string, notional, price decimal.Decimal) *position.OrderResult {
	if !notional.IsPositive() {
		return rejected("invalid_notional", "buy notional must be positive")
	}
	fee := notional.Mul(e.feeRate)
	if notional.Add(fee).GreaterThan(e.cash) {
		e.log.Warn().Str("symbol", symbol).Str("notional", notional.String()).Str("cash", e.cash.String()).Msg("insufficient cash")
		return nil
	}

	qty := notional.Div(price)
	h, ok := e.holdings[symbol]
	if !ok {
		h = &holding{qty: decimal.Zero, avg: decimal.Zero}
		e.holdings[symbol] = h
	}
	total := h.qty.Add(qty)
	h.avg = h.qty.Mul(h.avg).Add(qty.Mul(price)).Div(total)
	h.qty = total
	e.cash = e.cash.Sub(notional).Sub(fee)

	return e.filled(symbol, models.SideBuy, qty, price)
}

func (e *Exchange) sell(symbol string, qty, price decimal.Decimal) *position.OrderResult {
	if !qty.IsPositive() {
		return rejected("invalid_quantity", "sell quantity must be positive")
	}
	h, ok := e.holdings[symbol]
	if !ok || qty.GreaterThan(h.qty) {
		e.log.Warn().Str("symbol", symbol).Str("quantity", qty.String()).Msg("insufficient holdings")
		return nil
	}

	gross := qty.Mul(price)
	e.cash = e.cash.Add(gross.Sub(gross.Mul(e.feeRate)))
	h.qty = h.qty.Sub(qty)
	if h.qty.LessThan(dustThreshold) {
		delete(e.holdings, symbol)
	}

	return e.filled(symbol, models.SideSell, qty, price)
}

func (e *Exchange) filled(symbol string, side models.OrderSide, qty, price decimal.Decimal) *position.OrderResult {
	id := "mock-" + uuid.NewString()
	e.log.Debug().
		Str("order_id", id).
		Str("symbol", symbol).
		Str("side", string(side)).
		Str("quantity", qty.String()).
		Str("price", price.String()).
		Str("cash", e.cash.String()).
		Msg("paper fill")
	return &position.OrderResult{ID: id}
}

func rejected(name, msg string) *position.OrderResult {
	return &position.OrderResult{Error: &position.OrderError{Name: name, Message: msg}}
}
