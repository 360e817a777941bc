package binance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"SpotTradeBot/config"
	"SpotTradeBot/internal/models"
	"SpotTradeBot/internal/operations/position"
)

// maxKlines is the exchange's per-request kline limit.
const maxKlines = 1000

// Error codes the exchange uses for conditions that clear up on their own.
const (
	codeTooManyRequests    = -1003
	codeTooManyOrders      = -1015
	codeInsufficientFunds  = -2010
	tradesLookupLimit      = 500
	quoteNotionalPrecision = 2
)

// BinanceClient is the live spot adapter. Every request waits on a shared
// rate limiter; read requests are retried with exponential backoff.
type BinanceClient struct {
	client      *binance.Client
	rateLimiter *rate.Limiter
	quoteAsset  string
	maxRetries  int
	backoff     time.Duration
	log         zerolog.Logger

	mu        sync.Mutex
	stepSizes map[string]decimal.Decimal
}

func NewBinanceClient(cfg config.ExchangeConfig, log zerolog.Logger) *BinanceClient {
	httpClient := &http.Client{
		Timeout: time.Second * 10,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	spot := binance.NewClient(cfg.APIKey, cfg.SecretKey)
	spot.HTTPClient = httpClient
	if cfg.BaseURL != "" {
		spot.BaseURL = cfg.BaseURL
	}

	limit, burst := cfg.RateLimit, cfg.RateBurst
	if limit <= 0 {
		limit = 10
	}
	if burst <= 0 {
		burst = 20
	}

	return &BinanceClient{
		client:      spot,
		rateLimiter: rate.NewLimiter(rate.Limit(limit), burst),
		quoteAsset:  strings.ToUpper(cfg.QuoteAsset),
		maxRetries:  cfg.MaxRetries,
		backoff:     100 * time.Millisecond,
		log:         log.With().Str("component", "binance").Logger(),
		stepSizes:   make(map[string]decimal.Decimal),
	}
}

// retry runs fn until it succeeds, the attempts are exhausted or ctx ends.
// Exchange rejections other than rate limiting are returned immediately.
func (c *BinanceClient) retry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err = c.rateLimiter.Wait(ctx); err != nil {
			return err
		}
		if err = fn(); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !retryable(err) || attempt == c.maxRetries {
			break
		}

		waitTime := time.Duration(math.Pow(2, float64(attempt))) * c.backoff
		c.log.Debug().Err(err).Str("op", op).Int("attempt", attempt+1).Dur("wait", waitTime).Msg("retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func retryable(err error) bool {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == codeTooManyRequests
	}
	return true
}

// Candles returns the newest count bars, oldest first.
func (c *BinanceClient) Candles(ctx context.Context, symbol, interval string, count int) ([]models.Candle, error) {
	if count <= 0 || count > maxKlines {
		count = maxKlines
	}
	var klines []*binance.Kline
	err := c.retry(ctx, "klines", func() error {
		var err error
		klines, err = c.client.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			Limit(count).
			Do(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return toCandles(symbol, interval, klines), nil
}

// KlinesBetween fetches at most maxKlines bars opening in [start, end].
func (c *BinanceClient) KlinesBetween(ctx context.Context, symbol, interval string, start, end time.Time) ([]models.Candle, error) {
	var klines []*binance.Kline
	err := c.retry(ctx, "klines", func() error {
		var err error
		klines, err = c.client.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			StartTime(start.UnixMilli()).
			EndTime(end.UnixMilli()).
			Limit(maxKlines).
			Do(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return toCandles(symbol, interval, klines), nil
}

func (c *BinanceClient) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	var prices []*binance.SymbolPrice
	err := c.retry(ctx, "ticker price", func() error {
		var err error
		prices, err = c.client.NewListPricesService().Symbol(symbol).Do(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}
	for _, p := range prices {
		if p.Symbol == symbol {
			return parseFloat(p.Price), nil
		}
	}
	return 0, fmt.Errorf("no ticker price for %s", symbol)
}

func (c *BinanceClient) account(ctx context.Context) (*binance.Account, error) {
	var acct *binance.Account
	err := c.retry(ctx, "account", func() error {
		var err error
		acct, err = c.client.NewGetAccountService().Do(ctx)
		return err
	})
	return acct, err
}

// QuoteBalance is the free balance of the configured quote asset.
func (c *BinanceClient) QuoteBalance(ctx context.Context) (float64, error) {
	acct, err := c.account(ctx)
	if err != nil {
		return 0, err
	}
	free, _ := assetBalance(acct.Balances, c.quoteAsset)
	return free, nil
}

// PositionBalance reports the held base quantity and the average price of
// the most recent buys that make up that quantity.
func (c *BinanceClient) PositionBalance(ctx context.Context, symbol string) (float64, float64, error) {
	base, ok := baseAsset(symbol, c.quoteAsset)
	if !ok {
		return 0, 0, fmt.Errorf("symbol %s is not quoted in %s", symbol, c.quoteAsset)
	}
	acct, err := c.account(ctx)
	if err != nil {
		return 0, 0, err
	}
	free, locked := assetBalance(acct.Balances, base)
	qty := free + locked
	if qty <= 0 {
		return 0, 0, nil
	}

	var trades []*binance.TradeV3
	err = c.retry(ctx, "my trades", func() error {
		var err error
		trades, err = c.client.NewListTradesService().Symbol(symbol).Limit(tradesLookupLimit).Do(ctx)
		return err
	})
	if err != nil {
		return 0, 0, err
	}
	return qty, averageEntryPrice(trades, qty), nil
}

// SubmitMarketOrder places a market order. Buys spend Notional in the quote
// asset; sells dispose of Quantity in the base asset. Orders are never
// retried here: a rate limit or funds rejection is reported as (nil, nil) so
// the caller retries on its next cycle.
func (c *BinanceClient) SubmitMarketOrder(ctx context.Context, req position.OrderRequest) (*position.OrderResult, error) {
	svc := c.client.NewCreateOrderService().
		Symbol(req.Symbol).
		Type(binance.OrderTypeMarket)

	switch req.Side {
	case models.SideBuy:
		svc = svc.Side(binance.SideTypeBuy).
			QuoteOrderQty(formatNotional(req.Notional))
	case models.SideSell:
		step, err := c.stepSize(ctx, req.Symbol)
		if err != nil {
			return nil, err
		}
		qty := formatQuantity(req.Quantity, step)
		if qty == "0" {
			return &position.OrderResult{Error: &position.OrderError{
				Name:    "invalid_quantity",
				Message: fmt.Sprintf("quantity %v rounds to zero at step %s", req.Quantity, step),
			}}, nil
		}
		svc = svc.Side(binance.SideTypeSell).Quantity(qty)
	default:
		return &position.OrderResult{Error: &position.OrderError{
			Name:    "unsupported_side",
			Message: fmt.Sprintf("unsupported order side %q", req.Side),
		}}, nil
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := svc.Do(ctx)
	return orderResult(resp, err)
}

// Markets lists the trading pairs quoted in the configured quote asset.
func (c *BinanceClient) Markets(ctx context.Context) ([]models.Market, error) {
	info, err := c.exchangeInfo(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.Market, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.QuoteAsset != c.quoteAsset || s.Status != string(binance.SymbolStatusTypeTrading) {
			continue
		}
		out = append(out, models.Market{
			Symbol:     s.Symbol,
			BaseAsset:  s.BaseAsset,
			QuoteAsset: s.QuoteAsset,
			Status:     s.Status,
		})
	}
	return out, nil
}

func (c *BinanceClient) exchangeInfo(ctx context.Context, symbols ...string) (*binance.ExchangeInfo, error) {
	var info *binance.ExchangeInfo
	err := c.retry(ctx, "exchange info", func() error {
		svc := c.client.NewExchangeInfoService()
		if len(symbols) > 0 {
			svc = svc.Symbols(symbols...)
		}
		var err error
		info, err = svc.Do(ctx)
		return err
	})
	return info, err
}

func (c *BinanceClient) stepSize(ctx context.Context, symbol string) (decimal.Decimal, error) {
	c.mu.Lock()
	step, ok := c.stepSizes[symbol]
	c.mu.Unlock()
	if ok {
		return step, nil
	}

	info, err := c.exchangeInfo(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	step = decimal.Zero
	for i := range info.Symbols {
		if info.Symbols[i].Symbol != symbol {
			continue
		}
		if f := info.Symbols[i].LotSizeFilter(); f != nil {
			step, _ = decimal.NewFromString(f.StepSize)
		}
	}

	c.mu.Lock()
	c.stepSizes[symbol] = step
	c.mu.Unlock()
	return step, nil
}

// orderResult maps an exchange reply onto the execution contract.
func orderResult(resp *binance.CreateOrderResponse, err error) (*position.OrderResult, error) {
	if err != nil {
		var apiErr *common.APIError
		if !errors.As(err, &apiErr) {
			return nil, err
		}
		switch apiErr.Code {
		case codeTooManyRequests, codeTooManyOrders, codeInsufficientFunds:
			return nil, nil
		}
		return &position.OrderResult{Error: &position.OrderError{
			Name:    strconv.FormatInt(apiErr.Code, 10),
			Message: apiErr.Message,
		}}, nil
	}
	if resp == nil {
		return nil, nil
	}
	return &position.OrderResult{ID: strconv.FormatInt(resp.OrderID, 10)}, nil
}

func toCandles(symbol, interval string, klines []*binance.Kline) []models.Candle {
	out := make([]models.Candle, 0, len(klines))
	for _, k := range klines {
		out = append(out, models.Candle{
			Symbol:     symbol,
			TimeFrame:  interval,
			OpenTime:   time.UnixMilli(k.OpenTime).UTC(),
			CloseTime:  time.UnixMilli(k.CloseTime).UTC(),
			Open:       parseFloat(k.Open),
			High:       parseFloat(k.High),
			Low:        parseFloat(k.Low),
			Close:      parseFloat(k.Close),
			Volume:     parseFloat(k.Volume),
			TradeCount: k.TradeNum,
		})
	}
	return out
}

// averageEntryPrice walks buys newest first until they cover held and
// returns their volume-weighted price. Sells are ignored.
func averageEntryPrice(trades []*binance.TradeV3, held float64) float64 {
	remaining := decimal.NewFromFloat(held)
	cost := decimal.Zero
	filled := decimal.Zero
	for i := len(trades) - 1; i >= 0 && remaining.IsPositive(); i-- {
		t := trades[i]
		if !t.IsBuyer {
			continue
		}
		qty, err := decimal.NewFromString(t.Quantity)
		if err != nil {
			continue
		}
		price, err := decimal.NewFromString(t.Price)
		if err != nil {
			continue
		}
		take := decimal.Min(qty, remaining)
		cost = cost.Add(take.Mul(price))
		filled = filled.Add(take)
		remaining = remaining.Sub(take)
	}
	if !filled.IsPositive() {
		return 0
	}
	avg, _ := cost.Div(filled).Float64()
	return avg
}

func assetBalance(balances []binance.Balance, asset string) (free, locked float64) {
	for _, b := range balances {
		if strings.EqualFold(b.Asset, asset) {
			return parseFloat(b.Free), parseFloat(b.Locked)
		}
	}
	return 0, 0
}

func baseAsset(symbol, quote string) (string, bool) {
	symbol = strings.ToUpper(symbol)
	if quote == "" || !strings.HasSuffix(symbol, quote) || len(symbol) == len(quote) {
		return "", false
	}
	return strings.TrimSuffix(symbol, quote), true
}

func formatNotional(v float64) string {
	return decimal.NewFromFloat(v).Truncate(quoteNotionalPrecision).String()
}

// formatQuantity floors v to the lot step. A zero step keeps 8 decimals.
func formatQuantity(v float64, step decimal.Decimal) string {
	q := decimal.NewFromFloat(v)
	if !step.IsPositive() {
		return q.Truncate(8).String()
	}
	return q.Div(step).Floor().Mul(step).String()
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
