package position

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"SpotTradeBot/internal/models"
)

// MarketDataProvider serves candles (oldest first) and spot prices.
type MarketDataProvider interface {
	Candles(ctx context.Context, symbol, interval string, count int) ([]models.Candle, error)
	CurrentPrice(ctx context.Context, symbol string) (float64, error)
}

// AccountProvider reports the quote balance and the held base quantity with
// its average buy price.
type AccountProvider interface {
	QuoteBalance(ctx context.Context) (float64, error)
	PositionBalance(ctx context.Context, symbol string) (quantity, avgPrice float64, err error)
}

// OrderExecution submits market orders. A nil result with a nil error means
// the exchange gave no answer (rate limit, insufficient funds) and the
// caller may retry next cycle. A result carrying Error is a hard rejection.
type OrderExecution interface {
	SubmitMarketOrder(ctx context.Context, req OrderRequest) (*OrderResult, error)
}

// TradeLogSink receives executed trades. Failures never block trading.
type TradeLogSink interface {
	Append(ctx context.Context, entry *models.TradeLog) error
}

// OrderRequest buys by quote notional or sells by base quantity.
type OrderRequest struct {
	Symbol   string
	Side     models.OrderSide
	Notional float64
	Quantity float64
}

type OrderResult struct {
	ID    string      `json:"id,omitempty"`
	Error *OrderError `json:"error,omitempty"`
}

// OrderError is an exchange error payload. It decodes from either a bare
// JSON string or an object with a message field.
type OrderError struct {
	Name    string `json:"name,omitempty"`
	Message string `json:"message"`
}

func (e *OrderError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s: %s", e.Name, e.Message)
	}
	return e.Message
}

func (e *OrderError) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &e.Message)
	}
	var obj struct {
		Name    string `json:"name"`
		Message string `json:"message"`
		Msg     string `json:"msg"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	e.Name = obj.Name
	e.Message = obj.Message
	if e.Message == "" {
		e.Message = obj.Msg
	}
	return nil
}
