package models

// Market is a tradable spot pair.
type Market struct {
	Symbol     string `json:"symbol"`
	BaseAsset  string `json:"base_asset"`
	QuoteAsset string `json:"quote_asset"`
	Status     string `json:"status"`
}
