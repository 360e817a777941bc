package models

import "time"

// TradeLog is an append-only record of an executed entry or exit.
type TradeLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Symbol    string    `gorm:"index;not null" json:"symbol"`
	Side      OrderSide `gorm:"not null" json:"side"`
	Direction Direction `gorm:"not null" json:"direction"`
	Price     float64   `gorm:"type:decimal(20,8);not null" json:"price"`
	Quantity  float64   `gorm:"type:decimal(20,8);not null" json:"quantity"`
	Profit    float64   `gorm:"type:decimal(20,8)" json:"profit"`
	Strategy  string    `json:"strategy"`
	Score     int       `json:"score"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `gorm:"index;not null" json:"timestamp"`
}

// TableName sets the table name for TradeLog model
func (TradeLog) TableName() string {
	return "trade_logs"
}
