package models

import "gorm.io/gorm"

// TradeEvent is one journal row per order-lifecycle event: a stop order
// placed, a fill, an expiry, a close. Mirrors the append-only trade log of
// the strategy; rows are never updated.
type TradeEvent struct {
	gorm.Model
	Symbol     string  `json:"symbol"`
	Event      string  `json:"event"` // e.g. "trend_buy", "Triggered(long)", "close(short)"
	Price      float64 `json:"price"`
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`
	Note       string  `json:"note"`
}
