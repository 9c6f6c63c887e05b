package models

import "gorm.io/gorm"

// DailySummary is written once per rollover with the day's aggregate result.
type DailySummary struct {
	gorm.Model
	Day        string  `json:"day" gorm:"uniqueIndex"`
	Trades     int     `json:"trades"`
	Wins       int     `json:"wins"`
	TotalPnL   float64 `json:"total_pnl"`
	BestTrade  float64 `json:"best_trade"`
	WorstTrade float64 `json:"worst_trade"`
	TargetHit  bool    `json:"target_hit"`
}
