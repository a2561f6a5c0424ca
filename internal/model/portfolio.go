package model

import "time"

// Portfolio is the shared capital pool.
// AvailableBalance + UsedBalance == TotalBalance at every observable point.
type Portfolio struct {
	InitialBalance   float64   `json:"initial_balance"`
	TotalBalance     float64   `json:"total_balance"`
	AvailableBalance float64   `json:"available_balance"`
	UsedBalance      float64   `json:"used_balance"`
	TotalPnL         float64   `json:"total_pnl"`
	UpdatedAt        time.Time `json:"updated_at"`
}
