package domain

import "time"

// FundingRateSnapshot is the most recent known funding rate for a symbol.
type FundingRateSnapshot struct {
	Symbol          string
	FundingRate     float64 // Signed fraction (e.g., 0.0001)
	MarkPrice       float64
	IndexPrice      float64
	NextFundingTime time.Time // UTC instant of the next funding boundary
	FetchedAt       time.Time
}

// FundingPayment records one funding debit or credit applied to a position.
// A positive fee debits the trader; the room balance adjustment is -Fee.
type FundingPayment struct {
	ID           string
	PositionID   string
	RoomID       string
	Symbol       string
	Direction    Direction
	FundingRate  float64 // Raw symbol rate at application time
	PositionSize float64
	Fee          float64 // PositionSize * (rate for long, -rate for short)
	AppliedAt    time.Time
}
