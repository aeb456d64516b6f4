package domain

import "time"

// TradeHistory is the immutable record of a completed close event. A position
// closed in two partial steps plus a final close yields three records.
type TradeHistory struct {
	ID              string // Opaque unique identifier (UUID)
	PositionID      string // Back-reference to the position, not ownership
	RoomID          string
	UserID          string
	Symbol          string
	Direction       Direction
	EntryPrice      float64
	ExitPrice       float64
	Pnl             float64 // Realized P&L for the closed slice
	PnlPercentage   float64
	TradeVolume     float64 // Closed notional * 2, modeling the round trip
	ClosePercentage float64 // Slice closed (100 for a full close)
	CloseReason     CloseReason
	ClosedAt        time.Time
}
