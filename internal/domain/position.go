package domain

import "time"

// Position represents a single leveraged exposure held inside a trading room.
type Position struct {
	ID             string         // Opaque unique identifier (UUID)
	RoomID         string         // Room that owns the position
	UserID         string         // User that opened the position
	Symbol         string         // Trading symbol (e.g., "BTCUSDT")
	Direction      Direction      // long or short
	EntryPrice     float64        // Price at which the position was entered
	EntryAmount    float64        // Margin committed at entry
	Leverage       int            // Leverage used for the position
	PositionSize   float64        // EntryAmount * Leverage, fixed at creation
	CurrentPrice   float64        // Last known price (0 until the first tick)
	CurrentPnl     float64        // Unrealized P&L at CurrentPrice
	PnlPercentage  float64        // CurrentPnl / EntryAmount * 100
	StopLoss       float64        // Stop-loss price level (0 means not set)
	TakeProfit     float64        // Take-profit price level (0 means not set)
	ReleasedMargin float64        // Margin already released by partial closes
	FundingFee     float64        // Cumulative funding fee over the position's life (signed)
	OrderType      OrderType      // How the entry was placed
	Status         PositionStatus // open, partially_closed, or closed
	CreatedAt      time.Time
	UpdatedAt      time.Time
	LastFundingAt  time.Time // When funding was last applied (zero value if never)
}

// IsOpen reports whether the position is still live for ticks, triggers, and
// closes. A partially closed position remains live at its original size.
func (p *Position) IsOpen() bool {
	return p.Status == StatusOpen || p.Status == StatusPartiallyClosed
}
