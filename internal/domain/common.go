package domain

// Direction represents the side of a position (long or short).
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

// PositionStatus represents the status of a trading position.
type PositionStatus string

const (
	StatusOpen            PositionStatus = "open"
	StatusPartiallyClosed PositionStatus = "partially_closed"
	StatusClosed          PositionStatus = "closed"
)

// OrderType indicates how an entry was placed.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// CloseReason indicates why a position (or a slice of it) was closed.
type CloseReason string

const (
	CloseReasonStopLoss   CloseReason = "stop_loss"
	CloseReasonTakeProfit CloseReason = "take_profit"
	CloseReasonManual     CloseReason = "manual"
)
