package ports

import (
	"context"
	"time"

	"tradeRoom/internal/domain"
)

// PositionStore is the persistence service for positions. The three *Tx
// methods are transactional procedures: each must apply its balance movement,
// position mutation, and history write as a single atomic unit. The core
// relies on that contract and does not attempt to provide atomicity itself.
type PositionStore interface {
	// ExecuteTrade atomically validates the room's available balance, debits
	// the entry amount as locked margin, and inserts the open position.
	// Returns ErrRoomNotFound or ErrInsufficientFunds on validation failure.
	ExecuteTrade(ctx context.Context, pos *domain.Position) error

	// ClosePosition atomically marks the position closed, releases the margin
	// not already freed by partial closes, credits/debits the realized P&L,
	// and writes one trade-history record.
	ClosePosition(ctx context.Context, pos *domain.Position, trade *domain.TradeHistory) error

	// PartialClosePosition is the partial variant: it releases the closed
	// slice's margin, applies the slice's realized P&L, marks the position
	// partially_closed, and writes one trade-history record.
	PartialClosePosition(ctx context.Context, pos *domain.Position, trade *domain.TradeHistory) error

	// UpdatePriceData propagates a recomputed price/P&L to the durable record.
	UpdatePriceData(ctx context.Context, positionID string, price, pnl, pnlPercentage float64, at time.Time) error

	// ApplyFundingFee atomically adds fee to the position's cumulative funding
	// fee and adjusts the owning room's balance by -fee.
	ApplyFundingFee(ctx context.Context, positionID, roomID string, fee float64, at time.Time) error

	// FindByID retrieves a position by id. Returns nil, nil if not found.
	FindByID(ctx context.Context, id string) (*domain.Position, error)

	// FindOpenByRoom retrieves all live (open or partially closed) positions
	// for a room, ordered by creation time descending.
	FindOpenByRoom(ctx context.Context, roomID string) ([]*domain.Position, error)

	// FindAllOpen retrieves all live positions across rooms (funding runs).
	FindAllOpen(ctx context.Context) ([]*domain.Position, error)
}

// TradeHistoryStore reads the immutable close records. Writes happen only
// inside the PositionStore close transactions.
type TradeHistoryStore interface {
	// FindByRoom retrieves the most recent trades for a room, up to a limit.
	FindByRoom(ctx context.Context, roomID string, limit int) ([]*domain.TradeHistory, error)
	// FindByPosition retrieves all close records for a position, oldest first.
	FindByPosition(ctx context.Context, positionID string) ([]*domain.TradeHistory, error)
}

// WalletStore manages the stored virtual-currency state of rooms.
type WalletStore interface {
	// CreateRoom seeds a new room wallet with a starting virtual balance.
	CreateRoom(ctx context.Context, roomID string, startingBalance float64) error
	// GetRoomWallet retrieves a room's wallet. Returns ErrRoomNotFound if the
	// room does not exist.
	GetRoomWallet(ctx context.Context, roomID string) (*domain.RoomWallet, error)
}

// FundingStore persists funding-rate snapshots and funding payments.
type FundingStore interface {
	// LatestSnapshot returns the most recent snapshot for a symbol, or nil,
	// nil if none has ever been stored.
	LatestSnapshot(ctx context.Context, symbol string) (*domain.FundingRateSnapshot, error)
	// LatestFetchTime returns the newest FetchedAt across all symbols, or the
	// zero time if no snapshot exists. Used for the global refresh throttle.
	LatestFetchTime(ctx context.Context) (time.Time, error)
	// SaveSnapshots stores a batch of refreshed snapshots.
	SaveSnapshots(ctx context.Context, snapshots []*domain.FundingRateSnapshot) error
	// InsertPayments stores one funding run's payments as a single batch.
	InsertPayments(ctx context.Context, payments []*domain.FundingPayment) error
}
