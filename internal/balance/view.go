package balance

import (
	"context"
	"fmt"

	"tradeRoom/internal/domain"
	"tradeRoom/internal/ports"
)

// View derives a room's live balance: stored wallet figures combined with the
// unrealized P&L of all open positions. Pure read combinator; no mutation.
type View struct {
	wallets   ports.WalletStore
	positions ports.PositionStore
}

// NewView creates a balance reconciliation view.
func NewView(wallets ports.WalletStore, positions ports.PositionStore) (*View, error) {
	if wallets == nil || positions == nil {
		return nil, fmt.Errorf("missing required dependencies for balance view")
	}
	return &View{wallets: wallets, positions: positions}, nil
}

// GetRoomBalance returns the room's holdings, locked margin, available
// balance, live unrealized P&L, and valuation (holdings + unrealized P&L).
func (v *View) GetRoomBalance(ctx context.Context, roomID string) (*domain.RoomBalance, error) {
	wallet, err := v.wallets.GetRoomWallet(ctx, roomID)
	if err != nil {
		return nil, err
	}
	open, err := v.positions.FindOpenByRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	var unrealized float64
	for _, pos := range open {
		unrealized += pos.CurrentPnl
	}
	return &domain.RoomBalance{
		RoomID:        roomID,
		Holdings:      wallet.Holdings,
		LockedMargin:  wallet.LockedMargin,
		Available:     wallet.Available,
		UnrealizedPnl: unrealized,
		Valuation:     wallet.Holdings + unrealized,
	}, nil
}
