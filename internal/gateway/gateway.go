package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tradeRoom/internal/domain"
	"tradeRoom/internal/ports"
)

// Gateway validates and records trade intents and closure intents. All
// balance movements happen inside the store's transactional procedures; the
// gateway never mutates balances itself.
type Gateway struct {
	positions ports.PositionStore
	wallets   ports.WalletStore
	logger    ports.Logger
	now       func() time.Time
}

// Config holds the gateway's dependencies.
type Config struct {
	Positions ports.PositionStore
	Wallets   ports.WalletStore
	Logger    ports.Logger
	Now       func() time.Time
}

// TradeRequest is a validated-at-the-edge trade intent.
type TradeRequest struct {
	RoomID      string
	UserID      string
	Symbol      string
	Direction   domain.Direction
	EntryAmount float64
	Leverage    int
	EntryPrice  float64
	StopLoss    float64 // 0 means not set
	TakeProfit  float64 // 0 means not set
	OrderType   domain.OrderType
}

// CloseResult reports a realized close (full or partial).
type CloseResult struct {
	Pnl           float64
	PnlPercentage float64
	Trade         *domain.TradeHistory
	Position      *domain.Position
}

// New creates a trade execution gateway.
func New(cfg Config) (*Gateway, error) {
	if cfg.Positions == nil || cfg.Wallets == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("missing required dependencies for Gateway")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Gateway{
		positions: cfg.Positions,
		wallets:   cfg.Wallets,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}, nil
}

// ExecuteTrade validates a trade intent and records the new open position.
// PositionSize is computed once here and passed through unchanged; downstream
// code must never recalculate it.
func (g *Gateway) ExecuteTrade(ctx context.Context, req TradeRequest) (*domain.Position, error) {
	op := "ExecuteTrade"
	if req.UserID == "" {
		return nil, fmt.Errorf("%s: %w", op, ports.ErrUnauthenticated)
	}
	if req.EntryAmount <= 0 {
		return nil, fmt.Errorf("%s: entry amount must be positive: %w", op, ports.ErrInvalidRequest)
	}
	if req.Leverage < 1 {
		return nil, fmt.Errorf("%s: leverage must be a positive integer: %w", op, ports.ErrInvalidRequest)
	}
	if req.EntryPrice <= 0 {
		return nil, fmt.Errorf("%s: entry price must be positive: %w", op, ports.ErrInvalidRequest)
	}
	if req.Direction != domain.Long && req.Direction != domain.Short {
		return nil, fmt.Errorf("%s: unknown direction %q: %w", op, req.Direction, ports.ErrInvalidRequest)
	}

	wallet, err := g.wallets.GetRoomWallet(ctx, req.RoomID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if req.EntryAmount > wallet.Available {
		g.logger.Warn(ctx, op+": rejected for insufficient funds", map[string]interface{}{
			"roomID": req.RoomID, "entryAmount": req.EntryAmount, "available": wallet.Available,
		})
		return nil, fmt.Errorf("%s: %w", op, ports.ErrInsufficientFunds)
	}

	now := g.now().UTC()
	orderType := req.OrderType
	if orderType == "" {
		orderType = domain.OrderTypeMarket
	}
	pos := &domain.Position{
		ID:           uuid.NewString(),
		RoomID:       req.RoomID,
		UserID:       req.UserID,
		Symbol:       req.Symbol,
		Direction:    req.Direction,
		EntryPrice:   req.EntryPrice,
		EntryAmount:  req.EntryAmount,
		Leverage:     req.Leverage,
		PositionSize: req.EntryAmount * float64(req.Leverage),
		StopLoss:     req.StopLoss,
		TakeProfit:   req.TakeProfit,
		OrderType:    orderType,
		Status:       domain.StatusOpen,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	// The store re-validates and debits margin inside one transaction; the
	// read above only gives the caller an early, friendly rejection.
	if err := g.positions.ExecuteTrade(ctx, pos); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	g.logger.Info(ctx, op+": position opened", map[string]interface{}{
		"positionID": pos.ID, "roomID": pos.RoomID, "symbol": pos.Symbol,
		"direction": string(pos.Direction), "entryAmount": pos.EntryAmount,
		"leverage": pos.Leverage, "positionSize": pos.PositionSize,
	})
	return pos, nil
}

// ClosePosition fully closes a position at the exact exit price supplied.
// When exitPrice <= 0, the position's last known price is used, falling back
// to the entry price. No synthetic adjustment is ever applied to the price.
func (g *Gateway) ClosePosition(ctx context.Context, positionID string, exitPrice float64, reason domain.CloseReason) (*CloseResult, error) {
	op := "ClosePosition"
	pos, err := g.loadLive(ctx, op, positionID)
	if err != nil {
		return nil, err
	}
	exitPrice = fallbackExitPrice(exitPrice, pos)

	pnl, pnlPct := domain.ComputePnl(pos.Direction, pos.EntryPrice, exitPrice, pos.PositionSize, pos.EntryAmount)
	now := g.now().UTC()
	trade := &domain.TradeHistory{
		ID:              uuid.NewString(),
		PositionID:      pos.ID,
		RoomID:          pos.RoomID,
		UserID:          pos.UserID,
		Symbol:          pos.Symbol,
		Direction:       pos.Direction,
		EntryPrice:      pos.EntryPrice,
		ExitPrice:       exitPrice,
		Pnl:             pnl,
		PnlPercentage:   pnlPct,
		TradeVolume:     pos.PositionSize * 2,
		ClosePercentage: 100,
		CloseReason:     reason,
		ClosedAt:        now,
	}

	pos.Status = domain.StatusClosed
	pos.CurrentPrice = exitPrice
	pos.CurrentPnl = pnl
	pos.PnlPercentage = pnlPct
	pos.UpdatedAt = now

	if err := g.positions.ClosePosition(ctx, pos, trade); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	g.logger.Info(ctx, op+": position closed", map[string]interface{}{
		"positionID": pos.ID, "exitPrice": exitPrice, "pnl": pnl, "reason": string(reason),
	})
	return &CloseResult{Pnl: pnl, PnlPercentage: pnlPct, Trade: trade, Position: pos}, nil
}

// PartialClosePosition closes a percentage slice of a position. The slice's
// notional is PositionSize * percentage/100; the remainder keeps the original
// size and entry amount for further ticks, triggers, and closes.
func (g *Gateway) PartialClosePosition(ctx context.Context, positionID string, percentage, exitPrice float64, reason domain.CloseReason) (*CloseResult, error) {
	op := "PartialClosePosition"
	if percentage <= 0 || percentage >= 100 {
		return nil, fmt.Errorf("%s: got %v: %w", op, percentage, ports.ErrInvalidPercentage)
	}
	pos, err := g.loadLive(ctx, op, positionID)
	if err != nil {
		return nil, err
	}
	exitPrice = fallbackExitPrice(exitPrice, pos)

	closeAmount := pos.PositionSize * percentage / 100
	closeEntryAmount := pos.EntryAmount * percentage / 100
	pnl, pnlPct := domain.ComputePnl(pos.Direction, pos.EntryPrice, exitPrice, closeAmount, closeEntryAmount)
	now := g.now().UTC()
	trade := &domain.TradeHistory{
		ID:              uuid.NewString(),
		PositionID:      pos.ID,
		RoomID:          pos.RoomID,
		UserID:          pos.UserID,
		Symbol:          pos.Symbol,
		Direction:       pos.Direction,
		EntryPrice:      pos.EntryPrice,
		ExitPrice:       exitPrice,
		Pnl:             pnl,
		PnlPercentage:   pnlPct,
		TradeVolume:     closeAmount * 2,
		ClosePercentage: percentage,
		CloseReason:     reason,
		ClosedAt:        now,
	}

	pos.Status = domain.StatusPartiallyClosed
	pos.ReleasedMargin += closeEntryAmount
	pos.UpdatedAt = now

	if err := g.positions.PartialClosePosition(ctx, pos, trade); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	g.logger.Info(ctx, op+": slice closed", map[string]interface{}{
		"positionID": pos.ID, "percentage": percentage, "exitPrice": exitPrice, "pnl": pnl,
	})
	return &CloseResult{Pnl: pnl, PnlPercentage: pnlPct, Trade: trade, Position: pos}, nil
}

func (g *Gateway) loadLive(ctx context.Context, op, positionID string) (*domain.Position, error) {
	pos, err := g.positions.FindByID(ctx, positionID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if pos == nil {
		return nil, fmt.Errorf("%s: %s: %w", op, positionID, ports.ErrPositionNotFound)
	}
	if pos.Status == domain.StatusClosed {
		return nil, fmt.Errorf("%s: %s: %w", op, positionID, ports.ErrPositionClosed)
	}
	return pos, nil
}

func fallbackExitPrice(exitPrice float64, pos *domain.Position) float64 {
	if exitPrice > 0 {
		return exitPrice
	}
	if pos.CurrentPrice > 0 {
		return pos.CurrentPrice
	}
	return pos.EntryPrice
}
