package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeRoom/internal/domain"
	"tradeRoom/internal/ports"
)

// Mock implementations

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type mockPositionStore struct {
	ports.PositionStore

	executed       []*domain.Position
	closed         []*domain.Position
	closedTrades   []*domain.TradeHistory
	partials       []*domain.Position
	partialTrades  []*domain.TradeHistory
	findByIDResult *domain.Position
	findByIDErr    error
	executeErr     error
	closeErr       error
}

func (m *mockPositionStore) ExecuteTrade(ctx context.Context, pos *domain.Position) error {
	if m.executeErr != nil {
		return m.executeErr
	}
	m.executed = append(m.executed, pos)
	return nil
}

func (m *mockPositionStore) ClosePosition(ctx context.Context, pos *domain.Position, trade *domain.TradeHistory) error {
	if m.closeErr != nil {
		return m.closeErr
	}
	m.closed = append(m.closed, pos)
	m.closedTrades = append(m.closedTrades, trade)
	return nil
}

func (m *mockPositionStore) PartialClosePosition(ctx context.Context, pos *domain.Position, trade *domain.TradeHistory) error {
	m.partials = append(m.partials, pos)
	m.partialTrades = append(m.partialTrades, trade)
	return nil
}

func (m *mockPositionStore) FindByID(ctx context.Context, positionID string) (*domain.Position, error) {
	return m.findByIDResult, m.findByIDErr
}

type mockWalletStore struct {
	ports.WalletStore

	wallet    *domain.RoomWallet
	walletErr error
}

func (m *mockWalletStore) GetRoomWallet(ctx context.Context, roomID string) (*domain.RoomWallet, error) {
	return m.wallet, m.walletErr
}

func newTestGateway(t *testing.T, positions *mockPositionStore, wallets *mockWalletStore) *Gateway {
	t.Helper()
	g, err := New(Config{
		Positions: positions,
		Wallets:   wallets,
		Logger:    &mockLogger{},
		Now:       func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return g
}

func validRequest() TradeRequest {
	return TradeRequest{
		RoomID:      "room-1",
		UserID:      "user-1",
		Symbol:      "BTCUSDT",
		Direction:   domain.Long,
		EntryAmount: 1000,
		Leverage:    10,
		EntryPrice:  50000,
		StopLoss:    48000,
		TakeProfit:  55000,
	}
}

func livePosition() *domain.Position {
	return &domain.Position{
		ID:           "p1",
		RoomID:       "room-1",
		UserID:       "user-1",
		Symbol:       "BTCUSDT",
		Direction:    domain.Long,
		EntryPrice:   100,
		EntryAmount:  100,
		Leverage:     10,
		PositionSize: 1000,
		Status:       domain.StatusOpen,
	}
}

func TestExecuteTrade(t *testing.T) {
	positions := &mockPositionStore{}
	wallets := &mockWalletStore{wallet: &domain.RoomWallet{RoomID: "room-1", Holdings: 10000, Available: 10000}}
	g := newTestGateway(t, positions, wallets)

	pos, err := g.ExecuteTrade(context.Background(), validRequest())
	require.NoError(t, err)
	require.Len(t, positions.executed, 1)

	assert.NotEmpty(t, pos.ID)
	assert.Equal(t, domain.StatusOpen, pos.Status)
	assert.Equal(t, 10000.0, pos.PositionSize, "position size is amount times leverage")
	assert.Equal(t, domain.OrderTypeMarket, pos.OrderType, "order type defaults to market")
	assert.Equal(t, 48000.0, pos.StopLoss)
	assert.Equal(t, 55000.0, pos.TakeProfit)
}

func TestExecuteTradeValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*TradeRequest)
		wantErr error
	}{
		{"missing user", func(r *TradeRequest) { r.UserID = "" }, ports.ErrUnauthenticated},
		{"zero amount", func(r *TradeRequest) { r.EntryAmount = 0 }, ports.ErrInvalidRequest},
		{"negative amount", func(r *TradeRequest) { r.EntryAmount = -50 }, ports.ErrInvalidRequest},
		{"zero leverage", func(r *TradeRequest) { r.Leverage = 0 }, ports.ErrInvalidRequest},
		{"zero entry price", func(r *TradeRequest) { r.EntryPrice = 0 }, ports.ErrInvalidRequest},
		{"unknown direction", func(r *TradeRequest) { r.Direction = "sideways" }, ports.ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			positions := &mockPositionStore{}
			wallets := &mockWalletStore{wallet: &domain.RoomWallet{Available: 10000}}
			g := newTestGateway(t, positions, wallets)

			req := validRequest()
			tt.mutate(&req)
			_, err := g.ExecuteTrade(context.Background(), req)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, positions.executed, "rejected trade must not reach the store")
		})
	}
}

func TestExecuteTradeInsufficientFunds(t *testing.T) {
	positions := &mockPositionStore{}
	wallets := &mockWalletStore{wallet: &domain.RoomWallet{RoomID: "room-1", Holdings: 10000, LockedMargin: 9500, Available: 500}}
	g := newTestGateway(t, positions, wallets)

	_, err := g.ExecuteTrade(context.Background(), validRequest())
	assert.ErrorIs(t, err, ports.ErrInsufficientFunds)
	assert.Empty(t, positions.executed)
}

func TestExecuteTradeUnknownRoom(t *testing.T) {
	positions := &mockPositionStore{}
	wallets := &mockWalletStore{walletErr: ports.ErrRoomNotFound}
	g := newTestGateway(t, positions, wallets)

	_, err := g.ExecuteTrade(context.Background(), validRequest())
	assert.ErrorIs(t, err, ports.ErrRoomNotFound)
}

func TestClosePosition(t *testing.T) {
	positions := &mockPositionStore{findByIDResult: livePosition()}
	g := newTestGateway(t, positions, &mockWalletStore{})

	res, err := g.ClosePosition(context.Background(), "p1", 110, domain.CloseReasonManual)
	require.NoError(t, err)
	require.Len(t, positions.closed, 1)

	assert.InDelta(t, 100.0, res.Pnl, 1e-9)
	assert.InDelta(t, 100.0, res.PnlPercentage, 1e-9)
	assert.Equal(t, domain.StatusClosed, res.Position.Status)
	assert.Equal(t, 110.0, res.Trade.ExitPrice)
	assert.Equal(t, 2000.0, res.Trade.TradeVolume, "volume counts both entry and exit legs")
	assert.Equal(t, 100.0, res.Trade.ClosePercentage)
	assert.Equal(t, domain.CloseReasonManual, res.Trade.CloseReason)
}

func TestClosePositionAtEntryPriceIsFlat(t *testing.T) {
	positions := &mockPositionStore{findByIDResult: livePosition()}
	g := newTestGateway(t, positions, &mockWalletStore{})

	// Closing at exactly the entry price must realize exactly zero; the exit
	// price is used verbatim, with no synthetic adjustment.
	res, err := g.ClosePosition(context.Background(), "p1", 100, domain.CloseReasonManual)
	require.NoError(t, err)
	assert.Zero(t, res.Pnl)
	assert.Zero(t, res.PnlPercentage)
	assert.Equal(t, 100.0, res.Trade.ExitPrice)
}

func TestClosePositionExitPriceFallback(t *testing.T) {
	withPrice := livePosition()
	withPrice.CurrentPrice = 105
	positions := &mockPositionStore{findByIDResult: withPrice}
	g := newTestGateway(t, positions, &mockWalletStore{})

	res, err := g.ClosePosition(context.Background(), "p1", 0, domain.CloseReasonManual)
	require.NoError(t, err)
	assert.Equal(t, 105.0, res.Trade.ExitPrice, "zero exit price falls back to last known price")

	noPrice := livePosition()
	positions.findByIDResult = noPrice
	res, err = g.ClosePosition(context.Background(), "p1", 0, domain.CloseReasonManual)
	require.NoError(t, err)
	assert.Equal(t, 100.0, res.Trade.ExitPrice, "without a last known price, entry price is used")
	assert.Zero(t, res.Pnl)
}

func TestClosePositionNotFound(t *testing.T) {
	positions := &mockPositionStore{findByIDResult: nil}
	g := newTestGateway(t, positions, &mockWalletStore{})

	_, err := g.ClosePosition(context.Background(), "missing", 110, domain.CloseReasonManual)
	assert.ErrorIs(t, err, ports.ErrPositionNotFound)
}

func TestClosePositionAlreadyClosed(t *testing.T) {
	pos := livePosition()
	pos.Status = domain.StatusClosed
	positions := &mockPositionStore{findByIDResult: pos}
	g := newTestGateway(t, positions, &mockWalletStore{})

	_, err := g.ClosePosition(context.Background(), "p1", 110, domain.CloseReasonManual)
	assert.ErrorIs(t, err, ports.ErrPositionClosed)
	assert.Empty(t, positions.closed)
}

func TestPartialClosePosition(t *testing.T) {
	positions := &mockPositionStore{findByIDResult: livePosition()}
	g := newTestGateway(t, positions, &mockWalletStore{})

	res, err := g.PartialClosePosition(context.Background(), "p1", 25, 110, domain.CloseReasonManual)
	require.NoError(t, err)
	require.Len(t, positions.partials, 1)

	// The slice is a quarter of the notional: 250 closed at +10% yields 25.
	assert.InDelta(t, 25.0, res.Pnl, 1e-9)
	assert.InDelta(t, 100.0, res.PnlPercentage, 1e-9)
	assert.Equal(t, 500.0, res.Trade.TradeVolume)
	assert.Equal(t, 25.0, res.Trade.ClosePercentage)
	assert.Equal(t, domain.StatusPartiallyClosed, res.Position.Status)
	assert.Equal(t, 1000.0, res.Position.PositionSize, "remaining position keeps its original size")
	assert.Equal(t, 100.0, res.Position.EntryAmount)
	assert.Equal(t, 25.0, res.Position.ReleasedMargin, "the closed slice's margin is recorded as released")
}

func TestPartialClosePercentageBounds(t *testing.T) {
	for _, pct := range []float64{0, -5, 100, 150} {
		positions := &mockPositionStore{findByIDResult: livePosition()}
		g := newTestGateway(t, positions, &mockWalletStore{})

		_, err := g.PartialClosePosition(context.Background(), "p1", pct, 110, domain.CloseReasonManual)
		assert.ErrorIs(t, err, ports.ErrInvalidPercentage, "percentage %v", pct)
		assert.Empty(t, positions.partials)
	}
}

func TestPartialCloseOfPartiallyClosedPosition(t *testing.T) {
	pos := livePosition()
	pos.Status = domain.StatusPartiallyClosed
	positions := &mockPositionStore{findByIDResult: pos}
	g := newTestGateway(t, positions, &mockWalletStore{})

	_, err := g.PartialClosePosition(context.Background(), "p1", 10, 110, domain.CloseReasonManual)
	assert.NoError(t, err, "partially closed positions stay live for further closes")
}

func TestShortClosePnlInverts(t *testing.T) {
	pos := livePosition()
	pos.Direction = domain.Short
	positions := &mockPositionStore{findByIDResult: pos}
	g := newTestGateway(t, positions, &mockWalletStore{})

	res, err := g.ClosePosition(context.Background(), "p1", 90, domain.CloseReasonTakeProfit)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, res.Pnl, 1e-9, "short profits when price falls")
}
