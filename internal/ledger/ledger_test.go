package ledger

import (
	"context"
	"errors"
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

type persistCall struct {
	positionID string
	price      float64
}

type mockStore struct {
	ports.PositionStore
	persistCalls []persistCall
	persistErr   error
}

func (m *mockStore) UpdatePriceData(ctx context.Context, positionID string, price, pnl, pnlPercentage float64, at time.Time) error {
	if m.persistErr != nil {
		return m.persistErr
	}
	m.persistCalls = append(m.persistCalls, persistCall{positionID: positionID, price: price})
	return nil
}

type closeCall struct {
	positionID string
	exitPrice  float64
	reason     domain.CloseReason
}

type mockCloser struct {
	calls    []closeCall
	closeErr error
}

func (m *mockCloser) CloseForTrigger(ctx context.Context, positionID string, exitPrice float64, reason domain.CloseReason) error {
	m.calls = append(m.calls, closeCall{positionID: positionID, exitPrice: exitPrice, reason: reason})
	return m.closeErr
}

func newTestLedger(t *testing.T, clock *time.Time) (*Ledger, *mockStore, *mockCloser) {
	t.Helper()
	store := &mockStore{}
	closer := &mockCloser{}
	l := New(Config{
		Store:  store,
		Closer: closer,
		Logger: &mockLogger{},
		Now:    func() time.Time { return *clock },
	})
	return l, store, closer
}

func openPosition(id, symbol string, direction domain.Direction, entryPrice, entryAmount float64, leverage int) *domain.Position {
	return &domain.Position{
		ID:           id,
		RoomID:       "room-1",
		Symbol:       symbol,
		Direction:    direction,
		EntryPrice:   entryPrice,
		EntryAmount:  entryAmount,
		Leverage:     leverage,
		PositionSize: entryAmount * float64(leverage),
		Status:       domain.StatusOpen,
	}
}

func tick(symbol string, price float64, at time.Time) *domain.PriceTick {
	return &domain.PriceTick{Symbol: symbol, Price: price, Time: at}
}

func TestApplyTickRecomputesPnl(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l, _, _ := newTestLedger(t, &clock)
	pos := openPosition("p1", "BTCUSDT", domain.Long, 100, 100, 10)
	l.Track(pos)

	updates := l.ApplyTick(context.Background(), tick("BTCUSDT", 110, clock))
	require.Len(t, updates, 1)
	assert.InDelta(t, 100.0, updates[0].Pnl, 1e-9) // (110-100)/100 * 1000
	assert.InDelta(t, 100.0, updates[0].PnlPercentage, 1e-9)
	assert.False(t, updates[0].FromCache)
	assert.Equal(t, 110.0, pos.CurrentPrice)
	assert.InDelta(t, 100.0, pos.CurrentPnl, 1e-9)
}

func TestApplyTickIgnoresOtherSymbols(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l, _, _ := newTestLedger(t, &clock)
	l.Track(openPosition("p1", "BTCUSDT", domain.Long, 100, 100, 10))

	updates := l.ApplyTick(context.Background(), tick("ETHUSDT", 2500, clock))
	assert.Empty(t, updates)
}

func TestApplyTickCacheGate(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l, _, _ := newTestLedger(t, &clock)
	pos := openPosition("p1", "BTCUSDT", domain.Long, 100, 100, 10)
	l.Track(pos)

	first := l.ApplyTick(context.Background(), tick("BTCUSDT", 110, clock))
	require.Len(t, first, 1)

	// Second tick 2s later, 0.05% away: inside TTL and below the 0.1% gate,
	// so the cached tuple must come back unchanged.
	clock = clock.Add(2 * time.Second)
	second := l.ApplyTick(context.Background(), tick("BTCUSDT", 110.055, clock))
	require.Len(t, second, 1)
	assert.True(t, second[0].FromCache)
	assert.Equal(t, first[0].Pnl, second[0].Pnl)
	assert.Equal(t, first[0].PnlPercentage, second[0].PnlPercentage)
	assert.Equal(t, 110.0, pos.CurrentPrice, "cached answer must not mutate the position")
}

func TestApplyTickCacheExpiresByTTL(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l, _, _ := newTestLedger(t, &clock)
	l.Track(openPosition("p1", "BTCUSDT", domain.Long, 100, 100, 10))

	l.ApplyTick(context.Background(), tick("BTCUSDT", 110, clock))

	// Same tiny move but past the 5s TTL: must recompute.
	clock = clock.Add(6 * time.Second)
	updates := l.ApplyTick(context.Background(), tick("BTCUSDT", 110.055, clock))
	require.Len(t, updates, 1)
	assert.False(t, updates[0].FromCache)
}

func TestApplyTickCacheExpiresByMove(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l, _, _ := newTestLedger(t, &clock)
	l.Track(openPosition("p1", "BTCUSDT", domain.Long, 100, 100, 10))

	l.ApplyTick(context.Background(), tick("BTCUSDT", 110, clock))

	// Inside the TTL but a 1% move: must recompute.
	clock = clock.Add(time.Second)
	updates := l.ApplyTick(context.Background(), tick("BTCUSDT", 111.1, clock))
	require.Len(t, updates, 1)
	assert.False(t, updates[0].FromCache)
}

func TestPersistenceGate(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l, store, _ := newTestLedger(t, &clock)
	l.Track(openPosition("p1", "BTCUSDT", domain.Long, 100, 100, 10))

	// First recompute always persists (no mark yet).
	l.ApplyTick(context.Background(), tick("BTCUSDT", 110, clock))
	require.Len(t, store.persistCalls, 1)

	// 0.2% move 6s later: recomputed (cache expired) but below the 0.5%
	// persist gate and under the 10s interval, so no durable write.
	clock = clock.Add(6 * time.Second)
	l.ApplyTick(context.Background(), tick("BTCUSDT", 110.22, clock))
	assert.Len(t, store.persistCalls, 1)

	// 11s after the last persisted write: interval forces a write even for a
	// small move.
	clock = clock.Add(5 * time.Second)
	l.ApplyTick(context.Background(), tick("BTCUSDT", 110.3, clock))
	assert.Len(t, store.persistCalls, 2)

	// Large move immediately after: the 0.5% gate opens on its own.
	clock = clock.Add(time.Second)
	l.ApplyTick(context.Background(), tick("BTCUSDT", 111.0, clock))
	assert.Len(t, store.persistCalls, 3)
}

func TestPersistFailureDoesNotInterruptTick(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l, store, _ := newTestLedger(t, &clock)
	store.persistErr = errors.New("disk full")
	pos := openPosition("p1", "BTCUSDT", domain.Long, 100, 100, 10)
	l.Track(pos)

	updates := l.ApplyTick(context.Background(), tick("BTCUSDT", 110, clock))
	require.Len(t, updates, 1)
	assert.InDelta(t, 100.0, updates[0].Pnl, 1e-9)
}

func TestEvaluateTriggers(t *testing.T) {
	tests := []struct {
		name       string
		direction  domain.Direction
		stopLoss   float64
		takeProfit float64
		price      float64
		want       TriggerResult
	}{
		{"long stop loss hit", domain.Long, 90, 110, 89, TriggerStopLoss},
		{"long stop loss exact", domain.Long, 90, 110, 90, TriggerStopLoss},
		{"long take profit hit", domain.Long, 90, 110, 111, TriggerTakeProfit},
		{"long take profit exact", domain.Long, 90, 110, 110, TriggerTakeProfit},
		{"long no trigger", domain.Long, 90, 110, 100, TriggerNone},
		{"short stop loss hit", domain.Short, 110, 90, 111, TriggerStopLoss},
		{"short take profit hit", domain.Short, 110, 90, 89, TriggerTakeProfit},
		{"short no trigger", domain.Short, 110, 90, 100, TriggerNone},
		{"zero stop loss means unset", domain.Long, 0, 110, 1, TriggerNone},
		{"zero take profit means unset", domain.Long, 90, 0, 1000, TriggerNone},
		// Pathological config where both could fire: stop-loss is evaluated
		// first and wins.
		{"stop loss precedence", domain.Long, 120, 110, 85, TriggerStopLoss},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos := openPosition("p1", "BTCUSDT", tt.direction, 100, 100, 10)
			pos.StopLoss = tt.stopLoss
			pos.TakeProfit = tt.takeProfit
			assert.Equal(t, tt.want, EvaluateTriggers(pos, tt.price))
		})
	}
}

func TestTriggerClosesThroughCloser(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l, _, closer := newTestLedger(t, &clock)
	pos := openPosition("p1", "BTCUSDT", domain.Long, 100, 100, 10)
	pos.StopLoss = 90
	l.Track(pos)

	l.ApplyTick(context.Background(), tick("BTCUSDT", 85, clock))

	require.Len(t, closer.calls, 1)
	assert.Equal(t, "p1", closer.calls[0].positionID)
	assert.Equal(t, 85.0, closer.calls[0].exitPrice, "exit price is the triggering tick's price")
	assert.Equal(t, domain.CloseReasonStopLoss, closer.calls[0].reason)
	assert.Nil(t, l.Position("p1"), "closed position is evicted from the working set")
}

func TestTriggerFiresFromCachedTick(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l, _, closer := newTestLedger(t, &clock)
	pos := openPosition("p1", "BTCUSDT", domain.Long, 100, 100, 10)
	pos.StopLoss = 90
	l.Track(pos)

	l.ApplyTick(context.Background(), tick("BTCUSDT", 90.05, clock))
	require.Empty(t, closer.calls, "just above the stop, nothing fires")

	// 2s later a move too small to reopen the recompute gate crosses the stop
	// level. The cached P&L answer is fine; delaying the close is not.
	clock = clock.Add(2 * time.Second)
	updates := l.ApplyTick(context.Background(), tick("BTCUSDT", 89.99, clock))
	require.Len(t, updates, 1)
	assert.True(t, updates[0].FromCache)
	assert.Equal(t, TriggerStopLoss, updates[0].Triggered)
	require.Len(t, closer.calls, 1)
	assert.Equal(t, 89.99, closer.calls[0].exitPrice, "close uses the live tick price, not the cached one")
	assert.Nil(t, l.Position("p1"))
}

func TestTriggerCloseFailureKeepsPositionTracked(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l, _, closer := newTestLedger(t, &clock)
	closer.closeErr = errors.New("store unavailable")
	pos := openPosition("p1", "BTCUSDT", domain.Long, 100, 100, 10)
	pos.StopLoss = 90
	l.Track(pos)

	l.ApplyTick(context.Background(), tick("BTCUSDT", 85, clock))

	require.Len(t, closer.calls, 1)
	assert.NotNil(t, l.Position("p1"), "failed close keeps the position for the next tick")
}

func TestSeedPrice(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l, _, _ := newTestLedger(t, &clock)
	fresh := openPosition("p1", "BTCUSDT", domain.Long, 100, 100, 10)
	seen := openPosition("p2", "BTCUSDT", domain.Long, 100, 100, 10)
	seen.CurrentPrice = 105
	l.Track(fresh)
	l.Track(seen)

	l.SeedPrice("BTCUSDT", 102)
	assert.Equal(t, 102.0, fresh.CurrentPrice)
	assert.Equal(t, 105.0, seen.CurrentPrice, "hydration never overwrites a live price")

	l.SeedPrice("BTCUSDT", -1)
	assert.Equal(t, 102.0, fresh.CurrentPrice)
}

func TestTrackIgnoresClosedPositions(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l, _, _ := newTestLedger(t, &clock)
	pos := openPosition("p1", "BTCUSDT", domain.Long, 100, 100, 10)
	pos.Status = domain.StatusClosed
	l.Track(pos)
	assert.Nil(t, l.Position("p1"))
	assert.Empty(t, l.OpenPositions())
}
