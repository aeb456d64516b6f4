package ledger

import (
	"context"
	"math"
	"time"

	"tradeRoom/internal/domain"
	"tradeRoom/internal/ports"
)

// TriggerCloser executes a full close on behalf of the ledger when a
// stop-loss or take-profit fires. Implemented by the room session, which
// routes the close through the trade execution gateway.
type TriggerCloser interface {
	CloseForTrigger(ctx context.Context, positionID string, exitPrice float64, reason domain.CloseReason) error
}

// TriggerResult is the outcome of evaluating a position's close conditions.
type TriggerResult int

const (
	TriggerNone TriggerResult = iota
	TriggerStopLoss
	TriggerTakeProfit
)

// Config holds the ledger's gating policy. Zero values fall back to the
// observed production policy.
type Config struct {
	Store  ports.PositionStore
	Closer TriggerCloser
	Logger ports.Logger

	// In-memory recompute gate: skip recomputation when a cached entry is
	// younger than CacheTTL and the price moved less than CacheGate relative.
	CacheTTL  time.Duration
	CacheGate float64

	// Durable-write gate: propagate price/P&L to the store only when the
	// price moved at least PersistGate relative to the last persisted price,
	// or PersistInterval has elapsed since the last persisted update.
	PersistGate     float64
	PersistInterval time.Duration

	Now func() time.Time // Injectable clock for tests
}

type cacheEntry struct {
	price         float64
	pnl           float64
	pnlPercentage float64
	at            time.Time
}

type persistMark struct {
	price float64
	at    time.Time
}

// Ledger owns the in-memory working set of live positions for a room,
// recomputes unrealized P&L on every tick, and fires stop-loss/take-profit
// closes. Callers must serialize access; the session's tick handler runs
// under its own mutex, so there is no concurrent writer.
type Ledger struct {
	store  ports.PositionStore
	closer TriggerCloser
	logger ports.Logger

	cacheTTL        time.Duration
	cacheGate       float64
	persistGate     float64
	persistInterval time.Duration
	now             func() time.Time

	positions map[string]*domain.Position
	cache     map[string]cacheEntry
	persisted map[string]persistMark
}

// TickUpdate reports the result of applying a tick to one position.
type TickUpdate struct {
	PositionID    string
	Pnl           float64
	PnlPercentage float64
	FromCache     bool
	Triggered     TriggerResult
}

// New creates a position ledger.
func New(cfg Config) *Ledger {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Second
	}
	if cfg.CacheGate <= 0 {
		cfg.CacheGate = 0.001
	}
	if cfg.PersistGate <= 0 {
		cfg.PersistGate = 0.005
	}
	if cfg.PersistInterval <= 0 {
		cfg.PersistInterval = 10 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Ledger{
		store:           cfg.Store,
		closer:          cfg.Closer,
		logger:          cfg.Logger,
		cacheTTL:        cfg.CacheTTL,
		cacheGate:       cfg.CacheGate,
		persistGate:     cfg.PersistGate,
		persistInterval: cfg.PersistInterval,
		now:             cfg.Now,
		positions:       make(map[string]*domain.Position),
		cache:           make(map[string]cacheEntry),
		persisted:       make(map[string]persistMark),
	}
}

// Track adds a position to the working set. Closed positions are ignored.
func (l *Ledger) Track(pos *domain.Position) {
	if pos == nil || !pos.IsOpen() {
		return
	}
	l.positions[pos.ID] = pos
}

// Forget removes a position from the working set and evicts its cache entry.
func (l *Ledger) Forget(positionID string) {
	delete(l.positions, positionID)
	delete(l.cache, positionID)
	delete(l.persisted, positionID)
}

// Position returns a tracked position by id, or nil.
func (l *Ledger) Position(positionID string) *domain.Position {
	return l.positions[positionID]
}

// OpenPositions returns the tracked working set.
func (l *Ledger) OpenPositions() []*domain.Position {
	out := make([]*domain.Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, p)
	}
	return out
}

// SeedPrice sets the last-known price for tracked positions on a symbol that
// have not yet seen a tick. Used for 24h-ticker hydration at startup.
func (l *Ledger) SeedPrice(symbol string, price float64) {
	if price <= 0 {
		return
	}
	for _, pos := range l.positions {
		if pos.Symbol == symbol && pos.CurrentPrice == 0 {
			pos.CurrentPrice = price
		}
	}
}

// ApplyTick recomputes P&L for every live position on the tick's symbol and
// fires any stop-loss/take-profit closes. Returns one update per position
// touched. The feed guarantees tick.Price > 0.
func (l *Ledger) ApplyTick(ctx context.Context, tick *domain.PriceTick) []TickUpdate {
	var updates []TickUpdate
	for _, pos := range l.positions {
		if pos.Symbol != tick.Symbol || !pos.IsOpen() {
			continue
		}
		updates = append(updates, l.applyToPosition(ctx, pos, tick))
	}
	return updates
}

func (l *Ledger) applyToPosition(ctx context.Context, pos *domain.Position, tick *domain.PriceTick) TickUpdate {
	now := l.now()

	// Staleness gate: inside the TTL with a sub-threshold move, the cached
	// tuple is returned unchanged. Deliberate precision trade-off to bound
	// recompute frequency under high tick rates. Triggers are still evaluated
	// against the live tick price; the gate only covers P&L recompute and
	// persistence, never close conditions.
	if entry, ok := l.cache[pos.ID]; ok {
		if now.Sub(entry.at) < l.cacheTTL && relChange(tick.Price, entry.price) < l.cacheGate {
			update := TickUpdate{PositionID: pos.ID, Pnl: entry.pnl, PnlPercentage: entry.pnlPercentage, FromCache: true}
			update.Triggered = EvaluateTriggers(pos, tick.Price)
			if update.Triggered != TriggerNone {
				l.fireTrigger(ctx, pos, tick.Price, update.Triggered)
			}
			return update
		}
	}

	pnl, pnlPct := domain.ComputePnl(pos.Direction, pos.EntryPrice, tick.Price, pos.PositionSize, pos.EntryAmount)
	pos.CurrentPrice = tick.Price
	pos.CurrentPnl = pnl
	pos.PnlPercentage = pnlPct
	pos.UpdatedAt = now
	l.cache[pos.ID] = cacheEntry{price: tick.Price, pnl: pnl, pnlPercentage: pnlPct, at: now}

	l.maybePersist(ctx, pos, tick.Price, pnl, pnlPct, now)

	update := TickUpdate{PositionID: pos.ID, Pnl: pnl, PnlPercentage: pnlPct}
	update.Triggered = EvaluateTriggers(pos, tick.Price)
	if update.Triggered != TriggerNone {
		l.fireTrigger(ctx, pos, tick.Price, update.Triggered)
	}
	return update
}

// maybePersist propagates the recomputed price/P&L to the durable store when
// the persistence gate opens. Write failures are logged and do not interrupt
// tick processing; the next gate opening retries naturally.
func (l *Ledger) maybePersist(ctx context.Context, pos *domain.Position, price, pnl, pnlPct float64, now time.Time) {
	mark, seen := l.persisted[pos.ID]
	if seen && relChange(price, mark.price) < l.persistGate && now.Sub(mark.at) < l.persistInterval {
		return
	}
	if err := l.store.UpdatePriceData(ctx, pos.ID, price, pnl, pnlPct, now); err != nil {
		l.logger.Warn(ctx, "Failed to persist price update", map[string]interface{}{
			"positionID": pos.ID, "price": price, "error": err.Error(),
		})
		return
	}
	l.persisted[pos.ID] = persistMark{price: price, at: now}
}

func (l *Ledger) fireTrigger(ctx context.Context, pos *domain.Position, price float64, result TriggerResult) {
	reason := domain.CloseReasonStopLoss
	if result == TriggerTakeProfit {
		reason = domain.CloseReasonTakeProfit
	}
	l.logger.Info(ctx, "Trigger fired", map[string]interface{}{
		"positionID": pos.ID, "symbol": pos.Symbol, "price": price, "reason": string(reason),
	})
	if err := l.closer.CloseForTrigger(ctx, pos.ID, price, reason); err != nil {
		l.logger.Error(ctx, err, "Triggered close failed", map[string]interface{}{"positionID": pos.ID})
		return
	}
	l.Forget(pos.ID)
}

// EvaluateTriggers checks a position's close conditions against a price.
// Stop-loss is evaluated before take-profit and wins if both would fire.
// A zero stop-loss or take-profit means "not set".
func EvaluateTriggers(pos *domain.Position, price float64) TriggerResult {
	if pos.Direction == domain.Short {
		if pos.StopLoss > 0 && price >= pos.StopLoss {
			return TriggerStopLoss
		}
		if pos.TakeProfit > 0 && price <= pos.TakeProfit {
			return TriggerTakeProfit
		}
		return TriggerNone
	}
	if pos.StopLoss > 0 && price <= pos.StopLoss {
		return TriggerStopLoss
	}
	if pos.TakeProfit > 0 && price >= pos.TakeProfit {
		return TriggerTakeProfit
	}
	return TriggerNone
}

// relChange returns the relative difference between two prices.
func relChange(price, reference float64) float64 {
	if reference == 0 {
		return math.Inf(1)
	}
	return math.Abs(price-reference) / math.Abs(reference)
}
