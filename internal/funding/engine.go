package funding

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tradeRoom/internal/domain"
	"tradeRoom/internal/ports"
)

// Engine periodically refreshes funding-rate snapshots and applies
// funding-rate-based debits/credits to open positions grouped by symbol.
type Engine struct {
	store     ports.FundingStore
	positions ports.PositionStore
	feed      ports.MarketDataFeed
	logger    ports.Logger

	refreshInterval time.Duration
	now             func() time.Time
}

// Config holds the engine's dependencies and policy.
type Config struct {
	Store     ports.FundingStore
	Positions ports.PositionStore
	Feed      ports.MarketDataFeed
	Logger    ports.Logger

	// RefreshInterval is the global (not per-symbol) throttle on external
	// funding-rate fetches. Defaults to 30 minutes.
	RefreshInterval time.Duration

	Now func() time.Time
}

// RefreshResult reports one refresh attempt.
type RefreshResult struct {
	Skipped bool // True when the throttle suppressed the fetch
	Updated int  // Snapshots stored
}

// ApplyResult reports one funding run.
type ApplyResult struct {
	Payments  []*domain.FundingPayment
	Processed int
	Skipped   int // Positions skipped due to missing rates or update failures
}

// New creates a funding accrual engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil || cfg.Positions == nil || cfg.Feed == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("missing required dependencies for funding engine")
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 30 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{
		store:           cfg.Store,
		positions:       cfg.Positions,
		feed:            cfg.Feed,
		logger:          cfg.Logger,
		refreshInterval: cfg.RefreshInterval,
		now:             cfg.Now,
	}, nil
}

// RefreshRates pulls current funding rates for the given symbols and stores
// fresh snapshots. The fetch is skipped entirely when the newest stored
// snapshot across all symbols is younger than the refresh interval; that is
// a "skipped" result, not an error.
func (e *Engine) RefreshRates(ctx context.Context, symbols []string) (*RefreshResult, error) {
	op := "RefreshRates"
	last, err := e.store.LatestFetchTime(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	now := e.now().UTC()
	if !last.IsZero() && now.Sub(last) < e.refreshInterval {
		e.logger.Debug(ctx, op+": snapshots still fresh, skipping fetch", map[string]interface{}{
			"lastFetch": last, "interval": e.refreshInterval.String(),
		})
		return &RefreshResult{Skipped: true}, nil
	}

	rates, err := e.feed.GetFundingRates(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	wanted := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		wanted[s] = true
	}
	snapshots := make([]*domain.FundingRateSnapshot, 0, len(symbols))
	for _, rate := range rates {
		if !wanted[rate.Symbol] {
			continue
		}
		snap := *rate
		snap.FetchedAt = now
		if snap.NextFundingTime.IsZero() {
			// Funding instants are deterministic; recompute from the UTC
			// clock when the source omits the value.
			snap.NextFundingTime = NextFundingInstant(now)
		}
		snapshots = append(snapshots, &snap)
	}
	if err := e.store.SaveSnapshots(ctx, snapshots); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	e.logger.Info(ctx, op+": snapshots refreshed", map[string]interface{}{"count": len(snapshots)})
	return &RefreshResult{Updated: len(snapshots)}, nil
}

// NextFundingInstant returns the next funding boundary strictly after now.
// Funding instants are fixed at 00:00, 08:00, and 16:00 UTC daily; called
// exactly on a boundary it advances to the following one.
func NextFundingInstant(now time.Time) time.Time {
	u := now.UTC()
	day := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	for _, h := range []int{8, 16, 24} {
		boundary := day.Add(time.Duration(h) * time.Hour)
		if boundary.After(u) {
			return boundary
		}
	}
	// Unreachable: 24h is always after any instant within the day.
	return day.Add(24 * time.Hour)
}

// ApplyFunding applies one funding accrual to every given position, grouped
// by symbol. A symbol with no stored snapshot is skipped with a warning; a
// failure updating one position is logged and skipped. Neither aborts the
// run. All payments are inserted as a single batch at the end.
func (e *Engine) ApplyFunding(ctx context.Context, positions []*domain.Position) (*ApplyResult, error) {
	op := "ApplyFunding"
	now := e.now().UTC()
	result := &ApplyResult{}

	bySymbol := make(map[string][]*domain.Position)
	for _, pos := range positions {
		if !pos.IsOpen() {
			continue
		}
		bySymbol[pos.Symbol] = append(bySymbol[pos.Symbol], pos)
	}

	for symbol, group := range bySymbol {
		snap, err := e.store.LatestSnapshot(ctx, symbol)
		if err != nil {
			e.logger.Warn(ctx, op+": failed to load snapshot, skipping symbol", map[string]interface{}{
				"symbol": symbol, "positions": len(group), "error": err.Error(),
			})
			result.Skipped += len(group)
			continue
		}
		if snap == nil {
			e.logger.Warn(ctx, op+": no funding rate known, skipping symbol", map[string]interface{}{
				"symbol": symbol, "positions": len(group),
			})
			result.Skipped += len(group)
			continue
		}

		for _, pos := range group {
			adjustedRate := snap.FundingRate
			if pos.Direction == domain.Short {
				adjustedRate = -snap.FundingRate
			}
			fee := pos.PositionSize * adjustedRate

			// The store debits the room by fee (balance adjustment -fee) and
			// bumps the cumulative fee in one transaction.
			if err := e.positions.ApplyFundingFee(ctx, pos.ID, pos.RoomID, fee, now); err != nil {
				e.logger.Warn(ctx, op+": failed to apply fee, skipping position", map[string]interface{}{
					"positionID": pos.ID, "symbol": symbol, "fee": fee, "error": err.Error(),
				})
				result.Skipped++
				continue
			}
			pos.FundingFee += fee
			pos.LastFundingAt = now

			result.Payments = append(result.Payments, &domain.FundingPayment{
				ID:           uuid.NewString(),
				PositionID:   pos.ID,
				RoomID:       pos.RoomID,
				Symbol:       symbol,
				Direction:    pos.Direction,
				FundingRate:  snap.FundingRate,
				PositionSize: pos.PositionSize,
				Fee:          fee,
				AppliedAt:    now,
			})
			result.Processed++
		}
	}

	if len(result.Payments) > 0 {
		if err := e.store.InsertPayments(ctx, result.Payments); err != nil {
			return result, fmt.Errorf("%s: inserting payment batch: %w", op, err)
		}
	}
	e.logger.Info(ctx, op+": funding run complete", map[string]interface{}{
		"processed": result.Processed, "skipped": result.Skipped,
	})
	return result, nil
}
