package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jpillora/backoff"

	"tradeRoom/config"
	"tradeRoom/internal/balance"
	"tradeRoom/internal/domain"
	"tradeRoom/internal/funding"
	"tradeRoom/internal/gateway"
	"tradeRoom/internal/ledger"
	"tradeRoom/internal/ports"
)

// RoomSession is an explicit per-room handle owning the room's subscriptions
// and trading state: the position ledger, the execution gateway, the funding
// engine, and the balance view. Callers construct one session per room and
// pass it around explicitly; there is no ambient global state. Cross-component
// notification happens through observer registration on the session rather
// than any process-wide event bus.
type RoomSession struct {
	roomID    string
	symbols   []string
	cfg       *config.Config
	logger    ports.Logger
	feed      ports.MarketDataFeed
	trades    ports.TradeHistoryStore
	positions ports.PositionStore

	gateway *gateway.Gateway
	ledger  *ledger.Ledger
	funding *funding.Engine
	balance *balance.View

	// mu serializes tick handlers and trade operations against the ledger's
	// working set. Within a lock hold each handler runs to completion, which
	// gives the per-position ordering guarantee.
	mu sync.Mutex

	onPositionClosed []func(*domain.TradeHistory)
	onBalanceChanged []func(*domain.RoomBalance)
}

// Stores bundles the persistence interfaces a session needs. A single
// repository usually implements all of them.
type Stores struct {
	Positions ports.PositionStore
	Wallets   ports.WalletStore
	Trades    ports.TradeHistoryStore
	Funding   ports.FundingStore
}

// NewRoomSession creates a session for one room.
func NewRoomSession(cfg *config.Config, roomID string, stores Stores, feed ports.MarketDataFeed, logger ports.Logger) (*RoomSession, error) {
	if cfg == nil || logger == nil || feed == nil ||
		stores.Positions == nil || stores.Wallets == nil || stores.Trades == nil || stores.Funding == nil {
		return nil, fmt.Errorf("missing required dependencies for RoomSession")
	}
	if roomID == "" {
		return nil, fmt.Errorf("roomID is required")
	}
	if len(cfg.Symbols) == 0 {
		return nil, fmt.Errorf("at least one symbol is required")
	}

	s := &RoomSession{
		roomID:    roomID,
		symbols:   cfg.Symbols,
		cfg:       cfg,
		logger:    logger,
		feed:      feed,
		trades:    stores.Trades,
		positions: stores.Positions,
	}

	var err error
	s.gateway, err = gateway.New(gateway.Config{
		Positions: stores.Positions,
		Wallets:   stores.Wallets,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	s.ledger = ledger.New(ledger.Config{
		Store:           stores.Positions,
		Closer:          s,
		Logger:          logger,
		CacheTTL:        cfg.PriceCacheTTL,
		CacheGate:       cfg.PriceCacheGate,
		PersistGate:     cfg.PricePersistGate,
		PersistInterval: cfg.PricePersistInterval,
	})
	s.funding, err = funding.New(funding.Config{
		Store:           stores.Funding,
		Positions:       stores.Positions,
		Feed:            feed,
		Logger:          logger,
		RefreshInterval: cfg.FundingRefreshInterval,
	})
	if err != nil {
		return nil, err
	}
	s.balance, err = balance.NewView(stores.Wallets, stores.Positions)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// OnPositionClosed registers an observer invoked after any close event (full,
// partial, or triggered) has been committed.
func (s *RoomSession) OnPositionClosed(fn func(*domain.TradeHistory)) {
	s.onPositionClosed = append(s.onPositionClosed, fn)
}

// OnBalanceChanged registers an observer invoked after any operation that
// moved the room's balance.
func (s *RoomSession) OnBalanceChanged(fn func(*domain.RoomBalance)) {
	s.onBalanceChanged = append(s.onBalanceChanged, fn)
}

// Start loads the room's open positions, hydrates last-known prices, starts
// the price stream, and runs the funding loop until ctx is cancelled or the
// stream gives up.
func (s *RoomSession) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.logger.Info(ctx, "Starting room session", map[string]interface{}{
		"roomID": s.roomID, "symbols": s.symbols,
	})

	// Sync the working set from the store; a session restart must see
	// positions opened before it.
	var open []*domain.Position
	err := s.withRetry(ctx, "load open positions", func() error {
		var loadErr error
		open, loadErr = s.positions.FindOpenByRoom(ctx, s.roomID)
		return loadErr
	})
	if err != nil {
		return fmt.Errorf("failed to load open positions: %w", err)
	}
	s.mu.Lock()
	for _, pos := range open {
		s.ledger.Track(pos)
	}
	s.mu.Unlock()
	s.logger.Info(ctx, "Open positions loaded", map[string]interface{}{"count": len(open)})

	s.hydratePrices(ctx)

	wsDoneCh, wsStopCh, err := s.feed.StreamTicks(ctx, s.symbols, s.handleTick, s.handleFeedError)
	if err != nil {
		return fmt.Errorf("failed to start price stream: %w", err)
	}
	s.logger.Info(ctx, "Price stream started")

	go s.fundingLoop(ctx)

	select {
	case <-ctx.Done():
		s.logger.Info(ctx, "Session context cancelled, shutting down", map[string]interface{}{"roomID": s.roomID})
		select {
		case wsStopCh <- struct{}{}:
		default:
		}
		select {
		case <-wsDoneCh:
		case <-time.After(5 * time.Second):
			s.logger.Warn(ctx, "Timeout waiting for price stream shutdown")
		}
		return nil
	case <-wsDoneCh:
		return fmt.Errorf("price stream stopped unexpectedly: %w", ports.ErrFeedUnavailable)
	}
}

// hydratePrices seeds last-known prices from the 24h ticker so that a close
// with an omitted exit price has a sane fallback before the first tick.
// Best effort: a failed symbol is logged and skipped.
func (s *RoomSession) hydratePrices(ctx context.Context) {
	for _, symbol := range s.symbols {
		snap, err := s.feed.GetTicker(ctx, symbol)
		if err != nil {
			s.logger.Warn(ctx, "Ticker hydration failed for symbol", map[string]interface{}{
				"symbol": symbol, "error": err.Error(),
			})
			continue
		}
		s.mu.Lock()
		s.ledger.SeedPrice(symbol, snap.LastPrice)
		s.mu.Unlock()
	}
}

// handleTick is the core per-tick path: recompute P&L and fire triggers.
func (s *RoomSession) handleTick(tick *domain.PriceTick) {
	ctx := context.Background()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledger.ApplyTick(ctx, tick)
}

func (s *RoomSession) handleFeedError(err error) {
	s.logger.Error(context.Background(), err, "Price stream error reported")
}

// fundingLoop refreshes rates and applies funding at each 00/08/16 UTC
// boundary. The refresh throttle lives in the engine; this loop only decides
// when a boundary has been crossed.
func (s *RoomSession) fundingLoop(ctx context.Context) {
	next := funding.NextFundingInstant(time.Now())
	ticker := time.NewTicker(s.cfg.FundingCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if _, err := s.funding.RefreshRates(ctx, s.symbols); err != nil {
				s.logger.Warn(ctx, "Funding rate refresh failed", map[string]interface{}{"error": err.Error()})
			}
			if now.UTC().Before(next) {
				continue
			}
			next = funding.NextFundingInstant(now)
			s.runFundingPass(ctx)
		}
	}
}

// runFundingPass applies one funding accrual across every live position in the
// store, not only this session's room: funding is charged per boundary
// regardless of which session happens to run the loop. The pass holds the
// session mutex so the fee propagation to tracked positions cannot race tick
// handlers or closes; the engine itself works on store-loaded copies.
func (s *RoomSession) runFundingPass(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.positions.FindAllOpen(ctx)
	if err != nil {
		s.logger.Warn(ctx, "Failed to load positions for funding run", map[string]interface{}{"error": err.Error()})
		return
	}
	result, err := s.funding.ApplyFunding(ctx, all)
	if err != nil {
		s.logger.Error(ctx, err, "Funding run failed", map[string]interface{}{"roomID": s.roomID})
		return
	}
	for _, payment := range result.Payments {
		if tracked := s.ledger.Position(payment.PositionID); tracked != nil {
			tracked.FundingFee += payment.Fee
			tracked.LastFundingAt = payment.AppliedAt
		}
	}
	if result.Processed > 0 {
		s.notifyBalanceChanged(ctx)
	}
}

// ExecuteTrade validates and records a new trade intent for this room.
func (s *RoomSession) ExecuteTrade(ctx context.Context, req gateway.TradeRequest) (*domain.Position, error) {
	req.RoomID = s.roomID
	pos, err := s.gateway.ExecuteTrade(ctx, req)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.ledger.Track(pos)
	s.mu.Unlock()
	s.notifyBalanceChanged(ctx)
	return pos, nil
}

// ClosePosition fully closes a position at the given exit price (0 lets the
// last known price apply) with a manual close reason.
func (s *RoomSession) ClosePosition(ctx context.Context, positionID string, exitPrice float64) (*gateway.CloseResult, error) {
	res, err := s.gateway.ClosePosition(ctx, positionID, exitPrice, domain.CloseReasonManual)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.ledger.Forget(positionID)
	s.mu.Unlock()
	s.notifyPositionClosed(res.Trade)
	s.notifyBalanceChanged(ctx)
	return res, nil
}

// PartialClosePosition closes a percentage slice; the position stays live.
func (s *RoomSession) PartialClosePosition(ctx context.Context, positionID string, percentage, exitPrice float64) (*gateway.CloseResult, error) {
	res, err := s.gateway.PartialClosePosition(ctx, positionID, percentage, exitPrice, domain.CloseReasonManual)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	if tracked := s.ledger.Position(positionID); tracked != nil {
		tracked.Status = domain.StatusPartiallyClosed
	}
	s.mu.Unlock()
	s.notifyPositionClosed(res.Trade)
	s.notifyBalanceChanged(ctx)
	return res, nil
}

// CloseForTrigger implements ledger.TriggerCloser: a stop-loss/take-profit
// close routed through the gateway at the triggering tick's exact price.
// Called from the tick path, which already holds the session mutex.
func (s *RoomSession) CloseForTrigger(ctx context.Context, positionID string, exitPrice float64, reason domain.CloseReason) error {
	res, err := s.gateway.ClosePosition(ctx, positionID, exitPrice, reason)
	if err != nil {
		return err
	}
	s.notifyPositionClosed(res.Trade)
	s.notifyBalanceChanged(ctx)
	return nil
}

// GetRoomBalance returns the room's derived balance view.
func (s *RoomSession) GetRoomBalance(ctx context.Context) (*domain.RoomBalance, error) {
	return s.balance.GetRoomBalance(ctx, s.roomID)
}

// RecentTrades returns the room's most recent trade-history records.
func (s *RoomSession) RecentTrades(ctx context.Context, limit int) ([]*domain.TradeHistory, error) {
	return s.trades.FindByRoom(ctx, s.roomID, limit)
}

func (s *RoomSession) notifyPositionClosed(trade *domain.TradeHistory) {
	for _, fn := range s.onPositionClosed {
		fn(trade)
	}
}

func (s *RoomSession) notifyBalanceChanged(ctx context.Context) {
	if len(s.onBalanceChanged) == 0 {
		return
	}
	bal, err := s.balance.GetRoomBalance(ctx, s.roomID)
	if err != nil {
		s.logger.Warn(ctx, "Failed to derive balance for notification", map[string]interface{}{
			"roomID": s.roomID, "error": err.Error(),
		})
		return
	}
	for _, fn := range s.onBalanceChanged {
		fn(bal)
	}
}

// withRetry runs fn, retrying transient errors a bounded number of times with
// backoff. Domain validation errors surface immediately; exhausting the
// budget surfaces ports.ErrRetriesExhausted wrapping the last error.
func (s *RoomSession) withRetry(ctx context.Context, op string, fn func() error) error {
	retry := &backoff.Backoff{
		Min:    s.cfg.RetryDelay,
		Max:    s.cfg.RetryDelay * 8,
		Factor: 2,
		Jitter: false,
	}
	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxRetryAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !ports.IsTransient(lastErr) {
			return lastErr
		}
		if attempt == s.cfg.MaxRetryAttempts {
			break
		}
		delay := retry.Duration()
		s.logger.Warn(ctx, op+": transient failure, retrying", map[string]interface{}{
			"attempt": attempt, "delay": delay.String(), "error": lastErr.Error(),
		})
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("%s: %w: %w", op, ports.ErrContextCanceled, ctx.Err())
		}
	}
	return fmt.Errorf("%s: %w: %w", op, ports.ErrRetriesExhausted, lastErr)
}
