package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"tradeRoom/internal/domain"
	"tradeRoom/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements the ports store interfaces using SQLite. The
// ExecuteTrade / ClosePosition / PartialClosePosition methods are the
// transactional procedures the core's atomicity contract depends on: balance
// movement, position mutation, and history write commit as one unit.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/trade_room.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// SQLite handles concurrency internally; the Go driver benefits from a
	// single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	repo := &Repository{db: db, logger: cfg.Logger}
	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "SQLite repository ready", map[string]interface{}{"path": dbPath})
	return repo, nil
}

func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS rooms (
		id TEXT PRIMARY KEY,
		holdings REAL NOT NULL,
		locked_margin REAL NOT NULL DEFAULT 0,
		available REAL NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS positions (
		id TEXT PRIMARY KEY,
		room_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		direction TEXT NOT NULL,
		entry_price REAL NOT NULL,
		entry_amount REAL NOT NULL,
		leverage INTEGER NOT NULL,
		position_size REAL NOT NULL,
		current_price REAL DEFAULT NULL,
		current_pnl REAL NOT NULL DEFAULT 0,
		pnl_percentage REAL NOT NULL DEFAULT 0,
		stop_loss REAL NOT NULL DEFAULT 0,
		take_profit REAL NOT NULL DEFAULT 0,
		released_margin REAL NOT NULL DEFAULT 0,
		funding_fee REAL NOT NULL DEFAULT 0,
		order_type TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		last_funding_at TIMESTAMP DEFAULT NULL
	);

	CREATE TABLE IF NOT EXISTS trade_history (
		id TEXT PRIMARY KEY,
		position_id TEXT NOT NULL,
		room_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		direction TEXT NOT NULL,
		entry_price REAL NOT NULL,
		exit_price REAL NOT NULL,
		pnl REAL NOT NULL,
		pnl_percentage REAL NOT NULL,
		trade_volume REAL NOT NULL,
		close_percentage REAL NOT NULL,
		close_reason TEXT NOT NULL,
		closed_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS funding_rate_snapshots (
		symbol TEXT PRIMARY KEY,
		funding_rate REAL NOT NULL,
		mark_price REAL NOT NULL,
		index_price REAL NOT NULL,
		next_funding_time TIMESTAMP NOT NULL,
		fetched_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS funding_payments (
		id TEXT PRIMARY KEY,
		position_id TEXT NOT NULL,
		room_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		direction TEXT NOT NULL,
		funding_rate REAL NOT NULL,
		position_size REAL NOT NULL,
		fee REAL NOT NULL,
		applied_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_positions_room_status ON positions (room_id, status);
	CREATE INDEX IF NOT EXISTS idx_positions_symbol_status ON positions (symbol, status);
	CREATE INDEX IF NOT EXISTS idx_trade_history_room_closed ON trade_history (room_id, closed_at);
	CREATE INDEX IF NOT EXISTS idx_trade_history_position ON trade_history (position_id);
	CREATE INDEX IF NOT EXISTS idx_funding_payments_position ON funding_payments (position_id);
	`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// --- WalletStore Implementation ---

// CreateRoom seeds a new room wallet with a starting virtual balance.
func (r *Repository) CreateRoom(ctx context.Context, roomID string, startingBalance float64) error {
	const query = `
	INSERT INTO rooms (id, holdings, locked_margin, available, updated_at)
	VALUES (?, ?, 0, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, roomID, startingBalance, startingBalance, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to create room %s: %w", roomID, err)
	}
	r.logger.Debug(ctx, "Room created", map[string]interface{}{"roomID": roomID, "startingBalance": startingBalance})
	return nil
}

// GetRoomWallet retrieves a room's wallet.
func (r *Repository) GetRoomWallet(ctx context.Context, roomID string) (*domain.RoomWallet, error) {
	const query = `SELECT id, holdings, locked_margin, available, updated_at FROM rooms WHERE id = ?`
	w := &domain.RoomWallet{}
	err := r.db.QueryRowContext(ctx, query, roomID).Scan(&w.RoomID, &w.Holdings, &w.LockedMargin, &w.Available, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("room %s: %w", roomID, ports.ErrRoomNotFound)
		}
		return nil, fmt.Errorf("failed to query room %s: %w", roomID, err)
	}
	return w, nil
}

// --- PositionStore Implementation ---

// ExecuteTrade atomically validates the room's available balance, locks the
// entry amount as margin, and inserts the open position.
func (r *Repository) ExecuteTrade(ctx context.Context, pos *domain.Position) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin trade transaction: %w", err)
	}
	defer tx.Rollback()

	var available float64
	err = tx.QueryRowContext(ctx, `SELECT available FROM rooms WHERE id = ?`, pos.RoomID).Scan(&available)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("room %s: %w", pos.RoomID, ports.ErrRoomNotFound)
		}
		return fmt.Errorf("failed to read room balance for %s: %w", pos.RoomID, err)
	}
	if pos.EntryAmount > available {
		return fmt.Errorf("entry amount %.8f exceeds available %.8f: %w", pos.EntryAmount, available, ports.ErrInsufficientFunds)
	}

	_, err = tx.ExecContext(ctx, `
	UPDATE rooms SET locked_margin = locked_margin + ?, available = available - ?, updated_at = ?
	WHERE id = ?`, pos.EntryAmount, pos.EntryAmount, pos.CreatedAt, pos.RoomID)
	if err != nil {
		return fmt.Errorf("failed to lock margin for room %s: %w", pos.RoomID, err)
	}

	_, err = tx.ExecContext(ctx, `
	INSERT INTO positions (id, room_id, user_id, symbol, direction, entry_price, entry_amount,
	                       leverage, position_size, stop_loss, take_profit, order_type, status,
	                       created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		pos.ID, pos.RoomID, pos.UserID, pos.Symbol, pos.Direction, pos.EntryPrice, pos.EntryAmount,
		pos.Leverage, pos.PositionSize, pos.StopLoss, pos.TakeProfit, pos.OrderType, pos.Status,
		pos.CreatedAt, pos.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert position for symbol %s: %w", pos.Symbol, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit trade transaction: %w", err)
	}
	r.logger.Debug(ctx, "Position created", map[string]interface{}{"positionID": pos.ID, "symbol": pos.Symbol})
	return nil
}

// ClosePosition atomically releases margin, settles the realized P&L, marks
// the position closed, and writes one trade-history record. Only the margin
// not already released by earlier partial closes comes back; without this the
// room's locked_margin would go negative after a partial-then-full sequence.
func (r *Repository) ClosePosition(ctx context.Context, pos *domain.Position, trade *domain.TradeHistory) error {
	return r.closeTx(ctx, pos, trade, pos.EntryAmount-pos.ReleasedMargin)
}

// PartialClosePosition is the partial variant; only the closed slice's margin
// is released and the position stays live at partially_closed.
func (r *Repository) PartialClosePosition(ctx context.Context, pos *domain.Position, trade *domain.TradeHistory) error {
	releasedMargin := pos.EntryAmount * trade.ClosePercentage / 100
	return r.closeTx(ctx, pos, trade, releasedMargin)
}

func (r *Repository) closeTx(ctx context.Context, pos *domain.Position, trade *domain.TradeHistory, releasedMargin float64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin close transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
	UPDATE positions
	SET status = ?, current_price = ?, current_pnl = ?, pnl_percentage = ?,
	    released_margin = released_margin + ?, updated_at = ?
	WHERE id = ? AND status != ?`,
		pos.Status, pos.CurrentPrice, pos.CurrentPnl, pos.PnlPercentage,
		releasedMargin, pos.UpdatedAt,
		pos.ID, domain.StatusClosed)
	if err != nil {
		return fmt.Errorf("failed to update position %s: %w", pos.ID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for position %s: %w", pos.ID, err)
	}
	if affected == 0 {
		// Either the row is gone or a concurrent close already terminated it.
		return fmt.Errorf("position %s: %w", pos.ID, ports.ErrPositionClosed)
	}

	_, err = tx.ExecContext(ctx, `
	UPDATE rooms
	SET holdings = holdings + ?, locked_margin = locked_margin - ?, available = available + ? + ?, updated_at = ?
	WHERE id = ?`, trade.Pnl, releasedMargin, releasedMargin, trade.Pnl, trade.ClosedAt, pos.RoomID)
	if err != nil {
		return fmt.Errorf("failed to settle balance for room %s: %w", pos.RoomID, err)
	}

	_, err = tx.ExecContext(ctx, `
	INSERT INTO trade_history (id, position_id, room_id, user_id, symbol, direction, entry_price,
	                           exit_price, pnl, pnl_percentage, trade_volume, close_percentage,
	                           close_reason, closed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		trade.ID, trade.PositionID, trade.RoomID, trade.UserID, trade.Symbol, trade.Direction,
		trade.EntryPrice, trade.ExitPrice, trade.Pnl, trade.PnlPercentage, trade.TradeVolume,
		trade.ClosePercentage, trade.CloseReason, trade.ClosedAt)
	if err != nil {
		return fmt.Errorf("failed to insert trade history for position %s: %w", pos.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit close transaction: %w", err)
	}
	r.logger.Debug(ctx, "Position close committed", map[string]interface{}{
		"positionID": pos.ID, "status": pos.Status, "pnl": trade.Pnl,
	})
	return nil
}

// UpdatePriceData propagates a recomputed price/P&L to the durable record.
func (r *Repository) UpdatePriceData(ctx context.Context, positionID string, price, pnl, pnlPercentage float64, at time.Time) error {
	const query = `
	UPDATE positions SET current_price = ?, current_pnl = ?, pnl_percentage = ?, updated_at = ?
	WHERE id = ? AND status != ?`
	result, err := r.db.ExecContext(ctx, query, price, pnl, pnlPercentage, at, positionID, domain.StatusClosed)
	if err != nil {
		return fmt.Errorf("failed to update price data for position %s: %w: %w", positionID, ports.ErrUpdateFailed, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for position %s: %w", positionID, err)
	}
	if affected == 0 {
		return fmt.Errorf("position %s not live for price update: %w", positionID, ports.ErrPositionNotFound)
	}
	return nil
}

// ApplyFundingFee atomically bumps the position's cumulative funding fee and
// debits the owning room by the fee (a negative fee credits it).
func (r *Repository) ApplyFundingFee(ctx context.Context, positionID, roomID string, fee float64, at time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin funding transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
	UPDATE positions SET funding_fee = funding_fee + ?, last_funding_at = ?, updated_at = ?
	WHERE id = ? AND status != ?`, fee, at, at, positionID, domain.StatusClosed)
	if err != nil {
		return fmt.Errorf("failed to update funding fee for position %s: %w", positionID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for position %s: %w", positionID, err)
	}
	if affected == 0 {
		return fmt.Errorf("position %s not live for funding: %w", positionID, ports.ErrPositionNotFound)
	}

	_, err = tx.ExecContext(ctx, `
	UPDATE rooms SET holdings = holdings - ?, available = available - ?, updated_at = ?
	WHERE id = ?`, fee, fee, at, roomID)
	if err != nil {
		return fmt.Errorf("failed to adjust balance for room %s: %w", roomID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit funding transaction: %w", err)
	}
	return nil
}

// FindByID retrieves a position by id. Returns nil, nil if not found.
func (r *Repository) FindByID(ctx context.Context, id string) (*domain.Position, error) {
	row := r.db.QueryRowContext(ctx, selectPosition+` WHERE id = ?`, id)
	pos, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query position by ID %s: %w", id, err)
	}
	return pos, nil
}

// FindOpenByRoom retrieves all live positions for a room, newest first.
func (r *Repository) FindOpenByRoom(ctx context.Context, roomID string) ([]*domain.Position, error) {
	rows, err := r.db.QueryContext(ctx, selectPosition+`
	WHERE room_id = ? AND status IN (?, ?) ORDER BY created_at DESC`,
		roomID, domain.StatusOpen, domain.StatusPartiallyClosed)
	if err != nil {
		return nil, fmt.Errorf("failed to query open positions for room %s: %w", roomID, err)
	}
	return collectPositions(rows)
}

// FindAllOpen retrieves all live positions across rooms.
func (r *Repository) FindAllOpen(ctx context.Context) ([]*domain.Position, error) {
	rows, err := r.db.QueryContext(ctx, selectPosition+`
	WHERE status IN (?, ?) ORDER BY created_at DESC`,
		domain.StatusOpen, domain.StatusPartiallyClosed)
	if err != nil {
		return nil, fmt.Errorf("failed to query all open positions: %w", err)
	}
	return collectPositions(rows)
}

// --- TradeHistoryStore Implementation ---

// FindByRoom retrieves the most recent trades for a room, up to a limit.
func (r *Repository) FindByRoom(ctx context.Context, roomID string, limit int) ([]*domain.TradeHistory, error) {
	rows, err := r.db.QueryContext(ctx, selectTrade+`
	WHERE room_id = ? ORDER BY closed_at DESC LIMIT ?`, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trade history for room %s: %w", roomID, err)
	}
	return collectTrades(rows)
}

// FindByPosition retrieves all close records for a position, oldest first.
func (r *Repository) FindByPosition(ctx context.Context, positionID string) ([]*domain.TradeHistory, error) {
	rows, err := r.db.QueryContext(ctx, selectTrade+`
	WHERE position_id = ? ORDER BY closed_at ASC`, positionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query trade history for position %s: %w", positionID, err)
	}
	return collectTrades(rows)
}

// --- FundingStore Implementation ---

// LatestSnapshot returns the most recent snapshot for a symbol, or nil, nil.
func (r *Repository) LatestSnapshot(ctx context.Context, symbol string) (*domain.FundingRateSnapshot, error) {
	const query = `
	SELECT symbol, funding_rate, mark_price, index_price, next_funding_time, fetched_at
	FROM funding_rate_snapshots WHERE symbol = ?`
	snap := &domain.FundingRateSnapshot{}
	err := r.db.QueryRowContext(ctx, query, symbol).Scan(
		&snap.Symbol, &snap.FundingRate, &snap.MarkPrice, &snap.IndexPrice,
		&snap.NextFundingTime, &snap.FetchedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query funding snapshot for %s: %w", symbol, err)
	}
	return snap, nil
}

// LatestFetchTime returns the newest FetchedAt across all symbols.
func (r *Repository) LatestFetchTime(ctx context.Context) (time.Time, error) {
	const query = `SELECT fetched_at FROM funding_rate_snapshots ORDER BY fetched_at DESC LIMIT 1`
	var fetched time.Time
	err := r.db.QueryRowContext(ctx, query).Scan(&fetched)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("failed to query latest funding fetch time: %w", err)
	}
	return fetched, nil
}

// SaveSnapshots stores a batch of refreshed snapshots (upsert per symbol).
func (r *Repository) SaveSnapshots(ctx context.Context, snapshots []*domain.FundingRateSnapshot) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin snapshot transaction: %w", err)
	}
	defer tx.Rollback()

	const query = `
	INSERT INTO funding_rate_snapshots (symbol, funding_rate, mark_price, index_price, next_funding_time, fetched_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(symbol) DO UPDATE SET
		funding_rate = excluded.funding_rate,
		mark_price = excluded.mark_price,
		index_price = excluded.index_price,
		next_funding_time = excluded.next_funding_time,
		fetched_at = excluded.fetched_at`
	for _, snap := range snapshots {
		if _, err := tx.ExecContext(ctx, query,
			snap.Symbol, snap.FundingRate, snap.MarkPrice, snap.IndexPrice,
			snap.NextFundingTime, snap.FetchedAt); err != nil {
			return fmt.Errorf("failed to upsert funding snapshot for %s: %w", snap.Symbol, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot transaction: %w", err)
	}
	return nil
}

// InsertPayments stores one funding run's payments as a single batch.
func (r *Repository) InsertPayments(ctx context.Context, payments []*domain.FundingPayment) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin payment transaction: %w", err)
	}
	defer tx.Rollback()

	const query = `
	INSERT INTO funding_payments (id, position_id, room_id, symbol, direction, funding_rate, position_size, fee, applied_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	for _, p := range payments {
		if _, err := tx.ExecContext(ctx, query,
			p.ID, p.PositionID, p.RoomID, p.Symbol, p.Direction, p.FundingRate,
			p.PositionSize, p.Fee, p.AppliedAt); err != nil {
			return fmt.Errorf("failed to insert funding payment %s: %w", p.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit payment transaction: %w", err)
	}
	return nil
}

// --- Helper Scan Functions ---

const selectPosition = `
	SELECT id, room_id, user_id, symbol, direction, entry_price, entry_amount, leverage,
	       position_size, COALESCE(current_price, 0), current_pnl, pnl_percentage,
	       stop_loss, take_profit, released_margin, funding_fee, order_type, status,
	       created_at, updated_at, last_funding_at
	FROM positions`

const selectTrade = `
	SELECT id, position_id, room_id, user_id, symbol, direction, entry_price, exit_price,
	       pnl, pnl_percentage, trade_volume, close_percentage, close_reason, closed_at
	FROM trade_history`

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPosition(s scanner) (*domain.Position, error) {
	p := &domain.Position{}
	var direction, orderType, status string
	var lastFunding sql.NullTime
	err := s.Scan(
		&p.ID, &p.RoomID, &p.UserID, &p.Symbol, &direction, &p.EntryPrice, &p.EntryAmount,
		&p.Leverage, &p.PositionSize, &p.CurrentPrice, &p.CurrentPnl, &p.PnlPercentage,
		&p.StopLoss, &p.TakeProfit, &p.ReleasedMargin, &p.FundingFee, &orderType, &status,
		&p.CreatedAt, &p.UpdatedAt, &lastFunding)
	if err != nil {
		return nil, err
	}
	p.Direction = domain.Direction(direction)
	p.OrderType = domain.OrderType(orderType)
	p.Status = domain.PositionStatus(status)
	if lastFunding.Valid {
		p.LastFundingAt = lastFunding.Time
	}
	return p, nil
}

func scanTrade(s scanner) (*domain.TradeHistory, error) {
	t := &domain.TradeHistory{}
	var direction, reason string
	err := s.Scan(
		&t.ID, &t.PositionID, &t.RoomID, &t.UserID, &t.Symbol, &direction, &t.EntryPrice,
		&t.ExitPrice, &t.Pnl, &t.PnlPercentage, &t.TradeVolume, &t.ClosePercentage,
		&reason, &t.ClosedAt)
	if err != nil {
		return nil, err
	}
	t.Direction = domain.Direction(direction)
	t.CloseReason = domain.CloseReason(reason)
	return t, nil
}

func collectPositions(rows *sql.Rows) ([]*domain.Position, error) {
	defer rows.Close()
	positions := make([]*domain.Position, 0)
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, pos)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating position rows: %w", err)
	}
	return positions, nil
}

func collectTrades(rows *sql.Rows) ([]*domain.TradeHistory, error) {
	defer rows.Close()
	trades := make([]*domain.TradeHistory, 0)
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade history: %w", err)
		}
		trades = append(trades, trade)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade history rows: %w", err)
	}
	return trades, nil
}
