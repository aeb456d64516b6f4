package main

import (
	"context"
	"errors"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"os/signal"
	"syscall"

	"tradeRoom/config"
	"tradeRoom/internal/adapters/binanceclient"
	"tradeRoom/internal/adapters/logger"
	"tradeRoom/internal/adapters/sqlite"
	"tradeRoom/internal/app"
	"tradeRoom/internal/domain"
	"tradeRoom/internal/ports"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(ctx, err, "Error closing database repository")
		}
	}()

	// 4. Initialize Market Data Feed (Binance Adapter)
	feed, err := binanceclient.New(binanceclient.Config{
		APIKey:               cfg.APIKey,
		SecretKey:            cfg.SecretKey,
		UseTestnet:           cfg.IsTestnet,
		Logger:               appLogger,
		ReconnectDelay:       cfg.ReconnectDelay,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}

	// 5. Ensure the room wallet exists
	if _, err := repo.GetRoomWallet(ctx, cfg.RoomID); err != nil {
		if !errors.Is(err, ports.ErrRoomNotFound) {
			log.Fatalf("FATAL: Failed to check room wallet: %v", err)
		}
		if err := repo.CreateRoom(ctx, cfg.RoomID, cfg.StartingBalance); err != nil {
			log.Fatalf("FATAL: Failed to create room wallet: %v", err)
		}
		appLogger.Info(ctx, "Room wallet created", map[string]interface{}{
			"roomID": cfg.RoomID, "startingBalance": cfg.StartingBalance,
		})
	}

	// 6. Initialize the Room Session
	session, err := app.NewRoomSession(cfg, cfg.RoomID, app.Stores{
		Positions: repo,
		Wallets:   repo,
		Trades:    repo,
		Funding:   repo,
	}, feed, appLogger)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize room session: %v", err)
	}

	session.OnPositionClosed(func(trade *domain.TradeHistory) {
		appLogger.Info(ctx, "Position closed", map[string]interface{}{
			"positionID": trade.PositionID, "symbol": trade.Symbol,
			"pnl": trade.Pnl, "reason": string(trade.CloseReason),
		})
	})
	session.OnBalanceChanged(func(bal *domain.RoomBalance) {
		appLogger.Info(ctx, "Balance changed", map[string]interface{}{
			"roomID": bal.RoomID, "available": bal.Available, "valuation": bal.Valuation,
		})
	})

	// 7. Run until interrupted
	if err := session.Start(ctx); err != nil {
		appLogger.Error(ctx, err, "Room session exited with error")
		log.Fatalf("FATAL: Room session exited with error: %v", err)
	}
	appLogger.Info(ctx, "Application finished gracefully.")
}
