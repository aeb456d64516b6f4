package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/jpillora/backoff"

	"tradeRoom/internal/domain"
	"tradeRoom/internal/ports"
)

const (
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"
)

// Client implements ports.MarketDataFeed using the go-binance futures API:
// mark-price streams for ticks, the 24h ticker for hydration, and the
// premium index for funding rates.
type Client struct {
	futuresClient        *futures.Client
	logger               ports.Logger
	reconnectDelay       time.Duration
	maxReconnectAttempts int
}

// Config holds configuration specific to the Binance adapter.
type Config struct {
	APIKey               string
	SecretKey            string
	UseTestnet           bool
	Logger               ports.Logger
	ReconnectDelay       time.Duration // Base delay between reconnect attempts
	MaxReconnectAttempts int           // Attempts before the stream gives up
}

// New creates a new Binance market-data adapter. All endpoints used here are
// public, so empty keys are acceptable.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
	} else {
		client.BaseURL = baseURLProduction
	}
	cfg.Logger.Info(context.Background(), "Binance client configured", map[string]interface{}{
		"baseURL": client.BaseURL, "testnet": cfg.UseTestnet,
	})

	reconnectDelay := cfg.ReconnectDelay
	if reconnectDelay <= 0 {
		reconnectDelay = time.Second
	}
	maxAttempts := cfg.MaxReconnectAttempts
	if maxAttempts <= 0 {
		maxAttempts = 10
	}

	return &Client{
		futuresClient:        client,
		logger:               cfg.Logger,
		reconnectDelay:       reconnectDelay,
		maxReconnectAttempts: maxAttempts,
	}, nil
}

// handleError translates Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1021: // Timestamp outside of recvWindow
			mappedErr = ports.ErrTimeout
		case -1100, -1101, -1102, -1103, -1104, -1121: // Parameter/symbol errors
			mappedErr = ports.ErrInvalidRequest
		default:
			mappedErr = ports.ErrFeedUnavailable
		}
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
		c.logger.Error(ctx, err, operation+" failed with API error", fields)
		return finalErr
	}

	var finalErr error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		finalErr = fmt.Errorf("%s canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	case strings.Contains(err.Error(), "use of closed network connection"),
		strings.Contains(err.Error(), "connection refused"),
		strings.Contains(err.Error(), "connection reset by peer"):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	default:
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrFeedUnavailable, err)
	}
	c.logger.Error(ctx, err, operation+" failed", fields)
	return finalErr
}

// GetTicker retrieves the 24-hour ticker snapshot for a symbol.
func (c *Client) GetTicker(ctx context.Context, symbol string) (*domain.TickerSnapshot, error) {
	op := "GetTicker"
	stats, err := c.futuresClient.NewListPriceChangeStatsService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	if len(stats) == 0 {
		return nil, c.handleError(ctx, fmt.Errorf("no ticker data returned for symbol %s", symbol), op)
	}

	snap, err := translateTicker(stats[0])
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	return snap, nil
}

// GetFundingRates retrieves current funding/mark/index prices for all symbols.
func (c *Client) GetFundingRates(ctx context.Context) ([]*domain.FundingRateSnapshot, error) {
	op := "GetFundingRates"
	indexes, err := c.futuresClient.NewPremiumIndexService().Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	snapshots := make([]*domain.FundingRateSnapshot, 0, len(indexes))
	for _, idx := range indexes {
		snap, err := translatePremiumIndex(idx)
		if err != nil {
			// One malformed entry should not sink the bulk pull.
			c.logger.Warn(ctx, op+": dropping malformed premium index entry", map[string]interface{}{
				"symbol": idx.Symbol, "error": err.Error(),
			})
			continue
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, nil
}

// StreamTicks starts a combined mark-price stream for the given symbols and
// delivers normalized ticks. Reconnects with backoff up to the configured
// attempt budget; exhausting it closes doneCh.
func (c *Client) StreamTicks(ctx context.Context, symbols []string, handler func(tick *domain.PriceTick), errHandler func(err error)) (doneCh chan struct{}, stopCh chan struct{}, err error) {
	op := "StreamTicks"
	if len(symbols) == 0 {
		return nil, nil, fmt.Errorf("%s: at least one symbol is required: %w", op, ports.ErrInvalidRequest)
	}
	wsCtx, cancelWs := context.WithCancel(ctx)

	binanceHandler := func(event *futures.WsMarkPriceEvent) {
		tick, err := translateMarkPriceEvent(event)
		if err != nil {
			c.logger.Warn(wsCtx, op+": dropping malformed tick", map[string]interface{}{"error": err.Error()})
			return
		}
		handler(tick)
	}
	binanceErrHandler := func(err error) {
		errHandler(c.handleError(wsCtx, err, op+" stream"))
	}

	go func() {
		defer cancelWs()
		retry := &backoff.Backoff{
			Min:    c.reconnectDelay,
			Max:    c.reconnectDelay * 16,
			Factor: 2,
			Jitter: true,
		}
		attempt := 0
		for {
			select {
			case <-wsCtx.Done():
				return
			default:
			}

			innerDoneCh, innerStopCh, connectErr := futures.WsCombinedMarkPriceServe(symbols, binanceHandler, binanceErrHandler)
			if connectErr != nil {
				c.handleError(wsCtx, connectErr, op+" connection attempt")
				attempt++
				if attempt >= c.maxReconnectAttempts {
					c.logger.Error(wsCtx, connectErr, op+": max reconnection attempts exceeded, giving up", map[string]interface{}{
						"symbols": symbols, "maxAttempts": c.maxReconnectAttempts,
					})
					errHandler(fmt.Errorf("%s: %w: %w", op, ports.ErrRetriesExhausted, connectErr))
					return
				}
				delay := retry.Duration()
				c.logger.Info(wsCtx, op+": connection failed, retrying", map[string]interface{}{
					"attempt": attempt, "delay": delay.String(),
				})
				select {
				case <-time.After(delay):
					continue
				case <-wsCtx.Done():
					return
				}
			}

			c.logger.Info(wsCtx, op+": stream established", map[string]interface{}{"symbols": symbols})
			attempt = 0
			retry.Reset()

			select {
			case <-innerDoneCh:
				c.logger.Warn(wsCtx, op+": stream closed unexpectedly, reconnecting", map[string]interface{}{"symbols": symbols})
			case <-wsCtx.Done():
				select {
				case innerStopCh <- struct{}{}:
				default:
				}
				return
			}
		}
	}()

	doneCh = make(chan struct{})
	stopCh = make(chan struct{})

	go func() {
		select {
		case <-stopCh:
			cancelWs()
		case <-wsCtx.Done():
		}
	}()
	go func() {
		<-wsCtx.Done()
		close(doneCh)
	}()

	return doneCh, stopCh, nil
}

// --- Translation Helpers ---

func translateMarkPriceEvent(event *futures.WsMarkPriceEvent) (*domain.PriceTick, error) {
	if event == nil {
		return nil, errors.New("received nil mark price event")
	}
	price, err := strconv.ParseFloat(event.MarkPrice, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing mark price '%s': %w", event.MarkPrice, err)
	}
	if price <= 0 {
		// Contract with downstream components: never emit a non-positive price.
		return nil, fmt.Errorf("non-positive mark price %v for %s", price, event.Symbol)
	}
	return &domain.PriceTick{
		Symbol: event.Symbol,
		Price:  price,
		Time:   time.UnixMilli(event.Time),
	}, nil
}

func translateTicker(stats *futures.PriceChangeStats) (*domain.TickerSnapshot, error) {
	if stats == nil {
		return nil, errors.New("received nil ticker stats")
	}
	last, err := strconv.ParseFloat(stats.LastPrice, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing last price '%s': %w", stats.LastPrice, err)
	}
	high, err := strconv.ParseFloat(stats.HighPrice, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing high price '%s': %w", stats.HighPrice, err)
	}
	low, err := strconv.ParseFloat(stats.LowPrice, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing low price '%s': %w", stats.LowPrice, err)
	}
	vol, err := strconv.ParseFloat(stats.Volume, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing volume '%s': %w", stats.Volume, err)
	}
	return &domain.TickerSnapshot{
		Symbol:    stats.Symbol,
		LastPrice: last,
		HighPrice: high,
		LowPrice:  low,
		Volume:    vol,
		Time:      time.UnixMilli(stats.CloseTime),
	}, nil
}

func translatePremiumIndex(idx *futures.PremiumIndex) (*domain.FundingRateSnapshot, error) {
	if idx == nil {
		return nil, errors.New("received nil premium index")
	}
	rate, err := strconv.ParseFloat(idx.LastFundingRate, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing funding rate '%s': %w", idx.LastFundingRate, err)
	}
	mark, err := strconv.ParseFloat(idx.MarkPrice, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing mark price '%s': %w", idx.MarkPrice, err)
	}
	index, err := strconv.ParseFloat(idx.IndexPrice, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing index price '%s': %w", idx.IndexPrice, err)
	}
	var nextFunding time.Time
	if idx.NextFundingTime > 0 {
		nextFunding = time.UnixMilli(idx.NextFundingTime).UTC()
	}
	return &domain.FundingRateSnapshot{
		Symbol:          idx.Symbol,
		FundingRate:     rate,
		MarkPrice:       mark,
		IndexPrice:      index,
		NextFundingTime: nextFunding,
		FetchedAt:       time.UnixMilli(idx.Time).UTC(),
	}, nil
}
