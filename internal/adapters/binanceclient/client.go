// Package binanceclient adapts the Binance spot API to the ports.Venue
// contract. Spot accounts hold real assets, so the venue is long-only and
// protective brackets use the native one-cancels-other order list.
package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"tradePilot/internal/domain"
	"tradePilot/internal/ports"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
)

const (
	baseURLProduction = "https://api.binance.com"
	baseURLTestnet    = "https://testnet.binance.vision"
)

// Client implements ports.Venue and ports.OrderPlacer over the Binance
// spot API.
type Client struct {
	spot   *binance.Client
	logger ports.Logger

	venueName  string
	quoteAsset string
	// dustThreshold is the base-asset quantity below which a holding is
	// treated as no position. Spot fills leave fee dust behind.
	dustThreshold float64
}

// Config holds configuration specific to the Binance adapter.
type Config struct {
	APIKey     string
	SecretKey  string
	UseTestnet bool
	Logger     ports.Logger

	// QuoteAsset is the account currency, e.g. "USDT".
	QuoteAsset string
	// DustThreshold defaults to 1e-6 base units.
	DustThreshold float64
}

// New creates a new Binance spot adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		cfg.Logger.Warn(context.Background(), "APIKey or SecretKey is empty. Client will only work for public endpoints.")
	}
	if cfg.QuoteAsset == "" {
		cfg.QuoteAsset = "USDT"
	}
	if cfg.DustThreshold <= 0 {
		cfg.DustThreshold = 1e-6
	}

	client := binance.NewClient(cfg.APIKey, cfg.SecretKey)
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
		cfg.Logger.Info(context.Background(), "Binance client configured for Testnet", map[string]interface{}{"baseURL": client.BaseURL})
	} else {
		client.BaseURL = baseURLProduction
	}

	return &Client{
		spot:          client,
		logger:        cfg.Logger,
		venueName:     "binance",
		quoteAsset:    cfg.QuoteAsset,
		dustThreshold: cfg.DustThreshold,
	}, nil
}

// Name returns the venue identifier used in instrument keys.
func (c *Client) Name() string { return c.venueName }

// LongOnly reports true: spot accounts cannot sell assets they do not hold.
func (c *Client) LongOnly() bool { return true }

// Connect verifies connectivity and credentials. A ping failure maps to
// ErrConnectivity; a rejected account call maps to ErrAuthentication or
// ErrAccessDenied, both fatal for the session.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.spot.NewPingService().Do(ctx); err != nil {
		return c.handleError(ctx, fmt.Errorf("ping failed: %w", err), "Connect")
	}
	if _, err := c.spot.NewGetAccountService().Do(ctx); err != nil {
		return c.handleError(ctx, err, "Connect")
	}
	c.logger.Info(ctx, "Binance session established", map[string]interface{}{"quoteAsset": c.quoteAsset})
	return nil
}

// handleError translates Binance API errors into the ports taxonomy.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1021: // Timestamp outside of the recvWindow
			mappedErr = ports.ErrTimeout
		case -1022: // Invalid signature
			mappedErr = ports.ErrAuthentication
		case -1100, -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1112, -1121, -1125, -1130: // Parameter/request format errors
			mappedErr = ports.ErrInvalidRequest
		case -2010: // New order rejected (includes insufficient balance)
			if strings.Contains(strings.ToLower(apiErr.Message), "insufficient balance") {
				mappedErr = ports.ErrInsufficientFunds
			} else {
				mappedErr = ports.ErrOrderRejected
			}
		case -2011: // Cancel rejected
			mappedErr = ports.ErrOrderCancelFailed
		case -2013: // Order does not exist
			mappedErr = ports.ErrOrderNotFound
		case -2014: // API-key format invalid
			mappedErr = ports.ErrAuthentication
		case -2015: // Invalid API-key, IP, or permissions
			mappedErr = ports.ErrAccessDenied
		default:
			mappedErr = ports.ErrUnknown
		}
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return finalErr
	}

	var finalErr error
	if errors.Is(err, context.DeadlineExceeded) {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	} else if errors.Is(err, context.Canceled) {
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	} else if strings.Contains(err.Error(), "use of closed network connection") ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset by peer") ||
		strings.Contains(err.Error(), "no such host") {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectivity, err)
	} else {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// GetQuote retrieves the last traded price for a symbol.
func (c *Client) GetQuote(ctx context.Context, symbol string) (ports.Quote, error) {
	op := "GetQuote"
	prices, err := c.spot.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return ports.Quote{}, c.handleError(ctx, err, op)
	}
	if len(prices) == 0 {
		return ports.Quote{}, c.handleError(ctx, fmt.Errorf("no price data returned for symbol %s", symbol), op)
	}
	price, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		return ports.Quote{}, c.handleError(ctx, fmt.Errorf("could not parse price '%s': %w", prices[0].Price, err), op)
	}
	return ports.Quote{Price: price, Time: time.Now()}, nil
}

// GetKlines retrieves historical candles, oldest first.
func (c *Client) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]*domain.Kline, error) {
	op := "GetKlines"
	raw, err := c.spot.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	klines := make([]*domain.Kline, 0, len(raw))
	for _, bk := range raw {
		dk, err := translateKline(bk, symbol, interval)
		if err != nil {
			return nil, c.handleError(ctx, fmt.Errorf("failed to translate kline: %w", err), op)
		}
		klines = append(klines, dk)
	}
	return klines, nil
}

// GetAccountBalance retrieves the free balance of the quote asset.
func (c *Client) GetAccountBalance(ctx context.Context) (float64, error) {
	op := "GetAccountBalance"
	account, err := c.spot.NewGetAccountService().Do(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}
	for _, bal := range account.Balances {
		if bal.Asset == c.quoteAsset {
			free, err := strconv.ParseFloat(bal.Free, 64)
			if err != nil {
				return 0, c.handleError(ctx, fmt.Errorf("could not parse balance '%s': %w", bal.Free, err), op)
			}
			return free, nil
		}
	}
	return 0, c.handleError(ctx, fmt.Errorf("asset %s not found in account balance", c.quoteAsset), op)
}

// PlaceMarketOrder places a spot market order.
func (c *Client) PlaceMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity float64) (*ports.OrderResponse, error) {
	op := "PlaceMarketOrder"
	order, err := c.spot.NewCreateOrderService().
		Symbol(symbol).
		Side(binance.SideType(side)).
		Type(binance.OrderTypeMarket).
		Quantity(formatFloat(quantity)).
		Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	resp := translateCreateOrder(order, side)
	c.logger.Info(ctx, op+" successful", map[string]interface{}{
		"symbol": symbol, "side": string(side), "quantity": quantity,
		"orderID": resp.OrderID, "avgPrice": resp.AvgPrice,
	})
	return resp, nil
}

// PlaceBracket places the protective pair as a native OCO list: a limit
// maker leg at the take-profit and a stop-loss-limit leg at the stop. The
// exchange guarantees one cancels the other, so no partial bracket can
// remain.
func (c *Client) PlaceBracket(ctx context.Context, symbol string, side domain.OrderSide, quantity, stopPrice, takePrice float64) (*ports.BracketOrder, error) {
	op := "PlaceBracket"
	res, err := c.spot.NewCreateOCOService().
		Symbol(symbol).
		Side(binance.SideType(side)).
		Quantity(formatFloat(quantity)).
		Price(formatFloat(takePrice)).
		StopPrice(formatFloat(stopPrice)).
		StopLimitPrice(formatFloat(stopPrice)).
		StopLimitTimeInForce(binance.TimeInForceTypeGTC).
		Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	bracket := &ports.BracketOrder{ID: strconv.FormatInt(res.OrderListID, 10)}
	for _, report := range res.OrderReports {
		switch report.Type {
		case binance.OrderTypeStopLossLimit, binance.OrderTypeStopLoss:
			bracket.StopOrderID = strconv.FormatInt(report.OrderID, 10)
		case binance.OrderTypeLimitMaker, binance.OrderTypeLimit:
			bracket.TakeOrderID = strconv.FormatInt(report.OrderID, 10)
		}
	}
	if bracket.StopOrderID == "" || bracket.TakeOrderID == "" {
		return nil, c.handleError(ctx, fmt.Errorf("OCO response missing legs: %+v", res.OrderReports), op)
	}

	c.logger.Info(ctx, op+" successful", map[string]interface{}{
		"symbol": symbol, "bracketID": bracket.ID,
		"stopOrderID": bracket.StopOrderID, "takeOrderID": bracket.TakeOrderID,
	})
	return bracket, nil
}

// GetBracketResult inspects both leg orders and reports which one filled.
// The venue's order records are authoritative; market price is never
// consulted.
func (c *Client) GetBracketResult(ctx context.Context, symbol string, bracket *ports.BracketOrder) (*ports.BracketResult, error) {
	stopRec, stopErr := c.GetOrderRecord(ctx, symbol, bracket.StopOrderID)
	if stopErr != nil && !errors.Is(stopErr, ports.ErrOrderNotFound) {
		return nil, stopErr
	}
	takeRec, takeErr := c.GetOrderRecord(ctx, symbol, bracket.TakeOrderID)
	if takeErr != nil && !errors.Is(takeErr, ports.ErrOrderNotFound) {
		return nil, takeErr
	}

	return resolveBracket(stopRec, takeRec), nil
}

// resolveBracket maps the two leg records onto a bracket status. A nil
// record means the venue no longer knows the order.
func resolveBracket(stopRec, takeRec *ports.OrderRecord) *ports.BracketResult {
	stopFilled := stopRec != nil && stopRec.State == ports.OrderStateFilled
	takeFilled := takeRec != nil && takeRec.State == ports.OrderStateFilled

	switch {
	case stopFilled && takeFilled:
		// Both legs report fills. Something is off venue-side; surface it
		// instead of guessing which price applied.
		return &ports.BracketResult{Status: ports.BracketFilledUnknown, FillTime: stopRec.UpdatedAt}
	case stopFilled:
		return &ports.BracketResult{Status: ports.BracketFilledStop, FillPrice: stopRec.AvgPrice, FillTime: stopRec.UpdatedAt}
	case takeFilled:
		return &ports.BracketResult{Status: ports.BracketFilledTake, FillPrice: takeRec.AvgPrice, FillTime: takeRec.UpdatedAt}
	case stopRec == nil && takeRec == nil:
		return &ports.BracketResult{Status: ports.BracketNotFound}
	}

	cancelled := func(r *ports.OrderRecord) bool {
		return r == nil || r.State == ports.OrderStateCancelled || r.State == ports.OrderStateExpired
	}
	if cancelled(stopRec) && cancelled(takeRec) {
		return &ports.BracketResult{Status: ports.BracketCancelled}
	}
	return &ports.BracketResult{Status: ports.BracketPending}
}

// CancelBracket cancels any still-resting legs. Orders already gone are
// fine; on Binance cancelling one OCO leg cancels its sibling.
func (c *Client) CancelBracket(ctx context.Context, symbol string, bracket *ports.BracketOrder) error {
	for _, orderID := range []string{bracket.StopOrderID, bracket.TakeOrderID} {
		if orderID == "" {
			continue
		}
		if err := c.CancelOrder(ctx, symbol, orderID); err != nil {
			if errors.Is(err, ports.ErrOrderNotFound) || errors.Is(err, ports.ErrOrderCancelFailed) {
				continue // already filled or cancelled
			}
			return err
		}
	}
	return nil
}

// GetPosition reports the spot holding for a symbol's base asset.
// Holdings at or below the dust threshold count as no position, so the
// caller sees nil, nil after a venue-side close.
func (c *Client) GetPosition(ctx context.Context, symbol string) (*ports.VenuePosition, error) {
	op := "GetPosition"
	base := strings.TrimSuffix(symbol, c.quoteAsset)
	if base == symbol {
		return nil, c.handleError(ctx, fmt.Errorf("symbol %s does not end in quote asset %s", symbol, c.quoteAsset), op)
	}

	account, err := c.spot.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	for _, bal := range account.Balances {
		if bal.Asset != base {
			continue
		}
		free, err := strconv.ParseFloat(bal.Free, 64)
		if err != nil {
			return nil, c.handleError(ctx, fmt.Errorf("could not parse balance '%s': %w", bal.Free, err), op)
		}
		locked, err := strconv.ParseFloat(bal.Locked, 64)
		if err != nil {
			return nil, c.handleError(ctx, fmt.Errorf("could not parse locked balance '%s': %w", bal.Locked, err), op)
		}
		qty := free + locked
		if qty <= c.dustThreshold {
			return nil, nil
		}
		return &ports.VenuePosition{Symbol: symbol, Quantity: qty}, nil
	}
	return nil, nil
}

// --- ports.OrderPlacer surface ---
//
// The leg-level methods let the simulated-bracket wrapper drive this venue
// for symbols where the OCO list is unavailable.

// PlaceStopOrder places a stop-loss-limit order at stopPrice.
func (c *Client) PlaceStopOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity, stopPrice float64) (*ports.OrderResponse, error) {
	op := "PlaceStopOrder"
	order, err := c.spot.NewCreateOrderService().
		Symbol(symbol).
		Side(binance.SideType(side)).
		Type(binance.OrderTypeStopLossLimit).
		TimeInForce(binance.TimeInForceTypeGTC).
		Quantity(formatFloat(quantity)).
		Price(formatFloat(stopPrice)).
		StopPrice(formatFloat(stopPrice)).
		Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	resp := translateCreateOrder(order, side)
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "orderID": resp.OrderID, "stopPrice": stopPrice})
	return resp, nil
}

// PlaceLimitOrder places a GTC limit order.
func (c *Client) PlaceLimitOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity, limitPrice float64) (*ports.OrderResponse, error) {
	op := "PlaceLimitOrder"
	order, err := c.spot.NewCreateOrderService().
		Symbol(symbol).
		Side(binance.SideType(side)).
		Type(binance.OrderTypeLimit).
		TimeInForce(binance.TimeInForceTypeGTC).
		Quantity(formatFloat(quantity)).
		Price(formatFloat(limitPrice)).
		Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	resp := translateCreateOrder(order, side)
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "orderID": resp.OrderID, "limitPrice": limitPrice})
	return resp, nil
}

// CancelOrder cancels a single resting order.
func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) error {
	op := "CancelOrder"
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return c.handleError(ctx, fmt.Errorf("invalid order id %q: %w", orderID, err), op)
	}
	if _, err := c.spot.NewCancelOrderService().Symbol(symbol).OrderID(id).Do(ctx); err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Debug(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "orderID": orderID})
	return nil
}

// GetOrderRecord fetches the venue's authoritative record of an order.
func (c *Client) GetOrderRecord(ctx context.Context, symbol, orderID string) (*ports.OrderRecord, error) {
	op := "GetOrderRecord"
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return nil, c.handleError(ctx, fmt.Errorf("invalid order id %q: %w", orderID, err), op)
	}
	order, err := c.spot.NewGetOrderService().Symbol(symbol).OrderID(id).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	return translateOrder(order), nil
}

// --- Translation helpers ---

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func avgFillPrice(executedQty, cumQuote string) float64 {
	qty, err1 := strconv.ParseFloat(executedQty, 64)
	quote, err2 := strconv.ParseFloat(cumQuote, 64)
	if err1 != nil || err2 != nil || qty == 0 {
		return 0
	}
	return quote / qty
}

func translateCreateOrder(order *binance.CreateOrderResponse, side domain.OrderSide) *ports.OrderResponse {
	if order == nil {
		return nil
	}
	execQty, _ := strconv.ParseFloat(order.ExecutedQuantity, 64)
	return &ports.OrderResponse{
		OrderID:     strconv.FormatInt(order.OrderID, 10),
		Symbol:      order.Symbol,
		Side:        side,
		AvgPrice:    avgFillPrice(order.ExecutedQuantity, order.CummulativeQuoteQuantity),
		ExecutedQty: execQty,
		Status:      string(order.Status),
		Time:        time.UnixMilli(order.TransactTime),
	}
}

func translateOrder(order *binance.Order) *ports.OrderRecord {
	if order == nil {
		return nil
	}
	execQty, _ := strconv.ParseFloat(order.ExecutedQuantity, 64)
	return &ports.OrderRecord{
		OrderID:     strconv.FormatInt(order.OrderID, 10),
		Kind:        translateOrderKind(order.Type),
		State:       translateOrderState(order.Status),
		AvgPrice:    avgFillPrice(order.ExecutedQuantity, order.CummulativeQuoteQuantity),
		ExecutedQty: execQty,
		UpdatedAt:   time.UnixMilli(order.UpdateTime),
	}
}

func translateOrderKind(t binance.OrderType) ports.OrderKind {
	switch t {
	case binance.OrderTypeMarket:
		return ports.OrderMarket
	case binance.OrderTypeStopLoss, binance.OrderTypeStopLossLimit:
		return ports.OrderStop
	default:
		return ports.OrderLimit
	}
}

func translateOrderState(s binance.OrderStatusType) ports.OrderState {
	switch s {
	case binance.OrderStatusTypeFilled:
		return ports.OrderStateFilled
	case binance.OrderStatusTypeCanceled, binance.OrderStatusTypePendingCancel:
		return ports.OrderStateCancelled
	case binance.OrderStatusTypeRejected:
		return ports.OrderStateRejected
	case binance.OrderStatusTypeExpired:
		return ports.OrderStateExpired
	default:
		return ports.OrderStateNew
	}
}

func translateKline(bk *binance.Kline, symbol, interval string) (*domain.Kline, error) {
	if bk == nil {
		return nil, errors.New("received nil historical kline")
	}
	open, err := strconv.ParseFloat(bk.Open, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing open price '%s': %w", bk.Open, err)
	}
	high, err := strconv.ParseFloat(bk.High, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing high price '%s': %w", bk.High, err)
	}
	low, err := strconv.ParseFloat(bk.Low, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing low price '%s': %w", bk.Low, err)
	}
	cls, err := strconv.ParseFloat(bk.Close, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing close price '%s': %w", bk.Close, err)
	}
	vol, err := strconv.ParseFloat(bk.Volume, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing volume '%s': %w", bk.Volume, err)
	}

	return &domain.Kline{
		OpenTime:  time.UnixMilli(bk.OpenTime),
		CloseTime: time.UnixMilli(bk.CloseTime),
		Symbol:    symbol,
		Interval:  interval,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     cls,
		Volume:    vol,
	}, nil
}
