package ports

import (
	"context"
	"time"

	"tradePilot/internal/domain"
)

// Quote is a single price observation.
type Quote struct {
	Price float64
	Time  time.Time
}

// OrderResponse holds the essential details returned after placing an order.
type OrderResponse struct {
	OrderID     string
	Symbol      string
	Side        domain.OrderSide
	AvgPrice    float64 // Average fill price (0 if not yet filled)
	ExecutedQty float64
	Status      string
	Time        time.Time
}

// OrderKind classifies a resting or executed order on the venue.
type OrderKind string

const (
	OrderMarket OrderKind = "MARKET"
	OrderStop   OrderKind = "STOP"
	OrderLimit  OrderKind = "LIMIT"
)

// OrderState is the venue-side status of an order.
type OrderState string

const (
	OrderStateNew       OrderState = "NEW"
	OrderStateFilled    OrderState = "FILLED"
	OrderStateCancelled OrderState = "CANCELLED"
	OrderStateRejected  OrderState = "REJECTED"
	OrderStateExpired   OrderState = "EXPIRED"
)

// OrderRecord is the venue's authoritative record of an order, used to
// decide which bracket leg actually filled. Exit detection must rely on
// these records, never on the last observed market price: delayed or
// fallback data can still show the price on the wrong side of a level
// after the real fill happened.
type OrderRecord struct {
	OrderID     string
	Kind        OrderKind
	State       OrderState
	AvgPrice    float64
	ExecutedQty float64
	UpdatedAt   time.Time
}

// BracketOrder identifies one logical protective bracket (stop-loss +
// take-profit). On venues without native one-cancels-other support the ID
// is synthesized by the adapter and the two legs are tracked individually.
type BracketOrder struct {
	ID          string
	StopOrderID string
	TakeOrderID string
}

// BracketStatus is the outcome of a bracket query.
type BracketStatus string

const (
	BracketPending       BracketStatus = "PENDING"
	BracketFilledStop    BracketStatus = "FILLED_STOP"
	BracketFilledTake    BracketStatus = "FILLED_TAKE"
	BracketFilledUnknown BracketStatus = "FILLED_UNKNOWN"
	BracketCancelled     BracketStatus = "CANCELLED"
	BracketNotFound      BracketStatus = "NOT_FOUND"
)

// BracketResult reports which protective leg, if any, has filled.
type BracketResult struct {
	Status    BracketStatus
	FillPrice float64
	FillTime  time.Time
}

// VenuePosition is a position as reported by the venue itself.
type VenuePosition struct {
	Symbol     string
	Quantity   float64 // positive for long, negative for short
	EntryPrice float64
}

// Venue is the capability-based contract over a concrete execution venue.
// Adapters hide authentication, symbol mapping and wire protocols, and
// normalize every error into the ports taxonomy. Callers branch only on
// capability flags (LongOnly, bracket behaviour), never on venue identity.
type Venue interface {
	// Name returns the venue identifier used in instrument keys.
	Name() string

	// Connect establishes the venue session. Failures are distinguishable
	// via errors.Is: ErrAuthentication, ErrAccessDenied (both fatal) or
	// ErrConnectivity (transient, caller-driven backoff).
	Connect(ctx context.Context) error

	// LongOnly reports whether the venue can open short positions.
	// Venues dealing in real, non-marginable shares cannot.
	LongOnly() bool

	// GetQuote retrieves the current price for a symbol.
	GetQuote(ctx context.Context, symbol string) (Quote, error)

	// GetKlines retrieves historical candles, oldest first.
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]*domain.Kline, error)

	// GetAccountBalance retrieves the available balance in quote currency.
	GetAccountBalance(ctx context.Context) (float64, error)

	// PlaceMarketOrder places a market order and returns its fill details.
	PlaceMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity float64) (*OrderResponse, error)

	// PlaceBracket places the protective stop-loss/take-profit pair for an
	// already-filled entry. side is the exit side of the position. If any
	// leg fails to place, the adapter cancels whatever did place and fails
	// the whole operation; no partial bracket is ever left resting.
	PlaceBracket(ctx context.Context, symbol string, side domain.OrderSide, quantity, stopPrice, takePrice float64) (*BracketOrder, error)

	// GetBracketResult reports whether either protective leg has filled,
	// using the venue's authoritative order records.
	GetBracketResult(ctx context.Context, symbol string, bracket *BracketOrder) (*BracketResult, error)

	// CancelBracket cancels any still-resting legs of a bracket. Legs that
	// are already filled or gone are not an error.
	CancelBracket(ctx context.Context, symbol string, bracket *BracketOrder) error

	// GetPosition retrieves the venue-side position for a symbol.
	// Returns nil, nil when the venue holds no position: for a position the
	// engine still believes open this means the venue closed it
	// out-of-band, which is a normal close path, not an error.
	GetPosition(ctx context.Context, symbol string) (*VenuePosition, error)
}

// OrderPlacer is the leg-level order surface of a venue without native
// bracket support. The simbracket adapter composes three dependent orders
// over it into one logical bracket.
type OrderPlacer interface {
	PlaceMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity float64) (*OrderResponse, error)
	PlaceStopOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity, stopPrice float64) (*OrderResponse, error)
	PlaceLimitOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity, limitPrice float64) (*OrderResponse, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	GetOrderRecord(ctx context.Context, symbol, orderID string) (*OrderRecord, error)
}
