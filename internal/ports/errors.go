package ports

import "errors"

// Standard application-level errors. Adapters wrap underlying transport and
// infrastructure errors with these before they reach the lifecycle engine,
// so the engine never branches on venue-specific error types.
var (
	// General
	ErrUnknown         = errors.New("unknown error occurred")
	ErrInvalidRequest  = errors.New("invalid request parameters or format")
	ErrNotFound        = errors.New("resource not found")
	ErrTimeout         = errors.New("operation timed out")
	ErrContextCanceled = errors.New("operation canceled via context")

	// Venue session, fatal: surfaced to the operator rather than retried
	// beyond a few attempts.
	ErrAuthentication = errors.New("venue authentication failed (check credentials)")
	ErrAccessDenied   = errors.New("venue access denied (permissions or IP allow-list)")

	// Venue, transient: retried on the next tick.
	ErrConnectivity = errors.New("failed to reach the venue")
	ErrRateLimited  = errors.New("venue rate limit exceeded")

	// Orders
	ErrOrderRejected     = errors.New("venue rejected the order")
	ErrOrderCancelFailed = errors.New("failed to cancel order")
	ErrOrderNotFound     = errors.New("order not found on the venue")
	ErrInsufficientFunds = errors.New("insufficient funds for order")

	// Strategy: a "no decision" result, not a failure.
	ErrInsufficientHistory = errors.New("not enough candle history for a signal")

	// Persistence. Ledger failures are fatal for trading; history store
	// failures are logged and swallowed by the engine.
	ErrLedgerPersistence  = errors.New("position ledger persistence failed")
	ErrHistoryPersistence = errors.New("trade history persistence failed")
)
