package domain

import "time"

// Trade is one row in the append-only trade history store. A row is
// inserted when a position opens and updated when it closes.
type Trade struct {
	ID         int64      // Assigned by the store
	PositionID string     // Lifecycle position this row belongs to
	Instrument Instrument // Venue + symbol
	Strategy   string     // Strategy tag that produced the entry

	Side       Direction
	EntryTime  time.Time
	EntryPrice float64
	Quantity   float64
	Cost       float64 // entry price × quantity
	StopLoss   float64
	TakeProfit float64
	OrderID    string

	CloseTime      time.Time
	ClosePrice     float64
	CloseReason    ExitReason
	RealizedPnL    float64
	RealizedPnLPct float64
	Win            bool
}

// Closed reports whether the exit side of the row has been recorded.
func (t *Trade) Closed() bool {
	return !t.CloseTime.IsZero()
}

// HoldDuration returns how long the position was held, zero while open.
func (t *Trade) HoldDuration() time.Duration {
	if !t.Closed() {
		return 0
	}
	return t.CloseTime.Sub(t.EntryTime)
}
