package domain

// OrderSide represents the side of an order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// Direction is the direction of a signal or position.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
	None  Direction = "NONE"
)

// Sign returns +1 for LONG, -1 for SHORT and 0 otherwise.
// Used for direction-aware P&L arithmetic.
func (d Direction) Sign() float64 {
	switch d {
	case Long:
		return 1
	case Short:
		return -1
	default:
		return 0
	}
}

// EntrySide maps a direction to the order side that opens the position.
func (d Direction) EntrySide() OrderSide {
	if d == Short {
		return Sell
	}
	return Buy
}

// ExitSide maps a direction to the order side that flattens the position.
func (d Direction) ExitSide() OrderSide {
	if d == Short {
		return Buy
	}
	return Sell
}

// PositionState is a stage in the position lifecycle. States only ever move
// forward; see Position.TransitionTo.
type PositionState string

const (
	StateIdle     PositionState = "idle"
	StateEntering PositionState = "entering"
	StateOpen     PositionState = "open"
	StateRejected PositionState = "rejected"
	StateExiting  PositionState = "exiting"
	StateClosed   PositionState = "closed"
)

// stateRank orders the lifecycle states. REJECTED and OPEN share a rank:
// they are the two possible outcomes of ENTERING.
var stateRank = map[PositionState]int{
	StateIdle:     0,
	StateEntering: 1,
	StateOpen:     2,
	StateRejected: 2,
	StateExiting:  3,
	StateClosed:   4,
}

// IsTerminal reports whether no further transitions are possible.
func (s PositionState) IsTerminal() bool {
	return s == StateClosed || s == StateRejected
}

// ExitReason indicates why a position left the OPEN state.
type ExitReason string

const (
	ExitStopLoss     ExitReason = "stop_loss"
	ExitTakeProfit   ExitReason = "take_profit"
	ExitVenueSide    ExitReason = "venue_side_close"
	ExitManual       ExitReason = "manual"
	ExitSessionClose ExitReason = "session_close"
	ExitFlatten      ExitReason = "flatten"
	ExitUnknown      ExitReason = "unknown"
)
