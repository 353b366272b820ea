package domain

import "fmt"

// Instrument identifies a tradable symbol on a specific venue.
// Immutable once a position references it.
type Instrument struct {
	Venue  string `json:"venue"`
	Symbol string `json:"symbol"`
}

// Key returns the stable identifier used as the ledger key.
func (i Instrument) Key() string {
	return i.Venue + ":" + i.Symbol
}

func (i Instrument) String() string {
	return fmt.Sprintf("%s/%s", i.Venue, i.Symbol)
}
