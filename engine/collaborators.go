package engine

import (
	"github.com/defistate/synthamm/amm"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Ledger executes token movements. The engine computes exact amounts and
// directions; custody belongs to the ledger.
type Ledger interface {
	Transfer(from, to amm.Account, mint amm.Mint, amount uint64) error
	Balance(account amm.Account, mint amm.Mint) uint64
}

// Clock supplies the timestamp used to roll reward emissions forward. It
// must never go backwards for a given pool.
type Clock interface {
	Now() uint64
}

// OraclePrice is one reading of a price feed: Price × 10^Expo quote units per
// synthetic unit, with Confidence in the same units.
type OraclePrice struct {
	Price      int64
	Expo       int32
	Confidence uint64
	SlotDelay  uint64
}

// Oracle reads the latest price of a feed.
type Oracle interface {
	GetPrice(feed string) (OraclePrice, error)
}
