// Package money defines the fixed-point decimal type used for every
// balance, margin, and price figure inside the trading core. No float64
// crosses a money-bearing field here; all arithmetic goes through
// shopspring/decimal so equality and ordering stay exact.
package money

import "github.com/shopspring/decimal"

// D is the arbitrary-precision decimal used for all wallet, margin, and
// price arithmetic in the core.
type D = decimal.Decimal

// Zero is the additive identity, handy for initializing accumulators.
var Zero = decimal.Zero

// SeedBalance is the balance a freshly created wallet starts with.
var SeedBalance = decimal.NewFromInt(10000)

// LiquidationThreshold (0.1) is the factor of the margin-exhaustion check:
// a position is liquidated when its initial margin is below
// (pnl + margin) × LiquidationThreshold.
var LiquidationThreshold = decimal.NewFromFloat(0.1)

// New builds a D from a float64. It is used for constants, tests, and the
// config-loaded startup values; wire data (feed ticks) is parsed from
// strings instead so it never passes through a binary float.
func New(f float64) D {
	return decimal.NewFromFloat(f)
}
