// Package core holds the types and error taxonomy shared by the
// exchange subpackages (asset, ledger, orderbook, spot).
package core

import "errors"

type Side int8

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "unknown"
	}
}

// Opposite returns the side a taker order matches against.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Every public operation either fully applies or fails with exactly one
// of these. Callers distinguish them with errors.Is; operations wrap
// them with context via fmt.Errorf("%w: ...").
var (
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInvalidSymbol       = errors.New("symbol not registered")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrExternalTransfer    = errors.New("external transfer failed")
)
