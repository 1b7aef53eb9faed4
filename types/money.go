// Package types provides value types shared across purchasekit.
package types

import (
	"fmt"
	"strings"
)

// Money is a store price expressed in thousandths of the currency unit.
// Store APIs report micros; the ledger reports millis. All arithmetic is
// integer-only.
//
// Examples:
//   - Money{Millis: 4990, Currency: "EUR"} = €4.99
//   - Money{Millis: 0, Currency: "USD"} = free
type Money struct {
	Millis   int64  `json:"millis"`
	Currency string `json:"currency"` // ISO 4217 as reported by the store
}

// FromMicros converts a store price in micros to Money.
func FromMicros(micros int64, currency string) Money {
	return Money{Millis: micros / 1000, Currency: strings.ToUpper(currency)}
}

// FromMillis builds Money from a catalog price in millis.
func FromMillis(millis int64, currency string) Money {
	return Money{Millis: millis, Currency: strings.ToUpper(currency)}
}

// IsZero returns true if the amount is zero.
func (m Money) IsZero() bool { return m.Millis == 0 }

// IsPositive returns true if the amount is greater than zero.
func (m Money) IsPositive() bool { return m.Millis > 0 }

// Equal checks amount and currency equality.
func (m Money) Equal(other Money) bool {
	return m.Millis == other.Millis && strings.EqualFold(m.Currency, other.Currency)
}

// String renders a raw, locale-independent representation such as
// "4.990 EUR". Display formatting is left to the host application.
func (m Money) String() string {
	sign := ""
	v := m.Millis
	if v < 0 {
		sign, v = "-", -v
	}
	return fmt.Sprintf("%s%d.%03d %s", sign, v/1000, v%1000, m.Currency)
}
