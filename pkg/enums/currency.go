package enums

import "fmt"

// Currency represents the monetary denomination of a transaction amount.
// Lightning invoices are always denominated in satoshis; fiat currencies
// appear only in price snapshots before quoting.
type Currency string

const (
	CurrencyBTC Currency = "BTC"
	CurrencyUSD Currency = "USD"
	CurrencyJPY Currency = "JPY"
)

var validCurrencies = []Currency{
	CurrencyBTC,
	CurrencyUSD,
	CurrencyJPY,
}

// String implements fmt.Stringer.
func (c Currency) String() string {
	return string(c)
}

// IsValid reports whether the currency is recognized.
func (c Currency) IsValid() bool {
	for _, candidate := range validCurrencies {
		if candidate == c {
			return true
		}
	}
	return false
}

// MinorPerMajor returns how many minor units make up one major unit.
// BTC amounts are carried in satoshis end to end, so its factor is 1.
func (c Currency) MinorPerMajor() int64 {
	switch c {
	case CurrencyJPY, CurrencyBTC:
		return 1
	default:
		return 100
	}
}

// ParseCurrency converts a raw string into a Currency.
func ParseCurrency(value string) (Currency, error) {
	for _, candidate := range validCurrencies {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid currency %q", value)
}
