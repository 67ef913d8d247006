package pricing

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/voltcart/voltcart-backend/pkg/errors"
	"github.com/voltcart/voltcart-backend/pkg/enums"
)

const satsPerBTC = 100_000_000

// RateSource yields the current price of one bitcoin expressed in major
// units of the given fiat currency.
type RateSource interface {
	BTCPrice(ctx context.Context, currency enums.Currency) (decimal.Decimal, error)
}

// Quote is the satoshi amount charged for a fiat-denominated total,
// together with the inputs used to derive it.
type Quote struct {
	AmountMinor int64
	Currency    enums.Currency
	BTCPrice    decimal.Decimal
	AmountSats  int64
}

// Converter turns order totals in minor fiat units into satoshis.
type Converter struct {
	rates RateSource
}

func NewConverter(rates RateSource) *Converter {
	return &Converter{rates: rates}
}

// QuoteSats converts amountMinor of the given currency into satoshis.
// BTC totals are already denominated in sats and pass through unchanged.
// Fiat conversions round up so the merchant is never underpaid.
func (c *Converter) QuoteSats(ctx context.Context, amountMinor int64, currency enums.Currency) (*Quote, error) {
	if amountMinor <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("amount must be positive, got %d", amountMinor))
	}
	if !currency.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported currency %q", currency))
	}

	if currency == enums.CurrencyBTC {
		return &Quote{
			AmountMinor: amountMinor,
			Currency:    currency,
			AmountSats:  amountMinor,
		}, nil
	}

	price, err := c.rates.BTCPrice(ctx, currency)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch exchange rate")
	}
	if price.LessThanOrEqual(decimal.Zero) {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("invalid exchange rate %s for %s", price, currency))
	}

	major := decimal.NewFromInt(amountMinor).Div(decimal.NewFromInt(currency.MinorPerMajor()))
	sats := major.Div(price).Mul(decimal.NewFromInt(satsPerBTC)).Ceil()

	return &Quote{
		AmountMinor: amountMinor,
		Currency:    currency,
		BTCPrice:    price,
		AmountSats:  sats.IntPart(),
	}, nil
}

// StaticRateSource serves a fixed BTC price per currency. Used in tests
// and as the fallback when no market feed is configured.
type StaticRateSource struct {
	prices map[enums.Currency]decimal.Decimal
}

func NewStaticRateSource(prices map[enums.Currency]decimal.Decimal) *StaticRateSource {
	return &StaticRateSource{prices: prices}
}

func (s *StaticRateSource) BTCPrice(_ context.Context, currency enums.Currency) (decimal.Decimal, error) {
	price, ok := s.prices[currency]
	if !ok {
		return decimal.Zero, fmt.Errorf("no rate configured for %s", currency)
	}
	return price, nil
}

// StaticRateSourceFromStrings parses a currency->price table, typically read
// from the environment.
func StaticRateSourceFromStrings(raw map[string]string) (*StaticRateSource, error) {
	prices := make(map[enums.Currency]decimal.Decimal, len(raw))
	for code, value := range raw {
		currency := enums.Currency(strings.ToUpper(strings.TrimSpace(code)))
		if !currency.IsValid() {
			return nil, fmt.Errorf("unknown currency %q in rate table", code)
		}
		price, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("invalid rate for %s: %w", currency, err)
		}
		if !price.IsPositive() {
			return nil, fmt.Errorf("rate for %s must be positive", currency)
		}
		prices[currency] = price
	}
	return NewStaticRateSource(prices), nil
}
