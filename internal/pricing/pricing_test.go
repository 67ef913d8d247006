package pricing

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/voltcart/voltcart-backend/pkg/errors"
	"github.com/voltcart/voltcart-backend/pkg/enums"
)

func testConverter() *Converter {
	return NewConverter(NewStaticRateSource(map[enums.Currency]decimal.Decimal{
		enums.CurrencyUSD: decimal.NewFromInt(50_000),
		enums.CurrencyJPY: decimal.NewFromInt(7_500_000),
	}))
}

func TestQuoteSatsBTCPassthrough(t *testing.T) {
	t.Parallel()

	quote, err := testConverter().QuoteSats(context.Background(), 2100, enums.CurrencyBTC)
	if err != nil {
		t.Fatalf("QuoteSats: %v", err)
	}
	if quote.AmountSats != 2100 {
		t.Errorf("sats = %d, want 2100", quote.AmountSats)
	}
}

func TestQuoteSatsUSD(t *testing.T) {
	t.Parallel()

	// $500.00 at $50,000/BTC is exactly 0.01 BTC.
	quote, err := testConverter().QuoteSats(context.Background(), 50_000, enums.CurrencyUSD)
	if err != nil {
		t.Fatalf("QuoteSats: %v", err)
	}
	if quote.AmountSats != 1_000_000 {
		t.Errorf("sats = %d, want 1000000", quote.AmountSats)
	}
}

func TestQuoteSatsRoundsUp(t *testing.T) {
	t.Parallel()

	// $0.01 at $50,000/BTC is 20 sats exactly; $0.01 at $60,000 is
	// 16.66... and must round up to 17.
	converter := NewConverter(NewStaticRateSource(map[enums.Currency]decimal.Decimal{
		enums.CurrencyUSD: decimal.NewFromInt(60_000),
	}))
	quote, err := converter.QuoteSats(context.Background(), 1, enums.CurrencyUSD)
	if err != nil {
		t.Fatalf("QuoteSats: %v", err)
	}
	if quote.AmountSats != 17 {
		t.Errorf("sats = %d, want 17", quote.AmountSats)
	}
}

func TestQuoteSatsJPYHasNoMinorUnits(t *testing.T) {
	t.Parallel()

	// ¥7,500 at ¥7,500,000/BTC is 0.001 BTC.
	quote, err := testConverter().QuoteSats(context.Background(), 7_500, enums.CurrencyJPY)
	if err != nil {
		t.Fatalf("QuoteSats: %v", err)
	}
	if quote.AmountSats != 100_000 {
		t.Errorf("sats = %d, want 100000", quote.AmountSats)
	}
}

func TestQuoteSatsValidation(t *testing.T) {
	t.Parallel()

	converter := testConverter()

	if _, err := converter.QuoteSats(context.Background(), 0, enums.CurrencyUSD); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Errorf("zero amount: got %v, want validation error", err)
	}
	if _, err := converter.QuoteSats(context.Background(), 100, enums.Currency("EUR")); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Errorf("unknown currency: got %v, want validation error", err)
	}
}

type failingRateSource struct{}

func (failingRateSource) BTCPrice(context.Context, enums.Currency) (decimal.Decimal, error) {
	return decimal.Zero, errors.New("feed down")
}

func TestQuoteSatsRateFailure(t *testing.T) {
	t.Parallel()

	converter := NewConverter(failingRateSource{})
	if _, err := converter.QuoteSats(context.Background(), 100, enums.CurrencyUSD); !pkgerrors.HasCode(err, pkgerrors.CodeDependency) {
		t.Errorf("got %v, want dependency error", err)
	}
}
