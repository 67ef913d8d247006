package enums

import "fmt"

// InvoiceState is the normalized status of a Lightning invoice as reported by
// the payment gateway.
type InvoiceState string

const (
	InvoiceStatePending InvoiceState = "pending"
	InvoiceStatePaid    InvoiceState = "paid"
	InvoiceStateExpired InvoiceState = "expired"
)

var validInvoiceStates = []InvoiceState{
	InvoiceStatePending,
	InvoiceStatePaid,
	InvoiceStateExpired,
}

// String implements fmt.Stringer.
func (i InvoiceState) String() string {
	return string(i)
}

// IsValid reports whether the value is a known InvoiceState.
func (i InvoiceState) IsValid() bool {
	for _, candidate := range validInvoiceStates {
		if candidate == i {
			return true
		}
	}
	return false
}

// ParseInvoiceState converts a raw string into an InvoiceState.
func ParseInvoiceState(value string) (InvoiceState, error) {
	for _, candidate := range validInvoiceStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid invoice state %q", value)
}
