package enums

import "fmt"

// DomainOrderStatus tracks the lifecycle of a per-vertical fulfillment record.
type DomainOrderStatus string

const (
	DomainOrderStatusPending   DomainOrderStatus = "pending"
	DomainOrderStatusConfirmed DomainOrderStatus = "confirmed"
	DomainOrderStatusCancelled DomainOrderStatus = "cancelled"
	DomainOrderStatusCompleted DomainOrderStatus = "completed"
)

var validDomainOrderStatuses = []DomainOrderStatus{
	DomainOrderStatusPending,
	DomainOrderStatusConfirmed,
	DomainOrderStatusCancelled,
	DomainOrderStatusCompleted,
}

// String implements fmt.Stringer.
func (d DomainOrderStatus) String() string {
	return string(d)
}

// IsValid reports whether the value is a known DomainOrderStatus.
func (d DomainOrderStatus) IsValid() bool {
	for _, candidate := range validDomainOrderStatuses {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseDomainOrderStatus converts raw input into a DomainOrderStatus.
func ParseDomainOrderStatus(value string) (DomainOrderStatus, error) {
	for _, candidate := range validDomainOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid domain order status %q", value)
}
