package enums

import "fmt"

// OrderDomain identifies which sellable-item vertical a checkout belongs to.
type OrderDomain string

const (
	OrderDomainRetail  OrderDomain = "retail"
	OrderDomainMeetup  OrderDomain = "meetup"
	OrderDomainLecture OrderDomain = "lecture"
	OrderDomainFile    OrderDomain = "file"
)

var validOrderDomains = []OrderDomain{
	OrderDomainRetail,
	OrderDomainMeetup,
	OrderDomainLecture,
	OrderDomainFile,
}

// String implements fmt.Stringer.
func (d OrderDomain) String() string {
	return string(d)
}

// IsValid reports whether the value is a known OrderDomain.
func (d OrderDomain) IsValid() bool {
	for _, candidate := range validOrderDomains {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseOrderDomain converts raw input into an OrderDomain.
func ParseOrderDomain(value string) (OrderDomain, error) {
	for _, candidate := range validOrderDomains {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order domain %q", value)
}
