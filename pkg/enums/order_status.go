package enums

import "fmt"

// OrderStatus is the canonical fulfillment status persisted on orders.status.
// Values are part of the external contract with operators and couriers.
type OrderStatus string

const (
	OrderStatusIntake                 OrderStatus = "intake"
	OrderStatusConverted              OrderStatus = "converted"
	OrderStatusPacked                 OrderStatus = "packed"
	OrderStatusAssigned               OrderStatus = "assigned"
	OrderStatusHandoverToCourier      OrderStatus = "handover_to_courier"
	OrderStatusOutForDelivery         OrderStatus = "out_for_delivery"
	OrderStatusInTransit              OrderStatus = "in_transit"
	OrderStatusDelivered              OrderStatus = "delivered"
	OrderStatusRTOInitiated           OrderStatus = "rto_initiated"
	OrderStatusRTOVerificationPending OrderStatus = "rto_verification_pending"
	OrderStatusReturned               OrderStatus = "returned"
	OrderStatusCancelled              OrderStatus = "cancelled"
	OrderStatusLostInTransit          OrderStatus = "lost_in_transit"
	OrderStatusHold                   OrderStatus = "hold"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusIntake,
	OrderStatusConverted,
	OrderStatusPacked,
	OrderStatusAssigned,
	OrderStatusHandoverToCourier,
	OrderStatusOutForDelivery,
	OrderStatusInTransit,
	OrderStatusDelivered,
	OrderStatusRTOInitiated,
	OrderStatusRTOVerificationPending,
	OrderStatusReturned,
	OrderStatusCancelled,
	OrderStatusLostInTransit,
	OrderStatusHold,
}

// String implements fmt.Stringer.
func (s OrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OrderStatus.
func (s OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions leave this status.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusDelivered, OrderStatusReturned, OrderStatusCancelled, OrderStatusLostInTransit:
		return true
	}
	return false
}

// IsRTOPending reports whether the order is waiting on warehouse return verification.
func (s OrderStatus) IsRTOPending() bool {
	return s == OrderStatusRTOInitiated || s == OrderStatusRTOVerificationPending
}

// OrderStatuses returns every known status in lifecycle order.
func OrderStatuses() []OrderStatus {
	out := make([]OrderStatus, len(validOrderStatuses))
	copy(out, validOrderStatuses)
	return out
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
