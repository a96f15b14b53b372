package orders

import "github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"

// edges is the order lifecycle graph. Statuses without an entry are terminal.
var edges = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusIntake: {
		enums.OrderStatusConverted,
		enums.OrderStatusCancelled,
		enums.OrderStatusHold,
	},
	enums.OrderStatusConverted: {
		enums.OrderStatusPacked,
		enums.OrderStatusCancelled,
		enums.OrderStatusHold,
	},
	enums.OrderStatusPacked: {
		enums.OrderStatusAssigned,
		enums.OrderStatusHandoverToCourier,
		enums.OrderStatusCancelled,
		enums.OrderStatusHold,
	},
	enums.OrderStatusAssigned: {
		enums.OrderStatusOutForDelivery,
		enums.OrderStatusPacked,
		enums.OrderStatusCancelled,
		enums.OrderStatusHold,
	},
	enums.OrderStatusHandoverToCourier: {
		enums.OrderStatusInTransit,
		enums.OrderStatusOutForDelivery,
		enums.OrderStatusDelivered,
		enums.OrderStatusRTOInitiated,
		enums.OrderStatusRTOVerificationPending,
		enums.OrderStatusLostInTransit,
		enums.OrderStatusHold,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusInTransit: {
		enums.OrderStatusOutForDelivery,
		enums.OrderStatusDelivered,
		enums.OrderStatusRTOInitiated,
		enums.OrderStatusRTOVerificationPending,
		enums.OrderStatusLostInTransit,
		enums.OrderStatusHold,
	},
	enums.OrderStatusOutForDelivery: {
		enums.OrderStatusInTransit,
		enums.OrderStatusDelivered,
		enums.OrderStatusRTOInitiated,
		enums.OrderStatusRTOVerificationPending,
		enums.OrderStatusLostInTransit,
		enums.OrderStatusHold,
	},
	enums.OrderStatusHold: {
		enums.OrderStatusConverted,
		enums.OrderStatusPacked,
		enums.OrderStatusAssigned,
		enums.OrderStatusHandoverToCourier,
		enums.OrderStatusInTransit,
		enums.OrderStatusOutForDelivery,
		enums.OrderStatusDelivered,
		enums.OrderStatusRTOInitiated,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusRTOInitiated: {
		enums.OrderStatusRTOVerificationPending,
		enums.OrderStatusReturned,
		enums.OrderStatusLostInTransit,
	},
	enums.OrderStatusRTOVerificationPending: {
		enums.OrderStatusReturned,
		enums.OrderStatusLostInTransit,
	},
}

// CanTransition reports whether the graph has an edge from -> to.
// The returned edge is further limited to the RTO verification source.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, candidate := range edges[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// AllowedTargets lists the statuses reachable from status in one step.
func AllowedTargets(status enums.OrderStatus) []enums.OrderStatus {
	targets := edges[status]
	out := make([]enums.OrderStatus, len(targets))
	copy(out, targets)
	return out
}

// Statuses that only make sense once packing has taken stock out of the
// warehouse. An order on hold resumes into them only if it was packed.
var stockOutStatuses = map[enums.OrderStatus]bool{
	enums.OrderStatusAssigned:          true,
	enums.OrderStatusHandoverToCourier: true,
	enums.OrderStatusInTransit:         true,
	enums.OrderStatusOutForDelivery:    true,
	enums.OrderStatusDelivered:         true,
	enums.OrderStatusRTOInitiated:      true,
}

// holdExitAllowed limits the exits of hold to those consistent with the stock
// state of the order: unpacked orders resume at or before packed, packed
// orders never fall back to converted.
func holdExitAllowed(to enums.OrderStatus, stockDeducted bool) bool {
	if stockDeducted {
		return to != enums.OrderStatusConverted
	}
	return !stockOutStatuses[to]
}

// sourceAllowed enforces edges that only one channel may take.
func sourceAllowed(to enums.OrderStatus, source enums.TransitionSource) bool {
	if to == enums.OrderStatusReturned {
		return source == enums.SourceRTOVerification
	}
	return true
}
