package enums

import "fmt"

// DeliveryOutcome is what a rider reports for one order on a manifest.
type DeliveryOutcome string

const (
	OutcomeDelivered           DeliveryOutcome = "delivered"
	OutcomePartialDelivery     DeliveryOutcome = "partial_delivery"
	OutcomeCustomerRefused     DeliveryOutcome = "customer_refused"
	OutcomeCustomerUnavailable DeliveryOutcome = "customer_unavailable"
	OutcomeWrongAddress        DeliveryOutcome = "wrong_address"
	OutcomeRescheduled         DeliveryOutcome = "rescheduled"
	OutcomeReturned            DeliveryOutcome = "returned"
	OutcomeDamaged             DeliveryOutcome = "damaged"
	OutcomeLost                DeliveryOutcome = "lost"
	OutcomePending             DeliveryOutcome = "pending"
)

var validDeliveryOutcomes = []DeliveryOutcome{
	OutcomeDelivered,
	OutcomePartialDelivery,
	OutcomeCustomerRefused,
	OutcomeCustomerUnavailable,
	OutcomeWrongAddress,
	OutcomeRescheduled,
	OutcomeReturned,
	OutcomeDamaged,
	OutcomeLost,
	OutcomePending,
}

func (o DeliveryOutcome) String() string { return string(o) }

func (o DeliveryOutcome) IsValid() bool {
	for _, candidate := range validDeliveryOutcomes {
		if candidate == o {
			return true
		}
	}
	return false
}

func ParseDeliveryOutcome(value string) (DeliveryOutcome, error) {
	for _, candidate := range validDeliveryOutcomes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid delivery outcome %q", value)
}
