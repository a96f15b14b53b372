package enums

import "fmt"

// FulfillmentType distinguishes deliveries inside and outside the home region.
type FulfillmentType string

const (
	FulfillmentInsideRegion  FulfillmentType = "inside_region"
	FulfillmentOutsideRegion FulfillmentType = "outside_region"
)

var validFulfillmentTypes = []FulfillmentType{FulfillmentInsideRegion, FulfillmentOutsideRegion}

func (f FulfillmentType) String() string { return string(f) }

func (f FulfillmentType) IsValid() bool {
	for _, candidate := range validFulfillmentTypes {
		if candidate == f {
			return true
		}
	}
	return false
}

func ParseFulfillmentType(value string) (FulfillmentType, error) {
	for _, candidate := range validFulfillmentTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid fulfillment type %q", value)
}

// PaymentMethod is how the customer pays for an order.
type PaymentMethod string

const (
	PaymentMethodCOD     PaymentMethod = "cod"
	PaymentMethodPrepaid PaymentMethod = "prepaid"
)

var validPaymentMethods = []PaymentMethod{PaymentMethodCOD, PaymentMethodPrepaid}

func (p PaymentMethod) String() string { return string(p) }

func (p PaymentMethod) IsValid() bool {
	for _, candidate := range validPaymentMethods {
		if candidate == p {
			return true
		}
	}
	return false
}

func ParsePaymentMethod(value string) (PaymentMethod, error) {
	for _, candidate := range validPaymentMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment method %q", value)
}

// TransitionSource records which channel requested a status change.
type TransitionSource string

const (
	SourceOperator        TransitionSource = "operator"
	SourceManifest        TransitionSource = "manifest"
	SourceHandover        TransitionSource = "courier_handover"
	SourceCourierWebhook  TransitionSource = "courier_webhook"
	SourceCourierSync     TransitionSource = "courier_sync"
	SourceRTOVerification TransitionSource = "rto_verification"
	SourceSystem          TransitionSource = "system"
)

var validTransitionSources = []TransitionSource{
	SourceOperator,
	SourceManifest,
	SourceHandover,
	SourceCourierWebhook,
	SourceCourierSync,
	SourceRTOVerification,
	SourceSystem,
}

func (s TransitionSource) String() string { return string(s) }

func (s TransitionSource) IsValid() bool {
	for _, candidate := range validTransitionSources {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsCourier reports whether the change originates from courier-reported data.
func (s TransitionSource) IsCourier() bool {
	return s == SourceCourierWebhook || s == SourceCourierSync
}
