package enums

import (
	"fmt"
	"strings"
)

// ReturnCondition classifies a parcel scanned back at the warehouse.
type ReturnCondition string

const (
	ReturnConditionGood         ReturnCondition = "GOOD"
	ReturnConditionDamaged      ReturnCondition = "DAMAGED"
	ReturnConditionMissingItems ReturnCondition = "MISSING_ITEMS"
	ReturnConditionTampered     ReturnCondition = "TAMPERED"
	ReturnConditionUnknown      ReturnCondition = "UNKNOWN"
)

var validReturnConditions = []ReturnCondition{
	ReturnConditionGood,
	ReturnConditionDamaged,
	ReturnConditionMissingItems,
	ReturnConditionTampered,
	ReturnConditionUnknown,
}

func (c ReturnCondition) String() string { return string(c) }

func (c ReturnCondition) IsValid() bool {
	for _, candidate := range validReturnConditions {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseReturnCondition is case-insensitive and returns the canonical upper-case value.
func ParseReturnCondition(value string) (ReturnCondition, error) {
	normalized := strings.ToUpper(strings.TrimSpace(value))
	for _, candidate := range validReturnConditions {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid return condition %q", value)
}

// ItemCondition is the per-item condition on an itemized return handover.
type ItemCondition string

const (
	ItemConditionGood    ItemCondition = "good"
	ItemConditionDamaged ItemCondition = "damaged"
	ItemConditionMissing ItemCondition = "missing"
)

var validItemConditions = []ItemCondition{ItemConditionGood, ItemConditionDamaged, ItemConditionMissing}

func (c ItemCondition) String() string { return string(c) }

func (c ItemCondition) IsValid() bool {
	for _, candidate := range validItemConditions {
		if candidate == c {
			return true
		}
	}
	return false
}

func ParseItemCondition(value string) (ItemCondition, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validItemConditions {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid item condition %q", value)
}

// ItemReturnStatus tracks an order item through an itemized return.
type ItemReturnStatus string

const (
	ItemReturnPending  ItemReturnStatus = "pending"
	ItemReturnPickedUp ItemReturnStatus = "picked_up"
	ItemReturnSettled  ItemReturnStatus = "settled"
)

func (s ItemReturnStatus) String() string { return string(s) }

// ReturnAction is what the warehouse did with a returned item.
type ReturnAction string

const (
	ReturnActionRestocked   ReturnAction = "restocked"
	ReturnActionWrittenOff  ReturnAction = "written_off"
	ReturnActionInvestigate ReturnAction = "investigate"
)

// ActionFor maps an item condition to the warehouse action taken at settlement.
func ActionFor(condition ItemCondition) ReturnAction {
	switch condition {
	case ItemConditionGood:
		return ReturnActionRestocked
	case ItemConditionDamaged:
		return ReturnActionWrittenOff
	default:
		return ReturnActionInvestigate
	}
}

// ReturnSource is who handed the returned parcels back.
type ReturnSource string

const (
	ReturnSourceRider   ReturnSource = "rider"
	ReturnSourceCourier ReturnSource = "courier"
)

func (s ReturnSource) IsValid() bool {
	return s == ReturnSourceRider || s == ReturnSourceCourier
}

func ParseReturnSource(value string) (ReturnSource, error) {
	source := ReturnSource(strings.ToLower(strings.TrimSpace(value)))
	if !source.IsValid() {
		return "", fmt.Errorf("invalid return source %q", value)
	}
	return source, nil
}

// ReturnRecordStatus is the lifecycle of an itemized return handover.
type ReturnRecordStatus string

const (
	ReturnRecordReceived ReturnRecordStatus = "received"
	ReturnRecordSettled  ReturnRecordStatus = "settled"
)
