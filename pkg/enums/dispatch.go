package enums

import "fmt"

// ManifestStatus is the lifecycle of a rider trip.
type ManifestStatus string

const (
	ManifestStatusCreated    ManifestStatus = "created"
	ManifestStatusDispatched ManifestStatus = "dispatched"
	ManifestStatusSettled    ManifestStatus = "settled"
)

var validManifestStatuses = []ManifestStatus{
	ManifestStatusCreated,
	ManifestStatusDispatched,
	ManifestStatusSettled,
}

func (s ManifestStatus) String() string { return string(s) }

func (s ManifestStatus) IsValid() bool {
	for _, candidate := range validManifestStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func ParseManifestStatus(value string) (ManifestStatus, error) {
	for _, candidate := range validManifestStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid manifest status %q", value)
}

// HandoverStatus is the lifecycle of a courier handover batch.
type HandoverStatus string

const (
	HandoverStatusCreated    HandoverStatus = "created"
	HandoverStatusHandedOver HandoverStatus = "handed_over"
)

func (s HandoverStatus) String() string { return string(s) }

func (s HandoverStatus) IsValid() bool {
	return s == HandoverStatusCreated || s == HandoverStatusHandedOver
}

func ParseHandoverStatus(value string) (HandoverStatus, error) {
	status := HandoverStatus(value)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid handover status %q", value)
	}
	return status, nil
}
