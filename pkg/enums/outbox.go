package enums

import "fmt"

// OutboxAggregateType names the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateOrder      OutboxAggregateType = "order"
	AggregateManifest   OutboxAggregateType = "manifest"
	AggregateSettlement OutboxAggregateType = "settlement"
	AggregateReturn     OutboxAggregateType = "return_record"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregateManifest,
	AggregateSettlement,
	AggregateReturn,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType names a domain event published through the outbox.
type OutboxEventType string

const (
	EventOrderStatusChanged OutboxEventType = "order_status_changed"
	EventManifestSettled    OutboxEventType = "manifest_settled"
	EventRTOVerified        OutboxEventType = "rto_verified"
	EventSettlementRecorded OutboxEventType = "settlement_recorded"
	EventReturnSettled      OutboxEventType = "return_settled"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderStatusChanged,
	EventManifestSettled,
	EventRTOVerified,
	EventSettlementRecorded,
	EventReturnSettled,
}

// IsValid reports whether the event type is registered.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox event type %q", value)
}

// OutboxDLQErrorReason explains why an outbox row stopped retrying.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

func (r OutboxDLQErrorReason) IsValid() bool {
	return r == OutboxDLQReasonMaxAttempts || r == OutboxDLQReasonNonRetryable
}
