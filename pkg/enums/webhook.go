package enums

// DeadLetterStatus is the replay lifecycle of a failed courier webhook.
type DeadLetterStatus string

const (
	DeadLetterPending   DeadLetterStatus = "pending"
	DeadLetterReplayed  DeadLetterStatus = "replayed"
	DeadLetterExhausted DeadLetterStatus = "exhausted"
)

func (s DeadLetterStatus) String() string { return string(s) }

func (s DeadLetterStatus) IsValid() bool {
	switch s {
	case DeadLetterPending, DeadLetterReplayed, DeadLetterExhausted:
		return true
	}
	return false
}

// DeadLetterReason classifies why a webhook landed in the dead-letter table.
type DeadLetterReason string

const (
	DeadLetterReasonNormalize          DeadLetterReason = "normalize_failed"
	DeadLetterReasonLookup             DeadLetterReason = "lookup_failed"
	DeadLetterReasonProcessing         DeadLetterReason = "processing_failed"
	DeadLetterReasonUnverifiedProvider DeadLetterReason = "unverified_provider"
)

// CourierEventSource records how a courier status reached us.
type CourierEventSource string

const (
	CourierEventWebhook CourierEventSource = "webhook"
	CourierEventSync    CourierEventSource = "sync"
)
