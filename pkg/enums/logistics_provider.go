package enums

import (
	"fmt"
	"strings"
)

// LogisticsProvider identifies an integrated third-party courier.
type LogisticsProvider string

const (
	ProviderSteadfast LogisticsProvider = "steadfast"
	ProviderPathao    LogisticsProvider = "pathao"
	ProviderRedX      LogisticsProvider = "redx"
	// ProviderUnknown marks payloads from couriers without an adapter.
	ProviderUnknown LogisticsProvider = "unknown"
)

var knownLogisticsProviders = []LogisticsProvider{
	ProviderSteadfast,
	ProviderPathao,
	ProviderRedX,
}

func (p LogisticsProvider) String() string { return string(p) }

// IsValid reports whether p is an integrated provider. ProviderUnknown is not.
func (p LogisticsProvider) IsValid() bool {
	for _, candidate := range knownLogisticsProviders {
		if candidate == p {
			return true
		}
	}
	return false
}

// LogisticsProviders returns the integrated providers.
func LogisticsProviders() []LogisticsProvider {
	out := make([]LogisticsProvider, len(knownLogisticsProviders))
	copy(out, knownLogisticsProviders)
	return out
}

// ParseLogisticsProvider accepts case-insensitive provider names.
func ParseLogisticsProvider(value string) (LogisticsProvider, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range knownLogisticsProviders {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return ProviderUnknown, fmt.Errorf("unknown logistics provider %q", value)
}
