package couriers

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
)

//go:embed status_mappings.json
var embeddedMappings []byte

// StatusMapper resolves a normalized courier status to an order status.
type StatusMapper interface {
	Map(provider enums.LogisticsProvider, normalized string) (enums.OrderStatus, bool)
}

// StatusMappings is the validated, read-only courier status vocabulary.
type StatusMappings struct {
	tables map[enums.LogisticsProvider]map[string]enums.OrderStatus
}

// LoadStatusMappings reads the table at path, or the embedded table when path is empty.
func LoadStatusMappings(path string) (*StatusMappings, error) {
	raw := embeddedMappings
	if strings.TrimSpace(path) != "" {
		contents, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read status mappings %s: %w", path, err)
		}
		raw = contents
	}
	return ParseStatusMappings(raw)
}

// ParseStatusMappings decodes and validates a provider -> status -> order status table.
func ParseStatusMappings(raw []byte) (*StatusMappings, error) {
	var decoded map[string]map[string]string
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decode status mappings: %w", err)
	}

	tables := make(map[enums.LogisticsProvider]map[string]enums.OrderStatus, len(decoded))
	for name, entries := range decoded {
		provider, err := enums.ParseLogisticsProvider(name)
		if err != nil {
			return nil, fmt.Errorf("status mappings: %w", err)
		}
		table := make(map[string]enums.OrderStatus, len(entries))
		for key, value := range entries {
			if normalized := NormalizeStatus(key); normalized != key {
				return nil, fmt.Errorf("status mappings: %s key %q must be normalized as %q", provider, key, normalized)
			}
			status, err := enums.ParseOrderStatus(value)
			if err != nil {
				return nil, fmt.Errorf("status mappings: %s/%s: %w", provider, key, err)
			}
			// Only a warehouse scan may mark an order returned.
			if status == enums.OrderStatusReturned {
				return nil, fmt.Errorf("status mappings: %s/%s may not map to %s", provider, key, status)
			}
			table[key] = status
		}
		tables[provider] = table
	}
	return &StatusMappings{tables: tables}, nil
}

func (m *StatusMappings) Map(provider enums.LogisticsProvider, normalized string) (enums.OrderStatus, bool) {
	if m == nil {
		return "", false
	}
	status, ok := m.tables[provider][normalized]
	return status, ok
}

// Providers lists the providers that carry a table, sorted.
func (m *StatusMappings) Providers() []enums.LogisticsProvider {
	if m == nil {
		return nil
	}
	out := make([]enums.LogisticsProvider, 0, len(m.tables))
	for provider := range m.tables {
		out = append(out, provider)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
