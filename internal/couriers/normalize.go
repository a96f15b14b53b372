package couriers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// NormalizeStatus trims, lower-cases and collapses whitespace runs to "_".
func NormalizeStatus(raw string) string {
	return strings.Join(strings.Fields(strings.ToLower(raw)), "_")
}

// orderKeys are payload keys that identify a consignment or merchant order.
var orderKeys = []string{
	"consignment_id",
	"tracking_id",
	"trackingId",
	"tracking_number",
	"tracking_code",
	"merchant_order_id",
	"invoice",
	"invoice_number",
}

var pingEvents = map[string]bool{
	"webhook_integration": true,
	"test":                true,
}

// IsTestPing reports whether body is a provider integration check rather
// than a status update. It must run before any business parsing.
func IsTestPing(body []byte) bool {
	if len(bytes.TrimSpace(body)) == 0 {
		return true
	}
	payload, err := decodeObject(body)
	if err != nil {
		return true
	}
	switch v := payload["test"].(type) {
	case bool:
		if v {
			return true
		}
	case string:
		if strings.EqualFold(strings.TrimSpace(v), "true") {
			return true
		}
	}
	for _, key := range []string{"event", "notification_type"} {
		if pingEvents[strings.ToLower(stringField(payload, key))] {
			return true
		}
	}
	for _, key := range orderKeys {
		if stringField(payload, key) != "" {
			return false
		}
	}
	return true
}

// decodeObject decodes a JSON object keeping numbers verbatim.
func decodeObject(body []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, fmt.Errorf("payload is not a JSON object")
	}
	return payload, nil
}

// stringField returns payload[key] as a trimmed string. Numbers keep their
// literal form so numeric consignment ids survive.
func stringField(payload map[string]any, key string) string {
	switch v := payload[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case bool:
		if v {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}

func firstField(payload map[string]any, keys ...string) string {
	for _, key := range keys {
		if value := stringField(payload, key); value != "" {
			return value
		}
	}
	return ""
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000000Z",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// parseTimestamp accepts the layouts couriers send, interpreting zone-less values as UTC.
func parseTimestamp(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			utc := parsed.UTC()
			return &utc
		}
	}
	return nil
}
