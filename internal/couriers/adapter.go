package couriers

import (
	"context"
	"time"

	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db/models"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-fulfillment/pkg/errors"
)

// Adapter is the per-provider courier integration.
type Adapter interface {
	Provider() enums.LogisticsProvider
	SignatureHeader() string
	VerifySignature(signature string, body []byte) bool
	NormalizeWebhook(body []byte) (*CanonicalEvent, error)
	// FindOrderByTracking returns nil, nil when no order carries the tracking id.
	FindOrderByTracking(ctx context.Context, trackingID string) (*models.Order, error)
	PushOrder(ctx context.Context, order *models.Order, opts PushOptions) (*PushResult, error)
	PullStatus(ctx context.Context, trackingID string) (*CanonicalStatus, error)
}

// PingResponder is implemented by adapters that must echo headers on
// integration test pings.
type PingResponder interface {
	PingHeaders() map[string]string
}

// CanonicalEvent is a courier webhook reduced to provider-independent fields.
// PayloadHash is the SHA-256 of the webhook body and stays empty for pulled statuses.
type CanonicalEvent struct {
	TrackingID       string            `json:"tracking_id"`
	MerchantRef      string            `json:"merchant_ref,omitempty"`
	RawStatus        string            `json:"raw_status"`
	NormalizedStatus string            `json:"normalized_status"`
	MappedStatus     enums.OrderStatus `json:"mapped_status,omitempty"`
	Mapped           bool              `json:"mapped"`
	Remarks          string            `json:"remarks,omitempty"`
	Location         string            `json:"location,omitempty"`
	Timestamp        *time.Time        `json:"timestamp,omitempty"`
	PayloadHash      string            `json:"-"`
}

// CanonicalStatus is the result of pulling a consignment's status.
type CanonicalStatus struct {
	RawStatus        string            `json:"raw_status"`
	NormalizedStatus string            `json:"normalized_status"`
	MappedStatus     enums.OrderStatus `json:"mapped_status,omitempty"`
	Mapped           bool              `json:"mapped"`
	Remarks          string            `json:"remarks,omitempty"`
	Timestamp        *time.Time        `json:"timestamp,omitempty"`
}

// Event converts a pulled status into the event shape the Tracker applies.
func (s *CanonicalStatus) Event(trackingID string) *CanonicalEvent {
	return &CanonicalEvent{
		TrackingID:       trackingID,
		RawStatus:        s.RawStatus,
		NormalizedStatus: s.NormalizedStatus,
		MappedStatus:     s.MappedStatus,
		Mapped:           s.Mapped,
		Remarks:          s.Remarks,
		Timestamp:        s.Timestamp,
	}
}

// PushOptions carries per-push delivery preferences.
type PushOptions struct {
	DeliveryType      string `json:"delivery_type,omitempty"`
	DestinationBranch string `json:"destination_branch,omitempty"`
}

// PushResult identifies the consignment a provider created.
type PushResult struct {
	TrackingID string `json:"tracking_id"`
	Waybill    string `json:"waybill,omitempty"`
}

// OrderLookup resolves orders from courier identifiers.
type OrderLookup interface {
	FindByTrackingID(ctx context.Context, trackingID string) (*models.Order, error)
}

func findOrder(ctx context.Context, lookup OrderLookup, trackingID string) (*models.Order, error) {
	if lookup == nil || trackingID == "" {
		return nil, nil
	}
	order, err := lookup.FindByTrackingID(ctx, trackingID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup order by tracking id")
	}
	return order, nil
}

// statusFor builds the mapped fields shared by events and pulled statuses.
func statusFor(mapper StatusMapper, provider enums.LogisticsProvider, raw string) (string, enums.OrderStatus, bool) {
	normalized := NormalizeStatus(raw)
	if mapper == nil {
		return normalized, "", false
	}
	status, ok := mapper.Map(provider, normalized)
	return normalized, status, ok
}
