package couriers

import (
	"context"

	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db/models"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-fulfillment/pkg/errors"
)

// GenericAdapter handles couriers without an integration. It cannot verify
// signatures, so nothing it parses is ever applied to an order.
type GenericAdapter struct {
	lookup OrderLookup
}

func NewGenericAdapter(lookup OrderLookup) *GenericAdapter {
	return &GenericAdapter{lookup: lookup}
}

func (a *GenericAdapter) Provider() enums.LogisticsProvider { return enums.ProviderUnknown }

func (a *GenericAdapter) SignatureHeader() string { return "" }

func (a *GenericAdapter) VerifySignature(string, []byte) bool { return false }

func (a *GenericAdapter) NormalizeWebhook(body []byte) (*CanonicalEvent, error) {
	payload, err := decodeObject(body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode webhook")
	}
	trackingID := firstField(payload, "tracking_id", "trackingId", "consignment_id", "tracking_number")
	if trackingID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "webhook missing tracking id")
	}
	raw := firstField(payload, "status", "order_status", "delivery_status")
	return &CanonicalEvent{
		TrackingID:       trackingID,
		RawStatus:        raw,
		NormalizedStatus: NormalizeStatus(raw),
		Mapped:           false,
	}, nil
}

func (a *GenericAdapter) FindOrderByTracking(ctx context.Context, trackingID string) (*models.Order, error) {
	return findOrder(ctx, a.lookup, trackingID)
}

func (a *GenericAdapter) PushOrder(context.Context, *models.Order, PushOptions) (*PushResult, error) {
	return nil, pkgerrors.New(pkgerrors.CodeValidation, "courier provider is not integrated")
}

func (a *GenericAdapter) PullStatus(context.Context, string) (*CanonicalStatus, error) {
	return nil, pkgerrors.New(pkgerrors.CodeValidation, "courier provider is not integrated")
}
