package couriers

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db/models"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-fulfillment/pkg/errors"
)

const (
	pathaoSignatureHeader   = "X-PATHAO-Signature"
	pathaoIntegrationHeader = "X-Pathao-Merchant-Webhook-Integration-Secret"

	pathaoDeliveryNormal   = 48
	pathaoDeliveryOnDemand = 12
	pathaoItemTypeParcel   = 2
)

// PathaoConfig holds the Pathao merchant credentials.
type PathaoConfig struct {
	BaseURL       string
	AccessToken   string
	StoreID       int
	WebhookSecret string
}

// PathaoAdapter integrates Pathao Courier. The webhook secret is sent
// verbatim in X-PATHAO-Signature.
type PathaoAdapter struct {
	http    *httpClient
	storeID int
	secret  string
	mapper  StatusMapper
	lookup  OrderLookup
}

func NewPathaoAdapter(cfg PathaoConfig, mapper StatusMapper, lookup OrderLookup, opts ...Option) *PathaoAdapter {
	headers := map[string]string{"Authorization": "Bearer " + cfg.AccessToken}
	return &PathaoAdapter{
		http:    newHTTPClient(enums.ProviderPathao, cfg.BaseURL, headers, opts...),
		storeID: cfg.StoreID,
		secret:  cfg.WebhookSecret,
		mapper:  mapper,
		lookup:  lookup,
	}
}

func (a *PathaoAdapter) Provider() enums.LogisticsProvider { return enums.ProviderPathao }

func (a *PathaoAdapter) SignatureHeader() string { return pathaoSignatureHeader }

func (a *PathaoAdapter) VerifySignature(signature string, _ []byte) bool {
	if a.secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(signature)), []byte(a.secret)) == 1
}

// PingHeaders echoes the integration secret Pathao expects when a webhook URL is registered.
func (a *PathaoAdapter) PingHeaders() map[string]string {
	if a.secret == "" {
		return nil
	}
	return map[string]string{pathaoIntegrationHeader: a.secret}
}

func (a *PathaoAdapter) NormalizeWebhook(body []byte) (*CanonicalEvent, error) {
	payload, err := decodeObject(body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode pathao webhook")
	}
	trackingID := stringField(payload, "consignment_id")
	if trackingID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "pathao webhook missing consignment_id")
	}
	raw := firstField(payload, "order_status", "order_status_slug", "event")
	if raw == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "pathao webhook missing order_status")
	}
	normalized, mapped, ok := statusFor(a.mapper, enums.ProviderPathao, raw)
	return &CanonicalEvent{
		TrackingID:       trackingID,
		MerchantRef:      stringField(payload, "merchant_order_id"),
		RawStatus:        raw,
		NormalizedStatus: normalized,
		MappedStatus:     mapped,
		Mapped:           ok,
		Remarks:          stringField(payload, "reason"),
		Location:         firstField(payload, "hub_name", "location"),
		Timestamp:        parseTimestamp(firstField(payload, "updated_at", "timestamp")),
	}, nil
}

func (a *PathaoAdapter) FindOrderByTracking(ctx context.Context, trackingID string) (*models.Order, error) {
	return findOrder(ctx, a.lookup, trackingID)
}

type pathaoCreateRequest struct {
	StoreID            int     `json:"store_id"`
	MerchantOrderID    string  `json:"merchant_order_id"`
	RecipientName      string  `json:"recipient_name"`
	RecipientPhone     string  `json:"recipient_phone"`
	RecipientAddress   string  `json:"recipient_address"`
	DeliveryType       int     `json:"delivery_type"`
	ItemType           int     `json:"item_type"`
	ItemQuantity       int     `json:"item_quantity"`
	ItemWeight         float64 `json:"item_weight"`
	AmountToCollect    string  `json:"amount_to_collect"`
	SpecialInstruction string  `json:"special_instruction,omitempty"`
}

type pathaoResponse struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
	Data    struct {
		ConsignmentID   string `json:"consignment_id"`
		MerchantOrderID string `json:"merchant_order_id"`
		OrderStatus     string `json:"order_status"`
		UpdatedAt       string `json:"updated_at"`
	} `json:"data"`
}

func (a *PathaoAdapter) PushOrder(ctx context.Context, order *models.Order, opts PushOptions) (*PushResult, error) {
	deliveryType := pathaoDeliveryNormal
	if strings.EqualFold(opts.DeliveryType, "on_demand") {
		deliveryType = pathaoDeliveryOnDemand
	}
	quantity := 0
	for _, item := range order.Items {
		quantity += item.Quantity
	}
	if quantity == 0 {
		quantity = 1
	}
	req := pathaoCreateRequest{
		StoreID:            a.storeID,
		MerchantOrderID:    order.ReadableID,
		RecipientName:      order.RecipientName,
		RecipientPhone:     order.RecipientPhone,
		RecipientAddress:   joinAddress(order.RecipientAddress, order.RecipientArea),
		DeliveryType:       deliveryType,
		ItemType:           pathaoItemTypeParcel,
		ItemQuantity:       quantity,
		ItemWeight:         0.5,
		AmountToCollect:    codAmount(order),
		SpecialInstruction: opts.DestinationBranch,
	}
	var resp pathaoResponse
	if err := a.http.do(ctx, http.MethodPost, "aladdin/api/v1/orders", req, &resp); err != nil {
		return nil, err
	}
	if resp.Data.ConsignmentID == "" || (resp.Type != "" && resp.Type != "success") {
		return nil, a.http.rejected(resp.Code, resp.Message)
	}
	return &PushResult{TrackingID: resp.Data.ConsignmentID, Waybill: resp.Data.ConsignmentID}, nil
}

func (a *PathaoAdapter) PullStatus(ctx context.Context, trackingID string) (*CanonicalStatus, error) {
	var resp pathaoResponse
	path := fmt.Sprintf("aladdin/api/v1/orders/%s/info", url.PathEscape(trackingID))
	if err := a.http.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Data.OrderStatus == "" {
		return nil, a.http.rejected(resp.Code, "missing order_status")
	}
	normalized, mapped, ok := statusFor(a.mapper, enums.ProviderPathao, resp.Data.OrderStatus)
	return &CanonicalStatus{
		RawStatus:        resp.Data.OrderStatus,
		NormalizedStatus: normalized,
		MappedStatus:     mapped,
		Mapped:           ok,
		Timestamp:        parseTimestamp(resp.Data.UpdatedAt),
	}, nil
}
