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

const steadfastSignatureHeader = "Authorization"

// SteadfastConfig holds the Steadfast credentials.
type SteadfastConfig struct {
	BaseURL      string
	APIKey       string
	SecretKey    string
	WebhookToken string
}

// SteadfastAdapter integrates Steadfast Courier. Webhooks authenticate with a
// bearer token configured in the merchant panel.
type SteadfastAdapter struct {
	http   *httpClient
	token  string
	mapper StatusMapper
	lookup OrderLookup
}

func NewSteadfastAdapter(cfg SteadfastConfig, mapper StatusMapper, lookup OrderLookup, opts ...Option) *SteadfastAdapter {
	headers := map[string]string{
		"Api-Key":    cfg.APIKey,
		"Secret-Key": cfg.SecretKey,
	}
	return &SteadfastAdapter{
		http:   newHTTPClient(enums.ProviderSteadfast, cfg.BaseURL, headers, opts...),
		token:  cfg.WebhookToken,
		mapper: mapper,
		lookup: lookup,
	}
}

func (a *SteadfastAdapter) Provider() enums.LogisticsProvider { return enums.ProviderSteadfast }

func (a *SteadfastAdapter) SignatureHeader() string { return steadfastSignatureHeader }

func (a *SteadfastAdapter) VerifySignature(signature string, _ []byte) bool {
	if a.token == "" {
		return false
	}
	token := strings.TrimSpace(signature)
	if len(token) > 7 && strings.EqualFold(token[:7], "bearer ") {
		token = strings.TrimSpace(token[7:])
	} else {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(a.token)) == 1
}

func (a *SteadfastAdapter) NormalizeWebhook(body []byte) (*CanonicalEvent, error) {
	payload, err := decodeObject(body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode steadfast webhook")
	}
	trackingID := stringField(payload, "consignment_id")
	if trackingID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "steadfast webhook missing consignment_id")
	}
	raw := firstField(payload, "status", "delivery_status")
	if raw == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "steadfast webhook missing status")
	}
	normalized, mapped, ok := statusFor(a.mapper, enums.ProviderSteadfast, raw)
	return &CanonicalEvent{
		TrackingID:       trackingID,
		MerchantRef:      stringField(payload, "invoice"),
		RawStatus:        raw,
		NormalizedStatus: normalized,
		MappedStatus:     mapped,
		Mapped:           ok,
		Remarks:          stringField(payload, "tracking_message"),
		Timestamp:        parseTimestamp(stringField(payload, "updated_at")),
	}, nil
}

func (a *SteadfastAdapter) FindOrderByTracking(ctx context.Context, trackingID string) (*models.Order, error) {
	return findOrder(ctx, a.lookup, trackingID)
}

type steadfastCreateRequest struct {
	Invoice          string `json:"invoice"`
	RecipientName    string `json:"recipient_name"`
	RecipientPhone   string `json:"recipient_phone"`
	RecipientAddress string `json:"recipient_address"`
	CODAmount        string `json:"cod_amount"`
	Note             string `json:"note,omitempty"`
	DeliveryType     int    `json:"delivery_type"`
}

type steadfastCreateResponse struct {
	Status      int    `json:"status"`
	Message     string `json:"message"`
	Consignment struct {
		ConsignmentID any    `json:"consignment_id"`
		TrackingCode  string `json:"tracking_code"`
	} `json:"consignment"`
}

func (a *SteadfastAdapter) PushOrder(ctx context.Context, order *models.Order, opts PushOptions) (*PushResult, error) {
	deliveryType := 0
	if strings.EqualFold(opts.DeliveryType, "point") {
		deliveryType = 1
	}
	req := steadfastCreateRequest{
		Invoice:          order.ReadableID,
		RecipientName:    order.RecipientName,
		RecipientPhone:   order.RecipientPhone,
		RecipientAddress: joinAddress(order.RecipientAddress, order.RecipientArea),
		CODAmount:        codAmount(order),
		Note:             opts.DestinationBranch,
		DeliveryType:     deliveryType,
	}
	var resp steadfastCreateResponse
	if err := a.http.do(ctx, http.MethodPost, "create_order", req, &resp); err != nil {
		return nil, err
	}
	trackingID := anyString(resp.Consignment.ConsignmentID)
	if (resp.Status != 0 && resp.Status != http.StatusOK) || trackingID == "" {
		return nil, a.http.rejected(resp.Status, resp.Message)
	}
	return &PushResult{TrackingID: trackingID, Waybill: resp.Consignment.TrackingCode}, nil
}

func (a *SteadfastAdapter) PullStatus(ctx context.Context, trackingID string) (*CanonicalStatus, error) {
	var resp struct {
		Status         int    `json:"status"`
		DeliveryStatus string `json:"delivery_status"`
	}
	if err := a.http.do(ctx, http.MethodGet, fmt.Sprintf("status_by_cid/%s", url.PathEscape(trackingID)), nil, &resp); err != nil {
		return nil, err
	}
	if resp.DeliveryStatus == "" {
		return nil, a.http.rejected(resp.Status, "missing delivery_status")
	}
	normalized, mapped, ok := statusFor(a.mapper, enums.ProviderSteadfast, resp.DeliveryStatus)
	return &CanonicalStatus{
		RawStatus:        resp.DeliveryStatus,
		NormalizedStatus: normalized,
		MappedStatus:     mapped,
		Mapped:           ok,
	}, nil
}

func joinAddress(address, area string) string {
	address = strings.TrimSpace(address)
	area = strings.TrimSpace(area)
	switch {
	case area == "":
		return address
	case address == "":
		return area
	default:
		return address + ", " + area
	}
}

// codAmount is what the courier collects: the payable amount for COD, zero otherwise.
func codAmount(order *models.Order) string {
	if !order.IsCOD() {
		return "0"
	}
	return order.PayableAmount.StringFixed(2)
}

func anyString(value any) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return fmt.Sprintf("%.0f", v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
