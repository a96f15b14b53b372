package couriers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db/models"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-fulfillment/pkg/errors"
)

const redxSignatureHeader = "X-RedX-Signature"

// RedXConfig holds the RedX open API credentials.
type RedXConfig struct {
	BaseURL       string
	APIToken      string
	WebhookSecret string
}

// RedXAdapter integrates RedX. Webhooks are signed with hex(HMAC-SHA256(secret, body)).
type RedXAdapter struct {
	http   *httpClient
	secret string
	mapper StatusMapper
	lookup OrderLookup
}

func NewRedXAdapter(cfg RedXConfig, mapper StatusMapper, lookup OrderLookup, opts ...Option) *RedXAdapter {
	headers := map[string]string{"API-ACCESS-TOKEN": "Bearer " + cfg.APIToken}
	return &RedXAdapter{
		http:   newHTTPClient(enums.ProviderRedX, cfg.BaseURL, headers, opts...),
		secret: cfg.WebhookSecret,
		mapper: mapper,
		lookup: lookup,
	}
}

func (a *RedXAdapter) Provider() enums.LogisticsProvider { return enums.ProviderRedX }

func (a *RedXAdapter) SignatureHeader() string { return redxSignatureHeader }

func (a *RedXAdapter) VerifySignature(signature string, body []byte) bool {
	if a.secret == "" {
		return false
	}
	provided, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(provided) == 0 {
		return false
	}
	return hmac.Equal(provided, SignHMACSHA256(a.secret, body))
}

// SignHMACSHA256 returns HMAC-SHA256(secret, body).
func SignHMACSHA256(secret string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}

func (a *RedXAdapter) NormalizeWebhook(body []byte) (*CanonicalEvent, error) {
	payload, err := decodeObject(body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode redx webhook")
	}
	trackingID := stringField(payload, "tracking_number")
	if trackingID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "redx webhook missing tracking_number")
	}
	raw := stringField(payload, "status")
	if raw == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "redx webhook missing status")
	}
	normalized, mapped, ok := statusFor(a.mapper, enums.ProviderRedX, raw)
	return &CanonicalEvent{
		TrackingID:       trackingID,
		MerchantRef:      stringField(payload, "invoice_number"),
		RawStatus:        raw,
		NormalizedStatus: normalized,
		MappedStatus:     mapped,
		Mapped:           ok,
		Remarks:          stringField(payload, "message_en"),
		Timestamp:        parseTimestamp(stringField(payload, "timestamp")),
	}, nil
}

func (a *RedXAdapter) FindOrderByTracking(ctx context.Context, trackingID string) (*models.Order, error) {
	return findOrder(ctx, a.lookup, trackingID)
}

type redxCreateRequest struct {
	CustomerName         string `json:"customer_name"`
	CustomerPhone        string `json:"customer_phone"`
	DeliveryArea         string `json:"delivery_area"`
	CustomerAddress      string `json:"customer_address"`
	MerchantInvoiceID    string `json:"merchant_invoice_id"`
	CashCollectionAmount string `json:"cash_collection_amount"`
	ParcelWeight         int    `json:"parcel_weight"`
	Value                string `json:"value"`
}

func (a *RedXAdapter) PushOrder(ctx context.Context, order *models.Order, opts PushOptions) (*PushResult, error) {
	area := strings.TrimSpace(opts.DestinationBranch)
	if area == "" {
		area = order.RecipientArea
	}
	req := redxCreateRequest{
		CustomerName:         order.RecipientName,
		CustomerPhone:        order.RecipientPhone,
		DeliveryArea:         area,
		CustomerAddress:      order.RecipientAddress,
		MerchantInvoiceID:    order.ReadableID,
		CashCollectionAmount: codAmount(order),
		ParcelWeight:         500,
		Value:                order.PayableAmount.StringFixed(2),
	}
	var resp struct {
		TrackingID string `json:"tracking_id"`
		Message    string `json:"message"`
	}
	if err := a.http.do(ctx, http.MethodPost, "v1.0.0-beta/parcel", req, &resp); err != nil {
		return nil, err
	}
	if resp.TrackingID == "" {
		return nil, a.http.rejected(http.StatusOK, resp.Message)
	}
	return &PushResult{TrackingID: resp.TrackingID, Waybill: resp.TrackingID}, nil
}

func (a *RedXAdapter) PullStatus(ctx context.Context, trackingID string) (*CanonicalStatus, error) {
	var resp struct {
		Parcel struct {
			TrackingID string `json:"tracking_id"`
			Status     string `json:"status"`
		} `json:"parcel"`
	}
	path := fmt.Sprintf("v1.0.0-beta/parcel/info/%s", url.PathEscape(trackingID))
	if err := a.http.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Parcel.Status == "" {
		return nil, a.http.rejected(http.StatusOK, "missing parcel status")
	}
	normalized, mapped, ok := statusFor(a.mapper, enums.ProviderRedX, resp.Parcel.Status)
	return &CanonicalStatus{
		RawStatus:        resp.Parcel.Status,
		NormalizedStatus: normalized,
		MappedStatus:     mapped,
		Mapped:           ok,
	}, nil
}
