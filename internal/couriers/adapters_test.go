package couriers

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db/models"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-fulfillment/pkg/errors"
)

func testMappings(t *testing.T) *StatusMappings {
	t.Helper()
	mappings, err := LoadStatusMappings("")
	if err != nil {
		t.Fatalf("load mappings: %v", err)
	}
	return mappings
}

func codOrder() *models.Order {
	return &models.Order{
		ReadableID:       "PF-1001",
		RecipientName:    "Rahim",
		RecipientPhone:   "01700000000",
		RecipientAddress: "House 4, Road 2",
		RecipientArea:    "Dhanmondi",
		PaymentMethod:    enums.PaymentMethodCOD,
		PayableAmount:    decimal.RequireFromString("1250"),
		Items:            []models.OrderItem{{Quantity: 2}, {Quantity: 1}},
	}
}

type recordedRequest struct {
	method string
	path   string
	header http.Header
	body   map[string]any
}

func courierServer(t *testing.T, status int, response string, record *recordedRequest) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if record != nil {
			record.method = r.Method
			record.path = r.URL.Path
			record.header = r.Header.Clone()
			raw, _ := io.ReadAll(r.Body)
			if len(raw) > 0 {
				_ = json.Unmarshal(raw, &record.body)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestSteadfastSignatureRequiresBearerToken(t *testing.T) {
	adapter := NewSteadfastAdapter(SteadfastConfig{WebhookToken: "sf-secret"}, nil, nil)
	if !adapter.VerifySignature("Bearer sf-secret", nil) {
		t.Fatal("expected bearer token to verify")
	}
	if !adapter.VerifySignature("bearer   sf-secret ", nil) {
		t.Fatal("expected case-insensitive scheme to verify")
	}
	for _, bad := range []string{"sf-secret", "Bearer other", "", "Basic sf-secret"} {
		if adapter.VerifySignature(bad, nil) {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
	unconfigured := NewSteadfastAdapter(SteadfastConfig{}, nil, nil)
	if unconfigured.VerifySignature("Bearer ", nil) {
		t.Fatal("expected adapter without token to reject everything")
	}
}

func TestSteadfastNormalizeWebhook(t *testing.T) {
	adapter := NewSteadfastAdapter(SteadfastConfig{}, testMappings(t), nil)
	body := []byte(`{"consignment_id":98765,"invoice":"PF-1001","status":"Partial Delivered","tracking_message":"Customer kept one item","updated_at":"2026-03-01 10:15:00"}`)
	event, err := adapter.NormalizeWebhook(body)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if event.TrackingID != "98765" || event.MerchantRef != "PF-1001" {
		t.Fatalf("unexpected identifiers %+v", event)
	}
	if event.NormalizedStatus != "partial_delivered" || !event.Mapped || event.MappedStatus != enums.OrderStatusDelivered {
		t.Fatalf("unexpected status mapping %+v", event)
	}
	if event.Remarks != "Customer kept one item" || event.Timestamp == nil {
		t.Fatalf("unexpected remarks/timestamp %+v", event)
	}

	if _, err := adapter.NormalizeWebhook([]byte(`{"status":"delivered"}`)); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for missing consignment, got %v", err)
	}
}

func TestSteadfastPushAndPull(t *testing.T) {
	var record recordedRequest
	server := courierServer(t, http.StatusOK, `{"status":200,"message":"ok","consignment":{"consignment_id":1424107,"tracking_code":"15BAEB8A"}}`, &record)
	adapter := NewSteadfastAdapter(SteadfastConfig{BaseURL: server.URL, APIKey: "key", SecretKey: "secret"}, testMappings(t), nil)

	result, err := adapter.PushOrder(context.Background(), codOrder(), PushOptions{})
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if result.TrackingID != "1424107" || result.Waybill != "15BAEB8A" {
		t.Fatalf("unexpected push result %+v", result)
	}
	if record.method != http.MethodPost || record.path != "/create_order" {
		t.Fatalf("unexpected request %s %s", record.method, record.path)
	}
	if record.header.Get("Api-Key") != "key" || record.header.Get("Secret-Key") != "secret" {
		t.Fatalf("missing credential headers: %v", record.header)
	}
	if record.body["invoice"] != "PF-1001" || record.body["cod_amount"] != "1250.00" {
		t.Fatalf("unexpected push body %v", record.body)
	}
	if record.body["recipient_address"] != "House 4, Road 2, Dhanmondi" {
		t.Fatalf("expected area appended to address, got %v", record.body["recipient_address"])
	}

	pull := courierServer(t, http.StatusOK, `{"status":200,"delivery_status":"in_review"}`, &record)
	adapter = NewSteadfastAdapter(SteadfastConfig{}, testMappings(t), nil, WithBaseURL(pull.URL))
	status, err := adapter.PullStatus(context.Background(), "1424107")
	if err != nil {
		t.Fatalf("pull: %v", err)
	}
	if record.path != "/status_by_cid/1424107" {
		t.Fatalf("unexpected pull path %s", record.path)
	}
	if status.MappedStatus != enums.OrderStatusHandoverToCourier || !status.Mapped {
		t.Fatalf("unexpected pulled status %+v", status)
	}
}

func TestPrepaidOrderCollectsNothing(t *testing.T) {
	order := codOrder()
	order.PaymentMethod = enums.PaymentMethodPrepaid
	if got := codAmount(order); got != "0" {
		t.Fatalf("expected zero COD for prepaid, got %s", got)
	}
}

func TestPushFailureIsCourierError(t *testing.T) {
	server := courierServer(t, http.StatusUnprocessableEntity, `{"message":"recipient_phone is invalid"}`, nil)
	adapter := NewSteadfastAdapter(SteadfastConfig{BaseURL: server.URL}, nil, nil)

	_, err := adapter.PushOrder(context.Background(), codOrder(), PushOptions{})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeCourier {
		t.Fatalf("expected courier error, got %v", err)
	}
	details, ok := typed.Details().(map[string]any)
	if !ok {
		t.Fatalf("expected details map, got %T", typed.Details())
	}
	if details["provider"] != enums.ProviderSteadfast || details["http_status"] != http.StatusUnprocessableEntity {
		t.Fatalf("unexpected details %v", details)
	}
	if details["provider_message"] != "recipient_phone is invalid" {
		t.Fatalf("unexpected provider message %v", details["provider_message"])
	}
}

func TestRejectedPushInSuccessfulResponse(t *testing.T) {
	server := courierServer(t, http.StatusOK, `{"status":400,"message":"invoice already used"}`, nil)
	adapter := NewSteadfastAdapter(SteadfastConfig{BaseURL: server.URL}, nil, nil)
	if _, err := adapter.PushOrder(context.Background(), codOrder(), PushOptions{}); !pkgerrors.IsCode(err, pkgerrors.CodeCourier) {
		t.Fatalf("expected courier error, got %v", err)
	}
}

func TestPathaoSignatureAndPing(t *testing.T) {
	adapter := NewPathaoAdapter(PathaoConfig{WebhookSecret: "pt-secret"}, nil, nil)
	if !adapter.VerifySignature("pt-secret", nil) || adapter.VerifySignature("nope", nil) {
		t.Fatal("unexpected pathao signature result")
	}
	headers := adapter.PingHeaders()
	if headers["X-Pathao-Merchant-Webhook-Integration-Secret"] != "pt-secret" {
		t.Fatalf("unexpected ping headers %v", headers)
	}
	if len(NewPathaoAdapter(PathaoConfig{}, nil, nil).PingHeaders()) != 0 {
		t.Fatal("expected no ping headers without a secret")
	}
}

func TestPathaoNormalizeWebhook(t *testing.T) {
	adapter := NewPathaoAdapter(PathaoConfig{}, testMappings(t), nil)
	event, err := adapter.NormalizeWebhook([]byte(`{"consignment_id":"DL121224VS8TTJ","merchant_order_id":"PF-1001","order_status":"At the Sorting HUB","reason":"","updated_at":"2026-03-01 10:15:00"}`))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if event.TrackingID != "DL121224VS8TTJ" || event.MappedStatus != enums.OrderStatusInTransit {
		t.Fatalf("unexpected event %+v", event)
	}
	unmapped, err := adapter.NormalizeWebhook([]byte(`{"consignment_id":"X1","order_status":"Teleported"}`))
	if err != nil {
		t.Fatalf("normalize unmapped: %v", err)
	}
	if unmapped.Mapped || unmapped.NormalizedStatus != "teleported" {
		t.Fatalf("expected unmapped event, got %+v", unmapped)
	}
}

func TestPathaoPushUsesDeliveryType(t *testing.T) {
	var record recordedRequest
	server := courierServer(t, http.StatusOK, `{"message":"Order Created Successfully","type":"success","code":200,"data":{"consignment_id":"DL1","merchant_order_id":"PF-1001","order_status":"Pending"}}`, &record)
	adapter := NewPathaoAdapter(PathaoConfig{BaseURL: server.URL, AccessToken: "tok", StoreID: 77}, nil, nil)

	result, err := adapter.PushOrder(context.Background(), codOrder(), PushOptions{DeliveryType: "on_demand"})
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if result.TrackingID != "DL1" {
		t.Fatalf("unexpected result %+v", result)
	}
	if record.path != "/aladdin/api/v1/orders" || record.header.Get("Authorization") != "Bearer tok" {
		t.Fatalf("unexpected request %s %v", record.path, record.header)
	}
	if record.body["delivery_type"] != float64(12) || record.body["store_id"] != float64(77) || record.body["item_quantity"] != float64(3) {
		t.Fatalf("unexpected body %v", record.body)
	}
}

func TestRedXSignatureIsHMAC(t *testing.T) {
	adapter := NewRedXAdapter(RedXConfig{WebhookSecret: "rx-secret"}, nil, nil)
	body := []byte(`{"tracking_number":"RX1","status":"delivered"}`)
	signature := hex.EncodeToString(SignHMACSHA256("rx-secret", body))
	if !adapter.VerifySignature(signature, body) {
		t.Fatal("expected valid hmac to verify")
	}
	if adapter.VerifySignature(signature, []byte(`{"tracking_number":"RX1","status":"returned"}`)) {
		t.Fatal("expected tampered body to fail")
	}
	if adapter.VerifySignature("not-hex", body) {
		t.Fatal("expected malformed signature to fail")
	}
}

func TestRedXPushAndPull(t *testing.T) {
	var record recordedRequest
	server := courierServer(t, http.StatusOK, `{"tracking_id":"21A427TU4BN3R"}`, &record)
	adapter := NewRedXAdapter(RedXConfig{BaseURL: server.URL, APIToken: "rx"}, testMappings(t), nil)

	result, err := adapter.PushOrder(context.Background(), codOrder(), PushOptions{DestinationBranch: "Mirpur"})
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if result.TrackingID != "21A427TU4BN3R" || record.path != "/v1.0.0-beta/parcel" {
		t.Fatalf("unexpected push %+v %s", result, record.path)
	}
	if record.body["delivery_area"] != "Mirpur" || record.header.Get("API-ACCESS-TOKEN") != "Bearer rx" {
		t.Fatalf("unexpected push body %v", record.body)
	}

	pull := courierServer(t, http.StatusOK, `{"parcel":{"tracking_id":"21A427TU4BN3R","status":"agent-hold"}}`, &record)
	adapter = NewRedXAdapter(RedXConfig{BaseURL: pull.URL}, testMappings(t), nil)
	status, err := adapter.PullStatus(context.Background(), "21A427TU4BN3R")
	if err != nil {
		t.Fatalf("pull: %v", err)
	}
	if record.path != "/v1.0.0-beta/parcel/info/21A427TU4BN3R" || status.MappedStatus != enums.OrderStatusHold {
		t.Fatalf("unexpected pull %s %+v", record.path, status)
	}
}

func TestGenericAdapterNeverVerifies(t *testing.T) {
	adapter := NewGenericAdapter(nil)
	if adapter.VerifySignature("anything", []byte("{}")) {
		t.Fatal("generic adapter must not verify")
	}
	event, err := adapter.NormalizeWebhook([]byte(`{"trackingId":"ABC","status":"Delivered"}`))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if event.TrackingID != "ABC" || event.Mapped {
		t.Fatalf("unexpected generic event %+v", event)
	}
	if _, err := adapter.PushOrder(context.Background(), codOrder(), PushOptions{}); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := adapter.PullStatus(context.Background(), "ABC"); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRegistryFallsBackToGeneric(t *testing.T) {
	registry, err := NewRegistryFromConfig(testCouriersConfig(), testMappings(t), nil)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	if got := registry.Providers(); len(got) != 3 {
		t.Fatalf("expected 3 providers, got %v", got)
	}
	adapter, ok := registry.Resolve(enums.ProviderPathao)
	if !ok || adapter.Provider() != enums.ProviderPathao {
		t.Fatalf("expected pathao adapter, got %v %v", adapter, ok)
	}
	adapter, provider, ok := registry.ResolveName("ecourier")
	if ok || provider != enums.ProviderUnknown || adapter.Provider() != enums.ProviderUnknown {
		t.Fatalf("expected generic fallback, got %v %v %v", adapter.Provider(), provider, ok)
	}

	if _, err := NewRegistry(map[enums.LogisticsProvider]Adapter{
		enums.ProviderRedX: NewSteadfastAdapter(SteadfastConfig{}, nil, nil),
	}, NewGenericAdapter(nil)); err == nil {
		t.Fatal("expected mismatched adapter key to fail")
	}
	if _, err := NewRegistry(nil, nil); err == nil {
		t.Fatal("expected missing fallback to fail")
	}
}
