package courierwebhook

import (
	"context"
	"encoding/hex"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/packfinderz-fulfillment/internal/couriers"
	"github.com/angelmondragon/packfinderz-fulfillment/internal/orders"
	"github.com/angelmondragon/packfinderz-fulfillment/internal/stock"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db/dbtest"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db/models"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-fulfillment/pkg/errors"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/metrics"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/outbox"
)

const (
	steadfastToken = "sf-token"
	pathaoSecret   = "pt-secret"
	redxSecret     = "rx-secret"
)

type memoryStore struct {
	mu   sync.Mutex
	keys map[string]string
	fail bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{keys: map[string]string{}}
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keys[key], nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return false, errors.New("redis down")
	}
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = "1"
	return true, nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "pf:idempotency:" + scope + ":" + id
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.keys, key)
	}
	return nil
}

func (m *memoryStore) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.keys[key]
	return ok
}

// flakyTracker fails the first failures calls and then delegates.
type flakyTracker struct {
	next     statusTracker
	failures int
	calls    int
}

func (f *flakyTracker) Apply(ctx context.Context, provider enums.LogisticsProvider, order *models.Order, event *couriers.CanonicalEvent, source enums.CourierEventSource) (*couriers.ApplyResult, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "database unavailable")
	}
	return f.next.Apply(ctx, provider, order, event, source)
}

type webhookHarness struct {
	client   *db.Client
	store    *memoryStore
	tracker  *flakyTracker
	service  *Service
	letters  DeadLetterRepository
	registry *prometheus.Registry
}

func newWebhookHarness(t *testing.T, failures, maxAttempts int) *webhookHarness {
	t.Helper()
	client := dbtest.Open(t)
	ledger, err := stock.NewService(stock.NewRepository(client.DB()), client, nil, nil)
	require.NoError(t, err)
	orderRepo := orders.NewRepository(client.DB())
	orderSvc, err := orders.NewService(orderRepo, client, ledger, outbox.NewService(outbox.NewRepository(client.DB()), nil), nil)
	require.NoError(t, err)
	tracker, err := couriers.NewTracker(client, orderRepo, orderSvc, couriers.NewEventRepository(client.DB()), nil)
	require.NoError(t, err)

	mappings, err := couriers.LoadStatusMappings("")
	require.NoError(t, err)
	registry, err := couriers.NewRegistry(map[enums.LogisticsProvider]couriers.Adapter{
		enums.ProviderSteadfast: couriers.NewSteadfastAdapter(couriers.SteadfastConfig{WebhookToken: steadfastToken}, mappings, orderRepo),
		enums.ProviderPathao:    couriers.NewPathaoAdapter(couriers.PathaoConfig{WebhookSecret: pathaoSecret}, mappings, orderRepo),
		enums.ProviderRedX:      couriers.NewRedXAdapter(couriers.RedXConfig{WebhookSecret: redxSecret}, mappings, orderRepo),
	}, couriers.NewGenericAdapter(orderRepo))
	require.NoError(t, err)

	store := newMemoryStore()
	guard, err := NewDedupGuard(store, 72*time.Hour)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	flaky := &flakyTracker{next: tracker, failures: failures}
	letters := NewDeadLetterRepository(client.DB())
	svc, err := NewService(ServiceParams{
		Registry:          registry,
		Tracker:           flaky,
		Guard:             guard,
		DeadLetters:       letters,
		Metrics:           metrics.NewCourierWebhookMetrics(reg),
		MaxReplayAttempts: maxAttempts,
		ReplayBaseBackoff: time.Minute,
	})
	require.NoError(t, err)
	return &webhookHarness{client: client, store: store, tracker: flaky, service: svc, letters: letters, registry: reg}
}

func steadfastDelivery(body string) Delivery {
	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+steadfastToken)
	headers.Set("User-Agent", "steadfast-hook")
	return Delivery{ProviderName: "steadfast", Body: []byte(body), Headers: headers}
}

func (h *webhookHarness) deadLetters(t *testing.T) []models.WebhookDeadLetter {
	t.Helper()
	letters, err := h.letters.List(context.Background(), "", 0)
	require.NoError(t, err)
	return letters
}

func TestTestPingIsAcknowledged(t *testing.T) {
	h := newWebhookHarness(t, 0, 3)

	resp := h.service.Handle(context.Background(), Delivery{ProviderName: "pathao", Body: []byte(`{"event":"webhook_integration"}`)})
	assert.True(t, resp.Success)
	assert.Equal(t, "OK", resp.Response)
	assert.Equal(t, pathaoSecret, resp.Headers["X-Pathao-Merchant-Webhook-Integration-Secret"])

	resp = h.service.Handle(context.Background(), Delivery{ProviderName: "redx", Body: nil})
	assert.Equal(t, Response{Success: true, Response: "OK"}, resp)
}

func TestUnknownProviderUntrackedOrder(t *testing.T) {
	h := newWebhookHarness(t, 0, 3)

	resp := h.service.Handle(context.Background(), Delivery{ProviderName: "ecourier", Body: []byte(`{"tracking_id":"NOPE-1","status":"Delivered"}`)})
	assert.Equal(t, Response{Success: true, Message: MessageOrderNotFound}, resp)
	assert.Empty(t, h.deadLetters(t))
	assert.Equal(t, 1.0, counterValue(t, h, "ecourier", "order_not_found"))
}

func TestUnknownProviderTrackedOrderIsNeverApplied(t *testing.T) {
	h := newWebhookHarness(t, 0, 3)
	order := dbtest.Order(t, h.client, dbtest.OrderSeed{Status: enums.OrderStatusHandoverToCourier, TrackingID: "EC-9"})

	resp := h.service.Handle(context.Background(), Delivery{ProviderName: "ecourier", Body: []byte(`{"tracking_id":"EC-9","status":"Delivered"}`)})
	assert.Equal(t, Response{Success: true, Message: MessageAcknowledged}, resp)
	assert.Equal(t, enums.OrderStatusHandoverToCourier, dbtest.Reload(t, h.client, order.ID).Status)

	letters := h.deadLetters(t)
	require.Len(t, letters, 1)
	assert.Equal(t, enums.DeadLetterReasonUnverifiedProvider, letters[0].Reason)
	assert.Nil(t, letters[0].NextAttemptAt)

	_, err := h.service.Replay(context.Background(), letters[0].ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestInvalidSignatureIsRejected(t *testing.T) {
	h := newWebhookHarness(t, 0, 3)
	order := dbtest.Order(t, h.client, dbtest.OrderSeed{Status: enums.OrderStatusHandoverToCourier, TrackingID: "RX1", Provider: enums.ProviderRedX})

	body := []byte(`{"tracking_number":"RX1","status":"delivered"}`)
	headers := http.Header{}
	headers.Set("X-RedX-Signature", hex.EncodeToString(couriers.SignHMACSHA256("wrong", body)))
	resp := h.service.Handle(context.Background(), Delivery{ProviderName: "redx", Body: body, Headers: headers})
	assert.Equal(t, Response{Success: false, Message: MessageInvalidSig}, resp)
	assert.Equal(t, enums.OrderStatusHandoverToCourier, dbtest.Reload(t, h.client, order.ID).Status)
	assert.Equal(t, 1.0, counterValue(t, h, "redx", "invalid_signature"))

	headers.Set("X-RedX-Signature", hex.EncodeToString(couriers.SignHMACSHA256(redxSecret, body)))
	resp = h.service.Handle(context.Background(), Delivery{ProviderName: "redx", Body: body, Headers: headers})
	assert.Equal(t, MessageProcessed, resp.Message)
	assert.Equal(t, enums.OrderStatusDelivered, dbtest.Reload(t, h.client, order.ID).Status)
}

func TestNormalizeFailureIsDeadLettered(t *testing.T) {
	h := newWebhookHarness(t, 0, 3)

	resp := h.service.Handle(context.Background(), steadfastDelivery(`{"consignment_id":"123"}`))
	assert.Equal(t, Response{Success: true, Message: MessageReceived}, resp)

	letters := h.deadLetters(t)
	require.Len(t, letters, 1)
	assert.Equal(t, enums.DeadLetterReasonNormalize, letters[0].Reason)
	assert.Equal(t, "steadfast", letters[0].Provider)
	assert.NotContains(t, string(letters[0].Headers), steadfastToken)
	assert.Contains(t, string(letters[0].Headers), "steadfast-hook")
}

func TestProcessedThenDuplicate(t *testing.T) {
	h := newWebhookHarness(t, 0, 3)
	order := dbtest.Order(t, h.client, dbtest.OrderSeed{Status: enums.OrderStatusHandoverToCourier, TrackingID: "5001", Provider: enums.ProviderSteadfast})
	body := `{"consignment_id":5001,"status":"pending","tracking_message":"picked up"}`

	resp := h.service.Handle(context.Background(), steadfastDelivery(body))
	assert.Equal(t, Response{Success: true, Message: MessageProcessed}, resp)
	assert.Equal(t, enums.OrderStatusInTransit, dbtest.Reload(t, h.client, order.ID).Status)

	resp = h.service.Handle(context.Background(), steadfastDelivery(body))
	assert.Equal(t, Response{Success: true, Message: MessageDuplicate}, resp)
	assert.Equal(t, 1, h.tracker.calls)
	assert.True(t, h.store.has("pf:idempotency:courier-webhook:steadfast:"+PayloadHash([]byte(body))))
}

func TestUntrackedOrderForKnownProvider(t *testing.T) {
	h := newWebhookHarness(t, 0, 3)
	resp := h.service.Handle(context.Background(), steadfastDelivery(`{"consignment_id":404,"status":"delivered"}`))
	assert.Equal(t, Response{Success: true, Message: MessageOrderNotFound}, resp)
}

func TestUnmappedAndInapplicableMessages(t *testing.T) {
	h := newWebhookHarness(t, 0, 3)
	dbtest.Order(t, h.client, dbtest.OrderSeed{Status: enums.OrderStatusInTransit, TrackingID: "7001", Provider: enums.ProviderSteadfast})
	dbtest.Order(t, h.client, dbtest.OrderSeed{Status: enums.OrderStatusDelivered, TrackingID: "7002", Provider: enums.ProviderSteadfast})

	resp := h.service.Handle(context.Background(), steadfastDelivery(`{"consignment_id":7001,"status":"Mystery Step"}`))
	assert.Equal(t, MessageUnmapped, resp.Message)

	resp = h.service.Handle(context.Background(), steadfastDelivery(`{"consignment_id":7002,"status":"hold"}`))
	assert.Equal(t, MessageNotApplicable, resp.Message)
}

func TestDedupOutageStillProcesses(t *testing.T) {
	h := newWebhookHarness(t, 0, 3)
	h.store.fail = true
	order := dbtest.Order(t, h.client, dbtest.OrderSeed{Status: enums.OrderStatusHandoverToCourier, TrackingID: "8001", Provider: enums.ProviderSteadfast})

	resp := h.service.Handle(context.Background(), steadfastDelivery(`{"consignment_id":8001,"status":"pending"}`))
	assert.Equal(t, MessageProcessed, resp.Message)
	assert.Equal(t, enums.OrderStatusInTransit, dbtest.Reload(t, h.client, order.ID).Status)
}

func TestProcessingFailureIsReplayable(t *testing.T) {
	h := newWebhookHarness(t, 1, 3)
	order := dbtest.Order(t, h.client, dbtest.OrderSeed{Status: enums.OrderStatusHandoverToCourier, TrackingID: "9001", Provider: enums.ProviderSteadfast})
	body := `{"consignment_id":9001,"status":"delivered"}`

	resp := h.service.Handle(context.Background(), steadfastDelivery(body))
	assert.Equal(t, Response{Success: true, Message: MessageReceived}, resp)
	assert.False(t, h.store.has("pf:idempotency:courier-webhook:steadfast:"+PayloadHash([]byte(body))))

	letters := h.deadLetters(t)
	require.Len(t, letters, 1)
	assert.Equal(t, enums.DeadLetterReasonProcessing, letters[0].Reason)
	require.NotNil(t, letters[0].NextAttemptAt)

	report, err := h.service.ReplayDue(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, ReplayReport{Attempted: 1, Replayed: 1}, report)
	assert.Equal(t, enums.OrderStatusDelivered, dbtest.Reload(t, h.client, order.ID).Status)

	stored, err := h.letters.FindByID(context.Background(), letters[0].ID)
	require.NoError(t, err)
	assert.Equal(t, enums.DeadLetterReplayed, stored.Status)
	assert.Equal(t, 1, stored.AttemptCount)

	_, err = h.service.Replay(context.Background(), stored.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
}

func TestReplayBacksOffThenExhausts(t *testing.T) {
	h := newWebhookHarness(t, 100, 2)
	dbtest.Order(t, h.client, dbtest.OrderSeed{Status: enums.OrderStatusHandoverToCourier, TrackingID: "9100", Provider: enums.ProviderSteadfast})
	h.service.Handle(context.Background(), steadfastDelivery(`{"consignment_id":9100,"status":"delivered"}`))
	letter := h.deadLetters(t)[0]

	start := time.Now().UTC()
	res, err := h.service.Replay(context.Background(), letter.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.DeadLetterPending, res.DeadLetter.Status)
	assert.NotEmpty(t, res.Error)
	require.NotNil(t, res.DeadLetter.NextAttemptAt)
	assert.WithinDuration(t, start.Add(time.Minute), *res.DeadLetter.NextAttemptAt, 5*time.Second)

	report, err := h.service.ReplayDue(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, report.Attempted, "next attempt is not due yet")

	res, err = h.service.Replay(context.Background(), letter.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.DeadLetterExhausted, res.DeadLetter.Status)
	assert.Equal(t, 2, res.DeadLetter.AttemptCount)
	assert.Nil(t, res.DeadLetter.NextAttemptAt)
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	svc := &Service{baseBackoff: time.Minute}
	assert.Equal(t, time.Minute, svc.backoff(1))
	assert.Equal(t, 4*time.Minute, svc.backoff(3))
	assert.Equal(t, 24*time.Hour, svc.backoff(30))
}

func TestListValidatesStatus(t *testing.T) {
	h := newWebhookHarness(t, 0, 3)
	_, err := h.service.List(context.Background(), enums.DeadLetterStatus("bogus"), 10)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	letters, err := h.service.List(context.Background(), enums.DeadLetterPending, 10)
	require.NoError(t, err)
	assert.Empty(t, letters)
}

func TestReplayMissingDeadLetter(t *testing.T) {
	h := newWebhookHarness(t, 0, 3)
	_, err := h.service.Replay(context.Background(), uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func counterValue(t *testing.T, h *webhookHarness, provider, outcome string) float64 {
	t.Helper()
	families, err := h.registry.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != "courier_webhook_events_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			labels := map[string]string{}
			for _, pair := range metric.GetLabel() {
				labels[pair.GetName()] = pair.GetValue()
			}
			if labels["provider"] == provider && labels["outcome"] == outcome {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}
