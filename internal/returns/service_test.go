package returns

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-fulfillment/internal/orders"
	"github.com/angelmondragon/packfinderz-fulfillment/internal/stock"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db/dbtest"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db/models"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-fulfillment/pkg/errors"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/outbox"
)

type returnsHarness struct {
	client    *db.Client
	service   Service
	orders    orders.Service
	orderRepo orders.Repository
	stock     stock.Service
	emitter   outbox.Emitter
	actor     uuid.UUID
}

func newReturnsHarness(t *testing.T) *returnsHarness {
	t.Helper()
	client := dbtest.Open(t)
	emitter := outbox.NewService(outbox.NewRepository(client.DB()), nil)
	stockLedger, err := stock.NewService(stock.NewRepository(client.DB()), client, nil, nil)
	require.NoError(t, err)
	orderRepo := orders.NewRepository(client.DB())
	orderSvc, err := orders.NewService(orderRepo, client, stockLedger, emitter, nil)
	require.NoError(t, err)
	svc, err := NewService(Config{
		Repo:        NewRepository(client.DB()),
		Orders:      orderRepo,
		Transitions: orderSvc,
		Stock:       stockLedger,
		Tx:          client,
		Outbox:      emitter,
	})
	require.NoError(t, err)
	return &returnsHarness{
		client:    client,
		service:   svc,
		orders:    orderSvc,
		orderRepo: orderRepo,
		stock:     stockLedger,
		emitter:   emitter,
		actor:     uuid.New(),
	}
}

// rtoOrder seeds a variant that started at stock 10 and an order of 2 units
// already deducted (stock 8) and on its way back.
func (h *returnsHarness) rtoOrder(t *testing.T, sku string, status enums.OrderStatus) (*models.Order, *models.ProductVariant) {
	t.Helper()
	variant := dbtest.Variant(t, h.client, sku, 8)
	order := dbtest.Order(t, h.client, dbtest.OrderSeed{
		Status:        status,
		TrackingID:    "SF-" + uuid.NewString()[:8],
		StockDeducted: true,
		Items:         []dbtest.ItemSeed{{Variant: variant, Quantity: 2}},
	})
	return order, variant
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(Config{})
	require.Error(t, err)
}

func TestVerifyGoodReturnRestoresStockOnce(t *testing.T) {
	h := newReturnsHarness(t)
	ctx := context.Background()
	order, variant := h.rtoOrder(t, "ABC", enums.OrderStatusRTOInitiated)

	result, err := h.service.VerifyRTOReturn(ctx, VerifyInput{ScanValue: "  " + order.ReadableID + " ", Condition: "good", Notes: "sealed", Actor: h.actor})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusReturned, result.Order.Status)
	assert.Equal(t, enums.ReturnConditionGood, result.Condition)
	assert.True(t, result.StockRestored)
	require.NotNil(t, result.Restore)
	assert.True(t, result.Restore.Complete)
	assert.Equal(t, enums.StockBatchAtomic, result.Restore.Mode)
	assert.Equal(t, int64(10), dbtest.Stock(t, h.client, variant.ID))

	reloaded := dbtest.Reload(t, h.client, order.ID)
	assert.True(t, reloaded.StockRestored)
	require.NotNil(t, reloaded.ReturnCondition)
	assert.Equal(t, enums.ReturnConditionGood, *reloaded.ReturnCondition)
	require.NotNil(t, reloaded.ReturnVerifiedBy)
	assert.Equal(t, h.actor, *reloaded.ReturnVerifiedBy)
	assert.NotNil(t, reloaded.ReturnReceivedAt)

	_, err = h.service.VerifyRTOReturn(ctx, VerifyInput{ScanValue: order.ReadableID, Condition: "GOOD", Actor: h.actor})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "a returned order is no longer scannable")
	assert.Equal(t, int64(10), dbtest.Stock(t, h.client, variant.ID))

	var events []models.OutboxEvent
	require.NoError(t, h.client.DB().Where("event_type = ?", enums.EventRTOVerified).Find(&events).Error)
	assert.Len(t, events, 1)
}

func TestVerifyDamagedReturnLeavesStock(t *testing.T) {
	h := newReturnsHarness(t)
	order, variant := h.rtoOrder(t, "ABC", enums.OrderStatusRTOVerificationPending)

	result, err := h.service.VerifyRTOReturn(context.Background(), VerifyInput{ScanValue: *order.TrackingID, Condition: "Damaged", Actor: h.actor})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusReturned, result.Order.Status)
	assert.Equal(t, enums.ReturnConditionDamaged, result.Condition)
	assert.False(t, result.StockRestored)
	assert.Nil(t, result.Restore)
	assert.Equal(t, int64(8), dbtest.Stock(t, h.client, variant.ID))
	assert.False(t, dbtest.Reload(t, h.client, order.ID).StockRestored)
}

func TestVerifyRejectsBadInput(t *testing.T) {
	h := newReturnsHarness(t)
	ctx := context.Background()
	order, _ := h.rtoOrder(t, "ABC", enums.OrderStatusRTOInitiated)
	shipped := dbtest.Order(t, h.client, dbtest.OrderSeed{Status: enums.OrderStatusInTransit})

	_, err := h.service.VerifyRTOReturn(ctx, VerifyInput{ScanValue: "   ", Condition: "GOOD"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = h.service.VerifyRTOReturn(ctx, VerifyInput{ScanValue: order.ReadableID, Condition: "SHINY"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = h.service.VerifyRTOReturn(ctx, VerifyInput{ScanValue: shipped.ReadableID, Condition: "GOOD"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "order is not on its way back")

	_, err = h.service.VerifyRTOReturn(ctx, VerifyInput{ScanValue: "nothing-matches", Condition: "GOOD"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestVerifyAmbiguousScanIsConflict(t *testing.T) {
	h := newReturnsHarness(t)
	first, _ := h.rtoOrder(t, "ABC", enums.OrderStatusRTOInitiated)
	second, _ := h.rtoOrder(t, "XYZ", enums.OrderStatusRTOInitiated)
	require.NoError(t, h.client.DB().Model(&models.Order{}).Where("id = ?", second.ID).Update("order_number", first.OrderNumber).Error)

	_, err := h.service.VerifyRTOReturn(context.Background(), VerifyInput{ScanValue: first.OrderNumber, Condition: "GOOD"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
}

func TestMarkRTOLost(t *testing.T) {
	h := newReturnsHarness(t)
	ctx := context.Background()
	order, variant := h.rtoOrder(t, "ABC", enums.OrderStatusRTOInitiated)

	view, err := h.service.MarkRTOLost(ctx, LostInput{OrderID: order.ID, Notes: "courier lost parcel", Actor: h.actor})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusLostInTransit, view.Status)
	assert.Equal(t, int64(8), dbtest.Stock(t, h.client, variant.ID))

	reloaded := dbtest.Reload(t, h.client, order.ID)
	require.NotNil(t, reloaded.ReturnNotes)
	assert.Equal(t, "courier lost parcel", *reloaded.ReturnNotes)
	assert.NotNil(t, reloaded.LostAt)

	delivered := dbtest.Order(t, h.client, dbtest.OrderSeed{Status: enums.OrderStatusDelivered})
	_, err = h.service.MarkRTOLost(ctx, LostInput{OrderID: delivered.ID, Actor: h.actor})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))

	_, err = h.service.MarkRTOLost(ctx, LostInput{OrderID: uuid.New(), Actor: h.actor})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func (h *returnsHarness) withCollaborators(t *testing.T, restorer stockRestorer, emitter outbox.Emitter) Service {
	t.Helper()
	svc, err := NewService(Config{
		Repo:        NewRepository(h.client.DB()),
		Orders:      h.orderRepo,
		Transitions: h.orders,
		Stock:       restorer,
		Tx:          h.client,
		Outbox:      emitter,
	})
	require.NoError(t, err)
	return svc
}

func rtoVerifiedEvents(t *testing.T, client *db.Client, orderID uuid.UUID) int64 {
	t.Helper()
	var count int64
	require.NoError(t, client.DB().Model(&models.OutboxEvent{}).
		Where("event_type = ? AND aggregate_id = ?", enums.EventRTOVerified, orderID).
		Count(&count).Error)
	return count
}

type flakyStock struct {
	stockRestorer
	failRefs bool
}

func (f *flakyStock) RestoredRefs(ctx context.Context, tx *gorm.DB, refIDs []uuid.UUID) (map[uuid.UUID]bool, error) {
	if f.failRefs {
		return nil, errors.New("db blip")
	}
	return f.stockRestorer.RestoredRefs(ctx, tx, refIDs)
}

type failingEmitter struct{}

func (failingEmitter) Emit(context.Context, *gorm.DB, outbox.DomainEvent) error {
	return errors.New("outbox unavailable")
}

func TestVerifyGoodSkipsRestoreWhenStockNeverDeducted(t *testing.T) {
	h := newReturnsHarness(t)
	variant := dbtest.Variant(t, h.client, "ABC", 10)
	order := dbtest.Order(t, h.client, dbtest.OrderSeed{
		Status:     enums.OrderStatusRTOInitiated,
		TrackingID: "SF-LEGACY",
		Items:      []dbtest.ItemSeed{{Variant: variant, Quantity: 2}},
	})

	result, err := h.service.VerifyRTOReturn(context.Background(), VerifyInput{ScanValue: order.ReadableID, Condition: "GOOD", Actor: h.actor})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusReturned, result.Order.Status)
	assert.Equal(t, RestoreSkippedNotDeducted, result.RestoreSkipped)
	assert.Nil(t, result.Restore)
	assert.False(t, result.StockRestored)
	assert.False(t, result.ReconcileRequired)
	assert.Equal(t, int64(10), dbtest.Stock(t, h.client, variant.ID))
	assert.False(t, dbtest.Reload(t, h.client, order.ID).StockRestored)
}

func TestUnpackedOrderOnHoldCannotReachVerification(t *testing.T) {
	h := newReturnsHarness(t)
	ctx := context.Background()
	variant := dbtest.Variant(t, h.client, "ABC", 10)
	order := dbtest.Order(t, h.client, dbtest.OrderSeed{
		Status: enums.OrderStatusIntake,
		Items:  []dbtest.ItemSeed{{Variant: variant, Quantity: 2}},
	})

	_, err := h.orders.Transition(ctx, orders.TransitionInput{OrderID: order.ID, To: enums.OrderStatusHold, Source: enums.SourceOperator})
	require.NoError(t, err)
	_, err = h.orders.Transition(ctx, orders.TransitionInput{OrderID: order.ID, To: enums.OrderStatusRTOInitiated, Source: enums.SourceOperator})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))

	_, err = h.service.VerifyRTOReturn(ctx, VerifyInput{ScanValue: order.ReadableID, Condition: "GOOD", Actor: h.actor})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	assert.Equal(t, int64(10), dbtest.Stock(t, h.client, variant.ID))
}

func TestVerifyReportsFailedRestoreAndRetryCompletesIt(t *testing.T) {
	h := newReturnsHarness(t)
	ctx := context.Background()
	restorer := &flakyStock{stockRestorer: h.stock, failRefs: true}
	svc := h.withCollaborators(t, restorer, h.emitter)
	order, variant := h.rtoOrder(t, "ABC", enums.OrderStatusRTOVerificationPending)

	result, err := svc.VerifyRTOReturn(ctx, VerifyInput{ScanValue: order.ReadableID, Condition: "GOOD", Actor: h.actor})
	require.NoError(t, err, "a committed claim never fails the scan")
	assert.Equal(t, enums.OrderStatusReturned, result.Order.Status)
	assert.False(t, result.StockRestored)
	assert.True(t, result.ReconcileRequired)
	require.NotNil(t, result.Restore)
	assert.False(t, result.Restore.Complete)
	assert.Contains(t, result.Restore.AtomicError, "db blip")
	require.Len(t, result.Restore.Failed, 1)
	assert.Equal(t, order.Items[0].ID, result.Restore.Failed[0].RefID)
	assert.Equal(t, int64(8), dbtest.Stock(t, h.client, variant.ID))
	assert.Equal(t, int64(1), rtoVerifiedEvents(t, h.client, order.ID))

	restorer.failRefs = false
	retried, err := svc.RetryRTORestore(ctx, order.ID, h.actor)
	require.NoError(t, err)
	assert.True(t, retried.StockRestored)
	assert.False(t, retried.ReconcileRequired)
	assert.Equal(t, int64(10), dbtest.Stock(t, h.client, variant.ID))
	assert.True(t, dbtest.Reload(t, h.client, order.ID).StockRestored)
	assert.Equal(t, int64(2), rtoVerifiedEvents(t, h.client, order.ID))

	again, err := svc.RetryRTORestore(ctx, order.ID, h.actor)
	require.NoError(t, err)
	assert.True(t, again.StockRestored)
	assert.Equal(t, int64(10), dbtest.Stock(t, h.client, variant.ID))
	assert.Equal(t, int64(2), rtoVerifiedEvents(t, h.client, order.ID))
}

func TestVerifyRecordFailureIsReconcilable(t *testing.T) {
	h := newReturnsHarness(t)
	ctx := context.Background()
	order, variant := h.rtoOrder(t, "ABC", enums.OrderStatusRTOInitiated)

	broken := h.withCollaborators(t, h.stock, failingEmitter{})
	result, err := broken.VerifyRTOReturn(ctx, VerifyInput{ScanValue: order.ReadableID, Condition: "GOOD", Actor: h.actor})
	require.NoError(t, err)
	assert.True(t, result.ReconcileRequired)
	assert.False(t, result.StockRestored)
	assert.Equal(t, int64(10), dbtest.Stock(t, h.client, variant.ID))
	assert.False(t, dbtest.Reload(t, h.client, order.ID).StockRestored)
	assert.Zero(t, rtoVerifiedEvents(t, h.client, order.ID))

	retried, err := h.service.RetryRTORestore(ctx, order.ID, h.actor)
	require.NoError(t, err)
	assert.True(t, retried.StockRestored)
	assert.Equal(t, int64(10), dbtest.Stock(t, h.client, variant.ID), "items already restored are not restored again")
	assert.True(t, dbtest.Reload(t, h.client, order.ID).StockRestored)
	assert.Equal(t, int64(1), rtoVerifiedEvents(t, h.client, order.ID))
}

func TestRetryRTORestoreGuards(t *testing.T) {
	h := newReturnsHarness(t)
	ctx := context.Background()

	_, err := h.service.RetryRTORestore(ctx, uuid.Nil, h.actor)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = h.service.RetryRTORestore(ctx, uuid.New(), h.actor)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	pending, _ := h.rtoOrder(t, "ABC", enums.OrderStatusRTOInitiated)
	_, err = h.service.RetryRTORestore(ctx, pending.ID, h.actor)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict), "not returned yet")

	damaged, variant := h.rtoOrder(t, "XYZ", enums.OrderStatusRTOInitiated)
	_, err = h.service.VerifyRTOReturn(ctx, VerifyInput{ScanValue: damaged.ReadableID, Condition: "DAMAGED", Actor: h.actor})
	require.NoError(t, err)
	_, err = h.service.RetryRTORestore(ctx, damaged.ID, h.actor)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
	assert.Equal(t, int64(8), dbtest.Stock(t, h.client, variant.ID))
}
