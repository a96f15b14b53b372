package orders

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-fulfillment/internal/ledger"
	"github.com/angelmondragon/packfinderz-fulfillment/internal/stock"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db/dbtest"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db/models"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-fulfillment/pkg/errors"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/outbox"
)

func newOrdersService(t *testing.T, wrap func(Repository) Repository) (Service, *db.Client) {
	t.Helper()
	client := dbtest.Open(t)
	ledger, err := stock.NewService(stock.NewRepository(client.DB()), client, nil, nil)
	require.NoError(t, err)
	repo := NewRepository(client.DB())
	if wrap != nil {
		repo = wrap(repo)
	}
	svc, err := NewService(repo, client, ledger, outbox.NewService(outbox.NewRepository(client.DB()), nil), nil)
	require.NoError(t, err)
	return svc, client
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	if _, err := NewService(nil, nil, nil, nil, nil); err == nil {
		t.Fatal("expected missing repository error")
	}
}

func TestCanTransitionFollowsGraph(t *testing.T) {
	cases := []struct {
		from, to enums.OrderStatus
		want     bool
	}{
		{enums.OrderStatusIntake, enums.OrderStatusConverted, true},
		{enums.OrderStatusConverted, enums.OrderStatusPacked, true},
		{enums.OrderStatusAssigned, enums.OrderStatusPacked, true},
		{enums.OrderStatusHandoverToCourier, enums.OrderStatusRTOVerificationPending, true},
		{enums.OrderStatusHold, enums.OrderStatusDelivered, true},
		{enums.OrderStatusRTOInitiated, enums.OrderStatusReturned, true},
		{enums.OrderStatusIntake, enums.OrderStatusPacked, false},
		{enums.OrderStatusInTransit, enums.OrderStatusCancelled, false},
		{enums.OrderStatusHold, enums.OrderStatusReturned, false},
		{enums.OrderStatusOutForDelivery, enums.OrderStatusReturned, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("%s -> %s: expected %v, got %v", tc.from, tc.to, tc.want, got)
		}
	}
	for _, status := range enums.OrderStatuses() {
		if status.IsTerminal() && len(AllowedTargets(status)) != 0 {
			t.Fatalf("terminal status %s must have no outgoing edges", status)
		}
	}
}

func TestTransitionToSameStatusIsNoop(t *testing.T) {
	svc, client := newOrdersService(t, nil)
	order := dbtest.Order(t, client, dbtest.OrderSeed{Status: enums.OrderStatusHold})

	res, err := svc.Transition(context.Background(), TransitionInput{
		OrderID: order.ID,
		To:      enums.OrderStatusHold,
		Source:  enums.SourceOperator,
	})
	require.NoError(t, err)
	assert.False(t, res.Changed)

	var logs int64
	require.NoError(t, client.DB().Model(&models.OrderStatusLog{}).Count(&logs).Error)
	assert.Zero(t, logs)
	var events int64
	require.NoError(t, client.DB().Model(&models.OutboxEvent{}).Count(&events).Error)
	assert.Zero(t, events)
}

func TestTransitionRejectsMissingEdge(t *testing.T) {
	svc, client := newOrdersService(t, nil)
	order := dbtest.Order(t, client, dbtest.OrderSeed{Status: enums.OrderStatusDelivered})

	_, err := svc.Transition(context.Background(), TransitionInput{
		OrderID: order.ID,
		To:      enums.OrderStatusInTransit,
		Source:  enums.SourceCourierWebhook,
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeInvalidTransition, pkgerrors.CodeOf(err))
}

func TestTransitionUnknownOrderIsNotFound(t *testing.T) {
	svc, _ := newOrdersService(t, nil)
	_, err := svc.Transition(context.Background(), TransitionInput{
		OrderID: uuid.New(),
		To:      enums.OrderStatusPacked,
		Source:  enums.SourceOperator,
	})
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))
}

func TestReturnedOnlyFromRTOVerification(t *testing.T) {
	svc, client := newOrdersService(t, nil)
	order := dbtest.Order(t, client, dbtest.OrderSeed{Status: enums.OrderStatusRTOVerificationPending})
	ctx := context.Background()

	_, err := svc.Transition(ctx, TransitionInput{OrderID: order.ID, To: enums.OrderStatusReturned, Source: enums.SourceCourierWebhook})
	assert.Equal(t, pkgerrors.CodeInvalidTransition, pkgerrors.CodeOf(err))
	_, err = svc.Transition(ctx, TransitionInput{OrderID: order.ID, To: enums.OrderStatusReturned, Source: enums.SourceOperator})
	assert.Equal(t, pkgerrors.CodeInvalidTransition, pkgerrors.CodeOf(err))

	res, err := svc.Transition(ctx, TransitionInput{OrderID: order.ID, To: enums.OrderStatusReturned, Source: enums.SourceRTOVerification})
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, enums.OrderStatusReturned, res.Order.Status)
}

func TestPackDeductsStockExactlyOnce(t *testing.T) {
	svc, client := newOrdersService(t, nil)
	ctx := context.Background()
	abc := dbtest.Variant(t, client, "ABC", 10)
	xyz := dbtest.Variant(t, client, "XYZ", 4)
	order := dbtest.Order(t, client, dbtest.OrderSeed{
		Status: enums.OrderStatusConverted,
		Items:  []dbtest.ItemSeed{{Variant: abc, Quantity: 2}, {Variant: xyz, Quantity: 1}},
	})
	actor := uuid.New()

	res, err := svc.Pack(ctx, order.ID, actor)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.True(t, res.Order.StockDeducted)
	assert.NotNil(t, res.Order.PackedAt)
	assert.Equal(t, int64(8), dbtest.Stock(t, client, abc.ID))
	assert.Equal(t, int64(3), dbtest.Stock(t, client, xyz.ID))

	rider := uuid.New()
	_, err = svc.Assign(ctx, order.ID, rider, actor)
	require.NoError(t, err)
	_, err = svc.Transition(ctx, TransitionInput{OrderID: order.ID, To: enums.OrderStatusPacked, Source: enums.SourceOperator, Reason: "unassign"})
	require.NoError(t, err)

	assert.Equal(t, int64(8), dbtest.Stock(t, client, abc.ID), "re-entering packed must not deduct again")
	var movements int64
	require.NoError(t, client.DB().Model(&models.StockMovement{}).Count(&movements).Error)
	assert.Equal(t, int64(2), movements)

	var logs []models.OrderStatusLog
	require.NoError(t, client.DB().Where("order_id = ?", order.ID).Find(&logs).Error)
	assert.Len(t, logs, 3)
	var events int64
	require.NoError(t, client.DB().Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventOrderStatusChanged).Count(&events).Error)
	assert.Equal(t, int64(3), events)
}

func TestPackRollsBackWhenDeductionFails(t *testing.T) {
	svc, client := newOrdersService(t, nil)
	variant := dbtest.Variant(t, client, "GONE", 5)
	order := dbtest.Order(t, client, dbtest.OrderSeed{
		Status: enums.OrderStatusConverted,
		Items:  []dbtest.ItemSeed{{Variant: variant, Quantity: 1}},
	})
	require.NoError(t, client.DB().Delete(&models.ProductVariant{}, "id = ?", variant.ID).Error)

	_, err := svc.Pack(context.Background(), order.ID, uuid.New())
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))

	reloaded := dbtest.Reload(t, client, order.ID)
	assert.Equal(t, enums.OrderStatusConverted, reloaded.Status)
	assert.False(t, reloaded.StockDeducted)
}

func TestDeliveredStampsCODCollection(t *testing.T) {
	svc, client := newOrdersService(t, nil)
	ctx := context.Background()
	defaulted := dbtest.Order(t, client, dbtest.OrderSeed{Status: enums.OrderStatusOutForDelivery, Payable: "450"})
	partial := dbtest.Order(t, client, dbtest.OrderSeed{Status: enums.OrderStatusOutForDelivery, Payable: "450"})
	prepaid := dbtest.Order(t, client, dbtest.OrderSeed{Status: enums.OrderStatusOutForDelivery, PaymentMethod: enums.PaymentMethodPrepaid, Payable: "0"})

	res, err := svc.Transition(ctx, TransitionInput{OrderID: defaulted.ID, To: enums.OrderStatusDelivered, Source: enums.SourceManifest})
	require.NoError(t, err)
	assert.True(t, res.Order.PaymentCollected)
	require.NotNil(t, res.Order.CollectedAmount)
	assert.True(t, res.Order.CollectedAmount.Equal(decimal.NewFromInt(450)))
	assert.NotNil(t, res.Order.DeliveredAt)

	amount := decimal.NewFromInt(300)
	res, err = svc.Transition(ctx, TransitionInput{OrderID: partial.ID, To: enums.OrderStatusDelivered, Source: enums.SourceManifest, CollectedAmount: &amount})
	require.NoError(t, err)
	assert.True(t, res.Order.CollectedAmount.Equal(amount))

	res, err = svc.Transition(ctx, TransitionInput{OrderID: prepaid.ID, To: enums.OrderStatusDelivered, Source: enums.SourceCourierWebhook})
	require.NoError(t, err)
	assert.False(t, res.Order.PaymentCollected)
	assert.Nil(t, res.Order.CollectedAmount)
}

func TestRTOInitiatedKeepsFirstReason(t *testing.T) {
	svc, client := newOrdersService(t, nil)
	ctx := context.Background()
	order := dbtest.Order(t, client, dbtest.OrderSeed{Status: enums.OrderStatusOutForDelivery, StockDeducted: true})

	first, err := svc.Transition(ctx, TransitionInput{OrderID: order.ID, To: enums.OrderStatusRTOInitiated, Source: enums.SourceManifest, Reason: "customer refused"})
	require.NoError(t, err)
	require.NotNil(t, first.Order.RTOInitiatedAt)
	require.NotNil(t, first.Order.RTOReason)

	// Walk back through hold and into RTO again; the first stamps survive.
	require.NoError(t, client.DB().Model(&models.Order{}).Where("id = ?", order.ID).Update("status", enums.OrderStatusHold).Error)
	second, err := svc.Transition(ctx, TransitionInput{OrderID: order.ID, To: enums.OrderStatusRTOInitiated, Source: enums.SourceManifest, Reason: "damaged"})
	require.NoError(t, err)
	assert.Equal(t, "customer refused", *second.Order.RTOReason)
	assert.True(t, first.Order.RTOInitiatedAt.Equal(*second.Order.RTOInitiatedAt))
}

type racingRepository struct {
	Repository
}

func (r racingRepository) WithTx(tx *gorm.DB) Repository {
	return racingRepository{Repository: r.Repository.WithTx(tx)}
}

func (r racingRepository) UpdateStatusConditional(context.Context, uuid.UUID, enums.OrderStatus, map[string]any) (int64, error) {
	return 0, nil
}

func TestTransitionConflictsOnConcurrentChange(t *testing.T) {
	svc, client := newOrdersService(t, func(repo Repository) Repository { return racingRepository{Repository: repo} })
	order := dbtest.Order(t, client, dbtest.OrderSeed{Status: enums.OrderStatusPacked})

	_, err := svc.Transition(context.Background(), TransitionInput{OrderID: order.ID, To: enums.OrderStatusCancelled, Source: enums.SourceOperator})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeConflict, pkgerrors.CodeOf(err))

	var logs int64
	require.NoError(t, client.DB().Model(&models.OrderStatusLog{}).Count(&logs).Error)
	assert.Zero(t, logs)
}

func TestBulkAssignReportsEveryOrder(t *testing.T) {
	svc, client := newOrdersService(t, nil)
	ctx := context.Background()
	rider := uuid.New()
	existingRider := uuid.New()

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		ids = append(ids, dbtest.Order(t, client, dbtest.OrderSeed{Status: enums.OrderStatusPacked, StockDeducted: true}).ID)
	}
	assigned := dbtest.Order(t, client, dbtest.OrderSeed{Status: enums.OrderStatusAssigned, RiderID: &existingRider})
	ids = append(ids[:1], append([]uuid.UUID{assigned.ID}, ids[1:]...)...)

	result := svc.BulkAssign(ctx, rider, ids, uuid.New())
	assert.Equal(t, len(ids), result.Total())
	assert.Len(t, result.Success, 3)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, assigned.ID.String(), result.Failed[0].ID)
	assert.Equal(t, pkgerrors.CodeInvalidTransition, result.Failed[0].Code)

	for _, id := range ids {
		order := dbtest.Reload(t, client, id)
		require.NotNil(t, order.RiderID)
		if id == assigned.ID {
			assert.Equal(t, existingRider, *order.RiderID)
			continue
		}
		assert.Equal(t, enums.OrderStatusAssigned, order.Status)
		assert.Equal(t, rider, *order.RiderID)
	}
}

func TestAssignRequiresRider(t *testing.T) {
	svc, client := newOrdersService(t, nil)
	order := dbtest.Order(t, client, dbtest.OrderSeed{Status: enums.OrderStatusPacked})
	_, err := svc.Assign(context.Background(), order.ID, uuid.Nil, uuid.New())
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
}

func TestHoldResumesOnlyWhereStockStateAllows(t *testing.T) {
	svc, client := newOrdersService(t, nil)
	ctx := context.Background()
	abc := dbtest.Variant(t, client, "ABC", 10)
	order := dbtest.Order(t, client, dbtest.OrderSeed{
		Status: enums.OrderStatusIntake,
		Items:  []dbtest.ItemSeed{{Variant: abc, Quantity: 2}},
	})

	_, err := svc.Transition(ctx, TransitionInput{OrderID: order.ID, To: enums.OrderStatusHold, Source: enums.SourceOperator})
	require.NoError(t, err)
	for _, to := range []enums.OrderStatus{
		enums.OrderStatusRTOInitiated,
		enums.OrderStatusInTransit,
		enums.OrderStatusDelivered,
		enums.OrderStatusHandoverToCourier,
	} {
		_, err = svc.Transition(ctx, TransitionInput{OrderID: order.ID, To: to, Source: enums.SourceCourierWebhook})
		assert.Equal(t, pkgerrors.CodeInvalidTransition, pkgerrors.CodeOf(err), "unpacked order resumed as %s", to)
	}
	assert.Equal(t, int64(10), dbtest.Stock(t, client, abc.ID))

	res, err := svc.Transition(ctx, TransitionInput{OrderID: order.ID, To: enums.OrderStatusPacked, Source: enums.SourceOperator})
	require.NoError(t, err)
	assert.True(t, res.Order.StockDeducted)
	assert.Equal(t, int64(8), dbtest.Stock(t, client, abc.ID))

	_, err = svc.Transition(ctx, TransitionInput{OrderID: order.ID, To: enums.OrderStatusHold, Source: enums.SourceOperator})
	require.NoError(t, err)
	_, err = svc.Transition(ctx, TransitionInput{OrderID: order.ID, To: enums.OrderStatusConverted, Source: enums.SourceOperator})
	assert.Equal(t, pkgerrors.CodeInvalidTransition, pkgerrors.CodeOf(err), "packed order cannot fall back to converted")

	res, err = svc.Transition(ctx, TransitionInput{OrderID: order.ID, To: enums.OrderStatusHandoverToCourier, Source: enums.SourceOperator})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusHandoverToCourier, res.Order.Status)
	assert.Equal(t, int64(8), dbtest.Stock(t, client, abc.ID))
}

func TestDeliveryOutsideManifestCreditsAssignedRider(t *testing.T) {
	client := dbtest.Open(t)
	stockLedger, err := stock.NewService(stock.NewRepository(client.DB()), client, nil, nil)
	require.NoError(t, err)
	riderLedger, err := ledger.NewService(ledger.NewRepository(client.DB()), client, nil)
	require.NoError(t, err)
	svc, err := NewService(NewRepository(client.DB()), client, stockLedger, outbox.NewService(outbox.NewRepository(client.DB()), nil), nil, WithRiderLedger(riderLedger))
	require.NoError(t, err)
	ctx := context.Background()
	rider := uuid.New()

	assigned := dbtest.Order(t, client, dbtest.OrderSeed{Status: enums.OrderStatusOutForDelivery, Payable: "450", RiderID: &rider, StockDeducted: true})
	res, err := svc.Transition(ctx, TransitionInput{OrderID: assigned.ID, To: enums.OrderStatusDelivered, Source: enums.SourceOperator})
	require.NoError(t, err)
	assert.True(t, res.CODCredited)
	balance, err := riderLedger.Balance(ctx, rider)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("450")), balance.String())

	viaManifest := dbtest.Order(t, client, dbtest.OrderSeed{Status: enums.OrderStatusOutForDelivery, Payable: "100", RiderID: &rider, StockDeducted: true})
	res, err = svc.Transition(ctx, TransitionInput{OrderID: viaManifest.ID, To: enums.OrderStatusDelivered, Source: enums.SourceManifest})
	require.NoError(t, err)
	assert.False(t, res.CODCredited, "manifest outcomes credit the rider themselves")

	unassigned := dbtest.Order(t, client, dbtest.OrderSeed{Status: enums.OrderStatusOutForDelivery, Payable: "80", StockDeducted: true})
	res, err = svc.Transition(ctx, TransitionInput{OrderID: unassigned.ID, To: enums.OrderStatusDelivered, Source: enums.SourceCourierWebhook})
	require.NoError(t, err)
	assert.False(t, res.CODCredited)

	balance, err = riderLedger.Balance(ctx, rider)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("450")), balance.String())
}
