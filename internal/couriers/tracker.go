package couriers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-fulfillment/internal/orders"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db/models"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-fulfillment/pkg/errors"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/logger"
)

// Outcome classifies what a courier status did to an order.
type Outcome string

const (
	OutcomeApplied       Outcome = "applied"
	OutcomeUnchanged     Outcome = "unchanged"
	OutcomeUnmapped      Outcome = "unmapped"
	OutcomeNotApplicable Outcome = "not_applicable"
)

// ApplyResult is returned by Tracker.Apply.
type ApplyResult struct {
	Outcome    Outcome                  `json:"outcome"`
	Order      *models.Order            `json:"-"`
	Transition *orders.TransitionResult `json:"-"`
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type transitioner interface {
	TransitionWithTx(ctx context.Context, tx *gorm.DB, input orders.TransitionInput) (*orders.TransitionResult, error)
}

// Tracker records courier statuses against orders and moves mapped ones
// through the order state machine.
type Tracker struct {
	tx          txRunner
	orders      orders.Repository
	transitions transitioner
	events      EventRepository
	logg        *logger.Logger
	now         func() time.Time
}

func NewTracker(tx txRunner, orderRepo orders.Repository, transitions transitioner, events EventRepository, logg *logger.Logger) (*Tracker, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if orderRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if transitions == nil {
		return nil, fmt.Errorf("order transitioner required")
	}
	if events == nil {
		return nil, fmt.Errorf("courier event repository required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Tracker{
		tx:          tx,
		orders:      orderRepo,
		transitions: transitions,
		events:      events,
		logg:        logg,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

// Apply persists event on order and, when the status is mapped, transitions
// the order. A transition the graph does not allow is recorded as
// OutcomeNotApplicable instead of failing.
func (t *Tracker) Apply(ctx context.Context, provider enums.LogisticsProvider, order *models.Order, event *CanonicalEvent, source enums.CourierEventSource) (*ApplyResult, error) {
	if order == nil || event == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order and event are required")
	}
	transitionSource := enums.SourceCourierWebhook
	if source == enums.CourierEventSync {
		transitionSource = enums.SourceCourierSync
	}

	result := &ApplyResult{Outcome: OutcomeUnmapped}
	err := t.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := t.orders.WithTx(tx)
		now := t.now()
		if err := repo.UpdateFields(ctx, order.ID, t.logisticsFields(event, now)); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update logistics status")
		}

		if event.Mapped && event.MappedStatus.IsValid() {
			res, err := t.transitions.TransitionWithTx(ctx, tx, orders.TransitionInput{
				OrderID: order.ID,
				To:      event.MappedStatus,
				Actor:   uuid.Nil,
				Reason:  event.Remarks,
				Source:  transitionSource,
			})
			switch {
			case err == nil && res.Changed:
				result.Outcome = OutcomeApplied
				result.Transition = res
			case err == nil:
				result.Outcome = OutcomeUnchanged
				result.Transition = res
			case pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition):
				result.Outcome = OutcomeNotApplicable
			default:
				return err
			}
		}

		if err := t.events.WithTx(tx).Create(ctx, t.courierEvent(provider, order, event, source, result.Outcome)); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record courier event")
		}

		updated, err := repo.FindByID(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
		}
		result.Order = updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	fields := t.logg.WithFields(ctx, map[string]any{
		"order_id":          order.ID.String(),
		"provider":          provider,
		"tracking_id":       event.TrackingID,
		"raw_status":        event.RawStatus,
		"normalized_status": event.NormalizedStatus,
		"outcome":           result.Outcome,
		"source":            source,
	})
	switch result.Outcome {
	case OutcomeUnmapped:
		t.logg.Warn(fields, "courier.status_unmapped")
	case OutcomeNotApplicable:
		t.logg.Info(t.logg.WithField(fields, "mapped_status", event.MappedStatus), "courier.transition_not_applicable")
	default:
		t.logg.Info(fields, "courier.status_applied")
	}
	return result, nil
}

func (t *Tracker) logisticsFields(event *CanonicalEvent, now time.Time) map[string]any {
	fields := map[string]any{
		"logistics_status_raw": event.RawStatus,
		"logistics_updated_at": now,
	}
	if event.Mapped {
		fields["logistics_status"] = event.MappedStatus
	}
	if remarks := strings.TrimSpace(event.Remarks); remarks != "" {
		fields["logistics_remarks"] = remarks
	}
	if location := strings.TrimSpace(event.Location); location != "" {
		fields["logistics_location"] = location
	}
	return fields
}

func (t *Tracker) courierEvent(provider enums.LogisticsProvider, order *models.Order, event *CanonicalEvent, source enums.CourierEventSource, outcome Outcome) *models.CourierEvent {
	row := &models.CourierEvent{
		OrderID:          order.ID,
		Provider:         provider,
		TrackingID:       event.TrackingID,
		RawStatus:        event.RawStatus,
		NormalizedStatus: event.NormalizedStatus,
		Remarks:          nonEmpty(event.Remarks),
		Location:         nonEmpty(event.Location),
		EventTime:        event.Timestamp,
		Source:           source,
		Outcome:          string(outcome),
		PayloadHash:      nonEmpty(event.PayloadHash),
	}
	if event.Mapped {
		mapped := event.MappedStatus
		row.MappedStatus = &mapped
	}
	return row
}

func nonEmpty(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
