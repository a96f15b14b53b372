package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-fulfillment/internal/ledger"
	"github.com/angelmondragon/packfinderz-fulfillment/internal/stock"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db/models"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/outbox"
)

// Repository defines persistence operations for orders and their audit trail.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindByIDs(ctx context.Context, orderIDs []uuid.UUID) ([]models.Order, error)
	FindByTrackingID(ctx context.Context, trackingID string) (*models.Order, error)
	FindByReference(ctx context.Context, reference string) (*models.Order, error)
	FindByScanValue(ctx context.Context, value string, statuses []enums.OrderStatus) ([]models.Order, error)
	FindItemsByIDs(ctx context.Context, itemIDs []uuid.UUID) ([]models.OrderItem, error)
	ListCourierOrdersForSync(ctx context.Context, statuses []enums.OrderStatus, staleBefore time.Time, limit int) ([]models.Order, error)
	// UpdateStatusConditional applies updates only while the order is still in from.
	UpdateStatusConditional(ctx context.Context, orderID uuid.UUID, from enums.OrderStatus, updates map[string]any) (int64, error)
	UpdateFields(ctx context.Context, orderID uuid.UUID, updates map[string]any) error
	UpdateItem(ctx context.Context, itemID uuid.UUID, updates map[string]any) error
	CreateStatusLog(ctx context.Context, log *models.OrderStatusLog) error
	ListStatusLogs(ctx context.Context, orderID uuid.UUID) ([]models.OrderStatusLog, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type stockDeductor interface {
	DeductBatch(ctx context.Context, tx *gorm.DB, lines []stock.Line, reason enums.StockMovementReason, actor *uuid.UUID) ([]stock.MovementResult, error)
}

type codLedger interface {
	Credit(ctx context.Context, tx *gorm.DB, entry ledger.Entry) (*ledger.EntryResult, error)
}
