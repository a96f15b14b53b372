package courierwebhook

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db/models"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
)

// DeadLetterRepository persists courier webhooks whose processing failed.
type DeadLetterRepository interface {
	Create(ctx context.Context, letter *models.WebhookDeadLetter) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.WebhookDeadLetter, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]models.WebhookDeadLetter, error)
	List(ctx context.Context, status enums.DeadLetterStatus, limit int) ([]models.WebhookDeadLetter, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
}

type deadLetterRepository struct {
	db *gorm.DB
}

func NewDeadLetterRepository(db *gorm.DB) DeadLetterRepository {
	return &deadLetterRepository{db: db}
}

func (r *deadLetterRepository) Create(ctx context.Context, letter *models.WebhookDeadLetter) error {
	return r.db.WithContext(ctx).Create(letter).Error
}

func (r *deadLetterRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.WebhookDeadLetter, error) {
	var letter models.WebhookDeadLetter
	if err := r.db.WithContext(ctx).First(&letter, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &letter, nil
}

// ListDue returns pending letters whose next attempt is due, oldest first.
func (r *deadLetterRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]models.WebhookDeadLetter, error) {
	var letters []models.WebhookDeadLetter
	query := r.db.WithContext(ctx).
		Where("status = ?", enums.DeadLetterPending).
		Where("next_attempt_at IS NOT NULL AND next_attempt_at <= ?", now).
		Order("next_attempt_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&letters).Error; err != nil {
		return nil, err
	}
	return letters, nil
}

func (r *deadLetterRepository) List(ctx context.Context, status enums.DeadLetterStatus, limit int) ([]models.WebhookDeadLetter, error) {
	var letters []models.WebhookDeadLetter
	query := r.db.WithContext(ctx).Order("created_at DESC")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&letters).Error; err != nil {
		return nil, err
	}
	return letters, nil
}

func (r *deadLetterRepository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.WebhookDeadLetter{}).
		Where("id = ?", id).
		Updates(updates).Error
}
