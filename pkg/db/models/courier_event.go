package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
)

// CourierEvent is the history of every inbound or pulled courier status.
type CourierEvent struct {
	ID               uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	OrderID          uuid.UUID                `gorm:"column:order_id;type:uuid;not null;index"`
	Provider         enums.LogisticsProvider  `gorm:"column:provider;type:text;not null"`
	TrackingID       string                   `gorm:"column:tracking_id;type:text;not null"`
	RawStatus        string                   `gorm:"column:raw_status;type:text;not null"`
	NormalizedStatus string                   `gorm:"column:normalized_status;type:text;not null"`
	MappedStatus     *enums.OrderStatus       `gorm:"column:mapped_status;type:text"`
	Remarks          *string                  `gorm:"column:remarks;type:text"`
	Location         *string                  `gorm:"column:location;type:text"`
	EventTime        *time.Time               `gorm:"column:event_time"`
	Source           enums.CourierEventSource `gorm:"column:source;type:text;not null"`
	Outcome          string                   `gorm:"column:outcome;type:text;not null"`
	PayloadHash      *string                  `gorm:"column:payload_hash;type:text"`
	CreatedAt        time.Time                `gorm:"column:created_at;autoCreateTime"`
}

func (e *CourierEvent) BeforeCreate(*gorm.DB) error {
	ensureID(&e.ID)
	return nil
}

// WebhookDeadLetter keeps a courier payload whose processing failed so it can be replayed.
type WebhookDeadLetter struct {
	ID            uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	Provider      string                 `gorm:"column:provider;type:text;not null"`
	Headers       json.RawMessage        `gorm:"column:headers;type:jsonb"`
	Payload       []byte                 `gorm:"column:payload;type:bytea;not null"`
	PayloadHash   string                 `gorm:"column:payload_hash;type:text;not null"`
	Reason        enums.DeadLetterReason `gorm:"column:reason;type:text;not null"`
	LastError     *string                `gorm:"column:last_error;type:text"`
	AttemptCount  int                    `gorm:"column:attempt_count;not null;default:0"`
	Status        enums.DeadLetterStatus `gorm:"column:status;type:text;not null;index"`
	NextAttemptAt *time.Time             `gorm:"column:next_attempt_at"`
	LastAttemptAt *time.Time             `gorm:"column:last_attempt_at"`
	CreatedAt     time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

func (d *WebhookDeadLetter) BeforeCreate(*gorm.DB) error {
	ensureID(&d.ID)
	return nil
}
