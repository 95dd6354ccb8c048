package repository

import (
	"context"
	"time"

	"github.com/huntyio/membership/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type webhookEventRepository struct {
	db *gorm.DB
}

// NewWebhookEventRepository creates a webhook event log repository
func NewWebhookEventRepository(db *gorm.DB) WebhookEventRepository {
	return &webhookEventRepository{db: db}
}

// CreateIfNotExists stores the event unless its key was seen before. It
// reports whether a new row was created and returns the stored row.
func (r *webhookEventRepository) CreateIfNotExists(ctx context.Context, event *models.TreliWebhookEvent) (bool, *models.TreliWebhookEvent, error) {
	db := r.db.WithContext(ctx)
	tx := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "event_key"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.TreliWebhookEvent
	if err := db.Where("event_key = ?", event.EventKey).First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *webhookEventRepository) MarkProcessed(ctx context.Context, id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.WithContext(ctx).Model(&models.TreliWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}
