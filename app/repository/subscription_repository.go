package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/huntyio/membership/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// subscriptionRepository implements the SubscriptionRepository interface
type subscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository creates a new subscription repository instance
func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

// GetByUserID returns nil without error when the user has no subscription row.
func (r *subscriptionRepository) GetByUserID(ctx context.Context, userID string) (*models.UserSubscription, error) {
	var sub models.UserSubscription
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&sub).Error
	return firstOrNil(&sub, err)
}

func (r *subscriptionRepository) Create(ctx context.Context, sub *models.UserSubscription) error {
	return r.db.WithContext(ctx).Create(sub).Error
}

// Upsert creates the user's row or rewrites it in place with the event's dates.
func (r *subscriptionRepository) Upsert(ctx context.Context, sub *models.UserSubscription) error {
	db := r.db.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "user_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"payment_id",
			"users_subscription_status",
			"created_date",
			"update_date",
		}),
	}).Create(sub).Error; err != nil {
		return err
	}

	// Reload so ID reflects the stored row.
	var stored models.UserSubscription
	if err := db.Where("user_id = ?", sub.UserID).First(&stored).Error; err != nil {
		return err
	}
	*sub = stored
	return nil
}

// UpdateStatusByUserID updates an existing row; ErrNotFound when absent.
func (r *subscriptionRepository) UpdateStatusByUserID(ctx context.Context, userID, status string, updatedAt time.Time) (*models.UserSubscription, error) {
	sub, err := r.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, ErrNotFound
	}
	updates := map[string]interface{}{
		"users_subscription_status": status,
		"update_date":               updatedAt,
	}
	if err := r.db.WithContext(ctx).Model(sub).Updates(updates).Error; err != nil {
		return nil, err
	}
	sub.UsersSubscriptionStatus = status
	sub.UpdateDate = updatedAt
	return sub, nil
}

// GetHuntyStatus joins the user's subscription row with their latest
// approved recurring payment. Nil without error when either is missing or
// the subscription was rejected.
func (r *subscriptionRepository) GetHuntyStatus(ctx context.Context, userID string) (*models.HuntySubscriptionStatus, error) {
	sub, err := r.GetByUserID(ctx, userID)
	if err != nil || sub == nil {
		return nil, err
	}
	if sub.UsersSubscriptionStatus == models.PaymentStatusRejected {
		return nil, nil
	}

	var payment models.Payment
	err = r.db.WithContext(ctx).
		Where("user_id = ? AND payment_status = ? AND payment_type <> ?", userID, models.PaymentStatusApproved, models.PaymentTypeOneOff).
		Order("payment_date DESC").
		First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &models.HuntySubscriptionStatus{
		UserID:                  userID,
		UsersSubscriptionStatus: sub.UsersSubscriptionStatus,
		NextPaymentDate:         payment.NextPaymentDate,
		TypeSubscription:        SubscriptionType(payment.ItemName),
	}, nil
}

// SubscriptionType normalizes a product name to its plan family.
func SubscriptionType(itemName string) string {
	name := strings.ToLower(itemName)
	switch {
	case strings.Contains(name, "mensual"):
		return "Hunty Pro Mensual"
	case strings.Contains(name, "trimestral"):
		return "Hunty Pro Trimestral"
	case strings.Contains(name, "semestral"):
		return "Hunty Pro Semestral"
	default:
		return ""
	}
}
