package repository

import (
	"context"
	"errors"
	"time"

	"github.com/huntyio/membership/app/models"
	"gorm.io/gorm"
)

// ErrNotFound is returned by reads and updates whose target row is required.
var ErrNotFound = errors.New("record not found")

// PaymentRepository defines the interface for payment-related database operations
type PaymentRepository interface {
	Create(ctx context.Context, payment *models.Payment) error
	GetByTreliPaymentID(ctx context.Context, treliPaymentID int64) (*models.Payment, error)
	ListByUserID(ctx context.Context, userID string) ([]models.Payment, error)
}

// SubscriptionRepository defines the interface for users_subscriptions operations
type SubscriptionRepository interface {
	GetByUserID(ctx context.Context, userID string) (*models.UserSubscription, error)
	Create(ctx context.Context, sub *models.UserSubscription) error
	Upsert(ctx context.Context, sub *models.UserSubscription) error
	UpdateStatusByUserID(ctx context.Context, userID, status string, updatedAt time.Time) (*models.UserSubscription, error)
	GetHuntyStatus(ctx context.Context, userID string) (*models.HuntySubscriptionStatus, error)
}

// UserMasterRepository reads identity records owned by the user-master service
type UserMasterRepository interface {
	GetByEmail(ctx context.Context, email string) (*models.UserMaster, error)
	GetByUserID(ctx context.Context, userID string) (*models.UserMaster, error)
}

// ProfileRepository reads onboarding profiles
type ProfileRepository interface {
	ExistsForUser(ctx context.Context, userID string) (bool, error)
}

// WebhookEventRepository persists webhook deliveries idempotently
type WebhookEventRepository interface {
	CreateIfNotExists(ctx context.Context, event *models.TreliWebhookEvent) (bool, *models.TreliWebhookEvent, error)
	MarkProcessed(ctx context.Context, id uint, processingError string) error
}

// Repositories holds all repository instances
type Repositories struct {
	Payment      PaymentRepository
	Subscription SubscriptionRepository
	UserMaster   UserMasterRepository
	Profile      ProfileRepository
	WebhookEvent WebhookEventRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Payment:      NewPaymentRepository(db),
		Subscription: NewSubscriptionRepository(db),
		UserMaster:   NewUserMasterRepository(db),
		Profile:      NewProfileRepository(db),
		WebhookEvent: NewWebhookEventRepository(db),
	}
}

// firstOrNil maps gorm.ErrRecordNotFound to a nil result without error.
func firstOrNil[T any](out *T, err error) (*T, error) {
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return out, nil
}
