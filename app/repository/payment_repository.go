package repository

import (
	"context"

	"github.com/huntyio/membership/app/models"
	"gorm.io/gorm"
)

// paymentRepository implements the PaymentRepository interface
type paymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository creates a new payment repository instance
func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

// Create inserts a payment. A duplicate processor payment id fails on the
// unique index.
func (r *paymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

// GetByTreliPaymentID returns nil without error when the payment is unknown.
func (r *paymentRepository) GetByTreliPaymentID(ctx context.Context, treliPaymentID int64) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).Where("treli_payment_id = ?", treliPaymentID).First(&payment).Error
	return firstOrNil(&payment, err)
}

// ListByUserID returns a user's payments, newest first.
func (r *paymentRepository) ListByUserID(ctx context.Context, userID string) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("payment_date DESC").
		Find(&payments).Error
	return payments, err
}
