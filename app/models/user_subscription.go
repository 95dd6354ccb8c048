package models

import "time"

// SubscriptionStatusCanceled is written when the processor cancels a subscription.
const SubscriptionStatusCanceled = "subscription canceled"

// UserSubscription holds the current subscription status of a user.
// There is at most one row per user.
type UserSubscription struct {
	UserSubscriptionID      uint      `gorm:"primaryKey;autoIncrement" json:"user_subscription_id"`
	UserID                  string    `gorm:"type:varchar(70);not null;index:ux_users_subscriptions_user_id,unique" json:"user_id"`
	PaymentID               uint      `gorm:"index" json:"payment_id"`
	UsersSubscriptionStatus string    `gorm:"type:varchar(100);not null;default:''" json:"users_subscription_status"`
	CreatedDate             time.Time `json:"created_date"`
	UpdateDate              time.Time `json:"update_date"`
}

func (UserSubscription) TableName() string {
	return "users_subscriptions"
}

// HuntySubscriptionStatus is the read model over the latest recurring
// approved payment of a user and their subscription row.
type HuntySubscriptionStatus struct {
	UserID                  string    `json:"user_id"`
	UsersSubscriptionStatus string    `json:"users_subscription_status"`
	NextPaymentDate         time.Time `json:"next_payment_date"`
	TypeSubscription        string    `json:"type_subscription"`
}
