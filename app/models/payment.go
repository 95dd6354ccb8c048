package models

import "time"

const (
	PaymentStatusApproved = "Aprobado"
	PaymentStatusRejected = "Rechazado"

	// PaymentTypeOneOff marks single purchases that do not renew.
	PaymentTypeOneOff = "Pago único"
)

// Payment is one processor payment. Rows are append-only: a processor
// payment id is stored at most once.
type Payment struct {
	PaymentID             uint      `gorm:"primaryKey;autoIncrement" json:"payment_id"`
	TreliPaymentID        int64     `gorm:"not null;index:ux_payments_treli_payment_id,unique" json:"treli_payment_id"`
	ItemName              string    `gorm:"type:varchar(255);not null;default:''" json:"item_name"`
	UserID                string    `gorm:"type:varchar(70);not null;index" json:"user_id"`
	PaymentType           string    `gorm:"type:varchar(100)" json:"payment_type"`
	PaymentStatus         string    `gorm:"type:varchar(50);index" json:"payment_status"`
	PaymentMethod         string    `gorm:"type:varchar(100)" json:"payment_method"`
	PaymentCurrency       string    `gorm:"type:varchar(10)" json:"payment_currency"`
	SubtotalPaymentAmount string    `gorm:"type:varchar(50)" json:"subtotal_payment_amount"`
	DiscountsAmount       string    `gorm:"type:varchar(50)" json:"discounts_amount"`
	TotalPaymentAmount    string    `gorm:"type:varchar(50)" json:"total_payment_amount"`
	NextPaymentDate       time.Time `json:"next_payment_date"`
	PaymentDate           time.Time `gorm:"index" json:"payment_date"`
	CreatedDate           time.Time `json:"created_date"`
	UpdateDate            time.Time `json:"update_date"`
}

func (Payment) TableName() string {
	return "payments"
}
