package models

import "time"

const (
	PipelinePayment      = "payment"
	PipelineSubscription = "subscription"
)

// TreliWebhookEvent stores webhook deliveries with deduplication metadata.
type TreliWebhookEvent struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	EventKey        string     `gorm:"type:varchar(80);not null;index:ux_treli_webhook_events_event_key,unique" json:"event_key"`
	EventType       string     `gorm:"type:varchar(100);not null;index" json:"event_type"`
	Pipeline        string     `gorm:"type:varchar(20);not null;default:''" json:"pipeline"`
	PayloadJSON     string     `gorm:"type:text;not null" json:"payload_json"`
	SignatureValid  bool       `gorm:"default:false" json:"signature_valid"`
	ProcessedAt     *time.Time `gorm:"default:null" json:"processed_at,omitempty"`
	ProcessingError string     `gorm:"type:text" json:"processing_error"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (TreliWebhookEvent) TableName() string {
	return "treli_webhook_events"
}
