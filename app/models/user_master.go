package models

import "time"

// UserMaster is the identity service's user table. This service only reads
// it; writes go through the user-master HTTP API.
type UserMaster struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	UserID      string     `gorm:"type:varchar(70);not null;index:ux_users_master_user_id,unique" json:"user_id"`
	UserTypeID  int        `json:"user_type_id"`
	StatusID    string     `gorm:"type:varchar(70)" json:"status_id"`
	SubstatusID string     `gorm:"type:varchar(70)" json:"substatus_id"`
	StageID     string     `gorm:"type:varchar(70)" json:"stage_id"`
	FirstName   string     `gorm:"type:varchar(150)" json:"first_name"`
	LastName    string     `gorm:"type:varchar(150)" json:"last_name"`
	Email       string     `gorm:"type:varchar(255);index" json:"email"`
	PhoneNumber string     `gorm:"type:varchar(30)" json:"phone_number"`
	HubspotID   *int64     `json:"hubspot_id,omitempty"`
	UpdateDate  *time.Time `json:"update_date,omitempty"`
}

func (UserMaster) TableName() string {
	return "users_master"
}

// HuntyProfile is the onboarding profile of a candidate. Only its presence
// matters here.
type HuntyProfile struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	UserID string `gorm:"type:varchar(70);index" json:"user_id"`
}

func (HuntyProfile) TableName() string {
	return "huntys_profile"
}
