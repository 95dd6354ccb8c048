package repository

import (
	"context"
	"strings"

	"github.com/huntyio/membership/app/models"
	"gorm.io/gorm"
)

// userMasterRepository implements the UserMasterRepository interface
type userMasterRepository struct {
	db *gorm.DB
}

// NewUserMasterRepository creates a new user master repository instance
func NewUserMasterRepository(db *gorm.DB) UserMasterRepository {
	return &userMasterRepository{db: db}
}

// GetByEmail retrieves a user by email; nil without error when not found.
func (r *userMasterRepository) GetByEmail(ctx context.Context, email string) (*models.UserMaster, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, nil
	}
	var user models.UserMaster
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	return firstOrNil(&user, err)
}

// GetByUserID retrieves a user by user id; nil without error when not found.
func (r *userMasterRepository) GetByUserID(ctx context.Context, userID string) (*models.UserMaster, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, nil
	}
	var user models.UserMaster
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&user).Error
	return firstOrNil(&user, err)
}

// profileRepository implements the ProfileRepository interface
type profileRepository struct {
	db *gorm.DB
}

// NewProfileRepository creates a new profile repository instance
func NewProfileRepository(db *gorm.DB) ProfileRepository {
	return &profileRepository{db: db}
}

func (r *profileRepository) ExistsForUser(ctx context.Context, userID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.HuntyProfile{}).Where("user_id = ?", userID).Limit(1).Count(&count).Error
	return count > 0, err
}
