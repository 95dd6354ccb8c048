package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/huntyio/membership/app/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Payment{},
		&models.UserSubscription{},
		&models.UserMaster{},
		&models.HuntyProfile{},
		&models.TreliWebhookEvent{},
	))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func TestPaymentRepository(t *testing.T) {
	db := newTestDB(t)
	repo := NewPaymentRepository(db)
	ctx := context.Background()
	at := time.Date(2023, 8, 1, 13, 59, 50, 0, time.UTC)

	missing, err := repo.GetByTreliPaymentID(ctx, 125068)
	require.NoError(t, err)
	assert.Nil(t, missing)

	p := &models.Payment{TreliPaymentID: 125068, UserID: "u-1", ItemName: "Hunty Pro Mensual", PaymentDate: at, NextPaymentDate: at.AddDate(0, 1, 0)}
	require.NoError(t, repo.Create(ctx, p))
	assert.NotZero(t, p.PaymentID)

	dup := &models.Payment{TreliPaymentID: 125068, UserID: "u-1", ItemName: "other", PaymentDate: at}
	assert.Error(t, repo.Create(ctx, dup))

	got, err := repo.GetByTreliPaymentID(ctx, 125068)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Hunty Pro Mensual", got.ItemName)

	later := &models.Payment{TreliPaymentID: 125069, UserID: "u-1", PaymentDate: at.AddDate(0, 1, 0)}
	require.NoError(t, repo.Create(ctx, later))
	list, err := repo.ListByUserID(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, int64(125069), list[0].TreliPaymentID)
}

func TestSubscriptionUpsertKeepsOneRowPerUser(t *testing.T) {
	db := newTestDB(t)
	repo := NewSubscriptionRepository(db)
	ctx := context.Background()
	first := time.Date(2023, 8, 1, 0, 0, 0, 0, time.UTC)
	second := first.AddDate(0, 1, 0)

	sub := &models.UserSubscription{UserID: "u-1", PaymentID: 1, UsersSubscriptionStatus: "Aprobado", CreatedDate: first, UpdateDate: first}
	require.NoError(t, repo.Upsert(ctx, sub))
	assert.NotZero(t, sub.UserSubscriptionID)

	again := &models.UserSubscription{UserID: "u-1", PaymentID: 2, UsersSubscriptionStatus: "Rechazado", CreatedDate: second, UpdateDate: second}
	require.NoError(t, repo.Upsert(ctx, again))

	var count int64
	require.NoError(t, db.Model(&models.UserSubscription{}).Where("user_id = ?", "u-1").Count(&count).Error)
	assert.Equal(t, int64(1), count)

	stored, err := repo.GetByUserID(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, sub.UserSubscriptionID, stored.UserSubscriptionID)
	assert.Equal(t, uint(2), stored.PaymentID)
	assert.Equal(t, "Rechazado", stored.UsersSubscriptionStatus)
	assert.True(t, stored.CreatedDate.Equal(second), "created_date follows the latest event")
	assert.True(t, stored.UpdateDate.Equal(second))
}

func TestSubscriptionUpdateStatusByUserID(t *testing.T) {
	db := newTestDB(t)
	repo := NewSubscriptionRepository(db)
	ctx := context.Background()
	at := time.Date(2023, 9, 1, 0, 0, 0, 0, time.UTC)

	_, err := repo.UpdateStatusByUserID(ctx, "ghost", models.SubscriptionStatusCanceled, at)
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, repo.Create(ctx, &models.UserSubscription{UserID: "u-1", UsersSubscriptionStatus: "Aprobado"}))
	updated, err := repo.UpdateStatusByUserID(ctx, "u-1", models.SubscriptionStatusCanceled, at)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusCanceled, updated.UsersSubscriptionStatus)

	stored, err := repo.GetByUserID(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusCanceled, stored.UsersSubscriptionStatus)
	assert.True(t, stored.UpdateDate.Equal(at))
}

func TestGetHuntyStatus(t *testing.T) {
	db := newTestDB(t)
	subs := NewSubscriptionRepository(db)
	payments := NewPaymentRepository(db)
	ctx := context.Background()
	base := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

	none, err := subs.GetHuntyStatus(ctx, "u-1")
	require.NoError(t, err)
	assert.Nil(t, none)

	require.NoError(t, payments.Create(ctx, &models.Payment{TreliPaymentID: 1, UserID: "u-1", ItemName: "Hunty Pro Mensual", PaymentStatus: models.PaymentStatusApproved, PaymentType: "Suscripción", PaymentDate: base, NextPaymentDate: base.AddDate(0, 1, 0)}))
	require.NoError(t, payments.Create(ctx, &models.Payment{TreliPaymentID: 2, UserID: "u-1", ItemName: "Hunty Pro Trimestral", PaymentStatus: models.PaymentStatusApproved, PaymentType: "Suscripción", PaymentDate: base.AddDate(0, 2, 0), NextPaymentDate: base.AddDate(0, 5, 0)}))
	require.NoError(t, payments.Create(ctx, &models.Payment{TreliPaymentID: 3, UserID: "u-1", ItemName: "Hunty Pro Semestral", PaymentStatus: models.PaymentStatusApproved, PaymentType: models.PaymentTypeOneOff, PaymentDate: base.AddDate(0, 3, 0)}))
	require.NoError(t, payments.Create(ctx, &models.Payment{TreliPaymentID: 4, UserID: "u-1", ItemName: "Hunty Pro Semestral", PaymentStatus: models.PaymentStatusRejected, PaymentType: "Suscripción", PaymentDate: base.AddDate(0, 4, 0)}))

	require.NoError(t, subs.Create(ctx, &models.UserSubscription{UserID: "u-1", UsersSubscriptionStatus: models.PaymentStatusApproved}))
	got, err := subs.GetHuntyStatus(ctx, "u-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Hunty Pro Trimestral", got.TypeSubscription)
	assert.True(t, got.NextPaymentDate.Equal(base.AddDate(0, 5, 0)))

	_, err = subs.UpdateStatusByUserID(ctx, "u-1", models.PaymentStatusRejected, base)
	require.NoError(t, err)
	rejected, err := subs.GetHuntyStatus(ctx, "u-1")
	require.NoError(t, err)
	assert.Nil(t, rejected)
}

func TestSubscriptionType(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Hunty Pro Mensual", "Hunty Pro Mensual"},
		{"Hunty Pro Trimestral UP.", "Hunty Pro Trimestral"},
		{"HUNTY PRO SEMESTRAL", "Hunty Pro Semestral"},
		{"Hunty Pro Anual", ""},
	}
	for _, tt := range tests {
		if got := SubscriptionType(tt.in); got != tt.want {
			t.Fatalf("SubscriptionType(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestUserMasterAndProfile(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	users := NewUserMasterRepository(db)
	profiles := NewProfileRepository(db)

	missing, err := users.GetByEmail(ctx, "nobody@x.com")
	require.NoError(t, err)
	assert.Nil(t, missing)

	empty, err := users.GetByUserID(ctx, " ")
	require.NoError(t, err)
	assert.Nil(t, empty)

	require.NoError(t, db.Create(&models.UserMaster{UserID: "u-1", Email: "ana@x.com", FirstName: "Ana"}).Error)
	got, err := users.GetByEmail(ctx, " ana@x.com ")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "u-1", got.UserID)

	exists, err := profiles.ExistsForUser(ctx, "u-1")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, db.Create(&models.HuntyProfile{UserID: "u-1"}).Error)
	exists, err = profiles.ExistsForUser(ctx, "u-1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestWebhookEventRepository(t *testing.T) {
	db := newTestDB(t)
	repo := NewWebhookEventRepository(db)
	ctx := context.Background()

	created, stored, err := repo.CreateIfNotExists(ctx, &models.TreliWebhookEvent{EventKey: "k1", EventType: "payment_approved", PayloadJSON: "{}"})
	require.NoError(t, err)
	assert.True(t, created)
	require.NotNil(t, stored)

	created, again, err := repo.CreateIfNotExists(ctx, &models.TreliWebhookEvent{EventKey: "k1", EventType: "payment_approved", PayloadJSON: "{}"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, stored.ID, again.ID)

	require.NoError(t, repo.MarkProcessed(ctx, stored.ID, "boom"))
	var reloaded models.TreliWebhookEvent
	require.NoError(t, db.First(&reloaded, stored.ID).Error)
	assert.NotNil(t, reloaded.ProcessedAt)
	assert.Equal(t, "boom", reloaded.ProcessingError)
}

func TestStoreSession(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	err := store.Session(ctx, func(repos *Repositories) error {
		return repos.Payment.Create(ctx, &models.Payment{TreliPaymentID: 9, UserID: "u-9"})
	})
	require.NoError(t, err)

	sentinel := errors.New("stop")
	err = store.Session(ctx, func(repos *Repositories) error {
		got, err := repos.Payment.GetByTreliPaymentID(ctx, 9)
		require.NoError(t, err)
		require.NotNil(t, got)
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
}
