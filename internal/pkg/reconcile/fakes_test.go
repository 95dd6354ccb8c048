package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/huntyio/membership/app/models"
	"github.com/huntyio/membership/app/repository"
	"github.com/huntyio/membership/internal/pkg/hubspot"
	"github.com/huntyio/membership/internal/pkg/status"
	"github.com/huntyio/membership/internal/pkg/thinkific"
	"github.com/huntyio/membership/internal/pkg/usermaster"
)

var errUpstream = errors.New("upstream unavailable")

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Payment{},
		&models.UserSubscription{},
		&models.UserMaster{},
		&models.HuntyProfile{},
	))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

type statusUpdate struct {
	UserID string
	Fields status.Fields
}

type fakeIdentity struct {
	mu          sync.Mutex
	nextID      string
	registered  []usermaster.Registration
	updates     []statusUpdate
	notified    []string
	failUpdate  int // fail the n-th update (1-based), 0 never
	failNotify  bool
	failRegister bool
}

func (f *fakeIdentity) RegisterUser(_ context.Context, reg usermaster.Registration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failRegister {
		return "", errUpstream
	}
	f.registered = append(f.registered, reg)
	return f.nextID, nil
}

func (f *fakeIdentity) UpdateStatus(_ context.Context, userID string, fields status.Fields) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, statusUpdate{UserID: userID, Fields: fields})
	if f.failUpdate == len(f.updates) {
		return errUpstream
	}
	return nil
}

func (f *fakeIdentity) NotifyRealtime(_ context.Context, userID string, _ usermaster.RealtimeFlags) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notified = append(f.notified, userID)
	if f.failNotify {
		return errUpstream
	}
	return nil
}

type fakeHistory struct {
	entries []usermaster.HistoryEntry
	fail    bool
}

func (f *fakeHistory) RecordHistory(_ context.Context, entry usermaster.HistoryEntry) error {
	if f.fail {
		return errUpstream
	}
	f.entries = append(f.entries, entry)
	return nil
}

type crmCall struct {
	Email string
	Props hubspot.Properties
}

type fakeCRM struct {
	calls []crmCall
	fail  bool
}

func (f *fakeCRM) UpsertContact(_ context.Context, email string, props hubspot.Properties) (int64, error) {
	f.calls = append(f.calls, crmCall{Email: email, Props: props})
	if f.fail {
		return 0, &hubspot.StatusError{Op: "lookup", Code: 500}
	}
	return 901, nil
}

type fakeEnrollment struct {
	emails []string
	fail   bool
}

func (f *fakeEnrollment) EnrollUserInCourses(_ context.Context, _, _, email string) (thinkific.Outcome, error) {
	f.emails = append(f.emails, email)
	if f.fail {
		return "", errUpstream
	}
	return thinkific.OutcomeEnrolled, nil
}

type fakePublisher struct {
	topics []string
	msgs   []interface{}
	fail   bool
}

func (f *fakePublisher) Publish(_ context.Context, topic string, v any) error {
	if f.fail {
		return errUpstream
	}
	f.topics = append(f.topics, topic)
	f.msgs = append(f.msgs, v)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

type harness struct {
	db         *gorm.DB
	identity   *fakeIdentity
	history    *fakeHistory
	crm        *fakeCRM
	enrollment *fakeEnrollment
	publisher  *fakePublisher
	engine     *Engine
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{
		db:         newTestDB(t),
		identity:   &fakeIdentity{nextID: "u-new"},
		history:    &fakeHistory{},
		crm:        &fakeCRM{},
		enrollment: &fakeEnrollment{},
		publisher:  &fakePublisher{},
	}
	h.engine = NewEngine(repository.NewStore(h.db), h.identity, h.history, h.crm, h.enrollment, h.publisher, opts)
	return h
}

func (h *harness) seedUser(t *testing.T, userID, email string, tr status.Transition, withProfile bool) {
	t.Helper()
	f := tr.Fields()
	require.NoError(t, h.db.Create(&models.UserMaster{
		UserID:      userID,
		Email:       email,
		FirstName:   "Ana",
		LastName:    "Diaz",
		StatusID:    f.StatusID,
		SubstatusID: f.SubStatusID,
		StageID:     f.StageID,
	}).Error)
	if withProfile {
		require.NoError(t, h.db.Create(&models.HuntyProfile{UserID: userID}).Error)
	}
}
