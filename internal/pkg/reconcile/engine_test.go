package reconcile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huntyio/membership/app/models"
	"github.com/huntyio/membership/app/repository"
	"github.com/huntyio/membership/internal/pkg/events"
	"github.com/huntyio/membership/internal/pkg/status"
	"github.com/huntyio/membership/internal/pkg/treli"
)

func loadEvent(t *testing.T, name string) *treli.WebhookEvent {
	t.Helper()
	body, err := os.ReadFile("../treli/testdata/" + name)
	require.NoError(t, err)
	ev, err := treli.ParseEvent(body)
	require.NoError(t, err)
	return ev
}

func paymentEvent(t *testing.T, eventType, email, item string, paymentID int64, occurredAt int64, paymentStatus string) *treli.WebhookEvent {
	t.Helper()
	body := fmt.Sprintf(`{
		"event_type": %q,
		"occurred_at": %d,
		"content": {
			"billing": {"first_name": "Ana", "last_name": "Diaz", "email": %q, "city": "Bogota", "country": "CO", "phone": "3000000000", "phone_country_code": "+57"},
			"items": [{"name": %q, "quantity": 1, "total": 100}],
			"totals": {"sub_total": 100, "discounts": 0, "total": 100},
			"payment_id": %d,
			"payment_type": "Suscripción",
			"payment_status": %q,
			"payment_method": "Tarjeta",
			"currency": "COP"
		}
	}`, eventType, occurredAt, email, item, paymentID, paymentStatus)
	ev, err := treli.ParseEvent([]byte(body))
	require.NoError(t, err)
	return ev
}

func TestScenarioNewUserApprovedPayment(t *testing.T) {
	h := newHarness(t, Options{Scope: "prod"})
	ev := loadEvent(t, "payment_approved.json")

	res, err := h.engine.ProcessPayment(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, "u-new", res.UserID)
	assert.True(t, res.NewUser)
	assert.Empty(t, res.FailedSideEffects)

	require.Len(t, h.identity.registered, 1)
	assert.Equal(t, "new@x.com", h.identity.registered[0].Email)
	assert.Equal(t, "Nueva", h.identity.registered[0].FirstName)

	want := status.ResolvePayment(true, false)
	require.Len(t, h.identity.updates, 1)
	assert.Equal(t, want.Fields(), h.identity.updates[0].Fields)
	assert.Equal(t, status.StatusRegistered.ID(), res.Status.StatusID)
	assert.Equal(t, status.SubStatusApplicationForm.ID(), res.Status.SubStatusID)
	assert.Equal(t, status.StageAlternateFormHuntyPro.ID(), res.Status.StageID)

	require.Len(t, h.history.entries, 2)
	initial := h.history.entries[0]
	assert.Equal(t, "u-new", initial.CreatedByID)
	assert.Empty(t, initial.PreviousSubStatusID)
	assert.Equal(t, status.SubStatusRegistration.ID(), initial.CurrentSubStatusID)
	moved := h.history.entries[1]
	assert.Equal(t, status.SubStatusRegistration.ID(), moved.PreviousSubStatusID)
	assert.Equal(t, status.SubStatusApplicationForm.ID(), moved.CurrentSubStatusID)

	paid := time.Date(2023, 8, 1, 13, 59, 50, 0, time.UTC)
	stored, err := repository.NewPaymentRepository(h.db).GetByTreliPaymentID(context.Background(), 125068)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "u-new", stored.UserID)
	assert.Equal(t, "Hunty Pro Trimestral UP.", stored.ItemName)
	assert.True(t, stored.PaymentDate.Equal(paid))
	assert.True(t, stored.NextPaymentDate.Equal(time.Date(2023, 11, 1, 13, 59, 50, 0, time.UTC)))
	assert.Equal(t, "59900", stored.SubtotalPaymentAmount)
	assert.Equal(t, "0", stored.DiscountsAmount)

	sub, err := repository.NewSubscriptionRepository(h.db).GetByUserID(context.Background(), "u-new")
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, models.PaymentStatusApproved, sub.UsersSubscriptionStatus)
	assert.Equal(t, stored.PaymentID, sub.PaymentID)

	assert.Equal(t, []string{"u-new"}, h.identity.notified)

	require.Len(t, h.crm.calls, 1)
	props := h.crm.calls[0].Props
	assert.Equal(t, "u-new", props["user_id"])
	assert.Equal(t, "+57 3001234567", props["phone"])
	assert.Equal(t, "bmV3QHguY29t", props["account_key"])
	assert.Equal(t, "Hunty Pro Trimestral UP.", props["subscription_name"])
	assert.Equal(t, true, props["active_huntypro"])
	assert.Equal(t, "prod", props["ambiente"])

	assert.Equal(t, []string{"new@x.com"}, h.enrollment.emails)

	require.Len(t, h.publisher.msgs, 1)
	assert.Equal(t, events.TopicStatusChanged, h.publisher.topics[0])
	changed := h.publisher.msgs[0].(events.StatusChanged)
	assert.Equal(t, models.PipelinePayment, changed.Pipeline)
	assert.Equal(t, status.SubStatusApplicationForm.ID(), changed.Current.SubStatusID)
}

func TestExistingUserWithProfileBecomesPro(t *testing.T) {
	h := newHarness(t, Options{Scope: "dev"})
	h.seedUser(t, "u-1", "ana@x.com", status.Transition{Status: status.StatusActive, SubStatus: status.SubStatusFree, Stage: status.StageFailedPayment}, true)

	ev := paymentEvent(t, treli.EventPaymentApproved, "ana@x.com", "Hunty Pro Mensual", 500, 1690898390, models.PaymentStatusApproved)
	res, err := h.engine.ProcessPayment(context.Background(), ev)
	require.NoError(t, err)
	assert.False(t, res.NewUser)
	assert.Empty(t, h.identity.registered)

	require.Len(t, h.identity.updates, 1)
	assert.Equal(t, status.SubStatusHuntyPro.ID(), h.identity.updates[0].Fields.SubStatusID)
	require.Len(t, h.history.entries, 1)
	assert.Equal(t, status.SubStatusFree.ID(), h.history.entries[0].PreviousSubStatusID)

	require.Len(t, h.crm.calls, 1)
	assert.Equal(t, approvedProperties("Hunty Pro Mensual", "dev"), h.crm.calls[0].Props)

	assert.Equal(t, []string{"ana@x.com"}, h.enrollment.emails)
	assert.True(t, res.Payment.NextPaymentDate.Equal(time.Date(2023, 9, 1, 13, 59, 50, 0, time.UTC)))
}

func TestHistoryOnlyWhenSubStatusChanges(t *testing.T) {
	h := newHarness(t, Options{})
	pro := status.ResolvePayment(true, true)
	h.seedUser(t, "u-1", "ana@x.com", pro, true)

	ev := paymentEvent(t, treli.EventPaymentApproved, "ana@x.com", "Hunty Pro Mensual", 501, 1690898390, models.PaymentStatusApproved)
	_, err := h.engine.ProcessPayment(context.Background(), ev)
	require.NoError(t, err)

	assert.Len(t, h.identity.updates, 1)
	assert.Empty(t, h.history.entries)
}

func TestFailedPaymentForNewUserSkipsCRMAndEnrollment(t *testing.T) {
	h := newHarness(t, Options{})
	ev := paymentEvent(t, treli.EventPaymentFailed, "late@x.com", "Hunty Pro Semestral", 502, 1690898390, models.PaymentStatusRejected)

	res, err := h.engine.ProcessPayment(context.Background(), ev)
	require.NoError(t, err)
	assert.True(t, res.NewUser)
	assert.Equal(t, status.StageFailedPayment.ID(), res.Status.StageID)
	assert.Equal(t, status.SubStatusApplicationForm.ID(), res.Status.SubStatusID)
	assert.Empty(t, h.crm.calls)
	assert.Empty(t, h.enrollment.emails)
	assert.Equal(t, models.PaymentStatusRejected, res.Subscription.UsersSubscriptionStatus)
}

func TestFailedPaymentForExistingUserDowngradesContact(t *testing.T) {
	h := newHarness(t, Options{Scope: "qa"})
	h.seedUser(t, "u-1", "ana@x.com", status.ResolvePayment(true, true), true)

	ev := paymentEvent(t, treli.EventPaymentFailed, "ana@x.com", "Hunty Pro Mensual", 503, 1690898390, models.PaymentStatusRejected)
	_, err := h.engine.ProcessPayment(context.Background(), ev)
	require.NoError(t, err)

	require.Len(t, h.crm.calls, 1)
	assert.Equal(t, canceledProperties("qa"), h.crm.calls[0].Props)
	assert.Empty(t, h.enrollment.emails)
}

func TestLocalModeSkipsEnrollment(t *testing.T) {
	h := newHarness(t, Options{Local: true})
	ev := paymentEvent(t, treli.EventPaymentApproved, "ana@x.com", "Hunty Pro Anual", 504, 1690898390, models.PaymentStatusApproved)

	_, err := h.engine.ProcessPayment(context.Background(), ev)
	require.NoError(t, err)
	assert.Empty(t, h.enrollment.emails)
}

func TestIdempotentPaymentID(t *testing.T) {
	h := newHarness(t, Options{})
	ev := paymentEvent(t, treli.EventPaymentApproved, "ana@x.com", "Hunty Pro Mensual", 600, 1690898390, models.PaymentStatusApproved)

	first, err := h.engine.ProcessPayment(context.Background(), ev)
	require.NoError(t, err)
	updates := len(h.identity.updates)

	_, err = h.engine.ProcessPayment(context.Background(), ev)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDependencyFailed))
	assert.True(t, errors.Is(err, ErrAlreadyProcessed))
	assert.Len(t, h.identity.updates, updates, "no identity writes and no compensation")

	stored, err := repository.NewPaymentRepository(h.db).GetByTreliPaymentID(context.Background(), 600)
	require.NoError(t, err)
	assert.Equal(t, first.Payment.PaymentID, stored.PaymentID)
}

func TestCompensationDowngradesProUser(t *testing.T) {
	h := newHarness(t, Options{})
	h.seedUser(t, "u-1", "ana@x.com", status.ResolvePayment(true, true), true)
	h.history.fail = true

	ev := paymentEvent(t, treli.EventPaymentFailed, "ana@x.com", "Hunty Pro Mensual", 700, 1690898390, models.PaymentStatusRejected)
	_, err := h.engine.ProcessPayment(context.Background(), ev)
	require.Error(t, err)

	var de *DependencyError
	require.True(t, errors.As(err, &de))
	assert.True(t, errors.Is(err, ErrDependencyFailed))
	assert.True(t, errors.Is(err, errUpstream))

	require.Len(t, h.identity.updates, 2)
	assert.Equal(t, status.Downgrade.Fields(), h.identity.updates[1].Fields)
	assert.Equal(t, "u-1", h.identity.updates[1].UserID)

	missing, err := repository.NewPaymentRepository(h.db).GetByTreliPaymentID(context.Background(), 700)
	require.NoError(t, err)
	assert.Nil(t, missing)
	assert.Empty(t, h.identity.notified, "no side effects after a failed core")
}

func TestCompensationLeavesFreeUserAlone(t *testing.T) {
	h := newHarness(t, Options{})
	h.seedUser(t, "u-1", "ana@x.com", status.Cancelled, true)
	h.identity.failUpdate = 1

	ev := paymentEvent(t, treli.EventPaymentApproved, "ana@x.com", "Hunty Pro Mensual", 701, 1690898390, models.PaymentStatusApproved)
	_, err := h.engine.ProcessPayment(context.Background(), ev)
	require.Error(t, err)

	var de *DependencyError
	require.True(t, errors.As(err, &de))
	assert.Len(t, h.identity.updates, 1)
}

func TestRegistrationFailure(t *testing.T) {
	h := newHarness(t, Options{})
	h.identity.failRegister = true

	ev := paymentEvent(t, treli.EventPaymentApproved, "ghost@x.com", "Hunty Pro Mensual", 702, 1690898390, models.PaymentStatusApproved)
	_, err := h.engine.ProcessPayment(context.Background(), ev)
	assert.True(t, errors.Is(err, ErrDependencyFailed))
	assert.Empty(t, h.identity.updates)
}

func TestSideEffectFailuresAreSwallowed(t *testing.T) {
	h := newHarness(t, Options{})
	h.identity.failNotify = true
	h.crm.fail = true
	h.enrollment.fail = true
	h.publisher.fail = true

	ev := paymentEvent(t, treli.EventPaymentApproved, "ana@x.com", "Hunty Pro Mensual", 703, 1690898390, models.PaymentStatusApproved)
	res, err := h.engine.ProcessPayment(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, []string{"notify_realtime", "crm_sync", "enroll_courses", "publish_event"}, res.FailedSideEffects)
}

func TestScenarioCancellation(t *testing.T) {
	h := newHarness(t, Options{Scope: "prod"})
	h.seedUser(t, "u-9", "ana@x.com", status.ResolvePayment(true, true), true)
	subs := repository.NewSubscriptionRepository(h.db)
	require.NoError(t, subs.Create(context.Background(), &models.UserSubscription{UserID: "u-9", UsersSubscriptionStatus: models.PaymentStatusApproved}))

	res, err := h.engine.Subscription(context.Background(), loadEvent(t, "subscription_canceled.json"))
	require.NoError(t, err)
	assert.Equal(t, "u-9", res.UserID)
	assert.Equal(t, int64(901), res.ContactID)

	require.Len(t, h.identity.updates, 1)
	assert.Equal(t, status.Cancelled.Fields(), h.identity.updates[0].Fields)
	require.Len(t, h.history.entries, 1)
	assert.Equal(t, status.SubStatusHuntyPro.ID(), h.history.entries[0].PreviousSubStatusID)
	assert.Equal(t, status.SubStatusFree.ID(), h.history.entries[0].CurrentSubStatusID)
	assert.Equal(t, []string{"u-9"}, h.identity.notified)

	stored, err := subs.GetByUserID(context.Background(), "u-9")
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusCanceled, stored.UsersSubscriptionStatus)
	assert.True(t, stored.UpdateDate.Equal(time.Unix(1693576790, 0).UTC()))

	require.Len(t, h.crm.calls, 1)
	assert.Equal(t, canceledProperties("prod"), h.crm.calls[0].Props)
	require.Len(t, h.publisher.msgs, 1)
	assert.Equal(t, models.PipelineSubscription, h.publisher.msgs[0].(events.StatusChanged).Pipeline)
}

func TestCancellationUnknownUser(t *testing.T) {
	h := newHarness(t, Options{})
	_, err := h.engine.Subscription(context.Background(), loadEvent(t, "subscription_canceled.json"))
	assert.True(t, errors.Is(err, ErrDependencyFailed))
	assert.True(t, errors.Is(err, ErrUserNotFound))
	assert.Empty(t, h.identity.updates)
}

func TestCancellationWithoutSubscriptionRow(t *testing.T) {
	h := newHarness(t, Options{})
	h.seedUser(t, "u-9", "ana@x.com", status.Cancelled, false)

	_, err := h.engine.Subscription(context.Background(), loadEvent(t, "subscription_canceled.json"))
	var de *DependencyError
	require.True(t, errors.As(err, &de))
	assert.True(t, errors.Is(err, repository.ErrNotFound))
	assert.Empty(t, h.history.entries, "substatus unchanged")
	assert.Empty(t, h.crm.calls)
}

func TestCancellationCRMFailureIsFatal(t *testing.T) {
	h := newHarness(t, Options{})
	h.seedUser(t, "u-9", "ana@x.com", status.Cancelled, false)
	require.NoError(t, repository.NewSubscriptionRepository(h.db).Create(context.Background(), &models.UserSubscription{UserID: "u-9"}))
	h.crm.fail = true

	_, err := h.engine.Subscription(context.Background(), loadEvent(t, "subscription_canceled.json"))
	assert.True(t, errors.Is(err, ErrDependencyFailed))
	assert.Empty(t, h.publisher.msgs)
}

func TestRunDispatches(t *testing.T) {
	h := newHarness(t, Options{})
	ev := paymentEvent(t, treli.EventPaymentApproved, "ana@x.com", "Hunty Pro Mensual", 800, 1690898390, models.PaymentStatusApproved)

	out, err := h.engine.Run(context.Background(), Classify(ev), ev)
	require.NoError(t, err)
	assert.IsType(t, &PaymentResult{}, out)

	out, err = h.engine.Run(context.Background(), models.PipelineSubscription, loadEvent(t, "subscription_canceled.json"))
	assert.Error(t, err)
	assert.Nil(t, out)
}
