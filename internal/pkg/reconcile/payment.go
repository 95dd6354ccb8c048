package reconcile

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/huntyio/membership/app/models"
	"github.com/huntyio/membership/app/repository"
	"github.com/huntyio/membership/internal/pkg/events"
	"github.com/huntyio/membership/internal/pkg/hubspot"
	"github.com/huntyio/membership/internal/pkg/status"
	"github.com/huntyio/membership/internal/pkg/treli"
	"github.com/huntyio/membership/internal/pkg/usermaster"
)

// ErrAlreadyProcessed is returned for a processor payment id that is already stored.
var ErrAlreadyProcessed = errors.New("payment already processed")

// PaymentResult is what a successful payment run persisted.
type PaymentResult struct {
	UserID       string                   `json:"user_id"`
	NewUser      bool                     `json:"new_user"`
	Previous     status.Fields            `json:"previous_status"`
	Status       status.Fields            `json:"status"`
	Payment      *models.Payment          `json:"payment"`
	Subscription *models.UserSubscription `json:"subscription"`
	// FailedSideEffects lists post-commit tasks that did not complete.
	FailedSideEffects []string `json:"failed_side_effects,omitempty"`
}

// UserUpdate is the outcome of CreateOrUpdateUser.
type UserUpdate struct {
	UserID        string
	NewUser       bool
	ProfileExists bool
	Previous      status.Fields
	Next          status.Transition
}

// ProcessPayment runs the payment pipeline for a payment_approved or
// payment_failed event. Every failure is returned as a *DependencyError;
// failures after the user was touched first try to revoke a paid substatus.
func (e *Engine) ProcessPayment(ctx context.Context, ev *treli.WebhookEvent) (*PaymentResult, error) {
	ctx, span := e.tracer.Start(ctx, "reconcile.process_payment", trace.WithAttributes(
		attribute.String("treli.event_type", ev.EventType),
	))
	defer span.End()

	content, err := ev.PaymentContent()
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int64("treli.payment_id", int64(content.PaymentID)))

	var result *PaymentResult
	err = e.sessions.Session(ctx, func(repos *repository.Repositories) error {
		res, err := e.runPayment(ctx, repos, ev, content)
		if err != nil {
			if !errors.Is(err, ErrAlreadyProcessed) {
				e.compensate(ctx, repos, content.Billing.Email)
			}
			return err
		}
		res.FailedSideEffects = e.paymentSideEffects(ctx, repos, ev, content, res)
		result = res
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "payment pipeline failed")
		log.Errorf("[Reconcile] payment %d for %s failed: %v", content.PaymentID, content.Billing.Email, err)
		return nil, depErr("process_payment", err)
	}

	log.Infof("[Reconcile] payment %d processed for user %s (%s)", content.PaymentID, result.UserID, content.PaymentStatus)
	return result, nil
}

func (e *Engine) runPayment(ctx context.Context, repos *repository.Repositories, ev *treli.WebhookEvent, content *treli.PaymentContent) (*PaymentResult, error) {
	existing, err := repos.Payment.GetByTreliPaymentID(ctx, int64(content.PaymentID))
	if err != nil {
		return nil, depErr("check_payment", err)
	}
	if existing != nil {
		return nil, depErr("check_payment", ErrAlreadyProcessed)
	}

	upd, err := e.CreateOrUpdateUser(ctx, repos, ev, content)
	if err != nil {
		return nil, err
	}

	payment, sub, err := e.CreateOrUpdatePayment(ctx, repos, ev, content, upd.UserID)
	if err != nil {
		return nil, err
	}

	return &PaymentResult{
		UserID:       upd.UserID,
		NewUser:      upd.NewUser,
		Previous:     upd.Previous,
		Status:       upd.Next.Fields(),
		Payment:      payment,
		Subscription: sub,
	}, nil
}

// CreateOrUpdateUser resolves the billing contact to a user, registering one
// when needed, and applies the payment's status transition.
func (e *Engine) CreateOrUpdateUser(ctx context.Context, repos *repository.Repositories, ev *treli.WebhookEvent, content *treli.PaymentContent) (*UserUpdate, error) {
	upd, err := e.resolveOrCreateUser(ctx, repos, content.Billing)
	if err != nil {
		return nil, err
	}
	upd.Next = status.ResolvePayment(ev.IsApproved(), upd.ProfileExists)

	if err := e.applyTransition(ctx, upd.UserID, upd.Previous, upd.Next); err != nil {
		return nil, err
	}
	return upd, nil
}

func (e *Engine) resolveOrCreateUser(ctx context.Context, repos *repository.Repositories, billing treli.Billing) (*UserUpdate, error) {
	user, err := repos.UserMaster.GetByEmail(ctx, billing.Email)
	if err != nil {
		return nil, depErr("lookup_user", err)
	}

	if user != nil {
		exists, err := repos.Profile.ExistsForUser(ctx, user.UserID)
		if err != nil {
			return nil, depErr("lookup_profile", err)
		}
		return &UserUpdate{UserID: user.UserID, ProfileExists: exists, Previous: priorFields(user)}, nil
	}

	userID, err := e.identity.RegisterUser(ctx, usermaster.NewRegistration(billing.FirstName, billing.LastName, billing.Email))
	if err != nil {
		return nil, depErr("register_user", err)
	}
	initial := status.Registration.Fields()
	if err := e.history.RecordHistory(ctx, usermaster.NewHistoryEntry(userID, status.Fields{}, initial)); err != nil {
		return nil, depErr("record_history", err)
	}
	log.Infof("[Reconcile] registered user %s for %s", userID, billing.Email)
	return &UserUpdate{UserID: userID, NewUser: true, Previous: initial}, nil
}

// CreateOrUpdatePayment stores the payment and points the user's
// subscription row at it.
func (e *Engine) CreateOrUpdatePayment(ctx context.Context, repos *repository.Repositories, ev *treli.WebhookEvent, content *treli.PaymentContent, userID string) (*models.Payment, *models.UserSubscription, error) {
	paidAt := ev.OccurredTime()
	item := content.Item()

	payment := &models.Payment{
		TreliPaymentID:        int64(content.PaymentID),
		ItemName:              item.Name,
		UserID:                userID,
		PaymentType:           content.PaymentType,
		PaymentStatus:         content.PaymentStatus,
		PaymentMethod:         content.PaymentMethod,
		PaymentCurrency:       content.Currency,
		SubtotalPaymentAmount: content.Totals.SubTotal.String(),
		DiscountsAmount:       content.Totals.Discounts.String(),
		TotalPaymentAmount:    content.Totals.Total.String(),
		NextPaymentDate:       NextPaymentDate(item.Name, paidAt),
		PaymentDate:           paidAt,
		CreatedDate:           paidAt,
		UpdateDate:            paidAt,
	}
	if err := repos.Payment.Create(ctx, payment); err != nil {
		return nil, nil, depErr("create_payment", err)
	}

	sub := &models.UserSubscription{
		UserID:                  userID,
		PaymentID:               payment.PaymentID,
		UsersSubscriptionStatus: content.PaymentStatus,
		CreatedDate:             paidAt,
		UpdateDate:              paidAt,
	}
	if err := repos.Subscription.Upsert(ctx, sub); err != nil {
		return nil, nil, depErr("upsert_subscription", err)
	}
	return payment, sub, nil
}

// compensate revokes a paid substatus left behind by a failed run. It is
// best-effort and makes a single attempt.
func (e *Engine) compensate(ctx context.Context, repos *repository.Repositories, email string) {
	user, err := repos.UserMaster.GetByEmail(ctx, email)
	if err != nil {
		log.Warnf("[Reconcile] compensation lookup for %s failed: %v", email, err)
		return
	}
	if user == nil || status.ParseSubStatus(user.SubstatusID) != status.SubStatusHuntyPro {
		return
	}
	if err := e.identity.UpdateStatus(ctx, user.UserID, status.Downgrade.Fields()); err != nil {
		log.Warnf("[Reconcile] compensation downgrade for %s failed: %v", user.UserID, err)
		return
	}
	log.Infof("[Reconcile] downgraded user %s after a failed payment run", user.UserID)
}

func (e *Engine) paymentSideEffects(ctx context.Context, repos *repository.Repositories, ev *treli.WebhookEvent, content *treli.PaymentContent, res *PaymentResult) []string {
	approved := ev.IsApproved()
	billing := content.Billing
	item := content.Item().Name

	tasks := []sideEffect{{
		name: "notify_realtime",
		run: func(ctx context.Context) error {
			return e.identity.NotifyRealtime(ctx, res.UserID, usermaster.AllRealtimeFlags)
		},
	}}

	switch {
	case !res.NewUser:
		props := canceledProperties(e.opts.Scope)
		if approved {
			props = approvedProperties(item, e.opts.Scope)
		}
		tasks = append(tasks, e.crmTask(billing.Email, props))
	case approved:
		tasks = append(tasks, e.crmTask(billing.Email, newContactProperties(res.UserID, billing, item, e.opts.Scope)))
	}

	if approved && !e.opts.Local && e.enrollment != nil {
		tasks = append(tasks, sideEffect{
			name: "enroll_courses",
			run: func(ctx context.Context) error {
				first, last, email := billing.FirstName, billing.LastName, billing.Email
				user, err := repos.UserMaster.GetByUserID(ctx, res.UserID)
				if err != nil {
					return err
				}
				if user != nil {
					first, last, email = user.FirstName, user.LastName, user.Email
				}
				outcome, err := e.enrollment.EnrollUserInCourses(ctx, first, last, strings.TrimSpace(email))
				if err != nil {
					return err
				}
				log.Infof("[Reconcile] enrollment for %s: %s", res.UserID, outcome)
				return nil
			},
		})
	}

	next := status.FromIDs(res.Status.StatusID, res.Status.SubStatusID, res.Status.StageID)
	prev := status.FromIDs(res.Previous.StatusID, res.Previous.SubStatusID, res.Previous.StageID)
	tasks = append(tasks, e.publishTask(events.NewStatusChanged(res.UserID, billing.Email, models.PipelinePayment, ev.EventType, prev, next, ev.OccurredTime())))

	return fanout(ctx, tasks...)
}

func (e *Engine) crmTask(email string, props hubspot.Properties) sideEffect {
	return sideEffect{
		name: "crm_sync",
		run: func(ctx context.Context) error {
			_, err := e.crm.UpsertContact(ctx, email, props)
			return err
		},
	}
}

func (e *Engine) publishTask(ev events.StatusChanged) sideEffect {
	return sideEffect{
		name: "publish_event",
		run: func(ctx context.Context) error {
			return e.publisher.Publish(ctx, events.TopicStatusChanged, ev)
		},
	}
}
