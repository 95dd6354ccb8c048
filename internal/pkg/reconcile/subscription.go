package reconcile

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/huntyio/membership/app/models"
	"github.com/huntyio/membership/app/repository"
	"github.com/huntyio/membership/internal/pkg/events"
	"github.com/huntyio/membership/internal/pkg/status"
	"github.com/huntyio/membership/internal/pkg/treli"
	"github.com/huntyio/membership/internal/pkg/usermaster"
)

// ErrUserNotFound is returned when a cancellation names an unknown customer.
var ErrUserNotFound = errors.New("user not found")

type SubscriptionResult struct {
	UserID       string                   `json:"user_id"`
	Previous     status.Fields            `json:"previous_status"`
	Status       status.Fields            `json:"status"`
	Subscription *models.UserSubscription `json:"subscription"`
	// ContactID is the CRM contact that was updated.
	ContactID         int64    `json:"contact_id"`
	FailedSideEffects []string `json:"failed_side_effects,omitempty"`
}

// Subscription runs the cancellation pipeline: the user drops to the free
// tier, the subscription row is marked canceled and the CRM contact is
// downgraded. Nothing is compensated.
func (e *Engine) Subscription(ctx context.Context, ev *treli.WebhookEvent) (*SubscriptionResult, error) {
	ctx, span := e.tracer.Start(ctx, "reconcile.subscription", trace.WithAttributes(
		attribute.String("treli.event_type", ev.EventType),
	))
	defer span.End()

	content, err := ev.SubscriptionContent()
	if err != nil {
		return nil, err
	}
	email := content.Customer.Email

	var result *SubscriptionResult
	err = e.sessions.Session(ctx, func(repos *repository.Repositories) error {
		res, err := e.runCancellation(ctx, repos, ev, email)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "subscription pipeline failed")
		log.Errorf("[Reconcile] cancellation for %s failed: %v", email, err)
		return nil, depErr("subscription", err)
	}

	log.Infof("[Reconcile] subscription canceled for user %s", result.UserID)
	return result, nil
}

func (e *Engine) runCancellation(ctx context.Context, repos *repository.Repositories, ev *treli.WebhookEvent, email string) (*SubscriptionResult, error) {
	user, err := repos.UserMaster.GetByEmail(ctx, email)
	if err != nil {
		return nil, depErr("lookup_user", err)
	}
	if user == nil {
		return nil, depErr("lookup_user", ErrUserNotFound)
	}

	prior := priorFields(user)
	next := status.ResolveCancellation()
	if err := e.applyTransition(ctx, user.UserID, prior, next); err != nil {
		return nil, err
	}

	failed := fanout(ctx, sideEffect{
		name: "notify_realtime",
		run: func(ctx context.Context) error {
			return e.identity.NotifyRealtime(ctx, user.UserID, usermaster.AllRealtimeFlags)
		},
	})

	sub, err := repos.Subscription.UpdateStatusByUserID(ctx, user.UserID, models.SubscriptionStatusCanceled, ev.OccurredTime())
	if err != nil {
		return nil, depErr("update_subscription", err)
	}

	contactID, err := e.crm.UpsertContact(ctx, email, canceledProperties(e.opts.Scope))
	if err != nil {
		return nil, depErr("crm_sync", err)
	}

	prev := status.FromIDs(prior.StatusID, prior.SubStatusID, prior.StageID)
	failed = append(failed, fanout(ctx, e.publishTask(
		events.NewStatusChanged(user.UserID, email, models.PipelineSubscription, ev.EventType, prev, next, ev.OccurredTime()),
	))...)

	return &SubscriptionResult{
		UserID:            user.UserID,
		Previous:          prior,
		Status:            next.Fields(),
		Subscription:      sub,
		ContactID:         contactID,
		FailedSideEffects: failed,
	}, nil
}
