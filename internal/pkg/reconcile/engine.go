// Package reconcile turns processor webhooks into identity, billing and CRM
// state: it resolves the user, applies the status transition, records the
// payment and fans the outcome out to the collaborators.
package reconcile

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/trace"

	"github.com/huntyio/membership/app/models"
	"github.com/huntyio/membership/app/repository"
	"github.com/huntyio/membership/internal/pkg/events"
	"github.com/huntyio/membership/internal/pkg/hubspot"
	"github.com/huntyio/membership/internal/pkg/status"
	"github.com/huntyio/membership/internal/pkg/thinkific"
	"github.com/huntyio/membership/internal/pkg/tracing"
	"github.com/huntyio/membership/internal/pkg/treli"
	"github.com/huntyio/membership/internal/pkg/usermaster"
)

// ErrDependencyFailed is matched by every error a pipeline returns.
var ErrDependencyFailed = errors.New("dependency failed")

// DependencyError names the pipeline step that failed.
type DependencyError struct {
	Op  string
	Err error
}

func (e *DependencyError) Error() string {
	if e.Err == nil {
		return e.Op + ": " + ErrDependencyFailed.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *DependencyError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrDependencyFailed}
	}
	return []error{ErrDependencyFailed, e.Err}
}

func depErr(op string, err error) error {
	var de *DependencyError
	if errors.As(err, &de) {
		return err
	}
	return &DependencyError{Op: op, Err: err}
}

// Sessions opens a per-run unit of work over the repositories.
type Sessions interface {
	Session(ctx context.Context, fn func(repos *repository.Repositories) error) error
}

// Identity writes to the user-master service.
type Identity interface {
	RegisterUser(ctx context.Context, reg usermaster.Registration) (string, error)
	UpdateStatus(ctx context.Context, userID string, fields status.Fields) error
	NotifyRealtime(ctx context.Context, userID string, flags usermaster.RealtimeFlags) error
}

// History records status changes.
type History interface {
	RecordHistory(ctx context.Context, entry usermaster.HistoryEntry) error
}

// CRM keeps marketing contacts in sync.
type CRM interface {
	UpsertContact(ctx context.Context, email string, props hubspot.Properties) (int64, error)
}

// Enrollment grants course access to paying users.
type Enrollment interface {
	EnrollUserInCourses(ctx context.Context, firstName, lastName, email string) (thinkific.Outcome, error)
}

// Options tune environment-dependent behaviour.
type Options struct {
	// Scope is written to the CRM "ambiente" property.
	Scope string
	// Local disables course enrollment.
	Local bool
}

// Engine runs the payment and cancellation pipelines.
type Engine struct {
	sessions   Sessions
	identity   Identity
	history    History
	crm        CRM
	enrollment Enrollment
	publisher  events.Publisher
	opts       Options
	tracer     trace.Tracer
}

func NewEngine(sessions Sessions, identity Identity, history History, crm CRM, enrollment Enrollment, publisher events.Publisher, opts Options) *Engine {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Engine{
		sessions:   sessions,
		identity:   identity,
		history:    history,
		crm:        crm,
		enrollment: enrollment,
		publisher:  publisher,
		opts:       opts,
		tracer:     tracing.Tracer("github.com/huntyio/membership/reconcile"),
	}
}

// applyTransition pushes next to the identity service and records history
// when the substatus moves away from prior.
func (e *Engine) applyTransition(ctx context.Context, userID string, prior status.Fields, next status.Transition) error {
	fields := next.Fields()
	if err := e.identity.UpdateStatus(ctx, userID, fields); err != nil {
		return depErr("update_status", err)
	}
	if prior.SubStatusID == fields.SubStatusID {
		return nil
	}
	if err := e.history.RecordHistory(ctx, usermaster.NewHistoryEntry(userID, prior, fields)); err != nil {
		return depErr("record_history", err)
	}
	return nil
}

// priorFields is the status currently stored for a user.
func priorFields(u *models.UserMaster) status.Fields {
	return status.Fields{StatusID: u.StatusID, SubStatusID: u.SubstatusID, StageID: u.StageID}
}

// Run dispatches ev to the named pipeline.
func (e *Engine) Run(ctx context.Context, pipeline string, ev *treli.WebhookEvent) (interface{}, error) {
	if pipeline == models.PipelinePayment {
		res, err := e.ProcessPayment(ctx, ev)
		if err != nil {
			return nil, err
		}
		return res, nil
	}
	res, err := e.Subscription(ctx, ev)
	if err != nil {
		return nil, err
	}
	return res, nil
}
