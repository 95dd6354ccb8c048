package status

import "fmt"

// Transition is the (status, substatus, stage) triple applied to a user.
type Transition struct {
	Status    Status
	SubStatus SubStatus
	Stage     Stage
}

// Fields is the identity-service representation of a Transition.
type Fields struct {
	StatusID    string `json:"status_id"`
	SubStatusID string `json:"substatus_id"`
	StageID     string `json:"stage_id,omitempty"`
}

var (
	// Registration is the state written when an account is first created.
	Registration = Transition{Status: StatusRegistered, SubStatus: SubStatusRegistration}
	// Cancelled is applied unconditionally by the cancellation pipeline.
	Cancelled = Transition{Status: StatusActive, SubStatus: SubStatusFree, Stage: StageSubscriptionCancelled}
	// Downgrade is applied when a failed payment run has to revoke a paid substatus.
	Downgrade = Transition{Status: StatusActive, SubStatus: SubStatusFree, Stage: StageFailedPayment}
)

// FromIDs rebuilds a Transition from stored identifiers. Unknown ids map to
// the zero value of each enum.
func FromIDs(statusID, subStatusID, stageID string) Transition {
	return Transition{
		Status:    ParseStatus(statusID),
		SubStatus: ParseSubStatus(subStatusID),
		Stage:     ParseStage(stageID),
	}
}

func (t Transition) Fields() Fields {
	return Fields{
		StatusID:    t.Status.ID(),
		SubStatusID: t.SubStatus.ID(),
		StageID:     t.Stage.ID(),
	}
}

// SubStatusChanged reports whether moving from prev to t changes the substatus.
// Only substatus changes are recorded in the status history.
func (t Transition) SubStatusChanged(prev Transition) bool {
	return t.SubStatus != prev.SubStatus
}

func (t Transition) String() string {
	return fmt.Sprintf("%s/%s/%s", t.Status, t.SubStatus, t.Stage)
}

// ResolvePayment computes the transition for a payment event.
func ResolvePayment(approved, profileExists bool) Transition {
	switch {
	case approved && profileExists:
		return Transition{Status: StatusActive, SubStatus: SubStatusHuntyPro, Stage: StageActiveSubscription}
	case approved && !profileExists:
		return Transition{Status: StatusRegistered, SubStatus: SubStatusApplicationForm, Stage: StageAlternateFormHuntyPro}
	case !approved && profileExists:
		return Transition{Status: StatusActive, SubStatus: SubStatusFree, Stage: StageFailedPayment}
	default:
		return Transition{Status: StatusRegistered, SubStatus: SubStatusApplicationForm, Stage: StageFailedPayment}
	}
}

// ResolveCancellation computes the transition for a cancellation event.
func ResolveCancellation() Transition {
	return Cancelled
}
