// Package status models the three-level account lifecycle classification
// (status, substatus, stage) stored by the user-master service.
package status

// Status is the top-level lifecycle state of a user account.
type Status uint8

const (
	StatusUnknown Status = iota
	StatusRegistered
	StatusActive
)

var statusIDs = map[Status]string{
	StatusRegistered: "6205cf9436aee7ccb42779ac5e69bd3f",
	StatusActive:     "4d3d769b812b6faa6b76e1a8abaece2d",
}

var statusNames = map[Status]string{
	StatusUnknown:    "unknown",
	StatusRegistered: "registered",
	StatusActive:     "active",
}

// ID returns the opaque identifier persisted by the identity service.
func (s Status) ID() string { return statusIDs[s] }

func (s Status) String() string { return statusNames[s] }

func (s Status) Valid() bool { return s != StatusUnknown && statusIDs[s] != "" }

// ParseStatus maps a stored identifier back to a Status.
func ParseStatus(id string) Status {
	for s, v := range statusIDs {
		if v == id {
			return s
		}
	}
	return StatusUnknown
}

// SubStatus refines Status.
type SubStatus uint8

const (
	SubStatusUnknown SubStatus = iota
	SubStatusRegistration
	SubStatusApplicationForm
	SubStatusFree
	SubStatusHuntyPro
)

var subStatusIDs = map[SubStatus]string{
	SubStatusRegistration:    "0f98b7f230f3c91292f0de4c99e263f2",
	SubStatusApplicationForm: "fb6a31c11343f5c9dfc87543585956c1",
	SubStatusFree:            "b24ce0cd392a5b0b8dedc66c25213594",
	SubStatusHuntyPro:        "f5eaac978aab4071819528431afa79f0",
}

var subStatusNames = map[SubStatus]string{
	SubStatusUnknown:         "unknown",
	SubStatusRegistration:    "registration",
	SubStatusApplicationForm: "application_form",
	SubStatusFree:            "free",
	SubStatusHuntyPro:        "hunty_pro",
}

func (s SubStatus) ID() string { return subStatusIDs[s] }

func (s SubStatus) String() string { return subStatusNames[s] }

func (s SubStatus) Valid() bool { return s != SubStatusUnknown && subStatusIDs[s] != "" }

func ParseSubStatus(id string) SubStatus {
	for s, v := range subStatusIDs {
		if v == id {
			return s
		}
	}
	return SubStatusUnknown
}

// Stage is the funnel stage shown to operators.
type Stage uint8

const (
	StageNone Stage = iota
	StageSubscriptionCancelled
	StageAlternateFormHuntyPro
	StageApplicationFormAlternateForms
	StageFailedPayment
	StageActiveSubscription
)

var stageIDs = map[Stage]string{
	StageSubscriptionCancelled:         "677254dfe1924978b329a53f6ca44772",
	StageAlternateFormHuntyPro:         "e011473eb70e48abbb875880a2e53728",
	StageApplicationFormAlternateForms: "8eea2abf3f4ce60123c0aea07a30387e",
	StageFailedPayment:                 "588ed4a8507c4381a3a3bff3d91c4160",
	StageActiveSubscription:            "409d4e6652184b7a8de50b014694df7b",
}

var stageNames = map[Stage]string{
	StageNone:                          "none",
	StageSubscriptionCancelled:         "subscription_cancelled",
	StageAlternateFormHuntyPro:         "alternate_form_hunty_pro",
	StageApplicationFormAlternateForms: "application_form_alternate_forms",
	StageFailedPayment:                 "failed_payment",
	StageActiveSubscription:            "active_subscription",
}

// ID returns the stage identifier, or "" for StageNone.
func (s Stage) ID() string { return stageIDs[s] }

func (s Stage) String() string { return stageNames[s] }

func (s Stage) Valid() bool { return s != StageNone && stageIDs[s] != "" }

func ParseStage(id string) Stage {
	for s, v := range stageIDs {
		if v == id {
			return s
		}
	}
	return StageNone
}
