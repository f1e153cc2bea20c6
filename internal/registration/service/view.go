package service

import (
	"onboarding/internal/registration/flow"
	"onboarding/internal/registration/models"
	id "onboarding/pkg/domain"
)

// View is what callers see of a session after an operation.
type View struct {
	SessionID        id.SessionID
	Step             models.Step
	Record           models.Record
	CanAdvance       bool
	FaceStatus       models.FaceStatus
	ContractAccepted bool
	Milestones       []models.Milestone
	Closed           bool
	// Outcome is set by navigation operations only.
	Outcome flow.Outcome
}

func newView(sessionID id.SessionID, snap flow.Snapshot, outcome flow.Outcome) *View {
	return &View{
		SessionID:        sessionID,
		Step:             snap.Step,
		Record:           snap.Record,
		CanAdvance:       snap.CanAdvance,
		FaceStatus:       snap.FaceStatus,
		ContractAccepted: snap.ContractAccepted,
		Milestones:       models.MilestonesAt(snap.Step),
		Closed:           snap.Closed,
		Outcome:          outcome,
	}
}
