package casefile

import (
	"fmt"
	"time"

	"github.com/casewell/casewell/internal/domain/participant"
)

// Status is the workflow state of a case.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusClosed     Status = "closed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusClosed:
		return true
	}
	return false
}

// transitions is the allowed status state machine. Closed cases may be
// reopened; the closing-note guard for entering closed lives in the service.
var transitions = map[Status]map[Status]bool{
	StatusOpen:       {StatusInProgress: true, StatusClosed: true},
	StatusInProgress: {StatusOpen: true, StatusClosed: true},
	StatusClosed:     {StatusOpen: true, StatusInProgress: true},
}

// CanTransitionTo reports whether the state machine allows moving from s
// to next.
func (s Status) CanTransitionTo(next Status) bool {
	return transitions[s][next]
}

// FormatCaseNumber renders the human-readable case identifier. Numbers are
// zero-padded to 4 digits; a 5th digit simply extends the string once the
// counter passes 9999.
func FormatCaseNumber(n int) string {
	return fmt.Sprintf("CASE-%04d", n)
}

// Case is the aggregate root: one participant's engagement from open to
// close, with its attached medical/psychosocial sub-records.
type Case struct {
	ID                 int64      `json:"id"`
	CaseNumber         string     `json:"caseNumber"`
	Status             Status     `json:"status"`
	ParticipantID      int64      `json:"participantId"`
	ConsultationReason string     `json:"consultationReason,omitempty"`
	Intervention       string     `json:"intervention,omitempty"`
	Referrals          string     `json:"referrals,omitempty"`
	ClosedAt           *time.Time `json:"closedAt,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`

	Participant *participant.Participant `json:"participant,omitempty"`

	PhysicalHealthHistories []*PhysicalHealthHistory `json:"physicalHealthHistory,omitempty"`
	MentalHealthHistories   []*MentalHealthHistory   `json:"mentalHealthHistory,omitempty"`
	Weighing                *Weighing                `json:"weighing,omitempty"`
	InterventionPlans       []*InterventionPlan      `json:"interventionPlans,omitempty"`
	ProgressNotes           []*ProgressNote          `json:"progressNotes,omitempty"`
	FollowUpPlans           []*FollowUpPlan          `json:"followUpPlan,omitempty"`
	ClosingNote             *ClosingNote             `json:"closingNote,omitempty"`
	IdentifiedSituations    []int64                  `json:"identifiedSituations,omitempty"`
}

// Sub-records. Each belongs to exactly one case; they have no existence of
// their own.

type PhysicalHealthHistory struct {
	ID           int64     `json:"id"`
	CaseID       int64     `json:"caseId"`
	Condition    string    `json:"condition,omitempty"`
	Diagnosis    string    `json:"diagnosis,omitempty"`
	Treatment    string    `json:"treatment,omitempty"`
	Observations string    `json:"observations,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

type MentalHealthHistory struct {
	ID           int64     `json:"id"`
	CaseID       int64     `json:"caseId"`
	Condition    string    `json:"condition,omitempty"`
	Diagnosis    string    `json:"diagnosis,omitempty"`
	Treatment    string    `json:"treatment,omitempty"`
	Observations string    `json:"observations,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Weighing is cardinality-1 per case.
type Weighing struct {
	ID           int64     `json:"id"`
	CaseID       int64     `json:"caseId"`
	WeightKg     float64   `json:"weightKg"`
	HeightCm     float64   `json:"heightCm,omitempty"`
	Observations string    `json:"observations,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

type InterventionPlan struct {
	ID           int64     `json:"id"`
	CaseID       int64     `json:"caseId"`
	Objective    string    `json:"objective,omitempty"`
	Activities   string    `json:"activities,omitempty"`
	Responsible  string    `json:"responsible,omitempty"`
	Observations string    `json:"observations,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

type ProgressNote struct {
	ID           int64     `json:"id"`
	CaseID       int64     `json:"caseId"`
	SessionDate  time.Time `json:"sessionDate"`
	SessionType  string    `json:"sessionType,omitempty"`
	Summary      string    `json:"summary,omitempty"`
	Observations string    `json:"observations,omitempty"`
	Agreements   string    `json:"agreements,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

type FollowUpPlan struct {
	ID           int64     `json:"id"`
	CaseID       int64     `json:"caseId"`
	Action       string    `json:"action,omitempty"`
	Commitments  string    `json:"commitments,omitempty"`
	Observations string    `json:"observations,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// ClosingNote is cardinality-1 per case and is the precondition for the
// closed status.
type ClosingNote struct {
	ID              int64      `json:"id"`
	CaseID          int64      `json:"caseId"`
	ClosingDate     *time.Time `json:"closingDate,omitempty"`
	Reason          string     `json:"reason,omitempty"`
	Achievements    string     `json:"achievements,omitempty"`
	Recommendations string     `json:"recommendations,omitempty"`
	Observations    string     `json:"observations,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}
