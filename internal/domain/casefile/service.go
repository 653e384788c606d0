package casefile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/casewell/casewell/internal/domain/participant"
	"github.com/casewell/casewell/internal/domain/situation"
)

// maxCaseNumberAttempts bounds the optimistic case-number retry loop so a
// pathological collision storm fails loudly instead of looping forever.
const maxCaseNumberAttempts = 5

type Service struct {
	cases        Repository
	participants participant.Repository
	situations   situation.Repository
}

func NewService(cases Repository, participants participant.Repository, situations situation.Repository) *Service {
	return &Service{cases: cases, participants: participants, situations: situations}
}

// -- Input DTOs --

type CreateCaseInput struct {
	ParticipantID         int64                        `json:"participantId"`
	ConsultationReason    string                       `json:"consultationReason"`
	Intervention          string                       `json:"intervention"`
	Referrals             string                       `json:"referrals"`
	IdentifiedSituations  []int64                      `json:"identifiedSituations"`
	PhysicalHealthHistory []PhysicalHealthHistoryInput `json:"physicalHealthHistory"`
	MentalHealthHistory   []MentalHealthHistoryInput   `json:"mentalHealthHistory"`
	Weighing              *WeighingInput               `json:"weighing"`
	InterventionPlans     []InterventionPlanInput      `json:"interventionPlans"`
	ProgressNotes         []ProgressNoteInput          `json:"progressNotes"`
	FollowUpPlan          []FollowUpPlanInput          `json:"followUpPlan"`
	ClosingNote           *ClosingNoteInput            `json:"closingNote"`
}

type PhysicalHealthHistoryInput struct {
	Condition    string `json:"condition"`
	Diagnosis    string `json:"diagnosis"`
	Treatment    string `json:"treatment"`
	Observations string `json:"observations"`
}

type MentalHealthHistoryInput struct {
	Condition    string `json:"condition"`
	Diagnosis    string `json:"diagnosis"`
	Treatment    string `json:"treatment"`
	Observations string `json:"observations"`
}

type WeighingInput struct {
	WeightKg     float64 `json:"weightKg"`
	HeightCm     float64 `json:"heightCm"`
	Observations string  `json:"observations"`
}

type InterventionPlanInput struct {
	Objective    string `json:"objective"`
	Activities   string `json:"activities"`
	Responsible  string `json:"responsible"`
	Observations string `json:"observations"`
}

type ProgressNoteInput struct {
	SessionDate  string `json:"sessionDate"`
	SessionType  string `json:"sessionType"`
	Summary      string `json:"summary"`
	Observations string `json:"observations"`
	Agreements   string `json:"agreements"`
}

type FollowUpPlanInput struct {
	Action       string `json:"action"`
	Commitments  string `json:"commitments"`
	Observations string `json:"observations"`
}

type ClosingNoteInput struct {
	ClosingDate     string `json:"closingDate"`
	Reason          string `json:"reason"`
	Achievements    string `json:"achievements"`
	Recommendations string `json:"recommendations"`
	Observations    string `json:"observations"`
}

// parseDate accepts plain dates and full RFC 3339 timestamps.
func parseDate(field, value string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s %q is not a valid date", ErrInvalidInput, field, value)
	}
	return t, nil
}

// CreateCase validates the input, generates a unique case number, and
// writes the case together with every supplied sub-record in one
// transaction. On any failure nothing is persisted.
func (s *Service) CreateCase(ctx context.Context, in *CreateCaseInput) (*Case, error) {
	if in.ParticipantID <= 0 {
		return nil, fmt.Errorf("%w: participantId is required", ErrInvalidInput)
	}
	exists, err := s.participants.Exists(ctx, in.ParticipantID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: id %d", ErrParticipantNotFound, in.ParticipantID)
	}

	// Parse all dates up front so a bad payload never opens a transaction.
	notes := make([]*ProgressNote, 0, len(in.ProgressNotes))
	for _, pn := range in.ProgressNotes {
		if pn.SessionDate == "" {
			return nil, fmt.Errorf("%w: progress note sessionDate is required", ErrInvalidInput)
		}
		sessionDate, err := parseDate("sessionDate", pn.SessionDate)
		if err != nil {
			return nil, err
		}
		notes = append(notes, &ProgressNote{
			SessionDate:  sessionDate,
			SessionType:  pn.SessionType,
			Summary:      pn.Summary,
			Observations: pn.Observations,
			Agreements:   pn.Agreements,
		})
	}

	var closingNote *ClosingNote
	if in.ClosingNote != nil {
		closingNote = &ClosingNote{
			Reason:          in.ClosingNote.Reason,
			Achievements:    in.ClosingNote.Achievements,
			Recommendations: in.ClosingNote.Recommendations,
			Observations:    in.ClosingNote.Observations,
		}
		if in.ClosingNote.ClosingDate != "" {
			closingDate, err := parseDate("closingDate", in.ClosingNote.ClosingDate)
			if err != nil {
				return nil, err
			}
			closingNote.ClosingDate = &closingDate
		}
	}

	situationIDs, err := s.situations.FilterActive(ctx, dedupe(in.IdentifiedSituations))
	if err != nil {
		return nil, err
	}

	var created *Case
	for attempt := 0; attempt < maxCaseNumberAttempts; attempt++ {
		number, err := s.nextCaseNumber(ctx)
		if err != nil {
			return nil, err
		}

		c := &Case{
			CaseNumber:         number,
			Status:             StatusOpen,
			ParticipantID:      in.ParticipantID,
			ConsultationReason: in.ConsultationReason,
			Intervention:       in.Intervention,
			Referrals:          in.Referrals,
		}

		err = s.cases.InTx(ctx, func(txCtx context.Context) error {
			if err := s.cases.InsertCase(txCtx, c); err != nil {
				return err
			}
			for _, h := range in.PhysicalHealthHistory {
				rec := &PhysicalHealthHistory{CaseID: c.ID, Condition: h.Condition,
					Diagnosis: h.Diagnosis, Treatment: h.Treatment, Observations: h.Observations}
				if err := s.cases.InsertPhysicalHealthHistory(txCtx, rec); err != nil {
					return err
				}
			}
			for _, h := range in.MentalHealthHistory {
				rec := &MentalHealthHistory{CaseID: c.ID, Condition: h.Condition,
					Diagnosis: h.Diagnosis, Treatment: h.Treatment, Observations: h.Observations}
				if err := s.cases.InsertMentalHealthHistory(txCtx, rec); err != nil {
					return err
				}
			}
			if in.Weighing != nil {
				rec := &Weighing{CaseID: c.ID, WeightKg: in.Weighing.WeightKg,
					HeightCm: in.Weighing.HeightCm, Observations: in.Weighing.Observations}
				if err := s.cases.InsertWeighing(txCtx, rec); err != nil {
					return err
				}
			}
			for _, p := range in.InterventionPlans {
				rec := &InterventionPlan{CaseID: c.ID, Objective: p.Objective,
					Activities: p.Activities, Responsible: p.Responsible, Observations: p.Observations}
				if err := s.cases.InsertInterventionPlan(txCtx, rec); err != nil {
					return err
				}
			}
			for _, n := range notes {
				n.CaseID = c.ID
				if err := s.cases.InsertProgressNote(txCtx, n); err != nil {
					return err
				}
			}
			for _, p := range in.FollowUpPlan {
				rec := &FollowUpPlan{CaseID: c.ID, Action: p.Action,
					Commitments: p.Commitments, Observations: p.Observations}
				if err := s.cases.InsertFollowUpPlan(txCtx, rec); err != nil {
					return err
				}
			}
			if closingNote != nil {
				closingNote.CaseID = c.ID
				if err := s.cases.InsertClosingNote(txCtx, closingNote); err != nil {
					return err
				}
			}
			if len(situationIDs) > 0 {
				if err := s.cases.LinkIdentifiedSituations(txCtx, c.ID, situationIDs); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			if errors.Is(err, ErrDuplicateCaseNumber) {
				// Lost the race for this number; regenerate and try again.
				continue
			}
			return nil, err
		}
		created = c
		break
	}
	if created == nil {
		return nil, fmt.Errorf("%w: gave up after %d attempts", ErrDuplicateCaseNumber, maxCaseNumberAttempts)
	}

	return s.cases.GetWithGraph(ctx, created.ID)
}

// nextCaseNumber guesses count+1 and probes for an existing row. The probe
// is best effort; the unique constraint on case_number is the real safety
// net, handled by the caller's retry loop.
func (s *Service) nextCaseNumber(ctx context.Context) (string, error) {
	total, err := s.cases.CountCases(ctx)
	if err != nil {
		return "", err
	}
	next := total + 1
	for attempt := 0; attempt < maxCaseNumberAttempts; attempt++ {
		number := FormatCaseNumber(next)
		exists, err := s.cases.CaseNumberExists(ctx, number)
		if err != nil {
			return "", err
		}
		if !exists {
			return number, nil
		}
		next++
	}
	return "", fmt.Errorf("%w: no free case number near %d", ErrDuplicateCaseNumber, next)
}

// UpdateStatus applies a workflow transition. Moving to closed requires an
// existing closing note and stamps closedAt; reopening keeps closedAt as a
// record of the last closure.
func (s *Service) UpdateStatus(ctx context.Context, caseID int64, newStatus Status) (*Case, error) {
	if !newStatus.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, newStatus)
	}

	c, err := s.cases.GetWithGraph(ctx, caseID)
	if err != nil {
		return nil, err
	}

	if !c.Status.CanTransitionTo(newStatus) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, newStatus)
	}

	var closedAt *time.Time
	if newStatus == StatusClosed {
		if c.ClosingNote == nil {
			return nil, fmt.Errorf("%w: case %s has no closing note", ErrClosingNoteRequired, c.CaseNumber)
		}
		now := time.Now().UTC()
		closedAt = &now
	}

	if err := s.cases.UpdateStatus(ctx, caseID, newStatus, closedAt); err != nil {
		return nil, err
	}
	return s.cases.GetWithGraph(ctx, caseID)
}

// FindAllByParticipant returns a participant's cases, newest first. An
// unknown participant is an error; a participant with no cases is not.
func (s *Service) FindAllByParticipant(ctx context.Context, participantID int64) ([]*Case, error) {
	exists, err := s.participants.Exists(ctx, participantID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: id %d", ErrParticipantNotFound, participantID)
	}
	return s.cases.ListByParticipant(ctx, participantID)
}

func (s *Service) GetCase(ctx context.Context, id int64) (*Case, error) {
	return s.cases.GetWithGraph(ctx, id)
}

func (s *Service) ListCases(ctx context.Context, limit, offset int) ([]*Case, int, error) {
	return s.cases.List(ctx, limit, offset)
}

// ListByUser returns the cases of every participant registered by the
// given user.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]*Case, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrInvalidInput)
	}
	return s.cases.ListByRegistrar(ctx, userID)
}

// AddProgressNote appends one progress note to an existing case.
func (s *Service) AddProgressNote(ctx context.Context, caseID int64, in *ProgressNoteInput) (*ProgressNote, error) {
	if in.SessionDate == "" {
		return nil, fmt.Errorf("%w: sessionDate is required", ErrInvalidInput)
	}
	sessionDate, err := parseDate("sessionDate", in.SessionDate)
	if err != nil {
		return nil, err
	}
	if _, err := s.cases.GetWithGraph(ctx, caseID); err != nil {
		return nil, err
	}
	note := &ProgressNote{
		CaseID:       caseID,
		SessionDate:  sessionDate,
		SessionType:  in.SessionType,
		Summary:      in.Summary,
		Observations: in.Observations,
		Agreements:   in.Agreements,
	}
	if err := s.cases.InsertProgressNote(ctx, note); err != nil {
		return nil, err
	}
	return note, nil
}

func dedupe(ids []int64) []int64 {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
