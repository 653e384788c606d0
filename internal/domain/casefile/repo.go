package casefile

import (
	"context"
	"time"
)

// Repository owns durable storage of a case and its sub-record graph.
// Writes issued inside an InTx callback commit or roll back together.
type Repository interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error

	InsertCase(ctx context.Context, c *Case) error
	InsertPhysicalHealthHistory(ctx context.Context, h *PhysicalHealthHistory) error
	InsertMentalHealthHistory(ctx context.Context, h *MentalHealthHistory) error
	InsertWeighing(ctx context.Context, w *Weighing) error
	InsertInterventionPlan(ctx context.Context, p *InterventionPlan) error
	InsertProgressNote(ctx context.Context, n *ProgressNote) error
	InsertFollowUpPlan(ctx context.Context, p *FollowUpPlan) error
	InsertClosingNote(ctx context.Context, n *ClosingNote) error
	LinkIdentifiedSituations(ctx context.Context, caseID int64, situationIDs []int64) error

	CountCases(ctx context.Context) (int, error)
	CaseNumberExists(ctx context.Context, number string) (bool, error)
	GetWithGraph(ctx context.Context, id int64) (*Case, error)
	List(ctx context.Context, limit, offset int) ([]*Case, int, error)
	ListByParticipant(ctx context.Context, participantID int64) ([]*Case, error)
	ListByRegistrar(ctx context.Context, userID string) ([]*Case, error)
	UpdateStatus(ctx context.Context, id int64, status Status, closedAt *time.Time) error
}
