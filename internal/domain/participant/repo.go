package participant

import "context"

type Repository interface {
	Exists(ctx context.Context, id int64) (bool, error)
	GetByID(ctx context.Context, id int64) (*Participant, error)
}
