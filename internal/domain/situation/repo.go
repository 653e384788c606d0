package situation

import "context"

type Repository interface {
	// FilterActive returns the subset of ids that correspond to an active
	// catalog entry. Unknown and inactive ids are dropped, not errored.
	FilterActive(ctx context.Context, ids []int64) ([]int64, error)
}
