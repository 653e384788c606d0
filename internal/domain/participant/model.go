package participant

import "time"

// Participant is the person a case is opened for. Registration and profile
// management live elsewhere; case handling only needs the identity, the
// display name, and which user registered the participant.
type Participant struct {
	ID           int64     `json:"id"`
	FullName     string    `json:"fullName"`
	DocumentID   string    `json:"documentId,omitempty"`
	RegisteredBy string    `json:"registeredBy,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
