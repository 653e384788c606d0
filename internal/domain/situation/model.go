package situation

// IdentifiedSituation is a catalog entry describing an issue or condition
// that can be associated with a case. The catalog itself is maintained
// elsewhere; case creation only needs to know which ids are active.
type IdentifiedSituation struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}
