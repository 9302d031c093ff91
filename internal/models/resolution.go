package models

// ResolutionSource records which lookup produced a contact identity.
type ResolutionSource string

const (
	SourceCache      ResolutionSource = "cache"
	SourceMapping    ResolutionSource = "mapping_store"
	SourceInvitation ResolutionSource = "invitation_token"
)

// Resolution is the transient outcome of an identity lookup. It is never
// persisted; the source annotation exists for observability only.
type Resolution struct {
	ContactID string           `json:"contact_id"`
	Source    ResolutionSource `json:"source"`
}
