package jwt

// Kind tags a signed payload as an access or a refresh credential.
type Kind string

const (
	// KindAccess marks short-lived credentials presented on every request.
	KindAccess Kind = "access"
	// KindRefresh marks long-lived credentials exchanged for a new pair.
	KindRefresh Kind = "refresh"
)

// Payload is the decoded body of a verified credential. The set of
// implementations is closed: AccessPayload and RefreshPayload.
type Payload interface {
	Kind() Kind
	isPayload()
}

// AccessPayload identifies the user behind an access credential.
type AccessPayload struct {
	UserID string
}

// RefreshPayload identifies the persisted refresh record a refresh credential
// was issued for, plus the rotation family it belongs to.
type RefreshPayload struct {
	UserID   string
	TokenID  string
	FamilyID string
}

func (AccessPayload) Kind() Kind  { return KindAccess }
func (AccessPayload) isPayload()  {}
func (RefreshPayload) Kind() Kind { return KindRefresh }
func (RefreshPayload) isPayload() {}

func decodePayload(c *claims) (Payload, error) {
	if c.UserID == "" {
		return nil, ErrInvalid
	}
	switch c.Type {
	case KindAccess:
		return AccessPayload{UserID: c.UserID}, nil
	case KindRefresh:
		if c.TokenID == "" {
			return nil, ErrInvalid
		}
		return RefreshPayload{UserID: c.UserID, TokenID: c.TokenID, FamilyID: c.FamilyID}, nil
	default:
		return nil, ErrInvalid
	}
}
