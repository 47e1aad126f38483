package domain

type Role string

const (
	RoleUnknown  Role = ""
	RoleStandard Role = "standard"
	RoleAdmin    Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleStandard || r == RoleAdmin
}

// SessionSnapshot is the persisted mirror of the signed-in identity.
// Role stays RoleUnknown until the profile has been fetched at least once.
type SessionSnapshot struct {
	UID         string `json:"uid"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	PhotoURL    string `json:"photo_url"`
	Role        Role   `json:"role"`
}
