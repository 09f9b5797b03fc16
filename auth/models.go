package auth

type Role string

const (
	RoleAgent      Role = "agent"
	RoleBackOffice Role = "back_office"
	RoleFinance    Role = "finance"
)

// Principal is the authenticated caller extracted from a bearer token.
// Credential storage and login live in the surrounding back office; this
// subsystem only verifies the tokens it is handed.
type Principal struct {
	UserID string
	Role   Role
}
