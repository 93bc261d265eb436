package models

// RoleAdmin is the role allowed to run administrative ledger operations such as
// reversals and account status changes.
const RoleAdmin = "admin"

// Principal is the explicit authorization context of a caller. It is passed into
// every orchestrator call instead of being read from ambient request state.
type Principal struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

// IsPrivileged reports whether the principal holds elevated privilege.
func (p Principal) IsPrivileged() bool {
	return p.Role == RoleAdmin
}

// SystemPrincipal is used by trusted in-process callers such as the CLI.
var SystemPrincipal = Principal{UserID: "system", Role: RoleAdmin}

// CanReverse reports whether the principal may reverse completed transfers.
func (p Principal) CanReverse() bool {
	return p.IsPrivileged()
}
