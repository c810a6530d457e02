package model

import "github.com/google/uuid"

const RoleService = "service"

type Principal struct {
	UserID uuid.UUID
	Role   string
}

// IsService reports whether the caller is a machine client allowed to request
// un-redacted internal responses.
func (p Principal) IsService() bool {
	return p.Role == RoleService
}
