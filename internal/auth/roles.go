package auth

import "possale/internal/validation"

const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
	RoleViewer  = "viewer"
)

func ValidRole(role string) bool {
	for _, r := range validation.ValidRoles {
		if r == role {
			return true
		}
	}
	return false
}

// CanSell reports whether role may commit and reverse sales.
func CanSell(role string) bool {
	return role == RoleAdmin || role == RoleCashier
}

// CanManageSettings reports whether role may change counter settings.
func CanManageSettings(role string) bool {
	return role == RoleAdmin
}
