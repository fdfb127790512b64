package rbac

// Role names. Keep these stable; they are embedded in issued tokens.
const (
	RoleUser    = "user"
	RoleSupport = "support"
	RoleAdmin   = "admin"
)

func IsAdmin(role string) bool { return role == RoleAdmin }

func IsKnownRole(role string) bool {
	switch role {
	case RoleUser, RoleSupport, RoleAdmin:
		return true
	default:
		return false
	}
}
