package auth

type Permission string

const (
	PermRead    Permission = "bridge:read"
	PermControl Permission = "bridge:control"
)

// RolePermissions maps a token role to its permissions.
func RolePermissions(role string) []Permission {
	switch role {
	case "operator", "admin":
		return []Permission{PermRead, PermControl}
	default:
		return []Permission{PermRead}
	}
}

func hasPermission(perms []Permission, required Permission) bool {
	for _, p := range perms {
		if p == required {
			return true
		}
	}
	return false
}
