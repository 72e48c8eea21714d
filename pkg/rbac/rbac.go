package rbac

// Permissions over the notification surface.
const (
	PermissionCreateGeneral = "notification:create_general"
	PermissionCreateUrgent  = "notification:create_urgent"
	PermissionCreateRun     = "notification:create_run"
	PermissionTriggerDigest = "digest:trigger"
	PermissionReadQuota     = "quota:read"
)

// Member roles. LIRFs (run leaders) and admins count as elevated.
const (
	RoleMember = "member"
	RoleLIRF   = "lirf"
	RoleAdmin  = "admin"
)

var rolePermissions = map[string][]string{
	RoleLIRF: {
		PermissionCreateGeneral,
		PermissionCreateUrgent,
		PermissionCreateRun,
	},
	RoleAdmin: {
		PermissionCreateGeneral,
		PermissionCreateUrgent,
		PermissionCreateRun,
		PermissionTriggerDigest,
		PermissionReadQuota,
	},
}

// HasPermission reports whether a role grants the permission.
func HasPermission(role string, permission string) bool {
	for _, p := range rolePermissions[role] {
		if p == permission {
			return true
		}
	}
	return false
}

// CheckPermission returns a PermissionDeniedError when the role lacks the
// permission, which handlers map to 403.
func CheckPermission(role string, permission string) error {
	if !HasPermission(role, permission) {
		return &PermissionDeniedError{
			Role:       role,
			Permission: permission,
		}
	}
	return nil
}

type PermissionDeniedError struct {
	Role       string
	Permission string
}

func (e *PermissionDeniedError) Error() string {
	return "insufficient permissions"
}
