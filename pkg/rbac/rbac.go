package rbac

import "slices"

// 权限常量
const (
	// 普通操作权限
	PermissionUpdateWorkflow = "workflow:update"
	PermissionReadTask       = "task:read"
	PermissionAnalyticsSelf  = "analytics:self"

	// 管理权限
	PermissionAnalyticsAdmin = "analytics:admin"
	PermissionManageTask     = "task:manage"
)

// 角色常量
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// 角色权限映射
var rolePermissions = map[string][]string{
	RoleUser: {
		PermissionUpdateWorkflow,
		PermissionReadTask,
		PermissionAnalyticsSelf,
	},
	RoleAdmin: {
		PermissionUpdateWorkflow,
		PermissionReadTask,
		PermissionAnalyticsSelf,
		PermissionAnalyticsAdmin,
		PermissionManageTask,
	},
}

// NormalizeRole 空角色按普通用户处理
func NormalizeRole(role string) string {
	if role == "" {
		return RoleUser
	}
	return role
}

// HasPermission 检查角色是否有指定权限，未知角色没有任何权限
func HasPermission(role, permission string) bool {
	permissions, ok := rolePermissions[NormalizeRole(role)]
	if !ok {
		return false
	}
	return slices.Contains(permissions, permission)
}

// CheckPermission 检查角色是否有指定权限（返回错误而不是布尔值，便于处理）
func CheckPermission(userID int, role, permission string) error {
	if !HasPermission(role, permission) {
		return &PermissionDeniedError{
			UserID:     userID,
			Role:       NormalizeRole(role),
			Permission: permission,
		}
	}
	return nil
}

// PermissionDeniedError 表示权限不足的错误
type PermissionDeniedError struct {
	UserID     int
	Role       string
	Permission string
}

func (e *PermissionDeniedError) Error() string {
	return "insufficient permissions"
}
