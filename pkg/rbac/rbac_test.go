package rbac

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasPermission(t *testing.T) {
	tests := []struct {
		role       string
		permission string
		want       bool
	}{
		{RoleUser, PermissionUpdateWorkflow, true},
		{RoleUser, PermissionReadTask, true},
		{RoleUser, PermissionAnalyticsSelf, true},
		{RoleUser, PermissionAnalyticsAdmin, false},
		{RoleUser, PermissionManageTask, false},
		{"", PermissionReadTask, true},
		{"", PermissionManageTask, false},
		{RoleAdmin, PermissionAnalyticsAdmin, true},
		{RoleAdmin, PermissionManageTask, true},
		{RoleAdmin, PermissionUpdateWorkflow, true},
		{"guest", PermissionReadTask, false},
		{RoleAdmin, "task:unknown", false},
	}

	for _, tt := range tests {
		t.Run(tt.role+"/"+tt.permission, func(t *testing.T) {
			assert.Equal(t, tt.want, HasPermission(tt.role, tt.permission))
		})
	}
}

func TestCheckPermission(t *testing.T) {
	require.NoError(t, CheckPermission(1, RoleAdmin, PermissionManageTask))

	err := CheckPermission(7, "", PermissionAnalyticsAdmin)
	var denied *PermissionDeniedError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, 7, denied.UserID)
	assert.Equal(t, RoleUser, denied.Role)
	assert.Equal(t, PermissionAnalyticsAdmin, denied.Permission)
	assert.Equal(t, "insufficient permissions", err.Error())
}
