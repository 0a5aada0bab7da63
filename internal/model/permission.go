package model

// Permission represents a string code for a specific system action.
type Permission string

const (
	// PermissionTenantsBulk allows submitting tenant bulk create/update uploads.
	PermissionTenantsBulk Permission = "tenants:bulk"

	// PermissionEnrollmentsBulk allows bulk enrollment mutations and rollovers.
	PermissionEnrollmentsBulk Permission = "enrollments:bulk"

	// PermissionOperationsRead allows polling and listing bulk operations.
	PermissionOperationsRead Permission = "operations:read"

	// PermissionClassesRead allows viewing class capacity.
	PermissionClassesRead Permission = "classes:read"

	// PermissionClassesWrite allows reconciling class counters.
	PermissionClassesWrite Permission = "classes:write"
)

// AllPermissions lists every permission code, used when minting operator tokens.
var AllPermissions = []Permission{
	PermissionTenantsBulk,
	PermissionEnrollmentsBulk,
	PermissionOperationsRead,
	PermissionClassesRead,
	PermissionClassesWrite,
}
