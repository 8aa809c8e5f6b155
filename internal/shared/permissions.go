package shared

// Permission keys understood by the platform. The catalog is an opaque
// vocabulary; resolution never interprets key contents.
const (
	PermPutUserProfilePermissions = "putUserProfilePermissions"
	PermPutRolePermissions        = "putRolePermissions"
	PermAddDeleteEditOwners       = "addDeleteEditOwners"

	PermSeeUsersManagement = "seeUsersManagement"
	PermSeeRolesManagement = "seeRolesManagement"
	PermSeePermissionsLog  = "seePermissionsLog"

	PermPostRole   = "postRole"
	PermPutRole    = "putRole"
	PermDeleteRole = "deleteRole"

	PermViewSchedule = "viewSchedule"
	PermRequestSwap  = "requestSwap"
	PermSeeBadges    = "seeBadges"
)

// RoleOwner is the top-privilege role. Modifying permissions of its members
// requires PermAddDeleteEditOwners on top of the base update permission.
const RoleOwner = "Owner"

// CoreKeys lists every permission key the platform itself references.
func CoreKeys() []string {
	return []string{
		PermPutUserProfilePermissions,
		PermPutRolePermissions,
		PermAddDeleteEditOwners,
		PermSeeUsersManagement,
		PermSeeRolesManagement,
		PermSeePermissionsLog,
		PermPostRole,
		PermPutRole,
		PermDeleteRole,
		PermViewSchedule,
		PermRequestSwap,
		PermSeeBadges,
	}
}
