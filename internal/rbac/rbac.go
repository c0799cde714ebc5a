package rbac

type Role string
type Action string

const (
	RoleListener    Role = "listener"
	RoleDJ          Role = "dj"
	RoleBroadcaster Role = "broadcaster"
	RoleAdmin       Role = "admin"
)

const (
	ActionCheckAvailability     Action = "check_availability"
	ActionSearchDirectory       Action = "search_directory"
	ActionManagePendingProfiles Action = "manage_pending_profiles"
	ActionAdmin                 Action = "admin"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleBroadcaster:
		return action == ActionCheckAvailability || action == ActionSearchDirectory || action == ActionManagePendingProfiles
	case RoleDJ, RoleListener:
		return action == ActionCheckAvailability
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleListener, RoleDJ, RoleBroadcaster, RoleAdmin:
		return Role(role)
	default:
		return RoleListener
	}
}
