package model

// Role is the caller's role in the surrounding competition-event system.
// It is a small closed enumeration; admission policy is an explicit
// capability table rather than string comparisons scattered through the
// service.
type Role string

const (
	RoleOwner    Role = "owner"
	RoleAdmin    Role = "admin"
	RoleAthlete  Role = "athlete"
	RoleOfficial Role = "official"
)

type capability struct {
	canRegister bool
}

// capabilities is the full permission surface of the engine. Roles absent
// from the table have no capabilities.
var capabilities = map[Role]capability{
	RoleOwner:    {canRegister: true},
	RoleAdmin:    {canRegister: true},
	RoleAthlete:  {canRegister: true},
	RoleOfficial: {canRegister: false},
}

// CanRegister is the permission predicate consumed by the registration
// service. Unknown roles cannot register.
func CanRegister(r Role) bool {
	return capabilities[r].canRegister
}

// ValidRole reports whether r is one of the known roles.
func ValidRole(r Role) bool {
	_, ok := capabilities[r]
	return ok
}
