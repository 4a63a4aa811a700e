package domain

// Role is the access level carried in a bearer token.
type Role string

const (
	RoleViewer Role = "viewer"
	RoleEditor Role = "editor"
	RoleAdmin  Role = "admin"
)

var roleRank = map[Role]int{
	RoleViewer: 1,
	RoleEditor: 2,
	RoleAdmin:  3,
}

// AtLeast reports whether r grants the privileges of required.
// Unknown roles grant nothing.
func (r Role) AtLeast(required Role) bool {
	return roleRank[r] > 0 && roleRank[r] >= roleRank[required]
}
