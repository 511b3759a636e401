package auth

// Operator roles
const (
	// RoleAdmin may do everything, including approving windows
	RoleAdmin = "admin"
	// RoleOperator may create and edit windows and manage exceptions
	RoleOperator = "operator"
	// RoleViewer may only read windows and the audit log
	RoleViewer = "viewer"
)

// CanPropose reports whether role may create, edit or delete pending windows
func CanPropose(role string) bool {
	return role == RoleAdmin || role == RoleOperator
}

// CanGovern reports whether role may approve, reject, enable, disable, abort or
// complete windows
func CanGovern(role string) bool {
	return role == RoleAdmin
}
