package domain

// Role is an authorization role asserted by the identity provider.
type Role string

const (
	RoleCustomer          Role = "customer"
	RoleFinancialReviewer Role = "financial_reviewer"
	RoleSuperAdmin        Role = "super_admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleFinancialReviewer || r == RoleSuperAdmin
}

// IsAdmin is true for roles allowed to move money on behalf of customers.
func (r Role) IsAdmin() bool {
	return r == RoleFinancialReviewer || r == RoleSuperAdmin
}

// Actor is a verified caller identity. ID is a customer id for RoleCustomer
// and an admin id otherwise.
type Actor struct {
	ID   int64 `json:"id"`
	Role Role  `json:"role"`
}
