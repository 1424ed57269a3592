package model

// Role はアカウントの権限ロールを表す。
// ロールは customer < staff < admin の全順序を持つ。
type Role string

const (
	// RoleCustomer はストアフロントの一般顧客。最下位のティア。
	RoleCustomer Role = "customer"
	// RoleStaff はバックオフィスの運用スタッフ。
	RoleStaff Role = "staff"
	// RoleAdmin はバックオフィスの管理者。最上位のティア。
	RoleAdmin Role = "admin"
)

// Tier はロールの順位を返す。未知のロールや空文字は最下位のティアとして扱う。
func (r Role) Tier() int {
	switch r {
	case RoleAdmin:
		return 2
	case RoleStaff:
		return 1
	default:
		return 0
	}
}

// IsKnown はロールが定義済みのいずれかであるかを判定する。
func (r Role) IsKnown() bool {
	switch r {
	case RoleCustomer, RoleStaff, RoleAdmin:
		return true
	default:
		return false
	}
}

// RoleSatisfies はactualのティアがrequiredのティア以上であるかを判定する。
// 副作用はなく、任意の文字列に対してpanicしない。
func RoleSatisfies(actual, required Role) bool {
	return actual.Tier() >= required.Tier()
}
