package auth

import "payportal/models"

// Permission is the closed set of actions the gate can authorize.
type Permission int

const (
	PermSubmitTransfer Permission = iota + 1
	PermViewOwnAccount
	PermReviewTransfers
	PermManageAdmins
)

func (p Permission) String() string {
	switch p {
	case PermSubmitTransfer:
		return "submit_transfer"
	case PermViewOwnAccount:
		return "view_own_account"
	case PermReviewTransfers:
		return "review_transfers"
	case PermManageAdmins:
		return "manage_admins"
	default:
		return "unknown"
	}
}

var grants = map[models.Role]map[Permission]bool{
	models.RoleUser: {
		PermSubmitTransfer: true,
		PermViewOwnAccount: true,
	},
	models.RoleAdmin: {
		PermSubmitTransfer:  true,
		PermViewOwnAccount:  true,
		PermReviewTransfers: true,
		PermManageAdmins:    true,
	},
}

// Allowed reports whether role holds permission p. Unknown roles hold nothing.
func Allowed(role models.Role, p Permission) bool {
	return grants[role][p]
}
