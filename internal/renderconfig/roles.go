package renderconfig

import "authwidget/pkg/tenants"

// RoleOption is a role the registering user may pick.
type RoleOption struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Description string `json:"description,omitempty"`
	IsDefault   bool   `json:"is_default"`
}

// reservedRole is excluded from registration on records that predate the
// eligibility flag, unless it is also the default role.
const reservedRole = "admin"

// FilterRoles keeps the roles open for self-registration, preserving order.
func FilterRoles(roles []tenants.Role) []RoleOption {
	out := make([]RoleOption, 0, len(roles))
	for _, r := range roles {
		if !eligible(r) {
			continue
		}
		out = append(out, RoleOption{Name: r.Name, DisplayName: r.DisplayName, Description: r.Description, IsDefault: r.IsDefault})
	}
	return out
}

func eligible(r tenants.Role) bool {
	if r.AvailableForRegistration != nil {
		return *r.AvailableForRegistration
	}
	return r.IsDefault || r.Name != reservedRole
}

// DefaultRole returns the name of the first default role, or "".
func DefaultRole(roles []RoleOption) string {
	for _, r := range roles {
		if r.IsDefault {
			return r.Name
		}
	}
	return ""
}
