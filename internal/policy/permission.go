// Package policy decides what an authenticated user may do. Permissions come
// from the user's profile; resource policies add per-record checks on top.
package policy

import "strings"

// Action describes the kind of operation a user wants to perform.
type Action string

const (
	ActionView   Action = "view"
	ActionList   Action = "list"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionSign   Action = "sign"
)

// Resource types guarded by the gate.
const (
	ResourceTemplate  = "signature_template"
	ResourceSaleOrder = "sale_order"
	ResourceSettings  = "settings"
)

// Permission is "resource:action", e.g. "sale_order:sign".
type Permission string

func NewPermission(resourceType string, action Action) Permission {
	return Permission(resourceType + ":" + string(action))
}

// Parse splits a permission into resource type and action.
func (p Permission) Parse() (resourceType string, action Action) {
	parts := strings.SplitN(string(p), ":", 2)
	if len(parts) != 2 {
		return "", ""
	}
	return parts[0], Action(parts[1])
}

const (
	Wildcard                       = "*"
	PermissionSuperAdmin Permission = "*:*"
)

// Matches reports whether p grants requested. "*:*" grants everything and
// "sale_order:*" grants every action on sale orders.
func (p Permission) Matches(requested Permission) bool {
	if p == PermissionSuperAdmin || p == requested {
		return true
	}
	res, act := p.Parse()
	reqRes, _ := requested.Parse()
	return res == reqRes && string(act) == Wildcard
}
