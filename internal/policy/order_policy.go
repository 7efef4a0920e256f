package policy

import (
	"context"

	"github.com/diewo77/go-esign/internal/models"
)

// OrderPolicy restricts signature actions to the salesperson of an order.
// Orders without salesperson are open to every user holding the permission,
// and administrators may act on any order.
type OrderPolicy struct{}

func (OrderPolicy) Can(_ context.Context, userID uint, profile Profile, action Action, resource any) bool {
	order, ok := resource.(*models.SaleOrder)
	if !ok {
		return false
	}
	if action == ActionView || profile.HasPermission(PermissionSuperAdmin) {
		return true
	}
	return order.UserID == nil || *order.UserID == userID
}
