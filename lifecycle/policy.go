package lifecycle

import "orderdesk/models"

type edge struct {
	from, to models.Status
}

// stateGraph lists every legal status change. Completed and Cancelled have no
// outgoing edges.
var stateGraph = map[edge]bool{
	{models.StatusFoodProcessing, models.StatusOutForDelivery}: true,
	{models.StatusOutForDelivery, models.StatusDelivered}:      true,
	{models.StatusDelivered, models.StatusCompleted}:           true,
	{models.StatusFoodProcessing, models.StatusCancelled}:      true,
	{models.StatusOutForDelivery, models.StatusCancelled}:      true,
}

// rolePermissions lists the edges a role may drive. Admin and cashier are
// handled in CanPerform since they may drive every edge.
var rolePermissions = map[models.Role][]edge{
	models.RoleKitchen:  {{models.StatusFoodProcessing, models.StatusOutForDelivery}},
	models.RoleDelivery: {{models.StatusOutForDelivery, models.StatusDelivered}},
	models.RoleCustomer: {{models.StatusDelivered, models.StatusCompleted}},
	// a failed checkout cancels the order before anyone starts cooking
	models.RolePaymentSystem: {{models.StatusFoodProcessing, models.StatusCancelled}},
}

var paymentRoles = map[models.Role]bool{
	models.RoleDelivery:      true,
	models.RoleCashier:       true,
	models.RoleAdmin:         true,
	models.RolePaymentSystem: true,
}

var orderingRoles = map[models.Role]bool{
	models.RoleCustomer: true,
	models.RoleCashier:  true,
	models.RoleAdmin:    true,
}

// IsEdge reports whether from -> to is part of the state graph.
func IsEdge(from, to models.Status) bool {
	return stateGraph[edge{from, to}]
}

// CanPerform reports whether role may drive from -> to. It does not check
// that the edge exists; callers check IsEdge first.
func CanPerform(role models.Role, from, to models.Status) bool {
	if role == models.RoleAdmin || role == models.RoleCashier {
		return true
	}
	for _, e := range rolePermissions[role] {
		if e.from == from && e.to == to {
			return true
		}
	}
	return false
}

// CanConfirmPayment reports whether role may set the payment flag.
func CanConfirmPayment(role models.Role) bool {
	return paymentRoles[role]
}

// CanPlaceOrder reports whether role may create orders.
func CanPlaceOrder(role models.Role) bool {
	return orderingRoles[role]
}

// NextStatuses returns the statuses reachable from s by role, in lifecycle
// order. Dashboards use it to decide which actions to offer.
func NextStatuses(role models.Role, s models.Status) []models.Status {
	var next []models.Status
	for _, to := range models.AllStatuses {
		if IsEdge(s, to) && CanPerform(role, s, to) {
			next = append(next, to)
		}
	}
	return next
}
