package utils

import (
	"strings"

	"orderdesk/models"
)

// clientRoles are the roles a bearer token may carry, in dashboard order.
// payment-system is internal and never accepted from a client.
var clientRoles = []models.Role{
	models.RoleKitchen,
	models.RoleDelivery,
	models.RoleCustomer,
	models.RoleCashier,
	models.RoleAdmin,
}

// ValidateAndNormalizeRole trims and lowercases role and reports whether a
// client may present it.
func ValidateAndNormalizeRole(role string) (models.Role, bool) {
	normalized := models.Role(strings.ToLower(strings.TrimSpace(role)))
	for _, r := range clientRoles {
		if r == normalized {
			return normalized, true
		}
	}
	return normalized, false
}

func ClientRoles() []models.Role {
	return append([]models.Role(nil), clientRoles...)
}
