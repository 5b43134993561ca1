package middleware

import (
	"github.com/gofiber/fiber/v2"

	"orderdesk/apperr"
	"orderdesk/models"
)

// ActorFrom returns the authenticated caller stored by Authenticate.
func ActorFrom(c *fiber.Ctx) (models.Actor, bool) {
	id, _ := c.Locals(localUserID).(string)
	role, ok := c.Locals(localUserRole).(models.Role)
	if !ok || id == "" {
		return models.Actor{}, false
	}
	return models.Actor{ID: id, Role: role}, true
}

// RequireRole lets the request through only for the listed roles.
func RequireRole(roles ...models.Role) fiber.Handler {
	allowed := make(map[models.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(c *fiber.Ctx) error {
		actor, ok := ActorFrom(c)
		if !ok {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"success": false, "error": apperr.KindUnauthorized, "message": "Role not found in token"})
		}
		if !allowed[actor.Role] {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"success": false, "error": apperr.KindUnauthorized, "message": "Insufficient permissions"})
		}
		return c.Next()
	}
}

// AdminRequired is RequireRole(admin).
var AdminRequired = RequireRole(models.RoleAdmin)
