package middleware

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"

	"orderdesk/apperr"
	"orderdesk/config"
	"orderdesk/models"
	"orderdesk/utils"
)

const (
	localUserID   = "userID"
	localUserRole = "userRole"
)

func unauthorized(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "error": apperr.KindUnauthorized, "message": message})
}

// Authenticate verifies the Bearer JWT and stores the caller's id and role in
// the request locals. Tokens are issued elsewhere; only the role claim is
// trusted here.
func Authenticate(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return unauthorized(c, "Missing authorization header")
	}

	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == authHeader { // No "Bearer " prefix
		return unauthorized(c, "Invalid token format")
	}

	claims := &models.JwtClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fiber.ErrUnauthorized
		}
		return []byte(config.AppConfig.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return unauthorized(c, "Invalid or expired token")
	}

	role, ok := utils.ValidateAndNormalizeRole(claims.Role)
	if !ok || claims.UserID == "" {
		return unauthorized(c, "Token carries no valid user or role")
	}

	c.Locals(localUserID, claims.UserID)
	c.Locals(localUserRole, role)
	return c.Next()
}

// SignToken creates an HS256 token for userID and role. The server never
// issues tokens itself; the CLI and tests use this to talk to it.
func SignToken(secret, userID string, role models.Role, ttl time.Duration) (string, error) {
	claims := models.JwtClaims{
		UserID: userID,
		Role:   string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
