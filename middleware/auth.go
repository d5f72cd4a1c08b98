package middleware

import (
	"fmt"
	"os"
	"strings"

	"healthapp/constants"
	"healthapp/types"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// VerifyJWT verifies a bearer token against JWT_SECRET and returns its claims.
func VerifyJWT(tokenString string) (jwt.MapClaims, error) {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is not configured")
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	return claims, nil
}

// IsAuthenticated validates the bearer token, resolves the caller's role
// against the closed role enum, and stashes identity in Locals. An empty
// allowedRoles list means any valid role passes.
func IsAuthenticated(allowedRoles []constants.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return c.Status(fiber.StatusUnauthorized).JSON(types.ApiResponse{
				Status:  fiber.StatusUnauthorized,
				Message: "Missing or malformed authorization header",
			})
		}

		claims, err := VerifyJWT(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(types.ApiResponse{
				Status:  fiber.StatusUnauthorized,
				Message: "Invalid or expired token",
			})
		}

		userID, _ := claims["user_id"].(string)
		roleRaw, _ := claims["role"].(string)
		role, ok := constants.ParseRole(roleRaw)
		if userID == "" || !ok {
			return c.Status(fiber.StatusForbidden).JSON(types.ApiResponse{
				Status:  fiber.StatusForbidden,
				Message: "Token does not carry a recognised identity",
			})
		}

		if len(allowedRoles) > 0 && !roleAllowed(role, allowedRoles) {
			return c.Status(fiber.StatusForbidden).JSON(types.ApiResponse{
				Status:  fiber.StatusForbidden,
				Message: "Insufficient permissions",
			})
		}

		c.Locals("user", claims)
		c.Locals("userID", userID)
		c.Locals("role", role)
		return c.Next()
	}
}

// RequireRoles creates a middleware that only passes the given roles.
func RequireRoles(roles ...constants.Role) fiber.Handler {
	return IsAuthenticated(roles)
}

// RequireAuthentication only requires a valid token, any role.
func RequireAuthentication() fiber.Handler {
	return IsAuthenticated(nil)
}

// CallerIdentity returns the authenticated caller's id and role from Locals.
func CallerIdentity(c *fiber.Ctx) (string, constants.Role, bool) {
	userID, okID := c.Locals("userID").(string)
	role, okRole := c.Locals("role").(constants.Role)
	return userID, role, okID && okRole
}

func roleAllowed(role constants.Role, allowed []constants.Role) bool {
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}
