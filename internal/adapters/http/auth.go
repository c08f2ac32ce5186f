package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const userIDLocal = "user_id"

// AuthMiddleware resolves the current user. With a secret configured the
// user comes from the `sub` claim of an HS256 bearer token. Without one the
// X-User-ID header is trusted, which is only meant for local development.
func AuthMiddleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if secret == "" {
			if uid := c.Get("X-User-ID"); uid != "" {
				c.Locals(userIDLocal, uid)
			}
			return c.Next()
		}

		raw, ok := strings.CutPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
		if !ok || raw == "" {
			return c.Next()
		}
		token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil {
			return errUnauthorized(c, "invalid token")
		}
		sub, err := token.Claims.GetSubject()
		if err != nil || sub == "" {
			return errUnauthorized(c, "token has no subject")
		}
		c.Locals(userIDLocal, sub)
		return c.Next()
	}
}

// RequireUser rejects requests without an authenticated user.
func RequireUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if currentUser(c) == "" {
			return errUnauthorized(c, "authentication required")
		}
		return c.Next()
	}
}

func currentUser(c *fiber.Ctx) string {
	uid, _ := c.Locals(userIDLocal).(string)
	return uid
}
