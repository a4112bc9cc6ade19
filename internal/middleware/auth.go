// Package middleware provides HTTP middleware components for the application.
// It includes authentication and authorization middleware for the fiber
// web framework.
package middleware

import (
	"context"
	"strings"

	"amerifund/internal/config"
	"amerifund/internal/models"
	"amerifund/internal/utils"
	"amerifund/internal/utils/response"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// AccessCookie holds the access token for browser clients.
const AccessCookie = "access_token"

// TokenVersioner reports the current token version of a user; tokens that
// carry an older version were issued before a logout.
type TokenVersioner interface {
	GetUserTokenVersion(ctx context.Context, userID uint) (int, error)
}

// AuthMiddleware handles JWT token validation and user authentication.
type AuthMiddleware struct {
	versions TokenVersioner
	jwt      config.JWTConfig
	log      *zap.Logger
}

func NewAuthMiddleware(versions TokenVersioner, jwtCfg config.JWTConfig, log *zap.Logger) *AuthMiddleware {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthMiddleware{versions: versions, jwt: jwtCfg, log: log}
}

// TokenFromRequest returns the access token from the cookie, falling back
// to an Authorization: Bearer header.
func TokenFromRequest(c *fiber.Ctx) string {
	if token := c.Cookies(AccessCookie); token != "" {
		return token
	}
	if header := c.Get(fiber.HeaderAuthorization); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

// Authenticate parses and checks the request token without rejecting the
// request. It returns nil when there is no usable token.
func (m *AuthMiddleware) Authenticate(c *fiber.Ctx) *models.UserClaims {
	token := TokenFromRequest(c)
	if token == "" {
		return nil
	}

	claims, err := utils.ParseToken(m.jwt, token)
	if err != nil {
		m.log.Debug("token rejected", zap.Error(err))
		return nil
	}

	current, err := m.versions.GetUserTokenVersion(c.UserContext(), claims.UserID)
	if err != nil {
		m.log.Info("token user lookup failed", zap.Uint("user_id", claims.UserID), zap.Error(err))
		return nil
	}
	if claims.TokenVersion != current {
		m.log.Info("token version mismatch", zap.Uint("user_id", claims.UserID),
			zap.Int("token_version", claims.TokenVersion), zap.Int("current_version", current))
		return nil
	}
	return claims
}

// Handler validates the token and stores the claims under "claims".
func (m *AuthMiddleware) Handler(c *fiber.Ctx) error {
	claims := m.Authenticate(c)
	if claims == nil {
		return response.Unauthorized(c)
	}

	c.Locals("claims", claims)
	c.Locals("userID", claims.UserID)
	return c.Next()
}

// AdminAuthMiddleware verifies that the request has valid admin claims.
func AdminAuthMiddleware(c *fiber.Ctx) error {
	claims, err := utils.GetUserClaims(c)
	if err != nil {
		return response.Unauthorized(c)
	}
	if claims.Role != models.RoleAdmin {
		return response.Forbidden(c)
	}
	return c.Next()
}

// HasPermission returns a middleware that checks for a specific permission.
func HasPermission(permission string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, err := utils.GetUserClaims(c)
		if err != nil {
			return response.Unauthorized(c)
		}
		if claims.Role == models.RoleAdmin || claims.HasPermission(permission) {
			return c.Next()
		}
		return response.Forbidden(c)
	}
}
