package handlers

import (
	"errors"

	"amerifund/internal/middleware"
	"amerifund/internal/models"
	"amerifund/internal/services/auth"
	"amerifund/internal/services/wizard"
	"amerifund/internal/session"
	"amerifund/internal/utils/response"
	"amerifund/internal/validation"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type AuthHandler struct {
	authService auth.Service
	wizard      wizard.Service
	auth        *middleware.AuthMiddleware
	cookies     CookieConfig
	log         *zap.Logger
}

func NewAuthHandler(authService auth.Service, wizardService wizard.Service, authMiddleware *middleware.AuthMiddleware, cookies CookieConfig, log *zap.Logger) *AuthHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthHandler{
		authService: authService,
		wizard:      wizardService,
		auth:        authMiddleware,
		cookies:     cookies,
		log:         log,
	}
}

// RegisterUser creates an account. The client is sent to the login step.
func (h *AuthHandler) RegisterUser(c *fiber.Ctx) error {
	var input models.RegisterInput
	if err := c.BodyParser(&input); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	reg, err := h.authService.Register(c.UserContext(), &input, c.IP())
	if err != nil {
		var fields validation.FieldErrors
		switch {
		case errors.As(err, &fields):
			return response.ValidationError(c, fields, fiber.Map{"username": input.Username, "email": input.Email})
		case errors.Is(err, auth.ErrDuplicateAccount):
			return response.Conflict(c, "Username or email already registered.")
		default:
			h.log.Error("registration failed", zap.Error(err))
			return response.ServerError(c, "Registration failed")
		}
	}

	flashes := []wizard.Flash{{Level: wizard.FlashSuccess, Message: "Registration successful! Please log in."}}
	if reg.Warning != "" {
		flashes = append(flashes, wizard.Flash{Level: wizard.FlashWarning, Message: reg.Warning})
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"user": fiber.Map{
			"id":       reg.User.ID,
			"username": reg.User.Username,
			"email":    reg.User.Email,
		},
		"next":    "/login",
		"flashes": flashes,
	})
}

// LoginUser authenticates the user, sets the auth cookies and resumes any
// pending application.
func (h *AuthHandler) LoginUser(c *fiber.Ctx) error {
	var input models.LoginInput
	if err := c.BodyParser(&input); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	sess, err := h.authService.Login(c.UserContext(), &input)
	if err != nil {
		var fields validation.FieldErrors
		switch {
		case errors.As(err, &fields):
			return response.ValidationError(c, fields, fiber.Map{"email": input.Email})
		case errors.Is(err, auth.ErrInvalidCredentials):
			return response.Error(c, fiber.StatusUnauthorized, "Invalid email or password.")
		default:
			h.log.Error("login failed", zap.Error(err))
			return response.ServerError(c, "Authentication failed")
		}
	}

	h.cookies.setAuth(c, sess.AccessToken, sess.RefreshToken)
	req := wizard.Request{UserID: sess.User.ID, SessionID: h.cookies.sessionID(c)}
	resumed, err := h.wizard.Resume(c.UserContext(), req)
	if err != nil {
		h.log.Error("resume failed", zap.Uint("user_id", sess.User.ID), zap.Error(err))
		return response.ServerError(c, "Could not restore your application")
	}

	flashes := append([]wizard.Flash{{Level: wizard.FlashSuccess, Message: "Login successful!"}}, resumed.Flashes...)
	return c.JSON(fiber.Map{
		"access_token":  sess.AccessToken,
		"refresh_token": sess.RefreshToken,
		"user": fiber.Map{
			"id":          sess.User.ID,
			"email":       sess.User.Email,
			"role":        sess.User.Role,
			"permissions": models.GetDefaultPermissions(sess.User.Role),
		},
		"state":          resumed.State,
		"next":           resumed.Next,
		"application_id": resumed.ApplicationID,
		"flashes":        flashes,
	})
}

// RefreshToken handles token refresh requests
func (h *AuthHandler) RefreshToken(c *fiber.Ctx) error {
	refreshToken := c.Cookies(refreshCookie)
	if refreshToken == "" {
		var input struct {
			RefreshToken string `json:"refresh_token"`
		}
		if err := c.BodyParser(&input); err != nil {
			return response.Unauthorized(c)
		}
		refreshToken = input.RefreshToken
	}
	if refreshToken == "" {
		return response.Unauthorized(c)
	}

	access, refresh, err := h.authService.RefreshTokens(c.UserContext(), refreshToken)
	if err != nil {
		h.log.Info("token refresh failed", zap.Error(err))
		return response.Unauthorized(c)
	}

	h.cookies.setAuth(c, access, refresh)
	return response.Success(c, "Token refreshed", fiber.Map{
		"access_token":  access,
		"refresh_token": refresh,
	})
}

// LogoutUser invalidates outstanding tokens when the caller is still
// authenticated, and always drops the wizard session and cookies.
func (h *AuthHandler) LogoutUser(c *fiber.Ctx) error {
	if claims := h.auth.Authenticate(c); claims != nil {
		if err := h.authService.Logout(c.UserContext(), claims.UserID); err != nil {
			h.log.Error("logout failed", zap.Uint("user_id", claims.UserID), zap.Error(err))
			return response.ServerError(c, "Failed to logout")
		}
	}

	if sid := c.Cookies(session.CookieName); session.ValidID(sid) {
		if err := h.wizard.EndSession(c.UserContext(), wizard.Request{SessionID: sid}); err != nil {
			h.log.Warn("failed to clear wizard session", zap.Error(err))
		}
	}
	h.cookies.clearAuth(c)

	return c.JSON(fiber.Map{
		"next":    "/login",
		"flashes": []wizard.Flash{{Level: wizard.FlashInfo, Message: "You have been logged out."}},
	})
}
