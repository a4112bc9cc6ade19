package handlers

import (
	"time"

	"amerifund/internal/middleware"
	"amerifund/internal/session"

	"github.com/gofiber/fiber/v2"
)

const refreshCookie = "refresh_token"

// CookieConfig controls the auth and wizard-session cookies.
type CookieConfig struct {
	Secure     bool
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	SessionTTL time.Duration
}

func (cc CookieConfig) set(c *fiber.Ctx, name, value string, ttl time.Duration) {
	c.Cookie(&fiber.Cookie{
		Name:     name,
		Value:    value,
		HTTPOnly: true,
		Secure:   cc.Secure,
		Path:     "/",
		SameSite: fiber.CookieSameSiteLaxMode,
		MaxAge:   int(ttl.Seconds()),
	})
}

func (cc CookieConfig) expire(c *fiber.Ctx, name string) {
	c.Cookie(&fiber.Cookie{
		Name:     name,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour),
		HTTPOnly: true,
		Secure:   cc.Secure,
		Path:     "/",
	})
}

func (cc CookieConfig) setAuth(c *fiber.Ctx, accessToken, refreshToken string) {
	cc.set(c, middleware.AccessCookie, accessToken, cc.AccessTTL)
	cc.set(c, refreshCookie, refreshToken, cc.RefreshTTL)
}

func (cc CookieConfig) clearAuth(c *fiber.Ctx) {
	cc.expire(c, middleware.AccessCookie)
	cc.expire(c, refreshCookie)
	cc.expire(c, session.CookieName)
}

// sessionID returns the wizard session id, issuing a new one when the
// cookie is missing or was not issued by us.
func (cc CookieConfig) sessionID(c *fiber.Ctx) string {
	if id := c.Cookies(session.CookieName); session.ValidID(id) {
		return id
	}
	id := session.NewID()
	cc.set(c, session.CookieName, id, cc.SessionTTL)
	return id
}
