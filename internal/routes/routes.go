// Package routes defines the API routing configuration.
// It wires handlers to paths and applies the authentication middleware.
package routes

import (
	"amerifund/internal/handlers"
	"amerifund/internal/middleware"
	"amerifund/internal/models"
	"amerifund/internal/services/wizard"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers groups everything SetupRoutes mounts.
type Handlers struct {
	Auth           *handlers.AuthHandler
	Wizard         *handlers.WizardHandler
	Institution    *handlers.InstitutionHandler
	Admin          *handlers.AdminHandler
	Health         *handlers.HealthHandler
	AuthMiddleware *middleware.AuthMiddleware
	Gatherer       prometheus.Gatherer
}

// SetupRoutes configures all application routes.
func SetupRoutes(app *fiber.App, h Handlers) {
	app.Get("/health", h.Health.HealthCheck)
	if h.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(h.Gatherer, promhttp.HandlerOpts{})))
	}

	// Public endpoints
	app.Post("/register", h.Auth.RegisterUser)
	app.Post("/login", h.Auth.LoginUser)
	app.Post("/refresh", h.Auth.RefreshToken)
	app.Get("/logout", h.Auth.LogoutUser)

	auth := h.AuthMiddleware.Handler
	write := middleware.HasPermission(models.PermissionApplicationWrite)
	read := middleware.HasPermission(models.PermissionApplicationRead)

	setupWizardRoutes(app, h.Wizard, auth, read, write)

	app.Post("/api/plaid/get-institution", auth, write, h.Institution.GetInstitution)

	setupAdminRoutes(app, h, auth)
}

func setupWizardRoutes(app *fiber.App, w *handlers.WizardHandler, auth, read, write fiber.Handler) {
	app.Get(wizard.RouteLoanAmount, auth, read, w.GetStep)
	app.Post(wizard.RouteLoanAmount, auth, write, w.PostAmount)

	app.Get(wizard.RoutePersonalInfo, auth, read, w.GetStep)
	app.Post(wizard.RoutePersonalInfo, auth, write, w.PostPersonalInfo)

	app.Get(wizard.RouteBankVerification, auth, read, w.GetBankVerification)
	app.Post(wizard.RouteBankVerification, auth, write, w.PostBankVerification)

	app.Get(wizard.RouteUploadDocuments, auth, read, w.GetStep)
	app.Post(wizard.RouteUploadDocuments, auth, write, w.PostDocuments)

	app.Get(wizard.RouteReview, auth, read, w.GetStep)
	app.Post(wizard.RouteReview, auth, write, w.PostReview)

	app.Get(wizard.RouteSubmitted, auth, read, w.GetSubmitted)
}

func setupAdminRoutes(app *fiber.App, h Handlers, auth fiber.Handler) {
	admin := app.Group("/api/admin", auth, middleware.AdminAuthMiddleware)

	admin.Get("/applications", middleware.HasPermission(models.PermissionReadAdmin), h.Admin.ListApplications)
	admin.Get("/applications/:id", middleware.HasPermission(models.PermissionReadAdmin), h.Admin.GetApplication)
	admin.Post("/applications/:id/decision", middleware.HasPermission(models.PermissionWriteAdmin), h.Admin.DecideApplication)
	admin.Get("/cache-stats", h.Health.CacheStats)
}
