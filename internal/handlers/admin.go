package handlers

import (
	"errors"
	"strconv"

	"amerifund/internal/repositories"
	"amerifund/internal/services/admin"
	"amerifund/internal/utils"
	"amerifund/internal/utils/response"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type AdminHandler struct {
	admin admin.Service
	log   *zap.Logger
}

func NewAdminHandler(adminService admin.Service, log *zap.Logger) *AdminHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AdminHandler{admin: adminService, log: log}
}

// ListApplications returns applications page by page, optionally filtered
// by ?status=.
func (h *AdminHandler) ListApplications(c *fiber.Ctx) error {
	p := utils.GetPagination(c, 1, 20)

	views, total, err := h.admin.List(c.UserContext(), repositories.ApplicationFilter{
		Status: c.Query("status"),
		Offset: p.Offset,
		Limit:  p.Limit,
	})
	if errors.Is(err, admin.ErrInvalidStatus) {
		return response.BadRequest(c, err.Error())
	}
	if err != nil {
		h.log.Error("listing applications failed", zap.Error(err))
		return response.ServerError(c, "Failed to fetch applications")
	}

	p.SetTotal(total)
	return c.JSON(utils.NewPaginatedResponse(views, p))
}

func (h *AdminHandler) GetApplication(c *fiber.Ctx) error {
	id, err := applicationID(c)
	if err != nil {
		return response.BadRequest(c, "Invalid application ID")
	}

	view, err := h.admin.Get(c.UserContext(), id)
	if errors.Is(err, repositories.ErrApplicationNotFound) {
		return response.NotFound(c, "Application not found")
	}
	if err != nil {
		h.log.Error("loading application failed", zap.Uint("application_id", id), zap.Error(err))
		return response.ServerError(c, "Failed to fetch application")
	}
	return c.JSON(fiber.Map{"application": view})
}

// DecideApplication approves or rejects a submitted application.
func (h *AdminHandler) DecideApplication(c *fiber.Ctx) error {
	id, err := applicationID(c)
	if err != nil {
		return response.BadRequest(c, "Invalid application ID")
	}

	var input struct {
		Decision string `json:"decision" form:"decision"`
	}
	if err := c.BodyParser(&input); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	res, err := h.admin.Decide(c.UserContext(), id, input.Decision)
	switch {
	case errors.Is(err, admin.ErrInvalidDecision):
		return response.BadRequest(c, err.Error())
	case errors.Is(err, repositories.ErrApplicationNotFound):
		return response.NotFound(c, "Application not found")
	case errors.Is(err, admin.ErrNotDecidable):
		return response.Conflict(c, err.Error())
	case err != nil:
		h.log.Error("deciding application failed", zap.Uint("application_id", id), zap.Error(err))
		return response.ServerError(c, "Failed to record decision")
	}
	return response.Success(c, "Decision recorded", res)
}

func applicationID(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil || id == 0 {
		return 0, errors.New("invalid id")
	}
	return uint(id), nil
}
