package handlers

import (
	"strings"

	"amerifund/internal/services/banklink"
	"amerifund/internal/utils/response"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type InstitutionHandler struct {
	linker banklink.Linker
	log    *zap.Logger
}

func NewInstitutionHandler(linker banklink.Linker, log *zap.Logger) *InstitutionHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &InstitutionHandler{linker: linker, log: log}
}

// GetInstitution looks up a bank by the id the link widget returned.
func (h *InstitutionHandler) GetInstitution(c *fiber.Ctx) error {
	var input struct {
		InstitutionID string `json:"institution_id" form:"institution_id"`
	}
	if err := c.BodyParser(&input); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	input.InstitutionID = strings.TrimSpace(input.InstitutionID)
	if input.InstitutionID == "" {
		return response.BadRequest(c, "institution_id is required")
	}

	inst, err := h.linker.GetInstitutionByID(c.UserContext(), input.InstitutionID)
	if err != nil {
		h.log.Error("institution lookup failed", zap.String("institution_id", input.InstitutionID), zap.Error(err))
		return response.ServerError(c, "Failed to look up institution")
	}
	return c.JSON(fiber.Map{"institution": inst})
}
