package handlers

import (
	"bytes"
	"errors"
	"io"
	"mime/multipart"

	"amerifund/internal/models"
	"amerifund/internal/services/artifact"
	"amerifund/internal/services/wizard"
	"amerifund/internal/utils"
	"amerifund/internal/utils/response"
	"amerifund/internal/validation"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// WizardHandler serves the loan-application steps. GET returns a snapshot
// for pre-filling the step; POST submits it.
type WizardHandler struct {
	wizard    wizard.Service
	cookies   CookieConfig
	maxUpload int64
	log       *zap.Logger
}

// NewWizardHandler builds the step handlers. maxUpload is the per-file
// ceiling applied while the multipart body is read.
func NewWizardHandler(wizardService wizard.Service, cookies CookieConfig, maxUpload int64, log *zap.Logger) *WizardHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &WizardHandler{wizard: wizardService, cookies: cookies, maxUpload: maxUpload, log: log}
}

func (h *WizardHandler) request(c *fiber.Ctx) (wizard.Request, error) {
	claims, err := utils.GetUserClaims(c)
	if err != nil {
		return wizard.Request{}, err
	}
	return wizard.Request{UserID: claims.UserID, SessionID: h.cookies.sessionID(c)}, nil
}

// GetStep returns the current snapshot of the actor's application.
func (h *WizardHandler) GetStep(c *fiber.Ctx) error {
	req, err := h.request(c)
	if err != nil {
		return response.Unauthorized(c)
	}

	snap, err := h.wizard.Snapshot(c.UserContext(), req)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(snap)
}

// GetBankVerification adds a fresh link token to the snapshot.
func (h *WizardHandler) GetBankVerification(c *fiber.Ctx) error {
	req, err := h.request(c)
	if err != nil {
		return response.Unauthorized(c)
	}

	snap, err := h.wizard.Snapshot(c.UserContext(), req)
	if err != nil {
		return h.fail(c, err)
	}

	body := fiber.Map{"snapshot": snap}
	token, err := h.wizard.LinkToken(c.UserContext(), req)
	if err != nil {
		h.log.Warn("link token unavailable", zap.Uint("user_id", req.UserID), zap.Error(err))
		body["flashes"] = []wizard.Flash{{Level: wizard.FlashWarning, Message: "Instant bank verification is unavailable. Please enter your details manually."}}
	} else {
		body["link_token"] = token
	}
	return c.JSON(body)
}

func (h *WizardHandler) PostAmount(c *fiber.Ctx) error {
	var form validation.AmountForm
	return h.step(c, &form, func(req wizard.Request) (*wizard.StepResult, error) {
		return h.wizard.SelectAmount(c.UserContext(), req, form)
	})
}

func (h *WizardHandler) PostPersonalInfo(c *fiber.Ctx) error {
	var form validation.PersonalInfoForm
	return h.step(c, &form, func(req wizard.Request) (*wizard.StepResult, error) {
		return h.wizard.SavePersonalInfo(c.UserContext(), req, form)
	})
}

func (h *WizardHandler) PostBankVerification(c *fiber.Ctx) error {
	var form validation.BankForm
	return h.step(c, &form, func(req wizard.Request) (*wizard.StepResult, error) {
		return h.wizard.VerifyBank(c.UserContext(), req, form)
	})
}

func (h *WizardHandler) PostReview(c *fiber.Ctx) error {
	var form validation.ReviewForm
	return h.step(c, &form, func(req wizard.Request) (*wizard.StepResult, error) {
		return h.wizard.Submit(c.UserContext(), req, form)
	})
}

// PostDocuments accepts one multipart file per document type, keyed by the
// type name. The body is read part by part; a file is held in memory up to
// the upload ceiling and anything past it is discarded unread.
func (h *WizardHandler) PostDocuments(c *fiber.Ctx) error {
	req, err := h.request(c)
	if err != nil {
		return response.Unauthorized(c)
	}

	boundary := string(c.Request().Header.MultipartFormBoundary())
	if boundary == "" {
		return response.BadRequest(c, "Expected a multipart form")
	}
	body := c.Context().RequestBodyStream()
	if body == nil {
		body = bytes.NewReader(c.Body())
	}

	files, err := readDocuments(multipart.NewReader(body, boundary), h.maxUpload)
	if err != nil {
		h.log.Warn("failed to read multipart body", zap.Error(err))
		return response.BadRequest(c, "Could not read uploaded files")
	}

	res, err := h.wizard.UploadDocuments(c.UserContext(), req, files)
	if err != nil {
		return h.fail(c, err)
	}
	return h.respond(c, res)
}

// readDocuments keeps the first file part of every field. Plain form
// fields are skipped.
func readDocuments(mr *multipart.Reader, limit int64) (map[models.DocumentType]artifact.FileUpload, error) {
	files := make(map[models.DocumentType]artifact.FileUpload)
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return files, nil
		}
		if err != nil {
			return nil, err
		}

		t := models.DocumentType(part.FormName())
		if _, seen := files[t]; part.FileName() == "" || seen {
			part.Close()
			continue
		}

		f, err := readPart(part, limit)
		part.Close()
		if err != nil {
			return nil, err
		}
		files[t] = f
	}
}

// readPart reads at most limit+1 bytes. An oversize part keeps only its
// size so the artifact store rejects it without seeing the content.
func readPart(part *multipart.Part, limit int64) (artifact.FileUpload, error) {
	data, err := io.ReadAll(io.LimitReader(part, limit+1))
	if err != nil {
		return artifact.FileUpload{}, err
	}
	size := int64(len(data))
	if size > limit {
		data = nil
	}
	return artifact.FileUpload{
		Filename:    part.FileName(),
		Size:        size,
		ContentType: part.Header.Get(fiber.HeaderContentType),
		Content:     bytes.NewReader(data),
	}, nil
}

// GetSubmitted shows the actor's most recently submitted application.
func (h *WizardHandler) GetSubmitted(c *fiber.Ctx) error {
	req, err := h.request(c)
	if err != nil {
		return response.Unauthorized(c)
	}

	view, err := h.wizard.Submitted(c.UserContext(), req)
	if errors.Is(err, wizard.ErrNoSubmittedApplication) {
		return redirect(c, wizard.RouteLoanAmount, wizard.FlashInfo, "No submitted application found.")
	}
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"application": view})
}

func (h *WizardHandler) step(c *fiber.Ctx, form interface{}, run func(wizard.Request) (*wizard.StepResult, error)) error {
	req, err := h.request(c)
	if err != nil {
		return response.Unauthorized(c)
	}
	if err := c.BodyParser(form); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	res, err := run(req)
	if err != nil {
		return h.fail(c, err)
	}
	return h.respond(c, res)
}

func (h *WizardHandler) respond(c *fiber.Ctx, res *wizard.StepResult) error {
	switch {
	case res.Invalid():
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error":   "validation failed",
			"fields":  res.Errors,
			"input":   res.Input,
			"next":    res.Next,
			"flashes": res.Flashes,
		})
	case res.Redirect:
		c.Location(res.Next)
		return c.Status(fiber.StatusSeeOther).JSON(res)
	default:
		return c.JSON(res)
	}
}

// fail maps wizard errors to responses. Lifecycle errors send the actor
// back to the first step.
func (h *WizardHandler) fail(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, wizard.ErrNoActiveApplication):
		return redirect(c, wizard.RouteLoanAmount, wizard.FlashWarning, "Please start by selecting a loan amount.")
	case errors.Is(err, wizard.ErrApplicationNotOwned):
		return redirect(c, wizard.RouteLoanAmount, wizard.FlashDanger, "Application not found. Please start over.")
	case errors.Is(err, wizard.ErrApplicationClosed):
		return redirect(c, wizard.RouteLoanAmount, wizard.FlashInfo, "This application has already been submitted. Start a new one below.")
	default:
		h.log.Error("wizard step failed", zap.String("path", c.Path()), zap.Error(err))
		return response.ServerError(c, "Something went wrong. Please try again.")
	}
}

func redirect(c *fiber.Ctx, to, level, message string) error {
	c.Location(to)
	return c.Status(fiber.StatusSeeOther).JSON(fiber.Map{
		"next":    to,
		"flashes": []wizard.Flash{{Level: level, Message: message}},
	})
}
