package notification

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"strings"

	"amerifund/internal/models"
	"amerifund/internal/utils/format"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

//go:embed templates/*.html
var templateFS embed.FS

var ErrNoRecipient = errors.New("notification has no recipient")

// Sender delivers one rendered message.
type Sender interface {
	Send(ctx context.Context, to, subject, html string) error
}

// Service emits one message per wizard milestone.
type Service interface {
	Welcome(ctx context.Context, user *models.User) error
	AmountSelected(ctx context.Context, user *models.User, app *models.LoanApplication) error
	PersonalInfoSaved(ctx context.Context, user *models.User, app *models.LoanApplication) error
	BankVerified(ctx context.Context, user *models.User, app *models.LoanApplication, bank *models.BankInfo) error
	DocumentsUploaded(ctx context.Context, user *models.User, app *models.LoanApplication, docs []models.Document) error
	// ApplicationSubmitted notifies the admin and the applicant concurrently.
	ApplicationSubmitted(ctx context.Context, user *models.User, app *models.LoanApplication) error
	Decision(ctx context.Context, user *models.User, app *models.LoanApplication) error
}

type Config struct {
	AppName    string
	AdminEmail string
}

type service struct {
	sender    Sender
	cfg       Config
	templates *template.Template
	log       *zap.Logger
}

// payload is what every template receives.
type payload struct {
	AppName string
	User    *models.User
	App     *models.LoanApplication
	Bank    *models.BankInfo
	Docs    []models.Document
}

func NewService(sender Sender, cfg Config, log *zap.Logger) Service {
	if sender == nil {
		panic("sender is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.AppName == "" {
		cfg.AppName = "AmeriFund"
	}
	return &service{
		sender:    sender,
		cfg:       cfg,
		templates: parseTemplates(),
		log:       log,
	}
}

func parseTemplates() *template.Template {
	funcs := template.FuncMap{
		"usd": format.USD,
		"masked": func(v string) string {
			return format.Sensitive(v, format.AudienceCustomer)
		},
		"doctype": func(t models.DocumentType) string {
			words := strings.Split(string(t), "_")
			for i, w := range words {
				if w == "id" {
					words[i] = "ID"
				} else if w != "" {
					words[i] = strings.ToUpper(w[:1]) + w[1:]
				}
			}
			return strings.Join(words, " ")
		},
		"kb": func(size int64) string {
			return fmt.Sprintf("%.1f KB", float64(size)/1024)
		},
	}
	return template.Must(template.New("mail").Funcs(funcs).ParseFS(templateFS, "templates/*.html"))
}

func (s *service) Welcome(ctx context.Context, user *models.User) error {
	subject := fmt.Sprintf("Welcome to %s", s.cfg.AppName)
	return s.deliver(ctx, "welcome", user.Email, subject, payload{User: user})
}

func (s *service) AmountSelected(ctx context.Context, user *models.User, app *models.LoanApplication) error {
	subject := fmt.Sprintf("Loan Amount Selected: %s - %s", user.Email, format.USD(app.LoanAmount))
	return s.deliver(ctx, "amount_selected", s.cfg.AdminEmail, subject, payload{User: user, App: app})
}

func (s *service) PersonalInfoSaved(ctx context.Context, user *models.User, app *models.LoanApplication) error {
	subject := fmt.Sprintf("Personal Information Submitted: %s", app.FullName)
	return s.deliver(ctx, "personal_info", s.cfg.AdminEmail, subject, payload{User: user, App: app})
}

func (s *service) BankVerified(ctx context.Context, user *models.User, app *models.LoanApplication, bank *models.BankInfo) error {
	subject := fmt.Sprintf("Bank Information Submitted: %s", app.FullName)
	return s.deliver(ctx, "bank_verified", s.cfg.AdminEmail, subject, payload{User: user, App: app, Bank: bank})
}

func (s *service) DocumentsUploaded(ctx context.Context, user *models.User, app *models.LoanApplication, docs []models.Document) error {
	subject := fmt.Sprintf("Documents Uploaded: %s", app.FullName)
	return s.deliver(ctx, "documents_uploaded", s.cfg.AdminEmail, subject, payload{User: user, App: app, Docs: docs})
}

func (s *service) ApplicationSubmitted(ctx context.Context, user *models.User, app *models.LoanApplication) error {
	data := payload{User: user, App: app, Bank: app.BankInfo, Docs: app.Documents}

	// no shared context: one failed recipient must not cancel the other
	var g errgroup.Group
	g.Go(func() error {
		subject := fmt.Sprintf("New Loan Application: %s - %s", app.FullName, format.USD(app.LoanAmount))
		return s.deliver(ctx, "admin_submitted", s.cfg.AdminEmail, subject, data)
	})
	g.Go(func() error {
		subject := fmt.Sprintf("Your %s Loan Application - Confirmation #%d", s.cfg.AppName, app.ID)
		return s.deliver(ctx, "applicant_confirmation", applicantEmail(user, app), subject, data)
	})
	return g.Wait()
}

func (s *service) Decision(ctx context.Context, user *models.User, app *models.LoanApplication) error {
	subject := fmt.Sprintf("Your %s Loan Application #%d has been %s", s.cfg.AppName, app.ID, app.Status)
	return s.deliver(ctx, "decision", applicantEmail(user, app), subject, payload{User: user, App: app})
}

// applicantEmail prefers the contact address given on the application.
func applicantEmail(user *models.User, app *models.LoanApplication) string {
	if app != nil && app.Email != "" {
		return app.Email
	}
	if user != nil {
		return user.Email
	}
	return ""
}

func (s *service) deliver(ctx context.Context, name, to, subject string, data payload) error {
	if to == "" {
		return fmt.Errorf("%s: %w", name, ErrNoRecipient)
	}
	data.AppName = s.cfg.AppName

	var body bytes.Buffer
	if err := s.templates.ExecuteTemplate(&body, name+".html", data); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}

	if err := s.sender.Send(ctx, to, subject, body.String()); err != nil {
		s.log.Warn("notification failed", zap.String("template", name), zap.String("to", to), zap.Error(err))
		return fmt.Errorf("send %s: %w", name, err)
	}
	s.log.Debug("notification sent", zap.String("template", name), zap.String("to", to))
	return nil
}
