package wizard

import (
	"context"
	"time"

	"amerifund/internal/models"
	"amerifund/internal/services/artifact"
	"amerifund/internal/services/banklink"
	"amerifund/internal/utils/format"
	"amerifund/internal/validation"

	"github.com/shopspring/decimal"
)

// Service defines the wizard operations. Validation problems are reported
// on the StepResult; errors are reserved for ownership, lifecycle and
// infrastructure failures.
type Service interface {
	SelectAmount(ctx context.Context, req Request, form validation.AmountForm) (*StepResult, error)
	SavePersonalInfo(ctx context.Context, req Request, form validation.PersonalInfoForm) (*StepResult, error)
	VerifyBank(ctx context.Context, req Request, form validation.BankForm) (*StepResult, error)
	UploadDocuments(ctx context.Context, req Request, files map[models.DocumentType]artifact.FileUpload) (*StepResult, error)
	Submit(ctx context.Context, req Request, form validation.ReviewForm) (*StepResult, error)

	// Submitted returns the actor's most recently submitted application.
	Submitted(ctx context.Context, req Request) (*ApplicationView, error)

	// Resume recomputes the position of the actor's pending application and
	// points the session at it. Called once per login.
	Resume(ctx context.Context, req Request) (*StepResult, error)

	// Snapshot returns what a step page needs to pre-fill its form.
	Snapshot(ctx context.Context, req Request) (*Snapshot, error)

	LinkToken(ctx context.Context, req Request) (*banklink.LinkToken, error)

	// EndSession drops the session pointer, e.g. on logout.
	EndSession(ctx context.Context, req Request) error
}

// Request identifies who is acting and through which session.
type Request struct {
	UserID    uint
	SessionID string
}

const (
	FlashSuccess = "success"
	FlashInfo    = "info"
	FlashWarning = "warning"
	FlashDanger  = "danger"
)

type Flash struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// StepResult tells the caller where to go next. When Errors is non-empty
// Next is the step that was submitted and Input echoes what was sent.
// Redirect is set when a prerequisite sends the actor back to an earlier step.
type StepResult struct {
	State         State                  `json:"state"`
	Next          string                 `json:"next"`
	Redirect      bool                   `json:"redirect,omitempty"`
	ApplicationID uint                   `json:"application_id,omitempty"`
	Errors        validation.FieldErrors `json:"errors,omitempty"`
	Input         interface{}            `json:"input,omitempty"`
	Missing       []models.DocumentType  `json:"missing_documents,omitempty"`
	Flashes       []Flash                `json:"flashes,omitempty"`
}

// Invalid reports whether the step was rejected by validation.
func (r *StepResult) Invalid() bool {
	return len(r.Errors) > 0
}

// HasWarning reports whether a non-fatal problem was surfaced.
func (r *StepResult) HasWarning() bool {
	for _, f := range r.Flashes {
		if f.Level == FlashWarning {
			return true
		}
	}
	return false
}

func (r *StepResult) AddFlash(level, message string) {
	r.Flashes = append(r.Flashes, Flash{Level: level, Message: message})
}

// Snapshot is the GET view of the wizard. Sensitive numbers are masked.
type Snapshot struct {
	State       State                 `json:"state"`
	Next        string                `json:"next"`
	Application *ApplicationView      `json:"application,omitempty"`
	Missing     []models.DocumentType `json:"missing_documents,omitempty"`
}

type BankView struct {
	BankName      string `json:"bank_name"`
	AccountName   string `json:"account_name"`
	AccountNumber string `json:"account_number"`
	RoutingNumber string `json:"routing_number"`
	AccountType   string `json:"account_type"`
	Linked        bool   `json:"linked"`
}

type DocumentView struct {
	DocumentType models.DocumentType `json:"document_type"`
	OriginalName string              `json:"original_name"`
	MimeType     string              `json:"mime_type"`
	FileSize     int64               `json:"file_size"`
	UploadedAt   time.Time           `json:"uploaded_at"`
	FileName     string              `json:"file_name,omitempty"`
}

type ApplicationView struct {
	ID               uint            `json:"id"`
	UserID           uint            `json:"user_id"`
	Status           string          `json:"status"`
	LoanAmount       decimal.Decimal `json:"loan_amount"`
	LoanAmountText   string          `json:"loan_amount_display"`
	LoanPurpose      string          `json:"loan_purpose"`
	FullName         string          `json:"full_name"`
	SSN              string          `json:"ssn"`
	DOB              string          `json:"dob,omitempty"`
	Address          string          `json:"address"`
	City             string          `json:"city"`
	State            string          `json:"state"`
	ZipCode          string          `json:"zip_code"`
	Email            string          `json:"email"`
	Phone            string          `json:"phone"`
	Gender           string          `json:"gender"`
	EmploymentStatus string          `json:"employment_status"`
	Employer         string          `json:"employer"`
	MonthlyIncome    decimal.Decimal `json:"monthly_income"`
	SubmittedAt      *time.Time      `json:"submitted_at,omitempty"`
	DecidedAt        *time.Time      `json:"decided_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	Bank             *BankView       `json:"bank,omitempty"`
	Documents        []DocumentView  `json:"documents"`
}

// NewApplicationView renders app for the given audience. Customers see the
// last four digits of SSN, account and routing numbers; admins see them in
// full along with stored file names.
func NewApplicationView(app *models.LoanApplication, audience format.Audience) *ApplicationView {
	v := &ApplicationView{
		ID:               app.ID,
		UserID:           app.UserID,
		Status:           app.Status,
		LoanAmount:       app.LoanAmount,
		LoanAmountText:   format.USD(app.LoanAmount),
		LoanPurpose:      app.LoanPurpose,
		FullName:         app.FullName,
		SSN:              format.Sensitive(app.SSN, audience),
		Address:          app.Address,
		City:             app.City,
		State:            app.State,
		ZipCode:          app.ZipCode,
		Email:            app.Email,
		Phone:            app.Phone,
		Gender:           app.Gender,
		EmploymentStatus: app.EmploymentStatus,
		Employer:         app.Employer,
		MonthlyIncome:    app.MonthlyIncome,
		SubmittedAt:      app.SubmittedAt,
		DecidedAt:        app.DecidedAt,
		CreatedAt:        app.CreatedAt,
		Documents:        make([]DocumentView, 0, len(app.Documents)),
	}
	if app.DOB != nil {
		v.DOB = app.DOB.Format(validation.DateLayout)
	}

	if b := app.BankInfo; b != nil {
		v.Bank = &BankView{
			BankName:      b.BankName,
			AccountName:   b.AccountName,
			AccountNumber: format.Sensitive(b.AccountNumber, audience),
			RoutingNumber: format.Sensitive(b.RoutingNumber, audience),
			AccountType:   b.AccountType,
			Linked:        b.LinkItemID != "",
		}
	}

	for _, d := range app.Documents {
		dv := DocumentView{
			DocumentType: d.DocumentType,
			OriginalName: d.OriginalName,
			MimeType:     d.MimeType,
			FileSize:     d.FileSize,
			UploadedAt:   d.UploadedAt,
		}
		if audience == format.AudienceAdmin {
			dv.FileName = d.FileName
		}
		v.Documents = append(v.Documents, dv)
	}
	return v
}
