package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Application statuses. Only pending applications are driven by the wizard.
const (
	StatusPending   = "pending"
	StatusSubmitted = "submitted"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
)

type LoanApplication struct {
	ID     uint `gorm:"primaryKey" json:"id"`
	UserID uint `gorm:"not null;index" json:"user_id"`

	// Loan Information
	LoanAmount  decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"loan_amount"`
	LoanPurpose string          `gorm:"size:256;not null" json:"loan_purpose"`

	// Personal Information, placeholder until the personal-info step
	FullName string     `gorm:"size:120" json:"full_name"`
	SSN      string     `gorm:"size:256" json:"-"`
	DOB      *time.Time `gorm:"type:date" json:"dob,omitempty"`
	Address  string     `gorm:"size:256" json:"address"`
	City     string     `gorm:"size:64" json:"city"`
	State    string     `gorm:"size:2" json:"state"`
	ZipCode  string     `gorm:"size:10" json:"zip_code"`
	Email    string     `gorm:"size:120" json:"email"`
	Phone    string     `gorm:"size:20" json:"phone"`
	Gender   string     `gorm:"size:20" json:"gender"`

	// Employment Information
	EmploymentStatus string          `gorm:"size:50" json:"employment_status"`
	Employer         string          `gorm:"size:120" json:"employer"`
	MonthlyIncome    decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"monthly_income"`

	Status      string     `gorm:"size:20;not null;default:'pending';index" json:"status"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	DecidedAt   *time.Time `json:"decided_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	BankInfo  *BankInfo  `gorm:"foreignKey:LoanApplicationID;constraint:OnDelete:CASCADE" json:"bank_info,omitempty"`
	Documents []Document `gorm:"foreignKey:LoanApplicationID;constraint:OnDelete:CASCADE" json:"documents,omitempty"`
}

// IsPending reports whether the wizard may still mutate the application.
func (a *LoanApplication) IsPending() bool {
	return a.Status == StatusPending
}

// HasPersonalInfo reports whether the personal-info step has been saved.
// The amount step leaves DOB and address empty.
func (a *LoanApplication) HasPersonalInfo() bool {
	return a.DOB != nil && a.Address != ""
}
