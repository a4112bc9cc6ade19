package models

import "time"

// Account types accepted by the bank-verification step.
const (
	AccountChecking         = "checking"
	AccountSavings          = "savings"
	AccountBusinessChecking = "business_checking"
	AccountBusinessSavings  = "business_savings"
)

// BankInfo is one-to-one with a LoanApplication; the unique index makes a
// second write for the same application an update.
type BankInfo struct {
	ID                uint `gorm:"primaryKey" json:"id"`
	LoanApplicationID uint `gorm:"uniqueIndex;not null" json:"loan_application_id"`

	BankName      string `gorm:"size:120;not null" json:"bank_name"`
	AccountName   string `gorm:"size:120;not null" json:"account_name"`
	AccountNumber string `gorm:"size:256;not null" json:"account_number"`
	RoutingNumber string `gorm:"size:256;not null" json:"routing_number"`
	AccountType   string `gorm:"size:20;not null" json:"account_type"`

	// Linked-account metadata from the bank-link provider
	LinkItemID      string `gorm:"size:256" json:"link_item_id,omitempty"`
	LinkAccessToken string `gorm:"size:256" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
