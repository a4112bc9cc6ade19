package repositories

import (
	"context"
	"errors"
	"time"

	"amerifund/internal/models"
)

var (
	ErrApplicationNotFound = errors.New("loan application not found")
	ErrStatusConflict      = errors.New("loan application status changed concurrently")
)

// ApplicationFilter narrows admin listings. Zero values match everything.
type ApplicationFilter struct {
	Status string
	Offset int
	Limit  int
}

// LoanApplicationRepository reads applications and opens step transactions.
type LoanApplicationRepository interface {
	// GetByID loads an application with its bank info and documents.
	GetByID(ctx context.Context, id uint) (*models.LoanApplication, error)

	// FindPending returns the user's pending application, if any.
	FindPending(ctx context.Context, userID uint) (*models.LoanApplication, error)

	// LatestSubmitted returns the user's most recently submitted application.
	LatestSubmitted(ctx context.Context, userID uint) (*models.LoanApplication, error)

	List(ctx context.Context, filter ApplicationFilter) ([]models.LoanApplication, int64, error)

	// Transaction runs fn in one database transaction. All writes made
	// through the LoanApplicationTx commit together or not at all.
	Transaction(ctx context.Context, fn func(tx LoanApplicationTx) error) error
}

// LoanApplicationTx is the write side, only usable inside Transaction.
type LoanApplicationTx interface {
	// LockUser takes a row lock on the user, serializing find-or-create.
	LockUser(userID uint) (*models.User, error)

	FindPending(userID uint) (*models.LoanApplication, error)

	// GetForUpdate loads and row-locks an application with its relations.
	GetForUpdate(id uint) (*models.LoanApplication, error)

	Create(app *models.LoanApplication) error
	Save(app *models.LoanApplication) error

	// UpsertBankInfo inserts or overwrites the single bank record.
	UpsertBankInfo(info *models.BankInfo) error

	// ReplaceDocument deletes the document of the same type, if any, then
	// inserts doc. The replaced row is returned so its file can be removed.
	ReplaceDocument(doc *models.Document) (*models.Document, error)

	// BackfillUserProfile fills empty name and phone fields. It reports
	// whether anything changed.
	BackfillUserProfile(userID uint, fullName, phone string) (bool, error)

	// TransitionStatus moves the application from one status to another,
	// failing with ErrStatusConflict if it is no longer in from.
	TransitionStatus(id uint, from, to string, at time.Time) error
}

// Implementation will be in loan_application_repository_impl.go
