package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"amerifund/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultListLimit = 50

type loanApplicationRepository struct {
	db *gorm.DB
}

func NewLoanApplicationRepository(db *gorm.DB) LoanApplicationRepository {
	return &loanApplicationRepository{db: db}
}

func withRelations(db *gorm.DB) *gorm.DB {
	return db.Preload("BankInfo").Preload("Documents", func(db *gorm.DB) *gorm.DB {
		return db.Order("document_type")
	})
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrApplicationNotFound
	}
	return fmt.Errorf("%w: %v", ErrDatabaseOperation, err)
}

func (r *loanApplicationRepository) GetByID(ctx context.Context, id uint) (*models.LoanApplication, error) {
	var app models.LoanApplication
	if err := withRelations(r.db.WithContext(ctx)).First(&app, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &app, nil
}

func (r *loanApplicationRepository) FindPending(ctx context.Context, userID uint) (*models.LoanApplication, error) {
	return findPending(r.db.WithContext(ctx), userID)
}

func (r *loanApplicationRepository) LatestSubmitted(ctx context.Context, userID uint) (*models.LoanApplication, error) {
	var app models.LoanApplication
	err := withRelations(r.db.WithContext(ctx)).
		Where("user_id = ? AND status <> ?", userID, models.StatusPending).
		Order("submitted_at DESC NULLS LAST, id DESC").
		First(&app).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &app, nil
}

func (r *loanApplicationRepository) List(ctx context.Context, filter ApplicationFilter) ([]models.LoanApplication, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.LoanApplication{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrDatabaseOperation, err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	var apps []models.LoanApplication
	err := q.Preload("BankInfo").
		Order("created_at DESC").
		Offset(filter.Offset).
		Limit(limit).
		Find(&apps).Error
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrDatabaseOperation, err)
	}
	return apps, total, nil
}

func (r *loanApplicationRepository) Transaction(ctx context.Context, fn func(tx LoanApplicationTx) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&loanApplicationTx{db: tx})
	})
}

func findPending(db *gorm.DB, userID uint) (*models.LoanApplication, error) {
	var app models.LoanApplication
	err := withRelations(db).
		Where("user_id = ? AND status = ?", userID, models.StatusPending).
		First(&app).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &app, nil
}

type loanApplicationTx struct {
	db *gorm.DB
}

func (t *loanApplicationTx) LockUser(userID uint) (*models.User, error) {
	var user models.User
	err := t.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&user, userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrDatabaseOperation, err)
	}
	return &user, nil
}

func (t *loanApplicationTx) FindPending(userID uint) (*models.LoanApplication, error) {
	return findPending(t.db, userID)
}

func (t *loanApplicationTx) GetForUpdate(id uint) (*models.LoanApplication, error) {
	var app models.LoanApplication
	if err := t.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&app, id).Error; err != nil {
		return nil, notFound(err)
	}

	var bank models.BankInfo
	err := t.db.Where("loan_application_id = ?", id).Take(&bank).Error
	switch {
	case err == nil:
		app.BankInfo = &bank
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("%w: %v", ErrDatabaseOperation, err)
	}

	if err := t.db.Where("loan_application_id = ?", id).Order("document_type").Find(&app.Documents).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseOperation, err)
	}
	return &app, nil
}

func (t *loanApplicationTx) Create(app *models.LoanApplication) error {
	if err := t.db.Omit(clause.Associations).Create(app).Error; err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseOperation, err)
	}
	return nil
}

func (t *loanApplicationTx) Save(app *models.LoanApplication) error {
	if err := t.db.Omit(clause.Associations).Save(app).Error; err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseOperation, err)
	}
	return nil
}

func (t *loanApplicationTx) UpsertBankInfo(info *models.BankInfo) error {
	err := t.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "loan_application_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"bank_name", "account_name", "account_number", "routing_number",
			"account_type", "link_item_id", "link_access_token", "updated_at",
		}),
	}).Create(info).Error
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseOperation, err)
	}
	return nil
}

func (t *loanApplicationTx) ReplaceDocument(doc *models.Document) (*models.Document, error) {
	var existing models.Document
	err := t.db.Where("loan_application_id = ? AND document_type = ?", doc.LoanApplicationID, doc.DocumentType).
		Take(&existing).Error

	var replaced *models.Document
	switch {
	case err == nil:
		if err := t.db.Unscoped().Delete(&existing).Error; err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDatabaseOperation, err)
		}
		replaced = &existing
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("%w: %v", ErrDatabaseOperation, err)
	}

	if err := t.db.Create(doc).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseOperation, err)
	}
	return replaced, nil
}

func (t *loanApplicationTx) BackfillUserProfile(userID uint, fullName, phone string) (bool, error) {
	updates := map[string]interface{}{}
	var user models.User
	if err := t.db.Select("id", "full_name", "phone").First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, ErrUserNotFound
		}
		return false, fmt.Errorf("%w: %v", ErrDatabaseOperation, err)
	}
	if user.FullName == "" && fullName != "" {
		updates["full_name"] = fullName
	}
	if user.Phone == "" && phone != "" {
		updates["phone"] = phone
	}
	if len(updates) == 0 {
		return false, nil
	}

	if err := t.db.Model(&models.User{}).Where("id = ?", userID).Updates(updates).Error; err != nil {
		return false, fmt.Errorf("%w: %v", ErrDatabaseOperation, err)
	}
	return true, nil
}

func (t *loanApplicationTx) TransitionStatus(id uint, from, to string, at time.Time) error {
	updates := map[string]interface{}{"status": to}
	switch to {
	case models.StatusSubmitted:
		updates["submitted_at"] = at
	case models.StatusApproved, models.StatusRejected:
		updates["decided_at"] = at
	}

	result := t.db.Model(&models.LoanApplication{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseOperation, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrStatusConflict
	}
	return nil
}
