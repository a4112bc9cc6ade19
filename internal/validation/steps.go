package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"amerifund/internal/models"
	"amerifund/internal/utils/format"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// StepValidator validates and coerces the raw input of each wizard step.
// Failures are returned as FieldErrors, never as errors.
type StepValidator struct {
	validate  *validator.Validate
	minAmount decimal.Decimal
	maxAmount decimal.Decimal
	now       func() time.Time
}

// NewStepValidator builds a validator for loans within [minAmount, maxAmount].
// now is used for age checks; nil means time.Now.
func NewStepValidator(minAmount, maxAmount decimal.Decimal, now func() time.Time) *StepValidator {
	if now == nil {
		now = time.Now
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	registerChoice(v, "loanpurpose", LoanPurposes)
	registerChoice(v, "gender", Genders)
	registerChoice(v, "employment", EmploymentStatuses)
	registerChoice(v, "accounttype", AccountTypes)
	registerChoice(v, "usstate", USStates)

	return &StepValidator{
		validate:  v,
		minAmount: minAmount,
		maxAmount: maxAmount,
		now:       now,
	}
}

func registerChoice(v *validator.Validate, tag string, choices []string) {
	// registration only fails for an empty tag or nil func
	_ = v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
		return contains(choices, fl.Field().String())
	})
}

type AmountForm struct {
	LoanAmount  string `json:"loan_amount" form:"loan_amount" validate:"required"`
	LoanPurpose string `json:"loan_purpose" form:"loan_purpose" validate:"required,loanpurpose"`
}

type AmountInput struct {
	LoanAmount  decimal.Decimal
	LoanPurpose string
}

// Amount validates the loan-amount step.
func (s *StepValidator) Amount(form AmountForm) (AmountInput, FieldErrors) {
	v := New()
	v.Merge(s.structErrors(form))

	in := AmountInput{LoanPurpose: form.LoanPurpose}
	if _, failed := v.Errors["loan_amount"]; !failed {
		amount, err := parseDecimal(form.LoanAmount)
		if err != nil {
			v.AddError("loan_amount", "Must be a number.")
		} else {
			v.Check(amount.GreaterThanOrEqual(s.minAmount) && amount.LessThanOrEqual(s.maxAmount), "loan_amount",
				fmt.Sprintf("Loan amount must be between %s and %s.", format.USD(s.minAmount), format.USD(s.maxAmount)))
			in.LoanAmount = amount.Round(2)
		}
	}

	if !v.Valid() {
		return in, v.Errors
	}
	return in, nil
}

type PersonalInfoForm struct {
	FullName         string `json:"full_name" form:"full_name" validate:"required,max=120"`
	SSN              string `json:"ssn" form:"ssn" validate:"required,min=9,max=11"`
	DOB              string `json:"dob" form:"dob" validate:"required"`
	Address          string `json:"address" form:"address" validate:"required,max=256"`
	City             string `json:"city" form:"city" validate:"required,max=64"`
	State            string `json:"state" form:"state" validate:"required,usstate"`
	ZipCode          string `json:"zip_code" form:"zip_code" validate:"required,min=5,max=10"`
	Email            string `json:"email" form:"email" validate:"required,email"`
	Phone            string `json:"phone" form:"phone" validate:"required,min=10,max=20"`
	Gender           string `json:"gender" form:"gender" validate:"required,gender"`
	EmploymentStatus string `json:"employment_status" form:"employment_status" validate:"required,employment"`
	Employer         string `json:"employer" form:"employer" validate:"omitempty,max=120"`
	MonthlyIncome    string `json:"monthly_income" form:"monthly_income" validate:"required"`
}

// Redacted returns a copy safe to echo back to the client.
func (f PersonalInfoForm) Redacted() PersonalInfoForm {
	f.SSN = ""
	return f
}

type PersonalInfoInput struct {
	FullName         string
	SSN              string
	DOB              time.Time
	Address          string
	City             string
	State            string
	ZipCode          string
	Email            string
	Phone            string
	Gender           string
	EmploymentStatus string
	Employer         string
	MonthlyIncome    decimal.Decimal
}

// PersonalInfo validates the personal-info step. The applicant's age must be
// within [MinApplicantAge, MaxApplicantAge].
func (s *StepValidator) PersonalInfo(form PersonalInfoForm) (PersonalInfoInput, FieldErrors) {
	form.FullName = strings.TrimSpace(form.FullName)
	form.State = strings.ToUpper(strings.TrimSpace(form.State))
	form.Email = strings.ToLower(strings.TrimSpace(form.Email))
	form.Employer = strings.TrimSpace(form.Employer)

	v := New()
	v.Merge(s.structErrors(form))

	in := PersonalInfoInput{
		FullName:         form.FullName,
		SSN:              strings.TrimSpace(form.SSN),
		Address:          strings.TrimSpace(form.Address),
		City:             strings.TrimSpace(form.City),
		State:            form.State,
		ZipCode:          strings.TrimSpace(form.ZipCode),
		Email:            form.Email,
		Phone:            strings.TrimSpace(form.Phone),
		Gender:           form.Gender,
		EmploymentStatus: form.EmploymentStatus,
		Employer:         form.Employer,
	}

	if _, failed := v.Errors["dob"]; !failed {
		dob, err := time.Parse(DateLayout, strings.TrimSpace(form.DOB))
		if err != nil {
			v.AddError("dob", "Must be a date in YYYY-MM-DD format.")
		} else {
			age := Age(dob, s.now())
			v.Check(age >= MinApplicantAge, "dob", "You must be at least 18 years old to apply for a loan.")
			v.Check(age <= MaxApplicantAge, "dob", "Please enter a valid date of birth.")
			in.DOB = dob
		}
	}

	if _, failed := v.Errors["monthly_income"]; !failed {
		income, err := parseDecimal(form.MonthlyIncome)
		if err != nil {
			v.AddError("monthly_income", "Must be a number.")
		} else {
			v.Check(!income.IsNegative(), "monthly_income", "Must be zero or more.")
			in.MonthlyIncome = income.Round(2)
		}
	}

	if !v.Valid() {
		return in, v.Errors
	}
	return in, nil
}

type BankForm struct {
	BankName      string `json:"bank_name" form:"bank_name" validate:"required,max=120"`
	AccountName   string `json:"account_name" form:"account_name" validate:"required,max=120"`
	AccountNumber string `json:"account_number" form:"account_number" validate:"required,min=4,max=17"`
	RoutingNumber string `json:"routing_number" form:"routing_number" validate:"required,len=9"`
	AccountType   string `json:"account_type" form:"account_type" validate:"required,accounttype"`
	LinkMetadata  string `json:"link_metadata" form:"link_metadata"`
}

// LinkMetadata is the opaque blob the bank-link widget posts with the form.
type LinkMetadata struct {
	ItemID        string `json:"item_id"`
	AccessToken   string `json:"access_token"`
	PublicToken   string `json:"public_token"`
	InstitutionID string `json:"institution_id"`
}

type BankInput struct {
	BankName      string
	AccountName   string
	AccountNumber string
	RoutingNumber string
	AccountType   string

	// Metadata is nil when absent or malformed; MetadataErr says which.
	Metadata    *LinkMetadata
	MetadataErr error
}

// Bank validates the bank-verification step. Malformed metadata never fails
// the step.
func (s *StepValidator) Bank(form BankForm) (BankInput, FieldErrors) {
	in := BankInput{
		BankName:      strings.TrimSpace(form.BankName),
		AccountName:   strings.TrimSpace(form.AccountName),
		AccountNumber: strings.TrimSpace(form.AccountNumber),
		RoutingNumber: strings.TrimSpace(form.RoutingNumber),
		AccountType:   form.AccountType,
	}
	form.BankName, form.AccountName = in.BankName, in.AccountName
	form.AccountNumber, form.RoutingNumber = in.AccountNumber, in.RoutingNumber

	if raw := strings.TrimSpace(form.LinkMetadata); raw != "" {
		var meta LinkMetadata
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			in.MetadataErr = fmt.Errorf("parse link metadata: %w", err)
		} else {
			in.Metadata = &meta
		}
	}

	if errs := s.structErrors(form); len(errs) > 0 {
		return in, errs
	}
	return in, nil
}

type ReviewForm struct {
	AgreeTerms string `json:"agree_terms" form:"agree_terms"`
}

// Review validates the consent flag of the review step.
func (s *StepValidator) Review(form ReviewForm) FieldErrors {
	v := New()
	v.Check(contains(affirmative, strings.ToLower(strings.TrimSpace(form.AgreeTerms))), "agree_terms",
		"You must agree to the terms and conditions.")
	if !v.Valid() {
		return v.Errors
	}
	return nil
}

// DocumentSet checks that every required document type is either part of
// this submission or already on file.
func (s *StepValidator) DocumentSet(submitted, onFile []models.DocumentType) FieldErrors {
	have := make(map[models.DocumentType]bool, len(submitted)+len(onFile))
	for _, t := range submitted {
		have[t] = true
	}
	for _, t := range onFile {
		have[t] = true
	}

	v := New()
	for _, t := range models.RequiredDocumentTypes {
		v.Check(have[t], string(t), "This document is required.")
	}
	if !v.Valid() {
		return v.Errors
	}
	return nil
}

func (s *StepValidator) structErrors(form any) FieldErrors {
	err := s.validate.Struct(form)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return FieldErrors{"form": "Invalid input."}
	}

	out := make(FieldErrors, len(verrs))
	for _, fe := range verrs {
		if _, exists := out[fe.Field()]; !exists {
			out[fe.Field()] = tagMessage(fe)
		}
	}
	return out
}

func tagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "max":
		return fmt.Sprintf("Must not be more than %s characters long.", fe.Param())
	case "min":
		return fmt.Sprintf("Must be at least %s characters long.", fe.Param())
	case "len":
		return fmt.Sprintf("Must be exactly %s characters long.", fe.Param())
	case "email":
		return "Must be a valid email address."
	default:
		return "Not a valid choice."
	}
}

func parseDecimal(raw string) (decimal.Decimal, error) {
	cleaned := strings.NewReplacer(",", "", "$", "", " ", "").Replace(raw)
	return decimal.NewFromString(cleaned)
}
