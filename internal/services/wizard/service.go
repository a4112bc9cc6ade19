package wizard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"amerifund/internal/models"
	"amerifund/internal/repositories"
	"amerifund/internal/services/artifact"
	"amerifund/internal/services/banklink"
	"amerifund/internal/services/notification"
	"amerifund/internal/session"
	"amerifund/internal/utils/format"
	"amerifund/internal/validation"

	"go.uber.org/zap"
)

const notificationWarning = "Your progress was saved, but we could not send the notification email."

// Deps are the collaborators of the wizard. Metrics is optional.
type Deps struct {
	Applications repositories.LoanApplicationRepository
	Users        repositories.UserRepository
	Sessions     session.Store
	Validator    *validation.StepValidator
	Artifacts    artifact.Service
	Notifier     notification.Service
	Linker       banklink.Linker
	Metrics      MetricsCollector
}

type service struct {
	apps      repositories.LoanApplicationRepository
	users     repositories.UserRepository
	sessions  session.Store
	validator *validation.StepValidator
	artifacts artifact.Service
	notifier  notification.Service
	linker    banklink.Linker
	metrics   MetricsCollector
	log       *zap.Logger
	now       func() time.Time
}

// NewService creates a new wizard service
func NewService(deps Deps, log *zap.Logger) Service {
	switch {
	case deps.Applications == nil:
		panic("applications repository is required")
	case deps.Users == nil:
		panic("users repository is required")
	case deps.Sessions == nil:
		panic("session store is required")
	case deps.Validator == nil:
		panic("step validator is required")
	case deps.Artifacts == nil:
		panic("artifact service is required")
	case deps.Notifier == nil:
		panic("notifier is required")
	case deps.Linker == nil:
		panic("bank linker is required")
	}

	if deps.Metrics == nil {
		deps.Metrics = &NoopMetricsCollector{}
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &service{
		apps:      deps.Applications,
		users:     deps.Users,
		sessions:  deps.Sessions,
		validator: deps.Validator,
		artifacts: deps.Artifacts,
		notifier:  deps.Notifier,
		linker:    deps.Linker,
		metrics:   deps.Metrics,
		log:       log,
		now:       time.Now,
	}
}

func (s *service) SelectAmount(ctx context.Context, req Request, form validation.AmountForm) (res *StepResult, err error) {
	defer s.observe("amount", time.Now(), &res, &err)

	in, errs := s.validator.Amount(form)
	if errs != nil {
		return invalid(StateStart, errs, form), nil
	}

	var (
		user *models.User
		app  *models.LoanApplication
	)
	err = s.apps.Transaction(ctx, func(tx repositories.LoanApplicationTx) error {
		var err error
		if user, err = tx.LockUser(req.UserID); err != nil {
			return err
		}

		app, err = tx.FindPending(req.UserID)
		switch {
		case errors.Is(err, repositories.ErrApplicationNotFound):
			app = &models.LoanApplication{
				UserID:      req.UserID,
				Status:      models.StatusPending,
				LoanAmount:  in.LoanAmount,
				LoanPurpose: in.LoanPurpose,
				FullName:    user.FullName,
				Email:       user.Email,
				Phone:       user.Phone,
			}
			return tx.Create(app)
		case err != nil:
			return err
		}

		app.LoanAmount = in.LoanAmount
		app.LoanPurpose = in.LoanPurpose
		return tx.Save(app)
	})
	if err != nil {
		return nil, fmt.Errorf("select amount: %w", err)
	}

	if err := s.sessions.Set(ctx, req.SessionID, session.Pointer{ApplicationID: app.ID, UserID: req.UserID}); err != nil {
		return nil, fmt.Errorf("select amount: set session: %w", err)
	}

	res = next(StateNeedsPersonalInfo, app.ID, "Loan amount saved.")
	s.notify(res, "amount_selected", func() error {
		return s.notifier.AmountSelected(ctx, user, app)
	})
	return res, nil
}

func (s *service) SavePersonalInfo(ctx context.Context, req Request, form validation.PersonalInfoForm) (res *StepResult, err error) {
	defer s.observe("personal_info", time.Now(), &res, &err)

	app, err := s.resolve(ctx, req)
	if err != nil {
		return nil, err
	}

	in, errs := s.validator.PersonalInfo(form)
	if errs != nil {
		return invalid(StateNeedsPersonalInfo, errs, form.Redacted()), nil
	}

	var profileChanged bool
	err = s.apps.Transaction(ctx, func(tx repositories.LoanApplicationTx) error {
		locked, err := lockPending(tx, app.ID)
		if err != nil {
			return err
		}

		dob := in.DOB
		locked.FullName = in.FullName
		locked.SSN = in.SSN
		locked.DOB = &dob
		locked.Address = in.Address
		locked.City = in.City
		locked.State = in.State
		locked.ZipCode = in.ZipCode
		locked.Email = in.Email
		locked.Phone = in.Phone
		locked.Gender = in.Gender
		locked.EmploymentStatus = in.EmploymentStatus
		locked.Employer = in.Employer
		locked.MonthlyIncome = in.MonthlyIncome
		if err := tx.Save(locked); err != nil {
			return err
		}
		app = locked

		profileChanged, err = tx.BackfillUserProfile(req.UserID, in.FullName, in.Phone)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("save personal info: %w", err)
	}
	if profileChanged {
		s.users.InvalidateCache(ctx, req.UserID)
	}

	res = next(StateNeedsBankVerification, app.ID, "Personal information saved.")
	s.notify(res, "personal_info_saved", func() error {
		user, err := s.users.GetByID(ctx, req.UserID)
		if err != nil {
			return err
		}
		return s.notifier.PersonalInfoSaved(ctx, user, app)
	})
	return res, nil
}

func (s *service) VerifyBank(ctx context.Context, req Request, form validation.BankForm) (res *StepResult, err error) {
	defer s.observe("bank_verification", time.Now(), &res, &err)

	app, err := s.resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	if !app.HasPersonalInfo() {
		return redirect(StateNeedsPersonalInfo, app.ID, personalInfoFirst), nil
	}

	in, errs := s.validator.Bank(form)
	if errs != nil {
		return invalid(StateNeedsBankVerification, errs, form), nil
	}

	info := &models.BankInfo{
		LoanApplicationID: app.ID,
		BankName:          in.BankName,
		AccountName:       in.AccountName,
		AccountNumber:     in.AccountNumber,
		RoutingNumber:     in.RoutingNumber,
		AccountType:       in.AccountType,
	}
	if in.MetadataErr != nil {
		s.log.Warn("ignoring malformed link metadata", zap.Uint("application_id", app.ID), zap.Error(in.MetadataErr))
	}
	if meta := s.completeLink(ctx, app.ID, in.Metadata); meta != nil {
		info.LinkItemID = meta.ItemID
		info.LinkAccessToken = meta.AccessToken
	}

	err = s.apps.Transaction(ctx, func(tx repositories.LoanApplicationTx) error {
		locked, err := lockPending(tx, app.ID)
		if err != nil {
			return err
		}
		app = locked
		return tx.UpsertBankInfo(info)
	})
	if err != nil {
		return nil, fmt.Errorf("verify bank: %w", err)
	}
	app.BankInfo = info

	res = next(StateNeedsDocuments, app.ID, "Bank information saved.")
	s.notify(res, "bank_verified", func() error {
		user, err := s.users.GetByID(ctx, req.UserID)
		if err != nil {
			return err
		}
		return s.notifier.BankVerified(ctx, user, app, info)
	})
	return res, nil
}

// completeLink exchanges a bare public token for an access token. A failed
// exchange drops the metadata rather than failing the step.
func (s *service) completeLink(ctx context.Context, appID uint, meta *validation.LinkMetadata) *validation.LinkMetadata {
	if meta == nil || meta.AccessToken != "" || meta.PublicToken == "" {
		return meta
	}

	ex, err := s.linker.ExchangePublicToken(ctx, meta.PublicToken)
	if err != nil {
		s.log.Warn("public token exchange failed", zap.Uint("application_id", appID), zap.Error(err))
		return nil
	}

	out := *meta
	out.AccessToken = ex.AccessToken
	if out.ItemID == "" {
		out.ItemID = ex.ItemID
	}
	return &out
}

type storedFile struct {
	docType  models.DocumentType
	artifact *artifact.StoredArtifact
}

func (s *service) UploadDocuments(ctx context.Context, req Request, files map[models.DocumentType]artifact.FileUpload) (res *StepResult, err error) {
	defer s.observe("documents", time.Now(), &res, &err)

	app, err := s.resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	if !app.HasPersonalInfo() {
		return redirect(StateNeedsPersonalInfo, app.ID, personalInfoFirst), nil
	}
	if app.BankInfo == nil {
		return redirect(StateNeedsBankVerification, app.ID, bankFirst), nil
	}

	if len(files) == 0 {
		return invalid(StateNeedsDocuments, validation.FieldErrors{
			"documents": "Please select at least one file to upload.",
		}, map[string]string{}), nil
	}

	echo := make(map[string]string, len(files))
	submitted := make([]models.DocumentType, 0, len(files))
	v := validation.New()
	for t, f := range files {
		echo[string(t)] = f.Filename
		if !t.IsValid() {
			v.AddError(string(t), "Unknown document type.")
			continue
		}
		submitted = append(submitted, t)
	}
	v.Merge(s.validator.DocumentSet(submitted, documentTypes(app.Documents)))
	if !v.Valid() {
		return invalid(StateNeedsDocuments, v.Errors, echo), nil
	}

	// Store every file before touching rows; any failure removes them all.
	var stored []storedFile
	for _, t := range models.DocumentTypes {
		f, ok := files[t]
		if !ok {
			continue
		}
		a, err := s.artifacts.Store(ctx, f, app.ID, t)
		if err != nil {
			s.log.Info("document rejected", zap.Uint("application_id", app.ID),
				zap.String("document_type", string(t)), zap.Error(err))
			v.AddError(string(t), uploadMessage(err))
			continue
		}
		stored = append(stored, storedFile{docType: t, artifact: a})
	}
	if !v.Valid() {
		s.removeFiles(ctx, app.ID, stored)
		return invalid(StateNeedsDocuments, v.Errors, echo), nil
	}

	var (
		replaced []*models.Document
		docs     []models.Document
		onFile   []models.Document
	)
	err = s.apps.Transaction(ctx, func(tx repositories.LoanApplicationTx) error {
		replaced, docs = nil, nil

		locked, err := lockPending(tx, app.ID)
		if err != nil {
			return err
		}
		if locked.BankInfo == nil {
			return ErrApplicationClosed
		}
		app = locked

		for _, sf := range stored {
			doc := &models.Document{
				LoanApplicationID: app.ID,
				DocumentType:      sf.docType,
				FileName:          sf.artifact.Name,
				OriginalName:      sf.artifact.OriginalName,
				MimeType:          sf.artifact.MimeType,
				FileSize:          sf.artifact.Size,
			}
			old, err := tx.ReplaceDocument(doc)
			if err != nil {
				return err
			}
			if old != nil {
				replaced = append(replaced, old)
			}
			docs = append(docs, *doc)
		}
		onFile = mergeDocuments(app.Documents, docs)
		return nil
	})
	if err != nil {
		s.removeFiles(ctx, app.ID, stored)
		return nil, fmt.Errorf("upload documents: %w", err)
	}

	for _, old := range replaced {
		if err := s.artifacts.Delete(ctx, app.ID, old.FileName); err != nil {
			s.log.Warn("failed to remove replaced document", zap.Uint("application_id", app.ID),
				zap.String("file_name", old.FileName), zap.Error(err))
		}
	}

	res = next(StateNeedsReview, app.ID, fmt.Sprintf("%d document(s) uploaded.", len(docs)))
	s.notify(res, "documents_uploaded", func() error {
		user, err := s.users.GetByID(ctx, req.UserID)
		if err != nil {
			return err
		}
		return s.notifier.DocumentsUploaded(ctx, user, app, onFile)
	})
	return res, nil
}

// mergeDocuments returns the documents on file after replacing every type
// present in uploaded, in upload-form order.
func mergeDocuments(existing, uploaded []models.Document) []models.Document {
	byType := make(map[models.DocumentType]models.Document, len(existing)+len(uploaded))
	for _, d := range existing {
		byType[d.DocumentType] = d
	}
	for _, d := range uploaded {
		byType[d.DocumentType] = d
	}

	out := make([]models.Document, 0, len(byType))
	for _, t := range models.DocumentTypes {
		if d, ok := byType[t]; ok {
			out = append(out, d)
		}
	}
	return out
}

func (s *service) removeFiles(ctx context.Context, appID uint, files []storedFile) {
	for _, f := range files {
		if err := s.artifacts.Delete(ctx, appID, f.artifact.Name); err != nil {
			s.log.Error("failed to roll back stored document", zap.Uint("application_id", appID),
				zap.String("file_name", f.artifact.Name), zap.Error(err))
		}
	}
}

func (s *service) Submit(ctx context.Context, req Request, form validation.ReviewForm) (res *StepResult, err error) {
	defer s.observe("review", time.Now(), &res, &err)

	app, err := s.resolve(ctx, req)
	if err != nil {
		return nil, err
	}

	if errs := s.validator.Review(form); errs != nil {
		return invalid(StateNeedsReview, errs, form), nil
	}
	if res := prerequisites(app); res != nil {
		return res, nil
	}

	submittedAt := s.now().UTC()
	err = s.apps.Transaction(ctx, func(tx repositories.LoanApplicationTx) error {
		locked, err := lockPending(tx, app.ID)
		if err != nil {
			return err
		}
		app = locked
		if res = prerequisites(locked); res != nil {
			return nil
		}

		err = tx.TransitionStatus(app.ID, models.StatusPending, models.StatusSubmitted, submittedAt)
		if errors.Is(err, repositories.ErrStatusConflict) {
			return ErrApplicationClosed
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("submit: %w", err)
	}
	if res != nil {
		return res, nil
	}

	app.Status = models.StatusSubmitted
	app.SubmittedAt = &submittedAt
	if err := s.sessions.Clear(ctx, req.SessionID); err != nil {
		s.log.Warn("failed to clear session pointer", zap.Uint("application_id", app.ID), zap.Error(err))
	}

	res = next(StateSubmitted, app.ID, "Your application has been submitted.")
	s.notify(res, "application_submitted", func() error {
		user, err := s.users.GetByID(ctx, req.UserID)
		if err != nil {
			return err
		}
		return s.notifier.ApplicationSubmitted(ctx, user, app)
	})
	return res, nil
}

const (
	personalInfoFirst = "Please complete your personal information first."
	bankFirst         = "Please complete bank verification first."
)

// prerequisites sends the actor back to the first earlier step that is still
// incomplete. It returns nil when the application can be submitted.
func prerequisites(app *models.LoanApplication) *StepResult {
	if !app.HasPersonalInfo() {
		return redirect(StateNeedsPersonalInfo, app.ID, personalInfoFirst)
	}
	if app.BankInfo == nil {
		return redirect(StateNeedsBankVerification, app.ID, bankFirst)
	}
	missing := MissingDocuments(app.Documents)
	if len(missing) == 0 {
		return nil
	}

	names := make([]string, len(missing))
	for i, t := range missing {
		names[i] = string(t)
	}
	res := redirect(StateNeedsDocuments, app.ID,
		"Please upload the following required documents: "+strings.Join(names, ", "))
	res.Missing = missing
	return res
}

func (s *service) Submitted(ctx context.Context, req Request) (*ApplicationView, error) {
	app, err := s.apps.LatestSubmitted(ctx, req.UserID)
	if errors.Is(err, repositories.ErrApplicationNotFound) {
		return nil, ErrNoSubmittedApplication
	}
	if err != nil {
		return nil, fmt.Errorf("load submitted application: %w", err)
	}
	return NewApplicationView(app, format.AudienceCustomer), nil
}

func (s *service) Resume(ctx context.Context, req Request) (*StepResult, error) {
	app, err := s.apps.FindPending(ctx, req.UserID)
	if errors.Is(err, repositories.ErrApplicationNotFound) {
		if err := s.sessions.Clear(ctx, req.SessionID); err != nil {
			return nil, fmt.Errorf("resume: clear session: %w", err)
		}
		return &StepResult{State: StateStart, Next: StateStart.Route()}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resume: %w", err)
	}

	if err := s.sessions.Set(ctx, req.SessionID, session.Pointer{ApplicationID: app.ID, UserID: req.UserID}); err != nil {
		return nil, fmt.Errorf("resume: set session: %w", err)
	}

	state := DeriveState(app, app.BankInfo, app.Documents)
	s.log.Info("resuming application", zap.Uint("user_id", req.UserID),
		zap.Uint("application_id", app.ID), zap.Stringer("state", state))

	res := &StepResult{State: state, Next: state.Route(), ApplicationID: app.ID}
	res.AddFlash(FlashInfo, "Welcome back! Your application has been restored.")
	return res, nil
}

func (s *service) Snapshot(ctx context.Context, req Request) (*Snapshot, error) {
	app, err := s.resolve(ctx, req)
	if errors.Is(err, ErrNoActiveApplication) {
		return &Snapshot{State: StateStart, Next: StateStart.Route()}, nil
	}
	if err != nil {
		return nil, err
	}

	state := DeriveState(app, app.BankInfo, app.Documents)
	return &Snapshot{
		State:       state,
		Next:        state.Route(),
		Application: NewApplicationView(app, format.AudienceCustomer),
		Missing:     MissingDocuments(app.Documents),
	}, nil
}

func (s *service) LinkToken(ctx context.Context, req Request) (*banklink.LinkToken, error) {
	tok, err := s.linker.CreateLinkToken(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("create link token: %w", err)
	}
	return tok, nil
}

func (s *service) EndSession(ctx context.Context, req Request) error {
	if req.SessionID == "" {
		return nil
	}
	return s.sessions.Clear(ctx, req.SessionID)
}

// resolve loads the application the session points at and checks that the
// actor owns it and that it is still pending.
func (s *service) resolve(ctx context.Context, req Request) (*models.LoanApplication, error) {
	p, err := s.sessions.Get(ctx, req.SessionID)
	if errors.Is(err, session.ErrNoPointer) {
		return nil, ErrNoActiveApplication
	}
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}

	app, err := s.apps.GetByID(ctx, p.ApplicationID)
	if errors.Is(err, repositories.ErrApplicationNotFound) {
		return nil, ErrApplicationNotOwned
	}
	if err != nil {
		return nil, fmt.Errorf("load application: %w", err)
	}

	if app.UserID != req.UserID {
		s.log.Warn("session points at another user's application",
			zap.Uint("user_id", req.UserID), zap.Uint("application_id", app.ID))
		return nil, ErrApplicationNotOwned
	}
	if !app.IsPending() {
		if err := s.sessions.Clear(ctx, req.SessionID); err != nil {
			s.log.Warn("failed to clear session pointer", zap.Error(err))
		}
		return nil, ErrApplicationClosed
	}
	return app, nil
}

func lockPending(tx repositories.LoanApplicationTx, id uint) (*models.LoanApplication, error) {
	app, err := tx.GetForUpdate(id)
	if err != nil {
		return nil, err
	}
	if !app.IsPending() {
		return nil, ErrApplicationClosed
	}
	return app, nil
}

func (s *service) notify(res *StepResult, milestone string, send func() error) {
	if err := send(); err != nil {
		s.log.Warn("notification failed", zap.String("milestone", milestone),
			zap.Uint("application_id", res.ApplicationID), zap.Error(err))
		s.metrics.RecordNotificationFailure(milestone)
		res.AddFlash(FlashWarning, notificationWarning)
	}
}

func (s *service) observe(step string, start time.Time, res **StepResult, err *error) {
	outcome := OutcomeOK
	switch {
	case *err != nil:
		outcome = OutcomeError
	case *res == nil:
	case (*res).Invalid():
		outcome = OutcomeInvalid
	case (*res).Redirect:
		outcome = OutcomeRedirect
	}
	s.metrics.RecordStep(step, outcome, time.Since(start))
}

func next(state State, appID uint, message string) *StepResult {
	res := &StepResult{State: state, Next: state.Route(), ApplicationID: appID}
	res.AddFlash(FlashSuccess, message)
	return res
}

func redirect(state State, appID uint, message string) *StepResult {
	res := &StepResult{State: state, Next: state.Route(), ApplicationID: appID, Redirect: true}
	res.AddFlash(FlashWarning, message)
	return res
}

func invalid(state State, errs validation.FieldErrors, input interface{}) *StepResult {
	res := &StepResult{State: state, Next: state.Route(), Errors: errs, Input: input}
	res.AddFlash(FlashDanger, "Please correct the errors below.")
	return res
}

func documentTypes(docs []models.Document) []models.DocumentType {
	types := make([]models.DocumentType, len(docs))
	for i, d := range docs {
		types[i] = d.DocumentType
	}
	return types
}

func uploadMessage(err error) string {
	switch {
	case errors.Is(err, artifact.ErrEmptyFile):
		return "The file is empty."
	case errors.Is(err, artifact.ErrDisallowedExtension):
		return "Allowed file types: pdf, png, jpg, jpeg, doc, docx."
	case errors.Is(err, artifact.ErrFileTooLarge):
		return "The file must be 16 MB or smaller."
	default:
		return "The file could not be saved. Please try again."
	}
}
