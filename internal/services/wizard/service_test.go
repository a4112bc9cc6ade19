package wizard

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"amerifund/internal/models"
	"amerifund/internal/services/artifact"
	"amerifund/internal/services/banklink"
	"amerifund/internal/session"
	"amerifund/internal/validation"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var fixedNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

type harness struct {
	svc      Service
	store    *memStore
	users    *memUsers
	sessions *session.MemoryStore
	files    *memArtifacts
	notifier *MockNotifier
	metrics  *recordingMetrics
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		store:    newMemStore(),
		sessions: session.NewMemoryStore(),
		files:    newMemArtifacts(),
		notifier: new(MockNotifier),
		metrics:  &recordingMetrics{},
	}
	h.users = &memUsers{m: h.store}
	h.store.addUser(models.User{Model: gormModel(1), Username: "alice", Email: "alice@example.com"})
	h.store.addUser(models.User{Model: gormModel(2), Username: "bob", Email: "bob@example.com"})

	h.svc = NewService(Deps{
		Applications: h.store,
		Users:        h.users,
		Sessions:     h.sessions,
		Validator:    validation.NewStepValidator(decimal.NewFromInt(5000), decimal.NewFromInt(800000), func() time.Time { return fixedNow }),
		Artifacts:    h.files,
		Notifier:     h.notifier,
		Linker:       banklink.NewSimulator(banklink.SimulatorConfig{}, zap.NewNop()),
		Metrics:      h.metrics,
	}, zap.NewNop())
	return h
}

func request(userID uint) Request {
	return Request{UserID: userID, SessionID: session.NewID()}
}

func amountForm() validation.AmountForm {
	return validation.AmountForm{LoanAmount: "25,000", LoanPurpose: "working_capital"}
}

func personalForm() validation.PersonalInfoForm {
	return validation.PersonalInfoForm{
		FullName:         "Alice Smith",
		SSN:              "123-45-6789",
		DOB:              "1990-05-01",
		Address:          "1 Main St",
		City:             "Springfield",
		State:            "il",
		ZipCode:          "62701",
		Email:            "alice@example.com",
		Phone:            "2175550100",
		Gender:           "female",
		EmploymentStatus: "employed_full_time",
		Employer:         "Acme",
		MonthlyIncome:    "6500.00",
	}
}

func bankForm() validation.BankForm {
	return validation.BankForm{
		BankName:      "First National",
		AccountName:   "Alice Smith",
		AccountNumber: "000123456789",
		RoutingNumber: "021000021",
		AccountType:   "checking",
	}
}

func upload(name string) artifact.FileUpload {
	return artifact.FileUpload{Filename: name, Size: 4, ContentType: "application/pdf", Content: strings.NewReader("%PDF")}
}

func requiredFiles() map[models.DocumentType]artifact.FileUpload {
	return map[models.DocumentType]artifact.FileUpload{
		models.DocIDFront: upload("front.pdf"),
		models.DocIDBack:  upload("back.pdf"),
		models.DocPaystub: upload("paystub.pdf"),
	}
}

// advance drives req through the wizard until the given state.
func (h *harness) advance(t *testing.T, req Request, until State) *StepResult {
	t.Helper()
	ctx := context.Background()

	res, err := h.svc.SelectAmount(ctx, req, amountForm())
	require.NoError(t, err)
	require.False(t, res.Invalid(), "amount: %v", res.Errors)
	if until == StateNeedsPersonalInfo {
		return res
	}

	res, err = h.svc.SavePersonalInfo(ctx, req, personalForm())
	require.NoError(t, err)
	require.False(t, res.Invalid(), "personal info: %v", res.Errors)
	if until == StateNeedsBankVerification {
		return res
	}

	res, err = h.svc.VerifyBank(ctx, req, bankForm())
	require.NoError(t, err)
	require.False(t, res.Invalid(), "bank: %v", res.Errors)
	if until == StateNeedsDocuments {
		return res
	}

	res, err = h.svc.UploadDocuments(ctx, req, requiredFiles())
	require.NoError(t, err)
	require.False(t, res.Invalid(), "documents: %v", res.Errors)
	return res
}

func TestWizard_HappyPath(t *testing.T) {
	h := newHarness(t)
	h.notifier.allowNotifications()
	ctx := context.Background()
	req := request(1)

	res := h.advance(t, req, StateNeedsReview)
	assert.Equal(t, StateNeedsReview, res.State)
	assert.Equal(t, RouteReview, res.Next)
	appID := res.ApplicationID

	res, err := h.svc.Submit(ctx, req, validation.ReviewForm{AgreeTerms: "yes"})
	require.NoError(t, err)
	assert.Equal(t, StateSubmitted, res.State)
	assert.Equal(t, RouteSubmitted, res.Next)
	assert.False(t, res.HasWarning())

	app := h.store.application(appID)
	require.NotNil(t, app)
	assert.Equal(t, models.StatusSubmitted, app.Status)
	assert.NotNil(t, app.SubmittedAt)
	assert.True(t, app.LoanAmount.Equal(decimal.NewFromInt(25000)))
	assert.Equal(t, "IL", app.State)
	assert.Len(t, app.Documents, 3)

	_, err = h.sessions.Get(ctx, req.SessionID)
	assert.ErrorIs(t, err, session.ErrNoPointer, "submit clears the session pointer")

	view, err := h.svc.Submitted(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, appID, view.ID)
	assert.Equal(t, "*******6789", view.SSN)
	assert.Equal(t, "$25,000.00", view.LoanAmountText)
	require.NotNil(t, view.Bank)
	assert.Equal(t, "********6789", view.Bank.AccountNumber)

	h.notifier.AssertCalled(t, "ApplicationSubmitted", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, []string{OutcomeOK}, h.metrics.outcomes["review"])
}

func TestWizard_SelectAmountReusesPendingApplication(t *testing.T) {
	h := newHarness(t)
	h.notifier.allowNotifications()
	ctx := context.Background()

	first, err := h.svc.SelectAmount(ctx, request(1), amountForm())
	require.NoError(t, err)

	form := amountForm()
	form.LoanAmount = "$40,000.50"
	second, err := h.svc.SelectAmount(ctx, request(1), form)
	require.NoError(t, err)

	assert.Equal(t, first.ApplicationID, second.ApplicationID)
	assert.Equal(t, 1, h.store.pendingCount(1))
	assert.True(t, h.store.application(first.ApplicationID).LoanAmount.Equal(decimal.RequireFromString("40000.50")))
	assert.Equal(t, RoutePersonalInfo, second.Next)
}

func TestWizard_SelectAmountInvalid(t *testing.T) {
	h := newHarness(t)

	res, err := h.svc.SelectAmount(context.Background(), request(1), validation.AmountForm{LoanAmount: "100", LoanPurpose: "yacht"})
	require.NoError(t, err)
	assert.True(t, res.Invalid())
	assert.Equal(t, "Loan amount must be between $5,000.00 and $800,000.00.", res.Errors["loan_amount"])
	assert.Equal(t, "Not a valid choice.", res.Errors["loan_purpose"])
	assert.Equal(t, RouteLoanAmount, res.Next)
	assert.Equal(t, 0, h.store.pendingCount(1))
	assert.Equal(t, []string{OutcomeInvalid}, h.metrics.outcomes["amount"])
}

func TestWizard_StepsRequireActiveApplication(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := request(1)

	_, err := h.svc.SavePersonalInfo(ctx, req, personalForm())
	assert.ErrorIs(t, err, ErrNoActiveApplication)
	_, err = h.svc.VerifyBank(ctx, req, bankForm())
	assert.ErrorIs(t, err, ErrNoActiveApplication)
	_, err = h.svc.UploadDocuments(ctx, req, requiredFiles())
	assert.ErrorIs(t, err, ErrNoActiveApplication)
	_, err = h.svc.Submit(ctx, req, validation.ReviewForm{AgreeTerms: "yes"})
	assert.ErrorIs(t, err, ErrNoActiveApplication)
}

func TestWizard_OwnershipIsolation(t *testing.T) {
	h := newHarness(t)
	h.notifier.allowNotifications()
	ctx := context.Background()

	alice := request(1)
	res := h.advance(t, alice, StateNeedsPersonalInfo)

	// bob presents a session that points at alice's application
	bob := Request{UserID: 2, SessionID: alice.SessionID}
	_, err := h.svc.SavePersonalInfo(ctx, bob, personalForm())
	assert.ErrorIs(t, err, ErrApplicationNotOwned)

	_, err = h.svc.Snapshot(ctx, bob)
	assert.ErrorIs(t, err, ErrApplicationNotOwned)

	app := h.store.application(res.ApplicationID)
	assert.False(t, app.HasPersonalInfo())
}

func TestWizard_ClosedApplicationClearsPointer(t *testing.T) {
	h := newHarness(t)
	h.notifier.allowNotifications()
	ctx := context.Background()
	req := request(1)

	res := h.advance(t, req, StateNeedsPersonalInfo)
	h.store.mu.Lock()
	app := h.store.apps[res.ApplicationID]
	app.Status = models.StatusApproved
	h.store.apps[res.ApplicationID] = app
	h.store.mu.Unlock()

	_, err := h.svc.SavePersonalInfo(ctx, req, personalForm())
	assert.ErrorIs(t, err, ErrApplicationClosed)

	_, err = h.sessions.Get(ctx, req.SessionID)
	assert.ErrorIs(t, err, session.ErrNoPointer)
}

func TestWizard_PersonalInfoBackfillsProfile(t *testing.T) {
	h := newHarness(t)
	h.notifier.allowNotifications()
	req := request(1)

	res := h.advance(t, req, StateNeedsBankVerification)
	assert.Equal(t, RouteBankVerification, res.Next)

	user, err := h.users.GetByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Alice Smith", user.FullName)
	assert.Equal(t, "2175550100", user.Phone)
	assert.Equal(t, []uint{1}, h.users.invalidated)
}

func TestWizard_PersonalInfoInvalidRedactsSSN(t *testing.T) {
	h := newHarness(t)
	h.notifier.allowNotifications()
	req := request(1)
	h.advance(t, req, StateNeedsPersonalInfo)

	form := personalForm()
	form.DOB = "2010-01-01"
	res, err := h.svc.SavePersonalInfo(context.Background(), req, form)
	require.NoError(t, err)
	require.True(t, res.Invalid())
	assert.Equal(t, "You must be at least 18 years old to apply for a loan.", res.Errors["dob"])

	echoed, ok := res.Input.(validation.PersonalInfoForm)
	require.True(t, ok)
	assert.Empty(t, echoed.SSN)
	assert.Equal(t, "Alice Smith", echoed.FullName)
}

func TestWizard_VerifyBankExchangesPublicToken(t *testing.T) {
	h := newHarness(t)
	h.notifier.allowNotifications()
	req := request(1)
	res := h.advance(t, req, StateNeedsBankVerification)

	form := bankForm()
	form.LinkMetadata = `{"public_token":"public-sandbox-abc","institution_id":"ins_3"}`
	_, err := h.svc.VerifyBank(context.Background(), req, form)
	require.NoError(t, err)

	app := h.store.application(res.ApplicationID)
	require.NotNil(t, app.BankInfo)
	assert.NotEmpty(t, app.BankInfo.LinkItemID)
	assert.NotEmpty(t, app.BankInfo.LinkAccessToken)
}

func TestWizard_VerifyBankIgnoresMalformedMetadata(t *testing.T) {
	h := newHarness(t)
	h.notifier.allowNotifications()
	req := request(1)
	res := h.advance(t, req, StateNeedsBankVerification)

	form := bankForm()
	form.LinkMetadata = `{not json`
	step, err := h.svc.VerifyBank(context.Background(), req, form)
	require.NoError(t, err)
	assert.False(t, step.Invalid())
	assert.Equal(t, RouteUploadDocuments, step.Next)

	app := h.store.application(res.ApplicationID)
	require.NotNil(t, app.BankInfo)
	assert.Empty(t, app.BankInfo.LinkItemID)

	// a second submission overwrites the single bank record
	form = bankForm()
	form.BankName = "Second Bank"
	_, err = h.svc.VerifyBank(context.Background(), req, form)
	require.NoError(t, err)
	assert.Equal(t, "Second Bank", h.store.application(res.ApplicationID).BankInfo.BankName)
}

func TestWizard_UploadRequiresBankInfo(t *testing.T) {
	h := newHarness(t)
	h.notifier.allowNotifications()
	req := request(1)
	h.advance(t, req, StateNeedsBankVerification)

	res, err := h.svc.UploadDocuments(context.Background(), req, requiredFiles())
	require.NoError(t, err)
	assert.Equal(t, RouteBankVerification, res.Next)
	assert.True(t, res.HasWarning())
	assert.Zero(t, h.files.count())
	assert.Equal(t, []string{OutcomeRedirect}, h.metrics.outcomes["documents"])
}

func TestWizard_LaterStepsRequirePersonalInfo(t *testing.T) {
	h := newHarness(t)
	h.notifier.allowNotifications()
	ctx := context.Background()
	req := request(1)
	app := h.advance(t, req, StateNeedsPersonalInfo)

	bank, err := h.svc.VerifyBank(ctx, req, bankForm())
	require.NoError(t, err)
	assert.True(t, bank.Redirect)
	assert.Equal(t, RoutePersonalInfo, bank.Next)
	assert.Nil(t, h.store.application(app.ApplicationID).BankInfo)

	docs, err := h.svc.UploadDocuments(ctx, req, requiredFiles())
	require.NoError(t, err)
	assert.Equal(t, RoutePersonalInfo, docs.Next)
	assert.Zero(t, h.files.count())

	submit, err := h.svc.Submit(ctx, req, validation.ReviewForm{AgreeTerms: "yes"})
	require.NoError(t, err)
	assert.Equal(t, RoutePersonalInfo, submit.Next)
	assert.Equal(t, models.StatusPending, h.store.application(app.ApplicationID).Status)

	resumed, err := h.svc.Resume(ctx, request(1))
	require.NoError(t, err)
	assert.Equal(t, StateNeedsPersonalInfo, resumed.State)
}

func TestWizard_UploadWithoutFilesIsInvalid(t *testing.T) {
	h := newHarness(t)
	h.notifier.allowNotifications()
	req := request(1)
	h.advance(t, req, StateNeedsReview)

	res, err := h.svc.UploadDocuments(context.Background(), req, map[models.DocumentType]artifact.FileUpload{})
	require.NoError(t, err)
	assert.True(t, res.Invalid())
	assert.Equal(t, RouteUploadDocuments, res.Next)
	assert.Contains(t, res.Errors, "documents")
	h.notifier.AssertNumberOfCalls(t, "DocumentsUploaded", 1)
}

func TestWizard_DocumentsNotificationListsEveryFileOnFile(t *testing.T) {
	h := newHarness(t)
	var notified [][]models.Document
	h.notifier.On("DocumentsUploaded", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			notified = append(notified, args.Get(3).([]models.Document))
		}).Return(nil)
	h.notifier.allowNotifications()
	req := request(1)
	h.advance(t, req, StateNeedsReview)

	_, err := h.svc.UploadDocuments(context.Background(), req, map[models.DocumentType]artifact.FileUpload{
		models.DocIDBack: upload("back-v2.pdf"),
	})
	require.NoError(t, err)

	require.Len(t, notified, 2)
	last := notified[1]
	require.Len(t, last, 3)
	names := make(map[models.DocumentType]string)
	for _, d := range last {
		names[d.DocumentType] = d.OriginalName
	}
	assert.Equal(t, map[models.DocumentType]string{
		models.DocIDFront: "front.pdf",
		models.DocIDBack:  "back-v2.pdf",
		models.DocPaystub: "paystub.pdf",
	}, names)
}

func TestWizard_UploadMissingRequiredDocument(t *testing.T) {
	h := newHarness(t)
	h.notifier.allowNotifications()
	req := request(1)
	h.advance(t, req, StateNeedsDocuments)

	files := requiredFiles()
	delete(files, models.DocPaystub)
	res, err := h.svc.UploadDocuments(context.Background(), req, files)
	require.NoError(t, err)
	assert.True(t, res.Invalid())
	assert.Equal(t, "This document is required.", res.Errors["paystub"])
	assert.Zero(t, h.files.count())
}

func TestWizard_ReuploadKeepsOneDocumentPerType(t *testing.T) {
	h := newHarness(t)
	h.notifier.allowNotifications()
	ctx := context.Background()
	req := request(1)
	res := h.advance(t, req, StateNeedsReview)

	before := h.store.application(res.ApplicationID).Documents
	var oldFront string
	for _, d := range before {
		if d.DocumentType == models.DocIDFront {
			oldFront = d.FileName
		}
	}
	require.NotEmpty(t, oldFront)

	// required types already on file, so a single replacement is enough
	_, err := h.svc.UploadDocuments(ctx, req, map[models.DocumentType]artifact.FileUpload{
		models.DocIDFront:     upload("front-v2.pdf"),
		models.DocUtilityBill: upload("bill.pdf"),
	})
	require.NoError(t, err)

	docs := h.store.application(res.ApplicationID).Documents
	counts := make(map[models.DocumentType]int)
	for _, d := range docs {
		counts[d.DocumentType]++
		if d.DocumentType == models.DocIDFront {
			assert.Equal(t, "front-v2.pdf", d.OriginalName)
		}
	}
	assert.Equal(t, map[models.DocumentType]int{
		models.DocIDFront:     1,
		models.DocIDBack:      1,
		models.DocPaystub:     1,
		models.DocUtilityBill: 1,
	}, counts)
	assert.False(t, h.files.has(oldFront), "replaced file is removed")
	assert.Equal(t, 4, h.files.count())
}

func TestWizard_UploadRollsBackOnStorageFailure(t *testing.T) {
	h := newHarness(t)
	h.notifier.allowNotifications()
	req := request(1)
	res := h.advance(t, req, StateNeedsDocuments)

	h.files.failFor[models.DocPaystub] = artifact.ErrFileTooLarge
	step, err := h.svc.UploadDocuments(context.Background(), req, requiredFiles())
	require.NoError(t, err)
	assert.True(t, step.Invalid())
	assert.Equal(t, "The file must be 16 MB or smaller.", step.Errors["paystub"])
	assert.Zero(t, h.files.count(), "files stored before the failure are removed")
	assert.Empty(t, h.store.application(res.ApplicationID).Documents)
}

func TestWizard_UploadRollsBackOnCommitFailure(t *testing.T) {
	h := newHarness(t)
	h.notifier.allowNotifications()
	req := request(1)
	res := h.advance(t, req, StateNeedsDocuments)

	h.store.failCommit = errors.New("connection reset")
	_, err := h.svc.UploadDocuments(context.Background(), req, requiredFiles())
	require.Error(t, err)
	assert.Zero(t, h.files.count())
	assert.Empty(t, h.store.application(res.ApplicationID).Documents)
}

func TestWizard_SubmitListsMissingDocuments(t *testing.T) {
	h := newHarness(t)
	h.notifier.allowNotifications()
	ctx := context.Background()
	req := request(1)
	res := h.advance(t, req, StateNeedsReview)

	// drop two required documents behind the wizard's back
	h.store.mu.Lock()
	h.store.docs[res.ApplicationID] = []models.Document{{LoanApplicationID: res.ApplicationID, DocumentType: models.DocIDFront, FileName: "f.pdf"}}
	h.store.mu.Unlock()

	step, err := h.svc.Submit(ctx, req, validation.ReviewForm{AgreeTerms: "on"})
	require.NoError(t, err)
	assert.Equal(t, RouteUploadDocuments, step.Next)
	assert.Equal(t, []models.DocumentType{models.DocIDBack, models.DocPaystub}, step.Missing)
	assert.True(t, step.HasWarning())
	assert.Equal(t, models.StatusPending, h.store.application(res.ApplicationID).Status)
	h.notifier.AssertNotCalled(t, "ApplicationSubmitted", mock.Anything, mock.Anything, mock.Anything)
}

func TestWizard_SubmitRequiresConsent(t *testing.T) {
	h := newHarness(t)
	h.notifier.allowNotifications()
	req := request(1)
	res := h.advance(t, req, StateNeedsReview)

	step, err := h.svc.Submit(context.Background(), req, validation.ReviewForm{AgreeTerms: "no"})
	require.NoError(t, err)
	assert.True(t, step.Invalid())
	assert.Equal(t, "You must agree to the terms and conditions.", step.Errors["agree_terms"])
	assert.Equal(t, models.StatusPending, h.store.application(res.ApplicationID).Status)
}

func TestWizard_NotificationFailureIsAWarning(t *testing.T) {
	h := newHarness(t)
	h.notifier.On("AmountSelected", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("smtp: 421 try again later"))

	res, err := h.svc.SelectAmount(context.Background(), request(1), amountForm())
	require.NoError(t, err)
	assert.Equal(t, RoutePersonalInfo, res.Next)
	assert.True(t, res.HasWarning())
	assert.Equal(t, 1, h.store.pendingCount(1))
	assert.Equal(t, []string{"amount_selected"}, h.metrics.failures)
	h.notifier.AssertExpectations(t)
}

func TestWizard_ResumeRoutesToFirstIncompleteStep(t *testing.T) {
	h := newHarness(t)
	h.notifier.allowNotifications()
	ctx := context.Background()

	first := request(1)
	res := h.advance(t, first, StateNeedsDocuments)

	// a new login gets a fresh session
	next := request(1)
	resumed, err := h.svc.Resume(ctx, next)
	require.NoError(t, err)
	assert.Equal(t, StateNeedsDocuments, resumed.State)
	assert.Equal(t, RouteUploadDocuments, resumed.Next)
	assert.Equal(t, res.ApplicationID, resumed.ApplicationID)

	p, err := h.sessions.Get(ctx, next.SessionID)
	require.NoError(t, err)
	assert.Equal(t, res.ApplicationID, p.ApplicationID)

	snap, err := h.svc.Snapshot(ctx, next)
	require.NoError(t, err)
	assert.Equal(t, StateNeedsDocuments, snap.State)
	assert.Equal(t, models.RequiredDocumentTypes, snap.Missing)
	assert.Equal(t, "*******6789", snap.Application.SSN)
}

func TestWizard_ResumeWithoutPendingApplication(t *testing.T) {
	h := newHarness(t)

	res, err := h.svc.Resume(context.Background(), request(2))
	require.NoError(t, err)
	assert.Equal(t, StateStart, res.State)
	assert.Equal(t, RouteLoanAmount, res.Next)

	_, err = h.svc.Submitted(context.Background(), request(2))
	assert.ErrorIs(t, err, ErrNoSubmittedApplication)
}

func TestWizard_EndSession(t *testing.T) {
	h := newHarness(t)
	h.notifier.allowNotifications()
	ctx := context.Background()
	req := request(1)
	h.advance(t, req, StateNeedsPersonalInfo)

	require.NoError(t, h.svc.EndSession(ctx, req))
	snap, err := h.svc.Snapshot(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, StateStart, snap.State)
	assert.Nil(t, snap.Application)
}

func TestNewService_PanicsWithoutDependencies(t *testing.T) {
	assert.Panics(t, func() { NewService(Deps{}, nil) })
}
