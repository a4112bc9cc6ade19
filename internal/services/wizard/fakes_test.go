package wizard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"amerifund/internal/models"
	"amerifund/internal/repositories"
	"amerifund/internal/services/artifact"

	"github.com/stretchr/testify/mock"
	"gorm.io/gorm"
)

// memStore is an in-memory stand-in for the application and user tables.
// Transactions hold the lock for their whole duration and restore a
// snapshot when fn fails.
type memStore struct {
	mu     sync.Mutex
	nextID uint
	users  map[uint]models.User
	apps   map[uint]models.LoanApplication
	banks  map[uint]models.BankInfo
	docs   map[uint][]models.Document

	// failCommit makes the next Transaction fail after fn succeeds.
	failCommit error
}

func newMemStore() *memStore {
	return &memStore{
		users: make(map[uint]models.User),
		apps:  make(map[uint]models.LoanApplication),
		banks: make(map[uint]models.BankInfo),
		docs:  make(map[uint][]models.Document),
	}
}

func (m *memStore) addUser(u models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

func (m *memStore) load(id uint) (*models.LoanApplication, error) {
	app, ok := m.apps[id]
	if !ok {
		return nil, repositories.ErrApplicationNotFound
	}
	if b, ok := m.banks[id]; ok {
		app.BankInfo = &b
	}
	app.Documents = append([]models.Document(nil), m.docs[id]...)
	return &app, nil
}

func (m *memStore) pendingFor(userID uint) (*models.LoanApplication, error) {
	for id, app := range m.apps {
		if app.UserID == userID && app.IsPending() {
			return m.load(id)
		}
	}
	return nil, repositories.ErrApplicationNotFound
}

func (m *memStore) pendingCount(userID uint) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, app := range m.apps {
		if app.UserID == userID && app.IsPending() {
			n++
		}
	}
	return n
}

func (m *memStore) application(id uint) *models.LoanApplication {
	m.mu.Lock()
	defer m.mu.Unlock()
	app, err := m.load(id)
	if err != nil {
		return nil
	}
	return app
}

func (m *memStore) GetByID(_ context.Context, id uint) (*models.LoanApplication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.load(id)
}

func (m *memStore) FindPending(_ context.Context, userID uint) (*models.LoanApplication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pendingFor(userID)
}

func (m *memStore) LatestSubmitted(_ context.Context, userID uint) (*models.LoanApplication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *models.LoanApplication
	for id, app := range m.apps {
		if app.UserID != userID || app.IsPending() {
			continue
		}
		if best == nil || id > best.ID {
			best, _ = m.load(id)
		}
	}
	if best == nil {
		return nil, repositories.ErrApplicationNotFound
	}
	return best, nil
}

func (m *memStore) List(_ context.Context, filter repositories.ApplicationFilter) ([]models.LoanApplication, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.LoanApplication
	for id, app := range m.apps {
		if filter.Status == "" || app.Status == filter.Status {
			loaded, _ := m.load(id)
			out = append(out, *loaded)
		}
	}
	return out, int64(len(out)), nil
}

func (m *memStore) Transaction(_ context.Context, fn func(tx repositories.LoanApplicationTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	apps, banks, docs, nextID := cloneMap(m.apps), cloneMap(m.banks), cloneDocs(m.docs), m.nextID
	err := fn(memTx{m})
	if err == nil && m.failCommit != nil {
		err, m.failCommit = m.failCommit, nil
	}
	if err != nil {
		m.apps, m.banks, m.docs, m.nextID = apps, banks, docs, nextID
	}
	return err
}

func cloneMap[T any](in map[uint]T) map[uint]T {
	out := make(map[uint]T, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneDocs(in map[uint][]models.Document) map[uint][]models.Document {
	out := make(map[uint][]models.Document, len(in))
	for k, v := range in {
		out[k] = append([]models.Document(nil), v...)
	}
	return out
}

type memTx struct{ m *memStore }

func (t memTx) LockUser(userID uint) (*models.User, error) {
	u, ok := t.m.users[userID]
	if !ok {
		return nil, repositories.ErrUserNotFound
	}
	return &u, nil
}

func (t memTx) FindPending(userID uint) (*models.LoanApplication, error) {
	return t.m.pendingFor(userID)
}

func (t memTx) GetForUpdate(id uint) (*models.LoanApplication, error) {
	return t.m.load(id)
}

func (t memTx) Create(app *models.LoanApplication) error {
	if _, err := t.m.pendingFor(app.UserID); err == nil {
		return errors.New("duplicate pending application")
	}
	t.m.nextID++
	app.ID = t.m.nextID
	app.CreatedAt = time.Now()
	return t.Save(app)
}

func (t memTx) Save(app *models.LoanApplication) error {
	row := *app
	row.BankInfo, row.Documents = nil, nil
	t.m.apps[app.ID] = row
	return nil
}

func (t memTx) UpsertBankInfo(info *models.BankInfo) error {
	t.m.banks[info.LoanApplicationID] = *info
	return nil
}

func (t memTx) ReplaceDocument(doc *models.Document) (*models.Document, error) {
	var replaced *models.Document
	kept := t.m.docs[doc.LoanApplicationID][:0:0]
	for _, d := range t.m.docs[doc.LoanApplicationID] {
		if d.DocumentType == doc.DocumentType {
			d := d
			replaced = &d
			continue
		}
		kept = append(kept, d)
	}
	t.m.nextID++
	doc.ID = t.m.nextID
	doc.UploadedAt = time.Now()
	t.m.docs[doc.LoanApplicationID] = append(kept, *doc)
	return replaced, nil
}

func (t memTx) BackfillUserProfile(userID uint, fullName, phone string) (bool, error) {
	u := t.m.users[userID]
	changed := false
	if u.FullName == "" && fullName != "" {
		u.FullName, changed = fullName, true
	}
	if u.Phone == "" && phone != "" {
		u.Phone, changed = phone, true
	}
	t.m.users[userID] = u
	return changed, nil
}

func (t memTx) TransitionStatus(id uint, from, to string, at time.Time) error {
	app, ok := t.m.apps[id]
	if !ok {
		return repositories.ErrApplicationNotFound
	}
	if app.Status != from {
		return repositories.ErrStatusConflict
	}
	app.Status = to
	app.SubmittedAt = &at
	t.m.apps[id] = app
	return nil
}

// memUsers serves users out of the same memStore.
type memUsers struct {
	m           *memStore
	invalidated []uint
}

func (u *memUsers) Create(context.Context, *models.User) error { return nil }

func (u *memUsers) GetByID(_ context.Context, id uint) (*models.User, error) {
	u.m.mu.Lock()
	defer u.m.mu.Unlock()
	user, ok := u.m.users[id]
	if !ok {
		return nil, repositories.ErrUserNotFound
	}
	return &user, nil
}

func (u *memUsers) GetByEmail(context.Context, string) (*models.User, error) {
	return nil, repositories.ErrUserNotFound
}

func (u *memUsers) ExistsByUsernameOrEmail(context.Context, string, string) (bool, error) {
	return false, nil
}

func (u *memUsers) Update(context.Context, *models.User) error         { return nil }
func (u *memUsers) IncrementTokenVersion(context.Context, uint) error  { return nil }
func (u *memUsers) RecordLogin(context.Context, uint, time.Time) error { return nil }

func (u *memUsers) InvalidateCache(_ context.Context, userID uint) {
	u.invalidated = append(u.invalidated, userID)
}

// memArtifacts keeps stored file names in memory.
type memArtifacts struct {
	mu      sync.Mutex
	seq     int
	files   map[string]bool
	failFor map[models.DocumentType]error
}

func newMemArtifacts() *memArtifacts {
	return &memArtifacts{files: make(map[string]bool), failFor: make(map[models.DocumentType]error)}
}

func (a *memArtifacts) Store(_ context.Context, f artifact.FileUpload, appID uint, docType models.DocumentType) (*artifact.StoredArtifact, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.failFor[docType]; err != nil {
		return nil, err
	}
	data, err := io.ReadAll(f.Content)
	if err != nil {
		return nil, err
	}
	a.seq++
	name := fmt.Sprintf("%d-%s-%d.pdf", appID, docType, a.seq)
	a.files[name] = true
	return &artifact.StoredArtifact{
		Name:         name,
		OriginalName: f.Filename,
		MimeType:     "application/pdf",
		Size:         int64(len(data)),
	}, nil
}

func (a *memArtifacts) Delete(_ context.Context, _ uint, name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.files, name)
	return nil
}

func (a *memArtifacts) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.files)
}

func (a *memArtifacts) has(name string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.files[name]
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Welcome(ctx context.Context, user *models.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockNotifier) AmountSelected(ctx context.Context, user *models.User, app *models.LoanApplication) error {
	return m.Called(ctx, user, app).Error(0)
}

func (m *MockNotifier) PersonalInfoSaved(ctx context.Context, user *models.User, app *models.LoanApplication) error {
	return m.Called(ctx, user, app).Error(0)
}

func (m *MockNotifier) BankVerified(ctx context.Context, user *models.User, app *models.LoanApplication, bank *models.BankInfo) error {
	return m.Called(ctx, user, app, bank).Error(0)
}

func (m *MockNotifier) DocumentsUploaded(ctx context.Context, user *models.User, app *models.LoanApplication, docs []models.Document) error {
	return m.Called(ctx, user, app, docs).Error(0)
}

func (m *MockNotifier) ApplicationSubmitted(ctx context.Context, user *models.User, app *models.LoanApplication) error {
	return m.Called(ctx, user, app).Error(0)
}

func (m *MockNotifier) Decision(ctx context.Context, user *models.User, app *models.LoanApplication) error {
	return m.Called(ctx, user, app).Error(0)
}

// allowNotifications accepts every milestone without asserting on it.
func (m *MockNotifier) allowNotifications() {
	m.On("AmountSelected", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("PersonalInfoSaved", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("BankVerified", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("DocumentsUploaded", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("ApplicationSubmitted", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
}

type recordingMetrics struct {
	mu       sync.Mutex
	outcomes map[string][]string
	failures []string
}

func (r *recordingMetrics) RecordStep(step, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outcomes == nil {
		r.outcomes = make(map[string][]string)
	}
	r.outcomes[step] = append(r.outcomes[step], outcome)
}

func (r *recordingMetrics) RecordNotificationFailure(milestone string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, milestone)
}

func gormModel(id uint) gorm.Model {
	return gorm.Model{ID: id}
}
