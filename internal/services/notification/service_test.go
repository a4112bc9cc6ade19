package notification

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"amerifund/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSender struct {
	mock.Mock
	mu   sync.Mutex
	sent map[string]string
}

func (m *MockSender) Send(ctx context.Context, to, subject, html string) error {
	m.mu.Lock()
	if m.sent == nil {
		m.sent = make(map[string]string)
	}
	m.sent[to] = html
	m.mu.Unlock()
	return m.Called(ctx, to, subject).Error(0)
}

func testApplication() (*models.User, *models.LoanApplication) {
	dob := time.Date(1990, 4, 2, 0, 0, 0, 0, time.UTC)
	user := &models.User{Username: "jdoe", Email: "jdoe@example.com"}
	user.ID = 3
	app := &models.LoanApplication{
		ID:            11,
		UserID:        3,
		LoanAmount:    decimal.NewFromInt(25000),
		LoanPurpose:   "working_capital",
		FullName:      "Jane Doe",
		SSN:           "123456789",
		DOB:           &dob,
		Email:         "jane@example.com",
		MonthlyIncome: decimal.NewFromInt(6500),
		Status:        models.StatusSubmitted,
		BankInfo: &models.BankInfo{
			BankName:      "Chase",
			AccountNumber: "000123456789",
			RoutingNumber: "021000021",
		},
		Documents: []models.Document{
			{DocumentType: models.DocIDFront, OriginalName: "front.png", FileSize: 2048},
		},
	}
	return user, app
}

func TestAmountSelected_GoesToAdmin(t *testing.T) {
	sender := new(MockSender)
	sender.On("Send", mock.Anything, "admin@example.com", "Loan Amount Selected: jdoe@example.com - $25,000.00").Return(nil)

	svc := NewService(sender, Config{AdminEmail: "admin@example.com"}, nil)
	user, app := testApplication()
	require.NoError(t, svc.AmountSelected(context.Background(), user, app))
	sender.AssertExpectations(t)
}

func TestApplicationSubmitted_SendsBoth(t *testing.T) {
	sender := new(MockSender)
	sender.On("Send", mock.Anything, "admin@example.com", "New Loan Application: Jane Doe - $25,000.00").Return(nil)
	sender.On("Send", mock.Anything, "jane@example.com", "Your AmeriFund Loan Application - Confirmation #11").Return(nil)

	svc := NewService(sender, Config{AdminEmail: "admin@example.com"}, nil)
	user, app := testApplication()
	require.NoError(t, svc.ApplicationSubmitted(context.Background(), user, app))
	sender.AssertExpectations(t)

	adminBody := sender.sent["admin@example.com"]
	assert.Contains(t, adminBody, "*****6789")
	assert.Contains(t, adminBody, "********6789")
	assert.NotContains(t, adminBody, "123456789<")
	assert.Contains(t, adminBody, "ID Front")
	assert.Contains(t, adminBody, "2.0 KB")
}

func TestApplicationSubmitted_OneFailureStillSendsOther(t *testing.T) {
	sender := new(MockSender)
	sender.On("Send", mock.Anything, "admin@example.com", mock.Anything).Return(errors.New("relay down"))
	sender.On("Send", mock.Anything, "jane@example.com", mock.Anything).Return(nil)

	svc := NewService(sender, Config{AdminEmail: "admin@example.com"}, nil)
	user, app := testApplication()
	err := svc.ApplicationSubmitted(context.Background(), user, app)
	assert.ErrorContains(t, err, "relay down")
	sender.AssertExpectations(t)
}

func TestDeliver_NoRecipient(t *testing.T) {
	svc := NewService(new(MockSender), Config{}, nil)
	user, app := testApplication()
	err := svc.BankVerified(context.Background(), user, app, app.BankInfo)
	assert.ErrorIs(t, err, ErrNoRecipient)
}

func TestDecision_UsesStatus(t *testing.T) {
	sender := new(MockSender)
	sender.On("Send", mock.Anything, "jane@example.com", "Your AmeriFund Loan Application #11 has been approved").Return(nil)

	svc := NewService(sender, Config{}, nil)
	user, app := testApplication()
	app.Status = models.StatusApproved
	require.NoError(t, svc.Decision(context.Background(), user, app))
	assert.Contains(t, sender.sent["jane@example.com"], "approved")
}

type fakeWriter struct {
	msgs []kafka.Message
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestKafkaSender_KeysByRecipient(t *testing.T) {
	w := &fakeWriter{}
	require.NoError(t, NewKafkaSender(w).Send(context.Background(), "a@example.com", "Hi", "<p>x</p>"))

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "a@example.com", string(w.msgs[0].Key))
	assert.JSONEq(t, `{"target":"a@example.com","subject":"Hi","content":"<p>x</p>"}`, string(w.msgs[0].Value))
}

func TestBuildMessage(t *testing.T) {
	msg := string(buildMessage("noreply@example.com", "a@example.com", "Hello", "<p>hi</p>"))
	assert.True(t, strings.HasPrefix(msg, "From: noreply@example.com\r\nTo: a@example.com\r\nSubject: Hello\r\n"))
	assert.Contains(t, msg, "Content-Type: text/html; charset=UTF-8\r\n\r\n<p>hi</p>")
}
