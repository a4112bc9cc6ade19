// Package admin lets staff review submitted loan applications. Unlike the
// wizard, every view here is rendered for the admin audience.
package admin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"amerifund/internal/models"
	"amerifund/internal/repositories"
	"amerifund/internal/services/notification"
	"amerifund/internal/services/wizard"
	"amerifund/internal/utils/format"

	"go.uber.org/zap"
)

const (
	DecisionApprove = "approve"
	DecisionReject  = "reject"
)

var decisionStatus = map[string]string{
	DecisionApprove: models.StatusApproved,
	DecisionReject:  models.StatusRejected,
}

type Service interface {
	List(ctx context.Context, filter repositories.ApplicationFilter) ([]*wizard.ApplicationView, int64, error)
	Get(ctx context.Context, id uint) (*wizard.ApplicationView, error)
	Decide(ctx context.Context, id uint, decision string) (*DecisionResult, error)
}

// DecisionResult carries the decided application. Warning is set when the
// applicant could not be emailed.
type DecisionResult struct {
	Application *wizard.ApplicationView `json:"application"`
	Warning     string                  `json:"warning,omitempty"`
}

type service struct {
	apps     repositories.LoanApplicationRepository
	users    repositories.UserRepository
	notifier notification.Service
	log      *zap.Logger
	now      func() time.Time
}

func NewService(apps repositories.LoanApplicationRepository, users repositories.UserRepository, notifier notification.Service, log *zap.Logger) Service {
	if apps == nil || users == nil || notifier == nil {
		panic("admin service requires repositories and a notifier")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &service{apps: apps, users: users, notifier: notifier, log: log, now: time.Now}
}

func (s *service) List(ctx context.Context, filter repositories.ApplicationFilter) ([]*wizard.ApplicationView, int64, error) {
	switch filter.Status {
	case "", models.StatusPending, models.StatusSubmitted, models.StatusApproved, models.StatusRejected:
	default:
		return nil, 0, ErrInvalidStatus
	}

	apps, total, err := s.apps.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list applications: %w", err)
	}

	views := make([]*wizard.ApplicationView, len(apps))
	for i := range apps {
		views[i] = wizard.NewApplicationView(&apps[i], format.AudienceAdmin)
	}
	return views, total, nil
}

func (s *service) Get(ctx context.Context, id uint) (*wizard.ApplicationView, error) {
	app, err := s.apps.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return wizard.NewApplicationView(app, format.AudienceAdmin), nil
}

func (s *service) Decide(ctx context.Context, id uint, decision string) (*DecisionResult, error) {
	status, ok := decisionStatus[decision]
	if !ok {
		return nil, ErrInvalidDecision
	}

	err := s.apps.Transaction(ctx, func(tx repositories.LoanApplicationTx) error {
		app, err := tx.GetForUpdate(id)
		if err != nil {
			return err
		}
		if app.Status != models.StatusSubmitted {
			return ErrNotDecidable
		}
		return tx.TransitionStatus(id, models.StatusSubmitted, status, s.now().UTC())
	})
	switch {
	case errors.Is(err, repositories.ErrStatusConflict), errors.Is(err, ErrNotDecidable):
		return nil, ErrNotDecidable
	case errors.Is(err, repositories.ErrApplicationNotFound):
		return nil, err
	case err != nil:
		return nil, fmt.Errorf("decide application %d: %w", id, err)
	}

	app, err := s.apps.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reload application %d: %w", id, err)
	}
	s.log.Info("application decided", zap.Uint("application_id", id), zap.String("status", status))

	res := &DecisionResult{Application: wizard.NewApplicationView(app, format.AudienceAdmin)}
	if err := s.notifyDecision(ctx, app); err != nil {
		s.log.Warn("decision email failed", zap.Uint("application_id", id), zap.Error(err))
		res.Warning = "The decision was saved, but the applicant could not be emailed."
	}
	return res, nil
}

func (s *service) notifyDecision(ctx context.Context, app *models.LoanApplication) error {
	user, err := s.users.GetByID(ctx, app.UserID)
	if err != nil {
		return err
	}
	return s.notifier.Decision(ctx, user, app)
}
