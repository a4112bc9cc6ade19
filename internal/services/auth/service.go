package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"amerifund/internal/config"
	"amerifund/internal/models"
	"amerifund/internal/repositories"
	"amerifund/internal/services/notification"
	"amerifund/internal/utils"
	"amerifund/internal/validation"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type Service interface {
	// Register creates a user account. Input problems are returned as
	// validation.FieldErrors.
	Register(ctx context.Context, input *models.RegisterInput, ip string) (*Registration, error)
	Login(ctx context.Context, input *models.LoginInput) (*Session, error)
	RefreshTokens(ctx context.Context, refreshToken string) (string, string, error)
	Logout(ctx context.Context, userID uint) error
	GetUserTokenVersion(ctx context.Context, userID uint) (int, error)
	GetUserByID(ctx context.Context, userID uint) (*models.User, error)
}

// Registration is the outcome of a successful sign-up. Warning is set when
// the welcome email could not be sent.
type Registration struct {
	User    *models.User
	Warning string
}

type Session struct {
	User         *models.User
	AccessToken  string
	RefreshToken string
}

type service struct {
	userRepo repositories.UserRepository
	notifier notification.Service
	jwt      config.JWTConfig
	log      *zap.Logger
	now      func() time.Time
}

func NewService(userRepo repositories.UserRepository, notifier notification.Service, jwtCfg config.JWTConfig, log *zap.Logger) Service {
	if userRepo == nil {
		panic("user repository is required")
	}
	if notifier == nil {
		panic("notifier is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &service{
		userRepo: userRepo,
		notifier: notifier,
		jwt:      jwtCfg,
		log:      log,
		now:      time.Now,
	}
}

func (s *service) Register(ctx context.Context, input *models.RegisterInput, ip string) (*Registration, error) {
	v := validation.New()
	v.UserRegistration(input)
	if !v.Valid() {
		return nil, v.Errors
	}

	exists, err := s.userRepo.ExistsByUsernameOrEmail(ctx, input.Username, input.Email)
	if err != nil {
		return nil, fmt.Errorf("check existing account: %w", err)
	}
	if exists {
		return nil, ErrDuplicateAccount
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		Username:     input.Username,
		Email:        input.Email,
		Password:     string(hashed),
		Role:         models.RoleUser,
		IPAddress:    ip,
		TokenVersion: 1,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		// lost a race with a concurrent sign-up
		if errors.Is(err, repositories.ErrDuplicateUser) {
			return nil, ErrDuplicateAccount
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.log.Info("user registered", zap.Uint("user_id", user.ID))

	reg := &Registration{User: user}
	if err := s.notifier.Welcome(ctx, user); err != nil {
		s.log.Warn("welcome email failed", zap.Uint("user_id", user.ID), zap.Error(err))
		reg.Warning = "Your account was created, but we could not send the welcome email."
	}
	return reg, nil
}

func (s *service) Login(ctx context.Context, input *models.LoginInput) (*Session, error) {
	v := validation.New()
	v.UserLogin(input)
	if !v.Valid() {
		return nil, v.Errors
	}

	user, err := s.userRepo.GetByEmail(ctx, input.Email)
	if errors.Is(err, repositories.ErrUserNotFound) {
		s.log.Info("login failed: unknown email")
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(input.Password)); err != nil {
		s.log.Info("login failed: wrong password", zap.Uint("user_id", user.ID))
		return nil, ErrInvalidCredentials
	}

	access, refresh, err := utils.GenerateTokens(s.jwt, claimsFor(user))
	if err != nil {
		return nil, fmt.Errorf("generate tokens: %w", err)
	}

	if err := s.userRepo.RecordLogin(ctx, user.ID, s.now().UTC()); err != nil {
		s.log.Warn("failed to record login", zap.Uint("user_id", user.ID), zap.Error(err))
	}

	return &Session{User: user, AccessToken: access, RefreshToken: refresh}, nil
}

func (s *service) RefreshTokens(ctx context.Context, refreshToken string) (string, string, error) {
	claims, err := utils.ParseToken(s.jwt, refreshToken)
	if err != nil {
		return "", "", ErrInvalidToken
	}

	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		return "", "", ErrInvalidToken
	}
	if user.TokenVersion != claims.TokenVersion {
		return "", "", ErrTokenVersion
	}

	return utils.GenerateTokens(s.jwt, claimsFor(user))
}

// Logout bumps the token version, invalidating every outstanding token.
func (s *service) Logout(ctx context.Context, userID uint) error {
	if err := s.userRepo.IncrementTokenVersion(ctx, userID); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

func (s *service) GetUserTokenVersion(ctx context.Context, userID uint) (int, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return 0, err
	}
	return user.TokenVersion, nil
}

func (s *service) GetUserByID(ctx context.Context, userID uint) (*models.User, error) {
	return s.userRepo.GetByID(ctx, userID)
}

func claimsFor(user *models.User) *models.UserClaims {
	return &models.UserClaims{
		UserID:       user.ID,
		Email:        user.Email,
		Role:         user.Role,
		TokenVersion: user.TokenVersion,
		Permissions:  models.GetDefaultPermissions(user.Role),
	}
}
