package repositories

import (
	"context"
	"errors"
	"time"

	"amerifund/internal/models"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrDuplicateUser     = errors.New("username or email already taken")
	ErrDatabaseOperation = errors.New("database operation failed")
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	// Create creates a new user; ErrDuplicateUser on a taken username or email
	Create(ctx context.Context, user *models.User) error

	// GetByID retrieves a user by their ID, served from cache when possible
	GetByID(ctx context.Context, id uint) (*models.User, error)

	// GetByEmail retrieves a user by their email address, bypassing the cache
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// ExistsByUsernameOrEmail reports whether either identifier is taken
	ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error)

	// Update updates an existing user's information
	Update(ctx context.Context, user *models.User) error

	// IncrementTokenVersion increments the user's token version
	IncrementTokenVersion(ctx context.Context, userID uint) error

	// RecordLogin stamps the last login time
	RecordLogin(ctx context.Context, userID uint, at time.Time) error

	// InvalidateCache drops cached copies of the user
	InvalidateCache(ctx context.Context, userID uint)
}

// Implementation will be in user_repository_impl.go
