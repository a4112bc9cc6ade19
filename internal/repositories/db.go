// Package repositories provides data access layer implementations.
// It handles all database operations and data persistence logic.
package repositories

import (
	"fmt"
	"time"

	"amerifund/internal/config"
	"amerifund/internal/logger"
	"amerifund/internal/models"
	"amerifund/internal/repositories/cache"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// DB is the global database instance used across the application.
var DB *gorm.DB
var CacheService *cache.CacheService

// onePendingIndex backs the find-or-create of the pending application.
const onePendingIndex = `CREATE UNIQUE INDEX IF NOT EXISTS idx_loan_applications_one_pending
	ON loan_applications (user_id) WHERE status = 'pending'`

// InitDB opens Postgres and Redis, then applies migrations.
func InitDB(cfg *config.Config) error {
	db, err := OpenPostgres(cfg.DB)
	if err != nil {
		return err
	}
	DB = db

	CacheService = cache.NewCacheService(cache.NewRedisClient(cfg.Redis), cfg.Redis.UserTTL)

	if err := Migrate(db); err != nil {
		return err
	}

	logger.Log.Info("postgres connected and migrations applied",
		zap.String("host", cfg.DB.Host), zap.String("database", cfg.DB.Name))
	return nil
}

// OpenPostgres connects and configures the pool. Record-not-found is not
// logged by GORM since the repositories translate it.
func OpenPostgres(cfg config.DBConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		cfg.Host, cfg.User, cfg.Password, cfg.Name, cfg.Port, cfg.SSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger: gormlogger.New(
			zap.NewStdLog(logger.Log.Named("gorm")),
			gormlogger.Config{
				SlowThreshold:             time.Second,
				LogLevel:                  gormlogger.Warn,
				IgnoreRecordNotFoundError: true,
				Colorful:                  false,
			},
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return db, nil
}

// Migrate creates or updates the schema.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.LoanApplication{},
		&models.BankInfo{},
		&models.Document{},
	); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}

	if err := db.Exec(onePendingIndex).Error; err != nil {
		return fmt.Errorf("create pending index: %w", err)
	}
	return nil
}

// DropAllTables removes every table owned by the service, children first.
func DropAllTables(db *gorm.DB) error {
	return db.Migrator().DropTable(
		&models.Document{},
		&models.BankInfo{},
		&models.LoanApplication{},
		&models.User{},
	)
}
