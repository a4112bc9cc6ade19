package main

import (
	"context"
	"errors"
	"os"

	"amerifund/internal/config"
	"amerifund/internal/logger"
	"amerifund/internal/models"
	"amerifund/internal/repositories"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func main() {
	config.LoadEnv()
	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatal("failed to load configuration", zap.Error(err))
	}
	logger.Init(cfg.Log)
	defer logger.Sync()
	log := logger.Log

	adminEmail := os.Getenv("ADMIN_EMAIL")
	adminPassword := os.Getenv("ADMIN_PASSWORD")
	adminUsername := config.GetEnv("ADMIN_USERNAME", "admin")

	if adminEmail == "" || adminPassword == "" {
		log.Fatal("ADMIN_EMAIL and ADMIN_PASSWORD must be set in environment")
	}

	if err := repositories.InitDB(cfg); err != nil {
		log.Fatal("failed to initialise database", zap.Error(err))
	}
	defer func() {
		if sqlDB, err := repositories.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
		if repositories.CacheService != nil {
			_ = repositories.CacheService.Close()
		}
	}()

	var existingAdmin models.User
	err = repositories.DB.Where("email = ?", adminEmail).First(&existingAdmin).Error
	switch {
	case err == nil:
		log.Info("admin user already exists", zap.Uint("user_id", existingAdmin.ID))
		return
	case !errors.Is(err, gorm.ErrRecordNotFound):
		log.Fatal("failed to look up admin user", zap.Error(err))
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.DefaultCost)
	if err != nil {
		log.Fatal("failed to hash password", zap.Error(err))
	}

	adminUser := models.User{
		Username:     adminUsername,
		Email:        adminEmail,
		Password:     string(hashedPassword),
		FullName:     "Administrator",
		Role:         models.RoleAdmin,
		TokenVersion: 1,
	}
	if err := repositories.DB.Create(&adminUser).Error; err != nil {
		log.Fatal("failed to create admin user", zap.Error(err))
	}

	if err := repositories.CacheService.InvalidateUser(context.Background(), adminUser.ID, adminUser.Email); err != nil {
		log.Warn("failed to invalidate cached admin user", zap.Error(err))
	}

	log.Info("admin account created", zap.Uint("user_id", adminUser.ID), zap.String("email", adminEmail))
}
