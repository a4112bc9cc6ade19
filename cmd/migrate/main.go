// Command migrate applies the database schema. With -drop it removes every
// table first, which is only allowed outside production.
package main

import (
	"flag"

	"amerifund/internal/config"
	"amerifund/internal/logger"
	"amerifund/internal/repositories"

	"go.uber.org/zap"
)

func main() {
	drop := flag.Bool("drop", false, "drop all tables before migrating")
	flag.Parse()

	config.LoadEnv()
	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatal("failed to load configuration", zap.Error(err))
	}
	logger.Init(cfg.Log)
	defer logger.Sync()
	log := logger.Log

	db, err := repositories.OpenPostgres(cfg.DB)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}()

	if *drop {
		if cfg.IsProduction() {
			log.Fatal("refusing to drop tables in production")
		}
		if err := repositories.DropAllTables(db); err != nil {
			log.Fatal("failed to drop tables", zap.Error(err))
		}
		log.Info("tables dropped")
	}

	if err := repositories.Migrate(db); err != nil {
		log.Fatal("migration failed", zap.Error(err))
	}
	log.Info("migrations applied", zap.String("database", cfg.DB.Name))
}
