package repo

import (
	"context"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/nabilkencana/eportofolio-auth/config"
	"github.com/nabilkencana/eportofolio-auth/internal/domain"
)

// DB wraps the gorm handle so the retry executor can reset the connection
// pool without reaching into gorm internals.
type DB struct {
	Gorm    *gorm.DB
	maxIdle int
}

func Open(cfg *config.Config) (*DB, error) {
	gdb, err := gorm.Open(postgres.Open(buildDSN(cfg)), &gorm.Config{
		Logger: loggerForGorm(cfg),
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.DBMaxOpen)
	sqlDB.SetMaxIdleConns(cfg.DBMaxIdle)
	sqlDB.SetConnMaxLifetime(cfg.DBMaxLife)
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("postgres unreachable: %w", err)
	}
	return &DB{Gorm: gdb, maxIdle: cfg.DBMaxIdle}, nil
}

func (d *DB) Migrate() error {
	return d.Gorm.AutoMigrate(&domain.User{}, &domain.Profile{}, &domain.Achievement{})
}

// ResetPool drops every idle pooled connection and re-establishes one.
// Dropping idle connections clears the server-side prepared-statement
// state that a recycled connection may have gone stale against.
func (d *DB) ResetPool(ctx context.Context) error {
	sqlDB, err := d.Gorm.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxIdleConns(0)
	sqlDB.SetMaxIdleConns(d.maxIdle)
	return sqlDB.PingContext(ctx)
}

func (d *DB) Close() error {
	sqlDB, err := d.Gorm.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func buildDSN(cfg *config.Config) string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSSLMode)
}

func loggerForGorm(cfg *config.Config) logger.Interface {
	level := logger.Silent
	switch cfg.AppEnv {
	case "local":
		level = logger.Info
	default:
		level = logger.Warn
	}
	return logger.Default.LogMode(level)
}
