package db

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/PabloG6/medscan-intellibus/internal/config"
	"github.com/PabloG6/medscan-intellibus/internal/logger"
	"github.com/PabloG6/medscan-intellibus/internal/types"
)

// Service owns the gorm handle for either backing driver.
type Service struct {
	db     *gorm.DB
	log    *logger.Logger
	driver string
}

// Open connects to the driver selected by DB_DRIVER.
func Open(cfg *config.Config, log *logger.Logger) (*Service, error) {
	switch cfg.DBDriver {
	case "sqlite":
		return NewSQLiteService(cfg.SQLitePath, log)
	default:
		return NewPostgresService(cfg.PostgresDSN(), log)
	}
}

func NewPostgresService(dsn string, log *logger.Logger) (*Service, error) {
	serviceLog := log.With("service", "PostgresService")
	serviceLog.Info("Attempting to connect to Postgres DB now...")
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Warn),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		serviceLog.Error("Failed to connect to Postgres DB", "error", err)
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	serviceLog.Info("Successfully Connected to Postgres DB")
	return &Service{db: db, log: serviceLog, driver: "postgres"}, nil
}

// NewSQLiteService opens a pure-Go SQLite database with foreign keys enforced,
// which the cascade deletes depend on.
func NewSQLiteService(path string, log *logger.Logger) (*Service, error) {
	serviceLog := log.With("service", "SQLiteService")
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		serviceLog.Error("Failed to open SQLite DB", "error", err, "path", path)
		return nil, fmt.Errorf("failed to open sqlite %s: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sqlite handle: %w", err)
	}
	// A single connection serialises writers the way the file lock would anyway.
	sqlDB.SetMaxOpenConns(1)
	serviceLog.Info("Opened SQLite DB", "path", path)
	return &Service{db: db, log: serviceLog, driver: "sqlite"}, nil
}

// AutoMigrateAll creates or updates every table. Foreign keys come from the
// struct constraint tags: chats cascade with their user, messages with their chat.
func (s *Service) AutoMigrateAll() error {
	s.log.Info("Starting AutoMigrateAll for all GORM models now...")
	if err := s.db.AutoMigrate(
		&types.User{},
		&types.UserToken{},
		&types.Chat{},
		&types.ChatMessage{},
	); err != nil {
		s.log.Error("AutoMigrateAll failed", "error", err)
		return fmt.Errorf("auto migrate: %w", err)
	}
	s.log.Info("AutoMigrateAll completed successfully", "driver", s.driver)
	return nil
}

func (s *Service) DB() *gorm.DB {
	return s.db
}

func (s *Service) Driver() string {
	return s.driver
}

func (s *Service) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Service) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
