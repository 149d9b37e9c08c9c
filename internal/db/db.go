package db

import (
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/doublec/ranchportal/internal/models"
)

var conn *gorm.DB

// DSNParams enable WAL, a busy timeout and foreign key enforcement.
const DSNParams = "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

// Models lists every table managed by AutoMigrate.
var Models = []any{
	&models.User{},
	&models.Member{},
	&models.Document{},
	&models.SignedDocument{},
	&models.CheckIn{},
	&models.GoalRequest{},
	&models.Goal{},
	&models.GoalUpdate{},
	&models.Note{},
	&models.AuditLog{},
	&models.TelegramLink{},
	&models.LinkCode{},
}

// Open opens the SQLite file at path and migrates the schema.
func Open(path string, opts ...Option) (*gorm.DB, error) {
	o := options{logger: gormlogger.Discard}
	for _, opt := range opts {
		opt(&o)
	}
	gdb, err := gorm.Open(sqlite.Open(path+DSNParams), &gorm.Config{
		Logger:         o.logger,
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite works best with a single writer; cap the pool accordingly.
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	if o.tracing {
		if err := gdb.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
			return nil, fmt.Errorf("gorm tracing: %w", err)
		}
	}
	if err := Migrate(gdb); err != nil {
		return nil, err
	}
	return gdb, nil
}

// Migrate creates tables plus the indexes GORM doesn't derive from struct tags.
func Migrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(Models...); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	stmts := []string{
		// At most one active version per document code.
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_documents_active_code ON documents(code) WHERE is_active = 1",
		"CREATE INDEX IF NOT EXISTS idx_checkins_member_status ON check_ins(member_id, status, confirmed_at)",
		"CREATE INDEX IF NOT EXISTS idx_audit_member_created ON audit_logs(member_id, created_at)",
	}
	for _, s := range stmts {
		if err := gdb.Exec(s).Error; err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

// Init opens the application database and keeps it as the shared connection.
func Init(path string, logger *slog.Logger, opts ...Option) error {
	gdb, err := Open(path, opts...)
	if err != nil {
		return err
	}
	conn = gdb
	if logger != nil {
		logger.Info("database ready", "component", "db", "driver", "sqlite", "path", path)
	}
	return nil
}

func Conn() *gorm.DB {
	return conn
}

type options struct {
	logger  gormlogger.Interface
	tracing bool
}

type Option func(*options)

// WithTracing registers the OpenTelemetry gorm plugin.
func WithTracing() Option {
	return func(o *options) { o.tracing = true }
}

// WithLogger replaces the default discard logger.
func WithLogger(l gormlogger.Interface) Option {
	return func(o *options) { o.logger = l }
}
