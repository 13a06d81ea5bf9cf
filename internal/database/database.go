package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/sjperalta/pharmavault-api/internal/models"
	pkgLogger "github.com/sjperalta/pharmavault-api/pkg/logger"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const sqlitePrefix = "sqlite://"

// Option adjusts how Connect configures the store
type Option func(*options)

type options struct {
	slowQuery time.Duration
	traceSQL  bool
}

// WithSlowQueryThreshold sets the duration above which a statement is logged as slow. Zero disables it.
func WithSlowQueryThreshold(d time.Duration) Option {
	return func(o *options) { o.slowQuery = d }
}

// WithSQLTrace logs every statement at debug level
func WithSQLTrace(enabled bool) Option {
	return func(o *options) { o.traceSQL = enabled }
}

// Connect opens the document store. postgres:// URLs go to PostgreSQL,
// sqlite:// URLs (including sqlite://:memory:) to the embedded driver.
func Connect(databaseURL string, opts ...Option) (*gorm.DB, error) {
	o := options{slowQuery: 200 * time.Millisecond}
	for _, opt := range opts {
		opt(&o)
	}

	// Slow statements and SQL errors always surface; full tracing is opt-in
	logLevel := logger.Warn
	if o.traceSQL {
		logLevel = logger.Info
	}
	gormLogger := pkgLogger.NewGormLogger(logLevel, o.slowQuery)

	dialector, embedded := dialectorFor(databaseURL)

	// Open database connection
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 gormLogger,
		SkipDefaultTransaction: true,
		PrepareStmt:            !embedded,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying SQL database
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	// Configure connection pool
	if embedded {
		// sqlite serialises writers; a single connection also keeps :memory: databases shared
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetMaxOpenConns(50)
		sqlDB.SetConnMaxLifetime(time.Hour)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	}

	// Verify connection
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

func dialectorFor(databaseURL string) (gorm.Dialector, bool) {
	if strings.HasPrefix(databaseURL, sqlitePrefix) {
		return sqlite.Open(strings.TrimPrefix(databaseURL, sqlitePrefix)), true
	}
	return postgres.Open(databaseURL), false
}

// Migrate creates or updates the schema for every persisted model
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Document{},
		&models.AuditLog{},
		&models.Notification{},
		&models.RefreshToken{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}
