package repository

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DefaultSQLitePath is used when no database URL is configured.
const DefaultSQLitePath = "grader.db"

var (
	// ErrDuplicate is returned when a write violates a uniqueness invariant.
	ErrDuplicate = errors.New("duplicate record")
	// ErrConflict is returned when a guarded update finds the row no longer in the expected state.
	ErrConflict = errors.New("record changed state")
)

type DatabaseOptions struct {
	URL          string
	LogLevel     string
	MaxIdleConns int
	MaxOpenConns int
}

// Open connects to postgres for postgres:// URLs and to sqlite otherwise.
func Open(opts DatabaseOptions) (*gorm.DB, error) {
	dialector, kind := dialectorFor(opts.URL)

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(parseLogLevel(opts.LogLevel)),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", kind, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if kind == "sqlite" {
		// sqlite serializes writers; one connection also keeps :memory: databases shared
		sqlDB.SetMaxOpenConns(1)
	} else {
		if opts.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
		}
		if opts.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
		}
	}

	slog.Info("Connected to database", "driver", kind)
	return db, nil
}

func dialectorFor(url string) (gorm.Dialector, string) {
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"), strings.Contains(url, "host="):
		return postgres.Open(url), "postgres"
	case url == "":
		return sqlite.Open(DefaultSQLitePath), "sqlite"
	}
	return sqlite.Open(strings.TrimPrefix(url, "sqlite://")), "sqlite"
}

func parseLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "error":
		return logger.Error
	case "warn":
		return logger.Warn
	case "info":
		return logger.Info
	}
	return logger.Silent
}

// IsDuplicate reports whether err is a unique constraint violation from any supported driver.
func IsDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDuplicate) || errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
