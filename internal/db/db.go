package db

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"adsinsight/internal/config"
)

// Connect opens a GORM database connection using APP_DATABASE_URL (PostgreSQL URL)
// and, when enabled, applies the embedded migrations first.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	dsn := strings.TrimSpace(cfg.DatabaseURL)
	if dsn == "" {
		return nil, errors.New("APP_DATABASE_URL is required (PostgreSQL URL)")
	}
	if !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
		return nil, errors.New("APP_DATABASE_URL must be a postgres:// or postgresql:// URL")
	}

	if cfg.AutoMigrate {
		if err := RunMigrations(dsn); err != nil {
			return nil, err
		}
	}

	return gorm.Open(postgres.Open(dsn), &gorm.Config{})
}

// EnsureBootstrapAdmin makes sure there is at least one admin user
// corresponding to the bootstrap credentials in config. If a user with
// that username already exists, it is left as-is.
func EnsureBootstrapAdmin(db *gorm.DB, cfg *config.Config) error {
	if cfg.AdminUser == "" || cfg.AdminPassword == "" {
		return nil
	}

	var count int64
	if err := db.Model(&User{}).Where("username = ?", cfg.AdminUser).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	admin := &User{
		Username:     cfg.AdminUser,
		PasswordHash: string(hash),
		IsAdmin:      true,
	}

	return db.Create(admin).Error
}

const undefinedTable = "42P01"

var missingRelationPattern = regexp.MustCompile(`relation "([^"]+)" does not exist`)

// IsMissingRelation reports whether err means the target table has not been
// created yet.
func IsMissingRelation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == undefinedTable
	}
	return missingRelationPattern.MatchString(err.Error())
}

// MissingRelation extracts the table name from a missing-relation error.
func MissingRelation(err error) string {
	if err == nil {
		return ""
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.TableName != "" {
		return pgErr.TableName
	}
	if m := missingRelationPattern.FindStringSubmatch(err.Error()); m != nil {
		name := m[1]
		if i := strings.LastIndex(name, "."); i >= 0 {
			name = name[i+1:]
		}
		return name
	}
	return ""
}

var tableMigrations = map[string]string{
	"users":           "0001_users_clients.up.sql",
	"clients":         "0001_users_clients.up.sql",
	"raw_imports":     "0002_raw_imports.up.sql",
	"raw_import_rows": "0002_raw_imports.up.sql",
	"activity_log":    "0002_raw_imports.up.sql",
}

// MigrationFor names the migration that creates table.
func MigrationFor(table string) string {
	if m, ok := tableMigrations[table]; ok {
		return m
	}
	for _, ds := range Datasets {
		if ds.Table() == table {
			return "0003_canonical_tables.up.sql"
		}
	}
	return "all pending migrations"
}

// MissingTableHint renders an operator instruction for a missing-relation error.
func MissingTableHint(err error, fallbackTable string) string {
	table := MissingRelation(err)
	if table == "" {
		table = fallbackTable
	}
	return fmt.Sprintf("table %s does not exist; run migration %s (adsimport migrate)", table, MigrationFor(table))
}
