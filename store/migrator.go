package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"log/slog"

	"github.com/pkg/errors"

	"github.com/subpilot/subpilot/internal/version"
)

// The migration system handles database schema versioning and upgrades.
// Schema version is stored in system_setting under "schema_version".
//
// Migration flow:
//  1. preMigrate: if the DB is uninitialized, apply LATEST.sql
//  2. Migrate: apply incremental migrations from the current to the target version
//
// Migration files live at store/migration/{driver}/{minor}/NN__description.sql,
// sorted lexicographically and applied in order. LATEST.sql is the full schema
// for new installations.

//go:embed migration
var migrationFS embed.FS

const (
	// MigrateFileNameSplit is the split character between the patch version
	// and the description in the migration file name, e.g. "1__create_table.sql".
	MigrateFileNameSplit = "__"
	// LatestSchemaFileName is the full schema file for new installations.
	LatestSchemaFileName = "LATEST.sql"

	defaultSchemaVersion = "0.0.0"
)

// Migrate migrates the database schema to the latest version.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.preMigrate(ctx); err != nil {
		return errors.Wrap(err, "failed to pre-migrate")
	}

	currentSchemaVersion, err := s.currentSchemaVersion(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get current schema version")
	}
	targetSchemaVersion, err := s.TargetSchemaVersion()
	if err != nil {
		return errors.Wrap(err, "failed to get target schema version")
	}

	if version.IsVersionGreaterThan(currentSchemaVersion, targetSchemaVersion) {
		return errors.Errorf("cannot downgrade schema version from %s to %s", currentSchemaVersion, targetSchemaVersion)
	}
	if version.IsVersionGreaterThan(targetSchemaVersion, currentSchemaVersion) {
		if err := s.applyMigrations(ctx, currentSchemaVersion, targetSchemaVersion); err != nil {
			return errors.Wrap(err, "failed to apply migrations")
		}
	}
	return nil
}

// preMigrate checks if the database is initialized and applies the latest
// schema if not.
func (s *Store) preMigrate(ctx context.Context) error {
	initialized, err := s.driver.IsInitialized(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to check if database is initialized")
	}
	if initialized {
		return nil
	}

	filePath := s.migrationBasePath() + LatestSchemaFileName
	bytes, err := migrationFS.ReadFile(filePath)
	if err != nil {
		return errors.Wrapf(err, "failed to read latest schema file: %s", filePath)
	}

	tx, err := s.driver.GetDB().Begin()
	if err != nil {
		return errors.Wrap(err, "failed to start transaction")
	}
	defer tx.Rollback()

	slog.Info("initializing new database with latest schema", slog.String("file", filePath))
	if err := s.execute(ctx, tx, string(bytes)); err != nil {
		return errors.Wrapf(err, "failed to execute SQL file %s", filePath)
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}

	schemaVersion, err := s.TargetSchemaVersion()
	if err != nil {
		return errors.Wrap(err, "failed to get target schema version")
	}
	slog.Info("database initialized", slog.String("schemaVersion", schemaVersion))
	return s.updateSchemaVersion(ctx, schemaVersion)
}

// applyMigrations applies all migration files between the current and target
// schema versions in a single transaction.
func (s *Store) applyMigrations(ctx context.Context, currentSchemaVersion, targetSchemaVersion string) error {
	filePaths, err := fs.Glob(migrationFS, fmt.Sprintf("%s*/*.sql", s.migrationBasePath()))
	if err != nil {
		return errors.Wrap(err, "failed to read migration files")
	}
	sort.Strings(filePaths)

	tx, err := s.driver.GetDB().Begin()
	if err != nil {
		return errors.Wrap(err, "failed to start transaction")
	}
	defer tx.Rollback()

	slog.Info("start migration",
		slog.String("currentSchemaVersion", currentSchemaVersion),
		slog.String("targetSchemaVersion", targetSchemaVersion))

	migrationsApplied := 0
	for _, filePath := range filePaths {
		fileSchemaVersion, err := s.schemaVersionOfMigrateScript(filePath)
		if err != nil {
			return errors.Wrap(err, "failed to get schema version of migrate script")
		}
		if !version.IsVersionGreaterThan(fileSchemaVersion, currentSchemaVersion) ||
			!version.IsVersionGreaterOrEqualThan(targetSchemaVersion, fileSchemaVersion) {
			continue
		}

		slog.Info("applying migration", slog.String("file", filePath), slog.String("version", fileSchemaVersion))
		bytes, err := migrationFS.ReadFile(filePath)
		if err != nil {
			return errors.Wrapf(err, "failed to read migration file: %s", filePath)
		}
		if err := s.execute(ctx, tx, string(bytes)); err != nil {
			return errors.Wrapf(err, "failed to execute migration %s", filePath)
		}
		migrationsApplied++
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit migration transaction")
	}
	slog.Info("migration completed", slog.Int("migrationsApplied", migrationsApplied))

	return s.updateSchemaVersion(ctx, targetSchemaVersion)
}

// TargetSchemaVersion derives the schema version this binary expects from the
// newest migration file of the current minor version.
func (s *Store) TargetSchemaVersion() (string, error) {
	currentVersion := version.GetCurrentVersion(s.profile.Mode)
	minorVersion := version.GetMinorVersion(currentVersion)
	filePaths, err := fs.Glob(migrationFS, fmt.Sprintf("%s%s/*.sql", s.migrationBasePath(), minorVersion))
	if err != nil {
		return "", errors.Wrap(err, "failed to read migration files")
	}

	sort.Strings(filePaths)
	if len(filePaths) == 0 {
		return fmt.Sprintf("%s.0", minorVersion), nil
	}
	return s.schemaVersionOfMigrateScript(filePaths[len(filePaths)-1])
}

func (s *Store) currentSchemaVersion(ctx context.Context) (string, error) {
	setting, err := s.GetSystemSetting(ctx, SystemSettingSchemaVersion)
	if errors.Is(err, ErrNotFound) {
		return defaultSchemaVersion, nil
	}
	if err != nil {
		return "", err
	}
	if setting.Value == "" {
		return defaultSchemaVersion, nil
	}
	return setting.Value, nil
}

func (s *Store) updateSchemaVersion(ctx context.Context, schemaVersion string) error {
	_, err := s.UpsertSystemSetting(ctx, &SystemSetting{
		Key:   SystemSettingSchemaVersion,
		Value: schemaVersion,
	})
	return errors.Wrap(err, "failed to upsert schema version")
}

func (s *Store) migrationBasePath() string {
	return fmt.Sprintf("migration/%s/", s.profile.Driver)
}

// schemaVersionOfMigrateScript extracts the schema version from the migration
// script file path, in the format "major.minor.patch".
func (s *Store) schemaVersionOfMigrateScript(filePath string) (string, error) {
	if strings.HasSuffix(filePath, LatestSchemaFileName) {
		return s.TargetSchemaVersion()
	}

	normalizedPath := filepath.ToSlash(filePath)
	elements := strings.Split(normalizedPath, "/")
	if len(elements) < 2 {
		return "", errors.Errorf("invalid file path: %s", filePath)
	}
	minorVersion := elements[len(elements)-2]
	rawPatchVersion := strings.Split(elements[len(elements)-1], MigrateFileNameSplit)[0]
	patchVersion, err := strconv.Atoi(rawPatchVersion)
	if err != nil {
		return "", errors.Wrapf(err, "failed to convert patch version to int: %s", rawPatchVersion)
	}
	return fmt.Sprintf("%s.%d", minorVersion, patchVersion+1), nil
}

// execute executes a SQL statement within a transaction context. PostgreSQL
// does not support multiple statements in a single ExecContext call, so the
// statement is split and executed piecewise there.
func (s *Store) execute(ctx context.Context, tx *sql.Tx, stmt string) error {
	if s.profile.Driver == "postgres" {
		for i, single := range splitSQL(stmt) {
			if single == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx, single); err != nil {
				return errors.Wrapf(err, "failed to execute statement %d", i+1)
			}
		}
		return nil
	}
	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return errors.Wrap(err, "failed to execute statement")
	}
	return nil
}

// splitSQL splits a multi-statement SQL string into individual statements,
// skipping comment lines. The schema files here contain no dollar-quoted
// function bodies, so a line-aware split on ';' is sufficient.
func splitSQL(script string) []string {
	var statements []string
	var current strings.Builder

	for _, line := range strings.Split(script, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteString("\n")
		if strings.HasSuffix(trimmed, ";") {
			stmt := strings.TrimSpace(current.String())
			statements = append(statements, strings.TrimSuffix(stmt, ";"))
			current.Reset()
		}
	}
	if stmt := strings.TrimSpace(current.String()); stmt != "" {
		statements = append(statements, stmt)
	}
	return statements
}
