package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strconv"
	"strings"
)

// Schema files are named NNN_description.sql. The numeric prefix is the
// schema version; the database records the newest applied version in
// PRAGMA user_version.

const (
	upMarker   = "-- +migrate Up"
	downMarker = "-- +migrate Down"
)

type schemaStep struct {
	version int
	file    string
	up      string
}

// loadSchemaSteps reads the schema files in fsys ordered by version.
func loadSchemaSteps(fsys fs.FS) ([]schemaStep, error) {
	files, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return nil, fmt.Errorf("list schema files: %w", err)
	}
	steps := make([]schemaStep, 0, len(files))
	for _, file := range files {
		prefix, _, ok := strings.Cut(path.Base(file), "_")
		version, err := strconv.Atoi(prefix)
		if !ok || err != nil || version <= 0 {
			return nil, fmt.Errorf("schema file %s: name must start with a positive version", file)
		}
		body, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("schema file %s: %w", file, err)
		}
		steps = append(steps, schemaStep{version: version, file: file, up: upSection(string(body))})
	}
	slices.SortFunc(steps, func(a, b schemaStep) int { return a.version - b.version })
	for i := 1; i < len(steps); i++ {
		if steps[i].version == steps[i-1].version {
			return nil, fmt.Errorf("schema files %s and %s share version %d", steps[i-1].file, steps[i].file, steps[i].version)
		}
	}
	return steps, nil
}

// upgradeSchema applies every step newer than the database's user_version.
// Each step and its version bump commit together.
func upgradeSchema(ctx context.Context, db *sql.DB, fsys fs.FS) error {
	steps, err := loadSchemaSteps(fsys)
	if err != nil {
		return err
	}
	current, err := schemaVersion(ctx, db)
	if err != nil {
		return err
	}
	for _, step := range steps {
		if step.version <= current {
			continue
		}
		if err := applyStep(ctx, db, step); err != nil {
			return err
		}
		current = step.version
	}
	return nil
}

func schemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

func applyStep(ctx context.Context, db *sql.DB, step schemaStep) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("schema v%d: begin: %w", step.version, err)
	}
	defer func() { _ = tx.Rollback() }()

	if strings.TrimSpace(step.up) != "" {
		if _, err := tx.ExecContext(ctx, step.up); err != nil {
			return fmt.Errorf("schema v%d (%s): %w", step.version, step.file, err)
		}
	}
	// PRAGMA does not take bind parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", step.version)); err != nil {
		return fmt.Errorf("schema v%d: set version: %w", step.version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("schema v%d: commit: %w", step.version, err)
	}
	return nil
}

// upSection returns the statements between the Up and Down markers. A file
// without an Up marker is all Up.
func upSection(body string) string {
	_, up, found := strings.Cut(body, upMarker)
	if !found {
		up = body
	}
	up, _, _ = strings.Cut(up, downMarker)
	return up
}
