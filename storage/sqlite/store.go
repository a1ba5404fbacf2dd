// Package sqlite persists finished match results in SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"go-battleship/domain/session"
	"go-battleship/storage/sqlite/migrations"
)

// Store records finished matches. It implements session.ResultRecorder.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite result store and brings its schema up to date.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := upgradeSchema(ctx, sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("upgrade schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// RecordResult inserts one finished match.
func (s *Store) RecordResult(ctx context.Context, result session.Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return errors.New("storage is not configured")
	}
	if result.Code == "" {
		return errors.New("session code is required")
	}
	if result.WinnerID == "" {
		return errors.New("winner id is required")
	}
	finishedAt := result.FinishedAt
	if finishedAt.IsZero() {
		finishedAt = time.Now()
	}
	startedAt := result.StartedAt
	if startedAt.IsZero() {
		startedAt = finishedAt
	}

	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO match_results (code, winner_id, loser_id, attacks, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		result.Code,
		result.WinnerID,
		result.LoserID,
		result.Attacks,
		toMillis(startedAt),
		toMillis(finishedAt),
	)
	if err != nil {
		return fmt.Errorf("insert match result: %w", err)
	}
	return nil
}

// ListResults returns up to limit results, most recently finished first.
func (s *Store) ListResults(ctx context.Context, limit int) ([]session.Result, error) {
	if s == nil || s.sqlDB == nil {
		return nil, errors.New("storage is not configured")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT code, winner_id, loser_id, attacks, started_at, finished_at
		 FROM match_results
		 ORDER BY finished_at DESC, id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query match results: %w", err)
	}
	defer rows.Close()

	var results []session.Result
	for rows.Next() {
		var (
			r                     session.Result
			startedAt, finishedAt int64
		)
		if err := rows.Scan(&r.Code, &r.WinnerID, &r.LoserID, &r.Attacks, &startedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("scan match result: %w", err)
		}
		r.StartedAt = fromMillis(startedAt)
		r.FinishedAt = fromMillis(finishedAt)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate match results: %w", err)
	}
	return results, nil
}
