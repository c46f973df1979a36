// Package storage provides SQLite implementation of the Storage interface.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/meishi/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist. ":memory:" opens a private in-memory database.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dbPath != ":memory:" {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// each pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS fragments (
		id TEXT PRIMARY KEY,
		card_id TEXT NOT NULL,
		slot INTEGER NOT NULL,
		content TEXT NOT NULL,
		metadata TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_fragments_card_id ON fragments(card_id);
	CREATE INDEX IF NOT EXISTS idx_fragments_card_slot ON fragments(card_id, slot);
	`
	_, err := db.Exec(schema)
	return err
}

// UpsertFragments writes fragments in one transaction. Existing ids are overwritten
// and keep their original created_at.
func (s *SQLiteStorage) UpsertFragments(ctx context.Context, fragments []*models.StoredFragment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO fragments (id, card_id, slot, content, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			card_id = excluded.card_id,
			slot = excluded.slot,
			content = excluded.content,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, f := range fragments {
		metadataJSON, err := json.Marshal(f.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		f.CreatedAt = now
		f.UpdatedAt = now
		if _, err := stmt.ExecContext(ctx, f.ID, f.CardID, f.Slot, f.Content, string(metadataJSON), f.CreatedAt, f.UpdatedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetFragments returns the fragments that exist among ids, ordered by card and slot.
// Missing ids are not an error; they are simply absent from the result.
func (s *SQLiteStorage) GetFragments(ctx context.Context, ids []string) ([]*models.StoredFragment, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := `SELECT id, card_id, slot, content, metadata, created_at, updated_at
		FROM fragments WHERE id IN (` + placeholders(len(ids)) + `) ORDER BY card_id, slot`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFragments(rows)
}

// DeleteFragments removes fragments by id in one transaction.
func (s *SQLiteStorage) DeleteFragments(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM fragments WHERE id IN (`+placeholders(len(ids))+`)`, args...); err != nil {
		return err
	}
	return tx.Commit()
}

// ListFragments returns fragments with offset and limit in stable card/slot order.
func (s *SQLiteStorage) ListFragments(ctx context.Context, offset, limit int) ([]*models.StoredFragment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, card_id, slot, content, metadata, created_at, updated_at
		 FROM fragments ORDER BY card_id, slot LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFragments(rows)
}

// CountFragments returns the total number of fragments.
func (s *SQLiteStorage) CountFragments(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM fragments`).Scan(&count)
	return count, err
}

// CountCards returns the number of distinct cards with at least one fragment.
func (s *SQLiteStorage) CountCards(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT card_id) FROM fragments`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func scanFragments(rows *sql.Rows) ([]*models.StoredFragment, error) {
	var fragments []*models.StoredFragment
	for rows.Next() {
		var f models.StoredFragment
		var metadataJSON string
		if err := rows.Scan(&f.ID, &f.CardID, &f.Slot, &f.Content, &metadataJSON, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(metadataJSON), &f.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata for %s: %w", f.ID, err)
		}
		fragments = append(fragments, &f)
	}
	return fragments, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
