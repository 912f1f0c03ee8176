// Package sqlite persists addon records. It is the single source of truth
// for addon state; all writes funnel through the lifecycle service.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/alcove-sh/alcove/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS addons (
	id                TEXT PRIMARY KEY,
	owner_id          TEXT NOT NULL,
	display_name      TEXT NOT NULL DEFAULT '',
	source_image      TEXT NOT NULL,
	status            TEXT NOT NULL,
	container_ref     TEXT NOT NULL DEFAULT '',
	internal_endpoint TEXT NOT NULL DEFAULT '',
	last_error        TEXT NOT NULL DEFAULT '',
	created_at        TEXT NOT NULL,
	updated_at        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_addons_owner ON addons(owner_id);
`

// Store implements the AddonRegistry port on sqlite.
type Store struct {
	db *sql.DB
}

// Open opens (and creates when absent) the registry database at path and
// applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path))
	if err != nil {
		return nil, fmt.Errorf("open registry db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Create persists a new addon record.
func (s *Store) Create(ctx context.Context, record *domain.AddonRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO addons (id, owner_id, display_name, source_image, status,
			container_ref, internal_endpoint, last_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.OwnerID, record.DisplayName, record.SourceImage,
		string(record.Status), record.ContainerRef, record.InternalEndpoint,
		record.LastError,
		record.CreatedAt.UTC().Format(time.RFC3339),
		record.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("create addon %s: %w", record.ID, err)
	}
	return nil
}

// Get returns the record with the given id.
func (s *Store) Get(ctx context.Context, id string) (*domain.AddonRecord, error) {
	record, err := scanRecord(s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, display_name, source_image, status,
		       container_ref, internal_endpoint, last_error, created_at, updated_at
		FROM addons WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrAddonNotFound
		}
		return nil, fmt.Errorf("get addon %s: %w", id, err)
	}
	return record, nil
}

// Update applies the non-nil patch fields to one record and bumps updated_at.
func (s *Store) Update(ctx context.Context, id string, patch domain.AddonPatch) error {
	set := []string{"updated_at = ?"}
	args := []any{time.Now().UTC().Format(time.RFC3339)}

	if patch.Status != nil {
		set = append(set, "status = ?")
		args = append(args, string(*patch.Status))
	}
	if patch.ContainerRef != nil {
		set = append(set, "container_ref = ?")
		args = append(args, *patch.ContainerRef)
	}
	if patch.InternalEndpoint != nil {
		set = append(set, "internal_endpoint = ?")
		args = append(args, *patch.InternalEndpoint)
	}
	if patch.LastError != nil {
		set = append(set, "last_error = ?")
		args = append(args, *patch.LastError)
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		"UPDATE addons SET "+strings.Join(set, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("update addon %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update addon %s: rows affected: %w", id, err)
	}
	if affected == 0 {
		return domain.ErrAddonNotFound
	}
	return nil
}

// ListForOwner returns the owner's records, newest first.
func (s *Store) ListForOwner(ctx context.Context, ownerID string) ([]*domain.AddonRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, display_name, source_image, status,
		       container_ref, internal_endpoint, last_error, created_at, updated_at
		FROM addons WHERE owner_id = ?
		ORDER BY created_at DESC, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list addons for %s: %w", ownerID, err)
	}
	defer rows.Close()

	var out []*domain.AddonRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("list addons for %s: %w", ownerID, err)
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*domain.AddonRecord, error) {
	var record domain.AddonRecord
	var status, createdAt, updatedAt string

	err := row.Scan(&record.ID, &record.OwnerID, &record.DisplayName,
		&record.SourceImage, &status, &record.ContainerRef,
		&record.InternalEndpoint, &record.LastError, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	record.Status = domain.AddonStatus(status)
	if record.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("created_at: %w", err)
	}
	if record.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("updated_at: %w", err)
	}
	return &record, nil
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
