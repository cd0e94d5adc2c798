// Package repository persists image records. The Postgres implementation is
// the production store; MemoryStore backs tests and the dev mode.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dharsanguruparan/img10/internal/model"
)

// uniqueViolation is the SQLSTATE Postgres reports when an insert collides
// with the id primary key.
const uniqueViolation = "23505"

// ImageRepository wraps all SQL touching the images table.
type ImageRepository struct {
	pool *pgxpool.Pool
}

// NewImageRepository constructs a repository.
func NewImageRepository(pool *pgxpool.Pool) *ImageRepository {
	return &ImageRepository{pool: pool}
}

// Create inserts a record. A primary-key collision is reported as
// model.ErrDuplicateID so the caller can reallocate the id; the insert never
// overwrites an existing row.
func (r *ImageRepository) Create(ctx context.Context, rec *model.ImageRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO images (id, mime_type, file_path, thumbnail_path, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, rec.ID, rec.MIMEType, rec.FilePath, rec.ThumbnailPath, rec.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("insert image %s: %w", rec.ID, model.ErrDuplicateID)
		}
		return fmt.Errorf("insert image: %w", err)
	}
	return nil
}

// Get returns the record for id, or model.ErrNotFound.
func (r *ImageRepository) Get(ctx context.Context, id string) (*model.ImageRecord, error) {
	var rec model.ImageRecord
	row := r.pool.QueryRow(ctx, `
		SELECT id, mime_type, file_path, thumbnail_path, created_at
		FROM images WHERE id=$1
	`, id)
	if err := row.Scan(&rec.ID, &rec.MIMEType, &rec.FilePath, &rec.ThumbnailPath, &rec.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("select image: %w", err)
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	return &rec, nil
}

// Exists reports whether a record with id is present.
func (r *ImageRepository) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	row := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM images WHERE id=$1)`, id)
	if err := row.Scan(&exists); err != nil {
		return false, fmt.Errorf("check image exists: %w", err)
	}
	return exists, nil
}

// ListExpired returns every record created strictly before cutoff.
func (r *ImageRepository) ListExpired(ctx context.Context, cutoff time.Time) ([]*model.ImageRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, mime_type, file_path, thumbnail_path, created_at
		FROM images WHERE created_at < $1
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("select expired images: %w", err)
	}
	defer rows.Close()

	var out []*model.ImageRecord
	for rows.Next() {
		var rec model.ImageRecord
		if err := rows.Scan(&rec.ID, &rec.MIMEType, &rec.FilePath, &rec.ThumbnailPath, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan expired image: %w", err)
		}
		rec.CreatedAt = rec.CreatedAt.UTC()
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired images: %w", err)
	}
	return out, nil
}

// Delete removes the record for id. Deleting an absent record succeeds so
// concurrent cleanup passes do not trip over each other.
func (r *ImageRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM images WHERE id=$1`, id); err != nil {
		return fmt.Errorf("delete image: %w", err)
	}
	return nil
}

// Stats aggregates over all records.
func (r *ImageRepository) Stats(ctx context.Context) (*model.Stats, error) {
	var stats model.Stats
	row := r.pool.QueryRow(ctx, `SELECT COUNT(*), MIN(created_at), MAX(created_at) FROM images`)
	if err := row.Scan(&stats.TotalImages, &stats.OldestImage, &stats.NewestImage); err != nil {
		return nil, fmt.Errorf("select stats: %w", err)
	}
	if stats.OldestImage != nil {
		utc := stats.OldestImage.UTC()
		stats.OldestImage = &utc
	}
	if stats.NewestImage != nil {
		utc := stats.NewestImage.UTC()
		stats.NewestImage = &utc
	}
	return &stats, nil
}

// Ping reports whether the database is reachable.
func (r *ImageRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}
