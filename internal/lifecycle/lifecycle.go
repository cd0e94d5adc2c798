// Package lifecycle implements the image lifecycle manager: identity
// allocation, upload validation, storage-path assignment, metadata
// persistence, expiry evaluation, and cleanup.
package lifecycle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"io/fs"
	"path"
	"strings"
	"time"

	// Decoders for the two allowed formats. The thumbnail package links in
	// more (gif, bmp, tiff) via imaging; anything outside the allow-list is
	// rejected by format name regardless of what decodes.
	_ "image/jpeg"
	_ "image/png"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/img10/internal/ident"
	"github.com/dharsanguruparan/img10/internal/model"
	"github.com/dharsanguruparan/img10/internal/thumbnail"
)

// MetadataStore is the persistence contract the manager needs. Satisfied by
// repository.ImageRepository and repository.MemoryStore.
type MetadataStore interface {
	Create(ctx context.Context, rec *model.ImageRecord) error
	Get(ctx context.Context, id string) (*model.ImageRecord, error)
	Exists(ctx context.Context, id string) (bool, error)
	ListExpired(ctx context.Context, cutoff time.Time) ([]*model.ImageRecord, error)
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context) (*model.Stats, error)
	Ping(ctx context.Context) error
}

// BlobStore is the file-storage contract. Satisfied by storage.Disk and
// storage.S3. Remove must treat a missing blob as success.
type BlobStore interface {
	Write(ctx context.Context, name string, data []byte, contentType string) error
	Open(ctx context.Context, name string) (io.ReadSeekCloser, error)
	Remove(ctx context.Context, name string) error
}

// Config carries the policy knobs the manager enforces.
type Config struct {
	ExpiryWindow   time.Duration
	MaxUploadBytes int64
	UploadDir      string
	ThumbnailDir   string
}

// Artifact is one servable blob: the original or the thumbnail.
type Artifact struct {
	Content  io.ReadSeekCloser
	MIMEType string
	ModTime  time.Time
}

// Manager owns the lifecycle of stored images. Safe for concurrent use; all
// cross-request coordination is delegated to the metadata store's constraints.
type Manager struct {
	cfg   Config
	meta  MetadataStore
	blobs BlobStore
	thumb *thumbnail.Encoder
	log   *zap.Logger

	// newID is swapped in tests to force collisions.
	newID func() (string, error)
}

// New constructs a Manager.
func New(cfg Config, meta MetadataStore, blobs BlobStore, thumb *thumbnail.Encoder, log *zap.Logger) *Manager {
	return &Manager{
		cfg:   cfg,
		meta:  meta,
		blobs: blobs,
		thumb: thumb,
		log:   log,
		newID: ident.New,
	}
}

// extensionFor maps a verified decoded format name to the stored extension
// and mime type. The declared content type plays no part here.
func extensionFor(format string) (ext, mimeType string, ok bool) {
	switch format {
	case "jpeg":
		return ".jpg", "image/jpeg", true
	case "png":
		return ".png", "image/png", true
	default:
		return "", "", false
	}
}

// Upload validates data, stores the original and a thumbnail, persists the
// metadata record, and returns the identifiers needed to build public URLs.
// Validation runs fully before any storage mutation: declared type, then
// size, then decode and format allow-list.
func (m *Manager) Upload(ctx context.Context, data []byte, declaredType string) (*model.UploadResult, error) {
	if !strings.HasPrefix(declaredType, "image/") {
		return nil, model.ErrInvalidInput
	}
	if int64(len(data)) > m.cfg.MaxUploadBytes {
		return nil, &model.PayloadTooLargeError{Size: int64(len(data)), Limit: m.cfg.MaxUploadBytes}
	}
	_, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		// Undecodable bytes and disallowed formats report identically.
		m.log.Debug("upload rejected: decode failed", zap.Error(err))
		return nil, model.ErrUnsupportedFormat
	}
	ext, mimeType, ok := extensionFor(format)
	if !ok {
		m.log.Debug("upload rejected: format outside allow-list", zap.String("format", format))
		return nil, model.ErrUnsupportedFormat
	}

	for {
		id, err := m.newID()
		if err != nil {
			return nil, fmt.Errorf("%w: generate id: %v", model.ErrStoreUnavailable, err)
		}
		exists, err := m.meta.Exists(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("%w: check id: %v", model.ErrStoreUnavailable, err)
		}
		if exists {
			continue
		}

		originalPath := path.Join(m.cfg.UploadDir, id+ext)
		thumbnailPath := path.Join(m.cfg.ThumbnailDir, id+".jpg")

		if err := m.blobs.Write(ctx, originalPath, data, mimeType); err != nil {
			return nil, fmt.Errorf("%w: write original: %v", model.ErrStoreUnavailable, err)
		}

		thumbData, err := m.thumb.Encode(data)
		if err != nil {
			// The original is already on disk with no record pointing at it;
			// roll it back rather than leave an untracked file behind.
			m.rollback(ctx, originalPath)
			return nil, fmt.Errorf("%w: encode thumbnail: %v", model.ErrStoreUnavailable, err)
		}
		if err := m.blobs.Write(ctx, thumbnailPath, thumbData, "image/jpeg"); err != nil {
			m.rollback(ctx, originalPath)
			return nil, fmt.Errorf("%w: write thumbnail: %v", model.ErrStoreUnavailable, err)
		}

		rec := &model.ImageRecord{
			ID:            id,
			MIMEType:      mimeType,
			FilePath:      originalPath,
			ThumbnailPath: thumbnailPath,
			CreatedAt:     time.Now().UTC(),
		}
		err = m.meta.Create(ctx, rec)
		if errors.Is(err, model.ErrDuplicateID) {
			// A concurrent upload claimed this id between the exists check
			// and the insert. Discard our blobs and reallocate. Both writers
			// derived the same paths from the id, so this rollback also takes
			// the winner's just-written files and its record then serves as
			// NotFound; with 128-bit ids that overlap is not worth a
			// reservation step in the write order.
			m.log.Warn("id collision on insert, regenerating", zap.String("id", id))
			m.rollback(ctx, originalPath, thumbnailPath)
			continue
		}
		if err != nil {
			m.rollback(ctx, originalPath, thumbnailPath)
			return nil, fmt.Errorf("%w: insert record: %v", model.ErrStoreUnavailable, err)
		}

		m.log.Info("image stored",
			zap.String("id", id),
			zap.String("mime_type", mimeType),
			zap.Int("bytes", len(data)),
			zap.Int("thumbnail_bytes", len(thumbData)))
		return &model.UploadResult{ID: id, MIMEType: mimeType, Extension: ext}, nil
	}
}

// rollback removes blobs written for an upload that did not complete.
// Failures are logged; an orphaned file is tolerable because cleanup never
// references untracked files.
func (m *Manager) rollback(ctx context.Context, names ...string) {
	for _, name := range names {
		if err := m.blobs.Remove(ctx, name); err != nil {
			m.log.Warn("failed to roll back blob, leaving orphan", zap.String("blob", name), zap.Error(err))
		}
	}
}

// Get returns the record for id without expiry filtering; expiry is the
// caller's decision point so cleanup and stats can see everything.
func (m *Manager) Get(ctx context.Context, id string) (*model.ImageRecord, error) {
	rec, err := m.meta.Get(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("%w: get record: %v", model.ErrStoreUnavailable, err)
	}
	return rec, nil
}

// Exists reports whether a record with id is present, expired or not.
func (m *Manager) Exists(ctx context.Context, id string) (bool, error) {
	ok, err := m.meta.Exists(ctx, id)
	if err != nil {
		return false, fmt.Errorf("%w: check record: %v", model.ErrStoreUnavailable, err)
	}
	return ok, nil
}

// IsExpired is the single boundary computation shared by the serve path and
// cleanup: a record is expired once its age strictly exceeds the window.
func (m *Manager) IsExpired(rec *model.ImageRecord, now time.Time) bool {
	return now.Sub(rec.CreatedAt) > m.cfg.ExpiryWindow
}

// FetchOriginal resolves id to the original image for serving at time now.
// Unknown id, expired record, and missing backing file all collapse into
// model.ErrNotFound.
func (m *Manager) FetchOriginal(ctx context.Context, id string, now time.Time) (*Artifact, error) {
	rec, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.open(ctx, rec, rec.FilePath, rec.MIMEType, now)
}

// FetchThumbnail resolves id to the thumbnail, which is always a JPEG.
func (m *Manager) FetchThumbnail(ctx context.Context, id string, now time.Time) (*Artifact, error) {
	rec, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.open(ctx, rec, rec.ThumbnailPath, "image/jpeg", now)
}

func (m *Manager) open(ctx context.Context, rec *model.ImageRecord, name, mimeType string, now time.Time) (*Artifact, error) {
	if m.IsExpired(rec, now) {
		return nil, model.ErrNotFound
	}
	rc, err := m.blobs.Open(ctx, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// Live record, no file: tolerated divergence, worth a look.
			m.log.Warn("record has no backing file", zap.String("id", rec.ID), zap.String("blob", name))
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("%w: open blob: %v", model.ErrStoreUnavailable, err)
	}
	return &Artifact{Content: rc, MIMEType: mimeType, ModTime: rec.CreatedAt}, nil
}

// Cleanup removes every record expired at time now along with its files, and
// returns the number of records removed. Files go first, row second: a crash
// in between leaves an orphaned row that the next pass retries. Individual
// file-deletion failures are logged and do not keep the row alive, so
// metadata cannot accumulate forever even when a file is stuck.
func (m *Manager) Cleanup(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-m.cfg.ExpiryWindow)
	expired, err := m.meta.ListExpired(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: list expired: %v", model.ErrStoreUnavailable, err)
	}

	removed := 0
	for _, rec := range expired {
		for _, name := range []string{rec.FilePath, rec.ThumbnailPath} {
			if err := m.blobs.Remove(ctx, name); err != nil {
				m.log.Warn("cleanup: failed to remove blob", zap.String("id", rec.ID), zap.String("blob", name), zap.Error(err))
			}
		}
		if err := m.meta.Delete(ctx, rec.ID); err != nil {
			m.log.Error("cleanup: failed to remove record", zap.String("id", rec.ID), zap.Error(err))
			continue
		}
		removed++
	}
	if removed > 0 {
		m.log.Info("cleanup pass finished", zap.Int("removed", removed))
	}
	return removed, nil
}

// Stats returns aggregate counters over all live records.
func (m *Manager) Stats(ctx context.Context) (*model.Stats, error) {
	stats, err := m.meta.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: stats: %v", model.ErrStoreUnavailable, err)
	}
	return stats, nil
}

// Health reports whether the metadata store is reachable.
func (m *Manager) Health(ctx context.Context) bool {
	return m.meta.Ping(ctx) == nil
}
