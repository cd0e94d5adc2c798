// Package model contains the persistent image record and the shared error
// taxonomy.
package model

import (
	"time"
)

// ImageRecord is one row of the images table. A record is written exactly
// once at upload completion and never updated; cleanup is the only thing
// that removes it.
type ImageRecord struct {
	ID            string    `json:"id"`
	MIMEType      string    `json:"mime_type"`
	FilePath      string    `json:"file_path"`
	ThumbnailPath string    `json:"thumbnail_path"`
	CreatedAt     time.Time `json:"created_at"`
}

// UploadResult carries the identifiers a caller needs to build public URLs.
type UploadResult struct {
	ID        string
	MIMEType  string
	Extension string
}

// Stats is an aggregate over all live records. Oldest/Newest are nil when the
// store is empty.
type Stats struct {
	TotalImages int64      `json:"total_images"`
	OldestImage *time.Time `json:"oldest_image"`
	NewestImage *time.Time `json:"newest_image"`
}
