package model

import (
	"errors"
	"fmt"
)

// Sentinel errors shared between the lifecycle manager, the stores, and the
// HTTP surface. Callers compare with errors.Is.
var (
	// ErrInvalidInput means the declared content type is not image/*.
	ErrInvalidInput = errors.New("only image files are accepted")

	// ErrUnsupportedFormat covers both undecodable payloads and decodable
	// images outside the JPEG/PNG allow-list; the two cases are deliberately
	// indistinguishable to callers.
	ErrUnsupportedFormat = errors.New("unsupported image format, only JPEG and PNG are supported")

	// ErrDuplicateID is returned by a metadata store when an insert hits the
	// id primary key. The manager retries generation; it never escapes Upload.
	ErrDuplicateID = errors.New("image id already exists")

	// ErrNotFound unifies unknown id, expired record, and missing backing file.
	ErrNotFound = errors.New("image not found")

	// ErrStoreUnavailable means the metadata or blob substrate failed.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// PayloadTooLargeError rejects uploads above the configured cap and reports
// the observed size.
type PayloadTooLargeError struct {
	Size  int64
	Limit int64
}

func (e *PayloadTooLargeError) Error() string {
	return fmt.Sprintf("file size too large, maximum allowed size is %.1f MiB, got %.1f MiB",
		float64(e.Limit)/(1<<20), float64(e.Size)/(1<<20))
}
