package domain

import (
	"context"
	"io"
)

// BlobWriter uploads objects to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// Archiver moves aged rows out of hot storage into blobs.
type Archiver interface {
	ArchiveOldData(ctx context.Context, retentionDays int) error
}
