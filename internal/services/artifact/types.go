package artifact

import (
	"context"
	"io"

	"amerifund/internal/models"
)

// DefaultMaxBytes is the per-file ceiling when none is configured.
const DefaultMaxBytes int64 = 16 << 20

// AllowedExtensions are compared case-insensitively, without the dot.
var AllowedExtensions = []string{"pdf", "png", "jpg", "jpeg", "doc", "docx"}

// FileUpload is one file as received from the client. Size and ContentType
// are what the client declared and are not trusted.
type FileUpload struct {
	Filename    string
	Size        int64
	ContentType string
	Content     io.Reader
}

type StoredArtifact struct {
	Name         string
	OriginalName string
	MimeType     string
	Size         int64
}

// Service validates, names and stores uploaded documents.
type Service interface {
	Store(ctx context.Context, f FileUpload, appID uint, docType models.DocumentType) (*StoredArtifact, error)
	Delete(ctx context.Context, appID uint, name string) error
}

// Backend is where bytes end up. Keys are "<appID>/<name>".
type Backend interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Delete(ctx context.Context, key string) error
}
