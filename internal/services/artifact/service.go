package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"amerifund/internal/models"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
)

const fallbackMimeType = "application/octet-stream"

type service struct {
	backend  Backend
	maxBytes int64
	log      *zap.Logger
	now      func() time.Time
}

// NewService wraps a backend. maxBytes <= 0 selects DefaultMaxBytes.
func NewService(backend Backend, maxBytes int64, log *zap.Logger) Service {
	if backend == nil {
		panic("backend is required")
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &service{
		backend:  backend,
		maxBytes: maxBytes,
		log:      log,
		now:      time.Now,
	}
}

func (s *service) Store(ctx context.Context, f FileUpload, appID uint, docType models.DocumentType) (*StoredArtifact, error) {
	original := cleanFilename(f.Filename)
	if original == "" || f.Content == nil {
		return nil, ErrEmptyFile
	}

	ext, ok := allowedExtension(original)
	if !ok {
		return nil, ErrDisallowedExtension
	}
	if f.Size > s.maxBytes {
		return nil, ErrFileTooLarge
	}

	// The declared size is not trusted; read one byte past the limit.
	data, err := io.ReadAll(io.LimitReader(f.Content, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read upload: %v", ErrStorage, err)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, ErrFileTooLarge
	}
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}

	name := storedName(data, appID, docType, s.now(), ext)
	mime := detectMimeType(data, f.ContentType)

	if err := s.backend.Put(ctx, objectKey(appID, name), data, mime); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	s.log.Info("stored document",
		zap.Uint("application_id", appID),
		zap.String("document_type", string(docType)),
		zap.String("file_name", name),
		zap.Int("size", len(data)))

	return &StoredArtifact{
		Name:         name,
		OriginalName: original,
		MimeType:     mime,
		Size:         int64(len(data)),
	}, nil
}

func (s *service) Delete(ctx context.Context, appID uint, name string) error {
	if err := s.backend.Delete(ctx, objectKey(appID, name)); err != nil {
		return fmt.Errorf("%w: delete %s: %v", ErrStorage, name, err)
	}
	return nil
}

// storedName derives a name from the content and its context, so identical
// bytes for another application, type or moment never collide.
func storedName(data []byte, appID uint, docType models.DocumentType, at time.Time, ext string) string {
	h := sha256.New()
	h.Write(data)
	h.Write([]byte(strconv.FormatUint(uint64(appID), 10)))
	h.Write([]byte(docType))
	h.Write([]byte(at.UTC().Format(time.RFC3339Nano)))
	return hex.EncodeToString(h.Sum(nil)) + "." + ext
}

func objectKey(appID uint, name string) string {
	return strconv.FormatUint(uint64(appID), 10) + "/" + name
}

func cleanFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(strings.TrimSpace(name))
	if name == "." || name == "/" {
		return ""
	}
	return name
}

func allowedExtension(name string) (string, bool) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	for _, allowed := range AllowedExtensions {
		if ext == allowed {
			return ext, true
		}
	}
	return "", false
}

func detectMimeType(data []byte, declared string) string {
	detected := mimetype.Detect(data).String()
	if base, _, _ := strings.Cut(detected, ";"); base != fallbackMimeType && base != "text/plain" {
		return base
	}
	if declared = strings.TrimSpace(declared); declared != "" {
		return declared
	}
	return fallbackMimeType
}
