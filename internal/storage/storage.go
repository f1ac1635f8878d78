// Package storage holds the evidence documents users attach to approval
// requests (ID scans, institution letters) in object storage.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/learngate/apiserver/internal/apperr"
)

// MaxDocumentBytes caps a single evidence upload.
const MaxDocumentBytes = 16 << 20

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type,omitempty"`
}

// ObjectStorage defines common object operations across backends.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Delete(ctx context.Context, key string) error
	Bucket() string
}

// Documents stores and retrieves evidence documents, keyed per approval
// request. A nil Documents (uploads disabled) rejects every operation
// with a transport error.
type Documents struct {
	backend ObjectStorage
}

func NewDocuments(backend ObjectStorage) *Documents {
	return &Documents{backend: backend}
}

func documentKey(requestID, filename string) string {
	return fmt.Sprintf("approvals/%s/%s", requestID, path.Base(filename))
}

// Save uploads one document for the request.
func (d *Documents) Save(ctx context.Context, requestID, filename string, r io.Reader, size int64, contentType string) error {
	if d == nil || d.backend == nil {
		return apperr.Transport("document storage is not configured")
	}
	filename = strings.TrimSpace(path.Base(filename))
	if filename == "" || filename == "." || filename == "/" {
		return apperr.Validation("document filename is required")
	}
	if size <= 0 || size > MaxDocumentBytes {
		return apperr.Validation("document size must be between 1 byte and %d bytes", MaxDocumentBytes)
	}
	if err := d.backend.Put(ctx, documentKey(requestID, filename), r, size, contentType); err != nil {
		return apperr.Transport("store document: %v", err)
	}
	return nil
}

// ForRequest lists the documents attached to a request.
func (d *Documents) ForRequest(ctx context.Context, requestID string) ([]ObjectInfo, error) {
	if d == nil || d.backend == nil {
		return nil, apperr.Transport("document storage is not configured")
	}
	infos, err := d.backend.List(ctx, fmt.Sprintf("approvals/%s/", requestID))
	if err != nil {
		return nil, apperr.Transport("list documents: %v", err)
	}
	for i := range infos {
		infos[i].Name = path.Base(infos[i].Key)
	}
	return infos, nil
}

// Open returns a reader for one document.
func (d *Documents) Open(ctx context.Context, requestID, filename string) (io.ReadCloser, error) {
	if d == nil || d.backend == nil {
		return nil, apperr.Transport("document storage is not configured")
	}
	rc, err := d.backend.Get(ctx, documentKey(requestID, filename))
	if err != nil {
		return nil, apperr.NotFound("document %q", filename)
	}
	return rc, nil
}
