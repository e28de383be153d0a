// Package gcsdocs stores and resolves uploaded documents in a Google
// Cloud Storage bucket. Document ids are object names within the
// configured bucket.
package gcsdocs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"cloud.google.com/go/storage"

	"github.com/dvloznov/bank-importer/internal/invoices"
)

const uploadTimeout = 2 * time.Minute

// Provider implements the document provider on GCS. It assumes
// Application Default Credentials are configured.
type Provider struct {
	client *storage.Client
	bucket string
}

var _ invoices.DocumentProvider = (*Provider)(nil)

func NewProvider(ctx context.Context, bucket string) (*Provider, error) {
	if bucket == "" {
		return nil, fmt.Errorf("NewProvider: bucket is required")
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewProvider: create storage client: %w", err)
	}
	return &Provider{client: client, bucket: bucket}, nil
}

// Close releases the storage client.
func (p *Provider) Close() error {
	return p.client.Close()
}

// Resolve looks up a document by object name.
func (p *Provider) Resolve(ctx context.Context, documentID string) (*invoices.DocumentReference, error) {
	attrs, err := p.client.Bucket(p.bucket).Object(documentID).Attrs(ctx)
	if err != nil {
		return nil, fmt.Errorf("Resolve: object attrs %s/%s: %w", p.bucket, documentID, err)
	}

	return &invoices.DocumentReference{
		ID:         documentID,
		Name:       path.Base(attrs.Name),
		URL:        fmt.Sprintf("gs://%s/%s", p.bucket, attrs.Name),
		Size:       attrs.Size,
		ModifiedAt: attrs.Updated,
	}, nil
}

// Fetch downloads the document content and reports its content type.
func (p *Provider) Fetch(ctx context.Context, documentID string) ([]byte, string, error) {
	rc, err := p.client.Bucket(p.bucket).Object(documentID).NewReader(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("Fetch: open reader %s/%s: %w", p.bucket, documentID, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, "", fmt.Errorf("Fetch: reading bytes: %w", err)
	}

	return data, rc.Attrs.ContentType, nil
}

// Upload stores content under the given object name and returns the
// document id.
func (p *Provider) Upload(ctx context.Context, objectName, contentType string, content []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := p.client.Bucket(p.bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := io.Copy(w, bytes.NewReader(content)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("Upload: copy to writer: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("Upload: finalize upload: %w", err)
	}

	return objectName, nil
}
