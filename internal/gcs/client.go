package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

var (
	// ErrNotFound is returned by ObjectStore.Read for a missing object.
	ErrNotFound = errors.New("object not found")
	// ErrConflict is returned by ObjectStore.Write when the object changed
	// since the generation the caller read.
	ErrConflict = errors.New("object changed concurrently")
)

// ObjectStore provides an interface for the object operations the exporter
// needs. This interface enables mocking and testing of storage functionality.
type ObjectStore interface {
	// Read returns the object's content and generation.
	Read(ctx context.Context, object string) ([]byte, int64, error)

	// Write replaces the object only if its generation still equals
	// generation; generation 0 means the object must not exist yet.
	Write(ctx context.Context, object string, data []byte, contentType string, generation int64) error

	// Delete removes the object. Deleting a missing object is not an error.
	Delete(ctx context.Context, object string) error
}

// Client is the concrete implementation of ObjectStore backed by one
// Google Cloud Storage bucket.
type Client struct {
	client *storage.Client
	bucket string
}

// NewClient creates a Client for bucket. It assumes Application Default
// Credentials are configured (gcloud auth application-default login).
func NewClient(ctx context.Context, bucket string) (*Client, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewClient: create storage client: %w", err)
	}
	return &Client{client: client, bucket: bucket}, nil
}

// Close closes the underlying storage client.
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func (c *Client) Read(ctx context.Context, object string) ([]byte, int64, error) {
	r, err := c.client.Bucket(c.bucket).Object(object).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("Read: open %s/%s: %w", c.bucket, object, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, fmt.Errorf("Read: read %s/%s: %w", c.bucket, object, err)
	}

	return data, r.Attrs.Generation, nil
}

func (c *Client) Write(ctx context.Context, object string, data []byte, contentType string, generation int64) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	cond := storage.Conditions{DoesNotExist: true}
	if generation != 0 {
		cond = storage.Conditions{GenerationMatch: generation}
	}

	w := c.client.Bucket(c.bucket).Object(object).If(cond).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("Write: %s/%s: %w", c.bucket, object, classifyWriteError(err))
	}
	// Close finalizes the upload and reports precondition failures.
	if err := w.Close(); err != nil {
		return fmt.Errorf("Write: finalize %s/%s: %w", c.bucket, object, classifyWriteError(err))
	}

	return nil
}

func (c *Client) Delete(ctx context.Context, object string) error {
	err := c.client.Bucket(c.bucket).Object(object).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("Delete: %s/%s: %w", c.bucket, object, err)
	}
	return nil
}

func classifyWriteError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}
