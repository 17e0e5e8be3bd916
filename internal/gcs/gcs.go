// Package gcs wraps the Cloud Storage client for the source drop and summary uploads.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

// Scheme is the URI prefix for Cloud Storage paths.
const Scheme = "gs://"

// ErrObjectExists is returned when an atomic write finds the object already present.
var ErrObjectExists = errors.New("object already exists")

// ObjectInfo describes a listed object.
type ObjectInfo struct {
	Name string
	Size int64
}

// Client is a thin wrapper around *storage.Client.
type Client struct {
	client *storage.Client
}

// NewClient creates a Client using application default credentials.
func NewClient(ctx context.Context) (*Client, error) {
	c, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &Client{client: c}, nil
}

// Close releases the underlying client.
func (c *Client) Close() error {
	return c.client.Close()
}

// IsURI reports whether path is a gs:// URI.
func IsURI(path string) bool {
	return strings.HasPrefix(path, Scheme)
}

// ParseURI splits gs://bucket/object into its bucket and object name.
func ParseURI(uri string) (bucket, object string, err error) {
	if !IsURI(uri) {
		return "", "", fmt.Errorf("not a gs:// uri: %s", uri)
	}
	rest := strings.TrimPrefix(uri, Scheme)
	bucket, object, _ = strings.Cut(rest, "/")
	if bucket == "" || object == "" || strings.HasSuffix(object, "/") {
		return "", "", fmt.Errorf("gs:// uri must name a bucket and an object: %s", uri)
	}
	return bucket, object, nil
}

// List returns the objects under prefix.
func (c *Client) List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	it := c.client.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix})

	var objects []ObjectInfo
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list gs://%s/%s: %w", bucket, prefix, err)
		}
		if strings.HasSuffix(attrs.Name, "/") {
			continue
		}
		objects = append(objects, ObjectInfo{Name: attrs.Name, Size: attrs.Size})
	}
	return objects, nil
}

// Open returns a reader for the object. The caller must close it.
func (c *Client) Open(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	r, err := c.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open gs://%s/%s: %w", bucket, object, err)
	}
	return r, nil
}

// SaveAtomically writes data only if the object does not exist yet.
// It returns ErrObjectExists when the precondition fails.
func (c *Client) SaveAtomically(ctx context.Context, bucket, object string, data []byte, contentType string) error {
	writer := c.client.Bucket(bucket).Object(object).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	writer.ContentType = contentType

	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return classifyWriteError(bucket, object, err)
	}
	if err := writer.Close(); err != nil {
		return classifyWriteError(bucket, object, err)
	}
	return nil
}

// WriteURI is SaveAtomically addressed by a gs:// URI.
func (c *Client) WriteURI(ctx context.Context, uri string, data []byte, contentType string) error {
	bucket, object, err := ParseURI(uri)
	if err != nil {
		return err
	}
	return c.SaveAtomically(ctx, bucket, object, data, contentType)
}

func classifyWriteError(bucket, object string, err error) error {
	if IsPreconditionFailed(err) {
		return fmt.Errorf("gs://%s/%s: %w", bucket, object, ErrObjectExists)
	}
	return fmt.Errorf("failed to write gs://%s/%s: %w", bucket, object, err)
}

// IsPreconditionFailed reports whether err is an HTTP 412 from the storage API.
func IsPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}
